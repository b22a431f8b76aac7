package config

import (
	"errors"
	"fmt"
	"strings"

	"notiflink/internal/policy"
)

// Validate performs the semantic checks the schema cannot express.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	for _, f := range []struct{ path, raw string }{
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
		{"pipeline.burst_timeout", cfg.Pipeline.BurstTimeout},
		{"pipeline.music_debounce", cfg.Pipeline.MusicDebounce},
		{"delivery.retry_base", cfg.Delivery.RetryBase},
		{"delivery.retry_max_delay", cfg.Delivery.RetryMaxDelay},
		{"delivery.send_timeout", cfg.Delivery.SendTimeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			errs = append(errs, err)
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			errs = append(errs, fmt.Errorf("storage.path is required when storage.driver=%s", cfg.Storage.Driver))
		}
	}

	if qh := cfg.QuietHours; qh.Enabled {
		if _, err := policy.ParseTimeOfDay(qh.Start); err != nil {
			errs = append(errs, fmt.Errorf("quiet_hours.start: %w", err))
		}
		if _, err := policy.ParseTimeOfDay(qh.End); err != nil {
			errs = append(errs, fmt.Errorf("quiet_hours.end: %w", err))
		}
	}

	if cfg.Pipeline.VoIPCalls && len(cfg.Pipeline.VoIPSources) == 0 {
		errs = append(errs, errors.New("pipeline.voip_sources is required when pipeline.voip_calls is enabled"))
	}

	seen := map[string]struct{}{}
	for i, d := range cfg.Devices {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("devices[%d].name is required", i))
			continue
		}
		if _, dup := seen[name]; dup {
			errs = append(errs, fmt.Errorf("devices[%d]: duplicate name %q", i, name))
		}
		seen[name] = struct{}{}
	}
	return errors.Join(errs...)
}
