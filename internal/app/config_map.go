package app

import (
	"fmt"
	"strings"
	"time"

	"notiflink/internal/config"
	"notiflink/internal/debounce"
	"notiflink/internal/delivery"
	"notiflink/internal/normalize"
	"notiflink/internal/pipeline"
	"notiflink/internal/policy"
	"notiflink/internal/source"
	"notiflink/internal/storage"
	logx "notiflink/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	switch driver {
	case "", "memory", "none":
		return storage.Config{Driver: "memory"}, nil
	case "file":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=file")
		}
		return storage.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 5*time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapHostConfig(cfg *config.Config) source.HostConfig {
	names := make(map[string]string, len(cfg.Host.AppNames))
	for k, v := range cfg.Host.AppNames {
		names[k] = v
	}
	return source.HostConfig{CurrentUser: cfg.Host.CurrentUser, AppNames: names}
}

func mapPipelineConfig(cfg *config.Config) (pipeline.Config, error) {
	pc := cfg.Pipeline

	burst, err := config.ParseDurationOrBlank("pipeline.burst_timeout", pc.BurstTimeout, pipeline.DefaultBurstTimeout)
	if err != nil {
		return pipeline.Config{}, err
	}
	music, err := config.ParseDurationOrDefault("pipeline.music_debounce", pc.MusicDebounce, debounce.DefaultDelay)
	if err != nil {
		return pipeline.Config{}, err
	}
	buffer := pc.EventBuffer
	if buffer <= 0 {
		buffer = pipeline.DefaultEventBuffer
	}

	housekeeping := strings.TrimSpace(pc.Housekeeping)
	switch {
	case housekeeping == "":
		housekeeping = pipeline.DefaultHousekeeping
	case strings.EqualFold(housekeeping, "off"):
		housekeeping = ""
	}

	var qh policy.QuietHours
	if cfg.QuietHours.Enabled {
		start, err := policy.ParseTimeOfDay(cfg.QuietHours.Start)
		if err != nil {
			return pipeline.Config{}, fmt.Errorf("quiet_hours.start: %w", err)
		}
		end, err := policy.ParseTimeOfDay(cfg.QuietHours.End)
		if err != nil {
			return pipeline.Config{}, fmt.Errorf("quiet_hours.end: %w", err)
		}
		qh = policy.QuietHours{Enabled: true, Start: start, End: end}
	}

	devices := make([]pipeline.Device, 0, len(cfg.Devices))
	for _, d := range cfg.Devices {
		devices = append(devices, pipeline.Device{Name: strings.TrimSpace(d.Name), AutoRemove: d.AutoRemove})
	}

	return pipeline.Config{
		Policy: policy.Config{
			QuietHours:        qh,
			WorkProfileFilter: pc.WorkProfileFilter,
			RespectDND:        pc.RespectDND,
			VoIPCalls:         pc.VoIPCalls,
			VoIPSources:       append([]string(nil), pc.VoIPSources...),
		},
		Normalize: normalize.Config{
			PreferLongText:    pc.PreferLongText,
			GroupSummaryAllow: append([]string(nil), pc.GroupSummaryAllow...),
		},
		BurstTimeout:  burst,
		MusicDebounce: music,
		EventBuffer:   buffer,
		Devices:       devices,
		Housekeeping:  housekeeping,
	}, nil
}

// mapDeliveryConfig leaves zero values in place; the queue fills its own defaults.
func mapDeliveryConfig(cfg *config.Config) (delivery.Config, error) {
	dc := cfg.Delivery
	if dc.QueueSize < 0 {
		return delivery.Config{}, fmt.Errorf("delivery.queue_size must be >= 0")
	}
	if dc.RatePerSec < 0 {
		return delivery.Config{}, fmt.Errorf("delivery.rate_per_sec must be >= 0")
	}
	base, err := config.ParseDurationField("delivery.retry_base", dc.RetryBase)
	if err != nil {
		return delivery.Config{}, err
	}
	maxDelay, err := config.ParseDurationField("delivery.retry_max_delay", dc.RetryMaxDelay)
	if err != nil {
		return delivery.Config{}, err
	}
	timeout, err := config.ParseDurationField("delivery.send_timeout", dc.SendTimeout)
	if err != nil {
		return delivery.Config{}, err
	}
	return delivery.Config{
		QueueSize:     dc.QueueSize,
		RatePerSec:    dc.RatePerSec,
		Burst:         dc.Burst,
		RetryMax:      dc.RetryMax,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
		SendTimeout:   timeout,
	}, nil
}

// validate is the reload validator: semantic checks plus every mapping.
func validate(cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapPipelineConfig(cfg); err != nil {
		return err
	}
	if _, err := mapDeliveryConfig(cfg); err != nil {
		return err
	}
	return nil
}

// OpenStore opens only the store named by the config file, for the
// management commands.
func OpenStore(cfgPath string) (storage.Store, error) {
	cfg, err := config.NewManager(cfgPath).Load()
	if err != nil {
		return nil, err
	}
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	return storage.Open(sc, logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "storage")))
}
