package config

import (
	"reflect"
	"sort"
	"strings"

	logx "notiflink/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and compact
// structured attrs for logging.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.String("storage.path", strings.TrimSpace(newCfg.Storage.Path)),
		)
	}
	if !reflect.DeepEqual(oldCfg.Host, newCfg.Host) {
		changed = append(changed, "host")
		attrs = append(attrs, logx.Int("host.current_user", newCfg.Host.CurrentUser))
	}
	if !reflect.DeepEqual(oldCfg.Pipeline, newCfg.Pipeline) {
		changed = append(changed, "pipeline")
		attrs = append(attrs,
			logx.String("pipeline.burst_timeout", newCfg.Pipeline.BurstTimeout),
			logx.Bool("pipeline.respect_dnd", newCfg.Pipeline.RespectDND),
			logx.Bool("pipeline.voip_calls", newCfg.Pipeline.VoIPCalls),
			logx.Int("pipeline.group_summary_allow", len(newCfg.Pipeline.GroupSummaryAllow)),
		)
	}
	if oldCfg.QuietHours != newCfg.QuietHours {
		changed = append(changed, "quiet_hours")
		attrs = append(attrs,
			logx.Bool("quiet_hours.enabled", newCfg.QuietHours.Enabled),
			logx.String("quiet_hours.window", newCfg.QuietHours.Start+"-"+newCfg.QuietHours.End),
		)
	}
	if oldCfg.Delivery != newCfg.Delivery {
		changed = append(changed, "delivery")
		attrs = append(attrs,
			logx.Any("delivery.rate_per_sec", newCfg.Delivery.RatePerSec),
			logx.Int("delivery.retry_max", newCfg.Delivery.RetryMax),
		)
	}
	if !reflect.DeepEqual(oldCfg.Devices, newCfg.Devices) {
		changed = append(changed, "devices")
		attrs = append(attrs, logx.Int("devices.count", len(newCfg.Devices)))
	}
	if oldCfg.Sink != newCfg.Sink {
		changed = append(changed, "sink")
		attrs = append(attrs, logx.String("sink.output", newCfg.Sink.Output))
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired lists changed sections that cannot be hot-applied.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		switch s {
		case "storage", "host", "sink":
			out = append(out, s)
		}
	}
	return out
}
