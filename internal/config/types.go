package config

// Config is the daemon configuration. Files may be JSON, YAML or TOML; all are
// decoded through the same strict JSON path.
//
// All durations are Go duration strings (e.g. "100ms", "1s", "10m").
type Config struct {
	Logging    LoggingConfig    `json:"logging"`
	Storage    StorageConfig    `json:"storage"`
	Host       HostConfig       `json:"host"`
	Pipeline   PipelineConfig   `json:"pipeline"`
	QuietHours QuietHoursConfig `json:"quiet_hours"`
	Delivery   DeliveryConfig   `json:"delivery"`
	Devices    []DeviceConfig   `json:"devices,omitempty"`
	Sink       SinkConfig       `json:"sink"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the persistence layer for filters, mutes and audit.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/notiflink.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// HostConfig tunes the simulated host that replays event streams.
type HostConfig struct {
	CurrentUser int               `json:"current_user,omitempty"`
	IconDir     string            `json:"icon_dir,omitempty"`
	AppNames    map[string]string `json:"app_names,omitempty"`
}

// PipelineConfig controls intake.
//
// Defaults (when fields are omitted/zero):
//   - burst_timeout: "1s"
//   - music_debounce: "100ms"
//   - event_buffer: 256
//   - housekeeping: "@every 10m" ("off" disables)
type PipelineConfig struct {
	BurstTimeout      string   `json:"burst_timeout,omitempty"`
	MusicDebounce     string   `json:"music_debounce,omitempty"`
	EventBuffer       int      `json:"event_buffer,omitempty"`
	PreferLongText    bool     `json:"prefer_long_text,omitempty"`
	GroupSummaryAllow []string `json:"group_summary_allow,omitempty"`
	WorkProfileFilter bool     `json:"work_profile_filter,omitempty"`
	RespectDND        bool     `json:"respect_dnd,omitempty"`
	VoIPCalls         bool     `json:"voip_calls,omitempty"`
	VoIPSources       []string `json:"voip_sources,omitempty"`
	Housekeeping      string   `json:"housekeeping,omitempty"`
}

// QuietHoursConfig is the local-time window inside which notifications pass.
// Start and End are "HH:MM"; start >= end wraps past midnight.
type QuietHoursConfig struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start,omitempty"`
	End     string `json:"end,omitempty"`
}

// DeliveryConfig controls the queue in front of the sink.
type DeliveryConfig struct {
	QueueSize     int     `json:"queue_size,omitempty"`
	RatePerSec    float64 `json:"rate_per_sec,omitempty"`
	Burst         int     `json:"burst,omitempty"`
	RetryMax      int     `json:"retry_max,omitempty"`
	RetryBase     string  `json:"retry_base,omitempty"`
	RetryMaxDelay string  `json:"retry_max_delay,omitempty"`
	SendTimeout   string  `json:"send_timeout,omitempty"`
}

type DeviceConfig struct {
	Name       string `json:"name"`
	AutoRemove bool   `json:"auto_remove,omitempty"`
}

// SinkConfig selects where delivered output goes: "log" (default), "-" for
// stdout, or a file path receiving JSON Lines.
type SinkConfig struct {
	Output string `json:"output,omitempty"`
}
