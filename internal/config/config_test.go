package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const jsonDoc = `{
  "logging": {"level": "debug", "console": true},
  "storage": {"driver": "sqlite", "path": "./data/n.db", "busy_timeout": "2s"},
  "pipeline": {"burst_timeout": "1s", "voip_calls": true, "voip_sources": ["org.voip"]},
  "quiet_hours": {"enabled": true, "start": "06:00", "end": "22:00"},
  "devices": [{"name": "watch", "auto_remove": true}]
}`

const yamlDoc = `
logging:
  level: debug
  console: true
storage:
  driver: sqlite
  path: ./data/n.db
  busy_timeout: 2s
pipeline:
  burst_timeout: 1s
  voip_calls: true
  voip_sources: [org.voip]
quiet_hours:
  enabled: true
  start: "06:00"
  end: "22:00"
devices:
  - name: watch
    auto_remove: true
`

const tomlDoc = `
[logging]
level = "debug"
console = true

[storage]
driver = "sqlite"
path = "./data/n.db"
busy_timeout = "2s"

[pipeline]
burst_timeout = "1s"
voip_calls = true
voip_sources = ["org.voip"]

[quiet_hours]
enabled = true
start = "06:00"
end = "22:00"

[[devices]]
name = "watch"
auto_remove = true
`

func TestParseFormatsAgree(t *testing.T) {
	want, err := ParseBytes("c.json", []byte(jsonDoc))
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	for name, doc := range map[string]string{"c.yaml": yamlDoc, "c.toml": tomlDoc} {
		got, err := ParseBytes(name, []byte(doc))
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if hashConfig(got) != hashConfig(want) {
			t.Fatalf("%s decoded differently:\n got %+v\nwant %+v", name, got, want)
		}
	}
	if err := Validate(want); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(want.Devices) != 1 || !want.Devices[0].AutoRemove {
		t.Fatalf("devices: %+v", want.Devices)
	}
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"unknown field":  `{"pipeline": {"burst": "1s"}}`,
		"bad duration":   `{"pipeline": {"burst_timeout": "soon"}}`,
		"bad clock":      `{"quiet_hours": {"start": "25:00"}}`,
		"wrong type":     `{"devices": {"name": "x"}}`,
		"unknown driver": `{"storage": {"driver": "redis"}}`,
		"trailing data":  `{} {}`,
		"device unnamed": `{"devices": [{"auto_remove": true}]}`,
	}
	for name, doc := range cases {
		if _, err := ParseBytes("c.json", []byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Storage:    StorageConfig{Driver: "file"},
		QuietHours: QuietHoursConfig{Enabled: true, Start: "6", End: "22:00"},
		Pipeline:   PipelineConfig{VoIPCalls: true},
		Devices:    []DeviceConfig{{Name: "a"}, {Name: "a"}},
	}
	err := Validate(cfg)
	if err == nil {
		t.Fatalf("expected errors")
	}
	for _, want := range []string{"storage.path", "quiet_hours.start", "voip_sources", "duplicate"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("missing %q in %v", want, err)
		}
	}
	if err := Validate(&Config{}); err != nil {
		t.Fatalf("empty config must be valid: %v", err)
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	a, _ := ParseBytes("c.json", []byte(jsonDoc))
	b, _ := ParseBytes("c.json", []byte(jsonDoc))
	b.QuietHours.End = "23:00"
	b.Devices = append(b.Devices, DeviceConfig{Name: "band"})
	b.Storage.Path = "./other.db"

	changed, attrs := SummarizeConfigChange(a, b)
	want := []string{"devices", "quiet_hours", "storage"}
	if strings.Join(changed, ",") != strings.Join(want, ",") {
		t.Fatalf("changed=%v", changed)
	}
	if len(attrs) == 0 {
		t.Fatalf("expected attrs")
	}
	if r := RestartRequired(changed); len(r) != 1 || r[0] != "storage" {
		t.Fatalf("restart required: %v", r)
	}
}

func TestManagerWatchPublishes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notiflink.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: info\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	select {
	case cfg := <-ch:
		if cfg.Logging.Level != "debug" {
			t.Fatalf("level=%q", cfg.Logging.Level)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no config published")
	}
	if m.Get().Logging.Level != "debug" {
		t.Fatalf("config not committed")
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	d, err := ParseDurationOrDefault("x", "", time.Second)
	if err != nil || d != time.Second {
		t.Fatalf("d=%v err=%v", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatalf("negative duration must fail")
	}
}

func TestParseDurationOrBlank(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Duration
	}{
		{"", time.Second},
		{"  ", time.Second},
		{"0s", 0},
		{"250ms", 250 * time.Millisecond},
	}
	for _, tt := range tests {
		got, err := ParseDurationOrBlank("x", tt.raw, time.Second)
		if err != nil || got != tt.want {
			t.Fatalf("ParseDurationOrBlank(%q) = %v, %v; want %v", tt.raw, got, err, tt.want)
		}
	}
	if _, err := ParseDurationOrBlank("x", "soon", time.Second); err == nil {
		t.Fatalf("invalid duration must fail")
	}
}
