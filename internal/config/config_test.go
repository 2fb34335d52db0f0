package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	def := Default()
	if cfg.Convert != def.Convert || cfg.Server != def.Server || cfg.Recorder != def.Recorder {
		t.Errorf("missing config file did not yield defaults: %+v", cfg)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "igc2kml.yaml")
	content := `
convert:
  clamp_to_ground: true
  extrude: true
  kmz: true
  destination: /srv/kml
  workers: 8
server:
  listen_addr: ":9090"
recorder:
  port_path: /dev/ttyACM0
  baud_rate: 115200
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := Load(path)
	c := cfg.Convert
	if !c.ClampToGround || !c.Extrude || !c.KMZ || c.Destination != "/srv/kml" || c.Workers != 8 {
		t.Errorf("convert = %+v", c)
	}
	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.ReplayIntervalMs != Default().Server.ReplayIntervalMs {
		t.Errorf("unset field lost its default")
	}
	if cfg.Recorder.PortPath != "/dev/ttyACM0" || cfg.Recorder.BaudRate != 115200 {
		t.Errorf("recorder = %+v", cfg.Recorder)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q", cfg.Logging.Level)
	}
	if cfg.Path() != path {
		t.Errorf("Path() = %q", cfg.Path())
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("convert: [unterminated"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg := Load(path)
	if cfg.Convert != Default().Convert {
		t.Errorf("invalid config did not fall back to defaults")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("IGC2KML_CLAMP", "1")
	t.Setenv("IGC2KML_EXTRUDE", "yes")
	t.Setenv("IGC2KML_WORKERS", "2")
	t.Setenv("IGC2KML_DEST", "/tmp/out")
	t.Setenv("LISTEN_ADDR", ":7070")
	t.Setenv("RECORDER_BAUD", "notanumber")

	cfg := Load("")
	if !cfg.Convert.ClampToGround || !cfg.Convert.Extrude {
		t.Errorf("bool overrides not applied: %+v", cfg.Convert)
	}
	if cfg.Convert.Workers != 2 || cfg.Convert.Destination != "/tmp/out" {
		t.Errorf("overrides not applied: %+v", cfg.Convert)
	}
	if cfg.Server.ListenAddr != ":7070" {
		t.Errorf("listen addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Recorder.BaudRate != Default().Recorder.BaudRate {
		t.Errorf("invalid number replaced the default: %d", cfg.Recorder.BaudRate)
	}
}

func TestDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("LOG_LEVEL=warn\n"), 0644); err != nil {
		t.Fatal(err)
	}
	// Registered so that the variable godotenv sets is removed afterwards.
	t.Setenv("LOG_LEVEL", "")
	os.Unsetenv("LOG_LEVEL")

	cfg := Load(filepath.Join(dir, "igc2kml.yaml"))
	if cfg.Logging.Level != "warn" {
		t.Errorf("log level = %q, expected value from .env", cfg.Logging.Level)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Default()
	cfg.path = path
	cfg.Convert.Extrude = true
	cfg.Server.ListenAddr = ":1234"
	if err := cfg.Save(); err != nil {
		t.Fatal(err)
	}

	back := Load(path)
	if !back.Convert.Extrude || back.Server.ListenAddr != ":1234" {
		t.Errorf("saved config not reloaded: %+v", back)
	}

	data, err := back.ToJSON()
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	conv, _ := m["convert"].(map[string]any)
	if conv["extrude"] != true {
		t.Errorf("JSON lacks promoted option fields: %s", data)
	}
}

func TestUpdateFromJSON(t *testing.T) {
	cfg := Default()
	err := cfg.UpdateFromJSON([]byte(`{"convert":{"extrude":true,"workers":2},"server":{"replayIntervalMs":50}}`))
	if err != nil {
		t.Fatal(err)
	}
	conv, srv := cfg.ConvertSettings(), cfg.ServerSettings()
	if !conv.Extrude || conv.Workers != 2 || srv.ReplayIntervalMs != 50 {
		t.Errorf("update not applied: %+v %+v", conv, srv)
	}
	if srv.ListenAddr != ":8080" || cfg.Recorder.BaudRate != 57600 {
		t.Errorf("fields missing from the update were reset: %+v %+v", srv, cfg.Recorder)
	}

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"convert":`},
		{"unknown field", `{"convert":{"speed":3}}`},
		{"negative workers", `{"convert":{"extrude":false,"workers":-1}}`},
		{"zero upload limit", `{"server":{"maxUploadBytes":0}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := cfg.UpdateFromJSON([]byte(tt.body)); err == nil {
				t.Errorf("expected error")
			}
			if c := cfg.ConvertSettings(); !c.Extrude || c.Workers != 2 {
				t.Errorf("rejected update was applied: %+v", c)
			}
		})
	}
}
