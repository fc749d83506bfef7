package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/intersection.sim/internal/config"
)

func TestFlagDefaults(t *testing.T) {
	if *listen != ":8080" {
		t.Errorf("listen default = %q", *listen)
	}
	if !*autostart {
		t.Error("autostart should default to true")
	}
	if *frameMs != 16 {
		t.Errorf("frame-ms default = %d", *frameMs)
	}
}

// withFlags sets flag values for one test and restores them afterwards.
func withFlags(t *testing.T, path, m string, s uint64) {
	t.Helper()
	oldPath, oldMode, oldSeed := *configPath, *mode, *seed
	*configPath, *mode, *seed = path, m, s
	t.Cleanup(func() { *configPath, *mode, *seed = oldPath, oldMode, oldSeed })
}

func TestLoadSettings(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "sim.json")
	if err := os.WriteFile(cfg, []byte(`{"green_duration": 15000, "mode": "fixed"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		path     string
		mode     string
		seed     uint64
		wantMode string
		wantErr  bool
	}{
		{name: "defaults", wantMode: config.ModeFixed},
		{name: "file", path: cfg, wantMode: config.ModeFixed},
		{name: "mode override", path: cfg, mode: config.ModeAdaptive, seed: 9, wantMode: config.ModeAdaptive},
		{name: "bad mode", mode: "roundabout", wantErr: true},
		{name: "missing file", path: filepath.Join(dir, "nope.json"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withFlags(t, tt.path, tt.mode, tt.seed)
			s, err := loadSettings()
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got := s.GetMode(); got != tt.wantMode {
				t.Errorf("mode = %q, want %q", got, tt.wantMode)
			}
			if tt.path != "" && s.GetGreenDuration() != 15000 {
				t.Errorf("green = %v, want 15000", s.GetGreenDuration())
			}
			if tt.seed != 0 && s.GetSeed() != tt.seed {
				t.Errorf("seed = %d, want %d", s.GetSeed(), tt.seed)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	l := set.String("listen", ":8080", "")
	m := set.String("mode", "", "")
	fm := set.Int("frame-ms", 16, "")
	set.String("env", ".env", "")

	envPath := filepath.Join(t.TempDir(), "sim.env")
	require.NoError(t, os.WriteFile(envPath, []byte("SIM_FRAME_MS=33\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("SIM_FRAME_MS") })
	t.Setenv("SIM_LISTEN", ":9090")
	t.Setenv("SIM_MODE", "adaptive")

	require.NoError(t, set.Parse([]string{"-mode", "fixed"}))
	require.NoError(t, applyEnv(set, envPath))

	assert.Equal(t, ":9090", *l)
	assert.Equal(t, "fixed", *m, "command line wins over the environment")
	assert.Equal(t, 33, *fm)
}

func TestApplyEnvErrors(t *testing.T) {
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	set.Int("frame-ms", 16, "")
	require.NoError(t, set.Parse(nil))

	assert.NoError(t, applyEnv(set, filepath.Join(t.TempDir(), "missing.env")))

	t.Setenv("SIM_FRAME_MS", "fast")
	err := applyEnv(set, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SIM_FRAME_MS")
}

func TestSplitOrigins(t *testing.T) {
	assert.Nil(t, splitOrigins(""))
	assert.Equal(t, []string{"http://a", "http://b"}, splitOrigins(" http://a, ,http://b "))
}
