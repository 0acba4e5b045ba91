package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBBackend != DatabaseSQLite || cfg.DBDSN != "soundtrigger.db" {
		t.Fatalf("unexpected db defaults: %s %q", cfg.DBBackend, cfg.DBDSN)
	}
	if cfg.SettleDelay != 500*time.Millisecond || cfg.MaxJitter != 500*time.Millisecond || cfg.RepeatWeight != 0.5 {
		t.Fatalf("unexpected tuning defaults: %+v", cfg)
	}
	if cfg.HTTPAddr() != "127.0.0.1:8090" {
		t.Fatalf("HTTPAddr() = %q", cfg.HTTPAddr())
	}
}

func TestLoadReadsPrimaryAndAliasKeys(t *testing.T) {
	t.Setenv("ST_DB_DSN", "alias.db")
	t.Setenv("SOUNDTRIGGER_SOUNDS_DIR", "/srv/sounds")
	t.Setenv("ST_SOUNDS_DIR", "/ignored")
	t.Setenv("SOUNDTRIGGER_SETTLE_DELAY", "750ms")
	t.Setenv("ST_MAX_JITTER", "200")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBDSN != "alias.db" {
		t.Fatalf("DBDSN = %q, want alias value", cfg.DBDSN)
	}
	if cfg.SoundsDir != "/srv/sounds" {
		t.Fatalf("SoundsDir = %q, primary key should win", cfg.SoundsDir)
	}
	if cfg.SettleDelay != 750*time.Millisecond {
		t.Fatalf("SettleDelay = %v", cfg.SettleDelay)
	}
	if cfg.MaxJitter != 200*time.Millisecond {
		t.Fatalf("MaxJitter = %v, bare integers are milliseconds", cfg.MaxJitter)
	}
}

func TestLoadRejectsInvalidSetups(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown backend", map[string]string{"SOUNDTRIGGER_DB_BACKEND": "oracle"}},
		{"unknown source", map[string]string{"SOUNDTRIGGER_SOUND_SOURCE": "ftp"}},
		{"s3 without bucket", map[string]string{"SOUNDTRIGGER_SOUND_SOURCE": "s3"}},
		{"s3 with watcher", map[string]string{
			"SOUNDTRIGGER_SOUND_SOURCE":  "s3",
			"SOUNDTRIGGER_S3_BUCKET":     "ambience",
			"SOUNDTRIGGER_AUTO_REGISTER": "true",
		}},
		{"repeat weight zero", map[string]string{"SOUNDTRIGGER_REPEAT_WEIGHT": "0"}},
		{"low sample rate", map[string]string{"SOUNDTRIGGER_SAMPLE_RATE": "100"}},
		{"sample rate out of range", map[string]string{"SOUNDTRIGGER_TRACING_SAMPLE_RATE": "2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("Load() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestLoadReportsLegacyEnvWarnings(t *testing.T) {
	t.Setenv("SOUNDS_DIR", "/legacy")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.LegacyEnvWarnings) != 1 {
		t.Fatalf("expected one legacy warning, got %v", cfg.LegacyEnvWarnings)
	}
}
