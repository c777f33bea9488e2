package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Level != LevelInfo || cfg.Pretty || cfg.Output != os.Stderr {
		t.Errorf("DefaultConfig() = %+v", cfg)
	}
}

func TestSetup_LevelFiltering(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  []string
		drop  []string
	}{
		{LevelDebug, []string{"lookup debug", "lookup info", "quota warn", "persist error"}, nil},
		{LevelInfo, []string{"lookup info", "quota warn", "persist error"}, []string{"lookup debug"}},
		{LevelWarn, []string{"quota warn", "persist error"}, []string{"lookup debug", "lookup info"}},
		{LevelError, []string{"persist error"}, []string{"lookup debug", "lookup info", "quota warn"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			buf := &bytes.Buffer{}
			Setup(Config{Level: tt.level, Output: buf})

			logger := NewLogger("batch")
			logger.Debug().Msg("lookup debug")
			logger.Info().Msg("lookup info")
			logger.Warn().Msg("quota warn")
			logger.Error().Msg("persist error")

			out := buf.String()
			for _, msg := range tt.want {
				if !strings.Contains(out, msg) {
					t.Errorf("missing %q in %q", msg, out)
				}
			}
			for _, msg := range tt.drop {
				if strings.Contains(out, msg) {
					t.Errorf("%q should be filtered at %s", msg, tt.level)
				}
			}
		})
	}
}

func TestSetup_JSONFields(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelInfo, Output: buf})

	logger := NewLogger("vies-client")
	logger.Info().
		Str("country_code", "IT").
		Int("line", 3).
		Msg("VIES lookup done")

	var event map[string]any
	if err := json.Unmarshal(buf.Bytes(), &event); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if event["component"] != "vies-client" || event["country_code"] != "IT" {
		t.Errorf("unexpected fields: %v", event)
	}
	if event["line"] != float64(3) {
		t.Errorf("line = %v, want 3", event["line"])
	}
	if _, ok := event["time"]; !ok {
		t.Error("missing timestamp")
	}
}

func TestSetup_Pretty(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelInfo, Pretty: true, Output: buf})

	logger := NewLogger("app")
	logger.Info().Msg("Run complete")

	out := buf.String()
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Errorf("pretty output should not be JSON: %q", out)
	}
	if !strings.Contains(out, "Run complete") {
		t.Errorf("missing message in %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    zerolog.Level
		wantErr bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"INFO", zerolog.InfoLevel, false},
		{"", zerolog.InfoLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{" warn ", zerolog.WarnLevel, false},
		{"critical", zerolog.ErrorLevel, false},
		{"verbose", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestSetupWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vies.log")
	if err := os.WriteFile(path, []byte("previous run\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		truncate bool
		keepOld  bool
	}{
		{"append", false, true},
		{"truncate", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			console := &bytes.Buffer{}
			logger, closer, err := SetupWithFile(Config{
				Level:    LevelInfo,
				Output:   console,
				File:     path,
				Truncate: tt.truncate,
			})
			if err != nil {
				t.Fatalf("SetupWithFile() error = %v", err)
			}

			logger.Info().Str("file", "partners.csv").Msg("Processing file")
			logger.Debug().Msg("hidden debug")
			if err := closer.Close(); err != nil {
				t.Fatalf("Close() error = %v", err)
			}

			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			if got := strings.Contains(string(data), "previous run"); got != tt.keepOld {
				t.Errorf("previous content kept = %v, want %v", got, tt.keepOld)
			}
			if !strings.Contains(string(data), "Processing file") || strings.Contains(string(data), "hidden debug") {
				t.Errorf("unexpected log file content %q", data)
			}
			if !strings.Contains(console.String(), "partners.csv") {
				t.Errorf("console missing event: %q", console.String())
			}
		})
	}
}

func TestSetupWithFile_NoFile(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, closer, err := SetupWithFile(Config{Level: LevelInfo, Output: buf})
	if err != nil {
		t.Fatalf("SetupWithFile() error = %v", err)
	}
	logger.Info().Msg("console only")
	if err := closer.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if !strings.Contains(buf.String(), "console only") {
		t.Errorf("Expected console output, got %q", buf.String())
	}
}

func TestSetupWithFile_BadPath(t *testing.T) {
	_, _, err := SetupWithFile(Config{
		Level: LevelInfo,
		File:  filepath.Join(t.TempDir(), "missing", "dir", "vies.log"),
	})
	if err == nil {
		t.Error("Expected error for unwritable log path")
	}
}
