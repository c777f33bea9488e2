package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Sternrassler/vies-vat-checker/internal/app"
	"github.com/Sternrassler/vies-vat-checker/internal/testutil"
)

func writeConfig(t *testing.T, mock *testutil.MockVIES, extra string) (string, string) {
	t.Helper()
	root := t.TempDir()
	in := filepath.Join(root, "in")
	out := filepath.Join(root, "out")
	if err := os.MkdirAll(in, 0o755); err != nil {
		t.Fatal(err)
	}

	cfg := fmt.Sprintf(`vies:
  check_vat_endpoint: %s
  status_endpoint: %s
application:
  data_source_dir: %s
  data_dest_dir: %s
  report_format: csv
throttle:
  standard_delay: 1ms
  long_delay: 2ms
logging:
  level: debug
%s`, mock.CheckVATURL(), mock.StatusURL(), in, out, extra)

	path := filepath.Join(root, "config.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	return path, root
}

func TestRun_OK(t *testing.T) {
	mock := testutil.NewMockVIES()
	defer mock.Close()

	path, root := writeConfig(t, mock, "")
	input := "description;country;vat\nAcme;IT;12345678901\n"
	if err := os.WriteFile(filepath.Join(root, "in", "partners.csv"), []byte(input), 0o644); err != nil {
		t.Fatal(err)
	}

	var stderr bytes.Buffer
	if code := run(context.Background(), []string{"-c", path}, &stderr); code != app.ExitOK {
		t.Fatalf("Expected exit code %d, got %d: %s", app.ExitOK, code, stderr.String())
	}

	if _, err := os.Stat(filepath.Join(root, "out", "partners.csv")); err != nil {
		t.Errorf("Expected report to be written: %v", err)
	}
	if !strings.Contains(stderr.String(), "Run complete") {
		t.Errorf("Expected run summary in log output")
	}
}

func TestRun_MissingConfig(t *testing.T) {
	var stderr bytes.Buffer
	code := run(context.Background(), []string{"-c", filepath.Join(t.TempDir(), "none.yaml")}, &stderr)
	if code != app.ExitConfig {
		t.Errorf("Expected exit code %d, got %d", app.ExitConfig, code)
	}
}

func TestRun_BadFlag(t *testing.T) {
	var stderr bytes.Buffer
	if code := run(context.Background(), []string{"-nope"}, &stderr); code != app.ExitConfig {
		t.Errorf("Expected exit code %d, got %d", app.ExitConfig, code)
	}
}

func TestRun_ServiceUnavailable(t *testing.T) {
	mock := testutil.NewMockVIES()
	defer mock.Close()
	mock.SetStatusResponse(testutil.NewStatusResponse(false, nil))

	path, _ := writeConfig(t, mock, "")

	var stderr bytes.Buffer
	if code := run(context.Background(), []string{"-c", path}, &stderr); code != app.ExitPreflight {
		t.Errorf("Expected exit code %d, got %d", app.ExitPreflight, code)
	}
}

func TestRun_LogFile(t *testing.T) {
	mock := testutil.NewMockVIES()
	defer mock.Close()

	logPath := filepath.Join(t.TempDir(), "run.log")
	path, _ := writeConfig(t, mock, fmt.Sprintf("  file: %s\n  truncate: true\n", logPath))

	var stderr bytes.Buffer
	if code := run(context.Background(), []string{"-c", path}, &stderr); code != app.ExitOK {
		t.Fatalf("Expected exit code %d, got %d", app.ExitOK, code)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Expected log file: %v", err)
	}
	if !strings.Contains(string(data), "VIES service available") {
		t.Errorf("Expected pre-flight result in log file")
	}
}
