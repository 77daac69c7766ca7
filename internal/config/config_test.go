package config_test

import (
	"channel-snapshot/internal/config"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestEnvOrDefaultValue(t *testing.T) {
	t.Setenv("TEST_INT", "3")
	t.Setenv("TEST_BOOL", "false")
	t.Setenv("TEST_DURATION", "5s")
	t.Setenv("TEST_BROKEN", "five")

	if got := config.EnvOrDefaultValue("TEST_INT", 1); got != 3 {
		t.Errorf("expected 3, got %d", got)
	}
	if got := config.EnvOrDefaultValue("TEST_BOOL", true); got {
		t.Errorf("expected false")
	}
	if got := config.EnvOrDefaultValue("TEST_DURATION", time.Second); got != 5*time.Second {
		t.Errorf("expected 5s, got %s", got)
	}
	if got := config.EnvOrDefaultValue("TEST_BROKEN", 7); got != 7 {
		t.Errorf("expected fallback 7, got %d", got)
	}
	if got := config.EnvOrDefaultValue("TEST_MISSING", "x"); got != "x" {
		t.Errorf("expected x, got %s", got)
	}
}

func TestParseReplacements(t *testing.T) {
	got, err := config.ParseReplacements(".a=<b>x</b>; .b = ;")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(map[string]string{".a": "<b>x</b>", ".b": " "}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	if _, err := config.ParseReplacements("no-separator"); err == nil {
		t.Errorf("expected error")
	}
}

func TestBindCaptureFlags(t *testing.T) {
	flags := flag.NewFlagSet("test", flag.ContinueOnError)
	finish := config.BindCaptureFlags(flags)

	if err := flags.Parse([]string{"-max-concurrent-sessions", "3", "-remove", ".x, .y", "-blacklist", "a,b", "-headless=false"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c, err := finish()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if diff := cmp.Diff([]string{".x", ".y"}, c.Settings.ElementsToRemove); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a", "b"}, c.Settings.BlacklistURLPatterns); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if c.Pool.MaxOpenedBrowsers != 3 || c.Pool.Headless {
		t.Errorf("expected pool to follow settings, got %+v", c.Pool)
	}

	flags = flag.NewFlagSet("test", flag.ContinueOnError)
	finish = config.BindCaptureFlags(flags)
	if err := flags.Parse([]string{"-max-concurrent-sessions", "0"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := finish(); err == nil {
		t.Errorf("expected non-positive session cap to be rejected")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := config.LoadDotEnv(dir); err != nil {
		t.Fatalf("expected missing .env to be ignored, got %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("CHANNEL_SNAPSHOT_TEST=loaded\n"), 0644); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("CHANNEL_SNAPSHOT_TEST") })

	if err := config.LoadDotEnv(dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := os.Getenv("CHANNEL_SNAPSHOT_TEST"); got != "loaded" {
		t.Errorf("expected loaded, got %q", got)
	}
}

func TestLoadDotEnvMalformed(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("CHANNEL_SNAPSHOT_BROKEN=\"unterminated\n"), 0644); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("CHANNEL_SNAPSHOT_BROKEN") })

	if err := config.LoadDotEnv(dir); err == nil {
		t.Errorf("expected malformed .env to be reported")
	}
}
