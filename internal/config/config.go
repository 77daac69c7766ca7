package config

import (
	"errors"
	"flag"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"channel-snapshot/internal/capture"

	"github.com/joho/godotenv"
	"golang.org/x/xerrors"
)

// LoadDotEnv loads <rootPath>/.env into the environment. Variables already set win, and a
// missing file is not an error.
func LoadDotEnv(rootPath string) error {
	if rootPath == "" {
		rootPath = "."
	}
	if err := godotenv.Load(filepath.Join(rootPath, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return xerrors.Errorf("failed to load .env: %w", err)
	}
	return nil
}

func EnvOrDefaultValue[T any](key string, defaultValue T) T {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}

	switch any(defaultValue).(type) {
	case string:
		return any(value).(T)
	case int:
		if intValue, err := strconv.Atoi(value); err == nil {
			return any(intValue).(T)
		}
	case int64:
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return any(intValue).(T)
		}
	case uint:
		if uintValue, err := strconv.ParseUint(value, 10, 0); err == nil {
			return any(uint(uintValue)).(T)
		}
	case float64:
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return any(floatValue).(T)
		}
	case bool:
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return any(boolValue).(T)
		}
	case time.Duration:
		if durationValue, err := time.ParseDuration(value); err == nil {
			return any(durationValue).(T)
		}
	}

	return defaultValue
}

// SplitList splits a comma separated flag value, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// ParseReplacements reads "selector=html" pairs separated by ";".
func ParseReplacements(s string) (map[string]string, error) {
	out := map[string]string{}
	for _, pair := range strings.Split(s, ";") {
		if strings.TrimSpace(pair) == "" {
			continue
		}
		selector, html, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(selector) == "" {
			return nil, xerrors.Errorf("invalid replacement: %q", pair)
		}
		out[strings.TrimSpace(selector)] = html
	}
	return out, nil
}

// Capture holds the options shared by every binary that drives a browser.
type Capture struct {
	Settings  capture.Settings
	Pool      capture.PlaywrightConfig
	Install   bool
	Verbosity int
}

// BindCaptureFlags registers the capture flags with environment defaults. The returned
// function must be called after flags are parsed.
func BindCaptureFlags(flags *flag.FlagSet) func() (Capture, error) {
	defaults := capture.DefaultSettings()
	pool := capture.DefaultPlaywrightConfig()

	var c Capture
	var blacklist string
	var replacements string
	var remove string

	flags.BoolVar(&c.Settings.Headless, "headless", EnvOrDefaultValue("HEADLESS", defaults.Headless), "Run the browser without a window")
	flags.IntVar(&c.Settings.MaxConcurrentSessions, "max-concurrent-sessions", EnvOrDefaultValue("MAX_CONCURRENT_SESSIONS", defaults.MaxConcurrentSessions), "Maximum number of browsers open at once")
	flags.StringVar(&c.Settings.RootPath, "root-path", EnvOrDefaultValue("ROOT_PATH", ""), "Directory holding the playwright driver")
	flags.StringVar(&blacklist, "blacklist", EnvOrDefaultValue("BLACKLIST_URLS", strings.Join(defaults.BlacklistURLPatterns, ",")), "Comma-separated URL patterns whose requests are aborted")
	flags.StringVar(&replacements, "replace", EnvOrDefaultValue("CONTENT_REPLACEMENTS", ""), "Semicolon-separated selector=html pairs whose inner HTML is replaced before capture")
	flags.StringVar(&remove, "remove", EnvOrDefaultValue("ELEMENTS_TO_REMOVE", ""), "Comma-separated selectors removed before capture")
	flags.StringVar(&c.Pool.Engine, "engine", EnvOrDefaultValue("BROWSER_ENGINE", pool.Engine), "Browser engine (chromium, firefox or webkit)")
	flags.StringVar(&c.Pool.Device, "device", EnvOrDefaultValue("DEVICE", pool.Device), "Device profile to emulate")
	flags.DurationVar(&c.Pool.IdleClose, "idle-close", EnvOrDefaultValue("IDLE_CLOSE", pool.IdleClose), "Stop the driver after it has been idle this long")
	flags.DurationVar(&c.Pool.Timeout, "timeout", EnvOrDefaultValue("TIMEOUT", pool.Timeout), "Navigation timeout")
	flags.UintVar(&c.Pool.LaunchRetries, "launch-retries", EnvOrDefaultValue("LAUNCH_RETRIES", pool.LaunchRetries), "Retries for a failed browser launch")
	flags.DurationVar(&c.Pool.LaunchBackoff, "launch-backoff", EnvOrDefaultValue("LAUNCH_BACKOFF", pool.LaunchBackoff), "Base delay between browser launch retries")
	flags.StringVar(&c.Pool.ChromeDevtoolsProtocolURL, "chrome-devtools-protocol-url", EnvOrDefaultValue("CHROME_DEVTOOLS_PROTOCOL_URL", ""), "Connect to existing browser via Chrome DevTools Protocol URL (e.g., http://localhost:9222)")
	flags.BoolVar(&c.Install, "install", EnvOrDefaultValue("INSTALL", false), "Install the playwright driver and browser before starting")
	flags.IntVar(&c.Verbosity, "v", EnvOrDefaultValue("VERBOSITY", 0), "Log verbosity")

	return func() (Capture, error) {
		c.Settings.BlacklistURLPatterns = SplitList(blacklist)
		c.Settings.ElementsToRemove = SplitList(remove)
		r, err := ParseReplacements(replacements)
		if err != nil {
			return Capture{}, err
		}
		c.Settings.ContentReplacements = r

		c.Pool = c.Pool.WithSettings(c.Settings)

		if err := c.Validate(); err != nil {
			return Capture{}, err
		}
		return c, nil
	}
}

func (c Capture) Validate() error {
	if c.Settings.MaxConcurrentSessions <= 0 {
		return xerrors.Errorf("max concurrent sessions must be positive, got %d", c.Settings.MaxConcurrentSessions)
	}
	if c.Pool.Timeout < 0 {
		return xerrors.Errorf("timeout must not be negative, got %s", c.Pool.Timeout)
	}
	return nil
}
