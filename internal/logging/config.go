package logging

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	EnvLogLevel  = "NIXOS_INIT_LOG_LEVEL"
	EnvLogBypass = "NIXOS_INIT_LOG_BYPASS"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

// Config is the resolved logger setup for one process.
type Config struct {
	Level  zerolog.Level
	Bypass bool
	Out    io.Writer
	// Tag prefixes every message, e.g. "nixos-init" on /dev/kmsg.
	Tag string
}

var configureOnce sync.Once

// ConfigureRuntime installs the process logger writing printk-prefixed lines to out.
func ConfigureRuntime(out io.Writer, tag string) {
	Configure(ProfileRuntime, out, tag)
}

func ConfigureTests() {
	Configure(ProfileTest, os.Stderr, "")
}

func Configure(profile Profile, out io.Writer, tag string) {
	configureOnce.Do(func() {
		cfg := defaultConfig(profile)
		cfg.Out = out
		cfg.Tag = tag
		applyEnvOverrides(&cfg)
		log.Logger = New(cfg)
	})
}

// New builds a logger from cfg without touching the global logger.
func New(cfg Config) zerolog.Logger {
	if cfg.Bypass || cfg.Out == nil {
		return zerolog.Nop()
	}
	return zerolog.New(NewPrintkWriter(cfg.Out, cfg.Tag)).Level(cfg.Level)
}

func defaultConfig(profile Profile) Config {
	switch profile {
	case ProfileTest:
		return Config{Level: zerolog.DebugLevel}
	default:
		return Config{Level: zerolog.InfoLevel}
	}
}

func applyEnvOverrides(cfg *Config) {
	if lvl, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogBypass)); ok {
		cfg.Bypass = v
	}
}

// NewPrintkWriter renders events as "<N>[tag: ]message fields" so the kernel
// ring buffer and the journal can recover the severity.
func NewPrintkWriter(out io.Writer, tag string) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    true,
		PartsOrder: []string{zerolog.MessageFieldName},
		FormatPrepare: func(evt map[string]interface{}) error {
			level, _ := evt[zerolog.LevelFieldName].(string)
			msg := ""
			if m, ok := evt[zerolog.MessageFieldName]; ok && m != nil {
				msg = fmt.Sprint(m)
			}
			if tag != "" {
				msg = tag + ": " + msg
			}
			evt[zerolog.MessageFieldName] = fmt.Sprintf("<%d>%s", priority(level), msg)
			return nil
		},
	}
}

// priority maps zerolog levels onto syslog priorities.
func priority(level string) int {
	switch level {
	case zerolog.LevelPanicValue, zerolog.LevelFatalValue, zerolog.LevelErrorValue:
		return 3
	case zerolog.LevelWarnValue:
		return 4
	case zerolog.LevelInfoValue:
		return 6
	default:
		return 7
	}
}

// KernelWriter returns the kernel log device when it can be opened for
// writing, and stderr otherwise (containers usually lack /dev/kmsg).
func KernelWriter(kmsg string) io.Writer {
	f, err := os.OpenFile(kmsg, os.O_WRONLY, 0)
	if err != nil {
		return os.Stderr
	}
	return f
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
