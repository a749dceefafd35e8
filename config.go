package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"burnin/burnin"
	"burnin/device"
)

const (
	flagBufferSize       = "buffer-size"
	flagSeed             = "seed"
	flagQueueDepth       = "queue-depth"
	flagParallel         = "parallel"
	flagSync             = "sync"
	flagAllowAnyMedia    = "allow-any-media"
	flagAllowAnyBlockDev = "allow-any-block-device"
	flagSkipChecks       = "i-know-what-im-doing-let-me-skip-sanity-checks"
	flagUI               = "ui"
	flagProgressInterval = "progress-interval"
	flagLogLevel         = "log-level"
	flagLogFormat        = "log-format"
	flagConfig           = "config"
)

// config is everything a run needs, merged from flags, BURNIN_* environment
// variables and burnin.yaml, in that order of precedence.
type config struct {
	// BufferSize 0 means the device's physical block size.
	BufferSize int
	Seed       uint64
	SeedSet    bool
	QueueDepth int
	Parallel   int
	Sync       bool
	Policy     device.CheckPolicy
	UI         bool
	Interval   time.Duration
	LogLevel   logrus.Level
	JSONLogs   bool
}

func addRunFlags(fs *pflag.FlagSet) {
	fs.String(flagBufferSize, "", "chunk size, e.g. 4096 or 64KiB (default: physical block size, else 8192)")
	fs.String(flagSeed, "", "garbage stream seed (default: random, shared by all devices)")
	fs.Int(flagQueueDepth, burnin.DefaultQueueDepth, "generated chunks allowed to wait for the writer")
	fs.Int(flagParallel, 1, "devices tested at once")
	fs.Bool(flagSync, false, "flush the device before reading back")
	fs.Bool(flagAllowAnyMedia, false, "test devices that are not rotational disks")
	fs.Bool(flagAllowAnyBlockDev, false, "test partitions and other block devices that are not whole disks")
	fs.Bool(flagSkipChecks, false, "skip every sanity check [DANGEROUS]")
	fs.Bool(flagUI, false, "full-screen progress display (single device only)")
	fs.Duration(flagProgressInterval, 10*time.Second, "how often progress is logged")
}

func addGlobalFlags(fs *pflag.FlagSet) {
	fs.String(flagLogLevel, "info", "panic|fatal|error|warn|info|debug|trace")
	fs.String(flagLogFormat, "text", "text|json")
	fs.String(flagConfig, "", "config file (default: burnin.yaml in ., $HOME/.burnin or /etc/burnin)")
}

func newViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}
	v.SetEnvPrefix("burnin")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if file := v.GetString(flagConfig); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("burnin")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.burnin")
		v.AddConfigPath("/etc/burnin")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", v.ConfigFileUsed(), err)
		}
	}
	return v, nil
}

func loadConfig(v *viper.Viper) (config, error) {
	cfg := config{
		QueueDepth: v.GetInt(flagQueueDepth),
		Parallel:   v.GetInt(flagParallel),
		Sync:       v.GetBool(flagSync),
		Policy: device.CheckPolicy{
			AllowAnyMedia:       v.GetBool(flagAllowAnyMedia),
			AllowAnyBlockDevice: v.GetBool(flagAllowAnyBlockDev),
			SkipChecks:          v.GetBool(flagSkipChecks),
		},
		UI:       v.GetBool(flagUI),
		Interval: v.GetDuration(flagProgressInterval),
	}

	if s := strings.TrimSpace(v.GetString(flagBufferSize)); s != "" {
		n, err := humanize.ParseBytes(s)
		if err != nil {
			return cfg, fmt.Errorf("invalid --%s %q: %w", flagBufferSize, s, err)
		}
		if n == 0 || n > 1<<30 {
			return cfg, fmt.Errorf("invalid --%s %q: must be between 1 byte and 1GiB", flagBufferSize, s)
		}
		cfg.BufferSize = int(n)
	}
	if s := strings.TrimSpace(v.GetString(flagSeed)); s != "" {
		n, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid --%s %q: %w", flagSeed, s, err)
		}
		cfg.Seed, cfg.SeedSet = n, true
	}
	if cfg.QueueDepth < 1 {
		return cfg, fmt.Errorf("invalid --%s %d: must be at least 1", flagQueueDepth, cfg.QueueDepth)
	}
	if cfg.Parallel < 1 {
		cfg.Parallel = 1
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}

	lvl, err := logrus.ParseLevel(v.GetString(flagLogLevel))
	if err != nil {
		return cfg, err
	}
	cfg.LogLevel = lvl
	switch f := strings.ToLower(v.GetString(flagLogFormat)); f {
	case "text", "":
	case "json":
		cfg.JSONLogs = true
	default:
		return cfg, fmt.Errorf("invalid --%s %q: want text or json", flagLogFormat, f)
	}
	return cfg, nil
}

func newLogger(cfg config, out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(cfg.LogLevel)
	if cfg.JSONLogs {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}
