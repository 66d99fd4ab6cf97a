package config

import (
	"errors"
	"fmt"
	"net"
	"time"

	"jordanella.com/scrollcap/internal/adb"
	"jordanella.com/scrollcap/internal/logging"
)

// ErrInvalid is wrapped by every validation failure
var ErrInvalid = errors.New("invalid configuration")

// Mode selects the capture strategy
type Mode string

const (
	ModeImage Mode = "image"
	ModeText  Mode = "text"
)

// ParseMode converts a string to a Mode
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeImage, ModeText:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: unknown mode %q (want image or text)", ErrInvalid, s)
	}
}

// Swipe is the scroll gesture geometry
type Swipe struct {
	StartX     int `mapstructure:"start_x" yaml:"start_x"`
	StartY     int `mapstructure:"start_y" yaml:"start_y"`
	EndX       int `mapstructure:"end_x" yaml:"end_x"`
	EndY       int `mapstructure:"end_y" yaml:"end_y"`
	DurationMs int `mapstructure:"duration_ms" yaml:"duration_ms"`
}

// Params converts the geometry to the device gesture
func (s Swipe) Params() adb.SwipeParams {
	return adb.SwipeParams{X1: s.StartX, Y1: s.StartY, X2: s.EndX, Y2: s.EndY, Duration: s.DurationMs}
}

// LogConfig configures the log backend
type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// Options converts to the logging package options
func (l LogConfig) Options() logging.Options {
	return logging.Options{
		Level:      logging.LogLevel(l.Level),
		Format:     l.Format,
		File:       l.File,
		MaxSizeMB:  l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
		MaxAgeDays: l.MaxAgeDays,
		Compress:   l.Compress,
	}
}

// Config holds everything a capture session needs. Build it once, then treat it as read-only.
type Config struct {
	// Device
	ADBPath        string        `mapstructure:"adb_path" yaml:"adb_path"`
	Address        string        `mapstructure:"address" yaml:"address"`
	CommandTimeout time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"`

	// Loop
	Mode           Mode          `mapstructure:"mode" yaml:"mode"`
	MaxPages       int           `mapstructure:"max_pages" yaml:"max_pages"`
	Swipe          Swipe         `mapstructure:"swipe" yaml:"swipe"`
	DelayMin       time.Duration `mapstructure:"delay_min" yaml:"delay_min"`
	DelayMax       time.Duration `mapstructure:"delay_max" yaml:"delay_max"`
	SettleDelay    time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	StartDelay     time.Duration `mapstructure:"start_delay" yaml:"start_delay"`
	ImageThreshold int           `mapstructure:"image_threshold" yaml:"image_threshold"`
	TextThreshold  int           `mapstructure:"text_threshold" yaml:"text_threshold"`

	// Output
	OutputDir    string `mapstructure:"output_dir" yaml:"output_dir"`
	TextFile     string `mapstructure:"text_file" yaml:"text_file"`
	FilePrefix   string `mapstructure:"file_prefix" yaml:"file_prefix"`
	Timestamped  bool   `mapstructure:"timestamped" yaml:"timestamped"`
	KeepDumps    bool   `mapstructure:"keep_dumps" yaml:"keep_dumps"`
	DatabasePath string `mapstructure:"database" yaml:"database"`

	Log LogConfig `mapstructure:"log" yaml:"log"`
}

// NewDefaultConfig creates a config with default values
func NewDefaultConfig() Config {
	return Config{
		ADBPath:        "adb",
		Address:        "127.0.0.1:5555",
		CommandTimeout: 30 * time.Second,
		Mode:           ModeImage,
		MaxPages:       100,
		Swipe: Swipe{
			StartX:     540,
			StartY:     1500,
			EndX:       540,
			EndY:       500,
			DurationMs: 800,
		},
		DelayMin:       2 * time.Second,
		DelayMax:       4 * time.Second,
		SettleDelay:    2 * time.Second,
		StartDelay:     3 * time.Second,
		ImageThreshold: 2,
		TextThreshold:  3,
		OutputDir:      "./screenshots",
		TextFile:       "texts.txt",
		FilePrefix:     "page",
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Threshold returns the no-progress threshold for the configured mode
func (c Config) Threshold() int {
	if c.Mode == ModeText {
		return c.TextThreshold
	}
	return c.ImageThreshold
}

// Validate checks the configuration for values the session cannot run with
func (c Config) Validate() error {
	var errs []error

	if _, err := ParseMode(string(c.Mode)); err != nil {
		errs = append(errs, err)
	}
	if c.Address == "" {
		errs = append(errs, fmt.Errorf("%w: device address is required", ErrInvalid))
	} else if _, _, err := net.SplitHostPort(c.Address); err != nil {
		errs = append(errs, fmt.Errorf("%w: device address %q must be host:port", ErrInvalid, c.Address))
	}
	if c.ADBPath == "" {
		errs = append(errs, fmt.Errorf("%w: adb path is required", ErrInvalid))
	}
	if c.MaxPages < 1 {
		errs = append(errs, fmt.Errorf("%w: max pages must be at least 1, got %d", ErrInvalid, c.MaxPages))
	}
	if c.Swipe.DurationMs <= 0 {
		errs = append(errs, fmt.Errorf("%w: swipe duration must be positive", ErrInvalid))
	}
	if c.DelayMin < 0 || c.DelayMax < c.DelayMin {
		errs = append(errs, fmt.Errorf("%w: delay bounds must satisfy 0 <= min <= max, got [%v, %v]", ErrInvalid, c.DelayMin, c.DelayMax))
	}
	if c.SettleDelay < 0 || c.StartDelay < 0 {
		errs = append(errs, fmt.Errorf("%w: settle and start delays must not be negative", ErrInvalid))
	}
	if c.ImageThreshold < 1 || c.TextThreshold < 1 {
		errs = append(errs, fmt.Errorf("%w: no-progress thresholds must be at least 1", ErrInvalid))
	}
	if c.OutputDir == "" {
		errs = append(errs, fmt.Errorf("%w: output directory is required", ErrInvalid))
	}
	if c.Mode == ModeText && c.TextFile == "" {
		errs = append(errs, fmt.Errorf("%w: text file name is required in text mode", ErrInvalid))
	}

	return errors.Join(errs...)
}
