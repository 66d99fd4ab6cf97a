package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/ini.v1"
)

// EnvPrefix is the prefix of environment overrides, e.g. SCROLLCAP_MAX_PAGES
const EnvPrefix = "SCROLLCAP"

// Load reads a config file, picking the loader by extension. An empty path
// yields defaults plus environment overrides.
func Load(path string) (Config, error) {
	var (
		cfg Config
		err error
	)

	if strings.EqualFold(filepath.Ext(path), ".ini") {
		cfg, err = LoadFromINI(path)
	} else {
		cfg, err = loadWithViper(path)
	}
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFromINI loads configuration from a Settings.ini style file
func LoadFromINI(path string) (Config, error) {
	file, err := ini.Load(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to load config file: %w", err)
	}

	config := NewDefaultConfig()
	section := file.Section("Scroll")

	// Device
	config.ADBPath = section.Key("adbPath").MustString(config.ADBPath)
	config.Address = section.Key("address").MustString(config.Address)
	if host := section.Key("adbHost").String(); host != "" {
		port := section.Key("adbPort").MustString("5555")
		config.Address = host + ":" + port
	}
	config.CommandTimeout = seconds(section.Key("commandTimeout").MustFloat64(config.CommandTimeout.Seconds()))

	// Loop
	mode, err := ParseMode(section.Key("mode").MustString(string(config.Mode)))
	if err != nil {
		return Config{}, err
	}
	config.Mode = mode
	config.MaxPages = section.Key("totalPages").MustInt(config.MaxPages)
	config.Swipe.StartX = section.Key("swipeStartX").MustInt(config.Swipe.StartX)
	config.Swipe.StartY = section.Key("swipeStartY").MustInt(config.Swipe.StartY)
	config.Swipe.EndX = section.Key("swipeEndX").MustInt(config.Swipe.EndX)
	config.Swipe.EndY = section.Key("swipeEndY").MustInt(config.Swipe.EndY)
	config.Swipe.DurationMs = section.Key("swipeDurationMs").MustInt(config.Swipe.DurationMs)
	config.DelayMin = seconds(section.Key("sleepMin").MustFloat64(config.DelayMin.Seconds()))
	config.DelayMax = seconds(section.Key("sleepMax").MustFloat64(config.DelayMax.Seconds()))
	config.SettleDelay = seconds(section.Key("settleDelay").MustFloat64(config.SettleDelay.Seconds()))
	config.StartDelay = seconds(section.Key("startDelay").MustFloat64(config.StartDelay.Seconds()))
	config.ImageThreshold = section.Key("imageThreshold").MustInt(config.ImageThreshold)
	config.TextThreshold = section.Key("textThreshold").MustInt(config.TextThreshold)

	// Output
	config.OutputDir = section.Key("outputDir").MustString(config.OutputDir)
	config.TextFile = section.Key("textFile").MustString(config.TextFile)
	config.FilePrefix = section.Key("filePrefix").MustString(config.FilePrefix)
	config.Timestamped = section.Key("timestamped").MustBool(config.Timestamped)
	config.KeepDumps = section.Key("keepDumps").MustBool(config.KeepDumps)
	config.DatabasePath = section.Key("database").MustString(config.DatabasePath)

	// Logging
	logSection := file.Section("Log")
	config.Log.Level = logSection.Key("level").MustString(config.Log.Level)
	config.Log.Format = logSection.Key("format").MustString(config.Log.Format)
	config.Log.File = logSection.Key("file").MustString(config.Log.File)
	config.Log.MaxSizeMB = logSection.Key("maxSizeMB").MustInt(config.Log.MaxSizeMB)
	config.Log.MaxBackups = logSection.Key("maxBackups").MustInt(config.Log.MaxBackups)
	config.Log.MaxAgeDays = logSection.Key("maxAgeDays").MustInt(config.Log.MaxAgeDays)
	config.Log.Compress = logSection.Key("compress").MustBool(config.Log.Compress)

	return config, nil
}

// SaveToINI saves configuration to an INI file
func SaveToINI(config Config, path string) error {
	file := ini.Empty()
	section := file.Section("Scroll")

	// Device
	section.Key("adbPath").SetValue(config.ADBPath)
	section.Key("address").SetValue(config.Address)
	section.Key("commandTimeout").SetValue(formatSeconds(config.CommandTimeout))

	// Loop
	section.Key("mode").SetValue(string(config.Mode))
	section.Key("totalPages").SetValue(strconv.Itoa(config.MaxPages))
	section.Key("swipeStartX").SetValue(strconv.Itoa(config.Swipe.StartX))
	section.Key("swipeStartY").SetValue(strconv.Itoa(config.Swipe.StartY))
	section.Key("swipeEndX").SetValue(strconv.Itoa(config.Swipe.EndX))
	section.Key("swipeEndY").SetValue(strconv.Itoa(config.Swipe.EndY))
	section.Key("swipeDurationMs").SetValue(strconv.Itoa(config.Swipe.DurationMs))
	section.Key("sleepMin").SetValue(formatSeconds(config.DelayMin))
	section.Key("sleepMax").SetValue(formatSeconds(config.DelayMax))
	section.Key("settleDelay").SetValue(formatSeconds(config.SettleDelay))
	section.Key("startDelay").SetValue(formatSeconds(config.StartDelay))
	section.Key("imageThreshold").SetValue(strconv.Itoa(config.ImageThreshold))
	section.Key("textThreshold").SetValue(strconv.Itoa(config.TextThreshold))

	// Output
	section.Key("outputDir").SetValue(config.OutputDir)
	section.Key("textFile").SetValue(config.TextFile)
	section.Key("filePrefix").SetValue(config.FilePrefix)
	section.Key("timestamped").SetValue(strconv.FormatBool(config.Timestamped))
	section.Key("keepDumps").SetValue(strconv.FormatBool(config.KeepDumps))
	section.Key("database").SetValue(config.DatabasePath)

	// Logging
	logSection := file.Section("Log")
	logSection.Key("level").SetValue(config.Log.Level)
	logSection.Key("format").SetValue(config.Log.Format)
	logSection.Key("file").SetValue(config.Log.File)
	logSection.Key("maxSizeMB").SetValue(strconv.Itoa(config.Log.MaxSizeMB))
	logSection.Key("maxBackups").SetValue(strconv.Itoa(config.Log.MaxBackups))
	logSection.Key("maxAgeDays").SetValue(strconv.Itoa(config.Log.MaxAgeDays))
	logSection.Key("compress").SetValue(strconv.FormatBool(config.Log.Compress))

	return file.SaveTo(path)
}

// loadWithViper reads YAML/JSON/TOML files and SCROLLCAP_* environment variables.
func loadWithViper(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, NewDefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config, viper.DecodeHook(durationHook())); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return config, nil
}

// durationHook decodes bare numbers (and numeric strings from the environment)
// as seconds, matching the INI keys; anything else goes through time.ParseDuration.
func durationHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		secondsToDurationHook,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

func secondsToDurationHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if to != reflect.TypeOf(time.Duration(0)) || from == to {
		return data, nil
	}

	switch v := data.(type) {
	case int:
		return seconds(float64(v)), nil
	case int64:
		return seconds(float64(v)), nil
	case uint64:
		return seconds(float64(v)), nil
	case float64:
		return seconds(v), nil
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return seconds(f), nil
		}
	}
	return data, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("adb_path", d.ADBPath)
	v.SetDefault("address", d.Address)
	v.SetDefault("command_timeout", d.CommandTimeout)
	v.SetDefault("mode", string(d.Mode))
	v.SetDefault("max_pages", d.MaxPages)
	v.SetDefault("swipe.start_x", d.Swipe.StartX)
	v.SetDefault("swipe.start_y", d.Swipe.StartY)
	v.SetDefault("swipe.end_x", d.Swipe.EndX)
	v.SetDefault("swipe.end_y", d.Swipe.EndY)
	v.SetDefault("swipe.duration_ms", d.Swipe.DurationMs)
	v.SetDefault("delay_min", d.DelayMin)
	v.SetDefault("delay_max", d.DelayMax)
	v.SetDefault("settle_delay", d.SettleDelay)
	v.SetDefault("start_delay", d.StartDelay)
	v.SetDefault("image_threshold", d.ImageThreshold)
	v.SetDefault("text_threshold", d.TextThreshold)
	v.SetDefault("output_dir", d.OutputDir)
	v.SetDefault("text_file", d.TextFile)
	v.SetDefault("file_prefix", d.FilePrefix)
	v.SetDefault("timestamped", d.Timestamped)
	v.SetDefault("keep_dumps", d.KeepDumps)
	v.SetDefault("database", d.DatabasePath)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("log.compress", d.Log.Compress)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
