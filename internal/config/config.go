package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	ScenePath   string        `mapstructure:"scene"`
	ScenesDir   string        `mapstructure:"scenesDir"`
	OutputVideo string        `mapstructure:"output"`
	OutputDir   string        `mapstructure:"outputDir"`
	Width       int           `mapstructure:"width"`
	Height      int           `mapstructure:"height"`
	Preset      string        `mapstructure:"preset"`
	Container   string        `mapstructure:"container"`
	Audio       AudioConfig   `mapstructure:"audio"`
	Capture     CaptureConfig `mapstructure:"capture"`
	Seed        int64         `mapstructure:"seed"`
	Quality     int           `mapstructure:"quality"`
	ShowStats   bool          `mapstructure:"stats"`
	Verbose     bool          `mapstructure:"verbose"`
}

type AudioConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	Path    string  `mapstructure:"path"`
	Dir     string  `mapstructure:"dir"`
	Gain    float64 `mapstructure:"gain"`
}

type CaptureConfig struct {
	MountRetries       int           `mapstructure:"mountRetries"`
	MountInterval      time.Duration `mapstructure:"mountInterval"`
	EncoderInitTimeout time.Duration `mapstructure:"encoderInitTimeout"`
	BenchmarkLog       string        `mapstructure:"benchmarkLog"`
}

const (
	FileName  = "scene2video"
	EnvPrefix = "S2V"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("scene", "")
	v.SetDefault("scenesDir", "input/scenes")
	v.SetDefault("output", "")
	v.SetDefault("outputDir", "output")
	v.SetDefault("preset", "")
	v.SetDefault("seed", 0)
	v.SetDefault("quality", 0)
	v.SetDefault("stats", false)
	v.SetDefault("verbose", false)
	v.SetDefault("width", 1280)
	v.SetDefault("height", 720)
	v.SetDefault("container", "mp4")

	v.SetDefault("audio.enabled", true)
	v.SetDefault("audio.path", "")
	v.SetDefault("audio.dir", "input/audio")
	v.SetDefault("audio.gain", 0.3)

	v.SetDefault("capture.mountRetries", 10)
	v.SetDefault("capture.mountInterval", "100ms")
	v.SetDefault("capture.encoderInitTimeout", "10s")
	v.SetDefault("capture.benchmarkLog", "benchmark.log")
}

// Load reads scene2video.yaml from configDir (or the working directory when
// empty) on top of defaults; S2V_* environment variables override both. A
// missing file is not an error.
func Load(configDir string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	if configDir != "" {
		v.AddConfigPath(configDir)
	} else {
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}

	cfg.ApplyPreset()
	return &cfg, nil
}

// ApplyPreset overrides the frame size for a named aspect preset.
func (c *Config) ApplyPreset() {
	switch c.Preset {
	case "16:9":
		c.Width, c.Height = 1280, 720
	case "9:16":
		c.Width, c.Height = 720, 1280
	case "4:5":
		c.Width, c.Height = 1080, 1350
	}
}
