// Package config defines the dolly configuration file: which motor and color sensor models to
// drive, how directives are interpreted, which transports to run and where logs go.
package config

import (
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.viam.com/utils"

	ev3sensor "go.viam.com/dollygrip/components/colorsensor/ev3"
	fakesensor "go.viam.com/dollygrip/components/colorsensor/fake"
	"go.viam.com/dollygrip/components/ev3dev"
	"go.viam.com/dollygrip/components/motor"
	ev3motor "go.viam.com/dollygrip/components/motor/ev3"
	fakemotor "go.viam.com/dollygrip/components/motor/fake"
	"go.viam.com/dollygrip/components/motor/feetech"
	"go.viam.com/dollygrip/logging"
	"go.viam.com/dollygrip/services/dolly"
	"go.viam.com/dollygrip/transport/mqtt"
	"go.viam.com/dollygrip/transport/mqttclient"
	"go.viam.com/dollygrip/transport/rest"
)

// Model names shared by motors, color sensors and indicators.
const (
	ModelFake    = "fake"
	ModelEV3     = "ev3"
	ModelFeetech = "feetech"
	ModelLog     = "log"
	ModelLED     = "led"
)

type validator interface {
	Validate(path string) error
}

var (
	motorModels = map[string]func() validator{
		ModelFake:    func() validator { return &fakemotor.Config{} },
		ModelEV3:     func() validator { return &ev3motor.Config{} },
		ModelFeetech: func() validator { return &feetech.Config{} },
	}
	sensorModels = map[string]func() validator{
		ModelFake: func() validator { return &fakesensor.Config{} },
		ModelEV3:  func() validator { return &ev3sensor.Config{} },
	}
)

// Config is the whole dolly configuration.
type Config struct {
	ConfigFilePath string `json:"-"`

	Motors      map[motor.ID]*Component `json:"motors,omitempty"`
	ColorSensor *Component              `json:"color_sensor,omitempty"`
	Indicator   IndicatorConfig         `json:"indicator,omitempty"`
	Dispatch    DispatchConfig          `json:"dispatch,omitempty"`
	// QueueSize bounds how many directives may wait for the dispatcher.
	QueueSize int `json:"queue_size,omitempty"`

	MQTT   *mqttclient.Config `json:"mqtt,omitempty"`
	Broker *mqtt.Config       `json:"broker,omitempty"`
	HTTP   *rest.Config       `json:"http,omitempty"`

	Log LogConfig `json:"log,omitempty"`
}

// Component selects a model and holds its model specific attributes.
type Component struct {
	Model      string                 `json:"model"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`

	// ConvertedAttributes is the model's own config, filled in by Ensure.
	ConvertedAttributes interface{} `json:"-"`
}

func (c *Component) convert(path string, models map[string]func() validator) error {
	if c.Model == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "model")
	}
	newConfig, ok := models[c.Model]
	if !ok {
		return utils.NewConfigValidationError(path, errors.Errorf("unknown model %q", c.Model))
	}
	converted := newConfig()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.TextUnmarshallerHookFunc(),
		Result:           converted,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(c.Attributes); err != nil {
		return utils.NewConfigValidationError(path, errors.Wrap(err, "decoding attributes"))
	}
	if err := converted.Validate(path + ".attributes"); err != nil {
		return err
	}
	c.ConvertedAttributes = converted
	return nil
}

// IndicatorConfig selects how connection state is shown.
type IndicatorConfig struct {
	// Model is "log" (default) or "led".
	Model string `json:"model,omitempty"`
	// LEDs names brick light channels such as "green:left".
	LEDs []string `json:"leds,omitempty"`
}

// DispatchConfig tunes how directives become motion. Durations use time.ParseDuration syntax.
type DispatchConfig struct {
	RotationsPerDegree float64 `json:"rotations_per_degree,omitempty"`
	PitchSpeedPct      float64 `json:"pitch_speed_pct,omitempty"`
	// TargetTimeout bounds a targeted move; "0s" waits forever.
	TargetTimeout string `json:"target_timeout,omitempty"`
	PollInterval  string `json:"poll_interval,omitempty"`
}

// Dolly converts the section into a dispatcher config, filling in defaults.
func (dc *DispatchConfig) Dolly(path string) (dolly.Config, error) {
	cfg := dolly.DefaultConfig()
	if dc.RotationsPerDegree != 0 {
		cfg.RotationsPerDegree = dc.RotationsPerDegree
	}
	if dc.PitchSpeedPct != 0 {
		cfg.PitchSpeedPct = dc.PitchSpeedPct
	}
	for _, d := range []struct {
		name string
		raw  string
		out  *time.Duration
	}{
		{"target_timeout", dc.TargetTimeout, &cfg.TargetTimeout},
		{"poll_interval", dc.PollInterval, &cfg.PollInterval},
	} {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return dolly.Config{}, utils.NewConfigValidationError(fmt.Sprintf("%s.%s", path, d.name), err)
		}
		*d.out = parsed
	}
	if err := cfg.Validate(path); err != nil {
		return dolly.Config{}, err
	}
	return cfg, nil
}

// LogConfig controls the process logger.
type LogConfig struct {
	// Level is one of debug, info, warn or error.
	Level string         `json:"level,omitempty"`
	File  *FileLogConfig `json:"file,omitempty"`
}

// FileLogConfig adds a size-rotated log file next to stdout.
type FileLogConfig struct {
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
	Compress   bool   `json:"compress,omitempty"`
}

// FileConfig returns the appender config, defaulting to 10MB files kept for a week.
func (fc *FileLogConfig) FileConfig() logging.FileConfig {
	out := logging.FileConfig{
		Filename:   fc.Path,
		MaxSizeMB:  fc.MaxSizeMB,
		MaxBackups: fc.MaxBackups,
		MaxAgeDays: fc.MaxAgeDays,
		Compress:   fc.Compress,
	}
	if out.MaxSizeMB <= 0 {
		out.MaxSizeMB = 10
	}
	if out.MaxBackups <= 0 {
		out.MaxBackups = 3
	}
	if out.MaxAgeDays <= 0 {
		out.MaxAgeDays = 7
	}
	return out
}

// Validate checks the section.
func (lc *LogConfig) Validate(path string) error {
	if lc.Level != "" {
		if _, err := logging.LevelFromString(lc.Level); err != nil {
			return utils.NewConfigValidationError(path+".level", err)
		}
	}
	if lc.File != nil && lc.File.Path == "" {
		return utils.NewConfigValidationFieldRequiredError(path+".file", "path")
	}
	return nil
}

// ParsedLevel returns the configured level, INFO when unset.
func (lc *LogConfig) ParsedLevel() logging.Level {
	if lc.Level == "" {
		return logging.INFO
	}
	level, err := logging.LevelFromString(lc.Level)
	if err != nil {
		return logging.INFO
	}
	return level
}

// Ensure fills in defaults and validates every section. Missing motors and a missing color
// sensor default to the fake models.
func (c *Config) Ensure() error {
	if c.Motors == nil {
		c.Motors = map[motor.ID]*Component{}
	}
	for id := range c.Motors {
		if !lo.Contains(motor.AllIDs, id) {
			return utils.NewConfigValidationError("motors", errors.Errorf("unknown motor %q, expected one of %v", id, motor.AllIDs))
		}
	}
	for _, id := range motor.AllIDs {
		if c.Motors[id] == nil {
			c.Motors[id] = &Component{Model: ModelFake}
		}
		if err := c.Motors[id].convert(fmt.Sprintf("motors.%s", id), motorModels); err != nil {
			return err
		}
	}

	if c.ColorSensor == nil {
		c.ColorSensor = &Component{Model: ModelFake}
	}
	if err := c.ColorSensor.convert("color_sensor", sensorModels); err != nil {
		return err
	}

	switch c.Indicator.Model {
	case "":
		c.Indicator.Model = ModelLog
	case ModelLog, ModelLED:
	default:
		return utils.NewConfigValidationError("indicator", errors.Errorf("unknown model %q", c.Indicator.Model))
	}
	if unknown, _ := lo.Difference(c.Indicator.LEDs, ev3dev.LightNames()); len(unknown) > 0 {
		return utils.NewConfigValidationError("indicator.leds",
			errors.Errorf("unknown lights %v, expected some of %v", unknown, ev3dev.LightNames()))
	}

	if _, err := c.Dispatch.Dolly("dispatch"); err != nil {
		return err
	}
	if c.QueueSize < 0 {
		return utils.NewConfigValidationError("queue_size", errors.New("cannot be negative"))
	}

	if c.MQTT != nil {
		if err := c.MQTT.Validate("mqtt"); err != nil {
			return err
		}
	}
	if c.Broker != nil {
		if err := c.Broker.Validate("broker"); err != nil {
			return err
		}
	}
	if c.HTTP != nil {
		if err := c.HTTP.Validate("http"); err != nil {
			return err
		}
	}
	return c.Log.Validate("log")
}
