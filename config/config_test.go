package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.viam.com/test"

	"go.viam.com/dollygrip/components/colorsensor"
	ev3sensor "go.viam.com/dollygrip/components/colorsensor/ev3"
	fakesensor "go.viam.com/dollygrip/components/colorsensor/fake"
	"go.viam.com/dollygrip/components/motor"
	ev3motor "go.viam.com/dollygrip/components/motor/ev3"
	fakemotor "go.viam.com/dollygrip/components/motor/fake"
	"go.viam.com/dollygrip/components/motor/feetech"
	"go.viam.com/dollygrip/logging"
)

func TestEmptyConfigDefaults(t *testing.T) {
	cfg, err := FromReader("dolly.json", strings.NewReader(`{}`), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.ConfigFilePath, test.ShouldEqual, "dolly.json")
	for _, id := range motor.AllIDs {
		test.That(t, cfg.Motors[id].Model, test.ShouldEqual, ModelFake)
		test.That(t, cfg.Motors[id].ConvertedAttributes, test.ShouldResemble, &fakemotor.Config{})
	}
	test.That(t, cfg.ColorSensor.ConvertedAttributes, test.ShouldResemble, &fakesensor.Config{})
	test.That(t, cfg.Indicator.Model, test.ShouldEqual, ModelLog)
	test.That(t, cfg.MQTT, test.ShouldBeNil)
	test.That(t, cfg.Broker, test.ShouldBeNil)
	test.That(t, cfg.HTTP, test.ShouldBeNil)
	test.That(t, cfg.Log.ParsedLevel(), test.ShouldEqual, logging.INFO)

	dc, err := cfg.Dispatch.Dolly("dispatch")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dc.RotationsPerDegree, test.ShouldEqual, 0.13)
	test.That(t, dc.TargetTimeout, test.ShouldEqual, 30*time.Second)
}

func TestReadJSON(t *testing.T) {
	t.Setenv("DOLLY_SECRET", "hunter2")
	dir := t.TempDir()
	path := filepath.Join(dir, "dolly.json")
	test.That(t, os.WriteFile(path, []byte(`{
		"motors": {
			"tilt": {"model": "ev3", "attributes": {"port": "outA", "stop_action": "hold"}},
			"drive_left": {"model": "feetech", "attributes": {"port": "/dev/ttyUSB0", "servo_id": "2"}},
			"drive_right": {"model": "fake", "attributes": {"max_rpm": 60}}
		},
		"color_sensor": {"model": "fake", "attributes": {"script": ["NoColor", "red"]}},
		"dispatch": {"rotations_per_degree": 0.2, "target_timeout": "0s", "poll_interval": "25ms"},
		"queue_size": 4,
		"http": {"address": ":8080", "jwt_secret": "${DOLLY_SECRET}"},
		"log": {"level": "debug"}
	}`), 0o600), test.ShouldBeNil)

	cfg, err := Read(path, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Motors[motor.Tilt].ConvertedAttributes, test.ShouldResemble, &ev3motor.Config{Port: "outA", StopAction: "hold"})
	test.That(t, cfg.Motors[motor.DriveLeft].ConvertedAttributes, test.ShouldResemble, &feetech.Config{Port: "/dev/ttyUSB0", ServoID: 2})
	test.That(t, cfg.Motors[motor.DriveRight].ConvertedAttributes, test.ShouldResemble, &fakemotor.Config{MaxRPM: 60})
	test.That(t, cfg.ColorSensor.ConvertedAttributes, test.ShouldResemble,
		&fakesensor.Config{Script: []colorsensor.Color{colorsensor.NoColor, colorsensor.Red}})
	test.That(t, cfg.QueueSize, test.ShouldEqual, 4)
	test.That(t, cfg.HTTP.JWTSecret, test.ShouldEqual, "hunter2")
	test.That(t, cfg.Log.ParsedLevel(), test.ShouldEqual, logging.DEBUG)

	dc, err := cfg.Dispatch.Dolly("dispatch")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dc.RotationsPerDegree, test.ShouldEqual, 0.2)
	test.That(t, dc.PitchSpeedPct, test.ShouldEqual, 100.0)
	test.That(t, dc.TargetTimeout, test.ShouldEqual, time.Duration(0))
	test.That(t, dc.PollInterval, test.ShouldEqual, 25*time.Millisecond)
}

func TestReadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dolly.yaml")
	test.That(t, os.WriteFile(path, []byte(`
color_sensor:
  model: ev3
  attributes:
    port: in3
indicator:
  model: led
  leds: [green:left, red:left]
broker:
  address: ":1883"
  users:
    - username: echo
      password: pw
mqtt:
  url: mqtt://studio:1883
  topic: studio/dolly
log:
  level: warn
  file:
    path: /var/log/dolly.log
`), 0o600), test.ShouldBeNil)

	cfg, err := Read(path, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.ColorSensor.ConvertedAttributes, test.ShouldResemble, &ev3sensor.Config{Port: "in3"})
	test.That(t, cfg.Indicator.Model, test.ShouldEqual, ModelLED)
	test.That(t, cfg.Indicator.LEDs, test.ShouldResemble, []string{"green:left", "red:left"})
	test.That(t, cfg.Broker.Address, test.ShouldEqual, ":1883")
	test.That(t, cfg.Broker.Users[0].Username, test.ShouldEqual, "echo")
	test.That(t, cfg.MQTT.Topic, test.ShouldEqual, "studio/dolly")
	test.That(t, cfg.Log.ParsedLevel(), test.ShouldEqual, logging.WARN)
	test.That(t, cfg.Log.File.FileConfig(), test.ShouldResemble, logging.FileConfig{
		Filename: "/var/log/dolly.log", MaxSizeMB: 10, MaxBackups: 3, MaxAgeDays: 7,
	})
}

func TestReadJSON5(t *testing.T) {
	cfg, err := FromReader("dolly.json5", strings.NewReader(`{
  // studio dolly
  http: {address: ":8080", rate_limit: 5,},
  dispatch: {target_timeout: '5s'},
  log: {level: 'debug'},
}`), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.HTTP.Address, test.ShouldEqual, ":8080")
	test.That(t, cfg.HTTP.RateLimit, test.ShouldEqual, 5.0)
	test.That(t, cfg.Dispatch.TargetTimeout, test.ShouldEqual, "5s")
	test.That(t, cfg.Log.ParsedLevel(), test.ShouldEqual, logging.DEBUG)

	_, err = FromReader("dolly.json5", strings.NewReader(`{http: `), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "json5")
}

func TestEmptyYAML(t *testing.T) {
	cfg, err := FromReader("dolly.yml", bytes.NewReader(nil), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Motors[motor.Tilt].Model, test.ShouldEqual, ModelFake)
}

func TestInvalidConfigs(t *testing.T) {
	for _, tc := range []struct {
		name string
		json string
		err  string
	}{
		{"unknown field", `{"motorz": {}}`, "unknown field"},
		{"unknown motor", `{"motors": {"pan": {"model": "fake"}}}`, "pan"},
		{"missing model", `{"motors": {"tilt": {}}}`, "motors.tilt"},
		{"unknown model", `{"motors": {"tilt": {"model": "servo"}}}`, "unknown model"},
		{"unused attribute", `{"motors": {"tilt": {"model": "fake", "attributes": {"port": "outA"}}}}`, "port"},
		{"model validation", `{"motors": {"tilt": {"model": "ev3"}}}`, "motors.tilt.attributes: port is required"},
		{"unknown color", `{"color_sensor": {"model": "fake", "attributes": {"script": ["purple"]}}}`, "purple"},
		{"sensor model", `{"color_sensor": {"model": "feetech"}}`, "unknown model"},
		{"indicator", `{"indicator": {"model": "buzzer"}}`, "buzzer"},
		{"indicator lights", `{"indicator": {"model": "led", "leds": ["green:left", "blue:top"]}}`, "blue:top"},
		{"duration", `{"dispatch": {"target_timeout": "soon"}}`, "dispatch.target_timeout"},
		{"negative timeout", `{"dispatch": {"target_timeout": "-1s"}}`, "target_timeout cannot be negative"},
		{"pitch speed", `{"dispatch": {"pitch_speed_pct": 150}}`, "pitch_speed_pct"},
		{"queue", `{"queue_size": -1}`, "queue_size"},
		{"mqtt", `{"mqtt": {"url": "http://x"}}`, "unsupported scheme"},
		{"broker", `{"broker": {"topic": "dolly/#"}}`, "wildcards"},
		{"http", `{"http": {}}`, "address is required"},
		{"log level", `{"log": {"level": "loud"}}`, "log.level"},
		{"log file", `{"log": {"file": {}}}`, "log.file"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromReader("dolly.json", strings.NewReader(tc.json), logging.NewTestLogger(t))
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.err)
		})
	}
}

func TestInitLoggingSettings(t *testing.T) {
	logger := logging.NewBlankLogger("config-test")
	closer := InitLoggingSettings(logger, LogConfig{Level: "error"}, false)
	test.That(t, logger.GetLevel(), test.ShouldEqual, logging.ERROR)
	test.That(t, closer.Close(), test.ShouldBeNil)

	closer = InitLoggingSettings(logger, LogConfig{Level: "error"}, true)
	test.That(t, logger.GetLevel(), test.ShouldEqual, logging.DEBUG)
	test.That(t, closer.Close(), test.ShouldBeNil)

	path := filepath.Join(t.TempDir(), "dolly.log")
	closer = InitLoggingSettings(logger, LogConfig{File: &FileLogConfig{Path: path}}, false)
	logger.Info("written to file")
	test.That(t, closer.Close(), test.ShouldBeNil)
	contents, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(contents), test.ShouldContainSubstring, "written to file")
}
