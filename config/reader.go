package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/a8m/envsubst"
	"github.com/pkg/errors"
	"github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v2"

	"go.viam.com/dollygrip/components/motor"
	"go.viam.com/dollygrip/logging"
)

// Read reads a config from the given file, expanding ${VAR} references from the environment.
// Files ending in .yaml or .yml are read as YAML, .json5 as JSON5, everything else as JSON.
func Read(filePath string, logger logging.Logger) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return FromReader(filePath, bytes.NewReader(buf), logger)
}

// FromReader reads a config from the given reader and specifies where, if applicable, the file
// the reader originated from.
func FromReader(originalPath string, r io.Reader, logger logging.Logger) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(originalPath)) {
	case ".yaml", ".yml":
		if raw, err = yamlToJSON(raw); err != nil {
			return nil, errors.Wrap(err, "failed to decode Config from yaml")
		}
	case ".json5":
		if raw, err = json5ToJSON(raw); err != nil {
			return nil, errors.Wrap(err, "failed to decode Config from json5")
		}
	}

	cfg := Config{ConfigFilePath: originalPath}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to decode Config from json")
	}
	if err := cfg.Ensure(); err != nil {
		return nil, err
	}
	logger.Debugw("config loaded", "path", originalPath, "tilt", cfg.Motors[motor.Tilt].Model, "color_sensor", cfg.ColorSensor.Model)
	return &cfg, nil
}

func yamlToJSON(raw []byte) ([]byte, error) {
	var doc interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(stringKeys(doc))
}

func json5ToJSON(raw []byte) ([]byte, error) {
	var doc interface{}
	if err := json5.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

// stringKeys rewrites the map[interface{}]interface{} values yaml.v2 produces into
// map[string]interface{} so they can be marshaled as JSON.
func stringKeys(v interface{}) interface{} {
	switch typed := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(typed))
		for k, val := range typed {
			out[fmt.Sprint(k)] = stringKeys(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(typed))
		for i, val := range typed {
			out[i] = stringKeys(val)
		}
		return out
	default:
		return v
	}
}
