package logging

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// registry tracks named loggers so levels can be changed at runtime by name.
type registry struct {
	mu     sync.Mutex
	byName map[string]Logger
}

var loggerManager = newRegistry()

func newRegistry() *registry {
	return &registry{byName: map[string]Logger{}}
}

func (r *registry) register(name string, logger Logger) {
	r.mu.Lock()
	r.byName[name] = logger
	r.mu.Unlock()
}

func (r *registry) lookup(name string) (Logger, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	logger, ok := r.byName[name]
	return logger, ok
}

func (r *registry) names() []string {
	r.mu.Lock()
	names := lo.Keys(r.byName)
	r.mu.Unlock()
	sort.Strings(names)
	return names
}

func (r *registry) loggers() []Logger {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.Values(r.byName)
}

// LoggerNamed returns the registered logger with the given name.
func LoggerNamed(name string) (Logger, bool) {
	return loggerManager.lookup(name)
}

// UpdateLoggerLevel sets the level of one registered logger.
func UpdateLoggerLevel(name string, level Level) error {
	logger, ok := loggerManager.lookup(name)
	if !ok {
		return errors.Errorf("no logger named %q", name)
	}
	logger.SetLevel(level)
	return nil
}

// SetAllLevels sets the level of every registered logger.
func SetAllLevels(level Level) {
	for _, logger := range loggerManager.loggers() {
		logger.SetLevel(level)
	}
}

// GetRegisteredLoggerNames returns the registered names in order.
func GetRegisteredLoggerNames() []string {
	return loggerManager.names()
}
