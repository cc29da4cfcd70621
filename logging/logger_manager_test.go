package logging

import (
	"testing"

	"go.viam.com/test"
)

// isolate swaps in an empty registry for the duration of the test.
func isolate(t *testing.T) {
	t.Helper()
	prev := loggerManager
	loggerManager = newRegistry()
	t.Cleanup(func() { loggerManager = prev })
}

func TestRegisteredOnCreation(t *testing.T) {
	isolate(t)

	dispatcher := NewLogger("dispatcher")
	got, ok := LoggerNamed("dispatcher")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, got, test.ShouldEqual, dispatcher)

	motors := dispatcher.Sublogger("motors")
	got, ok = LoggerNamed("dispatcher.motors")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, got, test.ShouldEqual, motors)

	// Blank loggers and field-scoped copies stay out of the registry.
	NewBlankLogger("teleop")
	dispatcher.WithFields("op", "x")
	test.That(t, GetRegisteredLoggerNames(), test.ShouldResemble, []string{"dispatcher", "dispatcher.motors"})

	_, ok = LoggerNamed("gadget")
	test.That(t, ok, test.ShouldBeFalse)
}

func TestUpdateLoggerLevel(t *testing.T) {
	isolate(t)

	broker := NewLogger("broker")
	test.That(t, UpdateLoggerLevel("broker", DEBUG), test.ShouldBeNil)
	test.That(t, broker.GetLevel(), test.ShouldEqual, DEBUG)

	err := UpdateLoggerLevel("brokr", DEBUG)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "brokr")
}

func TestSetAllLevels(t *testing.T) {
	isolate(t)

	NewLogger("client")
	NewDebugLogger("server").Sublogger("requests")
	SetAllLevels(ERROR)

	names := GetRegisteredLoggerNames()
	test.That(t, names, test.ShouldResemble, []string{"client", "server", "server.requests"})
	for _, name := range names {
		logger, ok := LoggerNamed(name)
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, logger.GetLevel(), test.ShouldEqual, ERROR)
	}
}
