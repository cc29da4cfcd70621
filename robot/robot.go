// Package robot assembles a dolly from its configuration: the motors, the color sensor, the
// dispatcher and the transports that feed it.
package robot

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/dollygrip/components/colorsensor"
	ev3sensor "go.viam.com/dollygrip/components/colorsensor/ev3"
	fakesensor "go.viam.com/dollygrip/components/colorsensor/fake"
	"go.viam.com/dollygrip/components/motor"
	ev3motor "go.viam.com/dollygrip/components/motor/ev3"
	fakemotor "go.viam.com/dollygrip/components/motor/fake"
	"go.viam.com/dollygrip/components/motor/feetech"
	"go.viam.com/dollygrip/config"
	"go.viam.com/dollygrip/logging"
	"go.viam.com/dollygrip/operation"
	"go.viam.com/dollygrip/services/dolly"
	"go.viam.com/dollygrip/transport"
	"go.viam.com/dollygrip/transport/mqtt"
	"go.viam.com/dollygrip/transport/mqttclient"
	"go.viam.com/dollygrip/transport/rest"
)

type options struct {
	clock     clock.Clock
	indicator dolly.Indicator
}

// Option configures how a Robot is built.
type Option func(*options)

// WithClock sets the clock used by the dispatcher.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithIndicator overrides the configured connection indicator.
func WithIndicator(indicator dolly.Indicator) Option {
	return func(o *options) {
		o.indicator = indicator
	}
}

// A Robot is a running dolly.
type Robot struct {
	cfg    *config.Config
	logger logging.Logger

	motors     *motor.Group
	sensor     colorsensor.ColorSensor
	ops        *operation.Manager
	dispatcher *dolly.Dispatcher
	gadget     *dolly.Gadget
	pump       *transport.Serial

	broker *mqtt.Broker
	client *mqttclient.Client
	http   *rest.Server
}

// New builds every component named by cfg. Transports are not started until StartTransports.
func New(ctx context.Context, cfg *config.Config, logger logging.Logger, opts ...Option) (_ *Robot, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	r := &Robot{cfg: cfg, logger: logger, ops: operation.NewManager(logger.Sublogger("operations"))}
	defer func() {
		if err != nil {
			err = multierr.Combine(err, r.Close(context.Background()))
		}
	}()

	motors := make(map[motor.ID]motor.Motor, len(motor.AllIDs))
	defer func() {
		if err != nil && r.motors == nil {
			for _, m := range motors {
				err = multierr.Combine(err, m.Close(context.Background()))
			}
		}
	}()
	for _, id := range motor.AllIDs {
		m, err := newMotor(ctx, id, cfg.Motors[id], logger.Sublogger(string(id)))
		if err != nil {
			return nil, err
		}
		motors[id] = m
	}
	if r.motors, err = motor.NewGroup(motors); err != nil {
		return nil, err
	}

	if r.sensor, err = newColorSensor(cfg.ColorSensor, logger.Sublogger("color_sensor")); err != nil {
		return nil, err
	}

	dispatchCfg, err := cfg.Dispatch.Dolly("dispatch")
	if err != nil {
		return nil, err
	}
	dispatchOpts := []dolly.Option{dolly.WithOperations(r.ops)}
	if o.clock != nil {
		dispatchOpts = append(dispatchOpts, dolly.WithClock(o.clock))
	}
	if r.dispatcher, err = dolly.NewDispatcher(r.motors, r.sensor, dispatchCfg, logger.Sublogger("dispatcher"), dispatchOpts...); err != nil {
		return nil, err
	}

	indicator := o.indicator
	if indicator == nil {
		if indicator, err = newIndicator(cfg.Indicator, logger.Sublogger("indicator")); err != nil {
			return nil, err
		}
	}
	r.gadget = dolly.NewGadget(r.dispatcher, indicator, logger.Sublogger("gadget"))
	r.pump = transport.NewSerial(r.gadget, cfg.QueueSize, logger.Sublogger("pump"))
	return r, nil
}

func newMotor(ctx context.Context, id motor.ID, c *config.Component, logger logging.Logger) (motor.Motor, error) {
	name := string(id)
	switch attrs := c.ConvertedAttributes.(type) {
	case *fakemotor.Config:
		return fakemotor.NewMotor(name, *attrs, logger), nil
	case *ev3motor.Config:
		return ev3motor.NewMotor(name, *attrs, logger)
	case *feetech.Config:
		return feetech.NewMotor(ctx, name, *attrs, logger)
	default:
		return nil, errors.Errorf("motor %s: unsupported model %q", id, c.Model)
	}
}

func newColorSensor(c *config.Component, logger logging.Logger) (colorsensor.ColorSensor, error) {
	const name = "color_sensor"
	switch attrs := c.ConvertedAttributes.(type) {
	case *fakesensor.Config:
		return fakesensor.NewColorSensor(name, *attrs), nil
	case *ev3sensor.Config:
		return ev3sensor.NewColorSensor(name, *attrs, logger)
	default:
		return nil, errors.Errorf("%s: unsupported model %q", name, c.Model)
	}
}

func newIndicator(c config.IndicatorConfig, logger logging.Logger) (dolly.Indicator, error) {
	switch c.Model {
	case config.ModelLED:
		return dolly.NewLEDIndicator(c.LEDs...)
	case config.ModelLog, "":
		return dolly.LogIndicator{Logger: logger}, nil
	default:
		return nil, errors.Errorf("indicator: unsupported model %q", c.Model)
	}
}

// StartTransports starts every transport the config names.
func (r *Robot) StartTransports(ctx context.Context) error {
	if r.cfg.Broker != nil && r.broker == nil {
		broker, err := mqtt.NewBroker(*r.cfg.Broker, r.pump, r.gadget, r.logger.Sublogger("broker"))
		if err != nil {
			return err
		}
		r.broker = broker
		if err := broker.Start(); err != nil {
			return err
		}
	}
	if r.cfg.MQTT != nil && r.client == nil {
		client, err := mqttclient.NewClient(ctx, *r.cfg.MQTT, r.pump, r.gadget, r.logger.Sublogger("mqtt"))
		if err != nil {
			return err
		}
		r.client = client
	}
	if r.cfg.HTTP != nil && r.http == nil {
		r.http = rest.NewServer(*r.cfg.HTTP, r.pump, r.ops, r.logger.Sublogger("http"))
		if err := r.http.Start(); err != nil {
			return err
		}
	}
	return nil
}

// Deliver queues a directive as if it had arrived on a transport.
func (r *Robot) Deliver(ctx context.Context, payload []byte) error {
	return r.pump.Deliver(ctx, payload)
}

// Dispatch handles a directive immediately, bypassing the queue.
func (r *Robot) Dispatch(ctx context.Context, payload []byte) error {
	return r.dispatcher.Dispatch(ctx, payload)
}

// Motors returns the motor group.
func (r *Robot) Motors() *motor.Group {
	return r.motors
}

// ColorSensor returns the color sensor.
func (r *Robot) ColorSensor() colorsensor.ColorSensor {
	return r.sensor
}

// OperationManager returns the registry of directives in flight.
func (r *Robot) OperationManager() *operation.Manager {
	return r.ops
}

// Gadget returns the host lifecycle adapter.
func (r *Robot) Gadget() *dolly.Gadget {
	return r.gadget
}

// Broker returns the embedded broker, or nil when it is not running.
func (r *Robot) Broker() *mqtt.Broker {
	return r.broker
}

// HTTPAddress returns the address the REST transport is bound to, or "" when it is not running.
func (r *Robot) HTTPAddress() string {
	if r.http == nil || r.http.Addr() == nil {
		return ""
	}
	return r.http.Addr().String()
}

// Close attempts to cleanly close down all constituent parts of the robot. Transports close
// first so no directive arrives while the motors stop.
func (r *Robot) Close(ctx context.Context) error {
	var err error
	if r.http != nil {
		err = multierr.Combine(err, r.http.Close(ctx))
	}
	if r.client != nil {
		err = multierr.Combine(err, r.client.Close(ctx))
	}
	if r.broker != nil {
		err = multierr.Combine(err, r.broker.Close())
	}
	if r.pump != nil {
		r.pump.Close()
	}
	if r.gadget != nil {
		err = multierr.Combine(err, r.gadget.Close(ctx))
	}
	for _, op := range r.ops.All() {
		op.Cancel()
	}
	if r.motors != nil {
		err = multierr.Combine(err, r.motors.StopAll(ctx), r.motors.Close(ctx))
	}
	if r.sensor != nil {
		err = multierr.Combine(err, r.sensor.Close(ctx))
	}
	if err != nil {
		return errors.Wrapf(err, "closing %s", r.name())
	}
	return nil
}

func (r *Robot) name() string {
	if r.cfg.ConfigFilePath == "" {
		return "dolly"
	}
	return r.cfg.ConfigFilePath
}
