// Package mqttclient receives directives from an external MQTT broker.
package mqttclient

import (
	"context"
	"net/url"
	"sync"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/pkg/errors"

	"go.viam.com/dollygrip/logging"
	"go.viam.com/dollygrip/transport"
)

// DebugProperty is the MQTT v5 user property that turns on debug logging for one directive.
const DebugProperty = "debug"

// Config describes the broker connection.
type Config struct {
	URL      string `json:"url"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	ClientID string `json:"client_id,omitempty"`
	Topic    string `json:"topic,omitempty"`
	// KeepAlive is in seconds.
	KeepAlive uint16 `json:"keep_alive,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.URL == "" {
		return errors.Errorf("%s: url is required", path)
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return errors.Wrapf(err, "%s: invalid url", path)
	}
	switch u.Scheme {
	case "mqtt", "tcp", "mqtts", "ssl", "tls", "ws", "wss":
	default:
		return errors.Errorf("%s: unsupported scheme %q", path, u.Scheme)
	}
	return nil
}

func (cfg *Config) withDefaults() Config {
	out := *cfg
	if out.ClientID == "" {
		out.ClientID = "dolly"
	}
	if out.Topic == "" {
		out.Topic = "dolly/gadget/control"
	}
	if out.KeepAlive == 0 {
		out.KeepAlive = 20
	}
	return out
}

// A Client keeps a session with a broker and hands every message on the topic to a handler. The
// session counts as one connection for as long as it is up.
type Client struct {
	cfg       Config
	server    string
	handler   transport.Handler
	lifecycle transport.Lifecycle
	logger    logging.Logger
	cm        *autopaho.ConnectionManager

	mu sync.Mutex
	up bool
}

func newClient(cfg Config, handler transport.Handler, lifecycle transport.Lifecycle, logger logging.Logger) (*Client, error) {
	if err := cfg.Validate("mqtt"); err != nil {
		return nil, err
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, err
	}
	return &Client{
		cfg:       cfg.withDefaults(),
		server:    u.Host,
		handler:   handler,
		lifecycle: lifecycle,
		logger:    logger,
	}, nil
}

// NewClient starts connecting to the broker. It keeps reconnecting in the background until Close
// is called or ctx is cancelled.
func NewClient(ctx context.Context, cfg Config, handler transport.Handler, lifecycle transport.Lifecycle, logger logging.Logger) (*Client, error) {
	c, err := newClient(cfg, handler, lifecycle, logger)
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, err
	}
	cliCfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{u},
		ConnectUsername:               c.cfg.Username,
		KeepAlive:                     c.cfg.KeepAlive,
		CleanStartOnInitialConnection: true,
		OnConnectionUp:                c.onConnectionUp,
		OnConnectError: func(err error) {
			c.logger.Debugw("mqtt connection attempt failed", "server", c.server, "error", err)
			c.markDown()
		},
		ClientConfig: paho.ClientConfig{
			ClientID: c.cfg.ClientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				c.onPublishReceived,
			},
			OnClientError: func(err error) {
				c.logger.Warnw("mqtt client error", "server", c.server, "error", err)
				c.markDown()
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				c.logger.Warnw("mqtt server requested disconnect", "server", c.server, "reason", d.ReasonCode)
				c.markDown()
			},
		},
	}
	if c.cfg.Password != "" {
		cliCfg.ConnectPassword = []byte(c.cfg.Password)
	}

	cm, err := autopaho.NewConnection(ctx, cliCfg)
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to %s", c.server)
	}
	c.cm = cm
	return c, nil
}

func (c *Client) onConnectionUp(cm *autopaho.ConnectionManager, _ *paho.Connack) {
	if _, err := cm.Subscribe(context.Background(), &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: c.cfg.Topic, QoS: 1}},
	}); err != nil {
		c.logger.Errorw("failed to subscribe to directives", "topic", c.cfg.Topic, "error", err)
		return
	}
	c.logger.Infow("subscribed to directives", "server", c.server, "topic", c.cfg.Topic)
	c.markUp()
}

func (c *Client) onPublishReceived(pr paho.PublishReceived) (bool, error) {
	pk := pr.Packet
	if pk == nil || pk.Topic != c.cfg.Topic {
		return false, nil
	}
	ctx := context.Background()
	if pk.Properties != nil {
		if key := pk.Properties.User.Get(DebugProperty); key != "" {
			ctx = logging.EnableDebugMode(ctx, key)
		}
	}
	c.logger.CDebugw(ctx, "directive received", "topic", pk.Topic)
	c.handler.HandleDirective(ctx, pk.Payload)
	return true, nil
}

func (c *Client) markUp() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.up {
		return
	}
	c.up = true
	c.lifecycle.OnConnected(c.server)
}

func (c *Client) markDown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.up {
		return
	}
	c.up = false
	c.lifecycle.OnDisconnected(c.server)
}

// AwaitConnection blocks until the first session is up.
func (c *Client) AwaitConnection(ctx context.Context) error {
	return c.cm.AwaitConnection(ctx)
}

// Publish sends a directive to the topic, waiting for the broker to acknowledge it.
func (c *Client) Publish(ctx context.Context, payload []byte) error {
	pb := &paho.Publish{QoS: 1, Topic: c.cfg.Topic, Payload: payload}
	if key := logging.DebugKey(ctx); key != "" {
		pb.Properties = &paho.PublishProperties{User: paho.UserProperties{{Key: DebugProperty, Value: key}}}
	}
	if _, err := c.cm.Publish(ctx, pb); err != nil {
		return errors.Wrapf(err, "publishing to %s", c.cfg.Topic)
	}
	return nil
}

// Close disconnects from the broker and waits for the connection manager to exit.
func (c *Client) Close(ctx context.Context) error {
	err := c.cm.Disconnect(ctx)
	select {
	case <-c.cm.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	c.markDown()
	if errors.Is(err, autopaho.ConnectionDownError) {
		return nil
	}
	return err
}
