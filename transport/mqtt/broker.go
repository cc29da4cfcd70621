// Package mqtt runs an embedded MQTT broker that accepts directives on a topic and reports client
// sessions as connections.
package mqtt

import (
	"context"
	"strings"
	"sync"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
	"github.com/pkg/errors"

	"go.viam.com/dollygrip/logging"
	"go.viam.com/dollygrip/transport"
)

// DefaultTopic is where directives are published.
const DefaultTopic = "dolly/gadget/control"

// DebugProperty is the MQTT v5 user property that turns on debug logging for one directive.
const DebugProperty = "debug"

const directiveSubscriptionID = 1

// User is a client allowed to publish directives.
type User struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Config describes the embedded broker.
type Config struct {
	// Address is the TCP listen address, e.g. ":1883". Empty means in-process publishing only.
	Address string `json:"address,omitempty"`
	Topic   string `json:"topic,omitempty"`
	// Users may connect from anywhere. Local clients are always allowed.
	Users []User `json:"users,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	for i, u := range cfg.Users {
		if u.Username == "" {
			return errors.Errorf("%s.users.%d: username is required", path, i)
		}
	}
	if strings.ContainsAny(cfg.Topic, "#+") {
		return errors.Errorf("%s: topic cannot contain wildcards", path)
	}
	return nil
}

func (cfg *Config) topic() string {
	if cfg.Topic == "" {
		return DefaultTopic
	}
	return cfg.Topic
}

func ledger(cfg *Config) *auth.Ledger {
	rules := auth.AuthRules{
		{Remote: "127.0.0.1:*", Allow: true},
		{Remote: "localhost:*", Allow: true},
	}
	acl := auth.ACLRules{
		{Remote: "127.0.0.1:*"},
		{Remote: "localhost:*"},
	}
	for _, u := range cfg.Users {
		rules = append(rules, auth.AuthRule{Username: auth.RString(u.Username), Password: auth.RString(u.Password), Allow: true})
		acl = append(acl, auth.ACLRule{Username: auth.RString(u.Username), Filters: auth.Filters{
			auth.RString(cfg.topic()): auth.WriteOnly,
		}})
	}
	// Nobody else may publish.
	acl = append(acl, auth.ACLRule{Filters: auth.Filters{"#": auth.ReadOnly}})
	return &auth.Ledger{Auth: rules, ACL: acl}
}

// A Broker is an embedded MQTT server feeding directives to a handler.
type Broker struct {
	server  *mochi.Server
	topic   string
	handler transport.Handler
	logger  logging.Logger

	mu      sync.Mutex
	started bool
}

// NewBroker configures a broker. Directives published on the topic go to handler and client
// sessions go to lifecycle.
func NewBroker(cfg Config, handler transport.Handler, lifecycle transport.Lifecycle, logger logging.Logger) (*Broker, error) {
	if err := cfg.Validate("broker"); err != nil {
		return nil, err
	}
	server := mochi.New(&mochi.Options{
		InlineClient: true,
		Logger:       newSlogLogger(logger.Sublogger("mochi")),
	})
	if err := server.AddHook(new(auth.Hook), &auth.Options{Ledger: ledger(&cfg)}); err != nil {
		return nil, errors.Wrap(err, "adding auth hook")
	}
	if err := server.AddHook(new(LifecycleHook), &LifecycleHookOptions{Lifecycle: lifecycle}); err != nil {
		return nil, errors.Wrap(err, "adding lifecycle hook")
	}
	if cfg.Address != "" {
		tcp := listeners.NewTCP(listeners.Config{ID: "dolly-tcp", Address: cfg.Address})
		if err := server.AddListener(tcp); err != nil {
			return nil, errors.Wrapf(err, "listening on %s", cfg.Address)
		}
	}

	b := &Broker{server: server, topic: cfg.topic(), handler: handler, logger: logger}
	if err := server.Subscribe(b.topic, directiveSubscriptionID, b.onDirective); err != nil {
		return nil, errors.Wrapf(err, "subscribing to %s", b.topic)
	}
	return b, nil
}

func (b *Broker) onDirective(cl *mochi.Client, sub packets.Subscription, pk packets.Packet) {
	ctx := context.Background()
	for _, prop := range pk.Properties.User {
		if prop.Key == DebugProperty {
			ctx = logging.EnableDebugMode(ctx, prop.Val)
		}
	}
	b.logger.CDebugw(ctx, "directive received", "client", cl.ID, "topic", pk.TopicName)
	b.handler.HandleDirective(ctx, pk.Payload)
}

// Topic returns the directive topic.
func (b *Broker) Topic() string {
	return b.topic
}

// Start starts accepting clients.
func (b *Broker) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return nil
	}
	if err := b.server.Serve(); err != nil {
		return errors.Wrap(err, "starting mqtt broker")
	}
	b.started = true
	return nil
}

// Publish sends a directive through the broker as the in-process client.
func (b *Broker) Publish(payload []byte) error {
	return b.server.Publish(b.topic, payload, false, 0)
}

// Close disconnects every client and stops the listeners.
func (b *Broker) Close() error {
	return b.server.Close()
}
