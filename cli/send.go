package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/dollygrip/logging"
	"go.viam.com/dollygrip/services/dolly"
	"go.viam.com/dollygrip/transport/mqttclient"
	"go.viam.com/dollygrip/transport/rest"
)

// SendAction sends one directive to a local or remote dolly.
func SendAction(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return errors.New("expected exactly one directive argument")
	}
	payload := []byte(c.Args().First())
	if _, err := dolly.ParseDirective(payload); err != nil {
		return errors.Wrap(err, "invalid directive")
	}

	logger := logging.NewLogger("dolly")
	if c.Bool(debugFlag) {
		logger.SetLevel(logging.DEBUG)
	}
	ctx := c.Context
	if c.Bool(debugFlag) {
		ctx = logging.EnableDebugMode(ctx, "")
	}

	switch {
	case c.String(sendFlagHTTP) != "" && c.String(sendFlagMQTT) != "":
		return errors.Errorf("only one of --%s and --%s may be set", sendFlagHTTP, sendFlagMQTT)
	case c.String(sendFlagHTTP) != "":
		if err := sendHTTP(ctx, c.String(sendFlagHTTP), c.String(sendFlagToken), payload); err != nil {
			return err
		}
	case c.String(sendFlagMQTT) != "":
		cfg := mqttclient.Config{
			URL:      c.String(sendFlagMQTT),
			Username: c.String(sendFlagUsername),
			Password: c.String(sendFlagPassword),
			ClientID: "dolly-send-" + utils.RandomAlphaString(6),
			Topic:    c.String(sendFlagTopic),
		}
		if err := sendMQTT(ctx, cfg, payload, logger); err != nil {
			return err
		}
	default:
		if err := sendLocal(ctx, c, payload, logger); err != nil {
			return err
		}
	}
	printf(c.App.Writer, "sent %s", payload)
	return nil
}

func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}

func sendHTTP(ctx context.Context, baseURL, token string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(baseURL, "/")+"/directive", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if key := logging.DebugKey(ctx); key != "" {
		req.Header.Set(rest.DebugHeader, key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "posting directive")
	}
	defer utils.UncheckedErrorFunc(resp.Body.Close)
	if resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return errors.Errorf("dolly rejected directive: %s %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return nil
}

type discard struct{}

func (discard) HandleDirective(context.Context, []byte) {}
func (discard) OnConnected(string)                      {}
func (discard) OnDisconnected(string)                   {}

func sendMQTT(ctx context.Context, cfg mqttclient.Config, payload []byte, logger logging.Logger) (err error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mqttclient.NewClient(ctx, cfg, discard{}, discard{}, logger.Sublogger("mqtt"))
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, client.Close(ctx))
	}()
	if err := client.AwaitConnection(ctx); err != nil {
		return errors.Wrapf(err, "connecting to %s", cfg.URL)
	}
	return client.Publish(ctx, payload)
}

func sendLocal(ctx context.Context, c *cli.Context, payload []byte, logger logging.Logger) (err error) {
	s, err := newSession(c, logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, s.Close())
	}()
	if err := s.robot.Dispatch(ctx, payload); err != nil {
		return err
	}
	if wait := c.Duration(sendFlagWait); wait > 0 {
		utils.SelectContextOrWait(ctx, wait)
	}
	return nil
}
