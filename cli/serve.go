package cli

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/dollygrip/config"
	"go.viam.com/dollygrip/logging"
)

// ServeAction runs the dolly until SIGINT or SIGTERM.
func ServeAction(c *cli.Context) (err error) {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serve(ctx, c, os.Stdin)
}

func serve(ctx context.Context, c *cli.Context, stdin io.Reader) (err error) {
	s, err := newSession(c, logging.NewLogger("dolly"))
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, s.Close())
	}()

	if err := s.robot.StartTransports(ctx); err != nil {
		return errors.Wrap(err, "starting transports")
	}
	if c.Bool(serveFlagWatch) && c.String(configFlag) != "" {
		watcher, werr := config.NewWatcher(c.String(configFlag), s.logger)
		if werr != nil {
			return werr
		}
		defer func() {
			err = multierr.Combine(err, watcher.Close())
		}()
		utils.PanicCapturingGo(func() {
			applyConfigChanges(ctx, watcher.Config(), s.logger, c.Bool(debugFlag))
		})
	}
	if c.Bool(serveFlagStdin) {
		utils.PanicCapturingGo(func() {
			readDirectives(ctx, stdin, s.robot.Deliver, s.logger)
		})
	}
	s.logger.Infow("dolly ready", "http", s.robot.HTTPAddress(), "broker", s.robot.Broker() != nil)
	<-ctx.Done()
	s.logger.Info("shutting down")
	return nil
}

// applyConfigChanges applies the log level of each new config until ctx is done. Other sections
// take effect on the next start.
func applyConfigChanges(ctx context.Context, configs <-chan *config.Config, logger logging.Logger, debug bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg := <-configs:
			level := config.UpdateLoggingLevel(logger, cfg.Log, debug)
			logger.Infow("config changed; log level applied, restart to apply the rest", "level", level.String())
		}
	}
}

// readDirectives delivers every non-empty line of r until r is exhausted or ctx is done.
func readDirectives(ctx context.Context, r io.Reader, deliver func(context.Context, []byte) error, logger logging.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := deliver(ctx, line); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warnw("dropping directive", "error", err)
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Warnw("stopped reading directives from stdin", "error", err)
	}
}
