package cli

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.viam.com/dollygrip/config"
	"go.viam.com/dollygrip/logging"
	"go.viam.com/dollygrip/robot"
)

const closeTimeout = 10 * time.Second

func readConfig(c *cli.Context, logger logging.Logger) (*config.Config, error) {
	path := c.String(configFlag)
	if path == "" {
		return config.FromReader("", strings.NewReader("{}"), logger)
	}
	return config.Read(path, logger)
}

// session is a logger and a robot built from the command line flags.
type session struct {
	logger    logging.Logger
	robot     *robot.Robot
	logCloser io.Closer
}

func newSession(c *cli.Context, logger logging.Logger, opts ...robot.Option) (*session, error) {
	if c.Bool(debugFlag) {
		logger.SetLevel(logging.DEBUG)
	}
	cfg, err := readConfig(c, logger)
	if err != nil {
		return nil, err
	}
	s := &session{logger: logger, logCloser: config.InitLoggingSettings(logger, cfg.Log, c.Bool(debugFlag))}
	s.robot, err = robot.New(c.Context, cfg, logger, opts...)
	if err != nil {
		return nil, multierr.Combine(err, s.logCloser.Close())
	}
	return s, nil
}

func (s *session) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	return multierr.Combine(s.robot.Close(ctx), s.logger.Sync(), s.logCloser.Close())
}
