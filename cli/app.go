// Package cli contains the dolly command line.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"

	"go.viam.com/dollygrip/transport/mqtt"
)

const (
	configFlag = "config"
	debugFlag  = "debug"

	serveFlagStdin = "stdin"
	serveFlagWatch = "watch"

	statusFlagHTTP = "http"

	sendFlagHTTP     = "http"
	sendFlagToken    = "token"
	sendFlagMQTT     = "mqtt"
	sendFlagUsername = "username"
	sendFlagPassword = "password"
	sendFlagTopic    = "topic"
	sendFlagWait     = "wait"

	teleopFlagAngleStep = "angle-step"
	teleopFlagSpeed     = "speed"
)

var app = &cli.App{
	Name:            "dolly",
	Usage:           "drive a voice controlled camera dolly",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    configFlag,
			Aliases: []string{"c"},
			Usage:   "load configuration from `FILE`; without one every part is simulated",
		},
		&cli.BoolFlag{
			Name:    debugFlag,
			Aliases: []string{"vvv"},
			Usage:   "enable debug logging",
		},
	},
	Commands: []*cli.Command{
		{
			Name:  "serve",
			Usage: "run the dolly and the configured transports until interrupted",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  serveFlagStdin,
					Usage: "also read newline separated directives from stdin",
				},
				&cli.BoolFlag{
					Name:  serveFlagWatch,
					Usage: "apply log level changes when the config file is edited",
				},
			},
			Action: ServeAction,
		},
		{
			Name:  "status",
			Usage: "show the queue and the directives a running dolly is handling",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     statusFlagHTTP,
					Required: true,
					Usage:    "base `URL` of a dolly serving http",
				},
			},
			Action: StatusAction,
		},
		{
			Name:      "send",
			Usage:     "send one directive",
			ArgsUsage: "<directive json>",
			Description: `Without --http or --mqtt the directive is handled by a dolly built from --config in this
process. With --http or --mqtt it is sent to a running dolly instead.`,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  sendFlagHTTP,
					Usage: "base `URL` of a dolly serving http, e.g. http://dolly.local:8080",
				},
				&cli.StringFlag{
					Name:  sendFlagToken,
					Usage: "bearer token for --http",
				},
				&cli.StringFlag{
					Name:  sendFlagMQTT,
					Usage: "`URL` of the broker a dolly listens on, e.g. mqtt://dolly.local:1883",
				},
				&cli.StringFlag{
					Name:  sendFlagUsername,
					Usage: "username for --mqtt",
				},
				&cli.StringFlag{
					Name:  sendFlagPassword,
					Usage: "password for --mqtt",
				},
				&cli.StringFlag{
					Name:  sendFlagTopic,
					Value: mqtt.DefaultTopic,
					Usage: "directive topic for --mqtt",
				},
				&cli.DurationFlag{
					Name:  sendFlagWait,
					Usage: "how long a local dolly keeps running after the directive",
				},
			},
			Action: SendAction,
		},
		{
			Name:  "teleop",
			Usage: "drive the dolly from the keyboard",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  teleopFlagAngleStep,
					Value: 5,
					Usage: "degrees per pitch key press",
				},
				&cli.IntFlag{
					Name:  teleopFlagSpeed,
					Value: 50,
					Usage: "initial drive speed percentage",
				},
			},
			Action: TeleopAction,
		},
	},
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}
