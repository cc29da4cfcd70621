package cli

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"

	"go.viam.com/dollygrip/logging"
	"go.viam.com/dollygrip/services/dolly"
)

const (
	maxLogs   = 6
	speedStep = 10
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	keyStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	logStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
)

// logAppender hands log lines to the TUI instead of writing over it.
type logAppender struct {
	lines chan string
}

func (la logAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	select {
	case la.lines <- fmt.Sprintf("%s %s", entry.Level.CapitalString(), entry.Message):
	default:
	}
	return nil
}

func (la logAppender) Sync() error {
	return nil
}

type sentMsg struct {
	directive dolly.Directive
	err       error
}

type logMsg string

type teleopModel struct {
	ctx       context.Context
	deliver   func(context.Context, []byte) error
	lines     <-chan string
	angleStep int
	speed     int

	last     string
	err      error
	logs     []string
	quitting bool
}

func newTeleopModel(ctx context.Context, deliver func(context.Context, []byte) error, lines <-chan string, angleStep, speed int) teleopModel {
	return teleopModel{ctx: ctx, deliver: deliver, lines: lines, angleStep: angleStep, speed: clampSpeed(speed)}
}

func clampSpeed(speed int) int {
	return max(0, min(100, speed))
}

func (m teleopModel) send(d dolly.Directive) tea.Cmd {
	return func() tea.Msg {
		payload, err := d.MarshalPayload()
		if err == nil {
			err = m.deliver(m.ctx, payload)
		}
		return sentMsg{directive: d, err: err}
	}
}

func (m teleopModel) waitForLog() tea.Cmd {
	if m.lines == nil {
		return nil
	}
	return func() tea.Msg {
		return logMsg(<-m.lines)
	}
}

func (m *teleopModel) addLog(line string) {
	m.logs = append(m.logs, line)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

func (m teleopModel) Init() tea.Cmd {
	return m.waitForLog()
}

func (m teleopModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Sequence(m.send(dolly.Directive{Type: dolly.TypeStop}), tea.Quit)
		case "up", "k":
			return m, m.send(dolly.Directive{Type: dolly.TypePitch, Direction: string(dolly.Up), Angle: m.angleStep})
		case "down", "j":
			return m, m.send(dolly.Directive{Type: dolly.TypePitch, Direction: string(dolly.Down), Angle: m.angleStep})
		case "w":
			return m, m.send(dolly.Directive{Type: dolly.TypePosition, Direction: string(dolly.Forward), Position: dolly.NoTarget, Speed: m.speed})
		case "s":
			return m, m.send(dolly.Directive{Type: dolly.TypePosition, Direction: string(dolly.Backward), Position: dolly.NoTarget, Speed: m.speed})
		case " ", "space", "x":
			return m, m.send(dolly.Directive{Type: dolly.TypeStop})
		case "+", "=":
			m.speed = clampSpeed(m.speed + speedStep)
		case "-", "_":
			m.speed = clampSpeed(m.speed - speedStep)
		}
		return m, nil

	case sentMsg:
		m.err = msg.err
		payload, _ := msg.directive.MarshalPayload()
		m.last = string(payload)
		return m, nil

	case logMsg:
		m.addLog(string(msg))
		return m, m.waitForLog()
	}
	return m, nil
}

func (m teleopModel) View() string {
	if m.quitting {
		return "Teleoperation stopped.\n"
	}
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Dolly Teleoperate"))
	sb.WriteString(statusStyle.Render(fmt.Sprintf("  speed %d%%  pitch step %d°", m.speed, m.angleStep)))
	sb.WriteString("\n\n")

	for _, k := range [][2]string{
		{"↑/k ↓/j", "pitch up/down"},
		{"w/s", "drive forward/backward"},
		{"space", "stop"},
		{"+/-", "change speed"},
		{"q", "stop and quit"},
	} {
		sb.WriteString(keyStyle.Render(fmt.Sprintf("%-8s", k[0])))
		sb.WriteString(" " + k[1] + "\n")
	}
	sb.WriteString("\n")

	switch {
	case m.err != nil:
		sb.WriteString(errStyle.Render("error: " + m.err.Error()))
	case m.last != "":
		sb.WriteString(statusStyle.Render("sent " + m.last))
	default:
		sb.WriteString(statusStyle.Render("waiting for a key"))
	}
	sb.WriteString("\n")

	if len(m.logs) > 0 {
		sb.WriteString(logStyle.Render(strings.Join(m.logs, "\n")))
		sb.WriteString("\n")
	}
	return sb.String()
}

// TeleopAction drives a dolly built from --config with the keyboard.
func TeleopAction(c *cli.Context) (err error) {
	lines := make(chan string, 64)
	logger := logging.NewBlankLogger("dolly")
	logger.SetLevel(logging.INFO)
	logger.AddAppender(logAppender{lines: lines})

	s, err := newSession(c, logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, s.Close())
	}()

	model := newTeleopModel(c.Context, s.robot.Deliver, lines, c.Int(teleopFlagAngleStep), c.Int(teleopFlagSpeed))
	_, err = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(c.Context)).Run()
	return err
}
