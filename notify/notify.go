// Package notify displays server notices and chat events.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/Zereker/cattlechat/wire"
)

// Level is the severity of a notice, from Debug to Emergency.
type Level int

const (
	Debug Level = iota
	Info
	Notice
	Warning
	Error
	Critical
	Alert
	Emergency
)

var levelNames = [...]string{"debug", "info", "notice", "warning", "error", "critical", "alert", "emergency"}

func (l Level) String() string {
	if l >= 0 && int(l) < len(levelNames) {
		return levelNames[l]
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// Slog maps the level onto slog's scale. Notice sits between info and warn;
// the levels above error keep climbing in steps of two.
func (l Level) Slog() slog.Level {
	switch {
	case l <= Debug:
		return slog.LevelDebug
	case l == Info:
		return slog.LevelInfo
	case l == Notice:
		return slog.LevelInfo + 2
	case l == Warning:
		return slog.LevelWarn
	default:
		return slog.LevelError + slog.Level(2*(l-Error))
	}
}

// Sink receives what the server wants an operator to see.
type Sink interface {
	// Notify reports a notice with slog-style key-value pairs.
	Notify(level Level, msg string, args ...any)
	// ChatEvent reports a chat event. room is empty on the client side.
	ChatEvent(room string, ev wire.EventID, username, text string)
}

// Discard is a Sink that drops everything.
type Discard struct{}

func (Discard) Notify(Level, string, ...any) {}

func (Discard) ChatEvent(string, wire.EventID, string, string) {}

// Describe renders a chat event as a line of text.
func Describe(ev wire.EventID, username, text string) string {
	switch ev {
	case wire.EventUserJoin:
		return username + " has joined the channel"
	case wire.EventUserAlreadyIn:
		return username + " is in the channel"
	case wire.EventUserLeave:
		return username + " has left the channel"
	case wire.EventTopicChanged:
		return "Channel topic is now " + text
	case wire.EventInfo, wire.EventError:
		return text
	case wire.EventTalk:
		return "<" + username + "> " + text
	case wire.EventWhisperFrom:
		return "<From: " + username + "> " + text
	case wire.EventWhisperTo:
		return "<To: " + username + "> " + text
	case wire.EventChannelChanged:
		if text == "" {
			return "Left chat"
		}
		return "Joining channel: " + text
	}
	return fmt.Sprintf("unknown chat event %s from %q: %s", ev, username, text)
}

// ConsoleOption configures a Console.
type ConsoleOption func(*Console)

// ColorOption turns colored output on or off. It is on by default.
func ColorOption(enabled bool) ConsoleOption {
	return func(c *Console) {
		c.colored = enabled
	}
}

// ClockOption sets the clock used for timestamps.
func ClockOption(now func() time.Time) ConsoleOption {
	return func(c *Console) {
		c.now = now
	}
}

// Console logs notices through a slog logger and prints chat events as
// timestamped, colored lines.
type Console struct {
	logger  *slog.Logger
	colored bool
	now     func() time.Time

	mu   sync.Mutex
	out  io.Writer
	self string
}

// NewConsole returns a Console printing chat events to out.
func NewConsole(logger *slog.Logger, out io.Writer, opts ...ConsoleOption) *Console {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Console{
		logger:  logger,
		out:     out,
		colored: true,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetSelf names the local user so their own lines can be told apart.
func (c *Console) SetSelf(username string) {
	c.mu.Lock()
	c.self = username
	c.mu.Unlock()
}

// Notify implements Sink.
func (c *Console) Notify(level Level, msg string, args ...any) {
	c.logger.Log(context.Background(), level.Slog(), msg, args...)
}

// ChatEvent implements Sink.
func (c *Console) ChatEvent(room string, ev wire.EventID, username, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stamp := c.paint(color.New(color.FgWhite, color.Bold), "["+c.now().Format("15:04:05")+"] ")
	prefix := ""
	if room != "" {
		prefix = c.paint(color.New(color.FgMagenta), "["+room+"] ")
	}
	line := c.paint(c.eventColor(ev, username), Describe(ev, username, text))
	fmt.Fprintln(c.out, stamp+prefix+line)
}

func (c *Console) eventColor(ev wire.EventID, username string) *color.Color {
	switch ev {
	case wire.EventUserJoin, wire.EventUserAlreadyIn, wire.EventUserLeave, wire.EventChannelChanged:
		return color.New(color.FgGreen, color.Bold)
	case wire.EventTopicChanged, wire.EventInfo:
		return color.New(color.FgYellow, color.Bold)
	case wire.EventError:
		return color.New(color.FgRed, color.Bold)
	case wire.EventTalk:
		if username == c.self {
			return color.New(color.FgCyan)
		}
		return color.New(color.FgYellow)
	}
	return color.New(color.FgWhite)
}

func (c *Console) paint(col *color.Color, s string) string {
	if !c.colored {
		return s
	}
	col.EnableColor()
	return col.Sprint(s)
}
