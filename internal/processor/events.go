package processor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/iokaravas/ksDiscordBot/internal/models"
)

// Event is one notable lifecycle or cycle step.
type Event struct {
	Level   slog.Level
	Message string
	Attrs   []any
	At      time.Time
}

// Notification is emitted when a cycle observes a change.
type Notification struct {
	Campaign string
	Current  models.Snapshot
	Delta    models.Snapshot
	Totals   models.Snapshot
	At       time.Time
}

// Summary is a one-line, human readable description of the change.
func (n Notification) Summary() string {
	return fmt.Sprintf("%s: pledged %s (%s), backers %s (%s)",
		n.Campaign,
		humanize.Comma(n.Current.Pledged), signedComma(n.Delta.Pledged),
		humanize.Comma(int64(n.Current.BackersCount)), signedComma(int64(n.Delta.BackersCount)),
	)
}

func signedComma(v int64) string {
	if v < 0 {
		return humanize.Comma(v)
	}
	return "+" + humanize.Comma(v)
}

// Listener receives the bot's log and notify events. Implementations must
// not block.
type Listener interface {
	OnLog(e Event)
	OnNotify(n Notification)
}

// SlogListener forwards events to a slog.Logger.
type SlogListener struct {
	Logger *slog.Logger
}

func (l SlogListener) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

func (l SlogListener) OnLog(e Event) {
	l.logger().Log(context.Background(), e.Level, e.Message, e.Attrs...)
}

func (l SlogListener) OnNotify(n Notification) {
	l.logger().Info("Campaign changed",
		"summary", n.Summary(),
		"pledged_delta", n.Delta.Pledged,
		"backers_delta", n.Delta.BackersCount,
	)
}

// MultiListener fans events out to several listeners in order.
type MultiListener []Listener

func (m MultiListener) OnLog(e Event) {
	for _, l := range m {
		l.OnLog(e)
	}
}

func (m MultiListener) OnNotify(n Notification) {
	for _, l := range m {
		l.OnNotify(n)
	}
}
