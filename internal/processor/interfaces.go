package processor

import (
	"context"
	"log/slog"

	"github.com/iokaravas/ksDiscordBot/internal/models"
)

// StatsFetcher abstracts the campaign statistics endpoint.
type StatsFetcher interface {
	Fetch(ctx context.Context) (models.Snapshot, error)
}

// logSetter is implemented by fetchers that report their own events, such
// as a fallback to another transport.
type logSetter interface {
	SetLogFunc(fn func(level slog.Level, msg string, attrs ...any))
}

// Channel abstracts the chat channel the status message lives in.
type Channel interface {
	Connect(ctx context.Context) error
	LatestMessage(ctx context.Context) (*models.Message, error)
	Send(ctx context.Context, content string) (string, error)
	Edit(ctx context.Context, messageID, content string) error
	Delete(ctx context.Context, messageID string) error
}

// Recorder receives per-cycle measurements for export.
type Recorder interface {
	ObserveSnapshot(s models.Snapshot)
	ObserveCycle(result string)
	ObservePublish(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveSnapshot(models.Snapshot) {}
func (nopRecorder) ObserveCycle(string)             {}
func (nopRecorder) ObservePublish(string)           {}
