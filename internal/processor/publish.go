package processor

import (
	"context"
	"log/slog"

	"github.com/iokaravas/ksDiscordBot/internal/models"
)

type PublishOutcome int

const (
	OutcomeNone PublishOutcome = iota
	// OutcomeSent means a new message was posted next to whatever was there.
	OutcomeSent
	// OutcomeEdited means our previous message was updated in place.
	OutcomeEdited
	// OutcomeReposted means our previous message was deleted and a new one
	// posted, so members get an unread notification.
	OutcomeReposted
)

func (o PublishOutcome) String() string {
	switch o {
	case OutcomeSent:
		return "sent"
	case OutcomeEdited:
		return "edited"
	case OutcomeReposted:
		return "reposted"
	default:
		return "none"
	}
}

type PublishOptions struct {
	// Notify reposts instead of editing so the channel shows as unread.
	Notify bool
	// ForceNew sends a fresh message when the primary action fails.
	ForceNew bool
}

// LogFunc receives the publisher's fallback events.
type LogFunc func(level slog.Level, msg string, attrs ...any)

// Publisher decides which channel operations keep the status message
// current.
type Publisher struct {
	channel Channel
	log     LogFunc
}

// NewPublisher returns a Publisher for ch. A nil log sends fallback events
// to the default slog logger.
func NewPublisher(ch Channel, log LogFunc) *Publisher {
	if log == nil {
		log = func(level slog.Level, msg string, attrs ...any) {
			slog.Log(context.Background(), level, msg, attrs...)
		}
	}
	return &Publisher{channel: ch, log: log}
}

func (p *Publisher) Publish(ctx context.Context, text string, opts PublishOptions) (PublishOutcome, error) {
	last, err := p.channel.LatestMessage(ctx)
	if err != nil {
		if !opts.ForceNew {
			return OutcomeNone, &models.PublishError{Op: "fetch latest message", Err: err}
		}
		p.log(slog.LevelWarn, "Could not read channel, sending a new message", "error", err)
		return p.send(ctx, text)
	}

	// Never touch somebody else's message.
	if last == nil || !last.FromBot {
		return p.send(ctx, text)
	}

	if opts.Notify {
		if err := p.channel.Delete(ctx, last.ID); err != nil {
			if !opts.ForceNew {
				return OutcomeNone, &models.PublishError{Op: "delete", Err: err}
			}
			p.log(slog.LevelWarn, "Delete failed, sending a new message", "id", last.ID, "error", err)
			return p.send(ctx, text)
		}
		if _, err := p.channel.Send(ctx, text); err != nil {
			return OutcomeNone, &models.PublishError{Op: "send", Err: err}
		}
		return OutcomeReposted, nil
	}

	if err := p.channel.Edit(ctx, last.ID, text); err != nil {
		if !opts.ForceNew {
			return OutcomeNone, &models.PublishError{Op: "edit", Err: err}
		}
		p.log(slog.LevelWarn, "Edit failed, sending a new message", "id", last.ID, "error", err)
		return p.send(ctx, text)
	}
	return OutcomeEdited, nil
}

func (p *Publisher) send(ctx context.Context, text string) (PublishOutcome, error) {
	if _, err := p.channel.Send(ctx, text); err != nil {
		return OutcomeNone, &models.PublishError{Op: "send", Err: err}
	}
	return OutcomeSent, nil
}
