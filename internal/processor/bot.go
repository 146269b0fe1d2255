package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/iokaravas/ksDiscordBot/internal/config"
	"github.com/iokaravas/ksDiscordBot/internal/models"
	"github.com/iokaravas/ksDiscordBot/internal/stats"
)

// Cycle results reported to the Recorder.
const (
	ResultOK           = "ok"
	ResultFetchError   = "fetch_error"
	ResultMalformed    = "malformed"
	ResultPublishError = "publish_error"
)

// Bot keeps one channel message in sync with one campaign. All of its state
// belongs to the instance.
type Bot struct {
	cfg        config.Config
	fetcher    StatsFetcher
	channel    Channel
	publisher  *Publisher
	listener   Listener
	recorder   Recorder
	clock      clockwork.Clock
	renderOpts RenderOptions
	poller     *Poller

	mu         sync.Mutex
	cache      models.Snapshot
	tally      *models.Tally
	resetAt    time.Time
	baselineAt time.Time
}

type Option func(*Bot)

func WithClock(c clockwork.Clock) Option {
	return func(b *Bot) { b.clock = c }
}

func WithListener(l Listener) Option {
	return func(b *Bot) { b.listener = l }
}

func WithRecorder(r Recorder) Option {
	return func(b *Bot) { b.recorder = r }
}

// New validates cfg and wires a bot. It performs no network I/O.
func New(cfg config.Config, fetcher StatsFetcher, channel Channel, opts ...Option) (*Bot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if fetcher == nil || channel == nil {
		return nil, &models.ConfigurationError{Err: errors.New("stats fetcher and channel are required")}
	}

	b := &Bot{
		cfg:       cfg,
		fetcher:   fetcher,
		channel:   channel,
		listener:  SlogListener{},
		recorder:  nopRecorder{},
		clock:     clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.listener == nil {
		b.listener = SlogListener{}
	}
	if b.recorder == nil {
		b.recorder = nopRecorder{}
	}

	b.publisher = NewPublisher(channel, b.log)
	if ls, ok := fetcher.(logSetter); ok {
		ls.SetLogFunc(b.log)
	}

	b.renderOpts = RenderOptions{
		Goal:            cfg.Goal,
		ShowTotalChange: cfg.ShowTotalChange,
		ShowLink:        cfg.ShowLink,
		CampaignURL:     stats.CampaignURL(cfg.Campaign),
		Location:        cfg.Location(),
	}
	b.cache = cfg.InitialSnapshot()
	b.tally = models.NewTally(cfg.InitialTotals())
	b.resetAt = b.clock.Now()
	b.poller = NewPoller(b.clock, cfg.PollInterval(), b.cycle, b.listener)
	return b, nil
}

// Start connects to the channel and begins polling. The first cycle has run
// by the time Start returns.
func (b *Bot) Start(ctx context.Context) error {
	b.log(slog.LevelInfo, "Connecting to Discord", "channel", b.cfg.ChannelID)
	if err := b.channel.Connect(ctx); err != nil {
		return fmt.Errorf("connect to channel: %w", err)
	}
	b.log(slog.LevelInfo, "Starting to poll campaign",
		"campaign", b.cfg.Campaign,
		"interval", b.cfg.PollInterval(),
	)
	return b.poller.Start(ctx)
}

func (b *Bot) Stop() {
	b.poller.Stop()
}

func (b *Bot) PollerState() PollerState {
	return b.poller.State()
}

func (b *Bot) cycle(ctx context.Context) {
	_ = b.RunCycle(ctx)
}

// RunCycle performs one fetch-diff-render-publish pass. Fetch failures are
// returned and leave all state untouched. Publish failures are logged and
// absorbed.
func (b *Bot) RunCycle(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	b.resetIfNewDay(now)

	current, err := b.fetcher.Fetch(ctx)
	if err != nil {
		result := ResultFetchError
		var malformed *models.MalformedResponseError
		if errors.As(err, &malformed) {
			result = ResultMalformed
		}
		b.recorder.ObserveCycle(result)
		b.log(slog.LevelError, "Failed to fetch campaign stats", "error", err)
		return err
	}
	b.recorder.ObserveSnapshot(current)

	if b.baselineAt.IsZero() {
		b.baselineAt = now
	}

	changed, delta := Diff(b.cache, current)
	b.tally.Apply(delta, changed, now)
	if changed {
		b.listener.OnNotify(Notification{
			Campaign: b.cfg.Campaign,
			Current:  current,
			Delta:    delta,
			Totals:   b.tally.Totals(),
			At:       now,
		})
	}

	changedAt := b.tally.LastChangeAt()
	if changedAt.IsZero() {
		changedAt = b.baselineAt
	}
	msg := Render(RenderInput{
		Current:   current,
		Tally:     b.tally,
		Changed:   changed,
		CheckedAt: now,
		ChangedAt: changedAt,
	}, b.renderOpts)

	outcome, err := b.publisher.Publish(ctx, msg, PublishOptions{
		Notify:   b.cfg.NotifyOnChange && changed,
		ForceNew: b.cfg.ForceNewMessage,
	})

	// Swap even when publishing failed; keeping the old cache would count the
	// delta we just applied a second time.
	b.cache = current

	if err != nil {
		b.recorder.ObserveCycle(ResultPublishError)
		b.log(slog.LevelWarn, "Failed to publish status message", "error", err)
		return nil
	}
	b.recorder.ObservePublish(outcome.String())
	b.recorder.ObserveCycle(ResultOK)
	b.log(slog.LevelInfo, "Cycle complete",
		"changed", changed,
		"outcome", outcome.String(),
		"pledged", current.Pledged,
		"backers", current.BackersCount,
	)
	return nil
}

// resetIfNewDay clears the tally and cache on the first cycle of a new
// calendar day in the configured location.
func (b *Bot) resetIfNewDay(now time.Time) {
	if !b.cfg.ResetDaily {
		return
	}
	loc := b.renderOpts.Location
	y1, m1, d1 := b.resetAt.In(loc).Date()
	y2, m2, d2 := now.In(loc).Date()
	if y1 == y2 && m1 == m2 && d1 == d2 {
		return
	}

	b.tally.Reset(nil)
	b.cache = models.Snapshot{}
	b.baselineAt = time.Time{}
	b.resetAt = now
	b.log(slog.LevelInfo, "Daily reset", "day", now.In(loc).Format(time.DateOnly))
}

// State is a copy of the bot's mutable state.
type State struct {
	Cache        models.Snapshot
	Totals       models.Snapshot
	LastChange   models.Snapshot
	LastChangeAt time.Time
	CleanRun     bool
}

func (b *Bot) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return State{
		Cache:        b.cache,
		Totals:       b.tally.Totals(),
		LastChange:   b.tally.LastChange(),
		LastChangeAt: b.tally.LastChangeAt(),
		CleanRun:     b.tally.CleanRun(),
	}
}

func (b *Bot) log(level slog.Level, msg string, attrs ...any) {
	b.listener.OnLog(Event{Level: level, Message: msg, Attrs: attrs, At: b.clock.Now()})
}
