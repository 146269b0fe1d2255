package processor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"

	"github.com/iokaravas/ksDiscordBot/internal/config"
	"github.com/iokaravas/ksDiscordBot/internal/models"
	"github.com/iokaravas/ksDiscordBot/internal/stats"
)

var botStart = time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.BotToken = "token"
	cfg.ChannelID = "123"
	cfg.Campaign = "creator/campaign"
	cfg.Goal = 2500
	return cfg
}

type botFixture struct {
	bot      *Bot
	fetcher  *mockFetcher
	channel  *mockChannel
	listener *recordingListener
	recorder *mockRecorder
	clock    *clockwork.FakeClock
}

func newBotFixture(t *testing.T, cfg config.Config, snapshots ...models.Snapshot) *botFixture {
	t.Helper()
	f := &botFixture{
		fetcher:  &mockFetcher{snapshots: snapshots},
		channel:  &mockChannel{},
		listener: newRecordingListener(),
		recorder: &mockRecorder{},
		clock:    clockwork.NewFakeClockAt(botStart),
	}
	bot, err := New(cfg, f.fetcher, f.channel,
		WithClock(f.clock),
		WithListener(f.listener),
		WithRecorder(f.recorder),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	f.bot = bot
	return f
}

func (f *botFixture) run(t *testing.T) {
	t.Helper()
	if err := f.bot.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error: %v", err)
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.BotToken = ""
	ch := &mockChannel{}

	_, err := New(cfg, &mockFetcher{}, ch)
	var cfgErr *models.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("New() error = %v, want ConfigurationError", err)
	}
	if ops := ch.Ops(); len(ops) != 0 {
		t.Errorf("New() should not touch the channel, got %v", ops)
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	var cfgErr *models.ConfigurationError
	if _, err := New(testConfig(), nil, &mockChannel{}); !errors.As(err, &cfgErr) {
		t.Errorf("New() with nil fetcher error = %v, want ConfigurationError", err)
	}
	if _, err := New(testConfig(), &mockFetcher{}, nil); !errors.As(err, &cfgErr) {
		t.Errorf("New() with nil channel error = %v, want ConfigurationError", err)
	}
}

func TestBot_BaselineThenChange(t *testing.T) {
	cfg := testConfig()
	cfg.NotifyOnChange = true
	f := newBotFixture(t, cfg,
		models.Snapshot{Pledged: 1000, BackersCount: 10, CommentsCount: 2},
		models.Snapshot{Pledged: 1200, BackersCount: 12, CommentsCount: 2},
	)

	// The first fetch establishes the baseline and is not a change.
	f.run(t)
	if diff := cmp.Diff([]string{"latest", "send"}, f.channel.Ops()); diff != "" {
		t.Errorf("baseline ops mismatch (-want +got):\n%s", diff)
	}
	if got := f.channel.LastContent(); strings.Contains(got, "*(") {
		t.Errorf("baseline message should carry no deltas:\n%s", got)
	}
	if n := f.listener.Notices(); len(n) != 0 {
		t.Errorf("baseline should not notify, got %d notices", len(n))
	}

	f.channel.reset()
	f.clock.Advance(30 * time.Minute)
	f.run(t)

	if diff := cmp.Diff([]string{"latest", "delete:msg-1", "send"}, f.channel.Ops()); diff != "" {
		t.Errorf("change ops mismatch (-want +got):\n%s", diff)
	}
	got := f.channel.LastContent()
	for _, want := range []string{
		"__Kickstarter Campaign 48.00% funded:__",
		":moneybag: *(+:two::zero::zero:)*",
		":scream: *(+:two:)*",
		"*Last changed on: 2026-10-14 10:30:00 UTC*",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("message missing %q:\n%s", want, got)
		}
	}

	notices := f.listener.Notices()
	if len(notices) != 1 {
		t.Fatalf("notices = %d, want 1", len(notices))
	}
	if want := (models.Snapshot{Pledged: 200, BackersCount: 2}); notices[0].Delta != want {
		t.Errorf("notice delta = %+v, want %+v", notices[0].Delta, want)
	}

	state := f.bot.State()
	if want := (models.Snapshot{Pledged: 200, BackersCount: 2}); state.Totals != want {
		t.Errorf("totals = %+v, want %+v", state.Totals, want)
	}
	if state.CleanRun {
		t.Error("tally should no longer be a clean run")
	}
	if diff := cmp.Diff([]string{ResultOK, ResultOK}, f.recorder.cycles); diff != "" {
		t.Errorf("recorded cycles mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"sent", "reposted"}, f.recorder.publishes); diff != "" {
		t.Errorf("recorded publishes mismatch (-want +got):\n%s", diff)
	}
}

func TestBot_UnchangedCycleEditsAndKeepsChangedAt(t *testing.T) {
	cfg := testConfig()
	cfg.NotifyOnChange = true
	f := newBotFixture(t, cfg,
		models.Snapshot{Pledged: 1000, BackersCount: 10, CommentsCount: 2},
		models.Snapshot{Pledged: 1200, BackersCount: 12, CommentsCount: 2},
		models.Snapshot{Pledged: 1200, BackersCount: 12, CommentsCount: 2},
	)
	f.run(t)
	f.clock.Advance(30 * time.Minute)
	f.run(t)

	f.channel.reset()
	f.clock.Advance(30 * time.Minute)
	f.run(t)

	if diff := cmp.Diff([]string{"latest", "edit:msg-2"}, f.channel.Ops()); diff != "" {
		t.Errorf("unchanged ops mismatch (-want +got):\n%s", diff)
	}
	got := f.channel.LastContent()
	if strings.Contains(got, "*(") {
		t.Errorf("unchanged message should omit deltas:\n%s", got)
	}
	if !strings.Contains(got, "*Last changed on: 2026-10-14 10:30:00 UTC*") {
		t.Errorf("changed-at should stay at the last change:\n%s", got)
	}
	if !strings.Contains(got, "*Last checked on: 2026-10-14 11:00:00 UTC*") {
		t.Errorf("checked-at should advance:\n%s", got)
	}
	if n := f.listener.Notices(); len(n) != 1 {
		t.Errorf("notices = %d, want 1", len(n))
	}
}

func TestBot_ChangedAtFallsBackToBaseline(t *testing.T) {
	f := newBotFixture(t, testConfig(), models.Snapshot{Pledged: 1000, BackersCount: 10})
	f.run(t)
	f.clock.Advance(30 * time.Minute)
	f.run(t)

	if got := f.channel.LastContent(); !strings.Contains(got, "*Last changed on: 2026-10-14 10:00:00 UTC*") {
		t.Errorf("changed-at should show when the baseline was observed:\n%s", got)
	}
}

func TestBot_NotifyRepostsOnlyWhenEnabled(t *testing.T) {
	f := newBotFixture(t, testConfig(),
		models.Snapshot{Pledged: 1000, BackersCount: 10},
		models.Snapshot{Pledged: 1100, BackersCount: 11},
	)
	f.run(t)
	f.channel.reset()
	f.run(t)

	if diff := cmp.Diff([]string{"latest", "edit:msg-1"}, f.channel.Ops()); diff != "" {
		t.Errorf("ops mismatch (-want +got):\n%s", diff)
	}
}

func TestBot_DailyReset(t *testing.T) {
	cfg := testConfig()
	cfg.ResetDaily = true
	f := newBotFixture(t, cfg,
		models.Snapshot{Pledged: 1000, BackersCount: 10},
		models.Snapshot{Pledged: 1200, BackersCount: 12},
		models.Snapshot{Pledged: 1300, BackersCount: 13},
	)
	f.clock.Advance(13*time.Hour + 50*time.Minute) // 23:50
	f.run(t)
	f.clock.Advance(5 * time.Minute)
	f.run(t)

	if got := f.bot.State().Totals; got.Pledged != 200 {
		t.Fatalf("totals before midnight = %+v, want pledged 200", got)
	}

	f.clock.Advance(15 * time.Minute) // 00:10 next day
	f.run(t)

	state := f.bot.State()
	if !state.Totals.IsZero() {
		t.Errorf("totals after reset = %+v, want zero", state.Totals)
	}
	if !state.CleanRun {
		t.Error("tally should be a clean run after the reset")
	}
	if want := (models.Snapshot{Pledged: 1300, BackersCount: 13}); state.Cache != want {
		t.Errorf("cache after reset = %+v, want %+v", state.Cache, want)
	}
	if !f.listener.HasMessage("Daily reset") {
		t.Error("reset should be logged")
	}
	if got := f.channel.LastContent(); strings.Contains(got, "*(") {
		t.Errorf("first message after reset should carry no deltas:\n%s", got)
	}
}

func TestBot_NoResetWithinDay(t *testing.T) {
	cfg := testConfig()
	cfg.ResetDaily = true
	f := newBotFixture(t, cfg,
		models.Snapshot{Pledged: 1000},
		models.Snapshot{Pledged: 1200},
		models.Snapshot{Pledged: 1300},
	)
	for i := 0; i < 3; i++ {
		f.run(t)
		f.clock.Advance(time.Hour)
	}
	if got := f.bot.State().Totals.Pledged; got != 300 {
		t.Errorf("totals pledged = %d, want 300", got)
	}
	if f.listener.HasMessage("Daily reset") {
		t.Error("no reset expected within a single day")
	}
}

func TestBot_FetchFailureLeavesStateUntouched(t *testing.T) {
	boom := errors.New("connection refused")
	tests := []struct {
		name       string
		err        error
		wantResult string
	}{
		{"transport", &models.FetchError{URL: "http://ks", Err: boom}, ResultFetchError},
		{"malformed", &models.MalformedResponseError{Err: boom}, ResultMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newBotFixture(t, testConfig(),
				models.Snapshot{Pledged: 1000, BackersCount: 10},
				models.Snapshot{Pledged: 9999, BackersCount: 99},
			)
			f.fetcher.errs = []error{nil, tt.err}
			f.run(t)
			before := f.bot.State()
			f.channel.reset()

			err := f.bot.RunCycle(context.Background())
			if !errors.Is(err, tt.err) {
				t.Fatalf("RunCycle() error = %v, want %v", err, tt.err)
			}
			if diff := cmp.Diff(before, f.bot.State()); diff != "" {
				t.Errorf("state changed after fetch failure (-before +after):\n%s", diff)
			}
			if ops := f.channel.Ops(); len(ops) != 0 {
				t.Errorf("fetch failure should not publish, got %v", ops)
			}
			if diff := cmp.Diff([]string{ResultOK, tt.wantResult}, f.recorder.cycles); diff != "" {
				t.Errorf("recorded cycles mismatch (-want +got):\n%s", diff)
			}
			if !f.listener.HasMessage("Failed to fetch campaign stats") {
				t.Error("fetch failure should be logged")
			}
		})
	}
}

func TestBot_PublishFailureIsAbsorbed(t *testing.T) {
	f := newBotFixture(t, testConfig(),
		models.Snapshot{Pledged: 1000, BackersCount: 10},
		models.Snapshot{Pledged: 1200, BackersCount: 12},
		models.Snapshot{Pledged: 1200, BackersCount: 12},
	)
	f.channel.sendErr = errors.New("missing access")

	for i := 0; i < 3; i++ {
		f.run(t)
	}

	state := f.bot.State()
	if want := (models.Snapshot{Pledged: 1200, BackersCount: 12}); state.Cache != want {
		t.Errorf("cache = %+v, want %+v", state.Cache, want)
	}
	// The change is counted once even though no message was ever published.
	if want := (models.Snapshot{Pledged: 200, BackersCount: 2}); state.Totals != want {
		t.Errorf("totals = %+v, want %+v", state.Totals, want)
	}
	want := []string{ResultPublishError, ResultPublishError, ResultPublishError}
	if diff := cmp.Diff(want, f.recorder.cycles); diff != "" {
		t.Errorf("recorded cycles mismatch (-want +got):\n%s", diff)
	}
	if !f.listener.HasMessage("Failed to publish status message") {
		t.Error("publish failure should be logged")
	}
}

func TestBot_TotalsAccumulateDeltas(t *testing.T) {
	series := []models.Snapshot{
		{Pledged: 1000, BackersCount: 10, CommentsCount: 1},
		{Pledged: 1200, BackersCount: 12, CommentsCount: 1},
		{Pledged: 1200, BackersCount: 12, CommentsCount: 4},
		{Pledged: 1150, BackersCount: 11, CommentsCount: 4},
		{Pledged: 1500, BackersCount: 15, CommentsCount: 5},
		{Pledged: 1500, BackersCount: 15, CommentsCount: 5},
	}
	f := newBotFixture(t, testConfig(), series...)
	for range series {
		f.run(t)
	}

	first, last := series[0], series[len(series)-1]
	totals := f.bot.State().Totals
	if totals.Pledged != last.Pledged-first.Pledged || totals.BackersCount != last.BackersCount-first.BackersCount {
		t.Errorf("totals = %+v, want pledged %d backers %d",
			totals, last.Pledged-first.Pledged, last.BackersCount-first.BackersCount)
	}
	if got := len(f.recorder.snapshots); got != len(series) {
		t.Errorf("recorded snapshots = %d, want %d", got, len(series))
	}
}

func TestBot_SeededState(t *testing.T) {
	cfg := testConfig()
	cfg.InitialPledged = 1000
	cfg.InitialBackers = 10
	cfg.InitialTotalPledged = 300
	cfg.InitialTotalBackers = 3
	cfg.ShowTotalChange = true
	f := newBotFixture(t, cfg, models.Snapshot{Pledged: 1200, BackersCount: 12})

	f.run(t)

	state := f.bot.State()
	if want := (models.Snapshot{Pledged: 500, BackersCount: 5}); state.Totals != want {
		t.Errorf("totals = %+v, want %+v", state.Totals, want)
	}
	if n := f.listener.Notices(); len(n) != 1 {
		t.Errorf("seeded cache should make the first fetch a change, got %d notices", len(n))
	}
	if got := f.channel.LastContent(); !strings.Contains(got, "Since reset:  :moneybag: +:five::zero::zero:  :scream: +:five:") {
		t.Errorf("message should show the seeded totals:\n%s", got)
	}
}

func TestBot_StartConnectsThenPolls(t *testing.T) {
	f := newBotFixture(t, testConfig(), models.Snapshot{Pledged: 1000, BackersCount: 10})

	if err := f.bot.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer f.bot.Stop()

	if diff := cmp.Diff([]string{"connect", "latest", "send"}, f.channel.Ops()); diff != "" {
		t.Errorf("start ops mismatch (-want +got):\n%s", diff)
	}
	if got := f.bot.PollerState(); got != PollerPolling {
		t.Errorf("poller state = %s, want polling", got)
	}
	if !f.listener.HasMessage("Starting to poll campaign") {
		t.Error("start should be logged")
	}
}

func TestBot_StartFailsWhenConnectFails(t *testing.T) {
	f := newBotFixture(t, testConfig())
	f.channel.connectErr = errors.New("401 unauthorized")

	if err := f.bot.Start(context.Background()); !errors.Is(err, f.channel.connectErr) {
		t.Fatalf("Start() error = %v, want connect error", err)
	}
	if got := f.bot.PollerState(); got != PollerIdle {
		t.Errorf("poller state = %s, want idle", got)
	}
	if f.fetcher.calls != 0 {
		t.Errorf("fetch calls = %d, want 0", f.fetcher.calls)
	}
}

func TestBot_PublishFallbackReachesListener(t *testing.T) {
	cfg := testConfig()
	cfg.ForceNewMessage = true
	f := newBotFixture(t, cfg, models.Snapshot{Pledged: 1000, BackersCount: 10})
	f.channel.latest = &models.Message{ID: "m", FromBot: true}
	f.channel.editErr = errors.New("boom")

	f.run(t)

	if diff := cmp.Diff([]string{"latest", "edit:m", "send"}, f.channel.Ops()); diff != "" {
		t.Errorf("ops mismatch (-want +got):\n%s", diff)
	}
	if !f.listener.HasMessage("Edit failed, sending a new message") {
		t.Error("edit fallback should be reported to the registered listener")
	}
}

type stubPageLoader struct{ page string }

func (s stubPageLoader) LoadPage(context.Context, string) (string, error) { return s.page, nil }

func TestBot_BrowserFallbackReachesListener(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.KickstarterBaseURL = server.URL
	fetcher := stats.New(&cfg, stubPageLoader{
		page: `<pre>{"project":{"pledged":"1200","backers_count":12,"comments_count":2}}</pre>`,
	})
	listener := newRecordingListener()
	bot, err := New(cfg, fetcher, &mockChannel{},
		WithClock(clockwork.NewFakeClockAt(botStart)),
		WithListener(listener),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	if err := bot.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error: %v", err)
	}
	if !listener.HasMessage("Stats request was challenged, retrying through browser") {
		t.Error("browser fallback should be reported to the registered listener")
	}
	if want := (models.Snapshot{Pledged: 1200, BackersCount: 12, CommentsCount: 2}); bot.State().Cache != want {
		t.Errorf("cache = %+v, want %+v", bot.State().Cache, want)
	}
}
