package processor

import (
	"context"
	"fmt"
	"sync"

	"github.com/iokaravas/ksDiscordBot/internal/models"
)

// --- Mock implementations ---

type mockFetcher struct {
	mu        sync.Mutex
	snapshots []models.Snapshot
	errs      []error
	calls     int
}

// Fetch returns the queued snapshots in order, repeating the last one.
func (m *mockFetcher) Fetch(_ context.Context) (models.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.calls
	m.calls++
	if i < len(m.errs) && m.errs[i] != nil {
		return models.Snapshot{}, m.errs[i]
	}
	if len(m.snapshots) == 0 {
		return models.Snapshot{}, nil
	}
	if i >= len(m.snapshots) {
		i = len(m.snapshots) - 1
	}
	return m.snapshots[i], nil
}

type mockChannel struct {
	mu sync.Mutex

	latest     *models.Message
	latestErr  error
	sendErr    error
	editErr    error
	deleteErr  error
	connectErr error

	ops      []string
	contents []string
	nextID   int
}

func (m *mockChannel) Connect(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "connect")
	return m.connectErr
}

func (m *mockChannel) LatestMessage(_ context.Context) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "latest")
	if m.latestErr != nil {
		return nil, m.latestErr
	}
	if m.latest == nil {
		return nil, nil
	}
	msg := *m.latest
	return &msg, nil
}

func (m *mockChannel) Send(_ context.Context, content string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "send")
	if m.sendErr != nil {
		return "", m.sendErr
	}
	m.nextID++
	id := fmt.Sprintf("msg-%d", m.nextID)
	m.contents = append(m.contents, content)
	m.latest = &models.Message{ID: id, FromBot: true}
	return id, nil
}

func (m *mockChannel) Edit(_ context.Context, messageID, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "edit:"+messageID)
	if m.editErr != nil {
		return m.editErr
	}
	m.contents = append(m.contents, content)
	return nil
}

func (m *mockChannel) Delete(_ context.Context, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "delete:"+messageID)
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.latest = nil
	return nil
}

func (m *mockChannel) Ops() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ops...)
}

func (m *mockChannel) LastContent() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.contents) == 0 {
		return ""
	}
	return m.contents[len(m.contents)-1]
}

func (m *mockChannel) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = nil
}

type recordingListener struct {
	mu      sync.Mutex
	events  []Event
	notices []Notification
	logged  chan string
}

func newRecordingListener() *recordingListener {
	return &recordingListener{logged: make(chan string, 64)}
}

func (l *recordingListener) OnLog(e Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
	select {
	case l.logged <- e.Message:
	default:
	}
}

func (l *recordingListener) OnNotify(n Notification) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notices = append(l.notices, n)
}

func (l *recordingListener) Notices() []Notification {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Notification(nil), l.notices...)
}

func (l *recordingListener) HasMessage(msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e.Message == msg {
			return true
		}
	}
	return false
}

type mockRecorder struct {
	mu        sync.Mutex
	snapshots []models.Snapshot
	cycles    []string
	publishes []string
}

func (r *mockRecorder) ObserveSnapshot(s models.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, s)
}

func (r *mockRecorder) ObserveCycle(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cycles = append(r.cycles, result)
}

func (r *mockRecorder) ObservePublish(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publishes = append(r.publishes, outcome)
}
