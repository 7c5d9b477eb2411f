package timer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/junhyuck/slackpomo/internal/config"
	"github.com/junhyuck/slackpomo/internal/slack"
)

// ErrNotFound reports a cancel or status call against an id that is unknown
// or already terminal.
var ErrNotFound = errors.New("timer session not found or already finished")

// Notifier posts countdown notifications. *slack.Client satisfies it.
type Notifier interface {
	SendMessage(ctx context.Context, channel, text, threadTS string) (*slack.MessageReceipt, error)
}

// Defaults carries per-category durations and the retention cap for finished
// sessions.
type Defaults struct {
	Study   time.Duration
	Work    time.Duration
	Break   time.Duration
	Meeting time.Duration
	Custom  time.Duration

	MaxFinished int
}

// DefaultsFrom converts the minute-based config block.
func DefaultsFrom(tc config.TimerConfig) Defaults {
	return Defaults{
		Study:       time.Duration(tc.StudyMinutes) * time.Minute,
		Work:        time.Duration(tc.WorkMinutes) * time.Minute,
		Break:       time.Duration(tc.BreakMinutes) * time.Minute,
		Meeting:     time.Duration(tc.MeetingMinutes) * time.Minute,
		Custom:      time.Duration(tc.CustomMinutes) * time.Minute,
		MaxFinished: tc.MaxFinished,
	}
}

func (d Defaults) withDefaults() Defaults {
	if d.Study <= 0 {
		d.Study = 50 * time.Minute
	}
	if d.Work <= 0 {
		d.Work = 25 * time.Minute
	}
	if d.Break <= 0 {
		d.Break = 10 * time.Minute
	}
	if d.Meeting <= 0 {
		d.Meeting = 30 * time.Minute
	}
	if d.Custom <= 0 {
		d.Custom = 25 * time.Minute
	}
	if d.MaxFinished <= 0 {
		d.MaxFinished = 256
	}
	return d
}

func (d Defaults) forCategory(c Category) time.Duration {
	switch c {
	case CategoryStudy:
		return d.Study
	case CategoryWork:
		return d.Work
	case CategoryBreak:
		return d.Break
	case CategoryMeeting:
		return d.Meeting
	default:
		return d.Custom
	}
}

// notifyTimeout bounds the best-effort notification sends that run outside
// any caller context (expiry fires from a timer goroutine).
const notifyTimeout = 30 * time.Second

// Manager owns all countdown sessions. Registry access is serialized by a
// mutex; expiry runs via time.AfterFunc, and the completed/cancelled race is
// resolved under the lock so exactly one terminal transition wins.
type Manager struct {
	notifier Notifier
	defaults Defaults
	logger   *slog.Logger

	now       func() time.Time
	afterFunc func(d time.Duration, f func()) *time.Timer

	mu       sync.Mutex
	sessions map[string]*session
	finished []string // terminal ids in transition order, oldest first
}

func NewManager(notifier Notifier, defaults Defaults, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		notifier:  notifier,
		defaults:  defaults.withDefaults(),
		logger:    logger,
		now:       time.Now,
		afterFunc: time.AfterFunc,
		sessions:  make(map[string]*session),
	}
}

// StartOptions describes one new countdown.
type StartOptions struct {
	Category Category
	Duration time.Duration // zero means the category default
	Channel  string        // notification destination; empty disables notifications
	Label    string
}

// Start registers a session, arms its expiry, and announces it. The start
// notification is best effort: a send failure is logged, not returned, and
// the countdown keeps running.
func (m *Manager) Start(ctx context.Context, opts StartOptions) (Snapshot, error) {
	cat, err := ParseCategory(string(opts.Category))
	if err != nil {
		return Snapshot{}, err
	}
	duration := opts.Duration
	if duration == 0 {
		duration = m.defaults.forCategory(cat)
	}
	if duration <= 0 {
		return Snapshot{}, fmt.Errorf("timer duration must be positive, got %s", duration)
	}

	now := m.now()
	s := &session{
		id:        string(cat) + "_" + ulid.Make().String(),
		category:  cat,
		channel:   opts.Channel,
		label:     opts.Label,
		duration:  duration,
		startedAt: now,
		endsAt:    now.Add(duration),
		state:     StateRunning,
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	s.expiry = m.afterFunc(duration, func() { m.complete(s.id) })
	snap := s.snapshot(now)
	m.mu.Unlock()

	m.logger.Info("timer started",
		"id", s.id, "category", string(cat), "duration", duration.String(), "channel", opts.Channel)
	m.notify(ctx, s.channel, startText(snap))
	return snap, nil
}

// complete is the expiry path. If cancellation already won, it is a no-op.
func (m *Manager) complete(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok || s.state != StateRunning {
		m.mu.Unlock()
		return
	}
	now := m.now()
	s.state = StateCompleted
	s.finished = now
	m.trackFinishedLocked(id)
	snap := s.snapshot(now)
	m.mu.Unlock()

	m.logger.Info("timer completed", "id", id, "category", string(snap.Category))
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	m.notify(ctx, snap.Channel, completionText(snap))
}

// Cancel stops a running session. Cancelling an unknown or already terminal
// session fails with ErrNotFound.
func (m *Manager) Cancel(ctx context.Context, id string) (Snapshot, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok || s.state.Terminal() {
		m.mu.Unlock()
		return Snapshot{}, fmt.Errorf("cancel %s: %w", id, ErrNotFound)
	}
	if s.expiry != nil {
		s.expiry.Stop()
	}
	now := m.now()
	s.state = StateCancelled
	s.finished = now
	m.trackFinishedLocked(id)
	snap := s.snapshot(now)
	m.mu.Unlock()

	m.logger.Info("timer cancelled", "id", id, "remaining", snap.Remaining.String())
	m.notify(ctx, snap.Channel, cancelText(snap))
	return snap, nil
}

// Status returns the live view of one session, terminal or not.
func (m *Manager) Status(id string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Snapshot{}, fmt.Errorf("status %s: %w", id, ErrNotFound)
	}
	return s.snapshot(m.now()), nil
}

// ListActive returns running sessions ordered by soonest expiry.
func (m *Manager) ListActive() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	out := make([]Snapshot, 0, len(m.sessions))
	for _, s := range m.sessions {
		if s.state == StateRunning {
			out = append(out, s.snapshot(now))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndsAt.Before(out[j].EndsAt) })
	return out
}

// Purge drops every terminal session and reports how many were removed.
func (m *Manager) Purge() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		if s.state.Terminal() {
			delete(m.sessions, id)
			removed++
		}
	}
	m.finished = m.finished[:0]
	return removed
}

// trackFinishedLocked records a terminal transition and evicts the oldest
// finished sessions beyond the retention cap. Caller holds the mutex.
func (m *Manager) trackFinishedLocked(id string) {
	m.finished = append(m.finished, id)
	for len(m.finished) > m.defaults.MaxFinished {
		oldest := m.finished[0]
		m.finished = m.finished[1:]
		delete(m.sessions, oldest)
	}
}

func (m *Manager) notify(ctx context.Context, channel, text string) {
	if m.notifier == nil || channel == "" {
		return
	}
	if _, err := m.notifier.SendMessage(ctx, channel, text, ""); err != nil {
		m.logger.Warn("timer notification failed", "channel", channel, "error", err)
	}
}

var categoryEmoji = map[Category]string{
	CategoryStudy:   "📚",
	CategoryWork:    "💼",
	CategoryBreak:   "☕",
	CategoryMeeting: "📅",
	CategoryCustom:  "⏰",
}

func categoryTitle(c Category) string {
	switch c {
	case CategoryStudy:
		return "Study"
	case CategoryWork:
		return "Work"
	case CategoryBreak:
		return "Break"
	case CategoryMeeting:
		return "Meeting"
	default:
		return "Custom"
	}
}

func startText(s Snapshot) string {
	text := fmt.Sprintf("%s %s timer started: %s remaining.",
		categoryEmoji[s.Category], categoryTitle(s.Category), formatMinutes(s.Duration))
	if s.Label != "" {
		text += " (" + s.Label + ")"
	}
	return text
}

func completionText(s Snapshot) string {
	base := fmt.Sprintf("%s %s timer finished after %s!",
		categoryEmoji[s.Category], categoryTitle(s.Category), formatMinutes(s.Duration))
	switch s.Category {
	case CategoryStudy, CategoryWork:
		base += " Time for a break."
	case CategoryBreak:
		base += " Back to it."
	case CategoryMeeting:
		base += " Time to wrap up."
	}
	if s.Label != "" {
		base += " (" + s.Label + ")"
	}
	return base
}

func cancelText(s Snapshot) string {
	return fmt.Sprintf("%s %s timer cancelled with %s remaining.",
		categoryEmoji[s.Category], categoryTitle(s.Category), formatMinutes(s.Remaining))
}

func formatMinutes(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%d seconds", int(d/time.Second))
	}
	mins := int(d / time.Minute)
	if rem := int((d % time.Minute) / time.Second); rem > 0 {
		return fmt.Sprintf("%d min %d sec", mins, rem)
	}
	return fmt.Sprintf("%d minutes", mins)
}
