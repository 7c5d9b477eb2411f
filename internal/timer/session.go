package timer

import (
	"fmt"
	"strings"
	"time"
)

// Category names a timer kind. Each category carries its own default
// duration and notification wording.
type Category string

const (
	CategoryStudy   Category = "study"
	CategoryWork    Category = "work"
	CategoryBreak   Category = "break"
	CategoryMeeting Category = "meeting"
	CategoryCustom  Category = "custom"
)

// ParseCategory normalizes a category name. Unknown names are rejected rather
// than silently mapped to custom.
func ParseCategory(s string) (Category, error) {
	switch Category(strings.ToLower(strings.TrimSpace(s))) {
	case CategoryStudy:
		return CategoryStudy, nil
	case CategoryWork:
		return CategoryWork, nil
	case CategoryBreak:
		return CategoryBreak, nil
	case CategoryMeeting:
		return CategoryMeeting, nil
	case CategoryCustom, "":
		return CategoryCustom, nil
	default:
		return "", fmt.Errorf("unknown timer category %q (want study, work, break, meeting or custom)", s)
	}
}

// State is the lifecycle position of a session. Completed and Cancelled are
// terminal and mutually exclusive: whichever transition happens first wins.
type State string

const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
)

func (s State) Terminal() bool { return s == StateCompleted || s == StateCancelled }

// session is the manager-owned record. All fields are guarded by the
// manager's mutex; the expiry timer is the only piece that fires outside it.
type session struct {
	id        string
	category  Category
	channel   string
	label     string
	duration  time.Duration
	startedAt time.Time
	endsAt    time.Time
	state     State
	finished  time.Time

	expiry *time.Timer
}

// Snapshot is an immutable view of a session handed to callers. Remaining and
// Progress are computed against the clock at snapshot time.
type Snapshot struct {
	ID        string        `json:"id"`
	Category  Category      `json:"category"`
	Channel   string        `json:"channel,omitempty"`
	Label     string        `json:"label,omitempty"`
	Duration  time.Duration `json:"-"`
	State     State         `json:"state"`
	StartedAt time.Time     `json:"started_at"`
	EndsAt    time.Time     `json:"ends_at"`
	Remaining time.Duration `json:"-"`
	Progress  float64       `json:"progress"`

	DurationSec  int `json:"duration_sec"`
	RemainingSec int `json:"remaining_sec"`
}

func (s *session) snapshot(now time.Time) Snapshot {
	snap := Snapshot{
		ID:        s.id,
		Category:  s.category,
		Channel:   s.channel,
		Label:     s.label,
		Duration:  s.duration,
		State:     s.state,
		StartedAt: s.startedAt,
		EndsAt:    s.endsAt,
	}

	// Terminal sessions freeze their view at the transition instant, so a
	// cancelled timer keeps reporting how much time was left.
	ref := now
	if s.state.Terminal() && !s.finished.IsZero() {
		ref = s.finished
	}
	if s.state != StateCompleted {
		if rem := s.endsAt.Sub(ref); rem > 0 {
			snap.Remaining = rem
		}
	}
	if s.duration > 0 {
		elapsed := ref.Sub(s.startedAt)
		p := float64(elapsed) / float64(s.duration)
		if p < 0 {
			p = 0
		}
		if p > 1 {
			p = 1
		}
		snap.Progress = p
	}
	if s.state == StateCompleted {
		snap.Progress = 1
	}

	snap.DurationSec = int(s.duration / time.Second)
	snap.RemainingSec = int(snap.Remaining / time.Second)
	return snap
}
