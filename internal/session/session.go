// Package session holds the per-login practice state: the selected lesson,
// per-lesson history caches and the attempt state machine
//
//	Empty -> Loaded -> InFlight -> Scored -> InFlight -> ...
//
// with InFlight -> Loaded when an assessment fails.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/windfall/phonoecho/internal/assessment"
	"github.com/windfall/phonoecho/internal/errors"
	"github.com/windfall/phonoecho/internal/haptics"
	"github.com/windfall/phonoecho/internal/history"
)

// State is the attempt state of one lesson within a session.
type State int

const (
	StateEmpty State = iota
	StateLoaded
	StateInFlight
	StateScored
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoaded:
		return "loaded"
	case StateInFlight:
		return "in_flight"
	case StateScored:
		return "scored"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Attempt is one scored recording.
type Attempt struct {
	ID      string
	Lesson  int
	At      time.Time
	Result  *assessment.Result
	Tallies assessment.Tallies
}

type lessonState struct {
	state   State
	history *history.LessonHistory
	stale   bool
	latest  *Attempt
}

// Session is one user's login. All methods are safe for concurrent use.
type Session struct {
	ID        string
	User      string
	CreatedAt time.Time

	mu      sync.Mutex
	current int
	lessons map[int]*lessonState
	haptic  *haptics.Task
}

// New creates an empty session for user.
func New(user string) *Session {
	return &Session{
		ID:        uuid.NewString(),
		User:      user,
		CreatedAt: time.Now().UTC(),
		lessons:   make(map[int]*lessonState),
	}
}

func (s *Session) lesson(idx int) *lessonState {
	ls, ok := s.lessons[idx]
	if !ok {
		ls = &lessonState{state: StateEmpty}
		s.lessons[idx] = ls
	}
	return ls
}

// CurrentLesson returns the selected lesson index.
func (s *Session) CurrentLesson() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// SelectLesson switches the current lesson. Switching abandons any haptic
// playback of the previous lesson.
func (s *Session) SelectLesson(idx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx != s.current {
		s.cancelHapticLocked()
	}
	s.current = idx
}

// State returns the state of a lesson.
func (s *Session) State(idx int) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ls, ok := s.lessons[idx]; ok {
		return ls.state
	}
	return StateEmpty
}

// History returns a copy of the cached history of a lesson. ok is false if
// the history was never loaded or was invalidated by a save.
func (s *Session) History(idx int) (h *history.LessonHistory, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ls, found := s.lessons[idx]
	if !found || ls.history == nil || ls.stale {
		return nil, false
	}
	return ls.history.Clone(), true
}

// Load caches a freshly read history. An Empty lesson becomes Loaded; other
// states are kept.
func (s *Session) Load(idx int, h *history.LessonHistory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ls := s.lesson(idx)
	ls.history = h.Clone()
	ls.stale = false
	if ls.state == StateEmpty {
		ls.state = StateLoaded
	}
}

// BeginAttempt moves a lesson to InFlight. Only one attempt per lesson may
// be in flight; a second one fails with ATTEMPT_IN_FLIGHT.
func (s *Session) BeginAttempt(idx int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ls := s.lesson(idx)
	switch ls.state {
	case StateInFlight:
		return errors.New(errors.ErrAttemptInFlight, "an attempt for this lesson is already being assessed")
	case StateEmpty:
		return errors.New(errors.ErrConflict, "lesson history must be loaded before recording")
	}
	ls.state = StateInFlight
	return nil
}

// FailAttempt reverts an InFlight lesson to Loaded. Nothing of the failed
// attempt, and no earlier attempt view, is retained.
func (s *Session) FailAttempt(idx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ls := s.lesson(idx)
	if ls.state != StateInFlight {
		return
	}
	ls.state = StateLoaded
	ls.latest = nil
}

// CompleteAttempt moves an InFlight lesson to Scored and records the
// attempt as the latest one. The cached history is invalidated so the next
// read reflects the saved attempt.
func (s *Session) CompleteAttempt(a *Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ls := s.lesson(a.Lesson)
	if ls.state != StateInFlight {
		return errors.New(errors.ErrConflict, fmt.Sprintf("lesson %d has no attempt in flight", a.Lesson))
	}
	ls.state = StateScored
	ls.latest = a
	ls.stale = true
	return nil
}

// Latest returns the latest scored attempt of a lesson.
func (s *Session) Latest(idx int) (*Attempt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ls, ok := s.lessons[idx]
	if !ok || ls.latest == nil {
		return nil, false
	}
	return ls.latest, true
}

// LatestAttempt returns the latest scored attempt of the current lesson.
func (s *Session) LatestAttempt() (*Attempt, bool) {
	return s.Latest(s.CurrentLesson())
}

// FindAttempt looks up a scored attempt by id across visited lessons.
func (s *Session) FindAttempt(id string) (*Attempt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ls := range s.lessons {
		if ls.latest != nil && ls.latest.ID == id {
			return ls.latest, true
		}
	}
	return nil, false
}

// SetHaptic replaces the running haptic task, cancelling the previous one.
func (s *Session) SetHaptic(t *haptics.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelHapticLocked()
	s.haptic = t
}

// CancelHaptic cancels the running haptic task. It reports whether there
// was one.
func (s *Session) CancelHaptic() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelHapticLocked()
}

func (s *Session) cancelHapticLocked() bool {
	if s.haptic == nil {
		return false
	}
	s.haptic.Cancel()
	s.haptic = nil
	return true
}

// Close releases background work owned by the session.
func (s *Session) Close() {
	s.CancelHaptic()
}
