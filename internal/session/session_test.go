package session

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windfall/phonoecho/internal/assessment"
	"github.com/windfall/phonoecho/internal/errors"
	"github.com/windfall/phonoecho/internal/haptics"
	"github.com/windfall/phonoecho/internal/history"
)

func attempt(lesson int, id string) *Attempt {
	return &Attempt{
		ID:      id,
		Lesson:  lesson,
		At:      time.Now(),
		Result:  &assessment.Result{Words: []assessment.WordResult{}},
		Tallies: assessment.NewTallies(),
	}
}

func TestSession_Lifecycle(t *testing.T) {
	s := New("alice")
	assert.Equal(t, StateEmpty, s.State(0))

	_, ok := s.History(0)
	assert.False(t, ok)

	err := s.BeginAttempt(0)
	assert.True(t, errors.HasCode(err, errors.ErrConflict), "recording before load must fail")

	s.Load(0, history.New(0))
	assert.Equal(t, StateLoaded, s.State(0))
	h, ok := s.History(0)
	require.True(t, ok)
	assert.Empty(t, h.Attempts)

	require.NoError(t, s.BeginAttempt(0))
	assert.Equal(t, StateInFlight, s.State(0))

	err = s.BeginAttempt(0)
	assert.True(t, errors.HasCode(err, errors.ErrAttemptInFlight))

	require.NoError(t, s.CompleteAttempt(attempt(0, "a1")))
	assert.Equal(t, StateScored, s.State(0))

	_, ok = s.History(0)
	assert.False(t, ok, "a save invalidates the cached history")

	reloaded := history.New(0)
	reloaded.RecordAttempt(assessment.Scores{Pronunciation: 80}, assessment.NewTallies())
	s.Load(0, reloaded)
	assert.Equal(t, StateScored, s.State(0))
	h, ok = s.History(0)
	require.True(t, ok)
	assert.Len(t, h.Attempts, 1)

	latest, ok := s.LatestAttempt()
	require.True(t, ok)
	assert.Equal(t, "a1", latest.ID)

	require.NoError(t, s.BeginAttempt(0))
	assert.Equal(t, StateInFlight, s.State(0))
}

func TestSession_FailAttemptReverts(t *testing.T) {
	s := New("alice")
	s.Load(0, history.New(0))
	require.NoError(t, s.BeginAttempt(0))
	require.NoError(t, s.CompleteAttempt(attempt(0, "a1")))

	require.NoError(t, s.BeginAttempt(0))
	s.FailAttempt(0)

	assert.Equal(t, StateLoaded, s.State(0))
	_, ok := s.Latest(0)
	assert.False(t, ok)

	s.FailAttempt(0)
	assert.Equal(t, StateLoaded, s.State(0))
}

func TestSession_CompleteWithoutBegin(t *testing.T) {
	s := New("alice")
	s.Load(0, history.New(0))
	err := s.CompleteAttempt(attempt(0, "a1"))
	assert.True(t, errors.HasCode(err, errors.ErrConflict))
}

func TestSession_LessonsAreIndependent(t *testing.T) {
	s := New("alice")
	s.Load(0, history.New(0))
	s.Load(1, history.New(1))

	require.NoError(t, s.BeginAttempt(0))
	require.NoError(t, s.BeginAttempt(1))
	require.NoError(t, s.CompleteAttempt(attempt(1, "b1")))

	assert.Equal(t, StateInFlight, s.State(0))
	assert.Equal(t, StateScored, s.State(1))

	found, ok := s.FindAttempt("b1")
	require.True(t, ok)
	assert.Equal(t, 1, found.Lesson)
	_, ok = s.FindAttempt("nope")
	assert.False(t, ok)
}

func TestSession_HistoryIsACopy(t *testing.T) {
	s := New("alice")
	s.Load(0, history.New(0))

	h, _ := s.History(0)
	h.RecordAttempt(assessment.Scores{}, assessment.NewTallies())

	again, _ := s.History(0)
	assert.Empty(t, again.Attempts)
}

func TestSession_LessonSwitchCancelsHaptics(t *testing.T) {
	s := New("alice")
	scheduler := haptics.NewScheduler(haptics.NewLogDriver(zerolog.Nop()), zerolog.Nop())

	task := scheduler.Play(haptics.DefaultPattern(), time.Hour)
	s.SetHaptic(task)

	s.SelectLesson(0)
	select {
	case <-task.Done():
		t.Fatal("selecting the same lesson must not cancel playback")
	case <-time.After(10 * time.Millisecond):
	}

	s.SelectLesson(2)
	assert.Equal(t, 2, s.CurrentLesson())
	select {
	case <-task.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("lesson switch did not cancel playback")
	}
	assert.False(t, s.CancelHaptic())
}

func TestManager(t *testing.T) {
	m := NewManager(0, time.Hour)

	s := m.Create("alice")
	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Equal(t, 1, m.Len())

	assert.True(t, m.Delete(s.ID))
	_, err = m.Get(s.ID)
	assert.True(t, errors.HasCode(err, errors.ErrNotFound))
	assert.False(t, m.Delete(s.ID))
}

func TestManager_EvictionClosesSession(t *testing.T) {
	m := NewManager(1, time.Hour)
	scheduler := haptics.NewScheduler(haptics.NewLogDriver(zerolog.Nop()), zerolog.Nop())

	first := m.Create("alice")
	task := scheduler.Play(haptics.DefaultPattern(), time.Hour)
	first.SetHaptic(task)

	m.Create("bob")
	select {
	case <-task.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("evicted session kept its haptic task")
	}
	_, err := m.Get(first.ID)
	assert.Error(t, err)
}

func TestManager_Close(t *testing.T) {
	m := NewManager(0, time.Hour)
	scheduler := haptics.NewScheduler(haptics.NewLogDriver(zerolog.Nop()), zerolog.Nop())

	s := m.Create("alice")
	task := scheduler.Play(haptics.DefaultPattern(), time.Hour)
	s.SetHaptic(task)

	m.Close()
	assert.Equal(t, 0, m.Len())
	select {
	case <-task.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("closing the manager kept a haptic task running")
	}
}
