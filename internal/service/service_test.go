package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windfall/phonoecho/internal/assessment"
	"github.com/windfall/phonoecho/internal/client"
	"github.com/windfall/phonoecho/internal/errors"
	"github.com/windfall/phonoecho/internal/repository"
	"github.com/windfall/phonoecho/internal/session"
)

func assessmentJSON(pronScore float64) []byte {
	return []byte(fmt.Sprintf(`{
  "RecognitionStatus": "Success",
  "NBest": [{
    "Display": "I think so.",
    "PronunciationAssessment": {"PronScore": %v, "AccuracyScore": 70, "FluencyScore": 80, "CompletenessScore": 100, "ProsodyScore": 65.5},
    "Words": [
      {"Word": "i", "Offset": 5000000, "Duration": 2000000,
       "PronunciationAssessment": {"AccuracyScore": 98, "ErrorType": "None"},
       "Phonemes": [{"Phoneme": "aɪ", "Offset": 5000000, "Duration": 2000000, "PronunciationAssessment": {"AccuracyScore": 98}}]},
      {"Word": "think", "Offset": 7000000, "Duration": 4000000,
       "PronunciationAssessment": {"AccuracyScore": 65, "ErrorType": "Mispronunciation"},
       "Phonemes": [
         {"Phoneme": "θ", "Offset": 7000000, "Duration": 1000000, "PronunciationAssessment": {"AccuracyScore": 35}},
         {"Phoneme": "ɪ", "Offset": 8000000, "Duration": 1000000, "PronunciationAssessment": {"AccuracyScore": 90}}
       ]},
      {"Word": "so", "Offset": 0, "Duration": 0,
       "PronunciationAssessment": {"AccuracyScore": 0, "ErrorType": "Omission"}}
    ]
  }]
}`, pronScore))
}

// testWAV returns two seconds of 16 kHz mono audio.
func testWAV(t *testing.T) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rec.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	data := make([]int, 32000)
	for i := range data {
		data[i] = (i % 200) * 100
	}
	enc := wav.NewEncoder(f, 16000, 16, 1, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 16000},
		Data:           data,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	return raw
}

type fakeAssessor struct {
	mu    sync.Mutex
	calls []string
	rates []int
	fn    func(ctx context.Context) ([]byte, error)
}

func (f *fakeAssessor) Assess(ctx context.Context, _ []byte, referenceText string, sampleRate int) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, referenceText)
	f.rates = append(f.rates, sampleRate)
	f.mu.Unlock()
	return f.fn(ctx)
}

func returning(raw []byte) *fakeAssessor {
	return &fakeAssessor{fn: func(context.Context) ([]byte, error) { return raw, nil }}
}

type failingScores struct {
	*repository.InMemoryScoreRepository
}

func (failingScores) SaveAttempt(context.Context, string, int, *assessment.Result) error {
	return errors.Persistence("disk full", fmt.Errorf("write failed"))
}

type memoryObjects struct {
	mu   sync.Mutex
	keys []string
}

func (m *memoryObjects) Put(_ context.Context, key string, _ []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, key)
	return "mem://" + key, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []AttemptEvent
	attrs  []map[string]string
}

func (p *recordingPublisher) Publish(_ context.Context, data any, attrs map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, data.(AttemptEvent))
	p.attrs = append(p.attrs, attrs)
	return nil
}

func lessonRepo(t *testing.T) *repository.FileLessonRepository {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "alice")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "00.txt"), []byte("I think so.\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "01.txt"), []byte("Good morning."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "00.mp4"), []byte("video"), 0o644))
	return repository.NewFileLessonRepository(root, time.Hour)
}

func newPractice(t *testing.T, scores repository.ScoreRepository, assessor Assessor, timeout time.Duration) *PracticeService {
	t.Helper()
	return NewPracticeService(
		lessonRepo(t),
		scores,
		assessor,
		NewMemoryArtifactStore(16, time.Hour),
		PracticeConfig{AssessmentTimeout: timeout},
		zerolog.Nop(),
	)
}

func TestSubmitAttempt_Scored(t *testing.T) {
	scores := repository.NewInMemoryScoreRepository()
	assessor := returning(assessmentJSON(72.4))
	objects := &memoryObjects{}
	publisher := &recordingPublisher{}
	svc := newPractice(t, scores, assessor, time.Second).
		WithRecordingStore(objects).
		WithPublisher(publisher)

	sess := session.New("alice")
	resp, err := svc.SubmitAttempt(context.Background(), sess, 0, testWAV(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"I think so."}, assessor.calls)
	assert.Equal(t, []int{16000}, assessor.rates)

	assert.Equal(t, "I think so.", resp.Display)
	assert.Equal(t, 72.4, resp.Scores.Pronunciation)
	assert.False(t, resp.Celebrate)
	assert.Empty(t, resp.Warnings)

	assert.Equal(t, 1, resp.Tallies[assessment.CategoryMispronunciation].Count)
	assert.Equal(t, []string{"think"}, resp.Tallies[assessment.CategoryMispronunciation].Words)
	assert.Equal(t, 1, resp.Tallies[assessment.CategoryOmission].Count)

	require.NotNil(t, resp.Artifacts)
	assert.NotEmpty(t, resp.Artifacts.RadarSVG)
	assert.NotEmpty(t, resp.Artifacts.WaveformSVG)
	assert.NotEmpty(t, resp.Artifacts.TableHTML)
	assert.NotEmpty(t, resp.Artifacts.CurrentErrorsSVG)

	require.NotNil(t, resp.History)
	assert.Len(t, resp.History.History.Attempts, 1)
	assert.Equal(t, 72.4, resp.History.History.Attempts[0].Pronunciation)

	assert.Equal(t, session.StateScored, sess.State(0))
	latest, ok := sess.LatestAttempt()
	require.True(t, ok)
	assert.Equal(t, resp.AttemptID, latest.ID)

	require.Len(t, objects.keys, 1)
	assert.Equal(t, fmt.Sprintf("recordings/alice/0/%s.wav", resp.AttemptID), objects.keys[0])

	require.Len(t, publisher.events, 1)
	assert.Equal(t, resp.AttemptID, publisher.events[0].AttemptID)
	assert.Equal(t, "mem://"+objects.keys[0], publisher.events[0].Recording)
	assert.Equal(t, "0", publisher.attrs[0]["lesson"])

	stored, err := scores.LoadLessonHistory(context.Background(), "alice", 0)
	require.NoError(t, err)
	assert.Len(t, stored.Attempts, 1)
}

func TestSubmitAttempt_RepeatedWordKeepsEveryCopy(t *testing.T) {
	raw := []byte(`{
  "RecognitionStatus": "Success",
  "NBest": [{
    "Display": "The cat.",
    "PronunciationAssessment": {"PronScore": 60, "AccuracyScore": 60, "FluencyScore": 70, "CompletenessScore": 50},
    "Words": [
      {"Word": "the", "Offset": 0, "Duration": 0, "PronunciationAssessment": {"AccuracyScore": 0, "ErrorType": "Omission"}},
      {"Word": "cat", "Offset": 5000000, "Duration": 3000000, "PronunciationAssessment": {"AccuracyScore": 90, "ErrorType": "None"}},
      {"Word": "the", "Offset": 9000000, "Duration": 2000000, "PronunciationAssessment": {"AccuracyScore": 40, "ErrorType": "Insertion"}}
    ]
  }]
}`)
	decoded, err := assessment.Decode(raw)
	require.NoError(t, err)
	want, err := assessment.Classify(decoded)
	require.NoError(t, err)

	scores := repository.NewInMemoryScoreRepository()
	svc := newPractice(t, scores, returning(raw), time.Second)
	resp, err := svc.SubmitAttempt(context.Background(), session.New("alice"), 0, testWAV(t))
	require.NoError(t, err)

	assert.Equal(t, want, resp.Tallies)
	assert.Equal(t, 1, resp.Tallies[assessment.CategoryOmission].Count)
	assert.Equal(t, 1, resp.Tallies[assessment.CategoryInsertion].Count)

	stored, err := scores.LoadLessonHistory(context.Background(), "alice", 0)
	require.NoError(t, err)
	assert.Equal(t, want, stored.TotalErrors)
}

func TestSubmitAttempt_HistoryAccumulates(t *testing.T) {
	scores := repository.NewInMemoryScoreRepository()
	svc := newPractice(t, scores, returning(assessmentJSON(70)), time.Second)
	sess := session.New("alice")
	ctx := context.Background()

	_, err := svc.SubmitAttempt(ctx, sess, 0, testWAV(t))
	require.NoError(t, err)
	resp, err := svc.SubmitAttempt(ctx, sess, 0, testWAV(t))
	require.NoError(t, err)

	h := resp.History.History
	assert.Len(t, h.Attempts, 2)
	assert.Equal(t, 2, h.TotalErrors[assessment.CategoryMispronunciation].Count)
	assert.Equal(t, 1, h.CurrentErrors[assessment.CategoryMispronunciation].Count)

	other, err := svc.OpenLesson(ctx, sess, 1)
	require.NoError(t, err)
	assert.Equal(t, "Good morning.", other.Text)
	assert.Empty(t, other.History.History.Attempts)
	assert.Equal(t, session.StateLoaded, other.State)
	assert.Equal(t, 1, sess.CurrentLesson())
}

func TestSubmitAttempt_PersistFailureIsWarning(t *testing.T) {
	scores := failingScores{repository.NewInMemoryScoreRepository()}
	svc := newPractice(t, scores, returning(assessmentJSON(80)), time.Second)
	sess := session.New("alice")

	resp, err := svc.SubmitAttempt(context.Background(), sess, 0, testWAV(t))
	require.NoError(t, err)

	require.Len(t, resp.Warnings, 1)
	assert.Equal(t, StepPersist, resp.Warnings[0].Step)
	assert.Equal(t, errors.ErrPersistence, resp.Warnings[0].Code)

	assert.NotEmpty(t, resp.Artifacts.RadarSVG, "visualization must not depend on persistence")
	assert.Empty(t, resp.History.History.Attempts)
	assert.Equal(t, session.StateScored, sess.State(0))
}

func TestSubmitAttempt_Celebrate(t *testing.T) {
	svc := newPractice(t, repository.NewInMemoryScoreRepository(), returning(assessmentJSON(95)), time.Second)
	resp, err := svc.SubmitAttempt(context.Background(), session.New("alice"), 0, testWAV(t))
	require.NoError(t, err)
	assert.True(t, resp.Celebrate)
}

func TestSubmitAttempt_Failures(t *testing.T) {
	blocking := func(ctx context.Context) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	tests := []struct {
		name string
		fn   func(ctx context.Context) ([]byte, error)
		code errors.ErrorCode
	}{
		{"timeout", blocking, errors.ErrAssessmentTimeout},
		{"malformed", func(context.Context) ([]byte, error) { return []byte(`{"RecognitionStatus":"Success"}`), nil }, errors.ErrMalformedAssessment},
		{"no speech", func(context.Context) ([]byte, error) { return []byte(`{"RecognitionStatus":"NoMatch"}`), nil }, errors.ErrMalformedAssessment},
		{"rate limited", func(context.Context) ([]byte, error) {
			return nil, &client.ErrRateLimit{RetryAfter: 2 * time.Second}
		}, errors.ErrAssessmentService},
		{"rejected", func(context.Context) ([]byte, error) { return nil, &client.ErrRejected{StatusCode: 401} }, errors.ErrAssessmentService},
		{"unavailable", func(context.Context) ([]byte, error) { return nil, &client.ErrProviderUnavailable{} }, errors.ErrAssessmentService},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scores := repository.NewInMemoryScoreRepository()
			svc := newPractice(t, scores, &fakeAssessor{fn: tt.fn}, 20*time.Millisecond)
			sess := session.New("alice")

			_, err := svc.SubmitAttempt(context.Background(), sess, 0, testWAV(t))
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, tt.code), "got %v", err)

			assert.Equal(t, session.StateLoaded, sess.State(0))
			_, ok := sess.LatestAttempt()
			assert.False(t, ok)

			h, err := scores.LoadLessonHistory(context.Background(), "alice", 0)
			require.NoError(t, err)
			assert.Empty(t, h.Attempts, "a failed attempt must not be persisted")
		})
	}
}

func TestSubmitAttempt_ErrorNamesTheService(t *testing.T) {
	svc := newPractice(t, repository.NewInMemoryScoreRepository(), &fakeAssessor{fn: func(context.Context) ([]byte, error) {
		return nil, &client.ErrRateLimit{RetryAfter: 2 * time.Second}
	}}, time.Second)

	_, err := svc.SubmitAttempt(context.Background(), session.New("alice"), 0, testWAV(t))
	appErr, ok := errors.As(err)
	require.True(t, ok)
	assert.Contains(t, appErr.Message, "pronunciation assessment")
	assert.Equal(t, 2.0, appErr.Details["retry_after_seconds"])
	assert.True(t, appErr.Retryable())
}

func TestSubmitAttempt_InvalidRecording(t *testing.T) {
	assessor := returning(assessmentJSON(70))
	svc := newPractice(t, repository.NewInMemoryScoreRepository(), assessor, time.Second)

	_, err := svc.SubmitAttempt(context.Background(), session.New("alice"), 0, []byte("not audio"))
	assert.True(t, errors.HasCode(err, errors.ErrValidation))
	assert.Empty(t, assessor.calls)
}

func TestSubmitAttempt_UnknownLesson(t *testing.T) {
	svc := newPractice(t, repository.NewInMemoryScoreRepository(), returning(assessmentJSON(70)), time.Second)
	_, err := svc.SubmitAttempt(context.Background(), session.New("alice"), 7, testWAV(t))
	assert.True(t, errors.HasCode(err, errors.ErrNotFound))
}

func TestSubmitAttempt_OneInFlightPerLesson(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	assessor := &fakeAssessor{fn: func(ctx context.Context) ([]byte, error) {
		started <- struct{}{}
		<-release
		return assessmentJSON(70), nil
	}}
	svc := newPractice(t, repository.NewInMemoryScoreRepository(), assessor, 5*time.Second)
	sess := session.New("alice")
	audioData := testWAV(t)

	done := make(chan error, 1)
	go func() {
		_, err := svc.SubmitAttempt(context.Background(), sess, 0, audioData)
		done <- err
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("first attempt never reached the assessor")
	}
	assert.Equal(t, session.StateInFlight, sess.State(0))

	_, err := svc.SubmitAttempt(context.Background(), sess, 0, audioData)
	assert.True(t, errors.HasCode(err, errors.ErrAttemptInFlight))

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, session.StateScored, sess.State(0))
}

func TestArtifacts(t *testing.T) {
	svc := newPractice(t, repository.NewInMemoryScoreRepository(), returning(assessmentJSON(70)), time.Second)
	sess := session.New("alice")
	ctx := context.Background()

	resp, err := svc.SubmitAttempt(ctx, sess, 0, testWAV(t))
	require.NoError(t, err)

	cached, err := svc.Artifacts(ctx, sess, resp.AttemptID)
	require.NoError(t, err)
	assert.Same(t, resp.Artifacts, cached)

	svc.artifacts = NewMemoryArtifactStore(16, time.Hour)
	rebuilt, err := svc.Artifacts(ctx, sess, resp.AttemptID)
	require.NoError(t, err)
	assert.Equal(t, resp.Artifacts.RadarSVG, rebuilt.RadarSVG)
	assert.Equal(t, resp.Artifacts.TableHTML, rebuilt.TableHTML)
	assert.Nil(t, rebuilt.Waveform, "the recording is not retained")

	_, err = svc.Artifacts(ctx, sess, "missing")
	assert.True(t, errors.HasCode(err, errors.ErrNotFound))
}

func TestOpenLesson_UsesCachedHistory(t *testing.T) {
	scores := repository.NewInMemoryScoreRepository()
	svc := newPractice(t, scores, returning(assessmentJSON(70)), time.Second)
	sess := session.New("alice")
	ctx := context.Background()

	view, err := svc.OpenLesson(ctx, sess, 0)
	require.NoError(t, err)
	assert.Equal(t, "I think so.", view.Text)
	assert.Equal(t, "00.mp4", view.Lesson.VideoFile)
	assert.Empty(t, view.History.History.Attempts)

	// A write behind the session's back is not seen until the next save.
	r, err := assessment.Decode(assessmentJSON(70))
	require.NoError(t, err)
	require.NoError(t, scores.SaveAttempt(ctx, "alice", 0, r))

	view, err = svc.OpenLesson(ctx, sess, 0)
	require.NoError(t, err)
	assert.Empty(t, view.History.History.Attempts)

	h, err := svc.LessonHistory(ctx, session.New("alice"), 0)
	require.NoError(t, err)
	assert.Len(t, h.History.Attempts, 1)
	assert.NotNil(t, h.Overall)
}

func TestMemoryArtifactStore(t *testing.T) {
	store := NewMemoryArtifactStore(1, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &Artifacts{AttemptID: "a"}))
	require.NoError(t, store.Put(ctx, &Artifacts{AttemptID: "b"}))

	_, ok, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
	got, ok, err := store.Get(ctx, "b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b", got.AttemptID)
}
