package service

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/windfall/phonoecho/internal/assessment"
	"github.com/windfall/phonoecho/internal/client"
	"github.com/windfall/phonoecho/internal/errors"
	"github.com/windfall/phonoecho/internal/history"
	"github.com/windfall/phonoecho/internal/metrics"
	"github.com/windfall/phonoecho/internal/repository"
	"github.com/windfall/phonoecho/internal/session"
	"github.com/windfall/phonoecho/internal/visualization"
)

// Pipeline steps that may fail without failing the attempt.
const (
	StepArchive  = "archive"
	StepPersist  = "persist"
	StepHistory  = "history"
	StepWaveform = "visualize.waveform"
	StepRadar    = "visualize.radar"
	StepTable    = "visualize.table"
	StepDoughnut = "visualize.doughnut"
	StepCache    = "cache"
	StepPublish  = "publish"
)

// celebrateFrom is the PronScore from which an attempt is celebrated.
const celebrateFrom = 90.0

// Assessor scores a recording against its reference text and returns the
// raw assessment JSON.
type Assessor interface {
	Assess(ctx context.Context, audio []byte, referenceText string, sampleRate int) ([]byte, error)
}

// ObjectStore archives recordings. Implemented by the R2 and GCS clients.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// EventPublisher publishes attempt events. Implemented by the Pub/Sub client.
type EventPublisher interface {
	Publish(ctx context.Context, data any, attrs map[string]string) error
}

// PracticeConfig holds the attempt pipeline settings.
type PracticeConfig struct {
	AssessmentTimeout time.Duration
}

// Warning reports a pipeline step that failed while the attempt itself
// succeeded.
type Warning struct {
	Step    string           `json:"step"`
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

// HistoryView is a lesson history with its charts.
type HistoryView struct {
	History     *history.LessonHistory       `json:"history"`
	Overall     map[string]any               `json:"overall_chart"`
	Detail      map[string]any               `json:"detail_chart"`
	TotalErrors *visualization.DoughnutChart `json:"total_errors"`
	TotalSVG    string                       `json:"total_errors_svg,omitempty"`
}

// LessonView is returned when a lesson is opened.
type LessonView struct {
	Lesson  repository.Lesson `json:"lesson"`
	Text    string            `json:"text"`
	State   session.State     `json:"state"`
	History *HistoryView      `json:"history"`
}

// AttemptResponse is the outcome of one scored attempt.
type AttemptResponse struct {
	AttemptID string             `json:"attempt_id"`
	Lesson    int                `json:"lesson"`
	Display   string             `json:"display"`
	Scores    assessment.Scores  `json:"scores"`
	Tallies   assessment.Tallies `json:"tallies"`
	Artifacts *Artifacts         `json:"artifacts"`
	History   *HistoryView       `json:"history,omitempty"`
	Celebrate bool               `json:"celebrate"`
	Warnings  []Warning          `json:"warnings"`
}

// AttemptEvent is published after every scored attempt.
type AttemptEvent struct {
	AttemptID string            `json:"attempt_id"`
	User      string            `json:"user"`
	Lesson    int               `json:"lesson"`
	Scores    assessment.Scores `json:"scores"`
	Errors    map[string]int    `json:"errors"`
	Recording string            `json:"recording,omitempty"`
	At        time.Time         `json:"at"`
}

// PracticeService runs lessons and the attempt pipeline
//
//	assess -> classify -> persist -> visualize -> history reload
//
// for one session at a time.
type PracticeService struct {
	lessons    repository.LessonRepository
	scores     repository.ScoreRepository
	assessor   Assessor
	artifacts  ArtifactStore
	archive    repository.ResultArchive
	recordings ObjectStore
	publisher  EventPublisher
	metrics    *metrics.Manager
	cfg        PracticeConfig
	log        zerolog.Logger
}

// NewPracticeService creates a new PracticeService.
func NewPracticeService(
	lessons repository.LessonRepository,
	scores repository.ScoreRepository,
	assessor Assessor,
	artifacts ArtifactStore,
	cfg PracticeConfig,
	log zerolog.Logger,
) *PracticeService {
	if cfg.AssessmentTimeout <= 0 {
		cfg.AssessmentTimeout = 30 * time.Second
	}
	return &PracticeService{
		lessons:   lessons,
		scores:    scores,
		assessor:  assessor,
		artifacts: artifacts,
		cfg:       cfg,
		log:       log,
	}
}

// WithArchive keeps every raw assessment response.
func (s *PracticeService) WithArchive(a repository.ResultArchive) *PracticeService {
	s.archive = a
	return s
}

// WithRecordingStore archives every submitted recording.
func (s *PracticeService) WithRecordingStore(o ObjectStore) *PracticeService {
	s.recordings = o
	return s
}

// WithPublisher publishes an event for every scored attempt.
func (s *PracticeService) WithPublisher(p EventPublisher) *PracticeService {
	s.publisher = p
	return s
}

// WithMetrics records pipeline metrics.
func (s *PracticeService) WithMetrics(m *metrics.Manager) *PracticeService {
	s.metrics = m
	return s
}

// ListLessons returns the user's lessons in order.
func (s *PracticeService) ListLessons(ctx context.Context, sess *session.Session) ([]repository.Lesson, error) {
	return s.lessons.List(ctx, sess.User)
}

// OpenLesson selects a lesson and returns its text and history. The history
// is read from storage only on first access or after a save.
func (s *PracticeService) OpenLesson(ctx context.Context, sess *session.Session, idx int) (*LessonView, error) {
	lesson, err := s.lessons.Get(ctx, sess.User, idx)
	if err != nil {
		return nil, err
	}
	text, err := s.lessons.Text(ctx, sess.User, lesson)
	if err != nil {
		return nil, err
	}

	sess.SelectLesson(idx)
	h := s.ensureHistory(ctx, sess, idx)

	return &LessonView{
		Lesson:  lesson,
		Text:    text,
		State:   sess.State(idx),
		History: s.historyView(h),
	}, nil
}

// LessonVideo returns the path of a lesson's video file.
func (s *PracticeService) LessonVideo(ctx context.Context, sess *session.Session, idx int) (string, error) {
	lesson, err := s.lessons.Get(ctx, sess.User, idx)
	if err != nil {
		return "", err
	}
	return s.lessons.VideoPath(sess.User, lesson)
}

// LessonHistory returns the history of a lesson.
func (s *PracticeService) LessonHistory(ctx context.Context, sess *session.Session, idx int) (*HistoryView, error) {
	if _, err := s.lessons.Get(ctx, sess.User, idx); err != nil {
		return nil, err
	}
	return s.historyView(s.ensureHistory(ctx, sess, idx)), nil
}

// ensureHistory returns the cached history of a lesson, loading it when the
// cache is empty or stale. A read failure degrades to an empty history.
func (s *PracticeService) ensureHistory(ctx context.Context, sess *session.Session, idx int) *history.LessonHistory {
	if h, ok := sess.History(idx); ok {
		return h
	}

	h, err := s.scores.LoadLessonHistory(ctx, sess.User, idx)
	if err != nil {
		s.log.Warn().Err(err).
			Str("user", sess.User).
			Int("lesson", idx).
			Msg("Failed to load lesson history, using empty history")
		h = history.New(idx)
	}
	sess.Load(idx, h)
	return h
}

func (s *PracticeService) historyView(h *history.LessonHistory) *HistoryView {
	overall, detail := visualization.HistoryCharts(h)
	v := &HistoryView{
		History:     h,
		Overall:     overall.VegaLite(),
		Detail:      detail.VegaLite(),
		TotalErrors: visualization.Doughnut(visualization.TotalErrorsTitle, h.TotalErrors),
	}
	if !v.TotalErrors.Empty() {
		if svg, err := v.TotalErrors.SVG(); err == nil {
			v.TotalSVG = svg
		}
	}
	return v
}

// SubmitAttempt scores a WAV recording of a lesson. Only one attempt per
// lesson may be in flight. When assessment fails the lesson reverts to its
// previous loaded state and nothing of the attempt is kept; failures after
// scoring are returned as warnings.
func (s *PracticeService) SubmitAttempt(ctx context.Context, sess *session.Session, idx int, audio []byte) (*AttemptResponse, error) {
	lesson, err := s.lessons.Get(ctx, sess.User, idx)
	if err != nil {
		return nil, err
	}
	text, err := s.lessons.Text(ctx, sess.User, lesson)
	if err != nil {
		return nil, err
	}
	samples, err := visualization.DecodeWAV(bytes.NewReader(audio))
	if err != nil {
		return nil, err
	}

	sess.SelectLesson(idx)
	s.ensureHistory(ctx, sess, idx)
	if err := sess.BeginAttempt(idx); err != nil {
		s.metrics.ObserveAttempt(metrics.OutcomeRejected)
		return nil, err
	}

	resp, err := s.runAttempt(ctx, sess, idx, text, audio, samples)
	if err != nil {
		sess.FailAttempt(idx)
		s.metrics.ObserveAttempt(outcomeFor(err))
		s.log.Warn().Err(err).
			Str("user", sess.User).
			Int("lesson", idx).
			Msg("Attempt failed")
		return nil, err
	}

	s.metrics.ObserveAttempt(metrics.OutcomeScored)
	return resp, nil
}

func (s *PracticeService) runAttempt(
	ctx context.Context,
	sess *session.Session,
	idx int,
	text string,
	audio []byte,
	samples *visualization.Samples,
) (*AttemptResponse, error) {
	attemptID := uuid.NewString()
	at := time.Now().UTC()
	log := s.log.With().
		Str("user", sess.User).
		Int("lesson", idx).
		Str("attempt_id", attemptID).
		Logger()

	resp := &AttemptResponse{
		AttemptID: attemptID,
		Lesson:    idx,
		Warnings:  []Warning{},
	}
	warn := func(step string, code errors.ErrorCode, message string, err error) {
		log.Warn().Err(err).Str("step", step).Msg(message)
		s.metrics.ObserveWarning(step)
		resp.Warnings = append(resp.Warnings, Warning{Step: step, Code: code, Message: message})
	}

	var recordingURL string
	if s.recordings != nil {
		key := fmt.Sprintf("recordings/%s/%d/%s.wav", sess.User, idx, attemptID)
		url, err := s.recordings.Put(ctx, key, audio, "audio/wav")
		if err != nil {
			warn(StepArchive, errors.ErrStorageService, "failed to archive the recording", err)
		} else {
			recordingURL = url
		}
	}

	raw, err := s.assess(ctx, audio, text, samples.SampleRate)
	if err != nil {
		return nil, err
	}

	if s.archive != nil {
		if _, err := s.archive.SaveRaw(ctx, sess.User, idx, at, raw); err != nil {
			warn(StepArchive, errors.ErrPersistence, "failed to archive the assessment result", err)
		}
	}

	result, err := assessment.Decode(raw)
	if err != nil {
		return nil, err
	}

	tallies, err := assessment.Classify(result)
	if err != nil {
		return nil, err
	}

	if err := s.scores.SaveAttempt(ctx, sess.User, idx, result); err != nil {
		warn(StepPersist, errors.ErrPersistence, "failed to save score history, this attempt is not recorded", err)
	}

	artifacts := s.buildArtifacts(attemptID, result, tallies, samples, warn)
	if err := s.artifacts.Put(ctx, artifacts); err != nil {
		warn(StepCache, errors.ErrInternal, "failed to cache attempt charts", err)
	}

	if err := sess.CompleteAttempt(&session.Attempt{
		ID:      attemptID,
		Lesson:  idx,
		At:      at,
		Result:  result,
		Tallies: tallies,
	}); err != nil {
		return nil, err
	}

	if s.publisher != nil {
		event := AttemptEvent{
			AttemptID: attemptID,
			User:      sess.User,
			Lesson:    idx,
			Scores:    result.Scores,
			Errors:    countsByCategory(tallies),
			Recording: recordingURL,
			At:        at,
		}
		attrs := map[string]string{"user": sess.User, "lesson": strconv.Itoa(idx)}
		if err := s.publisher.Publish(ctx, event, attrs); err != nil {
			warn(StepPublish, errors.ErrPubSubService, "failed to publish attempt event", err)
		}
	}

	h, err := s.scores.LoadLessonHistory(ctx, sess.User, idx)
	if err != nil {
		warn(StepHistory, errors.ErrPersistence, "failed to reload score history", err)
	} else {
		sess.Load(idx, h)
		resp.History = s.historyView(h)
	}

	resp.Display = result.Display
	resp.Scores = result.Scores
	resp.Tallies = tallies
	resp.Artifacts = artifacts
	resp.Celebrate = result.Scores.Pronunciation >= celebrateFrom

	log.Info().
		Float64("pron_score", result.Scores.Pronunciation).
		Int("errors", tallies.Total()).
		Int("warnings", len(resp.Warnings)).
		Msg("Attempt scored")

	return resp, nil
}

func (s *PracticeService) assess(ctx context.Context, audio []byte, text string, sampleRate int) ([]byte, error) {
	if s.assessor == nil {
		return nil, errors.New(errors.ErrAssessmentService, "pronunciation assessment service is not configured")
	}

	actx, cancel := context.WithTimeout(ctx, s.cfg.AssessmentTimeout)
	defer cancel()

	start := time.Now()
	raw, err := s.assessor.Assess(actx, audio, text, sampleRate)
	s.metrics.ObserveAssessment(time.Since(start))
	if err == nil {
		return raw, nil
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return nil, errors.Wrap(errors.ErrAssessmentTimeout, "pronunciation assessment timed out, please record again", err)
	}

	var rateLimit *client.ErrRateLimit
	var rejected *client.ErrRejected
	switch {
	case stderrors.As(err, &rateLimit):
		return nil, errors.Wrap(errors.ErrAssessmentService, "pronunciation assessment service is busy, please retry shortly", err).
			WithDetails(map[string]interface{}{"retry_after_seconds": rateLimit.RetryAfter.Seconds()})
	case stderrors.As(err, &rejected):
		return nil, errors.Wrap(errors.ErrAssessmentService, "pronunciation assessment service rejected the request", err).
			WithDetails(map[string]interface{}{"status_code": rejected.StatusCode})
	default:
		return nil, errors.Wrap(errors.ErrAssessmentService, "pronunciation assessment service is unavailable, please retry", err)
	}
}

// buildArtifacts runs each chart builder independently; a failing builder
// leaves its chart empty and adds a warning.
func (s *PracticeService) buildArtifacts(
	attemptID string,
	result *assessment.Result,
	tallies assessment.Tallies,
	samples *visualization.Samples,
	warn func(step string, code errors.ErrorCode, message string, err error),
) *Artifacts {
	a := &Artifacts{AttemptID: attemptID}

	if radar, err := visualization.Radar(result.Scores); err != nil {
		warn(StepRadar, errors.ErrInternal, "failed to build the radar chart", err)
	} else if svg, err := radar.SVG(); err != nil {
		warn(StepRadar, errors.ErrInternal, "failed to render the radar chart", err)
	} else {
		a.Radar, a.RadarSVG = radar, svg
	}

	if samples != nil {
		if wave, err := visualization.Waveform(samples, result.Words); err != nil {
			warn(StepWaveform, errors.ErrInternal, "failed to build the waveform chart", err)
		} else if svg, err := wave.SVG(); err != nil {
			warn(StepWaveform, errors.ErrInternal, "failed to render the waveform chart", err)
		} else {
			a.Waveform, a.WaveformSVG = wave, svg
		}
	}

	if table, err := visualization.Table(result.Words); err != nil {
		warn(StepTable, errors.ErrInternal, "failed to build the score table", err)
	} else if html, err := table.HTML(); err != nil {
		warn(StepTable, errors.ErrInternal, "failed to render the score table", err)
	} else {
		a.Table, a.TableHTML = table, html
	}

	a.CurrentErrors = visualization.Doughnut(visualization.CurrentErrorsTitle, tallies)
	if !a.CurrentErrors.Empty() {
		if svg, err := a.CurrentErrors.SVG(); err != nil {
			warn(StepDoughnut, errors.ErrInternal, "failed to render the error chart", err)
		} else {
			a.CurrentErrorsSVG = svg
		}
	}

	return a
}

// Artifacts returns the charts of a scored attempt of this session. When
// the memo has expired they are rebuilt from the attempt, without the
// waveform since the recording is not retained.
func (s *PracticeService) Artifacts(ctx context.Context, sess *session.Session, attemptID string) (*Artifacts, error) {
	attempt, ok := sess.FindAttempt(attemptID)
	if !ok {
		return nil, errors.NotFound("attempt")
	}

	cached, ok, err := s.artifacts.Get(ctx, attemptID)
	if err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attemptID).Msg("Failed to read cached artifacts")
	}
	if ok {
		return cached, nil
	}

	a := s.buildArtifacts(attemptID, attempt.Result, attempt.Tallies, nil, func(step string, _ errors.ErrorCode, message string, err error) {
		s.log.Warn().Err(err).Str("step", step).Str("attempt_id", attemptID).Msg(message)
	})
	if err := s.artifacts.Put(ctx, a); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attemptID).Msg("Failed to cache artifacts")
	}
	return a, nil
}

func countsByCategory(t assessment.Tallies) map[string]int {
	out := make(map[string]int, len(t))
	for cat, n := range t.NonZero() {
		out[string(cat)] = n
	}
	return out
}

func outcomeFor(err error) string {
	switch {
	case errors.HasCode(err, errors.ErrMalformedAssessment):
		return metrics.OutcomeMalformed
	case errors.HasCode(err, errors.ErrAttemptInFlight), errors.HasCode(err, errors.ErrConflict):
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeFailed
	}
}
