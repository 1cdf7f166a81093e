package service

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"html/template"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/windfall/phonoecho/internal/client"
	"github.com/windfall/phonoecho/internal/visualization"
)

const artifactKeyPrefix = "phonoecho:artifacts:"

// Artifacts are the visualizations of one attempt. A nil chart means its
// builder failed; the failure is reported as a warning on the attempt.
type Artifacts struct {
	AttemptID string `json:"attempt_id"`

	Radar    *visualization.RadarChart `json:"radar,omitempty"`
	RadarSVG string                    `json:"radar_svg,omitempty"`

	Waveform    *visualization.WaveformChart `json:"waveform,omitempty"`
	WaveformSVG string                       `json:"waveform_svg,omitempty"`

	Table     *visualization.ScoreTable `json:"table,omitempty"`
	TableHTML template.HTML             `json:"table_html,omitempty"`

	CurrentErrors    *visualization.DoughnutChart `json:"current_errors,omitempty"`
	CurrentErrorsSVG string                       `json:"current_errors_svg,omitempty"`
}

// ArtifactStore memoizes artifacts by attempt id, so charts are only built
// when an attempt actually changed.
type ArtifactStore interface {
	Get(ctx context.Context, attemptID string) (*Artifacts, bool, error)
	Put(ctx context.Context, a *Artifacts) error
}

// MemoryArtifactStore keeps artifacts in a bounded in-process cache.
type MemoryArtifactStore struct {
	cache *expirable.LRU[string, *Artifacts]
}

// NewMemoryArtifactStore creates a new MemoryArtifactStore.
func NewMemoryArtifactStore(size int, ttl time.Duration) *MemoryArtifactStore {
	return &MemoryArtifactStore{cache: expirable.NewLRU[string, *Artifacts](size, nil, ttl)}
}

func (s *MemoryArtifactStore) Get(_ context.Context, attemptID string) (*Artifacts, bool, error) {
	a, ok := s.cache.Get(attemptID)
	return a, ok, nil
}

func (s *MemoryArtifactStore) Put(_ context.Context, a *Artifacts) error {
	s.cache.Add(a.AttemptID, a)
	return nil
}

// RedisArtifactStore shares artifacts between instances through Redis.
type RedisArtifactStore struct {
	redis *client.RedisClient
	ttl   time.Duration
}

// NewRedisArtifactStore creates a new RedisArtifactStore.
func NewRedisArtifactStore(redis *client.RedisClient, ttl time.Duration) *RedisArtifactStore {
	return &RedisArtifactStore{redis: redis, ttl: ttl}
}

func (s *RedisArtifactStore) Get(ctx context.Context, attemptID string) (*Artifacts, bool, error) {
	raw, err := s.redis.Get(ctx, artifactKeyPrefix+attemptID)
	if stderrors.Is(err, client.ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read artifacts: %w", err)
	}

	var a Artifacts
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, false, fmt.Errorf("failed to decode artifacts: %w", err)
	}
	return &a, true, nil
}

func (s *RedisArtifactStore) Put(ctx context.Context, a *Artifacts) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode artifacts: %w", err)
	}
	if err := s.redis.Set(ctx, artifactKeyPrefix+a.AttemptID, raw, s.ttl); err != nil {
		return fmt.Errorf("failed to store artifacts: %w", err)
	}
	return nil
}
