package repository

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/windfall/phonoecho/internal/errors"
	"github.com/windfall/phonoecho/internal/haptics"
)

// Lesson is one (text, video) pair in a user's dataset.
type Lesson struct {
	Index     int    `json:"index"`
	TextFile  string `json:"text_file"`
	VideoFile string `json:"video_file,omitempty"`
}

// LessonRepository lists a user's lessons and reads their texts.
type LessonRepository interface {
	List(ctx context.Context, user string) ([]Lesson, error)
	Get(ctx context.Context, user string, index int) (Lesson, error)
	Text(ctx context.Context, user string, lesson Lesson) (string, error)
	VideoPath(user string, lesson Lesson) (string, error)
}

// FileLessonRepository reads lessons from <root>/<user>. Listings and texts
// are cached for ttl.
type FileLessonRepository struct {
	root    string
	lessons *expirable.LRU[string, []Lesson]
	texts   *expirable.LRU[string, string]
}

// NewFileLessonRepository creates a new FileLessonRepository.
func NewFileLessonRepository(root string, ttl time.Duration) *FileLessonRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &FileLessonRepository{
		root:    root,
		lessons: expirable.NewLRU[string, []Lesson](256, nil, ttl),
		texts:   expirable.NewLRU[string, string](1024, nil, ttl),
	}
}

// List pairs the .txt and .mp4 files of the user's directory tree, each
// sorted by name. A user without a directory has no lessons.
func (r *FileLessonRepository) List(ctx context.Context, user string) ([]Lesson, error) {
	if err := ValidateUser(user); err != nil {
		return nil, err
	}
	if cached, ok := r.lessons.Get(user); ok {
		return cached, nil
	}

	base := filepath.Join(r.root, user)
	var texts, videos []string
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".txt":
			texts = append(texts, filepath.ToSlash(rel))
		case ".mp4":
			videos = append(videos, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.InternalWrap("failed to read lesson dataset", err)
	}

	sort.Strings(texts)
	sort.Strings(videos)

	lessons := make([]Lesson, len(texts))
	for i, t := range texts {
		lessons[i] = Lesson{Index: i, TextFile: t}
		if i < len(videos) {
			lessons[i].VideoFile = videos[i]
		}
	}

	r.lessons.Add(user, lessons)
	return lessons, nil
}

// Get returns the lesson at index.
func (r *FileLessonRepository) Get(ctx context.Context, user string, index int) (Lesson, error) {
	lessons, err := r.List(ctx, user)
	if err != nil {
		return Lesson{}, err
	}
	if index < 0 || index >= len(lessons) {
		return Lesson{}, errors.NotFound(fmt.Sprintf("lesson %d", index))
	}
	return lessons[index], nil
}

// Text returns the trimmed text content of a lesson.
func (r *FileLessonRepository) Text(ctx context.Context, user string, lesson Lesson) (string, error) {
	if err := ValidateUser(user); err != nil {
		return "", err
	}
	key := user + "/" + lesson.TextFile
	if cached, ok := r.texts.Get(key); ok {
		return cached, nil
	}

	path, err := r.resolve(user, lesson.TextFile)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.NotFound("lesson text")
		}
		return "", errors.InternalWrap("failed to read lesson text", err)
	}

	text := strings.TrimSpace(string(data))
	r.texts.Add(key, text)
	return text, nil
}

// VideoPath returns the absolute path of a lesson's video file.
func (r *FileLessonRepository) VideoPath(user string, lesson Lesson) (string, error) {
	if err := ValidateUser(user); err != nil {
		return "", err
	}
	if lesson.VideoFile == "" {
		return "", errors.NotFound("lesson video")
	}
	path, err := r.resolve(user, lesson.VideoFile)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", errors.NotFound("lesson video")
		}
		return "", errors.InternalWrap("failed to stat lesson video", err)
	}
	return path, nil
}

// HapticPattern returns the pattern of the .tact file stored next to the
// lesson text, or the default pattern when there is none.
func (r *FileLessonRepository) HapticPattern(user string, lesson Lesson) haptics.Pattern {
	if ValidateUser(user) != nil {
		return haptics.DefaultPattern()
	}
	rel := strings.TrimSuffix(lesson.TextFile, filepath.Ext(lesson.TextFile)) + ".tact"
	path, err := r.resolve(user, rel)
	if err != nil {
		return haptics.DefaultPattern()
	}
	return haptics.LoadTactFile(path)
}

func (r *FileLessonRepository) resolve(user, rel string) (string, error) {
	base := filepath.Join(r.root, user)
	path := filepath.Join(base, filepath.FromSlash(rel))
	if !strings.HasPrefix(path, base+string(filepath.Separator)) {
		return "", errors.Validation("lesson file escapes the dataset directory")
	}
	return path, nil
}
