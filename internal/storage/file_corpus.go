package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/deusflow/issuedesk/internal/news"
)

// FileCorpus keeps the corpus in memory and writes it through to a JSON
// file after every insert. An empty path keeps it in memory only.
type FileCorpus struct {
	filePath string

	mu        sync.RWMutex
	items     []news.StoredArticle
	byID      map[string]struct{}
	headlines map[string]struct{}
	titles    map[string]struct{}
	urls      map[string]struct{}
}

func NewFileCorpus(filePath string) *FileCorpus {
	return &FileCorpus{
		filePath:  filePath,
		byID:      make(map[string]struct{}),
		headlines: make(map[string]struct{}),
		titles:    make(map[string]struct{}),
		urls:      make(map[string]struct{}),
	}
}

// Load reads the existing file, if any.
func (fc *FileCorpus) Load() error {
	if fc.filePath == "" {
		return nil
	}

	data, err := os.ReadFile(fc.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to read corpus file")
	}
	if len(data) == 0 {
		return nil
	}

	var items []news.StoredArticle
	if err := json.Unmarshal(data, &items); err != nil {
		return errors.Wrap(err, "failed to unmarshal corpus")
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()
	for _, it := range items {
		if fc.takenLocked(it) {
			continue
		}
		fc.addLocked(it)
	}
	return nil
}

func (fc *FileCorpus) save() error {
	if fc.filePath == "" {
		return nil
	}

	fc.mu.RLock()
	data, err := json.MarshalIndent(fc.items, "", "  ")
	fc.mu.RUnlock()
	if err != nil {
		return errors.Wrap(err, "failed to marshal corpus")
	}

	if dir := filepath.Dir(fc.filePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "create corpus dir")
		}
	}
	tmp := fc.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write corpus file")
	}
	return errors.Wrap(os.Rename(tmp, fc.filePath), "replace corpus file")
}

func (fc *FileCorpus) takenLocked(a news.StoredArticle) bool {
	_, id := fc.byID[a.ArticleID]
	_, h := fc.headlines[a.Headline]
	_, u := fc.urls[a.URL]
	return id || h || u
}

func (fc *FileCorpus) addLocked(a news.StoredArticle) {
	fc.items = append(fc.items, a)
	fc.byID[a.ArticleID] = struct{}{}
	fc.headlines[a.Headline] = struct{}{}
	if a.SourceTitle != "" {
		fc.titles[a.SourceTitle] = struct{}{}
	}
	fc.urls[a.URL] = struct{}{}
}

func (fc *FileCorpus) HasArticleID(_ context.Context, id string) (bool, error) {
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	_, ok := fc.byID[id]
	return ok, nil
}

func (fc *FileCorpus) HasURL(_ context.Context, url string) (bool, error) {
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	_, ok := fc.urls[url]
	return ok, nil
}

func (fc *FileCorpus) Headlines(context.Context) ([]string, error) {
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	out := make([]string, 0, len(fc.headlines)+len(fc.titles))
	for h := range fc.headlines {
		out = append(out, h)
	}
	for t := range fc.titles {
		if _, ok := fc.headlines[t]; !ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (fc *FileCorpus) Insert(_ context.Context, a news.StoredArticle) error {
	fc.mu.Lock()
	if fc.takenLocked(a) {
		fc.mu.Unlock()
		return ErrDuplicate
	}
	fc.addLocked(a)
	fc.mu.Unlock()

	return fc.save()
}

func (fc *FileCorpus) PublishedBetween(_ context.Context, from, to string) ([]news.StoredArticle, error) {
	fc.mu.RLock()
	var out []news.StoredArticle
	for _, it := range fc.items {
		if it.PublishedDate >= from && it.PublishedDate <= to {
			out = append(out, it)
		}
	}
	fc.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].PublishedDate > out[j].PublishedDate })
	return out, nil
}

func (fc *FileCorpus) Recent(_ context.Context, limit int) ([]news.StoredArticle, error) {
	fc.mu.RLock()
	out := append([]news.StoredArticle(nil), fc.items...)
	fc.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].StoredAt.After(out[j].StoredAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (fc *FileCorpus) Count(context.Context) (int64, error) {
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	return int64(len(fc.items)), nil
}

func (fc *FileCorpus) Close() error { return fc.save() }
