package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"livepaste/metrics"
	"livepaste/pkg/domain"
	"livepaste/svc/cache"
	"livepaste/svc/util"
)

const counterFile = "counter.txt"

// Ids are exactly five ASCII digits. Validation happens before any
// path is derived from an id, so unvalidated input never reaches the
// file system.
var idPattern = regexp.MustCompile(`^\d{5}$`)

func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// Store persists one JSON record per paste under dataDir. Writers on
// the same id are serialized by a lazily created per-id mutex; the id
// counter has its own global mutex. Per-id mutexes are never freed,
// which grows with the number of distinct ids touched by the process.
type Store struct {
	dataDir     string
	counterPath string
	maxSize     int64
	lru         *cache.LRU

	counterMu sync.Mutex
	locksMu   sync.Mutex
	locks     map[string]*sync.Mutex
	reads     singleflight.Group
}

func Open(dataDir string, maxSize int64, lru *cache.LRU) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, errors.Wrap(err, "create data dir")
	}
	s := &Store{
		dataDir:     dataDir,
		counterPath: filepath.Join(dataDir, counterFile),
		maxSize:     maxSize,
		lru:         lru,
		locks:       make(map[string]*sync.Mutex),
	}
	if _, err := os.Stat(s.counterPath); os.IsNotExist(err) {
		if err := atomicWrite(s.dataDir, s.counterPath, []byte("0")); err != nil {
			return nil, errors.Wrap(err, "init counter")
		}
	} else if err != nil {
		return nil, errors.Wrap(err, "stat counter")
	}
	util.Info().Str("data_dir", dataDir).Msg("store initialized")
	return s, nil
}

func (s *Store) lockFor(id string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	mu, ok := s.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[id] = mu
	}
	return mu
}

func (s *Store) pastePath(id string) string {
	return filepath.Join(s.dataDir, id+".json")
}

// Create allocates the next id and persists the content under it.
// The counter read-increment-persist is one global critical section.
func (s *Store) Create(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", domain.ErrContentRequired
	}
	if int64(len(text)) > s.maxSize {
		return "", domain.ErrPasteTooLarge
	}

	s.counterMu.Lock()
	counter, err := s.readCounter()
	if err != nil {
		s.counterMu.Unlock()
		return "", errors.Wrap(err, "read counter")
	}
	counter++
	if err := atomicWrite(s.dataDir, s.counterPath, []byte(strconv.Itoa(counter))); err != nil {
		s.counterMu.Unlock()
		return "", errors.Wrap(err, "persist counter")
	}
	s.counterMu.Unlock()

	id := fmt.Sprintf("%05d", counter)

	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()
	if err := s.save(id, text); err != nil {
		return "", err
	}
	s.lru.Set(id, text)
	util.Info().Str("id", id).Msg("paste created")
	return id, nil
}

// Get returns the stored text for id. Reads of the same id are
// deduplicated through singleflight on top of the LRU cache.
func (s *Store) Get(ctx context.Context, id string) (string, error) {
	if !ValidID(id) {
		return "", domain.ErrInvalidID
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if text, ok := s.lru.Get(ctx, id); ok {
		metrics.CacheHits.Inc()
		return text, nil
	}
	metrics.CacheMisses.Inc()

	v, err, _ := s.reads.Do(id, func() (interface{}, error) {
		mu := s.lockFor(id)
		mu.Lock()
		defer mu.Unlock()
		data, err := os.ReadFile(s.pastePath(id))
		if err != nil {
			if os.IsNotExist(err) {
				return nil, domain.ErrPasteNotFound
			}
			return nil, errors.Wrap(err, "read paste")
		}
		var p domain.Paste
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, errors.Wrap(err, "decode paste")
		}
		return p.Text, nil
	})
	if err != nil {
		return "", err
	}
	text := v.(string)
	s.lru.Set(id, text)
	return text, nil
}

// Update rewrites the content for an existing id. Unlike Create it
// accepts empty text: live editors may clear a paste entirely.
func (s *Store) Update(ctx context.Context, id, text string) error {
	if !ValidID(id) {
		return domain.ErrInvalidID
	}
	if int64(len(text)) > s.maxSize {
		return domain.ErrPasteTooLarge
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()
	if _, err := os.Stat(s.pastePath(id)); err != nil {
		if os.IsNotExist(err) {
			return domain.ErrPasteNotFound
		}
		return errors.Wrap(err, "stat paste")
	}
	if err := s.save(id, text); err != nil {
		return err
	}
	s.lru.Set(id, text)
	return nil
}

// save writes the record to a temp file and renames it into place, so
// a concurrent reader never observes a partial record. Callers hold
// the per-id lock.
func (s *Store) save(id, text string) error {
	p := domain.Paste{
		ID:        id,
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
		Version:   1,
	}
	data, err := json.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "encode paste")
	}
	return atomicWrite(s.dataDir, s.pastePath(id), data)
}

func (s *Store) readCounter() (int, error) {
	data, err := os.ReadFile(s.counterPath)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func atomicWrite(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "write temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "sync temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "close temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "rename temp file")
	}
	return nil
}
