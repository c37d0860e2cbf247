package history

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"livepaste/metrics"
	"livepaste/pkg/domain"
	"livepaste/svc/util"
)

const logFile = "history.log"

// Log is the append-only audit trail: one JSON line per action. A
// single mutex guards appends and reads alike; correctness over
// throughput. The retention cap rewrites the file to the newest
// maxLines entries after every append that pushes it over, which
// permanently discards older ids' history including their create
// record.
type Log struct {
	path     string
	maxLines int
	mu       sync.Mutex
}

func Open(dataDir string, maxLines int) (*Log, error) {
	l := &Log{
		path:     filepath.Join(dataDir, logFile),
		maxLines: maxLines,
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, errors.Wrap(err, "open history log")
	}
	f.Close()
	return l, nil
}

// Append records one action. An empty creatorIP is stored as
// "unknown"; deleted is derived from the action.
func (l *Log) Append(id, action string, version int, creatorIP, note string) error {
	if creatorIP == "" {
		creatorIP = "unknown"
	}
	entry := domain.HistoryEntry{
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		CreatorIP: creatorIP,
		Version:   version,
		Action:    action,
		Deleted:   action == domain.ActionDelete,
		Note:      note,
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "encode history entry")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return errors.Wrap(err, "open history log")
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return errors.Wrap(err, "append history entry")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "close history log")
	}
	metrics.HistoryAppends.Inc()
	util.Debug().Str("id", id).Str("action", action).Msg("history appended")
	return l.capLocked()
}

// ReadAll returns one representative entry per id, newest first, at
// most maxLines of them. The representative is the id's first-seen
// (create) entry with its deleted field replaced by the id's current
// status, taken from the last entry in the full log.
func (l *Log) ReadAll() ([]domain.HistoryEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries, err := l.readLocked()
	if err != nil {
		return nil, err
	}

	deletedStatus := make(map[string]bool)
	first := make(map[string]domain.HistoryEntry)
	var order []string
	for _, e := range entries {
		deletedStatus[e.ID] = e.Deleted
		if _, seen := first[e.ID]; !seen {
			first[e.ID] = e
			order = append(order, e.ID)
		}
	}

	result := make([]domain.HistoryEntry, 0, len(order))
	for i := len(order) - 1; i >= 0 && len(result) < l.maxLines; i-- {
		e := first[order[i]]
		e.Deleted = deletedStatus[e.ID]
		result = append(result, e)
	}
	return result, nil
}

// ReadByID returns every entry for id in append order.
func (l *Log) ReadByID(id string) ([]domain.HistoryEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries, err := l.readLocked()
	if err != nil {
		return nil, err
	}
	var result []domain.HistoryEntry
	for _, e := range entries {
		if e.ID == id {
			result = append(result, e)
		}
	}
	return result, nil
}

// IsDeleted reports whether the last recorded action for id was a
// delete. Ids with no history report false, including ids whose
// entries were pruned by the retention cap.
func (l *Log) IsDeleted(id string) (bool, error) {
	entries, err := l.ReadByID(id)
	if err != nil {
		return false, err
	}
	if len(entries) == 0 {
		return false, nil
	}
	return entries[len(entries)-1].Deleted, nil
}

// MarkDelete appends a delete action carrying the id's last known
// version, defaulting to 1 when no history exists.
func (l *Log) MarkDelete(id, deleterIP, note string) error {
	version := 1
	entries, err := l.ReadByID(id)
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		version = entries[len(entries)-1].Version
	}
	return l.Append(id, domain.ActionDelete, version, deleterIP, note)
}

func (l *Log) readLocked() ([]domain.HistoryEntry, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "open history log")
	}
	defer f.Close()

	var entries []domain.HistoryEntry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var e domain.HistoryEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			util.Warn().Err(err).Msg("skipping malformed history line")
			continue
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "scan history log")
	}
	return entries, nil
}

// capLocked truncates the log to the newest maxLines lines using the
// same temp-then-rename discipline as the paste store. Caller holds
// l.mu.
func (l *Log) capLocked() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return errors.Wrap(err, "read history log")
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) <= l.maxLines || (len(lines) == 1 && lines[0] == "") {
		return nil
	}
	keep := lines[len(lines)-l.maxLines:]

	dir := filepath.Dir(l.path)
	tmp, err := os.CreateTemp(dir, logFile+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp history log")
	}
	tmpName := tmp.Name()
	w := bufio.NewWriter(tmp)
	for _, line := range keep {
		w.WriteString(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "write temp history log")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "sync temp history log")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "close temp history log")
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "replace history log")
	}
	metrics.HistoryPrunes.Inc()
	util.Info().Int("kept", len(keep)).Msg("history capped")
	return nil
}
