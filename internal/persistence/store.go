// Package persistence implements the durable, recoverable record of every
// task's metadata, event log, and final result: a directory tree under a
// base directory, plus a session-index file.
//
// Grounded on alex/internal/delivery/server/app/task_store.go's
// whole-file-overwrite-via-tmp-then-rename persistence discipline, expanded
// from a single snapshot file into a per-task file layout and append-only
// event log.
package persistence

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ocmcp/supervisor/internal/supervisorlog"
)

const (
	tasksDirName    = "tasks"
	sessionsFile    = "sessions.json"
	defaultMaxTasks = 1000
)

// PersistedTaskMetadata is the whole-file-written snapshot at <taskId>.json.
type PersistedTaskMetadata struct {
	TaskID        string `json:"taskId"`
	SessionID     string `json:"sessionId,omitempty"`
	Title         string `json:"title"`
	Model         string `json:"model"`
	Agent         string `json:"agent,omitempty"`
	CreatedAt     int64  `json:"createdAt"`
	Status        string `json:"status"`
	StatusMessage string `json:"statusMessage,omitempty"`
}

// PersistedResult is the whole-file-written snapshot at <taskId>.result.json.
type PersistedResult struct {
	TaskID            string   `json:"taskId"`
	Status            string   `json:"status"`
	Text              string   `json:"text"`
	TerminationReason string   `json:"terminationReason,omitempty"`
	Warnings          []string `json:"warnings,omitempty"`
	CompletedAt       int64    `json:"completedAt"`
}

type sessionIndex struct {
	Version  int               `json:"version"`
	Mappings map[string]string `json:"mappings"`
}

// RawEvent is an opaque, already-encoded event line (the Event Codec owns
// the actual shape); persistence only ever stores and replays bytes.
type RawEvent = json.RawMessage

// Store implements the per-task persistence layout on a single base directory.
type Store struct {
	baseDir  string
	tasksDir string
	logger   supervisorlog.Logger

	sessionMu sync.Mutex // serializes sessions.json read-modify-write

	metaCache *lru.Cache[string, PersistedTaskMetadata]
}

// New constructs a Store rooted at baseDir without touching the filesystem.
// Call Init to create the directory tree.
func New(baseDir string, logger supervisorlog.Logger) *Store {
	cache, _ := lru.New[string, PersistedTaskMetadata](defaultMaxTasks)
	return &Store{
		baseDir:   baseDir,
		tasksDir:  filepath.Join(baseDir, tasksDirName),
		logger:    logger,
		metaCache: cache,
	}
}

// Init creates the base and tasks directories and an empty sessions.json if
// absent. Idempotent.
func (s *Store) Init() error {
	if err := os.MkdirAll(s.tasksDir, 0o755); err != nil {
		return fmt.Errorf("persistence: create tasks dir: %w", err)
	}
	path := s.sessionsPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		idx := sessionIndex{Version: 1, Mappings: map[string]string{}}
		if err := writeJSONAtomic(path, idx); err != nil {
			return fmt.Errorf("persistence: init sessions.json: %w", err)
		}
	}
	return nil
}

func (s *Store) GetBaseDir() string  { return s.baseDir }
func (s *Store) GetTasksDir() string { return s.tasksDir }

func (s *Store) sessionsPath() string { return filepath.Join(s.baseDir, sessionsFile) }
func (s *Store) metaPath(taskID string) string {
	return filepath.Join(s.tasksDir, taskID+".json")
}
func (s *Store) eventsPath(taskID string) string {
	return filepath.Join(s.tasksDir, taskID+".output.jsonl")
}
func (s *Store) resultPath(taskID string) string {
	return filepath.Join(s.tasksDir, taskID+".result.json")
}

// SaveTaskMetadata overwrites <taskId>.json and invalidates the read cache.
func (s *Store) SaveTaskMetadata(taskID string, meta PersistedTaskMetadata) error {
	if err := writeJSONAtomic(s.metaPath(taskID), meta); err != nil {
		return err
	}
	s.metaCache.Remove(taskID)
	return nil
}

// LoadTaskMetadata returns (meta, true) or (zero, false) if absent. It
// serves from the LRU cache when possible.
func (s *Store) LoadTaskMetadata(taskID string) (PersistedTaskMetadata, bool, error) {
	if cached, ok := s.metaCache.Get(taskID); ok {
		return cached, true, nil
	}
	var meta PersistedTaskMetadata
	found, err := readJSON(s.metaPath(taskID), &meta)
	if err != nil || !found {
		return PersistedTaskMetadata{}, false, err
	}
	s.metaCache.Add(taskID, meta)
	return meta, true, nil
}

// AppendEvent appends JSON(event)+"\n" to the per-task event log. Files are
// per-task, so concurrent appends across different tasks never interleave;
// within one task, callers are expected to serialize via the Worker
// Runner's single streaming goroutine.
func (s *Store) AppendEvent(taskID string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("persistence: marshal event: %w", err)
	}
	f, err := os.OpenFile(s.eventsPath(taskID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("persistence: open event log: %w", err)
	}
	defer f.Close()

	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("persistence: append event: %w", err)
	}
	return nil
}

// LoadEvents reads the per-task event log line by line. Lines that fail to
// parse are skipped with a warn log; they do not abort the read.
func (s *Store) LoadEvents(taskID string) ([]RawEvent, error) {
	f, err := os.Open(s.eventsPath(taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("persistence: open event log: %w", err)
	}
	defer f.Close()

	var events []RawEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var raw json.RawMessage
		if err := json.Unmarshal(line, &raw); err != nil {
			if s.logger != nil {
				s.logger.Warn("persistence: skipping unparseable event line for task %s: %v", taskID, err)
			}
			continue
		}
		cp := make(json.RawMessage, len(raw))
		copy(cp, raw)
		events = append(events, cp)
	}
	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("persistence: scan event log: %w", err)
	}
	return events, nil
}

// SaveResult writes <taskId>.result.json once on terminal transition.
func (s *Store) SaveResult(taskID string, result PersistedResult) error {
	return writeJSONAtomic(s.resultPath(taskID), result)
}

// LoadResult returns (result, true) or (zero, false) if absent.
func (s *Store) LoadResult(taskID string) (PersistedResult, bool, error) {
	var result PersistedResult
	found, err := readJSON(s.resultPath(taskID), &result)
	return result, found, err
}

// ListTasks derives task IDs from filenames under tasks/, deduplicated even
// when multiple artifact files exist for the same task.
func (s *Store) ListTasks() ([]string, error) {
	entries, err := os.ReadDir(s.tasksDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("persistence: read tasks dir: %w", err)
	}

	seen := make(map[string]struct{})
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		taskID := strings.TrimSuffix(
			strings.TrimSuffix(
				strings.TrimSuffix(name, ".result.json"),
				".output.jsonl"),
			".json")
		switch {
		case strings.HasSuffix(name, ".json"),
			strings.HasSuffix(name, ".output.jsonl"),
			strings.HasSuffix(name, ".result.json"):
			seen[taskID] = struct{}{}
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// DeleteTask removes all three artifact files for a task, tolerating ENOENT.
func (s *Store) DeleteTask(taskID string) error {
	s.metaCache.Remove(taskID)
	for _, path := range []string{s.metaPath(taskID), s.eventsPath(taskID), s.resultPath(taskID)} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("persistence: delete %s: %w", path, err)
		}
	}
	return nil
}

// SaveSessionMapping, GetTaskIdBySession, and RemoveSessionMapping mutate
// sessions.json under a single mutex, serializing reads and writes against
// the file to avoid a read-modify-write race between concurrent callers.

func (s *Store) SaveSessionMapping(sessionID, taskID string) error {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	idx, err := s.loadSessionIndexLocked()
	if err != nil {
		return err
	}
	idx.Mappings[sessionID] = taskID
	return writeJSONAtomic(s.sessionsPath(), idx)
}

func (s *Store) GetTaskIdBySession(sessionID string) (string, bool, error) {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	idx, err := s.loadSessionIndexLocked()
	if err != nil {
		return "", false, err
	}
	taskID, ok := idx.Mappings[sessionID]
	return taskID, ok, nil
}

func (s *Store) RemoveSessionMapping(sessionID string) error {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	idx, err := s.loadSessionIndexLocked()
	if err != nil {
		return err
	}
	delete(idx.Mappings, sessionID)
	return writeJSONAtomic(s.sessionsPath(), idx)
}

// loadSessionIndexLocked must be called with s.sessionMu held.
func (s *Store) loadSessionIndexLocked() (sessionIndex, error) {
	var idx sessionIndex
	found, err := readJSON(s.sessionsPath(), &idx)
	if err != nil {
		return sessionIndex{}, err
	}
	if !found {
		idx = sessionIndex{Version: 1, Mappings: map[string]string{}}
	}
	if idx.Mappings == nil {
		idx.Mappings = map[string]string{}
	}
	return idx, nil
}

// writeJSONAtomic pretty-prints v to a tmp file in the same directory and
// renames it into place, so a crash mid-write never leaves a partially
// written file at path.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("persistence: encode %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("persistence: create dir for %s: %w", path, err)
	}
	tmp := fmt.Sprintf("%s.tmp-%d", path, os.Getpid())
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(tmp))
	if err != nil {
		return fmt.Errorf("persistence: create temp file for %s: %w", path, err)
	}
	tmpName := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpName)
		return fmt.Errorf("persistence: write temp file for %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("persistence: close temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("persistence: rename into place for %s: %w", path, err)
	}
	return nil
}

// readJSON returns (true, nil) and decodes into v on success, (false, nil)
// on ENOENT, and (false, err) on any other I/O or decode error.
func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("persistence: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("persistence: decode %s: %w", path, err)
	}
	return true, nil
}
