// Package upload parses multipart upload streams into in-memory file buffers
// and tracks per-session progress.
package upload

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kazane-dev/kiroku/internal/models"
)

// Session tracks one upload request: per-file byte counts, progress status,
// and session-level errors. A session is owned by the receiver that created
// it; other code only reads snapshots.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time

	mu          sync.Mutex
	maxBytes    int64 // progress denominator, see Progress
	order       []string
	progress    map[string]*models.UploadProgress
	errors      []string
	completed   bool
	completedAt time.Time
}

// TrackFile registers a file at the start of its part.
func (s *Session) TrackFile(fileID, fileName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = append(s.order, fileID)
	s.progress[fileID] = &models.UploadProgress{
		FileID:     fileID,
		FileName:   fileName,
		TotalBytes: s.maxBytes,
		Status:     models.StatusUploading,
	}
}

// AddBytes records n more received bytes for fileID. Progress percentage is
// computed against the configured per-file byte cap, matching what existing
// clients render; the declared per-part size is not available on a multipart
// stream. The percentage is monotonically non-decreasing.
func (s *Session) AddBytes(fileID string, n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.progress[fileID]
	if !ok {
		return
	}
	p.BytesReceived += n
	if s.maxBytes > 0 {
		p.Percentage = float64(p.BytesReceived) / float64(s.maxBytes) * 100
	}
}

// SetStatus transitions a file's progress status. An error message may be
// attached when status is StatusError.
func (s *Session) SetStatus(fileID string, status models.FileStatus, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.progress[fileID]
	if !ok {
		p = &models.UploadProgress{FileID: fileID, TotalBytes: s.maxBytes}
		s.order = append(s.order, fileID)
		s.progress[fileID] = p
	}
	p.Status = status
	if errMsg != "" {
		p.Error = errMsg
	}
	if status == models.StatusCompleted {
		p.Percentage = 100
	}
}

// AddError records a session-level error. Individual file errors never abort
// the session.
func (s *Session) AddError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, msg)
}

// Complete marks the session finished. Per-file errors do not prevent
// completion; only a fatal transport error does.
func (s *Session) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = true
	s.completedAt = time.Now()
}

// Completed reports whether the stream has ended.
func (s *Session) Completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

// Errors returns a copy of the recorded session-level errors.
func (s *Session) Errors() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.errors...)
}

// Progress returns per-file progress snapshots in part order.
func (s *Session) Progress() []models.UploadProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.UploadProgress, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.progress[id])
	}
	return out
}

// Arena is the process-wide session registry: an explicit arena keyed by
// generated id with a TTL sweep, instead of an ad hoc global map. Sessions
// are never shared between requests, so the arena only needs safe concurrent
// map access.
type Arena struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	maxAge   time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

// NewArena creates an arena whose sweep removes sessions maxAge after
// completion (or after creation, for sessions that never complete).
func NewArena(maxAge time.Duration) *Arena {
	return &Arena{
		sessions: make(map[string]*Session),
		maxAge:   maxAge,
		stop:     make(chan struct{}),
	}
}

// Create registers a new session for userID. maxFileBytes is the per-file
// cap used as the progress denominator.
func (a *Arena) Create(userID string, maxFileBytes int64) *Session {
	s := &Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		CreatedAt: time.Now(),
		maxBytes:  maxFileBytes,
		progress:  make(map[string]*models.UploadProgress),
	}
	a.mu.Lock()
	a.sessions[s.ID] = s
	a.mu.Unlock()
	return s
}

// Get returns the session with the given id, or nil.
func (a *Arena) Get(id string) *Session {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.sessions[id]
}

// Remove deletes a session explicitly.
func (a *Arena) Remove(id string) {
	a.mu.Lock()
	delete(a.sessions, id)
	a.mu.Unlock()
}

// Len returns the number of live sessions.
func (a *Arena) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.sessions)
}

// Sweep removes expired sessions and returns how many were removed. It runs
// on the sweeper timer but is callable on demand from tests.
func (a *Arena) Sweep(now time.Time) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	removed := 0
	for id, s := range a.sessions {
		s.mu.Lock()
		ref := s.CreatedAt
		if s.completed {
			ref = s.completedAt
		}
		s.mu.Unlock()
		if now.Sub(ref) > a.maxAge {
			delete(a.sessions, id)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep on the given interval until Stop is called.
func (a *Arena) StartSweeper(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-a.stop:
				return
			case t := <-ticker.C:
				a.Sweep(t)
			}
		}
	}()
}

// Stop halts the background sweeper.
func (a *Arena) Stop() {
	a.stopOnce.Do(func() { close(a.stop) })
}
