package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Backend. Sessions are lost on exit.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]*Session
	runs     map[string][]Run
	now      func() time.Time
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]*Session),
		runs:     make(map[string][]Run),
		now:      time.Now,
	}
}

func (m *Memory) touch(id string) *Session {
	now := m.now().Unix()
	s, ok := m.sessions[id]
	if !ok {
		s = &Session{ID: id, CreatedAt: now}
		m.sessions[id] = s
	}
	s.Version++
	s.UpdatedAt = now
	return s
}

func (m *Memory) GetBuffer(_ context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s.Buffer, nil
	}
	return "", nil
}

func (m *Memory) AppendBuffer(_ context.Context, id, text string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.touch(id)
	s.Buffer = JoinBuffer(s.Buffer, text)
	return s.Buffer, nil
}

func (m *Memory) ClearBuffer(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.touch(id)
	s.Buffer = ""
	s.LastResult = ""
	return nil
}

func (m *Memory) SetLastResult(_ context.Context, id, result string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch(id).LastResult = result
	return nil
}

func (m *Memory) GetLastResult(_ context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s.LastResult, nil
	}
	return "", nil
}

// Get returns a copy of the session, or nil if it does not exist.
func (m *Memory) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *Memory) List(_ context.Context, limit, offset int) ([]Summary, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := make([]Summary, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, Summary{
			ID:          s.ID,
			BufferChars: len([]rune(s.Buffer)),
			HasResult:   s.LastResult != "",
			CreatedAt:   s.CreatedAt,
			UpdatedAt:   s.UpdatedAt,
		})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].UpdatedAt != all[j].UpdatedAt {
			return all[i].UpdatedAt > all[j].UpdatedAt
		}
		return all[i].ID < all[j].ID
	})

	total := len(all)
	if offset >= total {
		return []Summary{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return all[offset:end], total, nil
}

func (m *Memory) Purge(_ context.Context, idleBefore time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := idleBefore.Unix()
	n := 0
	for id, s := range m.sessions {
		if s.UpdatedAt < cutoff {
			delete(m.sessions, id)
			delete(m.runs, id)
			n++
		}
	}
	return n, nil
}

func (m *Memory) RecordRun(_ context.Context, run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.SessionID] = append(m.runs[run.SessionID], *run)
	return nil
}

// ListRuns returns runs newest first.
func (m *Memory) ListRuns(_ context.Context, sessionID string, limit int) ([]Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src := m.runs[sessionID]
	out := make([]Run, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		out = append(out, src[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
