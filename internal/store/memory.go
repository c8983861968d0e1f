package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/handcricket/backend/internal/cricket"
)

type memSession struct {
	session   cricket.Session
	expiresAt time.Time
}

type memBinding struct {
	handle    string
	expiresAt time.Time
}

// MemoryStore is a single-process Store used for local development and tests.
// One mutex guards everything, which gives every operation the same
// atomicity the Redis scripts provide.
type MemoryStore struct {
	mu sync.Mutex

	opts      Options
	now       func() time.Time
	seq       int64
	queue     []QueueEntry
	status    map[string]PlayerStatus
	profiles  map[string]cricket.Participant
	bindings  map[string]memBinding
	sessions  map[string]memSession
	deadlines map[DeadlineKind]map[string]time.Time
}

func NewMemoryStore(opts Options) *MemoryStore {
	return &MemoryStore{
		opts:     opts.withDefaults(),
		now:      time.Now,
		status:   make(map[string]PlayerStatus),
		profiles: make(map[string]cricket.Participant),
		bindings: make(map[string]memBinding),
		sessions: make(map[string]memSession),
		deadlines: map[DeadlineKind]map[string]time.Time{
			DeadlineWarning: {},
			DeadlineForfeit: {},
		},
	}
}

func (m *MemoryStore) enqueueLocked(id string) QueueEntry {
	m.seq++
	e := QueueEntry{ParticipantID: id, Seq: m.seq}
	m.queue = append(m.queue, e)
	m.status[id] = PlayerStatus{Kind: StatusQueued, Seq: e.Seq}
	return e
}

func (m *MemoryStore) Enqueue(ctx context.Context, participantID string) (QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status[participantID].Active() {
		return QueueEntry{}, ErrAlreadyActive
	}
	return m.enqueueLocked(participantID), nil
}

func (m *MemoryStore) Requeue(ctx context.Context, participantID string) (QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status[participantID].Kind == StatusInSession {
		return QueueEntry{}, ErrAlreadyActive
	}
	return m.enqueueLocked(participantID), nil
}

func (m *MemoryStore) Dequeue(ctx context.Context, participantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.status[participantID]
	if st.Kind != StatusQueued {
		return ErrNotQueued
	}
	for i, e := range m.queue {
		if e.ParticipantID == participantID && e.Seq == st.Seq {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			m.status[participantID] = Idle()
			return nil
		}
	}
	return ErrNotQueued
}

func (m *MemoryStore) live(e QueueEntry) bool {
	st := m.status[e.ParticipantID]
	return st.Kind == StatusQueued && st.Seq == e.Seq
}

func (m *MemoryStore) PopPair(ctx context.Context) ([]QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var picked []QueueEntry
	i := 0
	for ; i < len(m.queue) && len(picked) < 2; i++ {
		if m.live(m.queue[i]) {
			picked = append(picked, m.queue[i])
		}
	}
	if len(picked) < 2 {
		// Drop stale entries but keep the live one at the head.
		m.queue = append(picked, m.queue[i:]...)
		return nil, nil
	}
	m.queue = append([]QueueEntry(nil), m.queue[i:]...)
	return picked, nil
}

func (m *MemoryStore) QueueLength(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.queue)), nil
}

func (m *MemoryStore) QueuePosition(ctx context.Context, participantID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.status[participantID]
	if st.Kind != StatusQueued {
		return 0, ErrNotQueued
	}
	for i, e := range m.queue {
		if e.ParticipantID == participantID && e.Seq == st.Seq {
			return int64(i + 1), nil
		}
	}
	return 0, ErrNotQueued
}

func (m *MemoryStore) GetStatus(ctx context.Context, participantID string) (PlayerStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.status[participantID]
	if !ok {
		return Idle(), nil
	}
	return st, nil
}

func (m *MemoryStore) SetStatus(ctx context.Context, participantID string, st PlayerStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status[participantID] = st
	return nil
}

func (m *MemoryStore) ReleaseSession(ctx context.Context, participantID, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st := m.status[participantID]; st.Kind == StatusInSession && st.SessionID == sessionID {
		m.status[participantID] = Idle()
	}
	return nil
}

func (m *MemoryStore) SaveProfile(ctx context.Context, p cricket.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.ID] = p
	return nil
}

func (m *MemoryStore) GetProfile(ctx context.Context, participantID string) (cricket.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.profiles[participantID]
	if !ok {
		return cricket.Participant{}, ErrNotFound
	}
	return p, nil
}

func (m *MemoryStore) BindConnection(ctx context.Context, participantID, handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bindings[participantID] = memBinding{handle: handle, expiresAt: m.now().Add(m.opts.StatusTTL)}
	return nil
}

func (m *MemoryStore) ConnectionHandle(ctx context.Context, participantID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.ownerLocked(participantID), nil
}

// ownerLocked returns the live binding's handle, dropping an expired one.
func (m *MemoryStore) ownerLocked(participantID string) string {
	b, ok := m.bindings[participantID]
	if !ok {
		return ""
	}
	if m.now().After(b.expiresAt) {
		delete(m.bindings, participantID)
		return ""
	}
	return b.handle
}

func (m *MemoryStore) TouchConnection(ctx context.Context, participantID, handle string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h := m.ownerLocked(participantID); h != "" && h != handle {
		return false, nil
	}
	m.bindings[participantID] = memBinding{handle: handle, expiresAt: m.now().Add(m.opts.StatusTTL)}
	return true, nil
}

func (m *MemoryStore) UnbindConnection(ctx context.Context, participantID, handle string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h := m.ownerLocked(participantID); h != "" && h != handle {
		return false, nil
	}
	delete(m.bindings, participantID)
	return true, nil
}

func (m *MemoryStore) CreateSession(ctx context.Context, s cricket.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[s.ID] = memSession{session: s.Clone(), expiresAt: m.now().Add(m.opts.sessionExpiry(s))}
	for _, id := range s.ParticipantIDs() {
		m.status[id] = InSession(s.ID)
	}
	return nil
}

func (m *MemoryStore) getLocked(sessionID string) (cricket.Session, bool) {
	ms, ok := m.sessions[sessionID]
	if !ok {
		return cricket.Session{}, false
	}
	if m.now().After(ms.expiresAt) {
		delete(m.sessions, sessionID)
		return cricket.Session{}, false
	}
	return ms.session, true
}

func (m *MemoryStore) GetSession(ctx context.Context, sessionID string) (cricket.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.getLocked(sessionID)
	if !ok {
		return cricket.Session{}, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) UpdateSession(ctx context.Context, sessionID string, fn UpdateFunc) (cricket.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.getLocked(sessionID)
	if !ok {
		return cricket.Session{}, ErrNotFound
	}
	next := cur.Clone()
	if err := fn(&next); err != nil {
		return cricket.Session{}, err
	}
	next.Version = cur.Version + 1
	next.UpdatedAt = m.now()
	m.sessions[sessionID] = memSession{session: next.Clone(), expiresAt: m.now().Add(m.opts.sessionExpiry(next))}
	return next, nil
}

func (m *MemoryStore) ScheduleDeadline(ctx context.Context, kind DeadlineKind, member string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deadlines[kind][member] = at
	return nil
}

func (m *MemoryStore) CancelDeadlines(ctx context.Context, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, set := range m.deadlines {
		for _, mem := range members {
			delete(set, mem)
		}
	}
	return nil
}

func (m *MemoryStore) ClaimDue(ctx context.Context, kind DeadlineKind, now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []string
	for mem, at := range m.deadlines[kind] {
		if !at.After(now) {
			due = append(due, mem)
			delete(m.deadlines[kind], mem)
		}
	}
	sort.Strings(due)
	return due, nil
}
