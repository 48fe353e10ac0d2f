package chat

import (
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hooma-ai/chatbot-backend/internal/model/chat"
)

const storeShards = 16

// activeWithin is the window used by Stats to count a session as active.
const activeWithin = time.Hour

// session is the store-internal mutable record behind a session id.
type session struct {
	id           string
	createdAt    time.Time
	lastActiveAt time.Time
	userInfo     map[string]any
	messages     []chat.Message
}

type storeShard struct {
	mu       sync.Mutex
	sessions map[string]*session
}

// Store is the in-memory session registry. Sessions are sharded by id so
// operations on different sessions never contend; operations on the same
// session are serialized by the shard mutex.
type Store struct {
	idleTimeout time.Duration
	now         func() time.Time
	shards      [storeShards]*storeShard
}

// NewStore builds a session store whose sessions expire after idleTimeout
// of inactivity. now may be nil, in which case time.Now is used.
func NewStore(idleTimeout time.Duration, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	s := &Store{idleTimeout: idleTimeout, now: now}
	for i := range s.shards {
		s.shards[i] = &storeShard{sessions: make(map[string]*session)}
	}
	return s
}

func (s *Store) shard(id string) *storeShard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return s.shards[h.Sum32()%storeShards]
}

// Begin resolves id to a live session, refreshing its activity stamp, or
// allocates a fresh one. An unknown or expired id is silently replaced by a
// new session; the caller must adopt the returned id. Begin never fails.
func (s *Store) Begin(id string, userInfo map[string]any) (string, bool) {
	now := s.now()

	if id != "" {
		sh := s.shard(id)
		sh.mu.Lock()
		if sess, ok := sh.sessions[id]; ok {
			if now.Sub(sess.lastActiveAt) > s.idleTimeout {
				// Expired but not yet swept; treat as gone.
				delete(sh.sessions, id)
			} else {
				if now.After(sess.lastActiveAt) {
					sess.lastActiveAt = now
				}
				sess.mergeUserInfo(userInfo)
				sh.mu.Unlock()
				return id, false
			}
		}
		sh.mu.Unlock()
	}

	fresh := uuid.NewString()
	sess := &session{
		id:           fresh,
		createdAt:    now,
		lastActiveAt: now,
		messages:     make([]chat.Message, 0, 16),
	}
	sess.mergeUserInfo(userInfo)

	sh := s.shard(fresh)
	sh.mu.Lock()
	sh.sessions[fresh] = sess
	sh.mu.Unlock()
	return fresh, true
}

// Append adds msg to the session transcript and returns a copy of the full
// transcript after the append. It reports false when the session no longer
// exists (for example, swept between lookup and append); the message is then
// dropped cleanly.
func (s *Store) Append(id string, msg chat.Message) ([]chat.Message, bool) {
	now := s.now()
	sh := s.shard(id)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	sess, ok := sh.sessions[id]
	if !ok {
		return nil, false
	}

	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}
	sess.messages = append(sess.messages, msg)
	if now.After(sess.lastActiveAt) {
		sess.lastActiveAt = now
	}

	copied := make([]chat.Message, len(sess.messages))
	copy(copied, sess.messages)
	return copied, true
}

// Transcript returns a copy of the stored messages for id.
func (s *Store) Transcript(id string) ([]chat.Message, bool) {
	sh := s.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sess, ok := sh.sessions[id]
	if !ok {
		return nil, false
	}
	copied := make([]chat.Message, len(sess.messages))
	copy(copied, sess.messages)
	return copied, true
}

// Sweep removes sessions idle past the configured timeout and returns how
// many were evicted. Each shard is locked only while it is scanned, so a
// sweep never stalls unrelated request handling for long.
func (s *Store) Sweep(now time.Time) int {
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for id, sess := range sh.sessions {
			if now.Sub(sess.lastActiveAt) > s.idleTimeout {
				delete(sh.sessions, id)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		total += len(sh.sessions)
		sh.mu.Unlock()
	}
	return total
}

// Stats summarizes the store for the operator surface.
type Stats struct {
	TotalSessions             int     `json:"total_sessions"`
	ActiveSessions            int     `json:"active_sessions"`
	TotalMessages             int     `json:"total_messages"`
	AvgMessagesPerSession     float64 `json:"avg_messages_per_session"`
	AvgSessionDurationMinutes float64 `json:"avg_session_duration_minutes"`
}

// CollectStats aggregates session counters. A session counts as active when
// its last activity falls within the previous hour.
func (s *Store) CollectStats(now time.Time) Stats {
	var st Stats
	var durationMinutes float64

	for _, sh := range s.shards {
		sh.mu.Lock()
		for _, sess := range sh.sessions {
			st.TotalSessions++
			st.TotalMessages += len(sess.messages)
			if now.Sub(sess.lastActiveAt) < activeWithin {
				st.ActiveSessions++
			}
			durationMinutes += sess.lastActiveAt.Sub(sess.createdAt).Minutes()
		}
		sh.mu.Unlock()
	}

	if st.TotalSessions > 0 {
		st.AvgMessagesPerSession = float64(st.TotalMessages) / float64(st.TotalSessions)
		st.AvgSessionDurationMinutes = durationMinutes / float64(st.TotalSessions)
	}
	return st
}

// Recent returns snapshots of the most recently active non-empty sessions,
// newest first, at most limit entries.
func (s *Store) Recent(limit int) []chat.Session {
	var snapshots []chat.Session
	for _, sh := range s.shards {
		sh.mu.Lock()
		for _, sess := range sh.sessions {
			if len(sess.messages) == 0 {
				continue
			}
			snapshots = append(snapshots, sess.snapshot())
		}
		sh.mu.Unlock()
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].LastActiveAt.After(snapshots[j].LastActiveAt)
	})
	if limit > 0 && len(snapshots) > limit {
		snapshots = snapshots[:limit]
	}
	return snapshots
}

// snapshot copies the record into an exported value. Caller holds the shard
// lock.
func (s *session) snapshot() chat.Session {
	messages := make([]chat.Message, len(s.messages))
	copy(messages, s.messages)

	var info map[string]any
	if len(s.userInfo) > 0 {
		info = make(map[string]any, len(s.userInfo))
		for k, v := range s.userInfo {
			info[k] = v
		}
	}

	return chat.Session{
		ID:           s.id,
		CreatedAt:    s.createdAt,
		LastActiveAt: s.lastActiveAt,
		UserInfo:     info,
		Messages:     messages,
	}
}

func (s *session) mergeUserInfo(info map[string]any) {
	if len(info) == 0 {
		return
	}
	if s.userInfo == nil {
		s.userInfo = make(map[string]any, len(info))
	}
	for k, v := range info {
		s.userInfo[k] = v
	}
}
