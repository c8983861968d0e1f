package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/handcricket/backend/internal/cricket"
	"github.com/redis/go-redis/v9"
)

const (
	queueKey    = "hc:queue"
	queueSeqKey = "hc:queue:seq"

	statusPrefix  = "hc:status:"
	profilePrefix = "hc:profile:"
	connPrefix    = "hc:conn:"
	sessionPrefix = "hc:session:"

	maxUpdateRetries = 16
)

func statusKey(id string) string { return statusPrefix + id }
func profileKey(id string) string { return profilePrefix + id }
func connKey(id string) string { return connPrefix + id }
func sessionKey(id string) string { return sessionPrefix + id }
func deadlineKey(k DeadlineKind) string { return "hc:" + string(k) }

// Queue items are "<seq>|<participantID>"; seq is numeric so the first '|'
// always separates the two.
func queueItem(seq int64, id string) string { return strconv.FormatInt(seq, 10) + "|" + id }

func parseQueueItem(item string) (QueueEntry, error) {
	seqStr, id, ok := strings.Cut(item, "|")
	if !ok {
		return QueueEntry{}, fmt.Errorf("malformed queue item %q", item)
	}
	seq, err := strconv.ParseInt(seqStr, 10, 64)
	if err != nil {
		return QueueEntry{}, fmt.Errorf("malformed queue item %q: %w", item, err)
	}
	return QueueEntry{ParticipantID: id, Seq: seq}, nil
}

// KEYS: status, queue, seq. ARGV: participant id, status ttl seconds, "1" to
// allow an already queued participant (requeue).
var enqueueScript = redis.NewScript(`
local kind = redis.call('HGET', KEYS[1], 'kind')
if kind == 'in_session' then return -1 end
if kind == 'queued' and ARGV[3] ~= '1' then return -1 end
local seq = redis.call('INCR', KEYS[3])
redis.call('RPUSH', KEYS[2], seq .. '|' .. ARGV[1])
redis.call('HSET', KEYS[1], 'kind', 'queued', 'session', '', 'seq', seq)
redis.call('EXPIRE', KEYS[1], ARGV[2])
return seq
`)

// KEYS: status, queue. ARGV: participant id, status ttl seconds.
var dequeueScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'kind') ~= 'queued' then return 0 end
local seq = redis.call('HGET', KEYS[1], 'seq')
local removed = redis.call('LREM', KEYS[2], 1, seq .. '|' .. ARGV[1])
if removed == 0 then return 0 end
redis.call('HSET', KEYS[1], 'kind', 'idle', 'session', '', 'seq', '')
redis.call('EXPIRE', KEYS[1], ARGV[2])
return 1
`)

// KEYS: queue. ARGV: status key prefix. Entries whose status no longer
// matches their seq are stale and dropped.
var popPairScript = redis.NewScript(`
local picked = {}
while #picked < 2 do
  local item = redis.call('LPOP', KEYS[1])
  if not item then break end
  local sep = string.find(item, '|', 1, true)
  if sep then
    local seq = string.sub(item, 1, sep - 1)
    local id = string.sub(item, sep + 1)
    local st = redis.call('HMGET', ARGV[1] .. id, 'kind', 'seq')
    if st[1] == 'queued' and st[2] == seq then
      table.insert(picked, item)
    end
  end
end
if #picked < 2 then
  for i = #picked, 1, -1 do redis.call('LPUSH', KEYS[1], picked[i]) end
  return {}
end
return picked
`)

// KEYS: status. ARGV: session id, status ttl seconds.
var releaseScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'kind') ~= 'in_session' then return 0 end
if redis.call('HGET', KEYS[1], 'session') ~= ARGV[1] then return 0 end
redis.call('HSET', KEYS[1], 'kind', 'idle', 'session', '', 'seq', '')
redis.call('EXPIRE', KEYS[1], ARGV[2])
return 1
`)

// KEYS: binding. ARGV: expected handle. A missing binding already expired
// and counts as owned.
var unbindScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur and cur ~= ARGV[1] then return 0 end
redis.call('DEL', KEYS[1])
return 1
`)

// KEYS: binding, status, profile. ARGV: handle, ttl seconds.
var touchScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur and cur ~= ARGV[1] then return 0 end
redis.call('SET', KEYS[1], ARGV[1], 'EX', ARGV[2])
redis.call('EXPIRE', KEYS[2], ARGV[2])
redis.call('EXPIRE', KEYS[3], ARGV[2])
return 1
`)

// RedisStore keeps all shared state in Redis so that any number of server
// processes can serve the same queue and sessions.
type RedisStore struct {
	rdb  *redis.Client
	opts Options
}

func NewRedisStore(rdb *redis.Client, opts Options) *RedisStore {
	return &RedisStore{rdb: rdb, opts: opts.withDefaults()}
}

func (s *RedisStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.Timeout)
}

func (s *RedisStore) statusTTLSeconds() int64 {
	return max(int64(s.opts.StatusTTL/time.Second), 1)
}

func (s *RedisStore) enqueue(ctx context.Context, id string, allowQueued bool) (QueueEntry, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	flag := "0"
	if allowQueued {
		flag = "1"
	}
	seq, err := enqueueScript.Run(ctx, s.rdb, []string{statusKey(id), queueKey, queueSeqKey}, id, s.statusTTLSeconds(), flag).Int64()
	if err != nil {
		return QueueEntry{}, unavailable(err)
	}
	if seq < 0 {
		return QueueEntry{}, ErrAlreadyActive
	}
	return QueueEntry{ParticipantID: id, Seq: seq}, nil
}

func (s *RedisStore) Enqueue(ctx context.Context, participantID string) (QueueEntry, error) {
	return s.enqueue(ctx, participantID, false)
}

func (s *RedisStore) Requeue(ctx context.Context, participantID string) (QueueEntry, error) {
	return s.enqueue(ctx, participantID, true)
}

func (s *RedisStore) Dequeue(ctx context.Context, participantID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := dequeueScript.Run(ctx, s.rdb, []string{statusKey(participantID), queueKey}, participantID, s.statusTTLSeconds()).Int64()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return ErrNotQueued
	}
	return nil
}

func (s *RedisStore) PopPair(ctx context.Context) ([]QueueEntry, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	items, err := popPairScript.Run(ctx, s.rdb, []string{queueKey}, statusPrefix).StringSlice()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(items) < 2 {
		return nil, nil
	}
	pair := make([]QueueEntry, 0, 2)
	for _, item := range items {
		e, err := parseQueueItem(item)
		if err != nil {
			return nil, unavailable(err)
		}
		pair = append(pair, e)
	}
	return pair, nil
}

func (s *RedisStore) QueueLength(ctx context.Context) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := s.rdb.LLen(ctx, queueKey).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

func (s *RedisStore) QueuePosition(ctx context.Context, participantID string) (int64, error) {
	st, err := s.GetStatus(ctx, participantID)
	if err != nil {
		return 0, err
	}
	if st.Kind != StatusQueued {
		return 0, ErrNotQueued
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	items, err := s.rdb.LRange(ctx, queueKey, 0, -1).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	want := queueItem(st.Seq, participantID)
	for i, item := range items {
		if item == want {
			return int64(i + 1), nil
		}
	}
	return 0, ErrNotQueued
}

func (s *RedisStore) GetStatus(ctx context.Context, participantID string) (PlayerStatus, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	fields, err := s.rdb.HGetAll(ctx, statusKey(participantID)).Result()
	if err != nil {
		return PlayerStatus{}, unavailable(err)
	}
	switch StatusKind(fields["kind"]) {
	case StatusQueued:
		seq, _ := strconv.ParseInt(fields["seq"], 10, 64)
		return PlayerStatus{Kind: StatusQueued, Seq: seq}, nil
	case StatusInSession:
		return InSession(fields["session"]), nil
	default:
		return Idle(), nil
	}
}

func (s *RedisStore) SetStatus(ctx context.Context, participantID string, st PlayerStatus) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		setStatus(ctx, pipe, participantID, st, s.opts.StatusTTL)
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func setStatus(ctx context.Context, pipe redis.Pipeliner, id string, st PlayerStatus, ttl time.Duration) {
	seq := ""
	if st.Kind == StatusQueued {
		seq = strconv.FormatInt(st.Seq, 10)
	}
	pipe.HSet(ctx, statusKey(id), "kind", string(st.Kind), "session", st.SessionID, "seq", seq)
	pipe.Expire(ctx, statusKey(id), ttl)
}

func (s *RedisStore) ReleaseSession(ctx context.Context, participantID, sessionID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := releaseScript.Run(ctx, s.rdb, []string{statusKey(participantID)}, sessionID, s.statusTTLSeconds()).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *RedisStore) SaveProfile(ctx context.Context, p cricket.Participant) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, profileKey(p.ID), b, s.opts.StatusTTL).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *RedisStore) GetProfile(ctx context.Context, participantID string) (cricket.Participant, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	b, err := s.rdb.Get(ctx, profileKey(participantID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return cricket.Participant{}, ErrNotFound
	}
	if err != nil {
		return cricket.Participant{}, unavailable(err)
	}
	var p cricket.Participant
	if err := json.Unmarshal(b, &p); err != nil {
		return cricket.Participant{}, unavailable(err)
	}
	return p, nil
}

func (s *RedisStore) BindConnection(ctx context.Context, participantID, handle string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.rdb.Set(ctx, connKey(participantID), handle, s.opts.StatusTTL).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *RedisStore) ConnectionHandle(ctx context.Context, participantID string) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	h, err := s.rdb.Get(ctx, connKey(participantID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", unavailable(err)
	}
	return h, nil
}

func (s *RedisStore) TouchConnection(ctx context.Context, participantID, handle string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	keys := []string{connKey(participantID), statusKey(participantID), profileKey(participantID)}
	n, err := touchScript.Run(ctx, s.rdb, keys, handle, s.statusTTLSeconds()).Int64()
	if err != nil {
		return false, unavailable(err)
	}
	return n > 0, nil
}

func (s *RedisStore) UnbindConnection(ctx context.Context, participantID, handle string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := unbindScript.Run(ctx, s.rdb, []string{connKey(participantID)}, handle).Int64()
	if err != nil {
		return false, unavailable(err)
	}
	return n > 0, nil
}

func (s *RedisStore) CreateSession(ctx context.Context, sess cricket.Session) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	b, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(sess.ID), b, s.opts.sessionExpiry(sess))
		for _, id := range sess.ParticipantIDs() {
			setStatus(ctx, pipe, id, InSession(sess.ID), s.opts.StatusTTL)
		}
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *RedisStore) GetSession(ctx context.Context, sessionID string) (cricket.Session, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	b, err := s.rdb.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return cricket.Session{}, ErrNotFound
	}
	if err != nil {
		return cricket.Session{}, unavailable(err)
	}
	var sess cricket.Session
	if err := json.Unmarshal(b, &sess); err != nil {
		return cricket.Session{}, unavailable(err)
	}
	return sess, nil
}

func (s *RedisStore) UpdateSession(ctx context.Context, sessionID string, fn UpdateFunc) (cricket.Session, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	key := sessionKey(sessionID)
	var (
		result cricket.Session
		fnErr  error
	)
	txf := func(tx *redis.Tx) error {
		b, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			return err
		}
		var cur cricket.Session
		if err := json.Unmarshal(b, &cur); err != nil {
			return err
		}
		next := cur.Clone()
		if err := fn(&next); err != nil {
			fnErr = err
			return err
		}
		next.Version = cur.Version + 1
		next.UpdatedAt = time.Now()
		out, err := json.Marshal(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, s.opts.sessionExpiry(next))
			return nil
		})
		if err == nil {
			result = next
		}
		return err
	}

	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		fnErr = nil
		err := s.rdb.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return result, nil
		case fnErr != nil:
			return cricket.Session{}, fnErr
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, redis.Nil):
			return cricket.Session{}, ErrNotFound
		default:
			return cricket.Session{}, unavailable(err)
		}
	}
	return cricket.Session{}, unavailable(fmt.Errorf("session %s: too many concurrent updates", sessionID))
}

func (s *RedisStore) ScheduleDeadline(ctx context.Context, kind DeadlineKind, member string, at time.Time) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.rdb.ZAdd(ctx, deadlineKey(kind), redis.Z{Score: float64(at.UnixMilli()), Member: member}).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *RedisStore) CancelDeadlines(ctx context.Context, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, deadlineKey(DeadlineWarning), args...)
		pipe.ZRem(ctx, deadlineKey(DeadlineForfeit), args...)
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *RedisStore) ClaimDue(ctx context.Context, kind DeadlineKind, now time.Time) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	key := deadlineKey(kind)
	members, err := s.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: "-inf", Max: strconv.FormatInt(now.UnixMilli(), 10)}).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	claimed := members[:0]
	for _, m := range members {
		// ZREM decides the race between processes polling the same set.
		removed, err := s.rdb.ZRem(ctx, key, m).Result()
		if err != nil {
			return claimed, unavailable(err)
		}
		if removed > 0 {
			claimed = append(claimed, m)
		}
	}
	return claimed, nil
}
