package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStoreUnavailable marks any Redis transport failure. Callers must fail
// closed on it; a store outage never downgrades to an implicit allow.
var ErrStoreUnavailable = errors.New("session store unavailable")

// ErrNotFound is returned when no record exists for a session identifier,
// covering both natural expiry and explicit revocation.
var ErrNotFound = errors.New("session not found")

// Store is a Redis-backed session store with sliding expiration. Reads go
// through GETEX so the lookup and the TTL renewal are one atomic command.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a session Store on the given Redis client. prefix
// namespaces every key; the store appends "session:" and "usess:" segments
// below it.
func NewStore(client redis.UniversalClient, prefix string) *Store {
	return &Store{redis: client, prefix: prefix}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + "session:" + sessionID
}

func (s *Store) userKey(userID int64) string {
	return fmt.Sprintf("%susess:%d", s.prefix, userID)
}

// Save persists a session record with the given TTL and adds it to the
// owner's session index.
func (s *Store) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.SessionID), data, ttl)
		pipe.SAdd(ctx, s.userKey(sess.UserID), sess.SessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// GetRefresh reads a session record and renews its sliding expiration in the
// same Redis command. A missing record is ErrNotFound; transport failures
// are ErrStoreUnavailable.
func (s *Store) GetRefresh(ctx context.Context, sessionID string, ttl time.Duration) (*Session, error) {
	data, err := s.redis.GetEx(ctx, s.key(sessionID), ttl).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	sess.SessionID = sessionID
	return sess, nil
}

// Peek reads a session record without touching its TTL.
func (s *Store) Peek(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	sess.SessionID = sessionID
	return sess, nil
}

// Update rewrites a record in place, preserving whatever TTL the key
// currently carries. Used by re-validation to refresh role/status fields
// without disturbing the sliding expiry.
func (s *Store) Update(ctx context.Context, sess *Session) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(sess.SessionID), data, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Delete removes a session record and its index entry. Deleting an absent
// session is not an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	sess, err := s.Peek(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(sessionID))
		pipe.SRem(ctx, s.userKey(sess.UserID), sessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// DeleteAllForUser removes every tracked session of a user. A session
// created concurrently with the call may survive; it will expire naturally
// or be caught by a subsequent revocation.
func (s *Store) DeleteAllForUser(ctx context.Context, userID int64) error {
	userKey := s.userKey(userID)

	sessionIDs, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, sid := range sessionIDs {
			pipe.Del(ctx, s.key(sid))
		}
		pipe.Del(ctx, userKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// ActiveSessionIDs returns the tracked session identifiers of a user.
func (s *Store) ActiveSessionIDs(ctx context.Context, userID int64) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return ids, nil
}

// Ping reports point-in-time store availability and round-trip latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return time.Since(start), nil
}
