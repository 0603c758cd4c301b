// Package redis provides a Redis-backed session store and distributed
// locker, for running multiple replicas against one shared state.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/magicprompt/loom/pkg/domain"
	"github.com/magicprompt/loom/pkg/ports"
)

// Store implements ports.SessionStore using Redis. Step rows live in a list
// per session (append-only by construction); exports use SETNX so a second
// write is rejected by the server, not by the client.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// Option configures the Store.
type Option func(*Store)

// WithTTL sets the expiration for session keys. Zero means no expiration.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// NewClient builds a plain go-redis client, shared between the store and the
// distributed locker.
func NewClient(address, password string, db int) *backend.Client {
	return backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
}

// New creates a Redis store with a fresh client.
func New(address, password string, db int, opts ...Option) *Store {
	return NewFromClient(NewClient(address, password, db), opts...)
}

// NewFromClient creates a Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "loom:",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) projectKey(id string) string { return s.prefix + "project:" + id }
func (s *Store) stepsKey(id string) string   { return s.prefix + "steps:" + id }
func (s *Store) exportKey(id string) string  { return s.prefix + "export:" + id }
func (s *Store) indexKey() string            { return s.prefix + "sessions" }

// CreateProject registers a session and adds it to the index.
func (s *Store) CreateProject(ctx context.Context, row ports.ProjectRow) error {
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("marshaling project: %w", err)
	}
	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.projectKey(row.SessionID), data, s.ttl)
	pipe.SAdd(ctx, s.indexKey(), row.SessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving project to redis: %w", err)
	}
	return nil
}

// LoadProject retrieves session identity.
func (s *Store) LoadProject(ctx context.Context, sessionID string) (*ports.ProjectRow, error) {
	val, err := s.client.Get(ctx, s.projectKey(sessionID)).Result()
	if err != nil {
		if err == backend.Nil {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("loading project from redis: %w", err)
	}
	var row ports.ProjectRow
	if err := json.Unmarshal([]byte(val), &row); err != nil {
		return nil, fmt.Errorf("unmarshaling project: %w", err)
	}
	return &row, nil
}

// AppendStep pushes a row onto the session's step list.
func (s *Store) AppendStep(ctx context.Context, row ports.StepRow) error {
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("marshaling step: %w", err)
	}
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, s.stepsKey(row.SessionID), data)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.stepsKey(row.SessionID), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("appending step to redis: %w", err)
	}
	return nil
}

// LoadSteps returns the session's step list in append order.
func (s *Store) LoadSteps(ctx context.Context, sessionID string) ([]ports.StepRow, error) {
	vals, err := s.client.LRange(ctx, s.stepsKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("loading steps from redis: %w", err)
	}
	rows := make([]ports.StepRow, 0, len(vals))
	for _, val := range vals {
		var row ports.StepRow
		if err := json.Unmarshal([]byte(val), &row); err != nil {
			return nil, fmt.Errorf("unmarshaling step: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// WriteExport stores the package with SETNX; a second write for the same
// session returns domain.ErrExportExists.
func (s *Store) WriteExport(ctx context.Context, row ports.ExportRow) error {
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("marshaling export: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.exportKey(row.SessionID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("writing export to redis: %w", err)
	}
	if !ok {
		return domain.ErrExportExists
	}
	return nil
}

// LoadExport retrieves the stored package.
func (s *Store) LoadExport(ctx context.Context, sessionID string) (*ports.ExportRow, error) {
	val, err := s.client.Get(ctx, s.exportKey(sessionID)).Result()
	if err != nil {
		if err == backend.Nil {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("loading export from redis: %w", err)
	}
	var row ports.ExportRow
	if err := json.Unmarshal([]byte(val), &row); err != nil {
		return nil, fmt.Errorf("unmarshaling export: %w", err)
	}
	return &row, nil
}

// Delete removes all session keys and drops the id from the index.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.projectKey(sessionID), s.stepsKey(sessionID), s.exportKey(sessionID))
	pipe.SRem(ctx, s.indexKey(), sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("deleting session from redis: %w", err)
	}
	return nil
}

// ListSessions returns the indexed session ids.
func (s *Store) ListSessions(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("listing sessions from redis: %w", err)
	}
	return ids, nil
}
