package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/slotwise/studio-backend/internal/models"
	"github.com/slotwise/studio-backend/internal/scheduling"
)

// SessionStore persists session snapshots so conversation state survives a
// restart. Implementations must treat an expired or missing session as not
// found.
type SessionStore interface {
	SaveSession(ctx context.Context, session *models.Session, ttl time.Duration) error
	LoadSession(ctx context.Context, phone string) (*models.Session, error)
	DeleteSession(ctx context.Context, phone string) error
}

func encodeSession(session *models.Session) ([]byte, error) {
	data, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}
	return data, nil
}

func decodeSession(data []byte) (*models.Session, error) {
	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &session, nil
}

func snapshotExpired(snap *models.SessionSnapshot, now time.Time) bool {
	return now.After(snap.ExpiresAt)
}

// MemorySessionStore keeps snapshots in-process. It is the default when
// neither Redis nor a database is configured.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]memorySnapshot
}

type memorySnapshot struct {
	data      []byte
	expiresAt time.Time
}

// NewMemorySessionStore creates an empty in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]memorySnapshot)}
}

func (s *MemorySessionStore) SaveSession(_ context.Context, session *models.Session, ttl time.Duration) error {
	data, err := encodeSession(session)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.sessions[session.Phone] = memorySnapshot{data: data, expiresAt: time.Now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

func (s *MemorySessionStore) LoadSession(_ context.Context, phone string) (*models.Session, error) {
	s.mu.RLock()
	snap, ok := s.sessions[phone]
	s.mu.RUnlock()

	if !ok || time.Now().After(snap.expiresAt) {
		return nil, &scheduling.NotFoundError{Resource: "session", Key: phone}
	}
	return decodeSession(snap.data)
}

func (s *MemorySessionStore) DeleteSession(_ context.Context, phone string) error {
	s.mu.Lock()
	delete(s.sessions, phone)
	s.mu.Unlock()
	return nil
}

// RedisSessionStore persists snapshots in Redis with the TTL applied on the
// key, so expiry needs no sweeper.
type RedisSessionStore struct {
	client *redis.Client
}

// NewRedisSessionStore connects to Redis at the given URL
// ("redis://host:port/db") and verifies the connection.
func NewRedisSessionStore(ctx context.Context, redisURL string) (*RedisSessionStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &RedisSessionStore{client: client}, nil
}

// NewRedisSessionStoreFromClient wraps an existing client, used by tests.
func NewRedisSessionStoreFromClient(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

func sessionKey(phone string) string {
	return "session:" + phone
}

func (s *RedisSessionStore) SaveSession(ctx context.Context, session *models.Session, ttl time.Duration) error {
	data, err := encodeSession(session)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, sessionKey(session.Phone), data, ttl).Err(); err != nil {
		return &scheduling.ExternalServiceError{Service: "redis", Err: err}
	}
	return nil
}

func (s *RedisSessionStore) LoadSession(ctx context.Context, phone string) (*models.Session, error) {
	data, err := s.client.Get(ctx, sessionKey(phone)).Bytes()
	if err == redis.Nil {
		return nil, &scheduling.NotFoundError{Resource: "session", Key: phone}
	}
	if err != nil {
		return nil, &scheduling.ExternalServiceError{Service: "redis", Err: err}
	}
	return decodeSession(data)
}

func (s *RedisSessionStore) DeleteSession(ctx context.Context, phone string) error {
	if err := s.client.Del(ctx, sessionKey(phone)).Err(); err != nil {
		return &scheduling.ExternalServiceError{Service: "redis", Err: err}
	}
	return nil
}

// DatabaseSessionStore persists snapshots through gorm so conversation state
// survives restarts when Redis is not configured. Expiry is enforced on read:
// a stale row is dropped and reported as not found.
type DatabaseSessionStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewDatabaseSessionStore wraps an open gorm connection. The session_snapshots
// table is created by the AutoMigrate pass in main.
func NewDatabaseSessionStore(db *gorm.DB) *DatabaseSessionStore {
	return &DatabaseSessionStore{db: db, now: time.Now}
}

func (s *DatabaseSessionStore) SaveSession(ctx context.Context, session *models.Session, ttl time.Duration) error {
	data, err := encodeSession(session)
	if err != nil {
		return err
	}

	snap := &models.SessionSnapshot{
		Phone:     session.Phone,
		Context:   string(data),
		ExpiresAt: s.now().Add(ttl),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "phone"}},
		DoUpdates: clause.AssignmentColumns([]string{"context", "expires_at", "updated_at"}),
	}).Create(snap).Error
	if err != nil {
		return &scheduling.ExternalServiceError{Service: "postgres", Err: err}
	}
	return nil
}

func (s *DatabaseSessionStore) LoadSession(ctx context.Context, phone string) (*models.Session, error) {
	var snap models.SessionSnapshot
	err := s.db.WithContext(ctx).Where("phone = ?", phone).First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &scheduling.NotFoundError{Resource: "session", Key: phone}
	}
	if err != nil {
		return nil, &scheduling.ExternalServiceError{Service: "postgres", Err: err}
	}

	if snapshotExpired(&snap, s.now()) {
		_ = s.db.WithContext(ctx).Delete(&models.SessionSnapshot{}, snap.ID).Error
		return nil, &scheduling.NotFoundError{Resource: "session", Key: phone}
	}
	return decodeSession([]byte(snap.Context))
}

func (s *DatabaseSessionStore) DeleteSession(ctx context.Context, phone string) error {
	err := s.db.WithContext(ctx).Where("phone = ?", phone).Delete(&models.SessionSnapshot{}).Error
	if err != nil {
		return &scheduling.ExternalServiceError{Service: "postgres", Err: err}
	}
	return nil
}
