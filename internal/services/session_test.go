package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotwise/studio-backend/internal/models"
)

func TestSessionTTLSlidesOnActivity(t *testing.T) {
	m := NewSessionManager(nil, time.Hour)
	t.Cleanup(m.Stop)

	now := testNow()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, m.WithTurn(ctx, testPhone, func(s *models.Session) error {
		s.ClientName = "Ana"
		return nil
	}))

	// 45 minutes later the session is alive and the touch resets the clock.
	now = now.Add(45 * time.Minute)
	require.NoError(t, m.WithTurn(ctx, testPhone, func(s *models.Session) error {
		assert.Equal(t, "Ana", s.ClientName)
		return nil
	}))

	// Another 45 minutes is still within the slid window.
	now = now.Add(45 * time.Minute)
	assert.NotNil(t, m.Peek(testPhone))
}

func TestSessionExpiresIntoCleanSlate(t *testing.T) {
	m := NewSessionManager(nil, time.Hour)
	t.Cleanup(m.Stop)

	now := testNow()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, m.WithTurn(ctx, testPhone, func(s *models.Session) error {
		s.ClientName = "Ana"
		s.Active = &models.Intent{ID: "IN1", Kind: models.IntentKindBook}
		return nil
	}))

	now = now.Add(2 * time.Hour)
	assert.Nil(t, m.Peek(testPhone))

	// The next contact starts fresh: no intent state survives expiry.
	require.NoError(t, m.WithTurn(ctx, testPhone, func(s *models.Session) error {
		assert.Empty(t, s.ClientName)
		assert.Nil(t, s.Active)
		return nil
	}))
}

func TestSessionCleanupRemovesExpired(t *testing.T) {
	m := NewSessionManager(nil, time.Hour)
	t.Cleanup(m.Stop)

	now := testNow()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, m.WithTurn(ctx, "+5730001", func(*models.Session) error { return nil }))
	require.NoError(t, m.WithTurn(ctx, "+5730002", func(*models.Session) error { return nil }))
	assert.Equal(t, 2, m.GetActiveSessionCount())

	now = now.Add(2 * time.Hour)
	m.cleanupExpired()
	assert.Equal(t, 0, m.GetActiveSessionCount())
}

func TestSessionRestoresFromSnapshot(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	first := NewSessionManager(store, time.Hour)
	first.now = testNow
	require.NoError(t, first.WithTurn(ctx, testPhone, func(s *models.Session) error {
		s.ClientName = "Ana"
		return nil
	}))
	first.Stop()

	// A new manager over the same store picks the conversation back up.
	second := NewSessionManager(store, time.Hour)
	second.now = testNow
	t.Cleanup(second.Stop)
	require.NoError(t, second.WithTurn(ctx, testPhone, func(s *models.Session) error {
		assert.Equal(t, "Ana", s.ClientName)
		return nil
	}))
}

func TestRedisSessionStoreRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewRedisSessionStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()

	session := &models.Session{
		Phone:      testPhone,
		ClientName: "Ana",
		Timezone:   "America/Bogota",
		Active:     &models.Intent{ID: "IN1", Kind: models.IntentKindBook, ClassType: "Yoga"},
		LastActive: testNow(),
	}
	require.NoError(t, store.SaveSession(ctx, session, time.Hour))

	loaded, err := store.LoadSession(ctx, testPhone)
	require.NoError(t, err)
	assert.Equal(t, "Ana", loaded.ClientName)
	require.NotNil(t, loaded.Active)
	assert.Equal(t, "Yoga", loaded.Active.ClassType)
}

func TestRedisSessionStoreExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewRedisSessionStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()

	session := &models.Session{Phone: testPhone, LastActive: testNow()}
	require.NoError(t, store.SaveSession(ctx, session, time.Minute))

	mr.FastForward(2 * time.Minute)

	_, err := store.LoadSession(ctx, testPhone)
	assert.Error(t, err)
}

func TestRedisSessionStoreDelete(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewRedisSessionStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()

	require.NoError(t, store.SaveSession(ctx, &models.Session{Phone: testPhone}, time.Hour))
	require.NoError(t, store.DeleteSession(ctx, testPhone))

	_, err := store.LoadSession(ctx, testPhone)
	assert.Error(t, err)
}

func TestSessionSnapshotCodecAndExpiry(t *testing.T) {
	session := &models.Session{
		Phone:      testPhone,
		ClientName: "Ana",
		Active:     &models.Intent{ID: "IN1", Kind: models.IntentKindBook, ClassType: "Yoga"},
	}

	data, err := encodeSession(session)
	require.NoError(t, err)

	decoded, err := decodeSession(data)
	require.NoError(t, err)
	assert.Equal(t, "Ana", decoded.ClientName)
	require.NotNil(t, decoded.Active)
	assert.Equal(t, "Yoga", decoded.Active.ClassType)

	snap := &models.SessionSnapshot{
		Phone:     testPhone,
		Context:   string(data),
		ExpiresAt: testNow().Add(time.Hour),
	}
	assert.False(t, snapshotExpired(snap, testNow()))
	assert.True(t, snapshotExpired(snap, testNow().Add(2*time.Hour)))
}
