package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/focusshift/shiftd/internal/domain"
)

// fakeClock implements domain.Clock with settable time
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

// mockStore implements domain.PreferenceStore in memory
type mockStore struct {
	session  *domain.FocusSession
	saveErr  error
	loadErr  error
	clearErr error
	clears   int
}

func (m *mockStore) BlockedApps() ([]string, error)        { return nil, nil }
func (m *mockStore) SetBlockedApps([]string) error         { return nil }
func (m *mockStore) BlockedDomains() ([]string, error)     { return nil, nil }
func (m *mockStore) SetBlockedDomains([]string) error      { return nil }
func (m *mockStore) SaveSchedules([]domain.Schedule) error { return nil }
func (m *mockStore) LoadSchedules() ([]domain.Schedule, error) {
	return nil, nil
}
func (m *mockStore) ClearAll() error { return nil }
func (m *mockStore) Close() error    { return nil }

func (m *mockStore) SaveFocusSession(s domain.FocusSession) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.session = &s
	return nil
}

func (m *mockStore) LoadFocusSession() (*domain.FocusSession, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.session, nil
}

func (m *mockStore) ClearFocusSession() error {
	m.clears++
	if m.clearErr != nil {
		return m.clearErr
	}
	m.session = nil
	return nil
}

func newTestGuard(store *mockStore, clock *fakeClock) *Guard {
	return NewGuard(store, clock, zap.NewNop())
}

// TestStart_ZeroDuration verifies no session is recorded without a duration
func TestStart_ZeroDuration(t *testing.T) {
	store := &mockStore{}
	guard := newTestGuard(store, &fakeClock{now: time.Now()})

	session, err := guard.Start(0)

	require.NoError(t, err)
	assert.Nil(t, session)
	assert.Nil(t, store.session)
}

// TestStart_RecordsSession verifies endsAt = now + duration
func TestStart_RecordsSession(t *testing.T) {
	now := time.Date(2025, 6, 2, 21, 0, 0, 0, time.UTC)
	store := &mockStore{}
	guard := newTestGuard(store, &fakeClock{now: now})

	session, err := guard.Start(10 * time.Minute)

	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, now, session.StartedAt)
	assert.Equal(t, now.Add(10*time.Minute), session.EndsAt)
	require.NotNil(t, store.session)
	assert.Equal(t, session.EndsAt, store.session.EndsAt)
}

// TestStart_PersistFailure verifies the error is surfaced
func TestStart_PersistFailure(t *testing.T) {
	store := &mockStore{saveErr: errors.New("disk full")}
	guard := newTestGuard(store, &fakeClock{now: time.Now()})

	_, err := guard.Start(time.Minute)

	assert.Error(t, err)
}

// TestCurrent_ActiveSession verifies an unexpired session is returned
func TestCurrent_ActiveSession(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 2, 21, 0, 0, 0, time.UTC)}
	store := &mockStore{}
	guard := newTestGuard(store, clock)

	_, err := guard.Start(10 * time.Minute)
	require.NoError(t, err)

	session, err := guard.Current()
	require.NoError(t, err)
	assert.NotNil(t, session)
}

// TestCurrent_LazyExpiry verifies an expired record is treated as absent and purged
func TestCurrent_LazyExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 2, 21, 0, 0, 0, time.UTC)}
	store := &mockStore{}
	guard := newTestGuard(store, clock)

	_, err := guard.Start(10 * time.Minute)
	require.NoError(t, err)

	clock.now = clock.now.Add(11 * time.Minute)

	session, err := guard.Current()
	require.NoError(t, err)
	assert.Nil(t, session)
	assert.Nil(t, store.session, "expired record should be purged")
	assert.Equal(t, 1, store.clears)
}

// TestCurrent_PurgeFailureIsNotAnError verifies best-effort purge
func TestCurrent_PurgeFailureIsNotAnError(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	store := &mockStore{
		session:  &domain.FocusSession{StartedAt: clock.now.Add(-2 * time.Hour), EndsAt: clock.now.Add(-time.Hour)},
		clearErr: errors.New("store busy"),
	}
	guard := newTestGuard(store, clock)

	session, err := guard.Current()

	require.NoError(t, err)
	assert.Nil(t, session)
}

// TestCanUnshift verifies the gate follows session presence
func TestCanUnshift(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 2, 21, 0, 0, 0, time.UTC)}
	store := &mockStore{}
	guard := newTestGuard(store, clock)

	ok, err := guard.CanUnshift()
	require.NoError(t, err)
	assert.True(t, ok, "no session recorded")

	_, err = guard.Start(600 * time.Second)
	require.NoError(t, err)

	ok, err = guard.CanUnshift()
	require.NoError(t, err)
	assert.False(t, ok, "session active")

	clock.now = clock.now.Add(601 * time.Second)

	ok, err = guard.CanUnshift()
	require.NoError(t, err)
	assert.True(t, ok, "session expired")
}

// TestClear_Unconditional verifies clear works regardless of session state
func TestClear_Unconditional(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	store := &mockStore{}
	guard := newTestGuard(store, clock)

	_, err := guard.Start(time.Hour)
	require.NoError(t, err)

	require.NoError(t, guard.Clear())

	ok, err := guard.CanUnshift()
	require.NoError(t, err)
	assert.True(t, ok)
}
