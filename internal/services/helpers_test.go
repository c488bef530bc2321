package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"shakti-alert-backend/internal/models"
	"shakti-alert-backend/internal/repository"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var errStoreDown = errors.New("store down")

// flakyStore wraps a MemoryStore and fails reads or writes on demand.
// failKey, when set, fails only the writes that touch that key.
type flakyStore struct {
	*repository.MemoryStore
	failGet atomic.Bool
	failSet atomic.Bool
	failKey atomic.Pointer[string]
}

func (s *flakyStore) failWritesTo(key string) {
	s.failKey.Store(&key)
}

func (s *flakyStore) heal() {
	s.failKey.Store(nil)
	s.failSet.Store(false)
}

func (s *flakyStore) writeFails(key string) bool {
	if s.failSet.Load() {
		return true
	}
	k := s.failKey.Load()
	return k != nil && *k == key
}

func newFlakyStore() *flakyStore {
	return &flakyStore{MemoryStore: repository.NewMemoryStore()}
}

func (s *flakyStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s.failGet.Load() {
		return nil, errStoreDown
	}
	return s.MemoryStore.Get(ctx, key)
}

func (s *flakyStore) Set(ctx context.Context, key string, value []byte) error {
	if s.writeFails(key) {
		return errStoreDown
	}
	return s.MemoryStore.Set(ctx, key, value)
}

func (s *flakyStore) SetMany(ctx context.Context, entries map[string][]byte) error {
	for key := range entries {
		if s.writeFails(key) {
			return errStoreDown
		}
	}
	return s.MemoryStore.SetMany(ctx, entries)
}

func (s *flakyStore) Delete(ctx context.Context, key string) error {
	if s.writeFails(key) {
		return errStoreDown
	}
	return s.MemoryStore.Delete(ctx, key)
}

type testEnv struct {
	store    *flakyStore
	identity *IdentityService
	alerts   *AlertService
}

var testAddress = "Demo Location, Chandigarh"

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := newFlakyStore()
	identity := NewIdentityService(
		repository.NewUserRepository(store),
		repository.NewSessionRepository(store),
		repository.NewDeviceTokenRepository(store),
	)
	identity.hashCost = bcrypt.MinCost

	alerts := NewAlertService(
		repository.NewAlertRepository(store),
		repository.NewResponseRepository(store),
		identity,
		FixedLocator{Location: models.Location{Latitude: 30.7333, Longitude: 76.7794, Address: &testAddress}},
	)
	t.Cleanup(alerts.Close)

	return &testEnv{store: store, identity: identity, alerts: alerts}
}

func pilgrimRegistration(name, phone string) models.RegistrationData {
	return models.RegistrationData{
		Name:     name,
		Phone:    phone,
		Email:    name + "@example.com",
		Password: "secret123",
		Role:     models.RolePilgrim,
		EmergencyContact: &models.EmergencyContact{
			Name:         "Contact",
			Phone:        "9000000099",
			Relationship: "Brother",
		},
		PilgrimInfo: &models.PilgrimInfo{GroupSize: 2},
	}
}

func volunteerRegistration(name, phone string) models.RegistrationData {
	return models.RegistrationData{
		Name:     name,
		Phone:    phone,
		Email:    name + "@example.com",
		Password: "secret123",
		Role:     models.RoleVolunteer,
		VolunteerInfo: &models.VolunteerInfo{
			Skills:       []string{"First Aid"},
			Availability: "Evenings",
		},
	}
}

// fixedClock returns a now func that can be moved by the test
func fixedClock(start time.Time) (func() time.Time, func(time.Time)) {
	var current atomic.Value
	current.Store(start)
	return func() time.Time { return current.Load().(time.Time) },
		func(t time.Time) { current.Store(t) }
}

func storedBytes(t *testing.T, store repository.Store, key string) []byte {
	t.Helper()
	data, err := store.Get(context.Background(), key)
	if errors.Is(err, repository.ErrKeyNotFound) {
		return nil
	}
	require.NoError(t, err)
	return data
}
