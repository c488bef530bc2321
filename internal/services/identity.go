package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"shakti-alert-backend/internal/models"
	"shakti-alert-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// IdentityService handles registration, login and the current session
type IdentityService struct {
	userRepo    *repository.UserRepository
	sessionRepo *repository.SessionRepository
	deviceRepo  *repository.DeviceTokenRepository
	session     *Session

	now      func() time.Time
	hashCost int
}

// NewIdentityService creates a new identity service
func NewIdentityService(
	userRepo *repository.UserRepository,
	sessionRepo *repository.SessionRepository,
	deviceRepo *repository.DeviceTokenRepository,
) *IdentityService {
	return &IdentityService{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		deviceRepo:  deviceRepo,
		session:     NewSession(),
		now:         time.Now,
		hashCost:    bcrypt.DefaultCost,
	}
}

// newID builds a collision-resistant id from a millisecond time prefix and a random suffix
func newID(prefix string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%s_%d_%s", prefix, now.UnixMilli(), suffix)
}

// Register creates a user and its credential, then starts a session for it.
// Field completeness is the caller's job; only phone uniqueness is enforced here.
func (s *IdentityService) Register(ctx context.Context, data models.RegistrationData) (*models.User, error) {
	if len(data.Password) > maxPasswordBytes {
		return nil, ErrPasswordTooLong
	}

	_, err := s.userRepo.GetByPhone(ctx, data.Phone)
	if err == nil {
		return nil, ErrDuplicatePhone
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, storageErr("check existing user", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(data.Password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now().UTC()
	user := models.User{
		ID:               newID("user", now),
		Name:             data.Name,
		Phone:            data.Phone,
		Email:            data.Email,
		Role:             data.Role,
		EmergencyContact: data.EmergencyContact,
		PilgrimInfo:      data.PilgrimInfo,
		VolunteerInfo:    data.VolunteerInfo,
		RegisteredAt:     now,
		LastLogin:        now,
	}
	user = user.Clone()

	cred := models.Credential{Phone: user.Phone, Secret: string(hash)}
	if err := s.userRepo.CreateWithCredential(ctx, &user, cred); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrDuplicatePhone
		}
		return nil, storageErr("create user", err)
	}

	if err := s.startSession(ctx, user); err != nil {
		return nil, err
	}

	log.Info().
		Str("user_id", user.ID).
		Str("role", string(user.Role)).
		Msg("User registered")

	return &user, nil
}

// Login checks phone and secret, records the login time and starts a session
func (s *IdentityService) Login(ctx context.Context, phone, secret string) (*models.User, error) {
	user, err := s.userRepo.GetByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnknownPhone
		}
		return nil, storageErr("find user", err)
	}

	cred, err := s.userRepo.GetCredential(ctx, phone)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrBadCredential
		}
		return nil, storageErr("get credential", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(cred.Secret), []byte(secret)) != nil {
		return nil, ErrBadCredential
	}

	user.LastLogin = s.now().UTC()
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, storageErr("update last login", err)
	}

	if err := s.startSession(ctx, *user); err != nil {
		return nil, err
	}

	log.Info().Str("user_id", user.ID).Msg("User logged in")

	return user, nil
}

func (s *IdentityService) startSession(ctx context.Context, user models.User) error {
	if err := s.sessionRepo.Set(ctx, &user); err != nil {
		return storageErr("set session", err)
	}
	s.session.Set(user)
	return nil
}

// Logout ends the current session. It never fails; a persistence error is only logged.
func (s *IdentityService) Logout(ctx context.Context) {
	s.session.Clear()
	if err := s.sessionRepo.Clear(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to clear persisted session")
	}
}

// CurrentUser returns a copy of the session user, or nil when not authenticated
func (s *IdentityService) CurrentUser() *models.User {
	return s.session.CurrentUser()
}

// IsAuthenticated reports whether a session is active
func (s *IdentityService) IsAuthenticated() bool {
	return s.CurrentUser() != nil
}

// RestoreSession reloads the persisted session pointer, e.g. after a restart
func (s *IdentityService) RestoreSession(ctx context.Context) error {
	user, err := s.sessionRepo.Get(ctx)
	if err != nil {
		return storageErr("restore session", err)
	}
	if user == nil {
		s.session.Clear()
		return nil
	}
	s.session.Set(*user)
	return nil
}

// AllUsers returns every registered user; a read failure yields an empty list
func (s *IdentityService) AllUsers(ctx context.Context) []models.User {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list users")
		return []models.User{}
	}
	return users
}

// UserByID retrieves a user by ID
func (s *IdentityService) UserByID(ctx context.Context, id string) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnknownUser
		}
		return nil, storageErr("find user", err)
	}
	return user, nil
}

// RegisterDeviceToken stores the push token of a user's device
func (s *IdentityService) RegisterDeviceToken(ctx context.Context, userID, token string) error {
	if _, err := s.UserByID(ctx, userID); err != nil {
		return err
	}
	err := s.deviceRepo.Upsert(ctx, models.DeviceToken{
		UserID:    userID,
		Token:     token,
		UpdatedAt: s.now().UTC(),
	})
	if err != nil {
		return storageErr("store device token", err)
	}
	return nil
}

// DeviceTokensForRole returns the push tokens of every user with role.
// Read failures yield an empty list.
func (s *IdentityService) DeviceTokensForRole(ctx context.Context, role models.Role) []string {
	tokens, err := s.deviceRepo.List(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list device tokens")
		return nil
	}

	roles := make(map[string]models.Role)
	for _, u := range s.AllUsers(ctx) {
		roles[u.ID] = u.Role
	}

	var result []string
	for _, t := range tokens {
		if roles[t.UserID] == role {
			result = append(result, t.Token)
		}
	}
	return result
}

const samplePassword = "demo123"

// maxPasswordBytes is the longest input bcrypt accepts
const maxPasswordBytes = 72

// SeedSampleUsers creates a demo pilgrim and volunteer when no user exists yet
func (s *IdentityService) SeedSampleUsers(ctx context.Context) (bool, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(samplePassword), s.hashCost)
	if err != nil {
		return false, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now().UTC()
	users := []models.User{
		{
			ID:    "pilgrim_demo_1",
			Name:  "Rahul Kumar",
			Phone: "9876543210",
			Email: "rahul@example.com",
			Role:  models.RolePilgrim,
			EmergencyContact: &models.EmergencyContact{
				Name:         "Priya Kumar",
				Phone:        "9876543211",
				Relationship: "Wife",
			},
			PilgrimInfo: &models.PilgrimInfo{
				GroupSize:    4,
				SpecialNeeds: "Elderly member in group",
			},
			RegisteredAt: now,
			LastLogin:    now,
		},
		{
			ID:    "volunteer_demo_1",
			Name:  "Dr. Anita Sharma",
			Phone: "9876543220",
			Email: "anita@example.com",
			Role:  models.RoleVolunteer,
			EmergencyContact: &models.EmergencyContact{
				Name:         "Vikash Sharma",
				Phone:        "9876543221",
				Relationship: "Husband",
			},
			VolunteerInfo: &models.VolunteerInfo{
				Skills:       []string{"First Aid", "Medical Emergency", "Crowd Management"},
				Availability: "Full Time",
				Experience:   "5 years medical volunteering",
			},
			RegisteredAt: now,
			LastLogin:    now,
		},
	}

	creds := make([]models.Credential, 0, len(users))
	for _, u := range users {
		creds = append(creds, models.Credential{Phone: u.Phone, Secret: string(hash)})
	}

	seeded, err := s.userRepo.SeedIfEmpty(ctx, users, creds)
	if err != nil {
		return false, storageErr("seed sample users", err)
	}
	if seeded {
		log.Info().Int("count", len(users)).Msg("Sample users created")
	}
	return seeded, nil
}
