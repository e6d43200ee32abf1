// Package users implements account registration, sign-in, profiles and
// the friend graph.
package users

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"qalam-backend/internal/auth"
	"qalam-backend/internal/domain"
	"qalam-backend/internal/events"
	"qalam-backend/internal/repository"
	"qalam-backend/internal/service"
	appErrors "qalam-backend/pkg/errors"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 30
	maxUsernameTries  = 50
)

var unsafeUsernameChars = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// RegisterRequest is a validated signup.
type RegisterRequest struct {
	Username  string `json:"username" validate:"required,min=3,max=30,username"`
	Email     string `json:"email" validate:"required,email,max=254"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	FullName  string `json:"fullName" validate:"required,max=100"`
	AvatarURL string `json:"avatarUrl" validate:"omitempty,max=2048"`
}

// Profile is a user with summaries of the accounts they follow.
type Profile struct {
	User    *domain.User
	Friends []domain.UserSummary
}

// Deleter starts the cascade that removes a user and everything they own.
type Deleter interface {
	DeleteUser(ctx context.Context, userID string) (*domain.CascadeJob, error)
}

// AvatarSigner turns a stored avatar reference into a displayable URL.
type AvatarSigner interface {
	AvatarURL(ctx context.Context, avatar string) (string, error)
}

// Service coordinates user operations over the store.
type Service struct {
	repo      repository.UserRepository
	hasher    *auth.PasswordHasher
	validator *service.Validator
	avatars   AvatarSigner
	deleter   Deleter
	publisher events.Publisher
	logger    *zap.Logger
}

// NewService creates a user service.
func NewService(
	repo repository.UserRepository,
	hasher *auth.PasswordHasher,
	avatars AvatarSigner,
	deleter Deleter,
	publisher events.Publisher,
	logger *zap.Logger,
) *Service {
	return &Service{
		repo:      repo,
		hasher:    hasher,
		validator: service.NewValidator(),
		avatars:   avatars,
		deleter:   deleter,
		publisher: publisher,
		logger:    logger,
	}
}

// Register creates an account after checking that neither the username nor
// the email is taken.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*domain.User, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.FullName = strings.TrimSpace(req.FullName)
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetUserByUsername(ctx, req.Username)
	if err != nil {
		return nil, service.Translate(err, "failed to check username")
	}
	if existing != nil {
		return nil, appErrors.NewConflict("username already exists")
	}
	existing, err = s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, service.Translate(err, "failed to check email")
	}
	if existing != nil {
		return nil, appErrors.NewConflict("email already exists")
	}

	hash, err := s.hasher.Hash(req.Password)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		return nil, appErrors.NewValidation(fmt.Sprintf("password: must be at most %d bytes", auth.MaxPasswordBytes))
	}
	if err != nil {
		return nil, appErrors.NewInternal("failed to hash password", err)
	}

	user := &domain.User{
		Username:     req.Username,
		Email:        req.Email,
		FullName:     req.FullName,
		PasswordHash: hash,
		AvatarURL:    req.AvatarURL,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, service.Translate(err, "failed to create user")
	}

	s.logger.Info("User registered",
		zap.String("userID", user.ID),
		zap.String("username", user.Username))
	s.publish(ctx, events.New(events.UserRegistered, user.ID, user.ID, map[string]any{
		"username": user.Username,
		"provider": "password",
	}))
	return user, nil
}

// Authenticate checks a password against the account found by username, or
// by email when no username matches.
func (s *Service) Authenticate(ctx context.Context, identifier, password string) (*domain.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, appErrors.NewUnauthorized("invalid credentials")
	}

	user, err := s.repo.GetUserByUsername(ctx, identifier)
	if err != nil {
		return nil, service.Translate(err, "failed to look up user")
	}
	if user == nil {
		user, err = s.repo.GetUserByEmail(ctx, strings.ToLower(identifier))
		if err != nil {
			return nil, service.Translate(err, "failed to look up user")
		}
	}
	if user == nil {
		return nil, appErrors.NewUnauthorized("invalid credentials")
	}

	if err := s.hasher.Verify(user.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Warn("Password verification failed",
				zap.String("userID", user.ID),
				zap.Error(err))
		}
		return nil, appErrors.NewUnauthorized("invalid credentials")
	}
	return user, nil
}

// GetByID returns the user or NOT_FOUND.
func (s *Service) GetByID(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return nil, service.Translate(err, "failed to get user")
	}
	if user == nil {
		return nil, appErrors.NewNotFound("user not found")
	}
	return user, nil
}

// GetByUsername returns the user or NOT_FOUND.
func (s *Service) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, service.Translate(err, "failed to get user")
	}
	if user == nil {
		return nil, appErrors.NewNotFound("user not found")
	}
	return user, nil
}

// GetProfile returns the public profile of username.
func (s *Service) GetProfile(ctx context.Context, username string) (*Profile, error) {
	user, err := s.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	friends, err := s.summaries(ctx, user.Friends)
	if err != nil {
		return nil, err
	}
	return &Profile{User: user, Friends: friends}, nil
}

// ListUsers returns summaries of every user except excludeID.
func (s *Service) ListUsers(ctx context.Context, excludeID string) ([]domain.UserSummary, error) {
	all, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, service.Translate(err, "failed to list users")
	}
	out := make([]domain.UserSummary, 0, len(all))
	for _, u := range all {
		if u.ID == excludeID {
			continue
		}
		out = append(out, u.Summary())
	}
	return out, nil
}

// UpdateAvatar stores a new avatar reference, either an absolute URL or an
// object key, and returns the updated user.
func (s *Service) UpdateAvatar(ctx context.Context, userID, avatarURL string) (*domain.User, error) {
	avatarURL = strings.TrimSpace(avatarURL)
	if avatarURL == "" {
		return nil, appErrors.NewValidation("avatarUrl: is required")
	}
	if len(avatarURL) > 2048 {
		return nil, appErrors.NewValidation("avatarUrl: must be at most 2048 characters")
	}
	if err := s.repo.UpdateUserAvatar(ctx, userID, avatarURL); err != nil {
		return nil, service.Translate(err, "failed to update avatar")
	}
	return s.GetByID(ctx, userID)
}

// AvatarURL returns a URL the client can load the user's avatar from. It
// is empty when the user has none.
func (s *Service) AvatarURL(ctx context.Context, userID string) (string, error) {
	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	url, err := s.avatars.AvatarURL(ctx, user.AvatarURL)
	if err != nil {
		return "", appErrors.Wrap(err, "failed to sign avatar url")
	}
	return url, nil
}

// FindOrCreateOAuthUser resolves an OAuth sign-in to an account. It matches
// the provider link first and then the email, linking the provider on an
// email match. Otherwise it creates an account with a unique username and
// an unusable random password.
func (s *Service) FindOrCreateOAuthUser(ctx context.Context, profile *auth.OAuthProfile) (*domain.User, error) {
	if profile == nil || profile.ProviderID == "" {
		return nil, appErrors.NewValidation("oauth profile has no account id")
	}

	user, err := s.repo.GetUserByProviderID(ctx, profile.Provider, profile.ProviderID)
	if err != nil {
		return nil, service.Translate(err, "failed to look up linked account")
	}
	if user != nil {
		return user, nil
	}

	email := strings.ToLower(strings.TrimSpace(profile.Email))
	if email == "" {
		return nil, appErrors.NewValidation("oauth profile has no email address")
	}
	user, err = s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, service.Translate(err, "failed to look up user by email")
	}
	if user != nil {
		if err := s.linkProvider(ctx, user.ID, profile.Provider, profile.ProviderID); err != nil {
			return nil, err
		}
		if user.AvatarURL == "" && profile.AvatarURL != "" {
			if err := s.repo.UpdateUserAvatar(ctx, user.ID, profile.AvatarURL); err != nil {
				s.logger.Warn("Failed to copy provider avatar",
					zap.String("userID", user.ID),
					zap.Error(err))
			}
		}
		s.logger.Info("Linked OAuth provider to existing account",
			zap.String("userID", user.ID),
			zap.String("provider", profile.Provider))
		return s.GetByID(ctx, user.ID)
	}

	username, err := s.uniqueUsername(ctx, profile.Username)
	if err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, appErrors.NewInternal("failed to hash password", err)
	}
	fullName := strings.TrimSpace(profile.FullName)
	if fullName == "" {
		fullName = username
	}
	user = &domain.User{
		Username:     username,
		Email:        email,
		FullName:     fullName,
		PasswordHash: hash,
		AvatarURL:    profile.AvatarURL,
	}
	switch profile.Provider {
	case repository.ProviderGitHub:
		user.GitHubID = profile.ProviderID
	case repository.ProviderGoogle:
		user.GoogleID = profile.ProviderID
	default:
		return nil, appErrors.NewValidation(fmt.Sprintf("unknown provider %q", profile.Provider))
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, service.Translate(err, "failed to create user")
	}

	s.logger.Info("User registered through OAuth",
		zap.String("userID", user.ID),
		zap.String("provider", profile.Provider))
	s.publish(ctx, events.New(events.UserRegistered, user.ID, user.ID, map[string]any{
		"username": user.Username,
		"provider": profile.Provider,
	}))
	return user, nil
}

func (s *Service) linkProvider(ctx context.Context, userID, provider, providerID string) error {
	var err error
	switch provider {
	case repository.ProviderGitHub:
		err = s.repo.LinkGitHubID(ctx, userID, providerID)
	case repository.ProviderGoogle:
		err = s.repo.LinkGoogleID(ctx, userID, providerID)
	default:
		return appErrors.NewValidation(fmt.Sprintf("unknown provider %q", provider))
	}
	return service.Translate(err, "failed to link provider")
}

// uniqueUsername derives a free username from a provider login by dropping
// disallowed characters and appending a number when it is taken.
func (s *Service) uniqueUsername(ctx context.Context, candidate string) (string, error) {
	base := unsafeUsernameChars.ReplaceAllString(candidate, "")
	if len(base) < minUsernameLength {
		base = "user" + base
	}
	if len(base) > maxUsernameLength {
		base = base[:maxUsernameLength]
	}

	name := base
	for i := 1; i <= maxUsernameTries; i++ {
		existing, err := s.repo.GetUserByUsername(ctx, name)
		if err != nil {
			return "", service.Translate(err, "failed to check username")
		}
		if existing == nil {
			return name, nil
		}
		suffix := strconv.Itoa(i)
		name = base[:min(len(base), maxUsernameLength-len(suffix))] + suffix
	}
	return "", appErrors.NewConflict("could not find a free username")
}

// AddFriend makes userID follow friendID. It reports whether the friend
// list changed.
func (s *Service) AddFriend(ctx context.Context, userID, friendID string) (bool, error) {
	if friendID == "" {
		return false, appErrors.NewValidation("friendId: is required")
	}
	if userID == friendID {
		return false, appErrors.NewValidation("cannot add yourself as a friend")
	}
	if _, err := s.GetByID(ctx, friendID); err != nil {
		return false, err
	}

	changed, err := s.repo.AddFriend(ctx, userID, friendID)
	if err != nil {
		return false, service.Translate(err, "failed to add friend")
	}
	if changed {
		s.publish(ctx, events.New(events.FriendAdded, userID, userID, map[string]any{"friendId": friendID}))
	}
	return changed, nil
}

// RemoveFriend stops userID following friendID. It reports whether the
// friend list changed.
func (s *Service) RemoveFriend(ctx context.Context, userID, friendID string) (bool, error) {
	if friendID == "" {
		return false, appErrors.NewValidation("friendId: is required")
	}
	changed, err := s.repo.RemoveFriend(ctx, userID, friendID)
	if err != nil {
		return false, service.Translate(err, "failed to remove friend")
	}
	if changed {
		s.publish(ctx, events.New(events.FriendRemoved, userID, userID, map[string]any{"friendId": friendID}))
	}
	return changed, nil
}

// ListFriends returns summaries of the accounts userID follows.
func (s *Service) ListFriends(ctx context.Context, userID string) ([]domain.UserSummary, error) {
	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.summaries(ctx, user.Friends)
}

// ListFriendsByUsername returns summaries of the accounts username follows.
func (s *Service) ListFriendsByUsername(ctx context.Context, username string) ([]domain.UserSummary, error) {
	user, err := s.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.summaries(ctx, user.Friends)
}

// IsFriend reports whether userID follows friendID.
func (s *Service) IsFriend(ctx context.Context, userID, friendID string) (bool, error) {
	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return user.HasFriend(friendID), nil
}

// DeleteUser starts the deletion cascade for userID. The returned job is
// COMPLETED when everything was removed in this call and PENDING when the
// background processor has to finish it.
func (s *Service) DeleteUser(ctx context.Context, userID string) (*domain.CascadeJob, error) {
	if _, err := s.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	job, err := s.deleter.DeleteUser(ctx, userID)
	if err != nil {
		return nil, service.Translate(err, "failed to delete user")
	}

	s.logger.Info("User deletion accepted",
		zap.String("userID", userID),
		zap.String("jobID", job.ID),
		zap.String("status", string(job.Status)))
	s.publish(ctx, events.New(events.UserDeleted, userID, userID, map[string]any{
		"jobId":  job.ID,
		"status": string(job.Status),
	}))
	return job, nil
}

// summaries resolves ids to user summaries, skipping users that no longer
// exist.
func (s *Service) summaries(ctx context.Context, ids []string) ([]domain.UserSummary, error) {
	out := make([]domain.UserSummary, 0, len(ids))
	for _, id := range ids {
		u, err := s.repo.GetUserByID(ctx, id)
		if err != nil {
			return nil, service.Translate(err, "failed to load friend")
		}
		if u == nil {
			s.logger.Debug("Skipping missing friend", zap.String("friendID", id))
			continue
		}
		out = append(out, u.Summary())
	}
	return out, nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish event",
			zap.String("eventType", string(event.Type)),
			zap.String("aggregateID", event.AggregateID),
			zap.Error(err))
	}
}
