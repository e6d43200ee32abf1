package memory

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"qalam-backend/internal/domain"
	"qalam-backend/internal/repository"
	appErrors "qalam-backend/pkg/errors"
)

// CreateUser stores a new user and assigns its ID.
func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	if err := s.checkError("CreateUser"); err != nil {
		return err
	}
	if err := ctxErr(ctx); err != nil {
		return err
	}

	now := s.now()
	u.ID = domain.NewID(now)
	u.CreatedAt = now
	u.UpdatedAt = now
	u.Version = 1
	if u.Friends == nil {
		u.Friends = []string{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// The random suffix of an ID can repeat within one millisecond; the
	// local store simply draws again.
	for _, exists := s.users[u.ID]; exists; _, exists = s.users[u.ID] {
		u.ID = domain.NewID(now)
	}
	s.users[u.ID] = cloneUser(u)
	return nil
}

// GetUserByID returns a copy of the user, or nil if it does not exist.
func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	if err := s.checkError("GetUserByID"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[id]; ok {
		return cloneUser(u), nil
	}
	return nil, nil
}

func (s *Store) findUser(method string, match func(*domain.User) bool) (*domain.User, error) {
	if err := s.checkError(method); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if match(u) {
			return cloneUser(u), nil
		}
	}
	return nil, nil
}

// GetUserByUsername finds a user by exact username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.findUser("GetUserByUsername", func(u *domain.User) bool { return u.Username == username })
}

// GetUserByEmail finds a user by exact email. An empty email matches nobody.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	if email == "" {
		return nil, nil
	}
	return s.findUser("GetUserByEmail", func(u *domain.User) bool { return u.Email == email })
}

// GetUserByProviderID finds the user linked to an OAuth account.
func (s *Store) GetUserByProviderID(ctx context.Context, provider, providerID string) (*domain.User, error) {
	switch provider {
	case repository.ProviderGitHub:
		return s.findUser("GetUserByProviderID", func(u *domain.User) bool { return u.GitHubID == providerID })
	case repository.ProviderGoogle:
		return s.findUser("GetUserByProviderID", func(u *domain.User) bool { return u.GoogleID == providerID })
	}
	return nil, appErrors.NewValidation(fmt.Sprintf("unknown provider %q", provider))
}

// ListUsers returns every user.
func (s *Store) ListUsers(ctx context.Context) ([]*domain.User, error) {
	if err := s.checkError("ListUsers"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]*domain.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, cloneUser(u))
	}
	return users, nil
}

func (s *Store) setUser(method, id string, fn func(*domain.User)) error {
	if err := s.checkError(method); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return repository.NewNotFound("user", id)
	}
	fn(u)
	u.UpdatedAt = s.now()
	return nil
}

// UpdateUserAvatar sets the avatar key or URL.
func (s *Store) UpdateUserAvatar(ctx context.Context, id, avatarURL string) error {
	return s.setUser("UpdateUserAvatar", id, func(u *domain.User) { u.AvatarURL = avatarURL })
}

// LinkGitHubID records the GitHub account id on the user.
func (s *Store) LinkGitHubID(ctx context.Context, id, githubID string) error {
	return s.setUser("LinkGitHubID", id, func(u *domain.User) { u.GitHubID = githubID })
}

// LinkGoogleID records the Google account id on the user.
func (s *Store) LinkGoogleID(ctx context.Context, id, googleID string) error {
	return s.setUser("LinkGoogleID", id, func(u *domain.User) { u.GoogleID = googleID })
}

// IncrementUserCounter adds delta to the counter.
func (s *Store) IncrementUserCounter(ctx context.Context, id string, c domain.Counter, delta int) error {
	if !c.Valid() {
		return appErrors.NewValidation(fmt.Sprintf("unknown counter %q", c))
	}
	return s.setUser("IncrementUserCounter", id, func(u *domain.User) {
		u.SetCounter(c, u.Counter(c)+delta)
	})
}

// DecrementUserCounter subtracts delta unless the counter would drop below zero.
func (s *Store) DecrementUserCounter(ctx context.Context, id string, c domain.Counter, delta int) error {
	if !c.Valid() {
		return appErrors.NewValidation(fmt.Sprintf("unknown counter %q", c))
	}
	skipped := false
	err := s.setUser("DecrementUserCounter", id, func(u *domain.User) {
		if u.Counter(c) < delta {
			skipped = true
			return
		}
		u.SetCounter(c, u.Counter(c)-delta)
	})
	if skipped && err == nil {
		s.logger.Warn("counter decrement skipped, value would go below zero",
			zap.String("userID", id),
			zap.String("counter", string(c)),
			zap.Int("delta", delta))
	}
	return err
}

// AddFriend adds friendID to the user's friends. It reports whether the list changed.
func (s *Store) AddFriend(ctx context.Context, userID, friendID string) (bool, error) {
	return s.mutateFriends(ctx, "AddFriend", userID, func(u *domain.User) bool { return u.AddFriend(friendID) })
}

// RemoveFriend removes friendID from the user's friends. It reports whether the list changed.
func (s *Store) RemoveFriend(ctx context.Context, userID, friendID string) (bool, error) {
	return s.mutateFriends(ctx, "RemoveFriend", userID, func(u *domain.User) bool { return u.RemoveFriend(friendID) })
}

func (s *Store) mutateFriends(ctx context.Context, method, userID string, fn func(*domain.User) bool) (bool, error) {
	if err := s.checkError(method); err != nil {
		return false, err
	}
	var changed bool
	err := repository.RetryOnConflict(ctx, s.retry, func() error {
		u, err := s.GetUserByID(ctx, userID)
		if err != nil {
			return err
		}
		if u == nil {
			return repository.NewNotFound("user", userID)
		}
		changed = fn(u)
		if !changed {
			return nil
		}
		return s.swapUser(u)
	})
	return changed, err
}

// swapUser stores u if the stored version still equals u.Version.
func (s *Store) swapUser(u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.users[u.ID]
	if !ok || current.Version != u.Version {
		return repository.NewConflict("user", u.ID, fmt.Sprintf("version %d is stale", u.Version))
	}
	u.Version++
	u.UpdatedAt = s.now()
	s.users[u.ID] = cloneUser(u)
	return nil
}

// DeleteUser removes the user.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	if err := s.checkError("DeleteUser"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return repository.NewNotFound("user", id)
	}
	delete(s.users, id)
	return nil
}
