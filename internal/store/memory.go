package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jjudge-oj/accounts/types"
)

// MemoryUserRepository keeps users in process memory. Uniqueness of username
// and email is enforced under the same lock as the write, so concurrent
// inserts behave like the database constraints.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[uuid.UUID]types.User
	roles map[uuid.UUID][]string
	now   func() time.Time
}

// NewMemoryUserRepository constructs an empty in-memory repository.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		users: make(map[uuid.UUID]types.User),
		roles: make(map[uuid.UUID][]string),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryUserRepository) UsernameExists(_ context.Context, username string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.findLocked(func(u types.User) bool { return u.Username == username })
	return ok, nil
}

func (r *MemoryUserRepository) EmailExists(_ context.Context, email string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.findLocked(func(u types.User) bool { return u.Email == email })
	return ok, nil
}

func (r *MemoryUserRepository) Insert(_ context.Context, nu types.NewUser) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkUniqueLocked(uuid.Nil, &nu.Username, &nu.Email); err != nil {
		return types.User{}, err
	}

	now := r.now()
	user := types.User{
		ID:           uuid.New(),
		Username:     nu.Username,
		FirstName:    nu.FirstName,
		LastName:     nu.LastName,
		Email:        nu.Email,
		PasswordHash: nu.PasswordHash,
		TokenVersion: nu.TokenVersion,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.users[user.ID] = user
	return user, nil
}

func (r *MemoryUserRepository) FindByID(_ context.Context, id uuid.UUID) (types.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok {
		return types.User{}, ErrNotFound
	}
	return user, nil
}

func (r *MemoryUserRepository) FindByUsernameOrEmail(_ context.Context, value string) (types.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if user, ok := r.findLocked(func(u types.User) bool { return u.Username == value }); ok {
		return user, nil
	}
	if user, ok := r.findLocked(func(u types.User) bool { return u.Email == value }); ok {
		return user, nil
	}
	return types.User{}, ErrNotFound
}

func (r *MemoryUserRepository) UpdateProfile(_ context.Context, id uuid.UUID, update types.ProfileUpdate) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return types.User{}, ErrNotFound
	}
	if update.Empty() {
		return user, nil
	}
	if err := r.checkUniqueLocked(id, update.Username, update.Email); err != nil {
		return types.User{}, err
	}

	if update.Username != nil {
		user.Username = *update.Username
	}
	if update.Email != nil {
		user.Email = *update.Email
	}
	if update.FirstName != nil {
		user.FirstName = *update.FirstName
	}
	if update.LastName != nil {
		user.LastName = *update.LastName
	}
	user.UpdatedAt = r.now()
	r.users[id] = user
	return user, nil
}

func (r *MemoryUserRepository) BumpTokenVersion(_ context.Context, id uuid.UUID, version int32) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return types.User{}, ErrNotFound
	}
	now := r.now()
	user.TokenVersion = version
	user.LastLoginAt = &now
	user.UpdatedAt = now
	r.users[id] = user
	return user, nil
}

func (r *MemoryUserRepository) UpdatePassword(_ context.Context, id uuid.UUID, passwordHash string, version int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	user.PasswordHash = passwordHash
	user.TokenVersion = version
	user.UpdatedAt = r.now()
	r.users[id] = user
	return nil
}

func (r *MemoryUserRepository) ListWithRoles(_ context.Context) ([]types.UserSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]types.User, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID.String() < users[j].ID.String()
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})

	summaries := make([]types.UserSummary, 0, len(users))
	for _, u := range users {
		roles := append([]string(nil), r.roles[u.ID]...)
		if len(roles) == 0 {
			roles = []string{DefaultRole}
		}
		summaries = append(summaries, types.UserSummary{
			Username:  u.Username,
			Email:     u.Email,
			FirstName: u.FirstName,
			LastName:  u.LastName,
			Roles:     roles,
		})
	}
	return summaries, nil
}

// AssignRole attaches a role name to a user.
func (r *MemoryUserRepository) AssignRole(id uuid.UUID, role string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return ErrNotFound
	}
	for _, existing := range r.roles[id] {
		if existing == role {
			return nil
		}
	}
	r.roles[id] = append(r.roles[id], role)
	sort.Strings(r.roles[id])
	return nil
}

// Count returns the number of stored users.
func (r *MemoryUserRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

func (r *MemoryUserRepository) findLocked(match func(types.User) bool) (types.User, bool) {
	for _, u := range r.users {
		if match(u) {
			return u, true
		}
	}
	return types.User{}, false
}

// checkUniqueLocked mirrors the users_email_key and users_username_key
// constraints, ignoring the row identified by self.
func (r *MemoryUserRepository) checkUniqueLocked(self uuid.UUID, username, email *string) error {
	taken := func(match func(types.User) bool) bool {
		for id, u := range r.users {
			if id != self && match(u) {
				return true
			}
		}
		return false
	}
	if email != nil && taken(func(u types.User) bool { return u.Email == *email }) {
		return &ConflictError{Field: "email"}
	}
	if username != nil && taken(func(u types.User) bool { return u.Username == *username }) {
		return &ConflictError{Field: "username"}
	}
	return nil
}
