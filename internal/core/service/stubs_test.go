package service

import (
	"context"
	"sync"
	"time"

	"github.com/sessionguard/authgate/internal/core/domain"
	"github.com/sessionguard/authgate/internal/core/ports"
)

// ---------------------------------------------------------------------------
// In-memory stub repositories
// ---------------------------------------------------------------------------

type stubUserRepo struct {
	mu          sync.Mutex
	users       map[string]*domain.User // keyed by id
	findErr     error                   // returned by every lookup when set
	updateErr   error                   // returned by UpdateLastLogin when set
	lastLogins  map[string]int          // UpdateLastLogin calls per id
	passwordSet map[string]string
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{
		users:       make(map[string]*domain.User),
		lastLogins:  make(map[string]int),
		passwordSet: make(map[string]string),
	}
}

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	clone := *u
	return &clone
}

func (r *stubUserRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	for _, u := range r.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *stubUserRepo) FindByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (r *stubUserRepo) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return nil, domain.ErrUserExists
		}
	}
	r.users[user.ID] = cloneUser(user)
	return cloneUser(user), nil
}

func (r *stubUserRepo) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	u, ok := r.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.LastLoginAt = &at
	r.lastLogins[id]++
	return nil
}

func (r *stubUserRepo) SetPasswordHash(_ context.Context, id, hash string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.PasswordHash = hash
	r.passwordSet[id] = hash
	return nil
}

func (r *stubUserRepo) SetOnboardingComplete(_ context.Context, id string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.OnboardingComplete = true
	return nil
}

func (r *stubUserRepo) loginCount(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastLogins[id]
}

// stubLinkRepo mirrors the conditional update the real stores perform.
type stubLinkRepo struct {
	mu    sync.Mutex
	links map[string]*domain.MagicLink
}

func newStubLinkRepo() *stubLinkRepo {
	return &stubLinkRepo{links: make(map[string]*domain.MagicLink)}
}

func (r *stubLinkRepo) Insert(_ context.Context, link *domain.MagicLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *link
	r.links[link.TokenHash] = &clone
	return nil
}

func (r *stubLinkRepo) Consume(_ context.Context, hash string, now time.Time) (*domain.MagicLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	link, ok := r.links[hash]
	if !ok || link.Expired(now) {
		return nil, domain.ErrInvalidToken
	}
	if link.ConsumedAt != nil {
		return nil, domain.ErrAlreadyConsumed
	}
	link.ConsumedAt = &now
	clone := *link
	return &clone, nil
}

type captureSender struct {
	mu   sync.Mutex
	sent []ports.MagicLinkDelivery
	err  error
}

func (s *captureSender) Send(_ context.Context, d ports.MagicLinkDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, d)
	return nil
}

func (s *captureSender) last() (ports.MagicLinkDelivery, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return ports.MagicLinkDelivery{}, false
	}
	return s.sent[len(s.sent)-1], true
}
