// Package account keeps a process-local directory of user accounts and login sessions.
// Nothing is persisted: accounts and sessions vanish when the process exits.
package account

import (
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"golang.org/x/crypto/bcrypt"
)

// PasswordLength is the exact number of characters a password must have.
const PasswordLength = 8

// DefaultSessionTTL is how long a session stays valid without a new login.
const DefaultSessionTTL = 24 * time.Hour

// Validation and lookup errors.
var (
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrInvalidPassword    = errors.New("password must be exactly 8 characters")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrSessionNotFound    = errors.New("session not found or expired")
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// User is the public view of an account.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Session is returned by a successful login.
type Session struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type record struct {
	user         User
	passwordHash []byte
}

// Store maps emails to accounts. It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]*record
	sessions *cache.Cache
	now      func() time.Time
}

// NewStore creates an empty Store whose sessions expire after ttl.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Store{
		accounts: make(map[string]*record),
		sessions: cache.New(ttl, ttl*2),
		now:      time.Now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validate(email, password string) error {
	if !emailPattern.MatchString(email) {
		return ErrInvalidEmail
	}
	if len([]rune(password)) != PasswordLength {
		return ErrInvalidPassword
	}
	return nil
}

// Register creates a new account.
func (s *Store) Register(email, password, confirmPassword string) (User, error) {
	email = normalizeEmail(email)
	if err := validate(email, password); err != nil {
		return User{}, err
	}
	if password != confirmPassword {
		return User{}, ErrPasswordMismatch
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[email]; ok {
		return User{}, ErrEmailTaken
	}
	now := s.now()
	rec := &record{
		user: User{
			ID:        uuid.NewString(),
			Email:     email,
			CreatedAt: now,
			UpdatedAt: now,
		},
		passwordHash: hash,
	}
	s.accounts[email] = rec
	return rec.user, nil
}

// Login checks the credentials and opens a session.
func (s *Store) Login(email, password string) (Session, error) {
	email = normalizeEmail(email)
	if err := validate(email, password); err != nil {
		return Session{}, err
	}

	s.mu.RLock()
	rec, ok := s.accounts[email]
	s.mu.RUnlock()
	if !ok {
		return Session{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(rec.passwordHash, []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}

	token := uuid.NewString()
	s.sessions.SetDefault(token, email)
	return Session{Token: token, User: rec.user}, nil
}

// Logout ends a session. Unknown tokens are ignored.
func (s *Store) Logout(token string) {
	s.sessions.Delete(token)
}

// Current returns the user behind a live session.
func (s *Store) Current(token string) (User, error) {
	v, ok := s.sessions.Get(token)
	if !ok {
		return User{}, ErrSessionNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.accounts[v.(string)]
	if !ok {
		return User{}, ErrSessionNotFound
	}
	return rec.user, nil
}

// Len returns the number of registered accounts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}
