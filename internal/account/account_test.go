package account

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	s := NewStore(time.Hour)

	u, err := s.Register("Player@Example.com", "12345678", "12345678")
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "player@example.com", u.Email)
	assert.False(t, u.CreatedAt.IsZero())
	assert.Equal(t, 1, s.Len())
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		confirm  string
		want     error
	}{
		{"bad email", "not-an-email", "12345678", "12345678", ErrInvalidEmail},
		{"email with space", "a b@c.de", "12345678", "12345678", ErrInvalidEmail},
		{"short password", "a@b.cd", "1234567", "1234567", ErrInvalidPassword},
		{"long password", "a@b.cd", "123456789", "123456789", ErrInvalidPassword},
		{"mismatch", "a@b.cd", "12345678", "87654321", ErrPasswordMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(time.Hour)
			_, err := s.Register(tt.email, tt.password, tt.confirm)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 0, s.Len())
		})
	}
}

func TestRegister_Duplicate(t *testing.T) {
	s := NewStore(time.Hour)
	_, err := s.Register("a@b.cd", "12345678", "12345678")
	require.NoError(t, err)

	_, err = s.Register("A@B.CD", "abcdefgh", "abcdefgh")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestLoginLogout(t *testing.T) {
	s := NewStore(time.Hour)
	u, err := s.Register("a@b.cd", "pass1234", "pass1234")
	require.NoError(t, err)

	_, err = s.Login("a@b.cd", "wrong123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = s.Login("nobody@b.cd", "pass1234")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	sess, err := s.Login("a@b.cd", "pass1234")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, u.ID, sess.User.ID)

	cur, err := s.Current(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, u, cur)

	s.Logout(sess.Token)
	_, err = s.Current(sess.Token)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionExpiry(t *testing.T) {
	s := NewStore(20 * time.Millisecond)
	_, err := s.Register("a@b.cd", "pass1234", "pass1234")
	require.NoError(t, err)
	sess, err := s.Login("a@b.cd", "pass1234")
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	_, err = s.Current(sess.Token)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStoresAreIndependent(t *testing.T) {
	a := NewStore(time.Hour)
	b := NewStore(time.Hour)
	_, err := a.Register("a@b.cd", "pass1234", "pass1234")
	require.NoError(t, err)

	_, err = b.Login("a@b.cd", "pass1234")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestConcurrentRegister(t *testing.T) {
	s := NewStore(time.Hour)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			email := fmt.Sprintf("user%d@example.com", i)
			_, err := s.Register(email, "pass1234", "pass1234")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 8, s.Len())
}
