package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"coursechat/pkg/types"
)

const testSecret = "test-secret-key-0123456789"

func TestVerifierRoundTrip(t *testing.T) {
	req := require.New(t)

	verifier := NewVerifier(testSecret)
	user := &types.User{ID: 42, Username: "sam", Role: types.RoleStudent}

	token, err := verifier.Sign(user, time.Hour)
	req.NoError(err)

	got, err := verifier.Verify(token)
	req.NoError(err)
	req.Equal(user, got)
}

func TestVerifierRejections(t *testing.T) {
	verifier := NewVerifier(testSecret)
	user := &types.User{ID: 42, Username: "sam", Role: types.RoleStudent}

	t.Run("wrong secret", func(t *testing.T) {
		forged, err := NewVerifier("another-secret-key-456789").Sign(user, time.Hour)
		require.NoError(t, err)

		_, err = verifier.Verify(forged)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired token", func(t *testing.T) {
		stale, err := verifier.Sign(user, -time.Minute)
		require.NoError(t, err)

		_, err = verifier.Verify(stale)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unknown role", func(t *testing.T) {
		odd, err := verifier.Sign(&types.User{ID: 1, Username: "x", Role: types.Role("admin")}, time.Hour)
		require.NoError(t, err)

		_, err = verifier.Verify(odd)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := verifier.Verify("not.a.token")
		require.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestUserFromRequest(t *testing.T) {
	req := require.New(t)

	verifier := NewVerifier(testSecret)
	user := &types.User{ID: 7, Username: "prof", Role: types.RoleTeacher}
	token, err := verifier.Sign(user, time.Hour)
	req.NoError(err)

	t.Run("authorization header", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws/chat/1", nil)
		r.Header.Set("Authorization", "Bearer "+token)

		got, err := verifier.UserFromRequest(r)
		require.NoError(t, err)
		require.Equal(t, user, got)
	})

	t.Run("query parameter", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws/chat/1?token="+token, nil)

		got, err := verifier.UserFromRequest(r)
		require.NoError(t, err)
		require.Equal(t, user, got)
	})

	t.Run("missing token", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws/chat/1", nil)

		_, err := verifier.UserFromRequest(r)
		require.ErrorIs(t, err, ErrNoToken)
	})
}
