package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTManager_RoundTrip(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)

	token, err := m.Generate("alice", "Alice")
	require.NoError(t, err)

	claims, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.PlayerID)
	assert.Equal(t, "Alice", claims.DisplayName)
	assert.Equal(t, "alice", claims.Subject)
}

func TestJWTManager_Rejects(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := NewJWTManager("secret", time.Minute)
	m.SetClock(clock)

	token, err := m.Generate("alice", "")
	require.NoError(t, err)

	t.Run("다른 키로 서명된 토큰", func(t *testing.T) {
		other := NewJWTManager("other", time.Minute)
		_, err := other.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("형식이 잘못된 토큰", func(t *testing.T) {
		_, err := m.Verify("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("만료된 토큰", func(t *testing.T) {
		clock.Advance(2 * time.Minute)
		_, err := m.Verify(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("다른 발급자", func(t *testing.T) {
		foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
			PlayerID: "alice",
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "someone-else",
				Subject:   "alice",
				ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
			},
		})
		signed, err := foreign.SignedString([]byte("secret"))
		require.NoError(t, err)

		_, err = m.Verify(signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("서명 없는 토큰", func(t *testing.T) {
		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
			PlayerID:         "alice",
			RegisteredClaims: jwt.RegisteredClaims{Issuer: Issuer, Subject: "alice"},
		})
		signed, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = m.Verify(signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("빈 플레이어 ID", func(t *testing.T) {
		_, err := m.Generate("", "x")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
