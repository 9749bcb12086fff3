package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestAuthenticator(t *testing.T) *Authenticator {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	return NewAuthenticator(Options{
		Secret:        []byte("0123456789abcdef0123456789abcdef"),
		TokenTTL:      time.Hour,
		AdminUser:     "admin",
		AdminPassHash: string(hash),
	})
}

func TestGenerateAndValidateJWT(t *testing.T) {
	a := newTestAuthenticator(t)

	token, err := a.GenerateJWT("admin", true)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(token, "."))

	claims, err := a.ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
	assert.True(t, claims.IsAdmin)
	assert.Equal(t, "spawnsvc", claims.Issuer)
}

func TestValidateJWTRejects(t *testing.T) {
	a := newTestAuthenticator(t)

	_, err := a.ValidateJWT("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Чужой секрет
	other := NewAuthenticator(Options{Secret: []byte("ffffffffffffffffffffffffffffffff")})
	token, err := other.GenerateJWT("admin", true)
	require.NoError(t, err)
	_, err = a.ValidateJWT(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Истёкший токен
	token, err = a.GenerateJWT("admin", true)
	require.NoError(t, err)
	a.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = a.ValidateJWT(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLogin(t *testing.T) {
	a := newTestAuthenticator(t)

	token, err := a.Login("admin", "s3cret")
	require.NoError(t, err)
	claims, err := a.ValidateJWT(token)
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin)

	_, err = a.Login("admin", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = a.Login("root", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	disabled := NewAuthenticator(Options{AdminUser: "admin"})
	_, err = disabled.Login("admin", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$2"))
	assert.True(t, CheckPassword(hash, "hunter2"))
	assert.False(t, CheckPassword(hash, "hunter3"))
}

func TestSecrets(t *testing.T) {
	secret := GenerateSecureSecret()
	decoded, err := DecodeSecret(secret)
	require.NoError(t, err)
	assert.Len(t, decoded, 32)

	_, err = DecodeSecret("c2hvcnQ=")
	assert.Error(t, err)
	_, err = DecodeSecret("%%%")
	assert.Error(t, err)
}
