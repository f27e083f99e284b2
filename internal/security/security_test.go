package security

import (
	"testing"
	"time"

	"github.com/fernet/fernet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewTokenService("secret", time.Hour)

	token, err := svc.Issue(42, "alice")
	require.NoError(t, err)

	claims, err := svc.Parse(token)
	require.NoError(t, err)
	id, err := claims.UserID()
	require.NoError(t, err)
	assert.EqualValues(t, 42, id)
	assert.Equal(t, "alice", claims.Username)
}

func TestTokenRejectsOtherSecretAndExpiry(t *testing.T) {
	issuer := NewTokenService("secret", time.Hour)
	token, err := issuer.Issue(1, "alice")
	require.NoError(t, err)

	_, err = NewTokenService("other", time.Hour).Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := issuer.IssueWithTTL(1, "alice", -time.Minute)
	require.NoError(t, err)
	_, err = issuer.Parse(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordHasher(t *testing.T) {
	h := NewPasswordHasher(4)
	hashed, err := h.Hash("Password1!")
	require.NoError(t, err)

	assert.NoError(t, h.Verify("Password1!", hashed))
	assert.ErrorIs(t, h.Verify("wrong", hashed), ErrPasswordMismatch)
}

func TestEncryptorRoundTrip(t *testing.T) {
	e, err := NewEncryptor([]byte("any secret"), nil)
	require.NoError(t, err)

	enc, err := e.Encrypt("héllo 👋")
	require.NoError(t, err)
	assert.NotEqual(t, "héllo 👋", enc)

	plain, err := e.Decrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, "héllo 👋", plain)

	_, err = e.Decrypt("not-a-payload")
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestEncryptorReadsLegacyFernet(t *testing.T) {
	var k fernet.Key
	require.NoError(t, k.Generate())

	legacy, err := fernet.EncryptAndSign([]byte("old message"), &k)
	require.NoError(t, err)

	e, err := NewEncryptor([]byte("new secret"), []string{k.Encode()})
	require.NoError(t, err)

	plain, err := e.Decrypt(string(legacy))
	require.NoError(t, err)
	assert.Equal(t, "old message", plain)
}
