package auth

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/mstimer/mstimer-server/internal/errors"
)

func newTestTokenService(t *testing.T, duration time.Duration) *TokenService {
	t.Helper()
	key, err := LoadOrGenerateKey(t.TempDir())
	require.NoError(t, err)
	svc, err := NewTokenService(key, duration)
	require.NoError(t, err)
	return svc
}

func TestLoadOrGenerateKey_PersistsKey(t *testing.T) {
	dir := t.TempDir()

	first, err := LoadOrGenerateKey(dir)
	require.NoError(t, err)
	assert.Len(t, first, keyLength)

	info, err := os.Stat(filepath.Join(dir, keyFileName))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	second, err := LoadOrGenerateKey(dir)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestLoadOrGenerateKey_RejectsCorruptKey(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, keyFileName), []byte("abc"), 0o600))

	_, err := LoadOrGenerateKey(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid auth key length")

	require.NoError(t, os.WriteFile(filepath.Join(dir, keyFileName), []byte(strings.Repeat("zz", 32)), 0o600))
	_, err = LoadOrGenerateKey(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid hex")
}

func TestNewTokenService_KeyLength(t *testing.T) {
	_, err := NewTokenService(make([]byte, 16), time.Hour)
	assert.Error(t, err)
}

func TestPageToken_RoundTrip(t *testing.T) {
	svc := newTestTokenService(t, time.Hour)

	token, expires, err := svc.IssuePageToken("page-abc", "chrome-extension://xyz")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(token, "v4.local."))
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	claims, err := svc.VerifyPageToken(token)
	require.NoError(t, err)
	assert.Equal(t, "page-abc", claims.PageID)
	assert.Equal(t, "page-abc", claims.Subject)
	assert.Equal(t, "chrome-extension://xyz", claims.Origin)
	assert.Equal(t, tokenIssuer, claims.Issuer)
	assert.NotEmpty(t, claims.TokenID)
}

func TestPageToken_Expired(t *testing.T) {
	svc := newTestTokenService(t, time.Minute)
	token, _, err := svc.IssuePageToken("page-abc", "")
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	_, err = svc.VerifyPageToken(token)
	require.Error(t, err)
	assert.ErrorIs(t, err, domainerrors.ErrUnauthorized)
}

func TestPageToken_WrongKey(t *testing.T) {
	issuer := newTestTokenService(t, time.Hour)
	verifier := newTestTokenService(t, time.Hour)

	token, _, err := issuer.IssuePageToken("page-abc", "")
	require.NoError(t, err)

	_, err = verifier.VerifyPageToken(token)
	assert.ErrorIs(t, err, domainerrors.ErrUnauthorized)
}

func TestVerifyPageTokenFor_OtherPage(t *testing.T) {
	svc := newTestTokenService(t, time.Hour)
	token, _, err := svc.IssuePageToken("page-abc", "")
	require.NoError(t, err)

	_, err = svc.VerifyPageTokenFor(token, "page-abc")
	require.NoError(t, err)

	_, err = svc.VerifyPageTokenFor(token, "page-other")
	assert.ErrorIs(t, err, domainerrors.ErrUnauthorized)
}

func TestVerifyPageToken_Garbage(t *testing.T) {
	svc := newTestTokenService(t, time.Hour)

	_, err := svc.VerifyPageToken("not-a-token")
	assert.ErrorIs(t, err, domainerrors.ErrUnauthorized)
}
