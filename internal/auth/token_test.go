package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/itsm-portal/internal/domain"
)

func TestIssueAndParse(t *testing.T) {
	tm := NewTokenManager("test-secret", 15, 24)

	access, err := tm.IssueAccess("user-1")
	require.NoError(t, err)
	assert.NotEmpty(t, access.ID)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), access.ExpiresAt, 5*time.Second)

	claims, err := tm.ParseAccess(access.Value)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, domain.TokenTypeAccess, claims.TokenType)
	assert.Equal(t, access.ID, claims.ID)

	refresh, err := tm.IssueRefresh("user-1")
	require.NoError(t, err)
	assert.NotEqual(t, access.ID, refresh.ID)

	claims, err = tm.ParseRefresh(refresh.Value)
	require.NoError(t, err)
	assert.Equal(t, domain.TokenTypeRefresh, claims.TokenType)
}

func TestTokenTypesAreNotInterchangeable(t *testing.T) {
	tm := NewTokenManager("test-secret", 15, 24)
	access, err := tm.IssueAccess("user-1")
	require.NoError(t, err)
	refresh, err := tm.IssueRefresh("user-1")
	require.NoError(t, err)

	_, err = tm.ParseRefresh(access.Value)
	assert.ErrorIs(t, err, ErrWrongTokenType)

	_, err = tm.ParseAccess(refresh.Value)
	assert.ErrorIs(t, err, ErrWrongTokenType)
}

func TestExpiredAndForeignTokensRejected(t *testing.T) {
	tm := NewTokenManager("test-secret", 1, 1)
	issuedAt := time.Now()
	tm.now = func() time.Time { return issuedAt }
	access, err := tm.IssueAccess("user-1")
	require.NoError(t, err)

	tm.now = func() time.Time { return issuedAt.Add(2 * time.Minute) }
	_, err = tm.ParseAccess(access.Value)
	assert.Error(t, err)

	other := NewTokenManager("other-secret", 15, 24)
	foreign, err := other.IssueAccess("user-1")
	require.NoError(t, err)
	_, err = tm.ParseAccess(foreign.Value)
	assert.Error(t, err)
}

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret-pass", 4)
	require.NoError(t, err)
	assert.True(t, VerifyPassword(hash, "s3cret-pass"))
	assert.False(t, VerifyPassword(hash, "wrong"))
	assert.False(t, VerifyPassword("not-a-hash", "s3cret-pass"))

	weak, err := HashPassword("s3cret-pass", 1)
	require.NoError(t, err)
	assert.True(t, VerifyPassword(weak, "s3cret-pass"))

	BurnPasswordCheck("anything")
}
