package auth

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	apperrors "github.com/yanqian/smart-notes/pkg/errors"
)

func TestService_IssueAndValidate(t *testing.T) {
	svc := NewService(Config{Secret: "test-secret", TokenTTL: time.Hour}, newTestLogger())

	issued, err := svc.Issue(context.Background(), IssueRequest{Subject: " anki-desktop "})
	require.NoError(t, err)
	require.NotEmpty(t, issued.Token)
	require.Equal(t, "anki-desktop", issued.Subject)
	require.WithinDuration(t, time.Now().Add(time.Hour), issued.ExpiresAt, time.Minute)

	claims, err := svc.ValidateToken(context.Background(), issued.Token)
	require.NoError(t, err)
	require.Equal(t, "anki-desktop", claims.Subject)
	require.NotEmpty(t, claims.ID)
	require.WithinDuration(t, issued.ExpiresAt, claims.ExpiresAt, time.Second)
}

func TestService_RejectsBadTokens(t *testing.T) {
	svc := NewService(Config{Secret: "test-secret", TokenTTL: time.Hour}, newTestLogger())
	other := NewService(Config{Secret: "other-secret", TokenTTL: time.Hour}, newTestLogger())

	foreign, err := other.Issue(context.Background(), IssueRequest{Subject: "x"})
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		TokenType:        tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "x"},
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	wrongType, err := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		TokenType: "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "x",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":      "",
		"garbage":    "not-a-jwt",
		"foreign":    foreign.Token,
		"no expiry":  noExpiry,
		"wrong type": wrongType,
	} {
		_, err := svc.ValidateToken(context.Background(), token)
		require.Error(t, err, name)
		require.True(t, apperrors.IsCode(err, apperrors.CodeInvalidToken), name)
	}
}

func TestService_ExpiredToken(t *testing.T) {
	svc := NewService(Config{Secret: "test-secret", TokenTTL: time.Minute}, newTestLogger()).(*service)
	issued, err := svc.Issue(context.Background(), IssueRequest{Subject: "x"})
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = svc.ValidateToken(context.Background(), issued.Token)
	require.True(t, apperrors.IsCode(err, apperrors.CodeInvalidToken))
}

func TestService_IssueRequiresSecretAndSubject(t *testing.T) {
	disabled := NewService(Config{TokenTTL: time.Hour}, newTestLogger())
	_, err := disabled.Issue(context.Background(), IssueRequest{Subject: "x"})
	require.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput))

	svc := NewService(Config{Secret: "s", TokenTTL: time.Hour}, newTestLogger())
	_, err = svc.Issue(context.Background(), IssueRequest{Subject: " "})
	require.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput))
}

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(io.Discard, nil)
	return slog.New(handler)
}
