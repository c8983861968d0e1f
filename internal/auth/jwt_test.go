package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/handcricket/backend/internal/cricket"
)

const secret = "test-secret"

func TestIssueVerifyRoundTrip(t *testing.T) {
	p := cricket.Participant{ID: "u-1", Name: "Asha", AvatarURL: "https://img/a.png"}
	tok, err := Issue(secret, p, time.Hour)
	require.NoError(t, err)

	got, err := Verify(secret, tok)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestVerifyDefaultsNameToSubject(t *testing.T) {
	tok, err := Issue(secret, cricket.Participant{ID: "u-2"}, time.Hour)
	require.NoError(t, err)

	got, err := Verify(secret, tok)
	require.NoError(t, err)
	assert.Equal(t, "u-2", got.Name)
}

func TestVerifyRejects(t *testing.T) {
	good, err := Issue(secret, cricket.Participant{ID: "u-1"}, time.Hour)
	require.NoError(t, err)
	expired, err := Issue(secret, cricket.Participant{ID: "u-1"}, -time.Minute)
	require.NoError(t, err)
	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Name: "x"}).SignedString([]byte(secret))
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := map[string]struct {
		secret string
		token  string
	}{
		"wrong secret": {"other", good},
		"expired":      {secret, expired},
		"no subject":   {secret, noSubject},
		"alg none":     {secret, none},
		"garbage":      {secret, "not.a.jwt"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Verify(tc.secret, tc.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/v1/ws?token=from-query", nil)
	assert.Equal(t, "from-query", TokenFromRequest(r))

	r.Header.Set("Authorization", "Bearer from-header")
	assert.Equal(t, "from-header", TokenFromRequest(r))

	r = httptest.NewRequest("GET", "/api/v1/ws", nil)
	r.Header.Set("Authorization", "Basic abc")
	assert.Equal(t, "", TokenFromRequest(r))
}
