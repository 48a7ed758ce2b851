package auth_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chainsafe/contract-jobs/pkg/auth"
	"github.com/chainsafe/contract-jobs/pkg/config"
)

const (
	testKid    = "test-key"
	testIssuer = "https://issuer.example"
)

type issuer struct {
	key    *rsa.PrivateKey
	server *httptest.Server
	hits   int
}

func newIssuer(t *testing.T) *issuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	iss := &issuer{key: key}
	iss.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		iss.hits++
		_ = json.NewEncoder(w).Encode(auth.JWKS{Keys: []auth.JWK{{
			Kid: testKid,
			Kty: "RSA",
			Alg: "RS256",
			Use: "sig",
			N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}}})
	}))
	t.Cleanup(iss.server.Close)
	return iss
}

func (i *issuer) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKid
	signed, err := token.SignedString(i.key)
	require.NoError(t, err)
	return signed
}

func (i *issuer) validator() *auth.JWTValidator {
	return auth.NewJWTValidator(config.AuthConfig{JWKSURL: i.server.URL, Issuer: testIssuer})
}

func claims(team any) jwt.MapClaims {
	c := jwt.MapClaims{
		"iss": testIssuer,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	if team != nil {
		c["team_id"] = team
	}
	return c
}

func TestJWTValidator_TeamID(t *testing.T) {
	iss := newIssuer(t)
	v := iss.validator()
	ctx := context.Background()

	teamID, err := v.TeamID(ctx, iss.sign(t, claims(7)))
	require.NoError(t, err)
	require.Equal(t, int64(7), teamID)

	teamID, err = v.TeamID(ctx, iss.sign(t, claims("12")))
	require.NoError(t, err)
	require.Equal(t, int64(12), teamID)

	// keys are cached after the first fetch
	require.Equal(t, 1, iss.hits)
}

func TestJWTValidator_Rejects(t *testing.T) {
	iss := newIssuer(t)
	v := iss.validator()
	ctx := context.Background()

	_, err := v.TeamID(ctx, iss.sign(t, claims(nil)))
	require.ErrorIs(t, err, auth.ErrMissingTeamClaim)

	_, err = v.TeamID(ctx, iss.sign(t, claims("abc")))
	require.Error(t, err)

	_, err = v.TeamID(ctx, iss.sign(t, claims(1.5)))
	require.Error(t, err)

	wrongIssuer := claims(7)
	wrongIssuer["iss"] = "https://other.example"
	_, err = v.TeamID(ctx, iss.sign(t, wrongIssuer))
	require.Error(t, err)

	expired := claims(7)
	expired["exp"] = time.Now().Add(-time.Hour).Unix()
	_, err = v.TeamID(ctx, iss.sign(t, expired))
	require.Error(t, err)

	hs := jwt.NewWithClaims(jwt.SigningMethodHS256, claims(7))
	hs.Header["kid"] = testKid
	signed, err := hs.SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = v.TeamID(ctx, signed)
	require.Error(t, err)
}

func TestJWTValidator_NotConfigured(t *testing.T) {
	v := auth.NewJWTValidator(config.AuthConfig{})
	require.False(t, v.IsConfigured())

	_, err := v.ValidateToken(context.Background(), "anything")
	require.ErrorIs(t, err, auth.ErrNotConfigured)
}

func TestMiddleware(t *testing.T) {
	iss := newIssuer(t)
	handler := auth.Middleware(iss.validator(), zap.NewNop())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if teamID, ok := auth.TeamIDFromContext(r.Context()); ok {
				_ = json.NewEncoder(w).Encode(teamID)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		}))

	tests := []struct {
		name       string
		header     string
		query      string
		wantStatus int
		wantBody   string
	}{
		{name: "anonymous", wantStatus: http.StatusUnauthorized},
		{name: "bearer", header: "Bearer " + iss.sign(t, claims(3)), wantStatus: http.StatusOK, wantBody: "3\n"},
		{name: "query token", query: "?access_token=" + iss.sign(t, claims(4)), wantStatus: http.StatusOK, wantBody: "4\n"},
		{name: "invalid token", header: "Bearer garbage", wantStatus: http.StatusUnauthorized},
		{name: "other scheme", header: "Basic dXNlcjpwYXNz", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				require.Equal(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestMiddleware_NotConfiguredPassesThrough(t *testing.T) {
	reached := false
	handler := auth.Middleware(auth.NewJWTValidator(config.AuthConfig{}), zap.NewNop())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reached = true
			_, ok := auth.TeamIDFromContext(r.Context())
			require.False(t, ok)
			w.WriteHeader(http.StatusNoContent)
		}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer ignored")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.True(t, reached)
	require.Equal(t, http.StatusNoContent, rec.Code)
}
