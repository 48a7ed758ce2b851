package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/chainsafe/contract-jobs/pkg/config"
)

const defaultTeamClaim = "team_id"

var (
	// ErrMissingTeamClaim is returned when a valid token carries no team identity
	ErrMissingTeamClaim = errors.New("token has no team claim")
	// ErrNotConfigured is returned when a token is presented but no JWKS URL is set
	ErrNotConfigured = errors.New("JWKS URL not configured")
	// ErrMissingToken is returned when auth is enabled and no bearer token is sent
	ErrMissingToken = errors.New("missing bearer token")
)

// JWTValidator validates bearer tokens against a JWKS and extracts the
// team they were issued for
type JWTValidator struct {
	jwksURL   string
	issuer    string
	teamClaim string
	keys      map[string]*rsa.PublicKey
	keysMu    sync.RWMutex
	client    *http.Client
}

// JWKS represents a JSON Web Key Set
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK represents a JSON Web Key
type JWK struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// NewJWTValidator creates a new JWT validator
func NewJWTValidator(cfg config.AuthConfig) *JWTValidator {
	teamClaim := cfg.TeamClaim
	if teamClaim == "" {
		teamClaim = defaultTeamClaim
	}
	return &JWTValidator{
		jwksURL:   cfg.JWKSURL,
		issuer:    cfg.Issuer,
		teamClaim: teamClaim,
		keys:      make(map[string]*rsa.PublicKey),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// IsConfigured returns true if JWKS validation is configured
func (v *JWTValidator) IsConfigured() bool {
	return v.jwksURL != ""
}

// ValidateToken validates a JWT token and returns the claims
func (v *JWTValidator) ValidateToken(ctx context.Context, tokenString string) (jwt.MapClaims, error) {
	if !v.IsConfigured() {
		return nil, ErrNotConfigured
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, fmt.Errorf("missing kid in token header")
		}
		return v.getKey(ctx, kid)
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid claims type")
	}
	return claims, nil
}

// TeamID validates the token and returns the team it names
func (v *JWTValidator) TeamID(ctx context.Context, tokenString string) (int64, error) {
	claims, err := v.ValidateToken(ctx, tokenString)
	if err != nil {
		return 0, err
	}
	return teamFromClaims(claims, v.teamClaim)
}

// teamFromClaims accepts the team id as a JSON number or a decimal string
func teamFromClaims(claims jwt.MapClaims, name string) (int64, error) {
	switch raw := claims[name].(type) {
	case float64:
		if raw <= 0 || raw != float64(int64(raw)) {
			return 0, fmt.Errorf("invalid %s claim: %v", name, raw)
		}
		return int64(raw), nil
	case string:
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return 0, fmt.Errorf("invalid %s claim: %q", name, raw)
		}
		return id, nil
	case nil:
		return 0, fmt.Errorf("%w: %s", ErrMissingTeamClaim, name)
	default:
		return 0, fmt.Errorf("invalid %s claim type %T", name, raw)
	}
}

// getKey retrieves a key by ID, refreshing from JWKS if needed
func (v *JWTValidator) getKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.keysMu.RLock()
	key, exists := v.keys[kid]
	v.keysMu.RUnlock()

	if exists {
		return key, nil
	}

	if err := v.refreshKeys(ctx); err != nil {
		return nil, err
	}

	v.keysMu.RLock()
	key, exists = v.keys[kid]
	v.keysMu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("key not found: %s", kid)
	}

	return key, nil
}

// refreshKeys fetches and parses the JWKS
func (v *JWTValidator) refreshKeys(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	var jwks JWKS
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return fmt.Errorf("failed to decode JWKS: %w", err)
	}

	v.keysMu.Lock()
	defer v.keysMu.Unlock()

	for _, key := range jwks.Keys {
		if key.Kty != "RSA" {
			continue
		}
		pubKey, err := parseRSAPublicKey(key.N, key.E)
		if err != nil {
			continue // Skip invalid keys
		}
		v.keys[key.Kid] = pubKey
	}

	return nil
}

// parseRSAPublicKey parses RSA public key components from base64url-encoded strings
func parseRSAPublicKey(nStr, eStr string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}

	eBytes, err := base64.RawURLEncoding.DecodeString(eStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	n := new(big.Int).SetBytes(nBytes)
	e := int(new(big.Int).SetBytes(eBytes).Int64())

	return &rsa.PublicKey{N: n, E: e}, nil
}
