package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrExpiredState  = errors.New("oauth state expired")
	ErrBadSignature  = errors.New("oauth state signature mismatch")
	ErrBadStateShape = errors.New("oauth state malformed")
)

// OAuthStateTTL bounds how long a minted state token remains acceptable.
const OAuthStateTTL = 600 * time.Second

// SignOAuthState builds a URL-safe "payload.signature" blob binding an
// issued-at time and the post-login redirect path, the way a CSRF-style
// state parameter is threaded through a third-party OAuth round trip.
func SignOAuthState(secret, nextPath string, now time.Time) string {
	payload := strconv.FormatInt(now.Unix(), 10) + "|" + nextPath
	encoded := base64.URLEncoding.EncodeToString([]byte(payload))
	return encoded + "." + hexHMAC(secret, encoded)
}

// VerifyOAuthState checks the signature and TTL and returns the embedded
// next path, restricted to same-origin paths starting with "/".
func VerifyOAuthState(secret, state string, now time.Time) (string, error) {
	encoded, sig, ok := strings.Cut(state, ".")
	if !ok {
		return "", ErrBadStateShape
	}
	if !hmac.Equal([]byte(hexHMAC(secret, encoded)), []byte(sig)) {
		return "", ErrBadSignature
	}
	raw, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrBadStateShape
	}
	iatStr, nextPath, ok := strings.Cut(string(raw), "|")
	if !ok {
		return "", ErrBadStateShape
	}
	iat, err := strconv.ParseInt(iatStr, 10, 64)
	if err != nil {
		return "", ErrBadStateShape
	}
	if now.After(time.Unix(iat, 0).Add(OAuthStateTTL)) {
		return "", ErrExpiredState
	}
	if !strings.HasPrefix(nextPath, "/") {
		nextPath = "/"
	}
	return nextPath, nil
}

func hexHMAC(secret, data string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

const (
	accessTokenAudience = "devlens-api"
	shareTokenAudience  = "devlens-share"
)

// AccessClaims are the registered + custom claims carried by an API bearer token.
type AccessClaims struct {
	jwt.RegisteredClaims
}

// TokenIssuer mints and parses the symmetric-signed JWTs devlens hands out:
// short-lived access tokens scoped to the API audience, and share tokens
// scoped to the public share-link audience.
type TokenIssuer struct {
	secret []byte
}

func NewTokenIssuer(secret string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret)}
}

// MintAccessToken issues a bearer token for userID, valid for ttl.
func (t *TokenIssuer) MintAccessToken(userID string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Audience:  jwt.ClaimStrings{accessTokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// ParseAccessToken validates signature, expiry, and audience, returning the subject user id.
func (t *TokenIssuer) ParseAccessToken(raw string) (string, error) {
	var claims AccessClaims
	token, err := jwt.ParseWithClaims(raw, &claims, t.keyFunc)
	if err != nil || !token.Valid {
		return "", fmt.Errorf("invalid access token: %w", err)
	}
	if !claims.RegisteredClaims.VerifyAudience(accessTokenAudience, true) {
		return "", fmt.Errorf("invalid access token audience")
	}
	return claims.Subject, nil
}

// ShareClaims is the payload embedded in a minted share-link JWT; typ is
// carried explicitly since aud alone doesn't distinguish token purpose in
// a registry shared across token kinds.
type ShareClaims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// MintShareToken issues a share-link JWT whose jti ties back to a persisted
// ShareToken row; repoID is carried as the subject per the spec's
// sub=repo_id convention.
func (t *TokenIssuer) MintShareToken(repoID, shareID string, expiresAt time.Time) (string, error) {
	claims := ShareClaims{
		Type: "share",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   repoID,
			Audience:  jwt.ClaimStrings{shareTokenAudience},
			ID:        shareID,
			IssuedAt:  jwt.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// ParseShareToken validates signature, expiry, audience, and typ, returning
// the claims for the caller to cross-check against the persisted row.
func (t *TokenIssuer) ParseShareToken(raw string) (*ShareClaims, error) {
	var claims ShareClaims
	token, err := jwt.ParseWithClaims(raw, &claims, t.keyFunc)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid share token payload")
	}
	if !claims.RegisteredClaims.VerifyAudience(shareTokenAudience, true) || claims.Type != "share" {
		return nil, fmt.Errorf("invalid share token payload")
	}
	return &claims, nil
}

func (t *TokenIssuer) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return t.secret, nil
}

// GenerateRefreshSecret returns a random opaque token (48+ bytes of entropy
// once base64-encoded) plus its SHA-256 hex digest, the value actually
// persisted so a leaked database dump never yields a usable refresh token.
func GenerateRefreshSecret() (raw, hash string, err error) {
	buf := make([]byte, 48)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate refresh secret: %w", err)
	}
	raw = base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(buf)
	return raw, HashToken(raw), nil
}

// HashToken returns the SHA-256 hex digest of an opaque token value, used to
// look up both refresh tokens and API keys by their stored hash.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// GenerateCSRFToken returns a random 24-byte URL-safe token for the
// non-HttpOnly CSRF cookie used in the double-submit check.
func GenerateCSRFToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate csrf token: %w", err)
	}
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(buf), nil
}

// ConstantTimeEqual compares two strings without leaking timing information,
// used for the CSRF double-submit comparison.
func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

const apiKeyPrefix = "dlk_"

// GeneratedAPIKey carries both the one-time raw value and everything that
// gets persisted instead of it.
type GeneratedAPIKey struct {
	Raw    string
	Hash   string
	Prefix string
	Last4  string
}

// GenerateAPIKey mints a "dlk_" + 30-byte URL-safe random API key. Only the
// hash is ever persisted; prefix/last4 are stored separately so a UI can
// list keys without ever re-displaying the secret.
func GenerateAPIKey() (GeneratedAPIKey, error) {
	buf := make([]byte, 30)
	if _, err := rand.Read(buf); err != nil {
		return GeneratedAPIKey{}, fmt.Errorf("generate api key: %w", err)
	}
	raw := apiKeyPrefix + base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(buf)
	hash := HashToken(raw)
	prefix := raw
	if len(prefix) > 12 {
		prefix = prefix[:12]
	}
	last4 := raw
	if len(last4) > 4 {
		last4 = last4[len(last4)-4:]
	}
	return GeneratedAPIKey{Raw: raw, Hash: hash, Prefix: prefix, Last4: last4}, nil
}
