package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"geoconsole/internal/apperr"
)

// DeviceClaims is the identity a bearer token asserts. DeviceID and
// CompanyID are the registry row ids; UUID is the client-reported device
// uuid and Org the company token the device registered under.
type DeviceClaims struct {
	CompanyID uint
	DeviceID  uint
	Model     string
	Org       string
	UUID      string
}

// TokenService signs and verifies bearer credentials over a fixed secret.
// It holds no mutable state; one instance is shared by all requests.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService configures HS256 signing. ttl of zero issues
// non-expiring tokens, which is the default for this API.
func NewTokenService(secret string, ttl time.Duration) *TokenService {
	return &TokenService{secret: []byte(secret), ttl: ttl}
}

func (s *TokenService) Sign(c DeviceClaims) (string, error) {
	claims := jwt.MapClaims{
		"companyId": c.CompanyID,
		"deviceId":  c.DeviceID,
		"model":     c.Model,
		"org":       c.Org,
		"uuid":      c.UUID,
		"jti":       uuid.NewString(),
		"iat":       time.Now().Unix(),
	}
	if s.ttl > 0 {
		claims["exp"] = time.Now().Add(s.ttl).Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify returns the signed claims or AccessDenied. Tampered, malformed
// and expired tokens all fail the same way; no detail leaks to the caller.
func (s *TokenService) Verify(tokenStr string) (DeviceClaims, error) {
	tok, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperr.New(apperr.AccessDenied, "unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !tok.Valid {
		return DeviceClaims{}, apperr.New(apperr.AccessDenied, "access denied")
	}
	mapc, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return DeviceClaims{}, apperr.New(apperr.AccessDenied, "access denied")
	}

	c := DeviceClaims{}
	if v, ok := mapc["companyId"].(float64); ok {
		c.CompanyID = uint(v)
	}
	if v, ok := mapc["deviceId"].(float64); ok {
		c.DeviceID = uint(v)
	}
	c.Model, _ = mapc["model"].(string)
	c.Org, _ = mapc["org"].(string)
	c.UUID, _ = mapc["uuid"].(string)
	return c, nil
}

// RefreshFingerprint derives the refresh token handed back next to an
// access token. It is a one-way digest the client echoes for correlation;
// it authorizes nothing and is never verified server-side.
func RefreshFingerprint(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return hex.EncodeToString(sum[:])
}
