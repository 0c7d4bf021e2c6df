package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/Tasktrack/internal/config"
	"github.com/Strob0t/Tasktrack/internal/domain/user"
)

// AuthService verifies bearer tokens and, for the admin CLI, issues them.
// Sessions and login are handled by an external identity provider.
type AuthService struct {
	cfg    *config.Auth
	secret func() string
	now    func() time.Time
}

// NewAuthService creates a new AuthService signing with cfg.JWTSecret.
func NewAuthService(cfg *config.Auth) *AuthService {
	static := cfg.JWTSecret
	return &AuthService{
		cfg:    cfg,
		secret: func() string { return static },
		now:    time.Now,
	}
}

// SetSecretSource makes the service read the signing secret from fn on
// every use, so a rotated secret applies without a restart.
func (s *AuthService) SetSecretSource(fn func() string) {
	s.secret = fn
}

// Enabled reports whether requests must carry a bearer token.
func (s *AuthService) Enabled() bool { return s.cfg.Enabled }

// DefaultPrincipal is the actor injected when authentication is disabled.
func (s *AuthService) DefaultPrincipal() user.Principal {
	return user.Principal{ID: s.cfg.DefaultAdminID, Role: user.RoleAdmin, OrgID: s.cfg.DefaultOrgID}
}

// ValidateAccessToken verifies a token and returns its claims.
func (s *AuthService) ValidateAccessToken(tokenStr string) (*user.TokenClaims, error) {
	return s.verifyJWT(tokenStr)
}

// IssueToken signs a token for the given user, valid for ttl.
func (s *AuthService) IssueToken(u *user.User, ttl time.Duration) (string, error) {
	if s.secret() == "" {
		return "", errors.New("auth.jwt_secret is not configured")
	}
	if ttl <= 0 {
		ttl = s.cfg.DevTokenExpiry
	}
	now := s.now()
	claims := user.TokenClaims{
		UserID:   u.ID,
		Name:     u.Name,
		Role:     u.Role,
		OrgID:    u.OrgID,
		Issuer:   s.cfg.Issuer,
		Audience: s.cfg.Audience,
		JTI:      uuid.NewString(),
		IssuedAt: now.Unix(),
		Expiry:   now.Add(ttl).Unix(),
	}
	return s.signJWT(&claims)
}

// --- JWT implementation (HS256 with stdlib) ---

// jwtHeader is the fixed base64url-encoded header for HS256.
var jwtHeader = base64URLEncode([]byte(`{"alg":"HS256","typ":"JWT"}`))

func (s *AuthService) signJWT(claims *user.TokenClaims) (string, error) {
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}

	signingInput := jwtHeader + "." + base64URLEncode(payload)
	mac := hmac.New(sha256.New, []byte(s.secret()))
	mac.Write([]byte(signingInput))
	return signingInput + "." + base64URLEncode(mac.Sum(nil)), nil
}

func (s *AuthService) verifyJWT(tokenStr string) (*user.TokenClaims, error) {
	parts := strings.SplitN(tokenStr, ".", 3)
	if len(parts) != 3 {
		return nil, errors.New("malformed token")
	}
	if parts[0] != jwtHeader {
		return nil, errors.New("unsupported token header")
	}

	secret := s.secret()
	if secret == "" {
		return nil, errors.New("auth.jwt_secret is not configured")
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(parts[0] + "." + parts[1]))
	if !hmac.Equal([]byte(parts[2]), []byte(base64URLEncode(mac.Sum(nil)))) {
		return nil, errors.New("invalid signature")
	}

	payload, err := base64URLDecode(parts[1])
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	var claims user.TokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("unmarshal claims: %w", err)
	}

	switch {
	case s.now().Unix() > claims.Expiry:
		return nil, errors.New("token expired")
	case s.cfg.Audience != "" && claims.Audience != s.cfg.Audience:
		return nil, errors.New("invalid token audience")
	case s.cfg.Issuer != "" && claims.Issuer != s.cfg.Issuer:
		return nil, errors.New("invalid token issuer")
	case claims.UserID == "" || claims.OrgID == "":
		return nil, errors.New("token lacks subject or organization")
	case !claims.Role.Valid():
		return nil, fmt.Errorf("unknown role %q", claims.Role)
	}
	return &claims, nil
}

func base64URLEncode(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

func base64URLDecode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
