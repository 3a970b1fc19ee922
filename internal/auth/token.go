package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"

	"ms-booking/internal/models"
)

// Identity is the authenticated caller extracted from a bearer token.
type Identity struct {
	UserID string
	Role   models.Role
	Name   string
	Email  string
}

// Actor returns the id and role the orchestrator and reporting layer work with.
func (i Identity) Actor() models.Actor {
	return models.Actor{UserID: i.UserID, Role: i.Role}
}

// Verifier turns a raw bearer token into an Identity.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (*Identity, error)
}

// Claims is the token payload shared by HMAC-signed and OIDC tokens.
type Claims struct {
	Role  string `json:"role"`
	Name  string `json:"name"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func (c *Claims) identity() (*Identity, error) {
	if c.Subject == "" {
		return nil, errors.New("subject claim not found in token")
	}
	role := models.Role(strings.ToLower(c.Role))
	if !role.Valid() {
		return nil, fmt.Errorf("unsupported role %q in token", c.Role)
	}
	return &Identity{UserID: c.Subject, Role: role, Name: c.Name, Email: c.Email}, nil
}

// ExtractTokenFromRequest extracts a JWT token from an HTTP request's Authorization header
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("authorization header is missing")
	}

	// Bearer token format: "Bearer {token}"
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", errors.New("authorization header format must be 'Bearer {token}'")
	}

	return parts[1], nil
}

// HMACVerifier checks HS256 tokens signed with a shared secret.
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

func (v *HMACVerifier) Verify(_ context.Context, rawToken string) (*Identity, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(rawToken, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	return claims.identity()
}

// IssueToken signs an HS256 token for identity. Used by local tooling and tests.
func (v *HMACVerifier) IssueToken(identity Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role:  string(identity.Role),
		Name:  identity.Name,
		Email: identity.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// OIDCVerifier checks tokens against an OpenID Connect issuer.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

func NewOIDCVerifier(ctx context.Context, issuer string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}
	// SkipClientIDCheck: tokens are minted for the frontend client
	verifier := provider.Verifier(&oidc.Config{SkipClientIDCheck: true})
	return &OIDCVerifier{verifier: verifier}, nil
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*Identity, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	claims := &Claims{}
	if err := idToken.Claims(claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}
	claims.Subject = idToken.Subject
	return claims.identity()
}

// NewVerifier prefers OIDC when an issuer is configured and falls back to the shared secret.
func NewVerifier(ctx context.Context, issuer, secret string) (Verifier, error) {
	switch {
	case issuer != "":
		return NewOIDCVerifier(ctx, issuer)
	case secret != "":
		return NewHMACVerifier(secret), nil
	default:
		return nil, errors.New("either OIDC_ISSUER or JWT_SECRET must be set")
	}
}
