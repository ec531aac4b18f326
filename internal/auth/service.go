package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Roles carried in the token. Clients post requests, pros receive offers,
// ops run wallet corrections and sweeps, service is the payment collaborator.
const (
	RoleClient  = "client"
	RolePro     = "pro"
	RoleOps     = "ops"
	RoleService = "service"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrInvalidRole  = errors.New("invalid role")
)

// Identity is the authenticated caller.
type Identity struct {
	ID   uuid.UUID
	Role string
}

type Service interface {
	IssueToken(ctx context.Context, id uuid.UUID, role string) (string, error)
	ValidateToken(ctx context.Context, token string) (Identity, error)
}

type service struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewService builds an HS256 token service. Accounts live with the identity
// provider; this service only mints and checks tokens.
func NewService(secret string, ttl time.Duration) *service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &service{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Ensure service implements Service at compile time.
var _ Service = (*service)(nil)

type claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

func validRole(role string) bool {
	switch role {
	case RoleClient, RolePro, RoleOps, RoleService:
		return true
	}
	return false
}

func (s *service) IssueToken(_ context.Context, id uuid.UUID, role string) (string, error) {
	if !validRole(role) {
		return "", ErrInvalidRole
	}
	now := s.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Role: role,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.secret)
}

func (s *service) ValidateToken(_ context.Context, token string) (Identity, error) {
	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return Identity{}, errors.Join(ErrInvalidToken, err)
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid {
		return Identity{}, ErrInvalidToken
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return Identity{}, errors.Join(ErrInvalidToken, err)
	}
	if !validRole(c.Role) {
		return Identity{}, ErrInvalidRole
	}
	return Identity{ID: id, Role: c.Role}, nil
}
