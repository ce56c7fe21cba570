package httpapi

import (
	"context"
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"kitchenpos/backend/internal/domain"
	"kitchenpos/backend/internal/store"
)

var errInvalidCredentials = errors.New("invalid credentials")

type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	users    UserStore
	roles    RoleResolver
}

type UserStore interface {
	FindUserByUsername(ctx context.Context, username string) (*domain.User, error)
	FindUserByEmail(ctx context.Context, email string) (*domain.User, error)
}

// RoleResolver returns the current role of a token subject, so role changes
// apply to tokens that are already issued.
type RoleResolver interface {
	ResolveRole(ctx context.Context, identity string) (string, error)
}

type posCustomClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, users UserStore, roles RoleResolver) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}

	return &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		users:    users,
		roles:    roles,
	}
}

// Login accepts a username or an email address in req.Username.
func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	identity := strings.TrimSpace(req.Username)
	if identity == "" || a.users == nil {
		return domain.LoginResponse{}, errInvalidCredentials
	}

	var (
		user *domain.User
		err  error
	)
	if strings.Contains(identity, "@") {
		user, err = a.users.FindUserByEmail(ctx, identity)
	} else {
		user, err = a.users.FindUserByUsername(ctx, identity)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.LoginResponse{}, errInvalidCredentials
		}
		return domain.LoginResponse{}, err
	}
	if !verifyPassword(user.Password, req.Password) {
		return domain.LoginResponse{}, errInvalidCredentials
	}

	subject := user.Username
	if subject == "" {
		subject = user.Email
	}
	return a.IssueToken(subject, user.Role)
}

func (a *AuthManager) IssueToken(subject string, role string) (domain.LoginResponse, error) {
	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(subject, role, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		Role:        role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &posCustomClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{Subject: sub, Role: claims.Role}, nil
}

// Authenticate parses the token and replaces the claimed role with the
// subject's current one when a resolver is configured.
func (a *AuthManager) Authenticate(ctx context.Context, tokenStr string) (domain.Actor, error) {
	actor, err := a.ParseToken(tokenStr)
	if err != nil {
		return domain.Actor{}, err
	}
	if a.roles == nil {
		return actor, nil
	}

	role, err := a.roles.ResolveRole(ctx, actor.Subject)
	if err != nil {
		return domain.Actor{}, err
	}
	actor.Role = role
	return actor, nil
}

func (a *AuthManager) sign(subject, role string, expiresAt time.Time) (string, error) {
	claims := posCustomClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "kitchenpos",
		},
		Role: role,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
