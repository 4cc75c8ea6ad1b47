package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Mark23Dev/project-nexus/services/common/auth"
	apperrors "github.com/Mark23Dev/project-nexus/services/common/errors"
	"github.com/Mark23Dev/project-nexus/services/order-service/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	UserContextKey      = "userID"
	RoleContextKey      = "role"
	PrincipalContextKey = "principal"

	roleAdmin = "admin"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// Credentials is what a request presents to prove who it is.
type Credentials struct {
	BearerToken string
	UserID      string
	Role        string
}

// IdentityProvider turns request credentials into a principal.
type IdentityProvider interface {
	Resolve(ctx context.Context, creds Credentials) (models.Principal, error)
}

// JWTIdentityProvider validates bearer access tokens.
type JWTIdentityProvider struct {
	parser *auth.TokenParser
}

func NewJWTIdentityProvider(secret string) *JWTIdentityProvider {
	return &JWTIdentityProvider{parser: auth.NewTokenParser(secret)}
}

func (p *JWTIdentityProvider) Resolve(_ context.Context, creds Credentials) (models.Principal, error) {
	if creds.BearerToken == "" {
		return models.Principal{}, fmt.Errorf("%w: missing bearer token", ErrUnauthenticated)
	}
	claims, err := p.parser.ParseAccessToken(creds.BearerToken)
	if err != nil {
		return models.Principal{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return principal(claims.UserID, claims.Role)
}

// GatewayIdentityProvider trusts the identity headers the API gateway
// injects after it has authenticated the caller.
type GatewayIdentityProvider struct{}

func (GatewayIdentityProvider) Resolve(_ context.Context, creds Credentials) (models.Principal, error) {
	if creds.UserID == "" {
		return models.Principal{}, fmt.Errorf("%w: missing user id", ErrUnauthenticated)
	}
	return principal(creds.UserID, creds.Role)
}

func principal(userID, role string) (models.Principal, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return models.Principal{}, fmt.Errorf("%w: user id is not a UUID", ErrUnauthenticated)
	}
	return models.Principal{UserID: id, IsAdministrator: role == roleAdmin}, nil
}

func credentialsFrom(c *gin.Context) Credentials {
	creds := Credentials{
		UserID: c.GetHeader("X-User-ID"),
		Role:   c.GetHeader("X-User-Role"),
	}
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		creds.BearerToken = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}

	// Identity cookies are client-controlled; only the signed token cookie is
	// accepted as a fallback.
	if creds.BearerToken == "" {
		if v, err := c.Cookie("token"); err == nil && v != "" {
			creds.BearerToken = v
		}
	}
	return creds
}

// AuthMiddleware resolves the caller and stores the principal on the context.
func AuthMiddleware(provider IdentityProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := provider.Resolve(c.Request.Context(), credentialsFrom(c))
		if err != nil {
			apperrors.Abort(c, apperrors.ErrUnauthorized)
			return
		}

		c.Set(PrincipalContextKey, p)
		c.Set(UserContextKey, p.UserID.String())
		if p.IsAdministrator {
			c.Set(RoleContextKey, roleAdmin)
		}
		c.Next()
	}
}

// GetPrincipal returns the principal set by AuthMiddleware.
func GetPrincipal(c *gin.Context) (models.Principal, error) {
	if val, ok := c.Get(PrincipalContextKey); ok {
		if p, ok := val.(models.Principal); ok {
			return p, nil
		}
	}
	return models.Principal{}, errors.New("principal not found in context")
}

// AdminOnly restricts access to admin role.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := GetPrincipal(c)
		if err != nil || !p.IsAdministrator {
			apperrors.Abort(c, apperrors.New(http.StatusForbidden, "forbidden", "Admin role required"))
			return
		}
		c.Next()
	}
}
