package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrSecretNotConfigured = errors.New("JWT secret not configured")
	ErrInvalidToken        = errors.New("invalid or expired token")
)

// Claims are the identity fields the services read from an access token.
type Claims struct {
	UserID string
	Role   string
	Email  string
}

// TokenParser validates HMAC-signed access tokens.
type TokenParser struct {
	secret []byte
}

func NewTokenParser(secret string) *TokenParser {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return &TokenParser{}
	}
	return &TokenParser{secret: []byte(secret)}
}

// ParseAndValidateToken parses a JWT token string and returns its claims.
// If expectedType is non-empty, the claim "typ" must match it.
func (p *TokenParser) ParseAndValidateToken(tokenStr, expectedType string) (jwt.MapClaims, error) {
	if p.secret == nil {
		return nil, ErrSecretNotConfigured
	}

	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil || token == nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	if expectedType != "" {
		if typ, ok := claims["typ"].(string); !ok || typ != expectedType {
			return nil, fmt.Errorf("%w: wrong token type", ErrInvalidToken)
		}
	}
	return claims, nil
}

// ParseAccessToken validates an access token and extracts the identity claims.
// The user id is read from "user_id", falling back to "sub".
func (p *TokenParser) ParseAccessToken(tokenStr string) (*Claims, error) {
	mc, err := p.ParseAndValidateToken(tokenStr, "access")
	if err != nil {
		return nil, err
	}

	out := &Claims{}
	if v, ok := mc["user_id"].(string); ok {
		out.UserID = v
	} else if v, ok := mc["sub"].(string); ok {
		out.UserID = v
	}
	if out.UserID == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}
	out.Role, _ = mc["role"].(string)
	out.Email, _ = mc["email"].(string)
	return out, nil
}
