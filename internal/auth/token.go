package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

type sessionClaims struct {
	Kind      Kind   `json:"kind"`
	Email     string `json:"email,omitempty"`
	ManagerID int64  `json:"managerId,omitempty"`
	Name      string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs a session token for the identity.
func (s *Service) IssueToken(ident Identity) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		Kind:      ident.Kind,
		Email:     ident.Email,
		ManagerID: ident.ManagerID,
		Name:      ident.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a session token and returns its identity.
func (s *Service) ParseToken(tokenString string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &sessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*sessionClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	return &Identity{
		Kind:      claims.Kind,
		Email:     claims.Email,
		ManagerID: claims.ManagerID,
		Name:      claims.Name,
	}, nil
}
