package services

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const serviceTokenTTL = 1 * time.Hour

// ServiceTokenSource mints short-lived bearer tokens for the fixed service
// identity. The gateway validates these against the shared secret.
type ServiceTokenSource struct {
	accountID string
	secret    []byte
	now       func() time.Time
}

func NewServiceTokenSource(accountID, secret string) *ServiceTokenSource {
	return &ServiceTokenSource{
		accountID: accountID,
		secret:    []byte(secret),
		now:       time.Now,
	}
}

func (s *ServiceTokenSource) Token() (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"iss":   s.accountID,
		"scope": "calendar",
		"iat":   now.Unix(),
		"exp":   now.Add(serviceTokenTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign service token: %w", err)
	}
	return signed, nil
}

// Verify parses a service token back into its issuer. Used by tests and the
// gateway simulator; the live gateway does its own validation.
func (s *ServiceTokenSource) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("invalid service token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid service token")
	}
	issuer, _ := claims["iss"].(string)
	return issuer, nil
}
