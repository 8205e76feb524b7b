package jwt

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// HostClaims binds a durable host identity to one room, so a host
// that reloads resumes ownership instead of creating a duplicate
type HostClaims struct {
	HostID uuid.UUID `json:"host_id"`
	RoomID string    `json:"room_id"`
	jwt.RegisteredClaims
}

type Service struct {
	secretKey     []byte
	tokenDuration time.Duration
}

// NewService creates a new JWT service
func NewService(secretKey string, tokenDuration time.Duration) *Service {
	return &Service{
		secretKey:     []byte(secretKey),
		tokenDuration: tokenDuration,
	}
}

// GenerateHostToken creates a signed token proving room ownership
func (s *Service) GenerateHostToken(hostID uuid.UUID, roomID string) (string, error) {
	claims := HostClaims{
		HostID: hostID,
		RoomID: roomID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secretKey)
}

// ValidateHostToken validates and parses a host token
func (s *Service) ValidateHostToken(tokenString string) (*HostClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &HostClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secretKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*HostClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("token is invalid")
	}

	if claims.HostID == uuid.Nil {
		return nil, fmt.Errorf("invalid host token: missing host_id")
	}

	if claims.RoomID == "" {
		return nil, fmt.Errorf("invalid host token: missing room_id")
	}

	return claims, nil
}
