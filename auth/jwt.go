package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

type JWTClaimUser struct {
	UserID       string `json:"u"`
	TokenVersion int    `json:"v"`

	jwt.RegisteredClaims
}

func SignJWT(secret string, claim jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claim)

	return token.SignedString([]byte(secret))
}

func VerifyJWT(secret string, token string) (*JWTClaimUser, error) {
	claims := &JWTClaimUser{}

	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("bad jwt signing method, expected HMAC but got %v", t.Header["alg"])
		}

		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	return claims, nil
}

// NewUserClaims builds claims for userID expiring after ttl.
func NewUserClaims(userID string, ttl time.Duration) *JWTClaimUser {
	now := time.Now()

	return &JWTClaimUser{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "aiusage",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}
