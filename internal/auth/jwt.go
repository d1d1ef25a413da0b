package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// ErrInvalidToken is returned for tokens that fail verification or carry no subject.
var ErrInvalidToken = errors.New("invalid session token")

// GenerateSessionToken creates a signed token whose subject is the user id
func GenerateSessionToken(userID string, secret []byte, ttl time.Duration) (string, int64, error) {
	if userID == "" {
		return "", 0, fmt.Errorf("user id is required")
	}
	expirationTime := time.Now().Add(ttl).Unix()
	claims := jwt.MapClaims{
		"sub": userID,         // Subject: user id that scopes the remote record
		"exp": expirationTime, // Expiration timestamp
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedToken, err := token.SignedString(secret)
	if err != nil {
		return "", 0, err
	}
	return signedToken, expirationTime, nil
}

// DecodeSessionToken verifies the token and returns its subject
func DecodeSessionToken(tokenString string, secret []byte) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", ErrInvalidToken
	}
	return sub, nil
}
