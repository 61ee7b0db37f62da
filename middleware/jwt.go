package middleware

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenIssuer is the iss claim on every token this server signs.
const TokenIssuer = "ucs-mail"

// Claims is the JWT payload. A token is bound to the character whose
// mailbox key was presented when it was issued.
type Claims struct {
	AccountID uint32 `json:"account_id"`
	CharID    uint32 `json:"char_id"`
	CharName  string `json:"char_name"`
	jwt.RegisteredClaims
}

// GenerateToken signs an HS256 token for the character.
func GenerateToken(accountID, charID uint32, charName, secret string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt: empty signing secret")
	}
	now := time.Now()
	claims := &Claims{
		AccountID: accountID,
		CharID:    charID,
		CharName:  charName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    TokenIssuer,
			Subject:   charName,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			// Two tokens issued in the same second must still differ.
			ID: newTraceID(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken validates signature, expiry and issuer and returns the claims.
func ParseToken(tokenStr, secret string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims,
		func(*jwt.Token) (interface{}, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}
