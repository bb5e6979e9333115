package jwt

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UserToken is the bearer credential for both the HTTP API and the realtime
// handshake. Username rides along so the hub can label typing events without
// an extra lookup.
type UserToken struct {
	UserID   int64  `json:"userID"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

var jwtSecret []byte
var isHttps bool

func Setup(_key string, _isHttps bool) {
	jwtSecret = []byte(_key)
	isHttps = _isHttps
}

func CreateToken(userID int64, username string) (string, error) {
	currentTime := time.Now().UTC()
	expirationDate := currentTime.Add(time.Hour * 24 * 7)

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, UserToken{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(currentTime),
			ExpiresAt: jwt.NewNumericDate(expirationDate),
		},
	})

	return token.SignedString(jwtSecret)
}

// CreateCookie wraps a signed token for browser clients that prefer cookie
// storage over the Authorization header.
func CreateCookie(tokenString string, expires time.Time) http.Cookie {
	return http.Cookie{
		Name:     "JWT",
		Value:    tokenString,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   isHttps,
		SameSite: http.SameSiteLaxMode,
	}
}

func VerifyToken(tokenString string) (UserToken, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserToken{}, func(token *jwt.Token) (interface{}, error) {
		return jwtSecret, nil
	})
	if err != nil {
		return UserToken{}, err
	} else if claims, ok := token.Claims.(*UserToken); ok {
		return *claims, nil
	} else {
		return UserToken{}, errors.New("invalid token")
	}
}
