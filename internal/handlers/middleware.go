package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"guildchat-backend/internal/jwt"
	"guildchat-backend/internal/keyValue"
)

type UserIDKeyType struct{}
type UsernameKeyType struct{}

func AllowCors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// bearerToken pulls the credential from the Authorization header, the token
// query parameter (websocket handshakes can't set headers from a browser) or
// the JWT cookie, in that order.
func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if after, found := strings.CutPrefix(authHeader, "Bearer "); found {
		return after
	}

	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	cookie, err := r.Cookie("JWT")
	if err != nil {
		return ""
	}
	return cookie.Value
}

// UserVerifier authenticates the request before any state can be touched.
// The authenticated user's id and username travel down via context.
func UserVerifier(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			http.Error(w, "No credential was provided", http.StatusUnauthorized)
			return
		}

		userToken, err := jwt.VerifyToken(token)
		if err != nil {
			sugar.Debug(err)
			http.Error(w, "Couldn't verify token", http.StatusUnauthorized)
			return
		}

		// check if the user still exists, deleted accounts keep their
		// token until it expires otherwise
		key := fmt.Sprintf("user_exists:%d", userToken.UserID)

		userFound := false

		value, err := keyValue.Get(key)
		if err != nil {
			sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
			return
		}

		if value == "" { // user isn't cached
			dbErr := db.QueryRow("SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)", userToken.UserID).Scan(&userFound)
			if dbErr != nil {
				sugar.Error(dbErr)
				http.Error(w, "", http.StatusInternalServerError)
				return
			}
			if userFound {
				err = keyValue.Set(key, "y", 15*time.Minute)
				if err != nil {
					sugar.Error(err)
					http.Error(w, "", http.StatusInternalServerError)
					return
				}
				sugar.Debugf("User ID %d was found in database and was cached", userToken.UserID)
			}
		} else {
			userFound = true
		}

		if !userFound {
			http.Error(w, "", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UserIDKeyType{}, userToken.UserID)
		ctx = context.WithValue(ctx, UsernameKeyType{}, userToken.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func ctxUserID(r *http.Request) int64 {
	return r.Context().Value(UserIDKeyType{}).(int64)
}

func ctxUsername(r *http.Request) string {
	return r.Context().Value(UsernameKeyType{}).(string)
}
