package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"time"

	"guildchat-backend/internal/jwt"
	"guildchat-backend/internal/models"
	"guildchat-backend/internal/snowflake"
	"guildchat-backend/internal/validator"

	playgroundValidator "github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
)

var validate = playgroundValidator.New()

var avatarColors = []string{"#5865f2", "#3ba55c", "#faa61a", "#ed4245", "#9b59b6", "#1abc9c", "#e91e63", "#ff5722"}

type credentialsRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

func Register(w http.ResponseWriter, r *http.Request) {
	var registration credentialsRequest
	err := json.NewDecoder(r.Body).Decode(&registration)
	if err != nil {
		sugar.Debug(err)
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	if err := validate.Struct(registration); err != nil {
		sugar.Debug(err)
		http.Error(w, "Username and password required", http.StatusBadRequest)
		return
	}

	if err := validator.Username(registration.Username); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validator.Password(registration.Password); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	userID, err := snowflake.Generate()
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	passwordBytes, err := bcrypt.GenerateFromPassword([]byte(registration.Password), 10)
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	user := models.User{
		ID:          userID,
		Username:    registration.Username,
		Password:    passwordBytes,
		AvatarColor: avatarColors[rand.Intn(len(avatarColors))],
		CreatedAt:   time.Now().UTC(),
	}

	_, err = db.Exec("INSERT INTO users (id, username, password, avatar_color, avatar_url, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		user.ID, user.Username, user.Password, user.AvatarColor, user.AvatarURL, user.CreatedAt)
	if err != nil {
		if isDuplicate(err) {
			http.Error(w, "Username already taken", http.StatusConflict)
			return
		}
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	token, err := jwt.CreateToken(user.ID, user.Username)
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	setAuthCookie(w, token)
	writeJSON(w, authResponse{Token: token, User: user})
}

// setAuthCookie mirrors the token into a cookie for browser clients, the
// middleware accepts either transport.
func setAuthCookie(w http.ResponseWriter, token string) {
	cookie := jwt.CreateCookie(token, time.Now().UTC().Add(time.Hour*24*7))
	http.SetCookie(w, &cookie)
}

func Login(w http.ResponseWriter, r *http.Request) {
	var login credentialsRequest
	err := json.NewDecoder(r.Body).Decode(&login)
	if err != nil {
		sugar.Debug(err)
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	var user models.User
	err = db.QueryRow("SELECT id, username, password, avatar_color, avatar_url, created_at FROM users WHERE username = ?", login.Username).
		Scan(&user.ID, &user.Username, &user.Password, &user.AvatarColor, &user.AvatarURL, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		} else {
			sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
		}
		return
	}

	err = bcrypt.CompareHashAndPassword(user.Password, []byte(login.Password))
	if err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := jwt.CreateToken(user.ID, user.Username)
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	setAuthCookie(w, token)
	writeJSON(w, authResponse{Token: token, User: user})
}
