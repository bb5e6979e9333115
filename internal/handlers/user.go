package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"guildchat-backend/internal/keyValue"
	"guildchat-backend/internal/models"
	"guildchat-backend/internal/validator"
)

// GetUserList returns everyone except the caller, used to start DMs.
func GetUserList(w http.ResponseWriter, r *http.Request) {
	userID := ctxUserID(r)

	rows, err := db.Query("SELECT id, username, avatar_color, avatar_url, created_at FROM users WHERE id != ? ORDER BY username", userID)
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	var users []models.User = []models.User{}

	for rows.Next() {
		var user models.User
		err := rows.Scan(&user.ID, &user.Username, &user.AvatarColor, &user.AvatarURL, &user.CreatedAt)
		if err != nil {
			sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
			return
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	writeJSON(w, users)
}

func GetOwnProfile(w http.ResponseWriter, r *http.Request) {
	userID := ctxUserID(r)

	var user models.User
	err := db.QueryRow("SELECT id, username, avatar_color, avatar_url, created_at FROM users WHERE id = ?", userID).
		Scan(&user.ID, &user.Username, &user.AvatarColor, &user.AvatarURL, &user.CreatedAt)
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	writeJSON(w, user)
}

func UpdateOwnProfile(w http.ResponseWriter, r *http.Request) {
	userID := ctxUserID(r)

	type updateRequest struct {
		Username    *string `json:"username"`
		AvatarColor *string `json:"avatarColor"`
		AvatarURL   *string `json:"avatarUrl"`
	}

	var update updateRequest
	err := json.NewDecoder(r.Body).Decode(&update)
	if err != nil {
		sugar.Debug(err)
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	if update.Username == nil && update.AvatarColor == nil && update.AvatarURL == nil {
		http.Error(w, "Nothing to update", http.StatusBadRequest)
		return
	}

	if update.Username != nil {
		if err := validator.Username(*update.Username); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		_, err = db.Exec("UPDATE users SET username = ? WHERE id = ?", *update.Username, userID)
		if err != nil {
			if isDuplicate(err) {
				http.Error(w, "Username already taken", http.StatusConflict)
				return
			}
			sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
			return
		}
	}

	if update.AvatarColor != nil {
		if _, err = db.Exec("UPDATE users SET avatar_color = ? WHERE id = ?", *update.AvatarColor, userID); err != nil {
			sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
			return
		}
	}

	if update.AvatarURL != nil {
		if _, err = db.Exec("UPDATE users SET avatar_url = ? WHERE id = ?", *update.AvatarURL, userID); err != nil {
			sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
			return
		}
	}

	GetOwnProfile(w, r)
}

// DeleteOwnAccount removes the user and everything hanging off them in one
// transaction: owned servers cascade to channels, members, invites and roles.
func DeleteOwnAccount(w http.ResponseWriter, r *http.Request) {
	userID := ctxUserID(r)

	tx, err := db.Begin()
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}
	defer tx.Rollback()

	statements := []string{
		"DELETE FROM servers WHERE owner_id = ?",
		"DELETE FROM dm_threads WHERE user1_id = ? OR user2_id = ?",
		"DELETE FROM messages WHERE user_id = ?",
		"DELETE FROM reactions WHERE user_id = ?",
		"DELETE FROM dm_reactions WHERE user_id = ?",
		"DELETE FROM invites WHERE created_by = ?",
		"DELETE FROM server_members WHERE user_id = ?",
		"DELETE FROM users WHERE id = ?",
	}

	for _, statement := range statements {
		args := []any{userID}
		if statement == "DELETE FROM dm_threads WHERE user1_id = ? OR user2_id = ?" {
			args = append(args, userID)
		}
		if _, err := tx.Exec(statement, args...); err != nil {
			sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
			return
		}
	}

	if err := tx.Commit(); err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	// drop the cached existence flag so the stale token stops working now
	if err := keyValue.Delete(fmt.Sprintf("user_exists:%d", userID)); err != nil {
		sugar.Error(err)
	}

	w.WriteHeader(http.StatusOK)
}
