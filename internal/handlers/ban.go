package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"guildchat-backend/internal/database"
	"guildchat-backend/internal/hub"
	"guildchat-backend/internal/models"
	"guildchat-backend/internal/permissions"
)

func GetBanList(w http.ResponseWriter, r *http.Request) {
	userID := ctxUserID(r)

	serverID, err := parseID(r, "serverID")
	if err != nil {
		http.Error(w, "Invalid server ID", http.StatusBadRequest)
		return
	}

	if !requireCapability(w, serverID, userID, permissions.CapBanMembers) {
		return
	}

	rows, err := db.Query(`
		SELECT b.user_id, u.username, u.avatar_color, b.reason, b.banned_by, bu.username, b.banned_at
		FROM server_bans b
		JOIN users u ON u.id = b.user_id
		JOIN users bu ON bu.id = b.banned_by
		WHERE b.server_id = ?
		ORDER BY b.banned_at DESC
		`, serverID)
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	var bans []models.Ban = []models.Ban{}

	for rows.Next() {
		var ban models.Ban
		err := rows.Scan(&ban.UserID, &ban.Username, &ban.AvatarColor, &ban.Reason, &ban.BannedBy, &ban.BannedByUsername, &ban.BannedAt)
		if err != nil {
			sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
			return
		}
		ban.ServerID = serverID
		bans = append(bans, ban)
	}

	if err := rows.Err(); err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	writeJSON(w, bans)
}

// BanMember removes the target's membership and records the ban in a single
// transaction, so a crash can't leave someone banned but still inside.
func BanMember(w http.ResponseWriter, r *http.Request) {
	actorID := ctxUserID(r)

	serverID, err := parseID(r, "serverID")
	if err != nil {
		http.Error(w, "Invalid server ID", http.StatusBadRequest)
		return
	}

	targetID, err := parseID(r, "userID")
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	if targetID == actorID {
		http.Error(w, "Cannot ban yourself", http.StatusBadRequest)
		return
	}

	if !requireCapability(w, serverID, actorID, permissions.CapBanMembers) {
		return
	}

	target, err := permissions.GetMembership(serverID, targetID)
	if err != nil {
		if errors.Is(err, permissions.ErrNotMember) {
			http.Error(w, "Member not found", http.StatusNotFound)
		} else {
			sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
		}
		return
	}

	if target.IsAdmin() {
		http.Error(w, "Cannot ban an admin", http.StatusForbidden)
		return
	}

	// banning a role holder is reserved for admins and the owner
	if target.RoleID.Valid {
		actorRank, err := permissions.AuthorityRank(serverID, actorID)
		if err != nil {
			sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
			return
		}
		if actorRank < permissions.AdminRank {
			http.Error(w, "Only admins can ban role holders", http.StatusForbidden)
			return
		}
	}

	type banRequest struct {
		Reason string `json:"reason"`
	}
	var request banRequest
	if r.Body != nil {
		// reason is optional, a bad body is treated as no reason
		_ = json.NewDecoder(r.Body).Decode(&request)
	}

	tx, err := db.Begin()
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}
	defer tx.Rollback()

	_, err = tx.Exec("DELETE FROM server_members WHERE server_id = ? AND user_id = ?", serverID, targetID)
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	_, err = tx.Exec(database.InsertOrReplace()+" INTO server_bans (server_id, user_id, reason, banned_by, banned_at) VALUES (?, ?, ?, ?, ?)",
		serverID, targetID, request.Reason, actorID, time.Now().UTC())
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(); err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	if err := hub.Emit(hub.MemberBanned, memberRemovalNotice{ServerID: serverID, UserID: targetID}, hub.UserRoom(targetID)); err != nil {
		sugar.Error(err)
	}

	w.WriteHeader(http.StatusOK)
}

func UnbanMember(w http.ResponseWriter, r *http.Request) {
	actorID := ctxUserID(r)

	serverID, err := parseID(r, "serverID")
	if err != nil {
		http.Error(w, "Invalid server ID", http.StatusBadRequest)
		return
	}

	targetID, err := parseID(r, "userID")
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	if !requireCapability(w, serverID, actorID, permissions.CapBanMembers) {
		return
	}

	result, err := db.Exec("DELETE FROM server_bans WHERE server_id = ? AND user_id = ?", serverID, targetID)
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		http.Error(w, "Ban not found", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func KickMember(w http.ResponseWriter, r *http.Request) {
	actorID := ctxUserID(r)

	serverID, err := parseID(r, "serverID")
	if err != nil {
		http.Error(w, "Invalid server ID", http.StatusBadRequest)
		return
	}

	targetID, err := parseID(r, "userID")
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	if targetID == actorID {
		http.Error(w, "Cannot kick yourself", http.StatusBadRequest)
		return
	}

	if !requireCapability(w, serverID, actorID, permissions.CapKickMembers) {
		return
	}

	target, err := permissions.GetMembership(serverID, targetID)
	if err != nil {
		if errors.Is(err, permissions.ErrNotMember) {
			http.Error(w, "Member not found", http.StatusNotFound)
		} else {
			sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
		}
		return
	}

	if target.IsAdmin() {
		http.Error(w, "Cannot kick an admin", http.StatusForbidden)
		return
	}

	_, err = db.Exec("DELETE FROM server_members WHERE server_id = ? AND user_id = ?", serverID, targetID)
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	if err := hub.Emit(hub.MemberKicked, memberRemovalNotice{ServerID: serverID, UserID: targetID}, hub.UserRoom(targetID)); err != nil {
		sugar.Error(err)
	}

	w.WriteHeader(http.StatusOK)
}

type memberRemovalNotice struct {
	ServerID int64 `json:"serverId"`
	UserID   int64 `json:"userId"`
}
