package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"guildchat-backend/internal/hub"
	"guildchat-backend/internal/models"
	"guildchat-backend/internal/permissions"
	"guildchat-backend/internal/snowflake"

	"github.com/google/uuid"
)

func CreateServer(w http.ResponseWriter, r *http.Request) {
	userID := ctxUserID(r)

	type createRequest struct {
		Name string `json:"name"`
		Icon string `json:"icon"`
	}

	var create createRequest
	err := json.NewDecoder(r.Body).Decode(&create)
	if err != nil || strings.TrimSpace(create.Name) == "" {
		http.Error(w, "Name required", http.StatusBadRequest)
		return
	}

	serverID, err := snowflake.Generate()
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	channelID, err := snowflake.Generate()
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	server := models.Server{
		ID:        serverID,
		OwnerID:   userID,
		Name:      strings.TrimSpace(create.Name),
		Icon:      create.Icon,
		CreatedAt: time.Now().UTC(),
		Role:      "Admin",
	}

	tx, err := db.Begin()
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}
	defer tx.Rollback()

	_, err = tx.Exec("INSERT INTO servers (id, owner_id, name, icon, created_at) VALUES (?, ?, ?, ?, ?)",
		server.ID, server.OwnerID, server.Name, server.Icon, server.CreatedAt)
	if err == nil {
		// the creator joins as a legacy Admin
		_, err = tx.Exec("INSERT INTO server_members (server_id, user_id, role, since) VALUES (?, ?, 'Admin', ?)",
			serverID, userID, time.Now().UTC())
	}
	if err == nil {
		_, err = tx.Exec("INSERT INTO channels (id, server_id, name) VALUES (?, ?, 'general')",
			channelID, serverID)
	}
	if err == nil {
		err = tx.Commit()
	}
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	if err := hub.Emit(hub.ServerCreated, server, hub.UserRoom(userID)); err != nil {
		sugar.Error(err)
	}

	w.WriteHeader(http.StatusCreated)
	writeJSON(w, server)
}

func GetServerList(w http.ResponseWriter, r *http.Request) {
	userID := ctxUserID(r)

	rows, err := db.Query(`
		SELECT
			s.id, s.owner_id, s.name, s.icon, s.created_at,
			sm.role, sr.position
		FROM
			servers s
		JOIN
			server_members sm ON s.id = sm.server_id
		LEFT JOIN
			server_roles sr ON sm.role_id = sr.id
		WHERE
			sm.user_id = ?
		ORDER BY
			s.created_at
		`, userID)
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	var servers []models.Server = []models.Server{}

	for rows.Next() {
		var server models.Server
		var position sql.NullInt64

		err := rows.Scan(&server.ID, &server.OwnerID, &server.Name, &server.Icon, &server.CreatedAt, &server.Role, &position)
		if err != nil {
			sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
			return
		}
		server.RolePosition = position.Int64

		servers = append(servers, server)
	}

	if err := rows.Err(); err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	writeJSON(w, servers)
}

func RenameServer(w http.ResponseWriter, r *http.Request) {
	userID := ctxUserID(r)

	serverID, err := parseID(r, "serverID")
	if err != nil {
		http.Error(w, "Invalid server ID", http.StatusBadRequest)
		return
	}

	type renameRequest struct {
		Name string `json:"name"`
	}

	var rename renameRequest
	err = json.NewDecoder(r.Body).Decode(&rename)
	if err != nil || strings.TrimSpace(rename.Name) == "" {
		http.Error(w, "Name required", http.StatusBadRequest)
		return
	}

	if !requireAdminRank(w, serverID, userID) {
		return
	}

	_, err = db.Exec("UPDATE servers SET name = ? WHERE id = ?", strings.TrimSpace(rename.Name), serverID)
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// DeleteServer drops the server and its dependents in one transaction, so a
// crash mid-way can't leave a half-deleted server behind.
func DeleteServer(w http.ResponseWriter, r *http.Request) {
	userID := ctxUserID(r)

	serverID, err := parseID(r, "serverID")
	if err != nil {
		http.Error(w, "Invalid server ID", http.StatusBadRequest)
		return
	}

	if !requireAdminRank(w, serverID, userID) {
		return
	}

	tx, err := db.Begin()
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}
	defer tx.Rollback()

	statements := []string{
		"DELETE FROM messages WHERE channel_id IN (SELECT id FROM channels WHERE server_id = ?)",
		"DELETE FROM channels WHERE server_id = ?",
		"DELETE FROM invites WHERE server_id = ?",
		"DELETE FROM server_bans WHERE server_id = ?",
		"DELETE FROM server_members WHERE server_id = ?",
		"DELETE FROM server_roles WHERE server_id = ?",
		"DELETE FROM servers WHERE id = ?",
	}

	for _, statement := range statements {
		if _, err := tx.Exec(statement, serverID); err != nil {
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

	w.WriteHeader(http.StatusOK)
}

func GetChannelList(w http.ResponseWriter, r *http.Request) {
	userID := ctxUserID(r)

	serverID, err := parseID(r, "serverID")
	if err != nil {
		http.Error(w, "Invalid server ID", http.StatusBadRequest)
		return
	}

	if !requireMembership(w, serverID, userID) {
		return
	}

	rows, err := db.Query("SELECT id, server_id, name FROM channels WHERE server_id = ? ORDER BY id", serverID)
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	var channels []models.Channel = []models.Channel{}

	for rows.Next() {
		var channel models.Channel
		err := rows.Scan(&channel.ID, &channel.ServerID, &channel.Name)
		if err != nil {
			sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
			return
		}
		channels = append(channels, channel)
	}

	if err := rows.Err(); err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	writeJSON(w, channels)
}

func CreateChannel(w http.ResponseWriter, r *http.Request) {
	userID := ctxUserID(r)

	serverID, err := parseID(r, "serverID")
	if err != nil {
		http.Error(w, "Invalid server ID", http.StatusBadRequest)
		return
	}

	type createRequest struct {
		Name string `json:"name"`
	}

	var create createRequest
	err = json.NewDecoder(r.Body).Decode(&create)
	if err != nil || strings.TrimSpace(create.Name) == "" {
		http.Error(w, "Name required", http.StatusBadRequest)
		return
	}

	if !requireCapability(w, serverID, userID, permissions.CapManageChannels) {
		return
	}

	channelID, err := snowflake.Generate()
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	channel := models.Channel{
		ID:       channelID,
		ServerID: serverID,
		Name:     slugChannelName(create.Name),
	}

	_, err = db.Exec("INSERT INTO channels (id, server_id, name) VALUES (?, ?, ?)", channel.ID, channel.ServerID, channel.Name)
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	notifyMembers(serverID, hub.ChannelCreated, channel)

	w.WriteHeader(http.StatusCreated)
	writeJSON(w, channel)
}

func slugChannelName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(name))), "-")
}

// notifyMembers emits an event to every member's personal scope.
func notifyMembers(serverID int64, event string, payload any) {
	rows, err := db.Query("SELECT user_id FROM server_members WHERE server_id = ?", serverID)
	if err != nil {
		sugar.Error(err)
		return
	}
	defer rows.Close()

	for rows.Next() {
		var memberID int64
		if err := rows.Scan(&memberID); err != nil {
			sugar.Error(err)
			return
		}
		if err := hub.Emit(event, payload, hub.UserRoom(memberID)); err != nil {
			sugar.Error(err)
		}
	}

	if err := rows.Err(); err != nil {
		sugar.Error(err)
	}
}

func GetMemberList(w http.ResponseWriter, r *http.Request) {
	userID := ctxUserID(r)

	serverID, err := parseID(r, "serverID")
	if err != nil {
		http.Error(w, "Invalid server ID", http.StatusBadRequest)
		return
	}

	if !requireMembership(w, serverID, userID) {
		return
	}

	rows, err := db.Query(`
		SELECT
			u.id, u.username, u.avatar_color, u.avatar_url,
			sm.role, sm.role_id,
			sr.name, sr.color, sr.position
		FROM
			users u
		JOIN
			server_members sm ON u.id = sm.user_id
		LEFT JOIN
			server_roles sr ON sr.id = sm.role_id
		WHERE
			sm.server_id = ?
		ORDER BY
			COALESCE(sr.position, -1) DESC, u.username ASC
		`, serverID)
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	var members []models.Member = []models.Member{}

	for rows.Next() {
		var member models.Member
		var roleID, rolePosition sql.NullInt64
		var roleName, roleColor sql.NullString

		err := rows.Scan(&member.UserID, &member.Username, &member.AvatarColor, &member.AvatarURL,
			&member.Role, &roleID, &roleName, &roleColor, &rolePosition)
		if err != nil {
			sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
			return
		}

		member.RoleID = roleID.Int64
		member.RoleName = roleName.String
		member.RoleColor = roleColor.String
		member.RolePosition = rolePosition.Int64

		members = append(members, member)
	}

	if err := rows.Err(); err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	writeJSON(w, members)
}

func CreateInvite(w http.ResponseWriter, r *http.Request) {
	userID := ctxUserID(r)

	serverID, err := parseID(r, "serverID")
	if err != nil {
		http.Error(w, "Invalid server ID", http.StatusBadRequest)
		return
	}

	if !requireAdminRank(w, serverID, userID) {
		return
	}

	code := uuid.NewString()

	_, err = db.Exec("INSERT INTO invites (code, server_id, created_by, uses, created_at) VALUES (?, ?, ?, 0, ?)",
		code, serverID, userID, time.Now().UTC())
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]string{"code": code})
}

func JoinServer(w http.ResponseWriter, r *http.Request) {
	userID := ctxUserID(r)
	code := chiURLParam(r, "code")

	var invite models.Invite
	err := db.QueryRow("SELECT code, server_id, created_by, uses FROM invites WHERE code = ?", code).
		Scan(&invite.Code, &invite.ServerID, &invite.CreatedBy, &invite.Uses)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Invalid invite code", http.StatusNotFound)
		} else {
			sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
		}
		return
	}

	// a standing ban blocks rejoining through any invite
	var banned bool
	err = db.QueryRow("SELECT EXISTS(SELECT 1 FROM server_bans WHERE server_id = ? AND user_id = ?)", invite.ServerID, userID).Scan(&banned)
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}
	if banned {
		http.Error(w, "You are banned from this server", http.StatusForbidden)
		return
	}

	tx, err := db.Begin()
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}
	defer tx.Rollback()

	result, err := tx.Exec(insertIgnorePrefix()+" INTO server_members (server_id, user_id, role, since) VALUES (?, ?, 'Member', ?)",
		invite.ServerID, userID, time.Now().UTC())
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	// the counter only moves when the invite actually added a member,
	// re-joining with the same code is a no-op
	affected, err := result.RowsAffected()
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}
	if affected > 0 {
		if _, err := tx.Exec("UPDATE invites SET uses = uses + 1 WHERE code = ?", code); err != nil {
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

	var server models.Server
	err = db.QueryRow(`
		SELECT s.id, s.owner_id, s.name, s.icon, s.created_at, sm.role
		FROM servers s
		JOIN server_members sm ON s.id = sm.server_id
		WHERE s.id = ? AND sm.user_id = ?
		`, invite.ServerID, userID).
		Scan(&server.ID, &server.OwnerID, &server.Name, &server.Icon, &server.CreatedAt, &server.Role)
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	if err := hub.Emit(hub.ServerJoined, server, hub.UserRoom(userID)); err != nil {
		sugar.Error(err)
	}

	writeJSON(w, server)
}

func LeaveServer(w http.ResponseWriter, r *http.Request) {
	userID := ctxUserID(r)

	serverID, err := parseID(r, "serverID")
	if err != nil {
		http.Error(w, "Invalid server ID", http.StatusBadRequest)
		return
	}

	var ownerID int64
	err = db.QueryRow("SELECT owner_id FROM servers WHERE id = ?", serverID).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Server not found", http.StatusNotFound)
		} else {
			sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
		}
		return
	}

	if ownerID == userID {
		http.Error(w, "Owner cannot leave the server, delete it instead", http.StatusBadRequest)
		return
	}

	_, err = db.Exec("DELETE FROM server_members WHERE server_id = ? AND user_id = ?", serverID, userID)
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// AssignRole changes a member's custom role, subject to the hierarchy: the
// actor must outrank both the target's current rank and the new role's
// position, and nobody touches their own role.
func AssignRole(w http.ResponseWriter, r *http.Request) {
	userID := ctxUserID(r)

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

	if targetID == userID {
		http.Error(w, "You cannot change your own role", http.StatusForbidden)
		return
	}

	type assignRequest struct {
		RoleID int64 `json:"roleId"`
	}

	var assign assignRequest
	err = json.NewDecoder(r.Body).Decode(&assign)
	if err != nil {
		sugar.Debug(err)
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	actor, err := permissions.GetMembership(serverID, userID)
	if err != nil {
		if errors.Is(err, permissions.ErrNotMember) {
			http.Error(w, "Not a member of this server", http.StatusForbidden)
		} else {
			sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
		}
		return
	}

	if !actor.HasCapability(permissions.CapManageRoles) {
		http.Error(w, "Missing permission: can_manage_roles", http.StatusForbidden)
		return
	}

	targetRank, err := permissions.AuthorityRank(serverID, targetID)
	if err != nil {
		if errors.Is(err, permissions.ErrNotMember) {
			http.Error(w, "Member not found", http.StatusNotFound)
		} else {
			sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
		}
		return
	}

	actorRank := actor.Rank()
	if actorRank <= targetRank {
		http.Error(w, "Cannot modify a member with an equal or higher role", http.StatusForbidden)
		return
	}

	var newRolePosition int64
	if assign.RoleID != 0 {
		newRolePosition, err = permissions.RolePosition(serverID, assign.RoleID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				http.Error(w, "Role not found in this server", http.StatusBadRequest)
			} else {
				sugar.Error(err)
				http.Error(w, "", http.StatusInternalServerError)
			}
			return
		}
	}

	if actorRank <= newRolePosition {
		http.Error(w, "Cannot assign a role equal to or higher than your own", http.StatusForbidden)
		return
	}

	var roleID any
	if assign.RoleID != 0 {
		roleID = assign.RoleID
	}

	_, err = db.Exec("UPDATE server_members SET role_id = ? WHERE server_id = ? AND user_id = ?", roleID, serverID, targetID)
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}
