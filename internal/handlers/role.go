package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"guildchat-backend/internal/models"
	"guildchat-backend/internal/snowflake"
	"guildchat-backend/internal/validator"
)

func GetRoleList(w http.ResponseWriter, r *http.Request) {
	userID := ctxUserID(r)

	serverID, err := parseID(r, "serverID")
	if err != nil {
		http.Error(w, "Invalid server ID", http.StatusBadRequest)
		return
	}

	// any member can view the role list
	if !requireMembership(w, serverID, userID) {
		return
	}

	rows, err := db.Query(`
		SELECT id, server_id, name, color, position,
			can_manage_messages, can_kick_members, can_ban_members, can_manage_roles, can_manage_channels
		FROM server_roles WHERE server_id = ? ORDER BY position DESC
		`, serverID)
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	var roles []models.Role = []models.Role{}

	for rows.Next() {
		var role models.Role
		err := rows.Scan(&role.ID, &role.ServerID, &role.Name, &role.Color, &role.Position,
			&role.CanManageMessages, &role.CanKickMembers, &role.CanBanMembers, &role.CanManageRoles, &role.CanManageChannels)
		if err != nil {
			sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
			return
		}
		roles = append(roles, role)
	}

	if err := rows.Err(); err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	writeJSON(w, roles)
}

type rolePatch struct {
	Name              *string `json:"name"`
	Color             *string `json:"color"`
	Position          *int64  `json:"position"`
	CanManageMessages *bool   `json:"canManageMessages"`
	CanKickMembers    *bool   `json:"canKickMembers"`
	CanBanMembers     *bool   `json:"canBanMembers"`
	CanManageRoles    *bool   `json:"canManageRoles"`
	CanManageChannels *bool   `json:"canManageChannels"`
}

func CreateRole(w http.ResponseWriter, r *http.Request) {
	userID := ctxUserID(r)

	serverID, err := parseID(r, "serverID")
	if err != nil {
		http.Error(w, "Invalid server ID", http.StatusBadRequest)
		return
	}

	if !requireAdminRank(w, serverID, userID) {
		return
	}

	var patch rolePatch
	err = json.NewDecoder(r.Body).Decode(&patch)
	if err != nil {
		sugar.Debug(err)
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	role := models.Role{
		ServerID: serverID,
		Color:    "#99aab5",
	}
	if patch.Name != nil {
		role.Name = strings.TrimSpace(*patch.Name)
	}
	if err := validator.RoleName(role.Name); err != nil {
		http.Error(w, "Role name required", http.StatusBadRequest)
		return
	}
	if patch.Color != nil {
		role.Color = *patch.Color
	}
	if patch.Position != nil {
		role.Position = *patch.Position
	}
	if patch.CanManageMessages != nil {
		role.CanManageMessages = *patch.CanManageMessages
	}
	if patch.CanKickMembers != nil {
		role.CanKickMembers = *patch.CanKickMembers
	}
	if patch.CanBanMembers != nil {
		role.CanBanMembers = *patch.CanBanMembers
	}
	if patch.CanManageRoles != nil {
		role.CanManageRoles = *patch.CanManageRoles
	}
	if patch.CanManageChannels != nil {
		role.CanManageChannels = *patch.CanManageChannels
	}

	role.ID, err = snowflake.Generate()
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	_, err = db.Exec(`
		INSERT INTO server_roles (id, server_id, name, color, position,
			can_manage_messages, can_kick_members, can_ban_members, can_manage_roles, can_manage_channels)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, role.ID, role.ServerID, role.Name, role.Color, role.Position,
		role.CanManageMessages, role.CanKickMembers, role.CanBanMembers, role.CanManageRoles, role.CanManageChannels)
	if err != nil {
		if isDuplicate(err) {
			http.Error(w, "Role name already exists", http.StatusConflict)
			return
		}
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	writeJSON(w, role)
}

func UpdateRole(w http.ResponseWriter, r *http.Request) {
	userID := ctxUserID(r)

	serverID, err := parseID(r, "serverID")
	if err != nil {
		http.Error(w, "Invalid server ID", http.StatusBadRequest)
		return
	}

	roleID, err := parseID(r, "roleID")
	if err != nil {
		http.Error(w, "Invalid role ID", http.StatusBadRequest)
		return
	}

	if !requireAdminRank(w, serverID, userID) {
		return
	}

	role, err := readRole(serverID, roleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Role not found", http.StatusNotFound)
		} else {
			sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
		}
		return
	}

	var patch rolePatch
	err = json.NewDecoder(r.Body).Decode(&patch)
	if err != nil {
		sugar.Debug(err)
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if err := validator.RoleName(name); err != nil {
			http.Error(w, "Role name required", http.StatusBadRequest)
			return
		}
		role.Name = name
	}
	if patch.Color != nil {
		role.Color = *patch.Color
	}
	if patch.Position != nil {
		role.Position = *patch.Position
	}
	if patch.CanManageMessages != nil {
		role.CanManageMessages = *patch.CanManageMessages
	}
	if patch.CanKickMembers != nil {
		role.CanKickMembers = *patch.CanKickMembers
	}
	if patch.CanBanMembers != nil {
		role.CanBanMembers = *patch.CanBanMembers
	}
	if patch.CanManageRoles != nil {
		role.CanManageRoles = *patch.CanManageRoles
	}
	if patch.CanManageChannels != nil {
		role.CanManageChannels = *patch.CanManageChannels
	}

	_, err = db.Exec(`
		UPDATE server_roles SET name = ?, color = ?, position = ?,
			can_manage_messages = ?, can_kick_members = ?, can_ban_members = ?,
			can_manage_roles = ?, can_manage_channels = ?
		WHERE id = ?
		`, role.Name, role.Color, role.Position,
		role.CanManageMessages, role.CanKickMembers, role.CanBanMembers,
		role.CanManageRoles, role.CanManageChannels, roleID)
	if err != nil {
		if isDuplicate(err) {
			http.Error(w, "Role name already exists", http.StatusConflict)
			return
		}
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	writeJSON(w, role)
}

func DeleteRole(w http.ResponseWriter, r *http.Request) {
	userID := ctxUserID(r)

	serverID, err := parseID(r, "serverID")
	if err != nil {
		http.Error(w, "Invalid server ID", http.StatusBadRequest)
		return
	}

	roleID, err := parseID(r, "roleID")
	if err != nil {
		http.Error(w, "Invalid role ID", http.StatusBadRequest)
		return
	}

	if !requireAdminRank(w, serverID, userID) {
		return
	}

	if _, err := readRole(serverID, roleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Role not found", http.StatusNotFound)
		} else {
			sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
		}
		return
	}

	_, err = db.Exec("DELETE FROM server_roles WHERE id = ?", roleID)
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func readRole(serverID int64, roleID int64) (models.Role, error) {
	var role models.Role
	err := db.QueryRow(`
		SELECT id, server_id, name, color, position,
			can_manage_messages, can_kick_members, can_ban_members, can_manage_roles, can_manage_channels
		FROM server_roles WHERE id = ? AND server_id = ?
		`, roleID, serverID).
		Scan(&role.ID, &role.ServerID, &role.Name, &role.Color, &role.Position,
			&role.CanManageMessages, &role.CanKickMembers, &role.CanBanMembers, &role.CanManageRoles, &role.CanManageChannels)
	return role, err
}
