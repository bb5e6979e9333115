package permissions

import (
	"database/sql"
	"errors"

	"go.uber.org/zap"
)

// Owner, the legacy Admin tag and custom role positions all live in one
// ranking space, so any two members of a server compare with plain integers.
const (
	OwnerRank    int64 = 1000
	AdminRank    int64 = 500
	BaselineRank int64 = 0
)

type Capability string

const (
	CapManageMessages Capability = "can_manage_messages"
	CapKickMembers    Capability = "can_kick_members"
	CapBanMembers     Capability = "can_ban_members"
	CapManageRoles    Capability = "can_manage_roles"
	CapManageChannels Capability = "can_manage_channels"
)

var ErrNotMember = errors.New("not a member of this server")

var sugar *zap.SugaredLogger
var db *sql.DB

func Setup(_sugar *zap.SugaredLogger, _db *sql.DB) {
	sugar = _sugar
	db = _db
}

// Membership is the server_members row resolved together with the member's
// custom role flags and the server's owner.
type Membership struct {
	ServerID int64
	UserID   int64
	OwnerID  int64
	Role     string
	RoleID   sql.NullInt64

	Position          sql.NullInt64
	CanManageMessages sql.NullBool
	CanKickMembers    sql.NullBool
	CanBanMembers     sql.NullBool
	CanManageRoles    sql.NullBool
	CanManageChannels sql.NullBool
}

func GetMembership(serverID int64, userID int64) (Membership, error) {
	m := Membership{ServerID: serverID, UserID: userID}

	err := db.QueryRow(`
		SELECT
			s.owner_id, sm.role, sm.role_id,
			sr.position, sr.can_manage_messages, sr.can_kick_members,
			sr.can_ban_members, sr.can_manage_roles, sr.can_manage_channels
		FROM
			server_members sm
		JOIN
			servers s ON s.id = sm.server_id
		LEFT JOIN
			server_roles sr ON sr.id = sm.role_id
		WHERE
			sm.server_id = ? AND sm.user_id = ?
		`, serverID, userID).Scan(
		&m.OwnerID, &m.Role, &m.RoleID,
		&m.Position, &m.CanManageMessages, &m.CanKickMembers,
		&m.CanBanMembers, &m.CanManageRoles, &m.CanManageChannels)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return m, ErrNotMember
		}
		return m, err
	}

	return m, nil
}

func (m Membership) IsOwner() bool {
	return m.OwnerID == m.UserID
}

func (m Membership) IsAdmin() bool {
	return m.Role == "Admin"
}

// HasCapability reports whether the member holds the named capability.
// Owner and legacy Admin bypass all named-capability checks.
func (m Membership) HasCapability(cap Capability) bool {
	if m.IsOwner() || m.IsAdmin() {
		return true
	}

	var flag sql.NullBool
	switch cap {
	case CapManageMessages:
		flag = m.CanManageMessages
	case CapKickMembers:
		flag = m.CanKickMembers
	case CapBanMembers:
		flag = m.CanBanMembers
	case CapManageRoles:
		flag = m.CanManageRoles
	case CapManageChannels:
		flag = m.CanManageChannels
	default:
		sugar.Errorf("Unknown capability [%s] was checked", cap)
		return false
	}

	return flag.Valid && flag.Bool
}

// Rank returns the membership's place in the authority total order.
func (m Membership) Rank() int64 {
	if m.IsOwner() {
		return OwnerRank
	}
	if m.IsAdmin() {
		return AdminRank
	}
	if m.Position.Valid {
		return m.Position.Int64
	}
	return BaselineRank
}

// AuthorityRank resolves the effective rank of a user in a server.
// Non-members resolve to ErrNotMember, never to a rank.
func AuthorityRank(serverID int64, userID int64) (int64, error) {
	m, err := GetMembership(serverID, userID)
	if err != nil {
		return 0, err
	}
	return m.Rank(), nil
}

// RolePosition returns the position of a custom role belonging to the server,
// or sql.ErrNoRows when the role doesn't exist in that server.
func RolePosition(serverID int64, roleID int64) (int64, error) {
	var position int64
	err := db.QueryRow("SELECT position FROM server_roles WHERE id = ? AND server_id = ?", roleID, serverID).Scan(&position)
	return position, err
}
