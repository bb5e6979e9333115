package models

import "time"

// IDs are snowflakes and are serialized as JSON numbers on purpose:
// message IDs in particular have to stay numeric end-to-end or client-side
// reaction reconciliation breaks on string/number comparison.

type User struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username"`
	Password    []byte    `json:"-"`
	AvatarColor string    `json:"avatarColor"`
	AvatarURL   string    `json:"avatarUrl"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Server struct {
	ID        int64     `json:"id"`
	OwnerID   int64     `json:"ownerId"`
	Name      string    `json:"name"`
	Icon      string    `json:"icon"`
	CreatedAt time.Time `json:"createdAt"`

	// caller-specific fields joined in by list/join queries
	Role         string `json:"role,omitempty"`
	RolePosition int64  `json:"rolePosition,omitempty"`
}

type Channel struct {
	ID       int64  `json:"id"`
	ServerID int64  `json:"serverId"`
	Name     string `json:"name"`
}

type Message struct {
	ID            int64      `json:"id"`
	ChannelID     int64      `json:"channelId"`
	UserID        int64      `json:"userId"`
	Content       string     `json:"content"`
	AttachmentURL string     `json:"attachmentUrl"`
	CreatedAt     time.Time  `json:"createdAt"`
	Username      string     `json:"username"`
	AvatarColor   string     `json:"avatarColor"`
	AvatarURL     string     `json:"avatarUrl"`
	Reactions     []Reaction `json:"reactions,omitempty"`
}

type Reaction struct {
	Emoji  string `json:"emoji"`
	UserID int64  `json:"userId"`
}

type DMThread struct {
	ID        int64     `json:"id"`
	User1ID   int64     `json:"user1Id"`
	User2ID   int64     `json:"user2Id"`
	CreatedAt time.Time `json:"createdAt"`
}

type DMMessage struct {
	ID            int64      `json:"id"`
	ThreadID      int64      `json:"threadId"`
	SenderID      int64      `json:"userId"`
	Content       string     `json:"content"`
	AttachmentURL string     `json:"attachmentUrl"`
	CreatedAt     time.Time  `json:"createdAt"`
	Username      string     `json:"username"`
	AvatarColor   string     `json:"avatarColor"`
	AvatarURL     string     `json:"avatarUrl"`
	Reactions     []Reaction `json:"reactions,omitempty"`
}

type Role struct {
	ID                int64  `json:"id"`
	ServerID          int64  `json:"serverId"`
	Name              string `json:"name"`
	Color             string `json:"color"`
	Position          int64  `json:"position"`
	CanManageMessages bool   `json:"canManageMessages"`
	CanKickMembers    bool   `json:"canKickMembers"`
	CanBanMembers     bool   `json:"canBanMembers"`
	CanManageRoles    bool   `json:"canManageRoles"`
	CanManageChannels bool   `json:"canManageChannels"`
}

type Member struct {
	UserID       int64  `json:"id"`
	Username     string `json:"username"`
	AvatarColor  string `json:"avatarColor"`
	AvatarURL    string `json:"avatarUrl"`
	Role         string `json:"role"`
	RoleID       int64  `json:"roleId,omitempty"`
	RoleName     string `json:"roleName,omitempty"`
	RoleColor    string `json:"roleColor,omitempty"`
	RolePosition int64  `json:"rolePosition,omitempty"`
}

type Ban struct {
	ServerID         int64     `json:"serverId"`
	UserID           int64     `json:"userId"`
	BannedBy         int64     `json:"bannedBy"`
	Reason           string    `json:"reason"`
	BannedAt         time.Time `json:"bannedAt"`
	Username         string    `json:"username"`
	AvatarColor      string    `json:"avatarColor"`
	AvatarURL        string    `json:"avatarUrl"`
	BannedByUsername string    `json:"bannedByUsername"`
}

type Invite struct {
	Code      string    `json:"code"`
	ServerID  int64     `json:"serverId"`
	CreatedBy int64     `json:"createdBy"`
	Uses      int64     `json:"uses"`
	CreatedAt time.Time `json:"createdAt"`
}

type ConfigFile struct {
	Address           string
	Port              string
	BehindNginx       bool
	TlsCert           string
	TlsKey            string
	Cors              bool
	PrintHttpRequests bool
	LogToFile         bool
	LogLevel          string
	JwtSecret         string
	SnowflakeWorkerID int64
	SelfContained     bool
	DbUser            string
	DbPassword        string
	DbAddress         string
	DbPort            string
	DbDatabase        string
	RedisAddress      string
	RedisPassword     string
}
