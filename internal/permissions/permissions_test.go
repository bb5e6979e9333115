package permissions

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"guildchat-backend/internal/database"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const (
	testServerID = int64(100)
	ownerID      = int64(1)
	adminID      = int64(2)
	moderatorID  = int64(3)
	plainID      = int64(4)
	outsiderID   = int64(5)

	moderatorRoleID = int64(10)
)

// seedServer builds one server with the full authority ladder: owner, legacy
// Admin, a custom-role holder at position 10 and a plain member.
func seedServer(t *testing.T) {
	t.Helper()

	db, err := database.SetupMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	Setup(zap.NewNop().Sugar(), db)

	now := time.Now().UTC()

	users := []int64{ownerID, adminID, moderatorID, plainID, outsiderID}
	for _, id := range users {
		_, err := db.Exec("INSERT INTO users (id, username, password, avatar_color, avatar_url, created_at) VALUES (?, ?, ?, ?, ?, ?)",
			id, fmt.Sprintf("user%d", id), []byte("x"), "#ffffff", "", now)
		if err != nil {
			t.Fatal(err)
		}
	}

	_, err = db.Exec("INSERT INTO servers (id, owner_id, name, icon, created_at) VALUES (?, ?, 'testserver', '', ?)",
		testServerID, ownerID, now)
	if err != nil {
		t.Fatal(err)
	}

	_, err = db.Exec(`
		INSERT INTO server_roles (id, server_id, name, color, position,
			can_manage_messages, can_kick_members, can_ban_members, can_manage_roles, can_manage_channels)
		VALUES (?, ?, 'Moderator', '#ff0000', 10, 1, 1, 1, 0, 0)
		`, moderatorRoleID, testServerID)
	if err != nil {
		t.Fatal(err)
	}

	members := []struct {
		userID int64
		role   string
		roleID any
	}{
		{ownerID, "Admin", nil},
		{adminID, "Admin", nil},
		{moderatorID, "Member", moderatorRoleID},
		{plainID, "Member", nil},
	}
	for _, member := range members {
		_, err := db.Exec("INSERT INTO server_members (server_id, user_id, role, role_id, since) VALUES (?, ?, ?, ?, ?)",
			testServerID, member.userID, member.role, member.roleID, now)
		if err != nil {
			t.Fatal(err)
		}
	}
}

func TestAuthorityRankTotalOrder(t *testing.T) {
	seedServer(t)

	tests := []struct {
		name   string
		userID int64
		want   int64
	}{
		{"owner", ownerID, OwnerRank},
		{"admin", adminID, AdminRank},
		{"role holder", moderatorID, 10},
		{"plain member", plainID, BaselineRank},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rank, err := AuthorityRank(testServerID, tt.userID)
			if err != nil {
				t.Fatal(err)
			}
			if rank != tt.want {
				t.Errorf("AuthorityRank(%d) = %d, want %d", tt.userID, rank, tt.want)
			}
		})
	}
}

func TestNonMemberHasNoRank(t *testing.T) {
	seedServer(t)

	_, err := AuthorityRank(testServerID, outsiderID)
	if !errors.Is(err, ErrNotMember) {
		t.Errorf("AuthorityRank for outsider = %v, want ErrNotMember", err)
	}

	_, err = GetMembership(testServerID, outsiderID)
	if !errors.Is(err, ErrNotMember) {
		t.Errorf("GetMembership for outsider = %v, want ErrNotMember", err)
	}
}

func TestCapabilityResolution(t *testing.T) {
	seedServer(t)

	allCaps := []Capability{CapManageMessages, CapKickMembers, CapBanMembers, CapManageRoles, CapManageChannels}

	// owner and legacy Admin bypass every named capability
	for _, userID := range []int64{ownerID, adminID} {
		m, err := GetMembership(testServerID, userID)
		if err != nil {
			t.Fatal(err)
		}
		for _, cap := range allCaps {
			if !m.HasCapability(cap) {
				t.Errorf("user %d should bypass capability check for %s", userID, cap)
			}
		}
	}

	moderator, err := GetMembership(testServerID, moderatorID)
	if err != nil {
		t.Fatal(err)
	}
	granted := map[Capability]bool{
		CapManageMessages: true,
		CapKickMembers:    true,
		CapBanMembers:     true,
		CapManageRoles:    false,
		CapManageChannels: false,
	}
	for cap, want := range granted {
		if got := moderator.HasCapability(cap); got != want {
			t.Errorf("moderator HasCapability(%s) = %v, want %v", cap, got, want)
		}
	}

	plain, err := GetMembership(testServerID, plainID)
	if err != nil {
		t.Fatal(err)
	}
	for _, cap := range allCaps {
		if plain.HasCapability(cap) {
			t.Errorf("plain member should not hold %s", cap)
		}
	}
}

func TestOwnerOutranksEveryone(t *testing.T) {
	seedServer(t)

	ownerRank, err := AuthorityRank(testServerID, ownerID)
	if err != nil {
		t.Fatal(err)
	}

	for _, userID := range []int64{adminID, moderatorID, plainID} {
		rank, err := AuthorityRank(testServerID, userID)
		if err != nil {
			t.Fatal(err)
		}
		if ownerRank <= rank {
			t.Errorf("owner rank %d should exceed user %d rank %d", ownerRank, userID, rank)
		}
	}
}

func TestRolePosition(t *testing.T) {
	seedServer(t)

	position, err := RolePosition(testServerID, moderatorRoleID)
	if err != nil {
		t.Fatal(err)
	}
	if position != 10 {
		t.Errorf("RolePosition = %d, want 10", position)
	}

	// a role can't be resolved through another server's id
	_, err = RolePosition(testServerID+1, moderatorRoleID)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("RolePosition with wrong server = %v, want sql.ErrNoRows", err)
	}
}
