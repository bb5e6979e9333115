package database

import (
	"database/sql"
	"fmt"

	"guildchat-backend/internal/models"
)

var selfContained bool

func setPragmaValues(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return err
	}

	// these next 2 extremely speed up performance of sqlite
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return err
	}

	if _, err := db.Exec("PRAGMA synchronous = normal"); err != nil {
		return err
	}

	return nil
}

// InsertIgnore returns the dialect's prefix for inserts that silently skip
// duplicate-key conflicts. Reaction adds and invite joins rely on this for
// idempotence.
func InsertIgnore() string {
	if selfContained {
		return "INSERT OR IGNORE"
	}
	return "INSERT IGNORE"
}

// InsertOrReplace returns the dialect's prefix for upserting on duplicate key.
func InsertOrReplace() string {
	if selfContained {
		return "INSERT OR REPLACE"
	}
	return "REPLACE"
}

func Setup(cfg *models.ConfigFile) (*sql.DB, error) {
	selfContained = cfg.SelfContained

	var db *sql.DB
	var err error

	if cfg.SelfContained {
		db, err = sql.Open("sqlite", "./database.db")
		if err != nil {
			return db, err
		}

		// there can be sqlite busy errors if this is not set to 1
		db.SetMaxOpenConns(1)

		err = setPragmaValues(db)
		if err != nil {
			return db, err
		}
	} else {
		db, err = sql.Open("mysql", fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&timeout=10s", cfg.DbUser, cfg.DbPassword, cfg.DbAddress, cfg.DbPort, cfg.DbDatabase))
		if err != nil {
			return db, err
		}

		db.SetMaxOpenConns(10)
	}

	err = SetupTables(db)
	if err != nil {
		return db, err
	}

	return db, nil
}

// SetupMemory opens a throwaway in-memory sqlite database, used by tests.
func SetupMemory() (*sql.DB, error) {
	selfContained = true

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	err = SetupTables(db)
	if err != nil {
		return nil, err
	}

	return db, nil
}

func SetupTables(db *sql.DB) error {
	var err error

	_, err = db.Exec(`
			CREATE TABLE IF NOT EXISTS users (
				id BIGINT PRIMARY KEY,
				username VARCHAR(32) NOT NULL UNIQUE,
				password BINARY(60) NOT NULL,
				avatar_color VARCHAR(16) NOT NULL,
				avatar_url TEXT NOT NULL,
				created_at TIMESTAMP NOT NULL
			);
		`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
			CREATE TABLE IF NOT EXISTS servers (
				id BIGINT PRIMARY KEY,
				owner_id BIGINT NOT NULL,
				name VARCHAR(64) NOT NULL,
				icon TEXT NOT NULL,
				created_at TIMESTAMP NOT NULL,
				FOREIGN KEY (owner_id) REFERENCES users(id) ON DELETE CASCADE
			);
		`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
			CREATE TABLE IF NOT EXISTS server_roles (
				id BIGINT PRIMARY KEY,
				server_id BIGINT NOT NULL,
				name VARCHAR(32) NOT NULL,
				color VARCHAR(16) NOT NULL,
				position BIGINT NOT NULL,
				can_manage_messages BOOLEAN NOT NULL,
				can_kick_members BOOLEAN NOT NULL,
				can_ban_members BOOLEAN NOT NULL,
				can_manage_roles BOOLEAN NOT NULL,
				can_manage_channels BOOLEAN NOT NULL,
				UNIQUE (server_id, name),
				FOREIGN KEY (server_id) REFERENCES servers(id) ON DELETE CASCADE
			);
		`)
	if err != nil {
		return err
	}

	// role is the legacy coarse tag: 'Admin' or 'Member', role_id the
	// fine-grained one, one membership row per (server, user)
	_, err = db.Exec(`
			CREATE TABLE IF NOT EXISTS server_members (
				server_id BIGINT NOT NULL,
				user_id BIGINT NOT NULL,
				role VARCHAR(16) NOT NULL DEFAULT 'Member',
				role_id BIGINT,
				since TIMESTAMP NOT NULL,
				PRIMARY KEY (server_id, user_id),
				FOREIGN KEY (server_id) REFERENCES servers(id) ON DELETE CASCADE,
				FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
				FOREIGN KEY (role_id) REFERENCES server_roles(id) ON DELETE SET NULL
			);
		`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
			CREATE TABLE IF NOT EXISTS server_bans (
				server_id BIGINT NOT NULL,
				user_id BIGINT NOT NULL,
				banned_by BIGINT NOT NULL,
				reason TEXT NOT NULL,
				banned_at TIMESTAMP NOT NULL,
				PRIMARY KEY (server_id, user_id),
				FOREIGN KEY (server_id) REFERENCES servers(id) ON DELETE CASCADE,
				FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			);
		`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
			CREATE TABLE IF NOT EXISTS channels (
				id BIGINT PRIMARY KEY,
				server_id BIGINT NOT NULL,
				name VARCHAR(32) NOT NULL,
				FOREIGN KEY (server_id) REFERENCES servers(id) ON DELETE CASCADE
			);
		`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
			CREATE TABLE IF NOT EXISTS messages (
				id BIGINT PRIMARY KEY,
				channel_id BIGINT NOT NULL,
				user_id BIGINT NOT NULL,
				content TEXT NOT NULL,
				attachment_url TEXT NOT NULL,
				created_at TIMESTAMP NOT NULL,
				FOREIGN KEY (channel_id) REFERENCES channels(id) ON DELETE CASCADE,
				FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			);
		`)
	if err != nil {
		return err
	}

	// user1_id < user2_id always, so one row per unordered pair
	_, err = db.Exec(`
			CREATE TABLE IF NOT EXISTS dm_threads (
				id BIGINT PRIMARY KEY,
				user1_id BIGINT NOT NULL,
				user2_id BIGINT NOT NULL,
				created_at TIMESTAMP NOT NULL,
				UNIQUE (user1_id, user2_id),
				FOREIGN KEY (user1_id) REFERENCES users(id) ON DELETE CASCADE,
				FOREIGN KEY (user2_id) REFERENCES users(id) ON DELETE CASCADE
			);
		`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
			CREATE TABLE IF NOT EXISTS dm_messages (
				id BIGINT PRIMARY KEY,
				thread_id BIGINT NOT NULL,
				sender_id BIGINT NOT NULL,
				content TEXT NOT NULL,
				attachment_url TEXT NOT NULL,
				created_at TIMESTAMP NOT NULL,
				FOREIGN KEY (thread_id) REFERENCES dm_threads(id) ON DELETE CASCADE,
				FOREIGN KEY (sender_id) REFERENCES users(id) ON DELETE CASCADE
			);
		`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
			CREATE TABLE IF NOT EXISTS reactions (
				message_id BIGINT NOT NULL,
				user_id BIGINT NOT NULL,
				emoji VARCHAR(32) NOT NULL,
				PRIMARY KEY (message_id, user_id, emoji),
				FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE,
				FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			);
		`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
			CREATE TABLE IF NOT EXISTS dm_reactions (
				dm_message_id BIGINT NOT NULL,
				user_id BIGINT NOT NULL,
				emoji VARCHAR(32) NOT NULL,
				PRIMARY KEY (dm_message_id, user_id, emoji),
				FOREIGN KEY (dm_message_id) REFERENCES dm_messages(id) ON DELETE CASCADE,
				FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			);
		`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
			CREATE TABLE IF NOT EXISTS invites (
				code VARCHAR(36) PRIMARY KEY,
				server_id BIGINT NOT NULL,
				created_by BIGINT NOT NULL,
				uses BIGINT NOT NULL DEFAULT 0,
				created_at TIMESTAMP NOT NULL,
				FOREIGN KEY (server_id) REFERENCES servers(id) ON DELETE CASCADE,
				FOREIGN KEY (created_by) REFERENCES users(id) ON DELETE CASCADE
			);
		`)
	if err != nil {
		return err
	}

	return nil
}
