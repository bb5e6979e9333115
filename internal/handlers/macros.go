package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"guildchat-backend/internal/database"
	"guildchat-backend/internal/permissions"

	"github.com/go-chi/chi/v5"
)

func parseID(r *http.Request, param string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, param), 10, 64)
}

func writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(value)
	if err != nil {
		sugar.Error(err)
	}
}

// isDuplicate matches unique-constraint violations from both sqlite and
// mysql without driver-specific error types.
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE") || strings.Contains(msg, "Duplicate entry")
}

func chiURLParam(r *http.Request, param string) string {
	return chi.URLParam(r, param)
}

func insertIgnorePrefix() string {
	return database.InsertIgnore()
}

// requireMembership resolves the caller's membership or answers 403/500.
// A missing membership is an authorization failure, never a crash.
func requireMembership(w http.ResponseWriter, serverID int64, userID int64) bool {
	_, err := permissions.GetMembership(serverID, userID)
	if err != nil {
		if errors.Is(err, permissions.ErrNotMember) {
			http.Error(w, "Not a member of this server", http.StatusForbidden)
		} else {
			sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
		}
		return false
	}
	return true
}

// requireCapability answers 403 unless the caller holds the capability
// (owner and legacy Admin always do).
func requireCapability(w http.ResponseWriter, serverID int64, userID int64, cap permissions.Capability) bool {
	m, err := permissions.GetMembership(serverID, userID)
	if err != nil {
		if errors.Is(err, permissions.ErrNotMember) {
			http.Error(w, "Not a member of this server", http.StatusForbidden)
		} else {
			sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
		}
		return false
	}

	if !m.HasCapability(cap) {
		http.Error(w, "Missing permission: "+string(cap), http.StatusForbidden)
		return false
	}
	return true
}

// requireAdminRank answers 403 unless the caller ranks at least legacy
// Admin (owner included).
func requireAdminRank(w http.ResponseWriter, serverID int64, userID int64) bool {
	rank, err := permissions.AuthorityRank(serverID, userID)
	if err != nil {
		if errors.Is(err, permissions.ErrNotMember) {
			http.Error(w, "Not a member of this server", http.StatusForbidden)
		} else {
			sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
		}
		return false
	}

	if rank < permissions.AdminRank {
		http.Error(w, "Server admin required", http.StatusForbidden)
		return false
	}
	return true
}
