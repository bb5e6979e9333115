package handlers

import (
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"guildchat-backend/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

var sugar *zap.SugaredLogger
var db *sql.DB

func Setup(_sugar *zap.SugaredLogger, _db *sql.DB) {
	sugar = _sugar
	db = _db
}

func Router(cfg *models.ConfigFile) chi.Router {
	r := chi.NewRouter()

	if cfg.PrintHttpRequests {
		r.Use(middleware.Logger)
	}
	if cfg.Cors {
		r.Use(AllowCors)
	}

	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/api", func(api chi.Router) {
		api.Route("/auth", func(r chi.Router) {
			r.Post("/register", Register)
			r.Post("/login", Login)
		})

		api.Route("/users", func(r chi.Router) {
			r.Use(UserVerifier)
			r.Get("/", GetUserList)
			r.Get("/me", GetOwnProfile)
			r.Patch("/me", UpdateOwnProfile)
			r.Delete("/me", DeleteOwnAccount)
		})

		api.Route("/servers", func(r chi.Router) {
			r.Use(UserVerifier)
			r.Get("/", GetServerList)
			r.Post("/", CreateServer)
			r.Post("/join/{code}", JoinServer)

			r.Route("/{serverID}", func(r chi.Router) {
				r.Patch("/", RenameServer)
				r.Delete("/", DeleteServer)

				r.Get("/channels", GetChannelList)
				r.Post("/channels", CreateChannel)

				r.Get("/members", GetMemberList)
				r.Delete("/members/me", LeaveServer)
				r.Put("/members/{userID}/role", AssignRole)

				r.Post("/invites", CreateInvite)

				r.Get("/roles", GetRoleList)
				r.Post("/roles", CreateRole)
				r.Patch("/roles/{roleID}", UpdateRole)
				r.Delete("/roles/{roleID}", DeleteRole)

				r.Get("/bans", GetBanList)
				r.Post("/bans/kick/{userID}", KickMember)
				r.Post("/bans/{userID}", BanMember)
				r.Delete("/bans/{userID}", UnbanMember)
			})
		})

		api.Route("/channels", func(r chi.Router) {
			r.Use(UserVerifier)
			r.Get("/{channelID}/messages", GetMessageList)
			r.Delete("/messages/{messageID}", DeleteMessage)
			r.Post("/{messageID}/reactions", AddReaction)
			r.Delete("/{messageID}/reactions/{emoji}", RemoveReaction)
		})

		api.Route("/dm", func(r chi.Router) {
			r.Use(UserVerifier)
			r.Get("/", GetDMThreadList)
			r.Post("/{userID}", OpenDMThread)
			r.Get("/{threadID}/messages", GetDMMessageList)
			r.Post("/{messageID}/reactions", AddDMReaction)
			r.Delete("/{messageID}/reactions/{emoji}", RemoveDMReaction)
		})
	})

	var websocketPath string
	if cfg.BehindNginx {
		websocketPath = "/ws/"
	} else {
		websocketPath = "/ws"
	}

	r.With(UserVerifier).Get(websocketPath, HandleWebSocket)

	return r
}

func Serve(isHttps bool, cfg *models.ConfigFile) error {
	r := Router(cfg)

	address := fmt.Sprintf("%s:%s", cfg.Address, cfg.Port)

	if isHttps {
		return http.ListenAndServeTLS(address, cfg.TlsCert, cfg.TlsKey, r)
	}
	return http.ListenAndServe(address, r)
}
