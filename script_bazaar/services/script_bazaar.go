package services

import (
	"log"
	"net/http"
	"os"

	"script_ink/script_bazaar/assist"
	"script_ink/script_bazaar/auth"
	"script_ink/script_bazaar/core"
	"script_ink/script_bazaar/storage"
	"script_ink/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"
)

type ScriptBazaar struct {
	user         UserService
	script       ScriptService
	mergeRequest MergeRequestService
	tag          TagService

	requestLogging bool
}

type Options struct {
	// requests per minute, zero disables the limit
	AssistRateLimit int
	AuthRateLimit   int

	RequestLogging bool
}

func NewScriptBazaar(
	db *gorm.DB, service *core.Service, userAuth auth.IdentityProvider, covers *storage.Covers, provider assist.Provider, opts Options,
) ScriptBazaar {
	if provider == nil {
		provider = assist.Disabled{}
	}

	return ScriptBazaar{
		user: UserService{db: db, userAuth: userAuth, authLimit: opts.AuthRateLimit},
		script: ScriptService{
			core:        service,
			userAuth:    userAuth,
			covers:      covers,
			assist:      provider,
			assistLimit: opts.AssistRateLimit,
		},
		mergeRequest:   MergeRequestService{core: service, userAuth: userAuth},
		tag:            TagService{core: service},
		requestLogging: opts.RequestLogging,
	}
}

func (m *ScriptBazaar) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	if m.requestLogging {
		r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
			Logger: log.New(os.Stderr, "", log.LstdFlags), NoColor: false,
		}))
	}

	r.Mount("/user", m.user.Routes())
	r.Mount("/scripts", m.script.Routes())
	r.Mount("/merge-requests", m.mergeRequest.Routes())
	r.Mount("/tags", m.tag.Routes())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteSuccess(w)
	})

	return r
}
