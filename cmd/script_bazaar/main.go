package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"script_ink/cmd/migration/versions"
	"script_ink/script_bazaar/assist"
	"script_ink/script_bazaar/auth"
	"script_ink/script_bazaar/cache"
	"script_ink/script_bazaar/core"
	"script_ink/script_bazaar/services"
	"script_ink/script_bazaar/storage"
	"script_ink/utils"
	"script_ink/utils/logging"

	"github.com/caarlos0/env/v10"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type scriptBazaarEnv struct {
	DatabaseUri string `env:"DB_URI,required"`
	Port        int    `env:"PORT" envDefault:"8000"`

	// IdentityProvider is either "basic" or "keycloak".
	IdentityProvider string `env:"IDENTITY_PROVIDER" envDefault:"basic"`
	JwtSecret        string `env:"JWT_SECRET"`

	KeycloakServerUrl     string `env:"KEYCLOAK_SERVER_URL"`
	KeycloakRealm         string `env:"KEYCLOAK_REALM" envDefault:"script-ink"`
	KeycloakAdminUsername string `env:"KEYCLOAK_ADMIN_USERNAME"`
	KeycloakAdminPassword string `env:"KEYCLOAK_ADMIN_PASSWORD"`
	KeycloakSkipTlsVerify bool   `env:"KEYCLOAK_SKIP_TLS_VERIFY"`
	KeycloakDebug         bool   `env:"KEYCLOAK_DEBUG"`
	PublicHostname        string `env:"PUBLIC_HOSTNAME"`

	AdminUsername string `env:"ADMIN_USERNAME,required"`
	AdminEmail    string `env:"ADMIN_EMAIL,required"`
	AdminPassword string `env:"ADMIN_PASSWORD,required"`

	SessionDuration time.Duration `env:"SESSION_DURATION" envDefault:"12h"`

	RedisUrl        string        `env:"REDIS_URL"`
	LineageCacheTtl time.Duration `env:"LINEAGE_CACHE_TTL" envDefault:"5m"`

	StorageDir string `env:"STORAGE_DIR" envDefault:"./data"`

	OpenaiApiKey    string `env:"OPENAI_API_KEY"`
	OpenaiBaseUrl   string `env:"OPENAI_BASE_URL"`
	AssistModel     string `env:"ASSIST_MODEL"`
	AssistRateLimit int    `env:"ASSIST_RATE_LIMIT" envDefault:"20"`
	AuthRateLimit   int    `env:"AUTH_RATE_LIMIT" envDefault:"30"`

	AuditLog       string   `env:"AUDIT_LOG" envDefault:"./audit.log"`
	LogFile        string   `env:"LOG_FILE"`
	LogFormat      string   `env:"LOG_FORMAT" envDefault:"text"`
	RequestLogging bool     `env:"REQUEST_LOGGING"`
	CorsOrigins    []string `env:"CORS_ORIGINS" envSeparator:","`
}

func loadEnvFile(envFile string) {
	slog.Info(fmt.Sprintf("loading env from file %v", envFile))
	err := godotenv.Load(envFile)
	if err != nil {
		log.Fatalf("error loading .env file '%v': %v", envFile, err)
	}
}

/**
 * ==========================================================================
 * ==== All variables used by script bazaar must be loaded here. This is ====
 * ==== to make the data flow clear so that a user can see what variables ===
 * ==== are exposed and how the values are propagated through the system. ===
 * ==========================================================================
 */
func loadEnv() (*scriptBazaarEnv, error) {
	cfg := &scriptBazaarEnv{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	switch cfg.IdentityProvider {
	case "basic":
		if cfg.JwtSecret == "" {
			return nil, fmt.Errorf("JWT_SECRET is required for the basic identity provider")
		}
	case "keycloak":
		if cfg.KeycloakServerUrl == "" || cfg.KeycloakAdminUsername == "" || cfg.KeycloakAdminPassword == "" {
			return nil, fmt.Errorf("KEYCLOAK_SERVER_URL, KEYCLOAK_ADMIN_USERNAME and KEYCLOAK_ADMIN_PASSWORD are required for the keycloak identity provider")
		}
	default:
		return nil, fmt.Errorf("invalid IDENTITY_PROVIDER '%v', expected basic or keycloak", cfg.IdentityProvider)
	}

	return cfg, nil
}

func initLogging(w io.Writer, format string) {
	log.SetFlags(log.Lshortfile | log.Ltime | log.Ldate)
	log.SetOutput(w)
	slog.SetDefault(slog.New(logging.NewHandler(w, format)))
	slog.Info("logging initialized", "format", format)
}

func initDb(uri string) (*gorm.DB, error) {
	db, err := utils.OpenDb(uri, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	// a clean database is created from the current models, a legacy one is
	// walked through every version so its data is converted
	if err := versions.New(db).Migrate(); err != nil {
		return nil, fmt.Errorf("error migrating db schema: %w", err)
	}

	return db, nil
}

func (e *scriptBazaarEnv) lineageCache() (cache.LineageCache, func(), error) {
	if e.RedisUrl == "" {
		slog.Info("REDIS_URL not set, lineage cache disabled")
		return cache.NoopLineageCache{}, func() {}, nil
	}

	redisCache, err := cache.NewRedisLineageCache(e.RedisUrl, e.LineageCacheTtl)
	if err != nil {
		return nil, nil, fmt.Errorf("error connecting to lineage cache: %w", err)
	}
	return redisCache, func() {
		if err := redisCache.Close(); err != nil {
			slog.Error("error closing lineage cache", "error", err)
		}
	}, nil
}

func (e *scriptBazaarEnv) assistProvider() assist.Provider {
	if e.OpenaiApiKey == "" {
		slog.Info("OPENAI_API_KEY not set, assist is disabled")
		return assist.Disabled{}
	}
	return assist.NewOpenAIProvider(e.OpenaiApiKey, e.OpenaiBaseUrl, e.AssistModel)
}

func (e *scriptBazaarEnv) identityProvider(db *gorm.DB, auditLog *auth.AuditLogger) (auth.IdentityProvider, error) {
	if e.IdentityProvider == "keycloak" {
		provider, err := auth.NewKeycloakIdentityProvider(db, auditLog, auth.KeycloakArgs{
			ServerUrl:             e.KeycloakServerUrl,
			Realm:                 e.KeycloakRealm,
			KeycloakAdminUsername: e.KeycloakAdminUsername,
			KeycloakAdminPassword: e.KeycloakAdminPassword,
			AdminUsername:         e.AdminUsername,
			AdminEmail:            e.AdminEmail,
			AdminPassword:         e.AdminPassword,
			PublicHostname:        e.PublicHostname,
			SessionDuration:       e.SessionDuration,
			SkipTlsVerify:         e.KeycloakSkipTlsVerify,
			Verbose:               e.KeycloakDebug,
		})
		if err != nil {
			return nil, fmt.Errorf("error creating keycloak identity provider: %w", err)
		}
		return provider, nil
	}

	provider, err := auth.NewBasicIdentityProvider(db, auditLog, auth.BasicProviderArgs{
		Secret:          []byte(e.JwtSecret),
		SessionDuration: e.SessionDuration,
		AdminUsername:   e.AdminUsername,
		AdminEmail:      e.AdminEmail,
		AdminPassword:   e.AdminPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating basic identity provider: %w", err)
	}
	return provider, nil
}

func (e *scriptBazaarEnv) corsOptions() cors.Options {
	origins := make([]string, 0, len(e.CorsOrigins))
	for _, origin := range e.CorsOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}

	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

// The defer calls don't run if we exit with log.Fatalf, so errors are returned
// here and the process fails in main.
func runApp() error {
	envFile := flag.String("env", "", "File to load env variables from. If not specified will just load them from the environment variables already defined.")
	port := flag.Int("port", 0, "Port to run server on, overrides PORT")

	flag.Parse()

	if *envFile != "" {
		loadEnvFile(*envFile)
	}

	env, err := loadEnv()
	if err != nil {
		return fmt.Errorf("failed to load environment variables: %w", err)
	}
	if *port != 0 {
		env.Port = *port
	}

	var logOutput io.Writer = os.Stderr
	if env.LogFile != "" {
		logFile, err := os.OpenFile(env.LogFile, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
		if err != nil {
			return fmt.Errorf("error opening log file: %w", err)
		}
		defer logFile.Close()
		logOutput = io.MultiWriter(logFile, os.Stderr)
	}
	initLogging(logOutput, env.LogFormat)

	auditLog, err := os.OpenFile(env.AuditLog, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		return fmt.Errorf("error opening audit log file: %w", err)
	}
	defer auditLog.Close()

	db, err := initDb(env.DatabaseUri)
	if err != nil {
		return err
	}

	lineageCache, closeCache, err := env.lineageCache()
	if err != nil {
		return err
	}
	defer closeCache()

	sharedStorage, err := storage.NewSharedDisk(env.StorageDir)
	if err != nil {
		return fmt.Errorf("error initializing storage: %w", err)
	}

	identityProvider, err := env.identityProvider(db, auth.NewAuditLogger(auditLog))
	if err != nil {
		return err
	}

	scriptBazaar := services.NewScriptBazaar(
		db,
		core.NewService(db, lineageCache),
		identityProvider,
		storage.NewCovers(sharedStorage),
		env.assistProvider(),
		services.Options{
			AssistRateLimit: env.AssistRateLimit,
			AuthRateLimit:   env.AuthRateLimit,
			RequestLogging:  env.RequestLogging,
		},
	)

	r := chi.NewRouter()
	r.Use(cors.Handler(env.corsOptions()))
	r.Mount("/api", scriptBazaar.Routes())
	r.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", env.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutdown signal received")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("http server shutdown", "error", err)
		}
		close(idleConnsClosed)
	}()

	slog.Info("starting server", "port", env.Port, "storage", sharedStorage.Location())
	err = srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve returned error: %w", err)
	}

	<-idleConnsClosed
	slog.Info("server stopped")
	return nil
}

func main() {
	if err := runApp(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}
