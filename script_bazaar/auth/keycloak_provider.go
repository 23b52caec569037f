package auth

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"script_ink/script_bazaar/schema"

	"github.com/Nerzal/gocloak/v13"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultKeycloakRealm = "script-ink"
	keycloakClientId     = "script-ink-login"
	keycloakTimeout      = 5 * time.Second
)

// KeycloakIdentityProvider delegates credentials and sessions to a keycloak
// realm. Users are mirrored into the local users table keyed by their keycloak
// subject so scripts and merge requests can reference them.
type KeycloakIdentityProvider struct {
	keycloak *gocloak.GoCloak
	db       *gorm.DB
	auditLog *AuditLogger

	realm                        string
	adminUsername, adminPassword string
	sessionDuration              time.Duration
}

type KeycloakArgs struct {
	ServerUrl string
	Realm     string

	KeycloakAdminUsername string
	KeycloakAdminPassword string

	AdminUsername string
	AdminEmail    string
	AdminPassword string

	PublicHostname  string
	SessionDuration time.Duration

	SkipTlsVerify bool
	Verbose       bool
}

func isConflict(err error) bool {
	var apiErr *gocloak.APIError
	// keycloak answers 409 when the user, realm or client already exists
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict
}

func isUnauthorized(err error) bool {
	var apiErr *gocloak.APIError
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized
}

func pArg[T any](value T) *T {
	p := new(T)
	*p = value
	return p
}

var boolArg = pArg[bool]
var intArg = pArg[int]
var strArg = pArg[string]

func adminLogin(client *gocloak.GoCloak, adminUsername, adminPassword string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), keycloakTimeout)
	defer cancel()

	// master is keycloak's built in admin realm
	adminToken, err := client.LoginAdmin(ctx, adminUsername, adminPassword, "master")
	if err != nil {
		return "", fmt.Errorf("error during keycloak admin login: %w", err)
	}
	return adminToken.AccessToken, nil
}

func getUserId(ctx context.Context, client *gocloak.GoCloak, adminToken, realm string, params gocloak.GetUsersParams) (*string, error) {
	params.Max = intArg(1)
	params.Exact = boolArg(true)
	users, err := client.GetUsers(ctx, adminToken, realm, params)
	if err != nil {
		return nil, fmt.Errorf("error retrieving user id: %w", err)
	}
	if len(users) == 1 {
		return users[0].ID, nil
	}
	return nil, nil
}

func createRealm(client *gocloak.GoCloak, adminToken, realm string, sessionDuration time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), keycloakTimeout)
	defer cancel()

	lifespan := int(sessionDuration.Seconds())

	_, err := client.CreateRealm(ctx, adminToken, gocloak.RealmRepresentation{
		Realm:                        &realm,
		Enabled:                      boolArg(true),
		RegistrationAllowed:          boolArg(true),
		ResetPasswordAllowed:         boolArg(true),
		LoginWithEmailAllowed:        boolArg(true),
		AccessTokenLifespan:          intArg(lifespan),
		SsoSessionIdleTimeout:        intArg(lifespan),
		PasswordPolicy:               strArg("length(8)"),
		BruteForceProtected:          boolArg(true),
		MaxFailureWaitSeconds:        intArg(900),
		MinimumQuickLoginWaitSeconds: intArg(60),
		WaitIncrementSeconds:         intArg(60),
		FailureFactor:                intArg(30),
	})
	if err != nil {
		if isConflict(err) {
			slog.Info("KEYCLOAK: realm has already been created", "realm", realm)
			return nil
		}
		return fmt.Errorf("error creating realm: %w", err)
	}
	return nil
}

func createClient(client *gocloak.GoCloak, adminToken, realm string, redirectUrls []string, rootUrl string) error {
	ctx, cancel := context.WithTimeout(context.Background(), keycloakTimeout)
	defer cancel()

	clients, err := client.GetClients(ctx, adminToken, realm, gocloak.GetClientsParams{
		ClientID: strArg(keycloakClientId),
	})
	if err != nil {
		return fmt.Errorf("error listing existing clients for realm: %w", err)
	}
	if len(clients) == 1 {
		slog.Info("KEYCLOAK: client already exists", "client", keycloakClientId, "realm", realm)
		return nil
	}

	_, err = client.CreateClient(ctx, adminToken, realm, gocloak.Client{
		ClientID:     strArg(keycloakClientId),
		Enabled:      boolArg(true),
		PublicClient: boolArg(true),
		RedirectURIs: &redirectUrls,
		RootURL:      &rootUrl,
		BaseURL:      strArg("/login"),
		// password grants back the email login endpoint
		DirectAccessGrantsEnabled: boolArg(true),
		StandardFlowEnabled:       boolArg(true),
		ImplicitFlowEnabled:       boolArg(false),
		ServiceAccountsEnabled:    boolArg(false),
		DefaultClientScopes:       &[]string{"profile", "email", "openid"},
		WebOrigins:                &redirectUrls,
	})
	if err != nil {
		if isConflict(err) {
			slog.Info("KEYCLOAK: client has already been created", "client", keycloakClientId, "realm", realm)
			return nil
		}
		return fmt.Errorf("error creating realm client: %w", err)
	}
	return nil
}

func createUserIfNotExists(client *gocloak.GoCloak, adminToken, realm, username, email, password string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), keycloakTimeout)
	defer cancel()

	existing, err := getUserId(ctx, client, adminToken, realm, gocloak.GetUsersParams{Username: &username})
	if err != nil {
		return "", fmt.Errorf("error checking for existing user: %w", err)
	}
	if existing != nil {
		return *existing, nil
	}

	userId, err := client.CreateUser(ctx, adminToken, realm, keycloakUser(username, email, password))
	if err != nil {
		if isConflict(err) {
			existing, err := getUserId(ctx, client, adminToken, realm, gocloak.GetUsersParams{Username: &username})
			if err != nil {
				return "", fmt.Errorf("error retrieving existing user after conflict: %w", err)
			}
			if existing == nil {
				return "", fmt.Errorf("no user found after conflict creating '%v'", username)
			}
			return *existing, nil
		}
		return "", fmt.Errorf("error creating user: %w", err)
	}
	return userId, nil
}

func keycloakUser(username, email, password string) gocloak.User {
	return gocloak.User{
		Username:      &username,
		Email:         &email,
		Enabled:       boolArg(true),
		EmailVerified: boolArg(true),
		Credentials: &[]gocloak.CredentialRepresentation{{
			Type:      strArg("password"),
			Value:     &password,
			Temporary: boolArg(false),
		}},
	}
}

func NewKeycloakIdentityProvider(db *gorm.DB, auditLog *AuditLogger, args KeycloakArgs) (*KeycloakIdentityProvider, error) {
	realm := args.Realm
	if realm == "" {
		realm = DefaultKeycloakRealm
	}
	if args.SessionDuration <= 0 {
		args.SessionDuration = DefaultSessionDuration
	}

	client := gocloak.NewClient(strings.TrimSuffix(args.ServerUrl, "/"))
	restyClient := client.RestyClient()
	restyClient.SetDebug(args.Verbose)
	if args.SkipTlsVerify {
		restyClient.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}

	adminToken, err := adminLogin(client, args.KeycloakAdminUsername, args.KeycloakAdminPassword)
	if err != nil {
		slog.Error("KEYCLOAK: admin login failed", "error", err)
		return nil, err
	}
	slog.Info("KEYCLOAK: admin login successful")

	if err := createRealm(client, adminToken, realm, args.SessionDuration); err != nil {
		slog.Error("KEYCLOAK: realm creation failed", "error", err)
		return nil, err
	}

	redirectUrls := []string{"http://localhost/*", "https://localhost/*", "http://127.0.0.1/*"}
	if args.PublicHostname != "" {
		redirectUrls = append(redirectUrls,
			fmt.Sprintf("http://%v/*", args.PublicHostname),
			fmt.Sprintf("https://%v/*", args.PublicHostname),
		)
	}
	if err := createClient(client, adminToken, realm, redirectUrls, args.ServerUrl); err != nil {
		slog.Error("KEYCLOAK: client creation failed", "error", err)
		return nil, err
	}

	userId, err := createUserIfNotExists(client, adminToken, realm, args.AdminUsername, args.AdminEmail, args.AdminPassword)
	if err != nil {
		slog.Error("KEYCLOAK: admin creation failed", "realm", realm, "error", err)
		return nil, err
	}

	userUUID, err := uuid.Parse(userId)
	if err != nil {
		return nil, fmt.Errorf("invalid uuid '%v' returned from keycloak: %w", userId, err)
	}

	if err := addInitialAdminToDb(db, userUUID, args.AdminUsername, args.AdminEmail, nil); err != nil {
		slog.Error("KEYCLOAK: adding admin to db failed", "error", err)
		return nil, err
	}
	slog.Info("KEYCLOAK: identity provider ready", "realm", realm)

	return &KeycloakIdentityProvider{
		keycloak:        client,
		db:              db,
		auditLog:        auditLog,
		realm:           realm,
		adminUsername:   args.KeycloakAdminUsername,
		adminPassword:   args.KeycloakAdminPassword,
		sessionDuration: args.SessionDuration,
	}, nil
}

func getToken(r *http.Request) string {
	if token := jwtauth.TokenFromHeader(r); token != "" {
		return token
	}
	return jwtauth.TokenFromCookie(r)
}

// syncUser returns the local mirror of the keycloak account behind token,
// creating it on first sight.
func (auth *KeycloakIdentityProvider) syncUser(ctx context.Context, token string) (schema.User, int, error) {
	ctx, cancel := context.WithTimeout(ctx, keycloakTimeout)
	defer cancel()

	info, err := auth.keycloak.GetUserInfo(ctx, token, auth.realm)
	if err != nil {
		return schema.User{}, http.StatusUnauthorized, fmt.Errorf("unable to verify token with keycloak: %w", err)
	}
	if info.Sub == nil || info.Email == nil || info.PreferredUsername == nil {
		slog.Error("invalid user info from keycloak, missing required fields", "user_info", info)
		return schema.User{}, http.StatusInternalServerError, fmt.Errorf("invalid user info from keycloak, missing required fields")
	}

	userId, err := uuid.Parse(*info.Sub)
	if err != nil {
		return schema.User{}, http.StatusInternalServerError, fmt.Errorf("invalid uuid '%v' returned from keycloak: %w", *info.Sub, err)
	}

	var user schema.User
	err = auth.db.Transaction(func(txn *gorm.DB) error {
		result := txn.Limit(1).Find(&user, "id = ? or email = ?", userId, strings.ToLower(*info.Email))
		if result.Error != nil {
			slog.Error("sql error checking for keycloak user", "user_id", userId, "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected == 1 {
			return nil
		}

		user = schema.User{
			Id:          userId,
			Username:    *info.PreferredUsername,
			Email:       strings.ToLower(*info.Email),
			DisplayName: *info.PreferredUsername,
		}
		if err := txn.Create(&user).Error; err != nil {
			slog.Error("sql error mirroring keycloak user", "user_id", userId, "error", err)
			return schema.ErrDbAccessFailed
		}
		slog.Info("mirrored keycloak user", "user_id", userId, "username", user.Username)
		return nil
	})
	if err != nil {
		return schema.User{}, http.StatusInternalServerError, err
	}

	return user, http.StatusOK, nil
}

func (auth *KeycloakIdentityProvider) middleware(optional bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		handler := func(w http.ResponseWriter, r *http.Request) {
			token := getToken(r)
			if token == "" {
				if optional {
					next.ServeHTTP(w, r)
					return
				}
				http.Error(w, "unable to find auth token", http.StatusUnauthorized)
				return
			}

			user, code, err := auth.syncUser(r.Context(), token)
			if err != nil {
				if optional && code == http.StatusUnauthorized {
					next.ServeHTTP(w, r)
					return
				}
				http.Error(w, err.Error(), code)
				return
			}

			reqCtx := context.WithValue(r.Context(), UserRequestContextKey, user)
			next.ServeHTTP(w, r.WithContext(reqCtx))
		}

		return http.HandlerFunc(handler)
	}
}

func (auth *KeycloakIdentityProvider) AuthMiddleware() chi.Middlewares {
	return chi.Middlewares{auth.middleware(false), auth.auditLog.Middleware}
}

func (auth *KeycloakIdentityProvider) OptionalAuthMiddleware() chi.Middlewares {
	return chi.Middlewares{auth.middleware(true), auth.auditLog.Middleware}
}

// LoginWithEmail exchanges the credentials for a realm access token with a
// password grant on the public login client.
func (auth *KeycloakIdentityProvider) LoginWithEmail(email, password string) (LoginResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), keycloakTimeout)
	defer cancel()

	token, err := auth.keycloak.Login(ctx, keycloakClientId, "", auth.realm, strings.ToLower(strings.TrimSpace(email)), password)
	if err != nil {
		if isUnauthorized(err) {
			return LoginResult{}, ErrInvalidCredentials
		}
		slog.Error("keycloak login failed", "error", err)
		return LoginResult{}, fmt.Errorf("failed to authenticate user with keycloak: %w", err)
	}

	user, _, err := auth.syncUser(ctx, token.AccessToken)
	if err != nil {
		return LoginResult{}, fmt.Errorf("error logging in user: %w", err)
	}

	return LoginResult{UserId: user.Id, AccessToken: token.AccessToken}, nil
}

func (auth *KeycloakIdentityProvider) CreateUser(params NewUser) (uuid.UUID, error) {
	username := strings.TrimSpace(params.Username)
	email := strings.ToLower(strings.TrimSpace(params.Email))
	if username == "" || email == "" || params.Password == "" {
		return uuid.Nil, ErrMissingUserFields
	}

	adminToken, err := adminLogin(auth.keycloak, auth.adminUsername, auth.adminPassword)
	if err != nil {
		return uuid.Nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), keycloakTimeout)
	defer cancel()

	existing, err := getUserId(ctx, auth.keycloak, adminToken, auth.realm, gocloak.GetUsersParams{Username: &username})
	if err != nil {
		return uuid.Nil, err
	}
	if existing != nil {
		return uuid.Nil, ErrUsernameAlreadyInUse
	}
	existing, err = getUserId(ctx, auth.keycloak, adminToken, auth.realm, gocloak.GetUsersParams{Email: &email})
	if err != nil {
		return uuid.Nil, err
	}
	if existing != nil {
		return uuid.Nil, ErrEmailAlreadyInUse
	}

	userId, err := auth.keycloak.CreateUser(ctx, adminToken, auth.realm, keycloakUser(username, email, params.Password))
	if err != nil {
		if isConflict(err) {
			return uuid.Nil, ErrUsernameAlreadyInUse
		}
		return uuid.Nil, fmt.Errorf("error creating new user in keycloak: %w", err)
	}

	userUUID, err := uuid.Parse(userId)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid uuid '%v' returned from keycloak: %w", userId, err)
	}

	displayName := strings.TrimSpace(params.DisplayName)
	if displayName == "" {
		displayName = username
	}

	user := schema.User{Id: userUUID, Username: username, Email: email, DisplayName: displayName}
	if err := auth.db.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return uuid.Nil, ErrUsernameAlreadyInUse
		}
		slog.Error("sql error creating user in keycloak identity provider", "error", err)
		return uuid.Nil, schema.ErrDbAccessFailed
	}

	slog.Info("created user", "user_id", userUUID, "username", username, "provider", "keycloak")

	return userUUID, nil
}

func (auth *KeycloakIdentityProvider) SessionCookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     JwtCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(auth.sessionDuration.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}
