package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"script_ink/script_bazaar/schema"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const bcryptCost = 10

type BasicIdentityProvider struct {
	jwtManager *JwtManager
	db         *gorm.DB
	auditLog   *AuditLogger
}

type BasicProviderArgs struct {
	Secret          []byte
	SessionDuration time.Duration
	AdminUsername   string
	AdminEmail      string
	AdminPassword   string
}

func NewBasicIdentityProvider(db *gorm.DB, auditLog *AuditLogger, args BasicProviderArgs) (*BasicIdentityProvider, error) {
	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(args.AdminPassword), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("error encrypting admin password: %w", err)
	}

	err = addInitialAdminToDb(db, uuid.New(), args.AdminUsername, args.AdminEmail, hashedPwd)
	if err != nil {
		return nil, fmt.Errorf("error adding inital admin to db: %w", err)
	}

	return &BasicIdentityProvider{
		jwtManager: NewJwtManager(args.Secret, args.SessionDuration),
		db:         db,
		auditLog:   auditLog,
	}, nil
}

func (auth *BasicIdentityProvider) userFromToken(r *http.Request) (schema.User, int, error) {
	userId, err := ValueFromContext(r, userIdKey)
	if err != nil {
		return schema.User{}, http.StatusUnauthorized, err
	}

	userUUID, err := uuid.Parse(userId)
	if err != nil {
		return schema.User{}, http.StatusUnauthorized, fmt.Errorf("invalid user uuid '%v': %w", userId, err)
	}

	user, err := schema.GetUser(userUUID, auth.db)
	if err != nil {
		if errors.Is(err, schema.ErrUserNotFound) {
			return schema.User{}, http.StatusUnauthorized, err
		}
		return schema.User{}, http.StatusInternalServerError, fmt.Errorf("unable to find user %v: %w", userId, err)
	}

	return user, http.StatusOK, nil
}

func (auth *BasicIdentityProvider) addUserToContext() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		handler := func(w http.ResponseWriter, r *http.Request) {
			user, code, err := auth.userFromToken(r)
			if err != nil {
				http.Error(w, err.Error(), code)
				return
			}

			reqCtx := context.WithValue(r.Context(), UserRequestContextKey, user)
			next.ServeHTTP(w, r.WithContext(reqCtx))
		}

		return http.HandlerFunc(handler)
	}
}

// addOptionalUserToContext attaches the user when the request carries a valid
// token. Missing, expired or unknown tokens leave the request anonymous.
func (auth *BasicIdentityProvider) addOptionalUserToContext() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		handler := func(w http.ResponseWriter, r *http.Request) {
			token, _, err := jwtauth.FromContext(r.Context())
			if err != nil || token == nil {
				next.ServeHTTP(w, r)
				return
			}

			user, code, err := auth.userFromToken(r)
			if err != nil {
				if code == http.StatusInternalServerError {
					http.Error(w, err.Error(), code)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			reqCtx := context.WithValue(r.Context(), UserRequestContextKey, user)
			next.ServeHTTP(w, r.WithContext(reqCtx))
		}

		return http.HandlerFunc(handler)
	}
}

func (auth *BasicIdentityProvider) AuthMiddleware() chi.Middlewares {
	return chi.Middlewares{auth.jwtManager.Verifier(), auth.jwtManager.Authenticator(), auth.addUserToContext(), auth.auditLog.Middleware}
}

func (auth *BasicIdentityProvider) OptionalAuthMiddleware() chi.Middlewares {
	return chi.Middlewares{auth.jwtManager.Verifier(), auth.addOptionalUserToContext(), auth.auditLog.Middleware}
}

func (auth *BasicIdentityProvider) LoginWithEmail(email, password string) (LoginResult, error) {
	var user schema.User
	result := auth.db.Limit(1).Find(&user, "email = ?", strings.ToLower(strings.TrimSpace(email)))
	if result.Error != nil {
		slog.Error("sql error looking up user by email", "error", result.Error)
		return LoginResult{}, schema.ErrDbAccessFailed
	}
	if result.RowsAffected == 0 {
		return LoginResult{}, ErrUserNotFoundWithEmail
	}

	err := bcrypt.CompareHashAndPassword(user.Password, []byte(password))
	if err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := auth.jwtManager.CreateUserJwt(user.Id)
	if err != nil {
		return LoginResult{}, ErrGeneratingJwt
	}

	return LoginResult{UserId: user.Id, AccessToken: token}, nil
}

func (auth *BasicIdentityProvider) CreateUser(params NewUser) (uuid.UUID, error) {
	username := strings.TrimSpace(params.Username)
	email := strings.ToLower(strings.TrimSpace(params.Email))
	if username == "" || email == "" || params.Password == "" {
		return uuid.Nil, ErrMissingUserFields
	}

	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcryptCost)
	if err != nil {
		return uuid.Nil, fmt.Errorf("error encrypting password: %w", err)
	}

	displayName := strings.TrimSpace(params.DisplayName)
	if displayName == "" {
		displayName = username
	}

	newUser := schema.User{Id: uuid.New(), Username: username, Email: email, DisplayName: displayName, Password: hashedPwd, IsAdmin: false}

	err = auth.db.Transaction(func(txn *gorm.DB) error {
		var existingUser schema.User
		result := txn.Limit(1).Find(&existingUser, "username = ? or email = ?", username, email)
		if result.Error != nil {
			slog.Error("sql error checking for existing username/email", "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected != 0 {
			if existingUser.Username == username {
				return ErrUsernameAlreadyInUse
			}
			return ErrEmailAlreadyInUse
		}

		result = txn.Create(&newUser)
		if result.Error != nil {
			slog.Error("sql error creating new user entry", "error", result.Error)
			return schema.ErrDbAccessFailed
		}

		return nil
	})

	if err != nil {
		return uuid.Nil, fmt.Errorf("error creating new user: %w", err)
	}

	slog.Info("created user", "user_id", newUser.Id, "username", username)

	return newUser.Id, nil
}

func (auth *BasicIdentityProvider) SessionCookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     JwtCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(auth.jwtManager.SessionDuration().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}
