package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"script_ink/script_bazaar/schema"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrUserNotFoundWithEmail = errors.New("no user found for given email")
	ErrInvalidCredentials    = errors.New("invalid login credentials")
	ErrGeneratingJwt         = errors.New("error generating jwt")
	ErrEmailAlreadyInUse     = errors.New("email is already in use")
	ErrUsernameAlreadyInUse  = errors.New("username is already in use")
	ErrMissingUserFields     = errors.New("username, email and password are required")
)

type LoginResult struct {
	UserId      uuid.UUID
	AccessToken string
}

type NewUser struct {
	Username    string
	Email       string
	Password    string
	DisplayName string
}

type IdentityProvider interface {
	// AuthMiddleware rejects requests without a valid session.
	AuthMiddleware() chi.Middlewares

	// OptionalAuthMiddleware resolves the session when there is one and lets
	// anonymous requests through.
	OptionalAuthMiddleware() chi.Middlewares

	LoginWithEmail(email, password string) (LoginResult, error)

	CreateUser(user NewUser) (uuid.UUID, error)

	SessionCookie(token string) *http.Cookie
}

func addInitialAdminToDb(db *gorm.DB, userId uuid.UUID, username, email string, password []byte) error {
	user := schema.User{
		Id:          userId,
		Username:    username,
		Email:       email,
		DisplayName: username,
		Password:    password,
		IsAdmin:     true,
	}

	err := db.Transaction(func(txn *gorm.DB) error {
		var existingUser schema.User
		result := txn.Limit(1).Find(&existingUser, "username = ? or email = ?", username, email)
		if result.Error != nil {
			slog.Error("sql error checking if admin has already been added", "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected == 0 {
			result := txn.Create(&user)
			if result.Error != nil {
				slog.Error("sql error creating initial admin user", "error", result.Error)
				return schema.ErrDbAccessFailed
			}
			slog.Info("created initial admin", "user_id", user.Id, "username", username)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("error adding initial admin to db: %w", err)
	}

	return nil
}

type requestContextKey string

const UserRequestContextKey requestContextKey = "user"
