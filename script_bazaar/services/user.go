package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"script_ink/script_bazaar/auth"
	"script_ink/script_bazaar/schema"
	"script_ink/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserService struct {
	db        *gorm.DB
	userAuth  auth.IdentityProvider
	authLimit int
}

func (s *UserService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		if s.authLimit > 0 {
			r.Use(httprate.LimitByIP(s.authLimit, time.Minute))
		}

		r.Post("/signup", s.Signup)
		r.Get("/login", s.LoginWithEmail)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Get("/info", s.Info)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.AdminOnly())

		r.Get("/list", s.List)
	})

	return r
}

type signupRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type signupResponse struct {
	UserId uuid.UUID `json:"user_id"`
}

func (s *UserService) Signup(w http.ResponseWriter, r *http.Request) {
	var params signupRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	userId, err := s.userAuth.CreateUser(auth.NewUser{
		Username:    params.Username,
		Email:       params.Email,
		Password:    params.Password,
		DisplayName: params.DisplayName,
	})
	if err != nil {
		responseCode := http.StatusInternalServerError
		switch {
		case errors.Is(err, auth.ErrMissingUserFields):
			responseCode = http.StatusBadRequest
		case errors.Is(err, auth.ErrEmailAlreadyInUse):
			responseCode = http.StatusConflict
		case errors.Is(err, auth.ErrUsernameAlreadyInUse):
			responseCode = http.StatusConflict
		}
		http.Error(w, err.Error(), responseCode)
		return
	}

	utils.WriteJsonResponse(w, signupResponse{UserId: userId})
}

type loginResponse struct {
	UserId      uuid.UUID `json:"user_id"`
	AccessToken string    `json:"access_token"`
}

func (s *UserService) LoginWithEmail(w http.ResponseWriter, r *http.Request) {
	email, password, ok := r.BasicAuth()
	if !ok {
		http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
		return
	}

	login, err := s.userAuth.LoginWithEmail(email, password)
	if err != nil {
		responseCode := http.StatusInternalServerError
		switch {
		case errors.Is(err, auth.ErrUserNotFoundWithEmail):
			responseCode = http.StatusUnauthorized
		case errors.Is(err, auth.ErrInvalidCredentials):
			responseCode = http.StatusUnauthorized
		}
		http.Error(w, fmt.Sprintf("login failed: %v", err), responseCode)
		return
	}

	http.SetCookie(w, s.userAuth.SessionCookie(login.AccessToken))
	utils.WriteJsonResponse(w, loginResponse{UserId: login.UserId, AccessToken: login.AccessToken})
}

type UserInfo struct {
	Id          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"displayName"`
	Email       string    `json:"email"`
	IsAdmin     bool      `json:"isAdmin"`
}

func convertToUserInfo(user schema.User) UserInfo {
	return UserInfo{
		Id:          user.Id,
		Username:    user.Username,
		DisplayName: user.Name(),
		Email:       user.Email,
		IsAdmin:     user.IsAdmin,
	}
}

func (s *UserService) Info(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, convertToUserInfo(user))
}

func (s *UserService) List(w http.ResponseWriter, r *http.Request) {
	var users []schema.User
	result := s.db.WithContext(r.Context()).Order("username").Find(&users)
	if result.Error != nil {
		slog.Error("sql error listing users", "error", result.Error)
		http.Error(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
		return
	}

	infos := make([]UserInfo, 0, len(users))
	for _, user := range users {
		infos = append(infos, convertToUserInfo(user))
	}

	utils.WriteJsonResponse(w, infos)
}
