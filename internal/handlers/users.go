package handlers

import (
	"net/http"
	"time"

	"github.com/apexrewards/pointsledger/internal/handlers/actorctx"
	"github.com/apexrewards/pointsledger/internal/handlers/render"
	"github.com/apexrewards/pointsledger/internal/logger"
	"github.com/apexrewards/pointsledger/internal/models"
)

type userResponse struct {
	Handle     string     `json:"handle"`
	Role       string     `json:"role"`
	Points     int64      `json:"points"`
	Verified   bool       `json:"verified"`
	Suspicious bool       `json:"suspicious"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastLogin  *time.Time `json:"lastLogin,omitempty"`
}

func toUserResponse(u models.User) userResponse {
	return userResponse{
		Handle:     u.Handle,
		Role:       u.Role,
		Points:     u.Points,
		Verified:   u.Verified,
		Suspicious: u.Suspicious,
		CreatedAt:  u.CreatedAt,
		LastLogin:  u.LastLogin,
	}
}

func handleRegisterUser(userService userService, l logger.Logger) http.Handler {
	type request struct {
		Handle string `json:"handle" validate:"required,min=3,max=30"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		user, err := userService.Register(r.Context(), actor, req.Handle)
		if err != nil {
			logIfInternal(l, "Failed to register user", err)
			render.AppError(w, err)
			return
		}

		render.JSONWithStatus(w, toUserResponse(user), http.StatusCreated)
	})
}

func handleGetUser(userService userService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := userService.Get(r.Context(), r.PathValue("handle"))
		if err != nil {
			logIfInternal(l, "Failed to get user", err)
			render.AppError(w, err)
			return
		}

		render.JSON(w, toUserResponse(user))
	})
}

func handleSetUserRole(userService userService, l logger.Logger) http.Handler {
	type request struct {
		Role string `json:"role" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		user, err := userService.SetRole(r.Context(), actor, r.PathValue("handle"), req.Role)
		if err != nil {
			logIfInternal(l, "Failed to set user role", err)
			render.AppError(w, err)
			return
		}

		render.JSON(w, toUserResponse(user))
	})
}

func handleSetUserVerified(userService userService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		user, err := userService.SetVerified(r.Context(), actor, r.PathValue("handle"))
		if err != nil {
			logIfInternal(l, "Failed to verify user", err)
			render.AppError(w, err)
			return
		}

		render.JSON(w, toUserResponse(user))
	})
}

func handleSetUserSuspicious(userService userService, l logger.Logger) http.Handler {
	type request struct {
		Suspicious *bool `json:"suspicious" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		user, err := userService.SetSuspicious(r.Context(), actor, r.PathValue("handle"), *req.Suspicious)
		if err != nil {
			logIfInternal(l, "Failed to set user suspicious flag", err)
			render.AppError(w, err)
			return
		}

		render.JSON(w, toUserResponse(user))
	})
}

func handleRecordUserLogin(userService userService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		if err := userService.RecordLogin(r.Context(), actor, r.PathValue("handle"), time.Now()); err != nil {
			logIfInternal(l, "Failed to record login", err)
			render.AppError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	})
}

func handleUserMe(userService userService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		user, err := userService.Get(r.Context(), actor.Handle)
		if err != nil {
			logIfInternal(l, "Failed to get own profile", err)
			render.AppError(w, err)
			return
		}

		render.JSON(w, toUserResponse(user))
	})
}
