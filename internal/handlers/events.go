package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/apexrewards/pointsledger/internal/handlers/actorctx"
	"github.com/apexrewards/pointsledger/internal/handlers/render"
	"github.com/apexrewards/pointsledger/internal/logger"
	"github.com/apexrewards/pointsledger/internal/models"
	"github.com/apexrewards/pointsledger/internal/service/event"
)

type eventResponse struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	StartsAt      time.Time `json:"startsAt"`
	EndsAt        time.Time `json:"endsAt"`
	PointsRemain  int64     `json:"pointsRemain"`
	PointsAwarded int64     `json:"pointsAwarded"`
	GuestCount    int       `json:"guestCount"`
}

func toEventResponse(e models.Event) eventResponse {
	return eventResponse{
		ID:            e.ID,
		Name:          e.Name,
		Description:   e.Description,
		StartsAt:      e.StartsAt,
		EndsAt:        e.EndsAt,
		PointsRemain:  e.PointsRemain,
		PointsAwarded: e.PointsAwarded,
		GuestCount:    len(e.GuestIDs),
	}
}

func handleCreateEvent(eventService eventService, l logger.Logger) http.Handler {
	type request struct {
		Name         string    `json:"name" validate:"required"`
		Description  string    `json:"description"`
		StartsAt     time.Time `json:"startsAt" validate:"required"`
		EndsAt       time.Time `json:"endsAt" validate:"required"`
		PointsBudget int64     `json:"pointsBudget" validate:"min=0"`
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

		created, err := eventService.Create(r.Context(), actor, event.CreateParams{
			Name:         req.Name,
			Description:  req.Description,
			StartsAt:     req.StartsAt,
			EndsAt:       req.EndsAt,
			PointsBudget: req.PointsBudget,
		})
		if err != nil {
			logIfInternal(l, "Failed to create event", err)
			render.AppError(w, err)
			return
		}

		render.JSONWithStatus(w, toEventResponse(created), http.StatusCreated)
	})
}

func handleGetEvent(eventService eventService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "Invalid event id", http.StatusBadRequest)
			return
		}

		e, err := eventService.Get(r.Context(), id)
		if err != nil {
			logIfInternal(l, "Failed to get event", err)
			render.AppError(w, err)
			return
		}

		render.JSON(w, toEventResponse(e))
	})
}

func handleAddEventGuest(eventService eventService, l logger.Logger) http.Handler {
	type request struct {
		Handle string `json:"handle" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "Invalid event id", http.StatusBadRequest)
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		if err := eventService.AddGuest(r.Context(), actor, id, req.Handle); err != nil {
			logIfInternal(l, "Failed to add event guest", err)
			render.AppError(w, err)
			return
		}

		w.WriteHeader(http.StatusCreated)
	})
}

func handleRemoveEventGuest(eventService eventService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "Invalid event id", http.StatusBadRequest)
			return
		}

		if err := eventService.RemoveGuest(r.Context(), actor, id, r.PathValue("handle")); err != nil {
			logIfInternal(l, "Failed to remove event guest", err)
			render.AppError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	})
}

func handleAddEventOrganizer(eventService eventService, l logger.Logger) http.Handler {
	type request struct {
		Handle string `json:"handle" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "Invalid event id", http.StatusBadRequest)
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		if err := eventService.AddOrganizer(r.Context(), actor, id, req.Handle); err != nil {
			logIfInternal(l, "Failed to add event organizer", err)
			render.AppError(w, err)
			return
		}

		w.WriteHeader(http.StatusCreated)
	})
}
