package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/apexrewards/pointsledger/internal/handlers/actorctx"
	"github.com/apexrewards/pointsledger/internal/handlers/render"
	"github.com/apexrewards/pointsledger/internal/logger"
	"github.com/apexrewards/pointsledger/internal/models"
	"github.com/apexrewards/pointsledger/internal/repository"
	"github.com/apexrewards/pointsledger/internal/service/promotion"
)

type promotionResponse struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Kind        string          `json:"kind"`
	StartsAt    time.Time       `json:"startsAt"`
	EndsAt      time.Time       `json:"endsAt"`
	MinSpending decimal.Decimal `json:"minSpending"`
	Rate        decimal.Decimal `json:"rate"`
	Points      int64           `json:"points"`
}

func toPromotionResponse(p models.Promotion) promotionResponse {
	return promotionResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Kind:        p.Kind,
		StartsAt:    p.StartsAt,
		EndsAt:      p.EndsAt,
		MinSpending: p.MinSpending,
		Rate:        p.Rate,
		Points:      p.Points,
	}
}

func handleCreatePromotion(promotionService promotionService, l logger.Logger) http.Handler {
	type request struct {
		Name        string          `json:"name" validate:"required"`
		Description string          `json:"description"`
		Kind        string          `json:"kind" validate:"required,oneof=automatic onetime"`
		StartsAt    time.Time       `json:"startsAt" validate:"required"`
		EndsAt      time.Time       `json:"endsAt" validate:"required"`
		MinSpending decimal.Decimal `json:"minSpending"`
		Rate        decimal.Decimal `json:"rate"`
		Points      int64           `json:"points"`
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

		p, err := promotionService.Create(r.Context(), actor, promotion.CreateParams{
			Name:        req.Name,
			Description: req.Description,
			Kind:        req.Kind,
			StartsAt:    req.StartsAt,
			EndsAt:      req.EndsAt,
			MinSpending: req.MinSpending,
			Rate:        req.Rate,
			Points:      req.Points,
		})
		if err != nil {
			logIfInternal(l, "Failed to create promotion", err)
			render.AppError(w, err)
			return
		}

		render.JSONWithStatus(w, toPromotionResponse(p), http.StatusCreated)
	})
}

func handleUpdatePromotion(promotionService promotionService, l logger.Logger) http.Handler {
	type request struct {
		Name        *string          `json:"name"`
		Description *string          `json:"description"`
		StartsAt    *time.Time       `json:"startsAt"`
		EndsAt      *time.Time       `json:"endsAt"`
		MinSpending *decimal.Decimal `json:"minSpending"`
		Rate        *decimal.Decimal `json:"rate"`
		Points      *int64           `json:"points"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "Invalid promotion id", http.StatusBadRequest)
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		p, err := promotionService.Update(r.Context(), actor, id, repository.UpdatePromotionParams{
			Name:        req.Name,
			Description: req.Description,
			StartsAt:    req.StartsAt,
			EndsAt:      req.EndsAt,
			MinSpending: req.MinSpending,
			Rate:        req.Rate,
			Points:      req.Points,
		})
		if err != nil {
			logIfInternal(l, "Failed to update promotion", err)
			render.AppError(w, err)
			return
		}

		render.JSON(w, toPromotionResponse(p))
	})
}

func handleDeletePromotion(promotionService promotionService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "Invalid promotion id", http.StatusBadRequest)
			return
		}

		if err := promotionService.Delete(r.Context(), actor, id); err != nil {
			logIfInternal(l, "Failed to delete promotion", err)
			render.AppError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	})
}

func handleGetPromotion(promotionService promotionService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "Invalid promotion id", http.StatusBadRequest)
			return
		}

		p, err := promotionService.Get(r.Context(), id)
		if err != nil {
			logIfInternal(l, "Failed to get promotion", err)
			render.AppError(w, err)
			return
		}

		render.JSON(w, toPromotionResponse(p))
	})
}

func handleListPromotions(promotionService promotionService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		filter := repository.ListPromotionsFilter{
			Kind: r.URL.Query().Get("kind"),
		}
		if r.URL.Query().Get("active") == "true" {
			now := time.Now()
			filter.ActiveAt = &now
		}

		promotions, err := promotionService.List(r.Context(), filter)
		if err != nil {
			logIfInternal(l, "Failed to list promotions", err)
			render.AppError(w, err)
			return
		}

		out := make([]promotionResponse, 0, len(promotions))
		for _, p := range promotions {
			out = append(out, toPromotionResponse(p))
		}
		render.JSON(w, out)
	})
}

func handleAddPromotionToWallet(promotionService promotionService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "Invalid promotion id", http.StatusBadRequest)
			return
		}

		if err := promotionService.AddToWallet(r.Context(), actor.Handle, id); err != nil {
			logIfInternal(l, "Failed to add promotion to wallet", err)
			render.AppError(w, err)
			return
		}

		w.WriteHeader(http.StatusCreated)
	})
}

func handleRemovePromotionFromWallet(promotionService promotionService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "Invalid promotion id", http.StatusBadRequest)
			return
		}

		if err := promotionService.RemoveFromWallet(r.Context(), actor.Handle, id); err != nil {
			logIfInternal(l, "Failed to remove promotion from wallet", err)
			render.AppError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	})
}
