package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/apexrewards/pointsledger/internal/apperrors"
	"github.com/apexrewards/pointsledger/internal/handlers/actorctx"
	"github.com/apexrewards/pointsledger/internal/handlers/render"
	"github.com/apexrewards/pointsledger/internal/logger"
	"github.com/apexrewards/pointsledger/internal/repository"
	"github.com/apexrewards/pointsledger/internal/service/ledger"
)

func handleCreatePurchase(ledgerService ledgerService, l logger.Logger) http.Handler {
	type request struct {
		Receiver     string          `json:"receiver" validate:"required"`
		Spent        decimal.Decimal `json:"spent"`
		PromotionIDs []uuid.UUID     `json:"promotionIds"`
		Remark       string          `json:"remark"`
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

		tr, err := ledgerService.CreatePurchase(r.Context(), actor, req.Receiver, req.Spent, req.PromotionIDs, req.Remark)
		if err != nil {
			logIfInternal(l, "Failed to create purchase", err)
			render.AppError(w, err)
			return
		}

		render.JSONWithStatus(w, ledger.Project(tr), http.StatusCreated)
	})
}

func handleCreateRedemption(ledgerService ledgerService, l logger.Logger) http.Handler {
	type request struct {
		Amount int64  `json:"amount" validate:"required,gt=0"`
		Remark string `json:"remark"`
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

		tr, err := ledgerService.CreateRedemption(r.Context(), actor, req.Amount, req.Remark)
		if err != nil {
			logIfInternal(l, "Failed to create redemption", err)
			render.AppError(w, err)
			return
		}

		render.JSONWithStatus(w, ledger.Project(tr), http.StatusCreated)
	})
}

func handleProcessRedemption(ledgerService ledgerService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "Invalid transaction id", http.StatusBadRequest)
			return
		}

		tr, err := ledgerService.ProcessRedemption(r.Context(), actor, id)
		if err != nil {
			logIfInternal(l, "Failed to process redemption", err)
			render.AppError(w, err)
			return
		}

		render.JSON(w, ledger.Project(tr))
	})
}

func handleCreateTransfer(ledgerService ledgerService, l logger.Logger) http.Handler {
	type request struct {
		Receiver string `json:"receiver" validate:"required"`
		Amount   int64  `json:"amount" validate:"required,gt=0"`
		Remark   string `json:"remark"`
	}

	type response struct {
		Outgoing ledger.Entry `json:"outgoing"`
		Incoming ledger.Entry `json:"incoming"`
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

		out, in, err := ledgerService.CreateTransfer(r.Context(), actor, req.Receiver, req.Amount, req.Remark)
		if err != nil {
			logIfInternal(l, "Failed to create transfer", err)
			render.AppError(w, err)
			return
		}

		render.JSONWithStatus(w, response{
			Outgoing: ledger.Project(out),
			Incoming: ledger.Project(in),
		}, http.StatusCreated)
	})
}

func handleCreateAdjustment(ledgerService ledgerService, l logger.Logger) http.Handler {
	type request struct {
		Receiver  string    `json:"receiver" validate:"required"`
		Amount    int64     `json:"amount" validate:"required"`
		RelatedID uuid.UUID `json:"relatedId" validate:"required"`
		Remark    string    `json:"remark"`
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

		tr, err := ledgerService.CreateAdjustment(r.Context(), actor, req.Receiver, req.Amount, req.RelatedID, req.Remark)
		if err != nil {
			logIfInternal(l, "Failed to create adjustment", err)
			render.AppError(w, err)
			return
		}

		render.JSONWithStatus(w, ledger.Project(tr), http.StatusCreated)
	})
}

func handleAwardEventPoints(ledgerService ledgerService, l logger.Logger) http.Handler {
	type request struct {
		Amount int64  `json:"amount" validate:"required,gt=0"`
		Guest  string `json:"guest"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		eventID, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "Invalid event id", http.StatusBadRequest)
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		awarded, err := ledgerService.AwardEventPoints(r.Context(), actor, eventID, req.Amount, req.Guest)
		if err != nil {
			logIfInternal(l, "Failed to award event points", err)
			render.AppError(w, err)
			return
		}

		entries := make([]ledger.Entry, 0, len(awarded))
		for _, tr := range awarded {
			entries = append(entries, ledger.Project(tr))
		}
		render.JSONWithStatus(w, entries, http.StatusCreated)
	})
}

func handleSetSuspicious(ledgerService ledgerService, l logger.Logger) http.Handler {
	type request struct {
		Suspicious *bool `json:"suspicious" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "Invalid transaction id", http.StatusBadRequest)
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		tr, err := ledgerService.SetSuspicious(r.Context(), actor, id, *req.Suspicious)
		if err != nil {
			logIfInternal(l, "Failed to set suspicious flag", err)
			render.AppError(w, err)
			return
		}

		render.JSON(w, ledger.Project(tr))
	})
}

func handleListTransactions(ledgerService ledgerService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		filter, err := parseListFilter(r)
		if err != nil {
			render.ServiceError(w, err.Error(), http.StatusBadRequest)
			return
		}

		page, err := ledgerService.List(r.Context(), actor, filter)
		if err != nil {
			logIfInternal(l, "Failed to list transactions", err)
			render.AppError(w, err)
			return
		}

		render.JSON(w, page)
	})
}

func handleListOwnTransactions(ledgerService ledgerService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		filter, err := parseListFilter(r)
		if err != nil {
			render.ServiceError(w, err.Error(), http.StatusBadRequest)
			return
		}

		page, err := ledgerService.ListOwn(r.Context(), actor, filter)
		if err != nil {
			logIfInternal(l, "Failed to list own transactions", err)
			render.AppError(w, err)
			return
		}

		render.JSON(w, page)
	})
}

func handleGetTransaction(ledgerService ledgerService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "Invalid transaction id", http.StatusBadRequest)
			return
		}

		entry, err := ledgerService.Get(r.Context(), actor, id)
		if err != nil {
			logIfInternal(l, "Failed to get transaction", err)
			render.AppError(w, err)
			return
		}

		render.JSON(w, entry)
	})
}

// parseListFilter reads the listing query parameters. Unknown parameters are
// ignored; malformed values are rejected.
func parseListFilter(r *http.Request) (repository.ListFilter, error) {
	var filter repository.ListFilter
	q := r.URL.Query()

	filter.Kind = q.Get("kind")
	filter.AmountOp = q.Get("operator")

	if v := q.Get("issuerId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return filter, errBadQueryParam("issuerId")
		}
		filter.IssuerID = &id
	}
	if v := q.Get("relatedId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return filter, errBadQueryParam("relatedId")
		}
		filter.RelatedID = &id
	}
	if v := q.Get("promotionId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return filter, errBadQueryParam("promotionId")
		}
		filter.PromotionID = &id
	}
	if v := q.Get("amount"); v != "" {
		amount, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return filter, errBadQueryParam("amount")
		}
		filter.Amount = &amount
	}
	if v := q.Get("suspicious"); v != "" {
		suspicious, err := strconv.ParseBool(v)
		if err != nil {
			return filter, errBadQueryParam("suspicious")
		}
		filter.Suspicious = &suspicious
	}
	if v := q.Get("createdAfter"); v != "" {
		at, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errBadQueryParam("createdAfter")
		}
		filter.CreatedAfter = &at
	}
	if v := q.Get("createdBefore"); v != "" {
		at, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errBadQueryParam("createdBefore")
		}
		filter.CreatedBefore = &at
	}
	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return filter, errBadQueryParam("page")
		}
		filter.Page = page
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			return filter, errBadQueryParam("limit")
		}
		filter.Limit = limit
	}

	return filter, nil
}

type queryParamError string

func errBadQueryParam(name string) error {
	return queryParamError(name)
}

func (e queryParamError) Error() string {
	return "Invalid query parameter: " + string(e)
}

// logIfInternal logs only unexpected failures; domain rejections are the
// caller's business, not log noise
func logIfInternal(l logger.Logger, msg string, err error) {
	if apperrors.KindOf(err) == apperrors.KindInternal {
		l.Error(msg, "error", err)
	}
}
