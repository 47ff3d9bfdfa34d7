package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/apexrewards/pointsledger/internal/handlers/middleware"
	"github.com/apexrewards/pointsledger/internal/logger"
	"github.com/apexrewards/pointsledger/internal/metrics"
	"github.com/apexrewards/pointsledger/internal/models"
	"github.com/apexrewards/pointsledger/internal/ratelimit"
	"github.com/apexrewards/pointsledger/internal/repository"
	"github.com/apexrewards/pointsledger/internal/service/event"
	"github.com/apexrewards/pointsledger/internal/service/ledger"
	"github.com/apexrewards/pointsledger/internal/service/promotion"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	ledgerService ledgerService,
	promotionService promotionService,
	userService userService,
	eventService eventService,
	secretKey string,
	limiter ratelimit.Limiter,
	logger logger.Logger,
) http.Handler {
	actorMiddleware := middleware.ActorMiddleware(secretKey)
	rateLimitMiddleware := middleware.RateLimitMiddleware(limiter, logger)
	withActor := func(h http.Handler) http.Handler {
		return actorMiddleware(rateLimitMiddleware(h))
	}

	api := http.NewServeMux()

	api.Handle("POST /transactions/purchase", withActor(handleCreatePurchase(ledgerService, logger)))
	api.Handle("POST /transactions/redemption", withActor(handleCreateRedemption(ledgerService, logger)))
	api.Handle("POST /transactions/transfer", withActor(handleCreateTransfer(ledgerService, logger)))
	api.Handle("POST /transactions/adjustment", withActor(handleCreateAdjustment(ledgerService, logger)))
	api.Handle("POST /transactions/{id}/processed", withActor(handleProcessRedemption(ledgerService, logger)))
	api.Handle("PATCH /transactions/{id}/suspicious", withActor(handleSetSuspicious(ledgerService, logger)))
	api.Handle("GET /transactions", withActor(handleListTransactions(ledgerService, logger)))
	api.Handle("GET /transactions/{id}", withActor(handleGetTransaction(ledgerService, logger)))

	api.Handle("POST /users", withActor(handleRegisterUser(userService, logger)))
	api.Handle("GET /users/{handle}", withActor(handleGetUser(userService, logger)))
	api.Handle("PATCH /users/{handle}/role", withActor(handleSetUserRole(userService, logger)))
	api.Handle("PATCH /users/{handle}/verified", withActor(handleSetUserVerified(userService, logger)))
	api.Handle("PATCH /users/{handle}/suspicious", withActor(handleSetUserSuspicious(userService, logger)))
	api.Handle("POST /users/{handle}/login", withActor(handleRecordUserLogin(userService, logger)))

	api.Handle("GET /me", withActor(handleUserMe(userService, logger)))
	api.Handle("GET /me/transactions", withActor(handleListOwnTransactions(ledgerService, logger)))
	api.Handle("POST /me/promotions/{id}", withActor(handleAddPromotionToWallet(promotionService, logger)))
	api.Handle("DELETE /me/promotions/{id}", withActor(handleRemovePromotionFromWallet(promotionService, logger)))

	api.Handle("POST /promotions", withActor(handleCreatePromotion(promotionService, logger)))
	api.Handle("GET /promotions", withActor(handleListPromotions(promotionService, logger)))
	api.Handle("GET /promotions/{id}", withActor(handleGetPromotion(promotionService, logger)))
	api.Handle("PATCH /promotions/{id}", withActor(handleUpdatePromotion(promotionService, logger)))
	api.Handle("DELETE /promotions/{id}", withActor(handleDeletePromotion(promotionService, logger)))

	api.Handle("POST /events", withActor(handleCreateEvent(eventService, logger)))
	api.Handle("GET /events/{id}", withActor(handleGetEvent(eventService, logger)))
	api.Handle("POST /events/{id}/guests", withActor(handleAddEventGuest(eventService, logger)))
	api.Handle("DELETE /events/{id}/guests/{handle}", withActor(handleRemoveEventGuest(eventService, logger)))
	api.Handle("POST /events/{id}/organizers", withActor(handleAddEventOrganizer(eventService, logger)))
	api.Handle("POST /events/{id}/transactions", withActor(handleAwardEventPoints(ledgerService, logger)))

	root := http.NewServeMux()
	root.Handle("/api/", http.StripPrefix("/api", api))
	root.Handle("GET /metrics", metrics.Handler())

	handler := chain(root,
		middleware.MetricsMiddleware(),
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

type ledgerService interface {
	// Record a purchase for the receiver applying the given promotions.
	// Rejects the whole purchase if any promotion is not applicable.
	CreatePurchase(ctx context.Context, actor models.Actor, receiverHandle string, spend decimal.Decimal, promotionIDs []uuid.UUID, remark string) (models.Transaction, error)

	// Register a redemption request. Balance is not touched until processing.
	CreateRedemption(ctx context.Context, actor models.Actor, amount int64, remark string) (models.Transaction, error)

	// Mark a redemption processed and deduct the points. One shot only:
	// has to return apperrors.ErrAlreadyProcessed on repeat
	ProcessRedemption(ctx context.Context, actor models.Actor, transactionID uuid.UUID) (models.Transaction, error)

	CreateTransfer(ctx context.Context, actor models.Actor, receiverHandle string, amount int64, remark string) (out models.Transaction, in models.Transaction, err error)
	CreateAdjustment(ctx context.Context, actor models.Actor, receiverHandle string, amount int64, relatedID uuid.UUID, remark string) (models.Transaction, error)
	AwardEventPoints(ctx context.Context, actor models.Actor, eventID uuid.UUID, amount int64, guestHandle string) ([]models.Transaction, error)
	SetSuspicious(ctx context.Context, actor models.Actor, transactionID uuid.UUID, suspicious bool) (models.Transaction, error)

	List(ctx context.Context, actor models.Actor, filter repository.ListFilter) (ledger.Page, error)
	ListOwn(ctx context.Context, actor models.Actor, filter repository.ListFilter) (ledger.Page, error)
	Get(ctx context.Context, actor models.Actor, id uuid.UUID) (ledger.Entry, error)
}

type promotionService interface {
	Create(ctx context.Context, actor models.Actor, arg promotion.CreateParams) (models.Promotion, error)
	Update(ctx context.Context, actor models.Actor, id uuid.UUID, arg repository.UpdatePromotionParams) (models.Promotion, error)
	Delete(ctx context.Context, actor models.Actor, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (models.Promotion, error)
	List(ctx context.Context, filter repository.ListPromotionsFilter) ([]models.Promotion, error)
	AddToWallet(ctx context.Context, userHandle string, promotionID uuid.UUID) error
	RemoveFromWallet(ctx context.Context, userHandle string, promotionID uuid.UUID) error
}

type userService interface {
	Register(ctx context.Context, actor models.Actor, handle string) (models.User, error)
	Get(ctx context.Context, handle string) (models.User, error)
	SetRole(ctx context.Context, actor models.Actor, handle string, role string) (models.User, error)
	SetVerified(ctx context.Context, actor models.Actor, handle string) (models.User, error)
	SetSuspicious(ctx context.Context, actor models.Actor, handle string, suspicious bool) (models.User, error)
	RecordLogin(ctx context.Context, actor models.Actor, handle string, at time.Time) error
}

type eventService interface {
	Create(ctx context.Context, actor models.Actor, arg event.CreateParams) (models.Event, error)
	Get(ctx context.Context, id uuid.UUID) (models.Event, error)
	AddGuest(ctx context.Context, actor models.Actor, eventID uuid.UUID, userHandle string) error
	RemoveGuest(ctx context.Context, actor models.Actor, eventID uuid.UUID, userHandle string) error
	AddOrganizer(ctx context.Context, actor models.Actor, eventID uuid.UUID, userHandle string) error
}
