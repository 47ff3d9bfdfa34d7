package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/apexrewards/pointsledger/internal/apperrors"
	"github.com/apexrewards/pointsledger/internal/models"
	"github.com/apexrewards/pointsledger/internal/repository"
	"github.com/apexrewards/pointsledger/internal/repository/postgres"
	"github.com/apexrewards/pointsledger/internal/testutil"
)

func TestDedupe(t *testing.T) {
	t.Parallel()

	a, b := uuid.New(), uuid.New()
	ids := []uuid.UUID{a, b, a, b, a}
	original := append([]uuid.UUID(nil), ids...)

	got := dedupe(ids)

	require.Equal(t, []uuid.UUID{a, b}, got)
	require.Equal(t, original, ids, "input slice must stay intact")
	require.Equal(t, []uuid.UUID{a}, dedupe([]uuid.UUID{a}))
	require.Empty(t, dedupe(nil))
}

func TestLedger(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	type fixture struct {
		storage  repository.Storage
		service  *Service
		cashier  models.User
		customer models.User
	}

	// Helper function to create the service and base users within transaction
	withTx := func(t *testing.T, fn func(f fixture)) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)

			cashier, err := storage.User().Create(t.Context(), repository.CreateUserParams{Handle: "cashier", Role: models.RoleCashier})
			require.NoError(t, err, "creating cashier should not fail")
			customer, err := storage.User().Create(t.Context(), repository.CreateUserParams{Handle: "customer", Verified: true})
			require.NoError(t, err, "creating customer should not fail")

			fn(fixture{
				storage:  storage,
				service:  NewService(storage, nil),
				cashier:  cashier,
				customer: customer,
			})
		})
	}

	asActor := func(u models.User) models.Actor {
		return models.Actor{UserID: u.ID, Handle: u.Handle, Role: u.Role, Verified: u.Verified, Suspicious: u.Suspicious}
	}

	spend := decimal.RequireFromString("19.90")

	t.Run("CreatePurchase", func(t *testing.T) {
		t.Run("plain purchase credits base points", func(t *testing.T) {
			withTx(t, func(f fixture) {
				tr, err := f.service.CreatePurchase(t.Context(), asActor(f.cashier), "customer", spend, nil, "store 4")

				require.NoError(t, err)
				require.Equal(t, models.KindPurchase, tr.Kind)
				require.Equal(t, int64(80), tr.Amount, "ceil(19.90 * 4)")
				require.Equal(t, f.cashier.ID, tr.IssuerID)
				require.Equal(t, f.customer.ID, tr.ReceiverID)
				require.False(t, tr.Suspicious)

				customer, err := f.storage.User().GetByID(t.Context(), f.customer.ID)
				require.NoError(t, err)
				require.Equal(t, int64(80), customer.Points)
			})
		})

		t.Run("promotions stack on the base", func(t *testing.T) {
			withTx(t, func(f fixture) {
				automatic, err := f.storage.Promotion().Create(t.Context(), models.Promotion{
					Name: "rate", Kind: models.PromotionAutomatic,
					StartsAt: time.Now().Add(-time.Hour), EndsAt: time.Now().Add(time.Hour),
					Rate: decimal.RequireFromString("0.05"),
				})
				require.NoError(t, err)
				oneTime, err := f.storage.Promotion().Create(t.Context(), models.Promotion{
					Name: "flat", Kind: models.PromotionOneTime,
					StartsAt: time.Now().Add(-time.Hour), EndsAt: time.Now().Add(time.Hour),
					Points: 50,
				})
				require.NoError(t, err)
				require.NoError(t, f.storage.Promotion().AddToWallet(t.Context(), f.customer.ID, oneTime.ID))

				tr, err := f.service.CreatePurchase(t.Context(), asActor(f.cashier), "customer",
					decimal.RequireFromString("20"), []uuid.UUID{automatic.ID, oneTime.ID}, "")

				require.NoError(t, err)
				require.Equal(t, int64(230), tr.Amount, "base 80 + rate 100 + flat 50")

				held, err := f.storage.Promotion().InWallet(t.Context(), f.customer.ID, oneTime.ID)
				require.NoError(t, err)
				require.False(t, held, "one-time promotion must be consumed")
			})
		})

		t.Run("one ineligible promotion rejects the whole purchase", func(t *testing.T) {
			withTx(t, func(f fixture) {
				automatic, err := f.storage.Promotion().Create(t.Context(), models.Promotion{
					Name: "rate", Kind: models.PromotionAutomatic,
					StartsAt: time.Now().Add(-time.Hour), EndsAt: time.Now().Add(time.Hour),
					Rate: decimal.RequireFromString("0.05"),
				})
				require.NoError(t, err)
				notHeld, err := f.storage.Promotion().Create(t.Context(), models.Promotion{
					Name: "unheld", Kind: models.PromotionOneTime,
					StartsAt: time.Now().Add(-time.Hour), EndsAt: time.Now().Add(time.Hour),
					Points: 50,
				})
				require.NoError(t, err)

				_, err = f.service.CreatePurchase(t.Context(), asActor(f.cashier), "customer",
					spend, []uuid.UUID{automatic.ID, notHeld.ID}, "")

				require.ErrorIs(t, err, apperrors.ErrPromotionIneligible)

				customer, err := f.storage.User().GetByID(t.Context(), f.customer.ID)
				require.NoError(t, err)
				require.Equal(t, int64(0), customer.Points, "rejected purchase must leave no trace")

				count, err := f.storage.Transaction().Count(t.Context(), repository.ListFilter{})
				require.NoError(t, err)
				require.Equal(t, int64(0), count)
			})
		})

		t.Run("below minimum spending rejects", func(t *testing.T) {
			withTx(t, func(f fixture) {
				promo, err := f.storage.Promotion().Create(t.Context(), models.Promotion{
					Name: "big spender", Kind: models.PromotionAutomatic,
					StartsAt: time.Now().Add(-time.Hour), EndsAt: time.Now().Add(time.Hour),
					MinSpending: decimal.RequireFromString("100"),
				})
				require.NoError(t, err)

				_, err = f.service.CreatePurchase(t.Context(), asActor(f.cashier), "customer", spend, []uuid.UUID{promo.ID}, "")

				require.ErrorIs(t, err, apperrors.ErrPromotionIneligible)
			})
		})

		t.Run("suspicious cashier withholds the credit", func(t *testing.T) {
			withTx(t, func(f fixture) {
				suspect := asActor(f.cashier)
				suspect.Suspicious = true

				tr, err := f.service.CreatePurchase(t.Context(), suspect, "customer", spend, nil, "")

				require.NoError(t, err)
				require.True(t, tr.Suspicious)
				require.Equal(t, int64(80), tr.Amount, "the true amount is still recorded")

				customer, err := f.storage.User().GetByID(t.Context(), f.customer.ID)
				require.NoError(t, err)
				require.Equal(t, int64(0), customer.Points)
			})
		})

		t.Run("regular actor forbidden", func(t *testing.T) {
			withTx(t, func(f fixture) {
				_, err := f.service.CreatePurchase(t.Context(), asActor(f.customer), "cashier", spend, nil, "")

				require.ErrorIs(t, err, apperrors.ErrForbidden)
			})
		})

		t.Run("negative spend rejected", func(t *testing.T) {
			withTx(t, func(f fixture) {
				_, err := f.service.CreatePurchase(t.Context(), asActor(f.cashier), "customer", decimal.RequireFromString("-1"), nil, "")

				require.ErrorIs(t, err, apperrors.ErrAmountInvalid)
			})
		})
	})

	t.Run("Redemption", func(t *testing.T) {
		t.Run("create leaves the balance alone", func(t *testing.T) {
			withTx(t, func(f fixture) {
				_, err := f.storage.User().AddPoints(t.Context(), f.customer.ID, 200)
				require.NoError(t, err)

				tr, err := f.service.CreateRedemption(t.Context(), asActor(f.customer), 150, "gift card")

				require.NoError(t, err)
				require.Equal(t, int64(150), tr.Amount, "stored positive")
				require.False(t, tr.Processed)

				customer, err := f.storage.User().GetByID(t.Context(), f.customer.ID)
				require.NoError(t, err)
				require.Equal(t, int64(200), customer.Points, "no deduction before processing")
			})
		})

		t.Run("requires covering balance and verified account", func(t *testing.T) {
			withTx(t, func(f fixture) {
				_, err := f.service.CreateRedemption(t.Context(), asActor(f.customer), 1, "")
				require.ErrorIs(t, err, apperrors.ErrBalanceInsufficient)

				unverified := asActor(f.customer)
				unverified.Verified = false
				_, err = f.service.CreateRedemption(t.Context(), unverified, 1, "")
				require.ErrorIs(t, err, apperrors.ErrNotVerified)
			})
		})

		t.Run("processing deducts exactly once", func(t *testing.T) {
			withTx(t, func(f fixture) {
				_, err := f.storage.User().AddPoints(t.Context(), f.customer.ID, 200)
				require.NoError(t, err)
				tr, err := f.service.CreateRedemption(t.Context(), asActor(f.customer), 150, "")
				require.NoError(t, err)

				processed, err := f.service.ProcessRedemption(t.Context(), asActor(f.cashier), tr.ID)

				require.NoError(t, err)
				require.True(t, processed.Processed)
				require.NotNil(t, processed.ProcessedBy)
				require.Equal(t, f.cashier.ID, *processed.ProcessedBy)

				customer, err := f.storage.User().GetByID(t.Context(), f.customer.ID)
				require.NoError(t, err)
				require.Equal(t, int64(50), customer.Points)

				_, err = f.service.ProcessRedemption(t.Context(), asActor(f.cashier), tr.ID)
				require.ErrorIs(t, err, apperrors.ErrAlreadyProcessed)

				customer, err = f.storage.User().GetByID(t.Context(), f.customer.ID)
				require.NoError(t, err)
				require.Equal(t, int64(50), customer.Points, "repeat processing must not deduct again")
			})
		})

		t.Run("drained balance aborts processing", func(t *testing.T) {
			withTx(t, func(f fixture) {
				_, err := f.storage.User().AddPoints(t.Context(), f.customer.ID, 200)
				require.NoError(t, err)
				tr, err := f.service.CreateRedemption(t.Context(), asActor(f.customer), 150, "")
				require.NoError(t, err)

				// Balance spent elsewhere between request and processing
				_, err = f.storage.User().AddPoints(t.Context(), f.customer.ID, -100)
				require.NoError(t, err)

				_, err = f.service.ProcessRedemption(t.Context(), asActor(f.cashier), tr.ID)
				require.ErrorIs(t, err, apperrors.ErrBalanceInsufficient)

				got, err := f.storage.Transaction().GetByID(t.Context(), tr.ID)
				require.NoError(t, err)
				require.False(t, got.Processed, "aborted processing must roll back the processed mark")
			})
		})

		t.Run("regular actor cannot process", func(t *testing.T) {
			withTx(t, func(f fixture) {
				_, err := f.service.ProcessRedemption(t.Context(), asActor(f.customer), uuid.New())
				require.ErrorIs(t, err, apperrors.ErrForbidden)
			})
		})
	})

	t.Run("CreateTransfer", func(t *testing.T) {
		t.Run("moves points and links both halves", func(t *testing.T) {
			withTx(t, func(f fixture) {
				receiver, err := f.storage.User().Create(t.Context(), repository.CreateUserParams{Handle: "friend"})
				require.NoError(t, err)
				_, err = f.storage.User().AddPoints(t.Context(), f.customer.ID, 100)
				require.NoError(t, err)

				out, in, err := f.service.CreateTransfer(t.Context(), asActor(f.customer), "friend", 40, "lunch")

				require.NoError(t, err)
				require.Equal(t, int64(-40), out.Amount)
				require.Equal(t, f.customer.ID, out.ReceiverID, "outgoing half stays on the sender's ledger")
				require.NotNil(t, out.RelatedID)
				require.Equal(t, receiver.ID, *out.RelatedID)

				require.Equal(t, int64(40), in.Amount)
				require.Equal(t, receiver.ID, in.ReceiverID)
				require.NotNil(t, in.RelatedID)
				require.Equal(t, f.customer.ID, *in.RelatedID)

				sender, err := f.storage.User().GetByID(t.Context(), f.customer.ID)
				require.NoError(t, err)
				require.Equal(t, int64(60), sender.Points)

				got, err := f.storage.User().GetByID(t.Context(), receiver.ID)
				require.NoError(t, err)
				require.Equal(t, int64(40), got.Points)
			})
		})

		t.Run("self transfer rejected", func(t *testing.T) {
			withTx(t, func(f fixture) {
				_, err := f.storage.User().AddPoints(t.Context(), f.customer.ID, 100)
				require.NoError(t, err)

				_, _, err = f.service.CreateTransfer(t.Context(), asActor(f.customer), "customer", 10, "")
				require.ErrorIs(t, err, apperrors.ErrSelfTransfer)
			})
		})

		t.Run("insufficient balance leaves no records", func(t *testing.T) {
			withTx(t, func(f fixture) {
				_, _, err := f.service.CreateTransfer(t.Context(), asActor(f.customer), "cashier", 10, "")
				require.ErrorIs(t, err, apperrors.ErrBalanceInsufficient)

				count, err := f.storage.Transaction().Count(t.Context(), repository.ListFilter{})
				require.NoError(t, err)
				require.Equal(t, int64(0), count)
			})
		})
	})

	t.Run("CreateAdjustment", func(t *testing.T) {
		t.Run("signed correction moves the balance", func(t *testing.T) {
			withTx(t, func(f fixture) {
				manager, err := f.storage.User().Create(t.Context(), repository.CreateUserParams{Handle: "manager", Role: models.RoleManager})
				require.NoError(t, err)

				purchase, err := f.service.CreatePurchase(t.Context(), asActor(f.cashier), "customer", spend, nil, "")
				require.NoError(t, err)

				tr, err := f.service.CreateAdjustment(t.Context(), asActor(manager), "customer", -30, purchase.ID, "till error")

				require.NoError(t, err)
				require.Equal(t, models.KindAdjustment, tr.Kind)
				require.NotNil(t, tr.RelatedID)
				require.Equal(t, purchase.ID, *tr.RelatedID)

				customer, err := f.storage.User().GetByID(t.Context(), f.customer.ID)
				require.NoError(t, err)
				require.Equal(t, int64(50), customer.Points)
			})
		})

		t.Run("requires manager, non-zero amount, known related transaction", func(t *testing.T) {
			withTx(t, func(f fixture) {
				manager, err := f.storage.User().Create(t.Context(), repository.CreateUserParams{Handle: "manager", Role: models.RoleManager})
				require.NoError(t, err)

				_, err = f.service.CreateAdjustment(t.Context(), asActor(f.cashier), "customer", 10, uuid.New(), "")
				require.ErrorIs(t, err, apperrors.ErrForbidden)

				_, err = f.service.CreateAdjustment(t.Context(), asActor(manager), "customer", 0, uuid.New(), "")
				require.ErrorIs(t, err, apperrors.ErrAmountInvalid)

				_, err = f.service.CreateAdjustment(t.Context(), asActor(manager), "customer", 10, uuid.New(), "")
				require.ErrorIs(t, err, apperrors.ErrTransactionNotFound)
			})
		})
	})

	t.Run("AwardEventPoints", func(t *testing.T) {
		setup := func(t *testing.T, f fixture, budget int64) (models.Event, models.User, models.User) {
			event, err := f.storage.Event().Create(t.Context(), models.Event{
				Name: "meetup", StartsAt: time.Now(), EndsAt: time.Now().Add(4 * time.Hour),
				PointsRemain: budget,
			})
			require.NoError(t, err)

			first, err := f.storage.User().Create(t.Context(), repository.CreateUserParams{Handle: "guest-one"})
			require.NoError(t, err)
			second, err := f.storage.User().Create(t.Context(), repository.CreateUserParams{Handle: "guest-two"})
			require.NoError(t, err)
			require.NoError(t, f.storage.Event().AddGuest(t.Context(), event.ID, first.ID))
			require.NoError(t, f.storage.Event().AddGuest(t.Context(), event.ID, second.ID))

			return event, first, second
		}

		t.Run("award to all guests", func(t *testing.T) {
			withTx(t, func(f fixture) {
				manager, err := f.storage.User().Create(t.Context(), repository.CreateUserParams{Handle: "manager", Role: models.RoleManager})
				require.NoError(t, err)
				event, first, second := setup(t, f, 100)

				created, err := f.service.AwardEventPoints(t.Context(), asActor(manager), event.ID, 25, "")

				require.NoError(t, err)
				require.Len(t, created, 2)

				gotEvent, err := f.storage.Event().GetByID(t.Context(), event.ID)
				require.NoError(t, err)
				require.Equal(t, int64(50), gotEvent.PointsRemain)
				require.Equal(t, int64(50), gotEvent.PointsAwarded)

				for _, guestID := range []uuid.UUID{first.ID, second.ID} {
					guest, err := f.storage.User().GetByID(t.Context(), guestID)
					require.NoError(t, err)
					require.Equal(t, int64(25), guest.Points)
				}
			})
		})

		t.Run("organizer can award a single guest", func(t *testing.T) {
			withTx(t, func(f fixture) {
				event, first, _ := setup(t, f, 100)
				organizer, err := f.storage.User().Create(t.Context(), repository.CreateUserParams{Handle: "organizer"})
				require.NoError(t, err)
				require.NoError(t, f.storage.Event().AddOrganizer(t.Context(), event.ID, organizer.ID))

				created, err := f.service.AwardEventPoints(t.Context(), asActor(organizer), event.ID, 30, "guest-one")

				require.NoError(t, err)
				require.Len(t, created, 1)
				require.Equal(t, first.ID, created[0].ReceiverID)
				require.NotNil(t, created[0].RelatedID)
				require.Equal(t, event.ID, *created[0].RelatedID)
			})
		})

		t.Run("short pool grants nothing", func(t *testing.T) {
			withTx(t, func(f fixture) {
				manager, err := f.storage.User().Create(t.Context(), repository.CreateUserParams{Handle: "manager", Role: models.RoleManager})
				require.NoError(t, err)
				event, first, _ := setup(t, f, 40)

				// Two guests at 25 each needs 50, the pool holds 40
				_, err = f.service.AwardEventPoints(t.Context(), asActor(manager), event.ID, 25, "")
				require.ErrorIs(t, err, apperrors.ErrEventPoolInsufficient)

				guest, err := f.storage.User().GetByID(t.Context(), first.ID)
				require.NoError(t, err)
				require.Equal(t, int64(0), guest.Points, "partial awards are not allowed")
			})
		})

		t.Run("outsider cannot award", func(t *testing.T) {
			withTx(t, func(f fixture) {
				event, _, _ := setup(t, f, 100)

				_, err := f.service.AwardEventPoints(t.Context(), asActor(f.customer), event.ID, 10, "")
				require.ErrorIs(t, err, apperrors.ErrForbidden)
			})
		})

		t.Run("non-guest handle rejected", func(t *testing.T) {
			withTx(t, func(f fixture) {
				manager, err := f.storage.User().Create(t.Context(), repository.CreateUserParams{Handle: "manager", Role: models.RoleManager})
				require.NoError(t, err)
				event, _, _ := setup(t, f, 100)

				_, err = f.service.AwardEventPoints(t.Context(), asActor(manager), event.ID, 10, "customer")
				require.ErrorIs(t, err, apperrors.ErrGuestNotFound)
			})
		})
	})

	t.Run("SetSuspicious", func(t *testing.T) {
		t.Run("flagging a purchase claws the credit back once", func(t *testing.T) {
			withTx(t, func(f fixture) {
				manager, err := f.storage.User().Create(t.Context(), repository.CreateUserParams{Handle: "manager", Role: models.RoleManager})
				require.NoError(t, err)
				purchase, err := f.service.CreatePurchase(t.Context(), asActor(f.cashier), "customer", spend, nil, "")
				require.NoError(t, err)

				tr, err := f.service.SetSuspicious(t.Context(), asActor(manager), purchase.ID, true)
				require.NoError(t, err)
				require.True(t, tr.Suspicious)

				customer, err := f.storage.User().GetByID(t.Context(), f.customer.ID)
				require.NoError(t, err)
				require.Equal(t, int64(0), customer.Points)

				// Repeating the mark is a no-op
				_, err = f.service.SetSuspicious(t.Context(), asActor(manager), purchase.ID, true)
				require.NoError(t, err)

				customer, err = f.storage.User().GetByID(t.Context(), f.customer.ID)
				require.NoError(t, err)
				require.Equal(t, int64(0), customer.Points, "repeated mark must not deduct again")

				// Clearing restores the credit
				_, err = f.service.SetSuspicious(t.Context(), asActor(manager), purchase.ID, false)
				require.NoError(t, err)

				customer, err = f.storage.User().GetByID(t.Context(), f.customer.ID)
				require.NoError(t, err)
				require.Equal(t, int64(80), customer.Points)
			})
		})

		t.Run("clearing a withheld purchase releases the credit", func(t *testing.T) {
			withTx(t, func(f fixture) {
				manager, err := f.storage.User().Create(t.Context(), repository.CreateUserParams{Handle: "manager", Role: models.RoleManager})
				require.NoError(t, err)
				suspect := asActor(f.cashier)
				suspect.Suspicious = true
				purchase, err := f.service.CreatePurchase(t.Context(), suspect, "customer", spend, nil, "")
				require.NoError(t, err)

				_, err = f.service.SetSuspicious(t.Context(), asActor(manager), purchase.ID, false)
				require.NoError(t, err)

				customer, err := f.storage.User().GetByID(t.Context(), f.customer.ID)
				require.NoError(t, err)
				require.Equal(t, int64(80), customer.Points, "clearing the flag pays out the withheld amount")
			})
		})

		t.Run("only purchases and adjustments", func(t *testing.T) {
			withTx(t, func(f fixture) {
				manager, err := f.storage.User().Create(t.Context(), repository.CreateUserParams{Handle: "manager", Role: models.RoleManager})
				require.NoError(t, err)
				_, err = f.storage.User().AddPoints(t.Context(), f.customer.ID, 100)
				require.NoError(t, err)
				redemption, err := f.service.CreateRedemption(t.Context(), asActor(f.customer), 50, "")
				require.NoError(t, err)

				_, err = f.service.SetSuspicious(t.Context(), asActor(manager), redemption.ID, true)
				require.ErrorIs(t, err, apperrors.ErrAmountInvalid)
			})
		})

		t.Run("cashier cannot flag", func(t *testing.T) {
			withTx(t, func(f fixture) {
				_, err := f.service.SetSuspicious(t.Context(), asActor(f.cashier), uuid.New(), true)
				require.ErrorIs(t, err, apperrors.ErrForbidden)
			})
		})
	})

	t.Run("Listing", func(t *testing.T) {
		t.Run("list requires manager, listOwn is scoped", func(t *testing.T) {
			withTx(t, func(f fixture) {
				manager, err := f.storage.User().Create(t.Context(), repository.CreateUserParams{Handle: "manager", Role: models.RoleManager})
				require.NoError(t, err)

				_, err = f.service.CreatePurchase(t.Context(), asActor(f.cashier), "customer", spend, nil, "")
				require.NoError(t, err)
				_, err = f.service.CreatePurchase(t.Context(), asActor(f.cashier), "manager", spend, nil, "")
				require.NoError(t, err)

				_, err = f.service.List(t.Context(), asActor(f.customer), repository.ListFilter{})
				require.ErrorIs(t, err, apperrors.ErrForbidden)

				page, err := f.service.List(t.Context(), asActor(manager), repository.ListFilter{})
				require.NoError(t, err)
				require.Equal(t, int64(2), page.Count)
				require.Len(t, page.Results, 2)

				own, err := f.service.ListOwn(t.Context(), asActor(f.customer), repository.ListFilter{})
				require.NoError(t, err)
				require.Equal(t, int64(1), own.Count, "own listing sees only the actor's entries")
			})
		})
	})
}
