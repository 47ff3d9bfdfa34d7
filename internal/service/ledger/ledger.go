package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/apexrewards/pointsledger/internal/apperrors"
	"github.com/apexrewards/pointsledger/internal/audit"
	"github.com/apexrewards/pointsledger/internal/metrics"
	"github.com/apexrewards/pointsledger/internal/models"
	"github.com/apexrewards/pointsledger/internal/repository"
	"github.com/apexrewards/pointsledger/internal/service/promotion"
)

// Service is the transaction engine. Every operation validates its
// preconditions first and then commits balance change, transaction record and
// promotion consumption as one database transaction, so a failed request
// leaves no trace in the ledger.
type Service struct {
	storage repository.Storage
	audit   audit.Publisher

	// now is swappable in tests
	now func() time.Time
}

func NewService(storage repository.Storage, publisher audit.Publisher) *Service {
	if publisher == nil {
		publisher = audit.Noop{}
	}

	return &Service{
		storage: storage,
		audit:   publisher,
		now:     time.Now,
	}
}

// CreatePurchase records a purchase by receiverHandle issued by the acting
// cashier. Base points are ceil(spend * 4); every listed promotion must be
// eligible or the whole purchase is rejected. One-time promotions are
// consumed from the receiver's wallet in the same database transaction.
//
// A suspicious cashier still produces a record with the true computed amount,
// flagged suspicious, but the receiver's balance is not credited until the
// flag is cleared.
func (s *Service) CreatePurchase(ctx context.Context, actor models.Actor, receiverHandle string, spend decimal.Decimal, promotionIDs []uuid.UUID, remark string) (models.Transaction, error) {
	var created models.Transaction

	if !actor.IsAtLeast(models.RoleCashier) {
		return created, apperrors.ErrForbidden
	}
	if spend.IsNegative() {
		return created, fmt.Errorf("%w: spend must not be negative", apperrors.ErrAmountInvalid)
	}

	promotionIDs = dedupe(promotionIDs)
	now := s.now()

	err := s.storage.InTx(ctx, func(storage repository.Storage) error {
		receiver, err := storage.User().GetByHandle(ctx, receiverHandle)
		if err != nil {
			return err
		}

		amount := promotion.BasePoints(spend)

		var consume []uuid.UUID
		for _, promotionID := range promotionIDs {
			p, err := storage.Promotion().GetByID(ctx, promotionID)
			if err != nil {
				return err
			}

			inWallet := false
			if p.Kind == models.PromotionOneTime {
				inWallet, err = storage.Promotion().InWallet(ctx, receiver.ID, promotionID)
				if err != nil {
					return err
				}
				consume = append(consume, promotionID)
			}

			result := promotion.Evaluate(p, inWallet, spend, now)
			if !result.Eligible {
				return fmt.Errorf("%w: %q: %s", apperrors.ErrPromotionIneligible, p.Name, result.Reason)
			}

			amount += result.Bonus
		}

		created, err = storage.Transaction().Create(ctx, models.Transaction{
			Kind:         models.KindPurchase,
			IssuerID:     actor.UserID,
			ReceiverID:   receiver.ID,
			Remark:       remark,
			Spent:        spend,
			Amount:       amount,
			Suspicious:   actor.Suspicious,
			PromotionIDs: promotionIDs,
		})
		if err != nil {
			return err
		}

		// Wallet consumption rides the same transaction, so a one-time
		// promotion racing on two purchases fails one of them here
		for _, promotionID := range consume {
			if err := storage.Promotion().Consume(ctx, receiver.ID, promotionID); err != nil {
				return err
			}
		}

		if !created.Suspicious {
			if _, err := storage.User().AddPoints(ctx, receiver.ID, amount); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return models.Transaction{}, err
	}

	s.recordCreated(ctx, created)
	return created, nil
}

// CreateRedemption files a redemption request for the acting user's own
// points. The balance is untouched until a privileged actor processes it.
func (s *Service) CreateRedemption(ctx context.Context, actor models.Actor, amount int64, remark string) (models.Transaction, error) {
	var created models.Transaction

	if amount <= 0 {
		return created, fmt.Errorf("%w: redemption amount must be positive", apperrors.ErrAmountInvalid)
	}
	if !actor.Verified {
		return created, apperrors.ErrNotVerified
	}

	err := s.storage.InTx(ctx, func(storage repository.Storage) error {
		user, err := storage.User().GetByID(ctx, actor.UserID)
		if err != nil {
			return err
		}
		if user.Points < amount {
			return apperrors.ErrBalanceInsufficient
		}

		created, err = storage.Transaction().Create(ctx, models.Transaction{
			Kind:       models.KindRedemption,
			IssuerID:   actor.UserID,
			ReceiverID: actor.UserID,
			Remark:     remark,
			Amount:     amount,
		})
		return err
	})
	if err != nil {
		return models.Transaction{}, err
	}

	s.recordCreated(ctx, created)
	return created, nil
}

// ProcessRedemption finalizes a pending redemption: flips processed exactly
// once and only then decrements the requester's balance. A balance drained
// below the requested amount since the request was filed aborts processing.
func (s *Service) ProcessRedemption(ctx context.Context, actor models.Actor, transactionID uuid.UUID) (models.Transaction, error) {
	var processed models.Transaction

	if !actor.IsAtLeast(models.RoleCashier) {
		return processed, apperrors.ErrForbidden
	}

	err := s.storage.InTx(ctx, func(storage repository.Storage) error {
		tr, err := storage.Transaction().MarkProcessed(ctx, transactionID, actor.UserID)
		if err != nil {
			return err
		}

		if _, err := storage.User().AddPoints(ctx, tr.ReceiverID, -tr.Amount); err != nil {
			return err
		}

		processed = tr
		return nil
	})
	if err != nil {
		return models.Transaction{}, err
	}

	s.audit.TransactionProcessed(ctx, processed)
	return processed, nil
}

// CreateTransfer moves amount from the acting user to receiverHandle. Two
// linked records are written, each carrying the other party in relatedId, and
// both balances move in one database transaction.
func (s *Service) CreateTransfer(ctx context.Context, actor models.Actor, receiverHandle string, amount int64, remark string) (out models.Transaction, in models.Transaction, err error) {
	if amount <= 0 {
		return out, in, fmt.Errorf("%w: transfer amount must be positive", apperrors.ErrAmountInvalid)
	}
	if !actor.Verified {
		return out, in, apperrors.ErrNotVerified
	}

	err = s.storage.InTx(ctx, func(storage repository.Storage) error {
		receiver, err := storage.User().GetByHandle(ctx, receiverHandle)
		if err != nil {
			return err
		}
		if receiver.ID == actor.UserID {
			return apperrors.ErrSelfTransfer
		}

		sender, err := storage.User().GetByID(ctx, actor.UserID)
		if err != nil {
			return err
		}
		if sender.Points < amount {
			return apperrors.ErrBalanceInsufficient
		}

		if err := storage.User().TransferPoints(ctx, sender.ID, receiver.ID, amount); err != nil {
			return err
		}

		receiverID, senderID := receiver.ID, sender.ID

		out, err = storage.Transaction().Create(ctx, models.Transaction{
			Kind:       models.KindTransfer,
			IssuerID:   sender.ID,
			ReceiverID: sender.ID,
			Remark:     remark,
			Amount:     -amount,
			RelatedID:  &receiverID,
		})
		if err != nil {
			return err
		}

		in, err = storage.Transaction().Create(ctx, models.Transaction{
			Kind:       models.KindTransfer,
			IssuerID:   sender.ID,
			ReceiverID: receiver.ID,
			Remark:     remark,
			Amount:     amount,
			RelatedID:  &senderID,
		})
		return err
	})
	if err != nil {
		return models.Transaction{}, models.Transaction{}, err
	}

	s.recordCreated(ctx, out)
	s.recordCreated(ctx, in)
	return out, in, nil
}

// CreateAdjustment applies a signed manager correction to receiverHandle's
// balance. relatedID must reference the transaction being corrected.
func (s *Service) CreateAdjustment(ctx context.Context, actor models.Actor, receiverHandle string, amount int64, relatedID uuid.UUID, remark string) (models.Transaction, error) {
	var created models.Transaction

	if !actor.IsAtLeast(models.RoleManager) {
		return created, apperrors.ErrForbidden
	}
	if amount == 0 {
		return created, fmt.Errorf("%w: adjustment amount must not be zero", apperrors.ErrAmountInvalid)
	}
	if relatedID == uuid.Nil {
		return created, fmt.Errorf("%w: adjustment requires a related transaction", apperrors.ErrAmountInvalid)
	}

	err := s.storage.InTx(ctx, func(storage repository.Storage) error {
		receiver, err := storage.User().GetByHandle(ctx, receiverHandle)
		if err != nil {
			return err
		}

		if _, err := storage.Transaction().GetByID(ctx, relatedID); err != nil {
			return err
		}

		created, err = storage.Transaction().Create(ctx, models.Transaction{
			Kind:       models.KindAdjustment,
			IssuerID:   actor.UserID,
			ReceiverID: receiver.ID,
			Remark:     remark,
			Amount:     amount,
			RelatedID:  &relatedID,
		})
		if err != nil {
			return err
		}

		_, err = storage.User().AddPoints(ctx, receiver.ID, amount)
		return err
	})
	if err != nil {
		return models.Transaction{}, err
	}

	s.recordCreated(ctx, created)
	return created, nil
}

// AwardEventPoints grants amount points per guest from the event's point
// pool, either to one named guest or to every current guest. The pool must
// cover the whole award up front; nothing is granted otherwise.
func (s *Service) AwardEventPoints(ctx context.Context, actor models.Actor, eventID uuid.UUID, amount int64, guestHandle string) ([]models.Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: award amount must be positive", apperrors.ErrAmountInvalid)
	}

	var created []models.Transaction

	err := s.storage.InTx(ctx, func(storage repository.Storage) error {
		event, err := storage.Event().GetByID(ctx, eventID)
		if err != nil {
			return err
		}
		if !actor.IsAtLeast(models.RoleManager) && !event.IsOrganizer(actor.UserID) {
			return apperrors.ErrForbidden
		}

		guestIDs := event.GuestIDs
		if guestHandle != "" {
			guest, err := storage.User().GetByHandle(ctx, guestHandle)
			if err != nil {
				return err
			}
			if !event.IsGuest(guest.ID) {
				return apperrors.ErrGuestNotFound
			}
			guestIDs = []uuid.UUID{guest.ID}
		}

		if len(guestIDs) == 0 {
			return nil
		}

		total := amount * int64(len(guestIDs))
		if _, err := storage.Event().TakePoints(ctx, eventID, total); err != nil {
			return err
		}

		for _, guestID := range guestIDs {
			tr, err := storage.Transaction().Create(ctx, models.Transaction{
				Kind:       models.KindEvent,
				IssuerID:   actor.UserID,
				ReceiverID: guestID,
				Amount:     amount,
				RelatedID:  &eventID,
			})
			if err != nil {
				return err
			}

			if _, err := storage.User().AddPoints(ctx, guestID, amount); err != nil {
				return err
			}

			created = append(created, tr)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, tr := range created {
		s.recordCreated(ctx, tr)
	}
	return created, nil
}

// SetSuspicious flips a transaction's suspicious flag and reverses or
// restores its balance effect exactly once. Only purchases and adjustments
// carry the flag.
func (s *Service) SetSuspicious(ctx context.Context, actor models.Actor, transactionID uuid.UUID, suspicious bool) (models.Transaction, error) {
	var updated models.Transaction

	if !actor.IsAtLeast(models.RoleManager) {
		return updated, apperrors.ErrForbidden
	}

	err := s.storage.InTx(ctx, func(storage repository.Storage) error {
		tr, err := storage.Transaction().GetByID(ctx, transactionID)
		if err != nil {
			return err
		}
		if tr.Kind != models.KindPurchase && tr.Kind != models.KindAdjustment {
			return fmt.Errorf("%w: suspicious flag applies to purchases and adjustments", apperrors.ErrAmountInvalid)
		}

		tr, changed, err := storage.Transaction().SetSuspicious(ctx, transactionID, suspicious)
		if err != nil {
			return err
		}

		// The guarded update reports whether the flag actually flipped;
		// a repeated mark is a no-op and must not touch the balance again
		if changed {
			delta := tr.Amount
			if suspicious {
				delta = -delta
			}
			if _, err := storage.User().AddPoints(ctx, tr.ReceiverID, delta); err != nil {
				return err
			}
		}

		updated = tr
		return nil
	})
	if err != nil {
		return models.Transaction{}, err
	}

	s.recordFlagged(ctx, updated)
	return updated, nil
}

func (s *Service) recordCreated(ctx context.Context, tr models.Transaction) {
	metrics.TransactionsCreated.WithLabelValues(tr.Kind).Inc()
	s.audit.TransactionCreated(ctx, tr)
}

func (s *Service) recordFlagged(ctx context.Context, tr models.Transaction) {
	s.audit.TransactionFlagged(ctx, tr)
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	if len(ids) < 2 {
		return ids
	}

	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
