package ledger

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/apexrewards/pointsledger/internal/models"
)

func TestProject(t *testing.T) {
	issuerID := uuid.New()
	receiverID := uuid.New()
	relatedID := uuid.New()

	t.Run("purchase", func(t *testing.T) {
		promoID := uuid.New()
		entry := Project(models.Transaction{
			ID:           uuid.New(),
			Kind:         models.KindPurchase,
			IssuerID:     issuerID,
			ReceiverID:   receiverID,
			Spent:        decimal.RequireFromString("19.90"),
			Amount:       80,
			Suspicious:   true,
			PromotionIDs: []uuid.UUID{promoID},
		})

		require.Equal(t, models.KindPurchase, entry.Kind)
		require.Equal(t, issuerID, entry.Issuer)
		require.NotNil(t, entry.Spent)
		require.True(t, entry.Spent.Equal(decimal.RequireFromString("19.90")))
		require.NotNil(t, entry.Amount)
		require.Equal(t, int64(80), *entry.Amount)
		require.NotNil(t, entry.Suspicious)
		require.True(t, *entry.Suspicious)
		require.Equal(t, []uuid.UUID{promoID}, entry.Promotions)
		require.Nil(t, entry.Redeemed)
		require.Nil(t, entry.Sender)
	})

	t.Run("redemption shows negative balance effect", func(t *testing.T) {
		entry := Project(models.Transaction{
			Kind:       models.KindRedemption,
			IssuerID:   receiverID,
			ReceiverID: receiverID,
			Amount:     150,
		})

		require.NotNil(t, entry.Redeemed)
		require.Equal(t, int64(-150), *entry.Redeemed)
		require.Nil(t, entry.RelatedID, "unprocessed redemption has no processor yet")
		require.Nil(t, entry.Amount)
	})

	t.Run("processed redemption links the processor", func(t *testing.T) {
		processorID := uuid.New()
		entry := Project(models.Transaction{
			Kind:        models.KindRedemption,
			ReceiverID:  receiverID,
			Amount:      150,
			Processed:   true,
			ProcessedBy: &processorID,
		})

		require.NotNil(t, entry.RelatedID)
		require.Equal(t, processorID, *entry.RelatedID)
	})

	t.Run("adjustment", func(t *testing.T) {
		entry := Project(models.Transaction{
			Kind:       models.KindAdjustment,
			IssuerID:   issuerID,
			ReceiverID: receiverID,
			Amount:     -30,
			RelatedID:  &relatedID,
		})

		require.NotNil(t, entry.Amount)
		require.Equal(t, int64(-30), *entry.Amount)
		require.NotNil(t, entry.Suspicious)
		require.NotNil(t, entry.RelatedID)
		require.Equal(t, relatedID, *entry.RelatedID)
	})

	t.Run("event award", func(t *testing.T) {
		eventID := uuid.New()
		entry := Project(models.Transaction{
			Kind:       models.KindEvent,
			IssuerID:   issuerID,
			ReceiverID: receiverID,
			Amount:     25,
			RelatedID:  &eventID,
		})

		require.NotNil(t, entry.Awarded)
		require.Equal(t, int64(25), *entry.Awarded)
		require.NotNil(t, entry.Recipient)
		require.Equal(t, receiverID, *entry.Recipient)
		require.NotNil(t, entry.RelatedID)
		require.Equal(t, eventID, *entry.RelatedID)
	})

	t.Run("transfer halves point at each other", func(t *testing.T) {
		senderID := issuerID

		out := Project(models.Transaction{
			Kind:       models.KindTransfer,
			IssuerID:   senderID,
			ReceiverID: senderID,
			Amount:     -40,
			RelatedID:  &receiverID,
		})
		in := Project(models.Transaction{
			Kind:       models.KindTransfer,
			IssuerID:   senderID,
			ReceiverID: receiverID,
			Amount:     40,
			RelatedID:  &senderID,
		})

		require.Equal(t, senderID, *out.Sender)
		require.Equal(t, receiverID, *out.Recipient)
		require.Equal(t, int64(40), *out.Sent, "outgoing half reports the sent amount as positive")

		require.Equal(t, senderID, *in.Sender)
		require.Equal(t, receiverID, *in.Recipient)
		require.Equal(t, int64(40), *in.Sent)
	})
}
