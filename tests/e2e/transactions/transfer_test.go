package transactions

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/apexrewards/pointsledger/internal/models"
	"github.com/apexrewards/pointsledger/internal/repository"
	"github.com/apexrewards/pointsledger/internal/testutil"
	"github.com/apexrewards/pointsledger/tests/e2e"
)

const TransferURL = "/api/transactions/transfer"

func Test_CreateTransfer(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	type request struct {
		Receiver string `json:"receiver"`
		Amount   int64  `json:"amount"`
		Remark   string `json:"remark"`
	}

	e2e.ServeInTx(pg.Pool, t, func(tx pgx.Tx, srvURL string, s e2e.Services) {
		sender, err := s.Storage.User().Create(t.Context(), repository.CreateUserParams{Handle: "sender", Role: models.RoleRegular, Verified: true})
		require.NoError(t, err)
		receiver, err := s.Storage.User().Create(t.Context(), repository.CreateUserParams{Handle: "receiver", Role: models.RoleRegular})
		require.NoError(t, err)

		_, err = s.Storage.User().AddPoints(t.Context(), sender.ID, 100)
		require.NoError(t, err)

		doTransfer := func(t *testing.T, actor models.Actor, data request) *http.Response {
			d, err := json.Marshal(data)
			require.NoError(t, err, "failed to marshal transfer request")
			req, err := http.NewRequest(http.MethodPost, srvURL+TransferURL, bytes.NewReader(d))
			require.NoError(t, err, "failed to create request")
			e2e.Authorize(t, req, actor)

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err, "failed to send request")

			return resp
		}

		t.Run("transfer moves points and writes both halves", func(t *testing.T) {
			testutil.InTx(tx, t, func(_ pgx.Tx) {
				resp := doTransfer(t, e2e.AsActor(sender), request{Receiver: "receiver", Amount: 30, Remark: "thanks"})
				defer resp.Body.Close() // nolint:errcheck
				body, err := io.ReadAll(resp.Body)
				require.NoError(t, err, "failed to read response body")

				require.Equalf(t, http.StatusCreated, resp.StatusCode, "not expected code, body: %s", string(body))

				var halves struct {
					Outgoing struct {
						Sender    string `json:"sender"`
						Recipient string `json:"recipient"`
						Sent      int64  `json:"sent"`
					} `json:"outgoing"`
					Incoming struct {
						Recipient string `json:"recipient"`
						Sent      int64  `json:"sent"`
					} `json:"incoming"`
				}
				require.NoError(t, json.Unmarshal(body, &halves))
				require.Equal(t, sender.ID.String(), halves.Outgoing.Sender)
				require.Equal(t, receiver.ID.String(), halves.Outgoing.Recipient)
				require.Equal(t, int64(30), halves.Outgoing.Sent)
				require.Equal(t, receiver.ID.String(), halves.Incoming.Recipient)
				require.Equal(t, int64(30), halves.Incoming.Sent)

				gotSender, err := s.Storage.User().GetByID(t.Context(), sender.ID)
				require.NoError(t, err)
				require.Equal(t, int64(70), gotSender.Points)

				gotReceiver, err := s.Storage.User().GetByID(t.Context(), receiver.ID)
				require.NoError(t, err)
				require.Equal(t, int64(30), gotReceiver.Points)
			})
		})

		t.Run("insufficient balance", func(t *testing.T) {
			testutil.InTx(tx, t, func(_ pgx.Tx) {
				resp := doTransfer(t, e2e.AsActor(sender), request{Receiver: "receiver", Amount: 1000})
				defer resp.Body.Close() // nolint:errcheck
				body, err := io.ReadAll(resp.Body)
				require.NoError(t, err, "failed to read response body")

				require.Equalf(t, http.StatusConflict, resp.StatusCode, "not expected code, body: %s", string(body))

				gotReceiver, err := s.Storage.User().GetByID(t.Context(), receiver.ID)
				require.NoError(t, err)
				require.Equal(t, int64(0), gotReceiver.Points, "failed transfer must leave balances unchanged")
			})
		})

		t.Run("transfer to self", func(t *testing.T) {
			testutil.InTx(tx, t, func(_ pgx.Tx) {
				resp := doTransfer(t, e2e.AsActor(sender), request{Receiver: "sender", Amount: 10})
				defer resp.Body.Close() // nolint:errcheck

				require.Equal(t, http.StatusConflict, resp.StatusCode)
			})
		})

		t.Run("unverified sender is forbidden", func(t *testing.T) {
			testutil.InTx(tx, t, func(_ pgx.Tx) {
				resp := doTransfer(t, e2e.AsActor(receiver), request{Receiver: "sender", Amount: 10})
				defer resp.Body.Close() // nolint:errcheck

				require.Equal(t, http.StatusForbidden, resp.StatusCode)
			})
		})
	})
}
