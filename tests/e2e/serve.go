package e2e

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/apexrewards/pointsledger/internal/handlers"
	"github.com/apexrewards/pointsledger/internal/logger"
	"github.com/apexrewards/pointsledger/internal/models"
	"github.com/apexrewards/pointsledger/internal/ratelimit"
	"github.com/apexrewards/pointsledger/internal/repository"
	"github.com/apexrewards/pointsledger/internal/repository/postgres"
	"github.com/apexrewards/pointsledger/internal/service/event"
	"github.com/apexrewards/pointsledger/internal/service/ledger"
	"github.com/apexrewards/pointsledger/internal/service/promotion"
	"github.com/apexrewards/pointsledger/internal/service/user"
	"github.com/apexrewards/pointsledger/internal/testutil"
)

const SecretKey = "test-secret"

type Services struct {
	Storage   repository.Storage
	Ledger    *ledger.Service
	Promotion *promotion.Service
	User      *user.Service
	Event     *event.Service
}

// Create db transaction and run server with that connection (one connection
// cause one transaction). The created transaction passed to inner function:
// so, you can safely use testutil.InTx with it
func ServeInTx(dbpool *pgxpool.Pool, t *testing.T, fn func(tx pgx.Tx, srvURL string, services Services)) {
	testutil.InTx(dbpool, t, func(tx pgx.Tx) {
		storage := postgres.NewStorage(tx)

		s := Services{
			Storage:   storage,
			Ledger:    ledger.NewService(storage, nil),
			Promotion: promotion.NewService(storage),
			User:      user.NewService(storage),
			Event:     event.NewService(storage),
		}

		router := handlers.NewRouter(
			s.Ledger,
			s.Promotion,
			s.User,
			s.Event,
			SecretKey,
			ratelimit.Unlimited{},
			logger.NewNoOpLogger(),
		)

		srv := httptest.NewServer(router)
		defer srv.Close()

		fn(tx, srv.URL, s)
	})
}

// AsActor builds the actor identity the gateway would mint for a user
func AsActor(u models.User) models.Actor {
	return models.Actor{
		UserID:     u.ID,
		Handle:     u.Handle,
		Role:       u.Role,
		Verified:   u.Verified,
		Suspicious: u.Suspicious,
	}
}

// ActorToken mints a gateway-style bearer token for the given actor
func ActorToken(t *testing.T, actor models.Actor) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":        actor.UserID.String(),
		"handle":     actor.Handle,
		"role":       actor.Role,
		"verified":   actor.Verified,
		"suspicious": actor.Suspicious,
		"exp":        time.Now().Add(time.Hour).Unix(),
	})

	signed, err := token.SignedString([]byte(SecretKey))
	require.NoError(t, err, "failed to sign actor token")

	return signed
}

// Authorize sets the actor bearer token on a request
func Authorize(t *testing.T, req *http.Request, actor models.Actor) {
	t.Helper()
	req.Header.Set("Authorization", "Bearer "+ActorToken(t, actor))
}
