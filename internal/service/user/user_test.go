package user

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/apexrewards/pointsledger/internal/apperrors"
	"github.com/apexrewards/pointsledger/internal/models"
	"github.com/apexrewards/pointsledger/internal/repository"
	"github.com/apexrewards/pointsledger/internal/repository/postgres"
	"github.com/apexrewards/pointsledger/internal/testutil"
)

func TestUserService(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	withTx := func(t *testing.T, fn func(s *Service, storage repository.Storage)) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			fn(NewService(storage), storage)
		})
	}

	actorWithRole := func(role string) models.Actor {
		return models.Actor{Handle: "acting-" + role, Role: role}
	}

	t.Run("Register", func(t *testing.T) {
		t.Run("cashier registers a regular account", func(t *testing.T) {
			withTx(t, func(s *Service, storage repository.Storage) {
				user, err := s.Register(t.Context(), actorWithRole(models.RoleCashier), "newcomer")

				require.NoError(t, err)
				require.Equal(t, "newcomer", user.Handle)
				require.Equal(t, models.RoleRegular, user.Role)
				require.Equal(t, int64(0), user.Points)
				require.False(t, user.Verified)
			})
		})

		t.Run("regular actor forbidden", func(t *testing.T) {
			withTx(t, func(s *Service, storage repository.Storage) {
				_, err := s.Register(t.Context(), actorWithRole(models.RoleRegular), "newcomer")

				require.ErrorIs(t, err, apperrors.ErrForbidden)
			})
		})

		t.Run("duplicate handle", func(t *testing.T) {
			withTx(t, func(s *Service, storage repository.Storage) {
				_, err := s.Register(t.Context(), actorWithRole(models.RoleCashier), "newcomer")
				require.NoError(t, err)

				_, err = s.Register(t.Context(), actorWithRole(models.RoleCashier), "newcomer")
				require.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
			})
		})
	})

	t.Run("SetRole", func(t *testing.T) {
		t.Run("superuser assigns any role", func(t *testing.T) {
			withTx(t, func(s *Service, storage repository.Storage) {
				_, err := storage.User().Create(t.Context(), repository.CreateUserParams{Handle: "target"})
				require.NoError(t, err)

				user, err := s.SetRole(t.Context(), actorWithRole(models.RoleSuperuser), "target", models.RoleManager)

				require.NoError(t, err)
				require.Equal(t, models.RoleManager, user.Role)
			})
		})

		t.Run("manager stays below manager", func(t *testing.T) {
			withTx(t, func(s *Service, storage repository.Storage) {
				_, err := storage.User().Create(t.Context(), repository.CreateUserParams{Handle: "target"})
				require.NoError(t, err)

				user, err := s.SetRole(t.Context(), actorWithRole(models.RoleManager), "target", models.RoleCashier)
				require.NoError(t, err)
				require.Equal(t, models.RoleCashier, user.Role)

				_, err = s.SetRole(t.Context(), actorWithRole(models.RoleManager), "target", models.RoleManager)
				require.ErrorIs(t, err, apperrors.ErrForbidden)
			})
		})

		t.Run("unknown role rejected", func(t *testing.T) {
			withTx(t, func(s *Service, storage repository.Storage) {
				_, err := s.SetRole(t.Context(), actorWithRole(models.RoleSuperuser), "target", "root")

				require.ErrorIs(t, err, apperrors.ErrRoleInvalid)
			})
		})

		t.Run("unknown user", func(t *testing.T) {
			withTx(t, func(s *Service, storage repository.Storage) {
				_, err := s.SetRole(t.Context(), actorWithRole(models.RoleSuperuser), "nobody", models.RoleCashier)

				require.ErrorIs(t, err, apperrors.ErrUserNotFound)
			})
		})
	})

	t.Run("SetVerified", func(t *testing.T) {
		t.Run("manager verifies an account", func(t *testing.T) {
			withTx(t, func(s *Service, storage repository.Storage) {
				_, err := storage.User().Create(t.Context(), repository.CreateUserParams{Handle: "target"})
				require.NoError(t, err)

				user, err := s.SetVerified(t.Context(), actorWithRole(models.RoleManager), "target")

				require.NoError(t, err)
				require.True(t, user.Verified)
			})
		})

		t.Run("cashier forbidden", func(t *testing.T) {
			withTx(t, func(s *Service, storage repository.Storage) {
				_, err := s.SetVerified(t.Context(), actorWithRole(models.RoleCashier), "target")

				require.ErrorIs(t, err, apperrors.ErrForbidden)
			})
		})
	})

	t.Run("SetSuspicious", func(t *testing.T) {
		t.Run("manager flags and clears", func(t *testing.T) {
			withTx(t, func(s *Service, storage repository.Storage) {
				_, err := storage.User().Create(t.Context(), repository.CreateUserParams{Handle: "target"})
				require.NoError(t, err)

				user, err := s.SetSuspicious(t.Context(), actorWithRole(models.RoleManager), "target", true)
				require.NoError(t, err)
				require.True(t, user.Suspicious)

				user, err = s.SetSuspicious(t.Context(), actorWithRole(models.RoleManager), "target", false)
				require.NoError(t, err)
				require.False(t, user.Suspicious)
			})
		})
	})

	t.Run("RecordLogin", func(t *testing.T) {
		t.Run("stamps own last login", func(t *testing.T) {
			withTx(t, func(s *Service, storage repository.Storage) {
				created, err := storage.User().Create(t.Context(), repository.CreateUserParams{Handle: "target"})
				require.NoError(t, err)

				at := time.Now().Truncate(time.Second)
				asSelf := models.Actor{UserID: created.ID, Handle: created.Handle, Role: created.Role}
				require.NoError(t, s.RecordLogin(t.Context(), asSelf, "target", at))

				user, err := storage.User().GetByID(t.Context(), created.ID)
				require.NoError(t, err)
				require.NotNil(t, user.LastLogin)
				require.WithinDuration(t, at, *user.LastLogin, time.Second)
			})
		})

		t.Run("another user's login is forbidden", func(t *testing.T) {
			withTx(t, func(s *Service, storage repository.Storage) {
				created, err := storage.User().Create(t.Context(), repository.CreateUserParams{Handle: "target"})
				require.NoError(t, err)

				err = s.RecordLogin(t.Context(), actorWithRole(models.RoleManager), "target", time.Now())
				require.ErrorIs(t, err, apperrors.ErrForbidden)

				user, err := storage.User().GetByID(t.Context(), created.ID)
				require.NoError(t, err)
				require.Nil(t, user.LastLogin)
			})
		})
	})
}
