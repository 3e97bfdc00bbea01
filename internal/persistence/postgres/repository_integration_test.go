//go:build integration

package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	dbpostgres "example.com/salestrack/db/postgres"
	"example.com/salestrack/internal/domain"
)

func setupRepository(t *testing.T) (*Repository, *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("salestrack"),
		postgrescontainer.WithUsername("salestrack"),
		postgrescontainer.WithPassword("salestrack"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))
	require.NoError(t, dbpostgres.Migrate(connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return NewRepository(pool), pool
}

func createUser(t *testing.T, repo *Repository, name string) domain.User {
	t.Helper()
	user := domain.User{
		ID:           uuid.NewString(),
		Username:     name,
		PasswordHash: "hash",
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, repo.CreateUser(context.Background(), user))
	return user
}

func date(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestRepositoryScopesRecordsToOwner(t *testing.T) {
	ctx := context.Background()
	repo, pool := setupRepository(t)

	alice := createUser(t, repo, "alice")
	bob := createUser(t, repo, "bob")

	rec, err := repo.CreateRecord(ctx, domain.ActivityRecord{
		UserID:     alice.ID,
		InputName:  alice.Username,
		RecordDate: date("2025-06-15"),
		Counters:   domain.Counters{CallCount: 10, CatchCount: 5, AcquisitionCount: 1},
	})
	require.NoError(t, err)
	require.NotZero(t, rec.ID)
	require.Equal(t, rec.RecordDate, rec.OperationDate)

	stored, err := repo.GetRecord(ctx, alice.ID, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, int64(5), stored.CatchCount)
	require.Equal(t, "2025-06-15", stored.RecordDate.Format(time.DateOnly))

	other, err := repo.GetRecord(ctx, bob.ID, rec.ID)
	require.NoError(t, err)
	require.Nil(t, other)

	stored.UserID = bob.ID
	require.ErrorIs(t, repo.UpdateRecord(ctx, *stored), domain.ErrRecordNotFound)

	var queued int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE event_type='record.created' AND user_id=$1`, alice.ID).Scan(&queued))
	require.Equal(t, 1, queued)
}

func TestRepositoryDuplicateUsername(t *testing.T) {
	repo, _ := setupRepository(t)
	createUser(t, repo, "carol")

	err := repo.CreateUser(context.Background(), domain.User{
		ID:           uuid.NewString(),
		Username:     "carol",
		PasswordHash: "hash",
		CreatedAt:    time.Now().UTC(),
	})
	require.ErrorIs(t, err, domain.ErrUsernameTaken)
}

func TestRepositorySumsAndPages(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepository(t)
	user := createUser(t, repo, "dave")

	for _, d := range []string{"2025-05-31", "2025-06-01", "2025-06-15", "2025-06-15", "2025-07-01"} {
		_, err := repo.CreateRecord(ctx, domain.ActivityRecord{
			UserID:     user.ID,
			RecordDate: date(d),
			Counters:   domain.Counters{CallCount: 10, CatchCount: 4, AcquisitionCount: 1},
		})
		require.NoError(t, err)
	}

	totals, err := repo.SumCounters(ctx, user.ID, date("2025-06-01"), date("2025-07-01"))
	require.NoError(t, err)
	require.Equal(t, int64(30), totals.CallCount)
	require.Equal(t, int64(3), totals.AcquisitionCount)

	empty, err := repo.SumCounters(ctx, user.ID, date("2024-01-01"), date("2024-02-01"))
	require.NoError(t, err)
	require.Equal(t, domain.Counters{}, empty)

	month, err := repo.RecordsBetween(ctx, user.ID, date("2025-06-01"), date("2025-07-01"))
	require.NoError(t, err)
	require.Len(t, month, 3)
	require.True(t, month[1].ID < month[2].ID)

	page, next, err := repo.ListRecords(ctx, user.ID, domain.RecordFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.NotNil(t, next)
	require.Equal(t, "2025-07-01", page[0].RecordDate.Format(time.DateOnly))

	rest, next, err := repo.ListRecords(ctx, user.ID, domain.RecordFilter{Limit: 10, Cursor: next})
	require.NoError(t, err)
	require.Len(t, rest, 3)
	require.Nil(t, next)

	day := date("2025-06-15")
	sameDay, _, err := repo.ListRecords(ctx, user.ID, domain.RecordFilter{Limit: 10, Date: &day})
	require.NoError(t, err)
	require.Len(t, sameDay, 2)
}

func TestRepositoryTargetGetOrCreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo, pool := setupRepository(t)
	user := createUser(t, repo, "erin")
	ym := domain.YearMonth{Year: 2025, Month: time.June}

	found, err := repo.FindTarget(ctx, user.ID, ym)
	require.NoError(t, err)
	require.Nil(t, found)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			target, err := repo.GetOrCreateTarget(ctx, user.ID, ym)
			require.NoError(t, err)
			require.Equal(t, int64(0), target.TargetAcquisition)
		}()
	}
	wg.Wait()

	updated, err := repo.UpsertTarget(ctx, user.ID, ym, 90)
	require.NoError(t, err)
	require.Equal(t, int64(90), updated.TargetAcquisition)
	require.Equal(t, ym, updated.YearMonth)

	var rows int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM monthly_targets WHERE user_id=$1`, user.ID).Scan(&rows))
	require.Equal(t, 1, rows)

	var queued int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE event_type='target.updated'`).Scan(&queued))
	require.Equal(t, 1, queued)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
