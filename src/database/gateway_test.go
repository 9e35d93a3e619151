package database

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) Gateway {
	t.Helper()
	gw, err := NewSQLite(":memory:", 5*time.Second, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, gw.InitSchema(context.Background()))
	t.Cleanup(gw.Close)
	return gw
}

func newTestPostgres(t *testing.T) Gateway {
	t.Helper()
	dsn := os.Getenv("GYMLOG_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("GYMLOG_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	gw, err := NewPostgres(ctx, dsn, PoolOptions{MaxConns: 4, OpTimeout: 5 * time.Second}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, gw.Ping(ctx))
	_, err = gw.pool.Exec(ctx, `DROP TABLE IF EXISTS sets, exercises, workouts, users CASCADE`)
	require.NoError(t, err)
	require.NoError(t, gw.InitSchema(ctx))
	t.Cleanup(gw.Close)
	return gw
}

func TestSQLiteGateway(t *testing.T) {
	runGatewaySuite(t, newTestSQLite)
}

func TestPostgresGateway(t *testing.T) {
	runGatewaySuite(t, newTestPostgres)
}

func runGatewaySuite(t *testing.T, newGateway func(t *testing.T) Gateway) {
	t.Run("EnsureUserIsIdempotent", func(t *testing.T) {
		gw := newGateway(t)
		ctx := context.Background()

		first, err := gw.EnsureUser(ctx, 42)
		require.NoError(t, err)
		second, err := gw.EnsureUser(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Equal(t, int64(42), first)
	})

	t.Run("SeedTwiceKeepsTenExercises", func(t *testing.T) {
		gw := newGateway(t)
		ctx := context.Background()
		user := mustUser(t, gw, 1)

		require.NoError(t, gw.SeedDefaultExercises(ctx, user))
		require.NoError(t, gw.SeedDefaultExercises(ctx, user))

		groups, err := gw.ListMuscleGroups(ctx, user)
		require.NoError(t, err)
		total := 0
		for _, g := range groups {
			names, err := gw.ListExercises(ctx, user, g)
			require.NoError(t, err)
			total += len(names)
		}
		assert.Equal(t, 10, total)
		assert.Equal(t, []string{"Грудь", "Ноги", "Плечи", "Пресс", "Руки", "Спина"}, groups)
	})

	t.Run("SeedIsPerUser", func(t *testing.T) {
		gw := newGateway(t)
		ctx := context.Background()
		a := mustUser(t, gw, 1)
		b := mustUser(t, gw, 2)
		require.NoError(t, gw.SeedDefaultExercises(ctx, a))

		groups, err := gw.ListMuscleGroups(ctx, b)
		require.NoError(t, err)
		assert.Empty(t, groups)
	})

	t.Run("CreateExerciseReturnsExistingID", func(t *testing.T) {
		gw := newGateway(t)
		ctx := context.Background()
		user := mustUser(t, gw, 7)

		id, err := gw.CreateExercise(ctx, user, "Chest", "Bench")
		require.NoError(t, err)
		again, err := gw.CreateExercise(ctx, user, "Legs", "Bench")
		require.NoError(t, err)
		assert.Equal(t, id, again)

		names, err := gw.ListExercises(ctx, user, "Legs")
		require.NoError(t, err)
		assert.Empty(t, names, "existing exercise keeps its muscle group")

		found, err := gw.LookupExercise(ctx, user, "Bench")
		require.NoError(t, err)
		assert.Equal(t, id, found)

		_, err = gw.LookupExercise(ctx, user, "Squat")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("AddSetOrdersAndRejectsDuplicates", func(t *testing.T) {
		gw := newGateway(t)
		ctx := context.Background()
		user := mustUser(t, gw, 3)
		workout, err := gw.CreateWorkout(ctx, user)
		require.NoError(t, err)
		bench, err := gw.CreateExercise(ctx, user, "Chest", "Bench")
		require.NoError(t, err)

		for i, w := range []float64{80, 85, 82.5} {
			_, err := gw.AddSet(ctx, workout, bench, i+1, w, 10-i)
			require.NoError(t, err)
		}

		_, err = gw.AddSet(ctx, workout, bench, 2, 90, 5)
		assert.ErrorIs(t, err, ErrConstraint)

		sets, err := gw.ListSetsForExercise(ctx, workout, bench)
		require.NoError(t, err)
		require.Len(t, sets, 3)
		for i, s := range sets {
			assert.Equal(t, i+1, s.SetOrder)
		}
		assert.Equal(t, 82.5, sets[2].Weight)
		assert.Equal(t, 8, sets[2].Reps)
	})

	t.Run("AddSetRejectsForeignExercise", func(t *testing.T) {
		gw := newGateway(t)
		ctx := context.Background()
		alice := mustUser(t, gw, 10)
		bob := mustUser(t, gw, 11)
		workout, err := gw.CreateWorkout(ctx, alice)
		require.NoError(t, err)
		bobsBench, err := gw.CreateExercise(ctx, bob, "Chest", "Bench")
		require.NoError(t, err)

		_, err = gw.AddSet(ctx, workout, bobsBench, 1, 80, 10)
		assert.ErrorIs(t, err, ErrConstraint)

		_, err = gw.AddSet(ctx, workout, 9999, 1, 80, 10)
		assert.ErrorIs(t, err, ErrConstraint)
	})

	t.Run("WorkoutDatesAndView", func(t *testing.T) {
		gw := newGateway(t)
		ctx := context.Background()
		user := mustUser(t, gw, 5)
		bench, err := gw.CreateExercise(ctx, user, "Chest", "Bench")
		require.NoError(t, err)
		squat, err := gw.CreateExercise(ctx, user, "Legs", "Squat")
		require.NoError(t, err)

		jan1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		jan3 := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
		_, err = gw.ImportWorkout(ctx, user, jan1, []SetInput{
			{ExerciseID: squat, SetOrder: 1, Weight: 100, Reps: 5},
			{ExerciseID: bench, SetOrder: 1, Weight: 80, Reps: 10},
			{ExerciseID: bench, SetOrder: 2, Weight: 85, Reps: 8},
		})
		require.NoError(t, err)
		_, err = gw.ImportWorkout(ctx, user, jan3, []SetInput{
			{ExerciseID: bench, SetOrder: 1, Weight: 90, Reps: 3},
		})
		require.NoError(t, err)

		dates, err := gw.ListWorkoutDates(ctx, user)
		require.NoError(t, err)
		require.Len(t, dates, 2)
		assert.Equal(t, "2024-01-03", dates[0].Format(dateLayout))
		assert.Equal(t, "2024-01-01", dates[1].Format(dateLayout))

		details, err := gw.GetWorkoutByDate(ctx, user, jan1)
		require.NoError(t, err)
		assert.Equal(t, []SetDetail{
			{Exercise: "Bench", SetOrder: 1, Weight: 80, Reps: 10},
			{Exercise: "Bench", SetOrder: 2, Weight: 85, Reps: 8},
			{Exercise: "Squat", SetOrder: 1, Weight: 100, Reps: 5},
		}, details)

		summaries, err := gw.ListRecentWorkouts(ctx, user, 10)
		require.NoError(t, err)
		require.Len(t, summaries, 2)
		assert.Equal(t, 1, summaries[0].SetCount)
		assert.Equal(t, 3, summaries[1].SetCount)
		assert.InDelta(t, 80*10+85*8+100*5, summaries[1].Volume, 0.001)
	})

	t.Run("ImportWorkoutRejectsForeignExercise", func(t *testing.T) {
		gw := newGateway(t)
		ctx := context.Background()
		alice := mustUser(t, gw, 20)
		bob := mustUser(t, gw, 21)
		bobsBench, err := gw.CreateExercise(ctx, bob, "Chest", "Bench")
		require.NoError(t, err)

		_, err = gw.ImportWorkout(ctx, alice, time.Now(), []SetInput{
			{ExerciseID: bobsBench, SetOrder: 1, Weight: 80, Reps: 10},
		})
		assert.ErrorIs(t, err, ErrConstraint)

		dates, err := gw.ListWorkoutDates(ctx, alice)
		require.NoError(t, err)
		assert.Empty(t, dates, "failed import leaves no workout behind")
	})

	t.Run("DeleteWorkoutIfEmpty", func(t *testing.T) {
		gw := newGateway(t)
		ctx := context.Background()
		user := mustUser(t, gw, 30)
		bench, err := gw.CreateExercise(ctx, user, "Chest", "Bench")
		require.NoError(t, err)

		empty, err := gw.CreateWorkout(ctx, user)
		require.NoError(t, err)
		used, err := gw.CreateWorkout(ctx, user)
		require.NoError(t, err)
		_, err = gw.AddSet(ctx, used, bench, 1, 60, 12)
		require.NoError(t, err)

		deleted, err := gw.DeleteWorkoutIfEmpty(ctx, empty)
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = gw.DeleteWorkoutIfEmpty(ctx, used)
		require.NoError(t, err)
		assert.False(t, deleted)

		summaries, err := gw.ListRecentWorkouts(ctx, user, 10)
		require.NoError(t, err)
		require.Len(t, summaries, 1)
		assert.Equal(t, used, summaries[0].ID)
	})

	t.Run("CreateWorkoutUsesProcessDate", func(t *testing.T) {
		gw := newGateway(t)
		ctx := context.Background()
		// late evening east of UTC is already the next day there but not in UTC
		zone := time.FixedZone("UTC+5", 5*60*60)
		setClock(gw, func() time.Time { return time.Date(2024, 3, 1, 2, 30, 0, 0, zone) })
		user := mustUser(t, gw, 30)

		_, err := gw.CreateWorkout(ctx, user)
		require.NoError(t, err)
		dates, err := gw.ListWorkoutDates(ctx, user)
		require.NoError(t, err)
		require.Len(t, dates, 1)
		assert.Equal(t, "2024-03-01", dates[0].Format(dateLayout))
	})

	t.Run("ClosedGatewayIsNotReady", func(t *testing.T) {
		gw := newGateway(t)
		gw.Close()
		assert.False(t, gw.Ready())

		_, err := gw.EnsureUser(context.Background(), 1)
		assert.ErrorIs(t, err, ErrNotReady)
		assert.True(t, IsUnavailable(err))
	})
}

func setClock(gw Gateway, now func() time.Time) {
	switch g := gw.(type) {
	case *SQLite:
		g.now = now
	case *Postgres:
		g.now = now
	}
}

func TestSQLiteFileConcurrentWrites(t *testing.T) {
	gw, err := NewSQLite(filepath.Join(t.TempDir(), "gymlog.db"), 30*time.Second, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(gw.Close)
	ctx := context.Background()
	require.NoError(t, gw.InitSchema(ctx))

	const users, setsPerUser = 10, 20
	var wg sync.WaitGroup
	errs := make(chan error, users*(setsPerUser+4))
	for i := range users {
		wg.Add(1)
		go func(external int64) {
			defer wg.Done()
			user, err := gw.EnsureUser(ctx, external)
			if err != nil {
				errs <- err
				return
			}
			if err := gw.SeedDefaultExercises(ctx, user); err != nil {
				errs <- err
			}
			exercise, err := gw.CreateExercise(ctx, user, "Chest", "Bench")
			if err != nil {
				errs <- err
				return
			}
			workout, err := gw.CreateWorkout(ctx, user)
			if err != nil {
				errs <- err
				return
			}
			for order := 1; order <= setsPerUser; order++ {
				if _, err := gw.AddSet(ctx, workout, exercise, order, 60, 10); err != nil {
					errs <- err
				}
			}
			_, err = gw.ImportWorkout(ctx, user, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), []SetInput{
				{ExerciseID: exercise, SetOrder: 1, Weight: 80, Reps: 5},
				{ExerciseID: exercise, SetOrder: 2, Weight: 85, Reps: 3},
			})
			if err != nil {
				errs <- err
			}
		}(int64(100 + i))
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	for i := range users {
		summaries, err := gw.ListRecentWorkouts(ctx, int64(100+i), 10)
		require.NoError(t, err)
		require.Len(t, summaries, 2)
		total := summaries[0].SetCount + summaries[1].SetCount
		assert.Equal(t, setsPerUser+2, total)
	}
}

func mustUser(t *testing.T, gw Gateway, id int64) int64 {
	t.Helper()
	user, err := gw.EnsureUser(context.Background(), id)
	require.NoError(t, err)
	return user
}
