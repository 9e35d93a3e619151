package importer

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thomasfsr/gymlog/src/database"
)

func TestSaveRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, err := database.NewSQLite(":memory:", 5*time.Second, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.InitSchema(ctx))

	// existing exercise keeps its stored group
	require.NoError(t, db.SeedDefaultExercises(ctx, mustEnsure(t, db, 77)))

	in := `Date,Exercise,Category,Weight,Weight Unit,Reps
2024-01-01,Bench,Chest,80,kgs,10
2024-01-01,Bench,Chest,85,kgs,8
2024-01-02,Отжимания,Arms,0,kgs,20
`
	res, err := Parse(strings.NewReader(in))
	require.NoError(t, err)

	stats, err := res.Save(ctx, db, 77)
	require.NoError(t, err)
	// Отжимания is one of the seeded exercises
	assert.Equal(t, Stats{Exercises: 1, Workouts: 2, Sets: 3}, stats)

	details, err := db.GetWorkoutByDate(ctx, 77, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, []database.SetDetail{
		{Exercise: "Bench", SetOrder: 1, Weight: 80, Reps: 10},
		{Exercise: "Bench", SetOrder: 2, Weight: 85, Reps: 8},
	}, details)

	arms, err := db.ListExercises(ctx, 77, "Arms")
	require.NoError(t, err)
	assert.Empty(t, arms)

	chest, err := db.ListExercises(ctx, 77, "Chest")
	require.NoError(t, err)
	assert.Equal(t, []string{"Bench"}, chest)

	again, err := res.Save(ctx, db, 77)
	require.NoError(t, err)
	assert.Equal(t, Stats{Exercises: 0, Workouts: 2, Sets: 3}, again)
}

func mustEnsure(t *testing.T, db database.Gateway, id int64) int64 {
	t.Helper()
	user, err := db.EnsureUser(context.Background(), id)
	require.NoError(t, err)
	return user
}
