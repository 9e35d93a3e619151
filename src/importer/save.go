package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/thomasfsr/gymlog/src/database"
)

// Saver is the part of database.Gateway an import writes through.
type Saver interface {
	EnsureUser(ctx context.Context, externalID int64) (int64, error)
	LookupExercise(ctx context.Context, userID int64, name string) (int64, error)
	CreateExercise(ctx context.Context, userID int64, muscleGroup, name string) (int64, error)
	ImportWorkout(ctx context.Context, userID int64, date time.Time, sets []database.SetInput) (int64, error)
}

type Stats struct {
	// Exercises counts exercises the import added, not ones the user had.
	Exercises int
	Workouts  int
	Sets      int
}

// Save creates the result's exercises the user does not have yet, then one
// workout per date. Each workout is written atomically; a failure stops the import and
// leaves earlier dates in place.
func (r *Result) Save(ctx context.Context, db Saver, externalID int64) (Stats, error) {
	var stats Stats
	userID, err := db.EnsureUser(ctx, externalID)
	if err != nil {
		return stats, err
	}

	ids := make(map[string]int64, len(r.groupOf))
	for _, group := range r.groups {
		for _, name := range r.byGroup[group] {
			id, err := db.LookupExercise(ctx, userID, name)
			if err == nil {
				ids[name] = id
				continue
			}
			if !errors.Is(err, database.ErrNotFound) {
				return stats, fmt.Errorf("look up exercise %q: %w", name, err)
			}
			if id, err = db.CreateExercise(ctx, userID, group, name); err != nil {
				return stats, fmt.Errorf("create exercise %q: %w", name, err)
			}
			ids[name] = id
			stats.Exercises++
		}
	}

	for _, w := range r.workouts {
		sets := make([]database.SetInput, 0, len(w.Sets))
		for _, s := range w.Sets {
			sets = append(sets, database.SetInput{
				ExerciseID: ids[s.Exercise],
				SetOrder:   s.SetNumber,
				Weight:     s.Weight,
				Reps:       s.Reps,
			})
		}
		if _, err := db.ImportWorkout(ctx, userID, w.Date, sets); err != nil {
			return stats, fmt.Errorf("import workout %s: %w", w.Date.Format("2006-01-02"), err)
		}
		stats.Workouts++
		stats.Sets += len(sets)
	}
	return stats, nil
}
