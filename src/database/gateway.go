// Package database is the persistence gateway for users, workouts, exercises
// and sets. Every method runs in its own transaction.
package database

import (
	"context"
	"time"
)

type Gateway interface {
	// EnsureUser creates the user if missing and returns its key, which is the
	// external chat platform id.
	EnsureUser(ctx context.Context, externalID int64) (int64, error)

	// SeedDefaultExercises inserts DefaultExercises for the user, skipping names
	// the user already has.
	SeedDefaultExercises(ctx context.Context, userID int64) error

	// CreateWorkout inserts a workout dated by the server's current date.
	CreateWorkout(ctx context.Context, userID int64) (int64, error)

	// ImportWorkout inserts a workout with an explicit date together with all
	// of its sets.
	ImportWorkout(ctx context.Context, userID int64, date time.Time, sets []SetInput) (int64, error)

	// DeleteWorkoutIfEmpty removes the workout when no set references it.
	DeleteWorkoutIfEmpty(ctx context.Context, workoutID int64) (bool, error)

	// CreateExercise returns the id of the user's exercise with this name,
	// creating it under muscleGroup when it does not exist.
	CreateExercise(ctx context.Context, userID int64, muscleGroup, name string) (int64, error)

	// LookupExercise returns ErrNotFound when the user has no such exercise.
	LookupExercise(ctx context.Context, userID int64, name string) (int64, error)

	ListMuscleGroups(ctx context.Context, userID int64) ([]string, error)
	ListExercises(ctx context.Context, userID int64, muscleGroup string) ([]string, error)

	// AddSet fails with ErrConstraint when the (workout, exercise, set_order)
	// triple exists or the workout and exercise belong to different users.
	AddSet(ctx context.Context, workoutID, exerciseID int64, setOrder int, weight float64, reps int) (int64, error)

	ListSetsForExercise(ctx context.Context, workoutID, exerciseID int64) ([]Set, error)

	// ListWorkoutDates returns distinct workout dates, most recent first.
	ListWorkoutDates(ctx context.Context, userID int64) ([]time.Time, error)
	GetWorkoutByDate(ctx context.Context, userID int64, date time.Time) ([]SetDetail, error)
	ListRecentWorkouts(ctx context.Context, userID int64, limit int) ([]WorkoutSummary, error)

	InitSchema(ctx context.Context) error
	Ready() bool
	Ping(ctx context.Context) error
	Close()
}

type DefaultExercise struct {
	Name        string
	MuscleGroup string
}

// DefaultExercises is the starter catalogue every new user receives.
var DefaultExercises = []DefaultExercise{
	{"Жим штанги лежа", "Грудь"},
	{"Приседания со штангой", "Ноги"},
	{"Становая тяга", "Спина"},
	{"Подтягивания", "Спина"},
	{"Отжимания", "Грудь"},
	{"Жим гантелей сидя", "Плечи"},
	{"Сгибания на бицепс", "Руки"},
	{"Французский жим", "Руки"},
	{"Выпады", "Ноги"},
	{"Планка", "Пресс"},
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
