package database

import (
	"math"
	"time"
)

type User struct {
	ID int64
}

type Workout struct {
	ID     int64
	UserID int64
	Date   time.Time
}

type Exercise struct {
	ID          int64
	UserID      int64
	MuscleGroup string
	Name        string
}

type Set struct {
	ID         int64
	WorkoutID  int64
	ExerciseID int64
	SetOrder   int
	Weight     float64
	Reps       int
}

// SetDetail is one row of a workout view: a set joined with its exercise name.
type SetDetail struct {
	Exercise string
	SetOrder int
	Weight   float64
	Reps     int
}

// SetInput is a set to be written as part of an imported workout.
type SetInput struct {
	ExerciseID int64
	SetOrder   int
	Weight     float64
	Reps       int
}

type WorkoutSummary struct {
	ID       int64
	Date     time.Time
	SetCount int
	Volume   float64
}

const dateLayout = "2006-01-02"

// Input bounds matching the column types below.
const (
	MaxWeight          = 99999.99 // NUMERIC(7,2)
	MaxReps            = math.MaxInt32
	MaxMuscleGroupLen  = 50
	MaxExerciseNameLen = 100
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
	id BIGINT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS workouts (
	id      BIGSERIAL PRIMARY KEY,
	user_id BIGINT NOT NULL REFERENCES users(id),
	date    DATE NOT NULL DEFAULT CURRENT_DATE
);

CREATE INDEX IF NOT EXISTS idx_workouts_user_date ON workouts(user_id, date);

CREATE TABLE IF NOT EXISTS exercises (
	id           BIGSERIAL PRIMARY KEY,
	user_id      BIGINT NOT NULL REFERENCES users(id),
	muscle_group VARCHAR(50) NOT NULL,
	name         VARCHAR(100) NOT NULL,
	UNIQUE (user_id, name)
);

CREATE TABLE IF NOT EXISTS sets (
	id          BIGSERIAL PRIMARY KEY,
	workout_id  BIGINT NOT NULL REFERENCES workouts(id) ON DELETE CASCADE,
	exercise_id BIGINT NOT NULL REFERENCES exercises(id),
	set_order   INTEGER NOT NULL CHECK (set_order > 0),
	weight      NUMERIC(7, 2) NOT NULL CHECK (weight >= 0),
	reps        INTEGER NOT NULL CHECK (reps > 0),
	UNIQUE (workout_id, exercise_id, set_order)
);
`

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY
	)`,
	`CREATE TABLE IF NOT EXISTS workouts (
		id      INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id),
		date    TEXT NOT NULL DEFAULT (date('now'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_workouts_user_date ON workouts(user_id, date)`,
	`CREATE TABLE IF NOT EXISTS exercises (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id      INTEGER NOT NULL REFERENCES users(id),
		muscle_group TEXT NOT NULL,
		name         TEXT NOT NULL,
		UNIQUE (user_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS sets (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		workout_id  INTEGER NOT NULL REFERENCES workouts(id) ON DELETE CASCADE,
		exercise_id INTEGER NOT NULL REFERENCES exercises(id),
		set_order   INTEGER NOT NULL CHECK (set_order > 0),
		weight      REAL NOT NULL CHECK (weight >= 0),
		reps        INTEGER NOT NULL CHECK (reps > 0),
		UNIQUE (workout_id, exercise_id, set_order)
	)`,
}
