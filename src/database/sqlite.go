package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLite implements Gateway on a single SQLite file.
type SQLite struct {
	db     *sql.DB
	closed atomic.Bool
	ops
}

// NewSQLite opens (creating if needed) the database at path. ":memory:" gives
// a private in-memory database, useful in tests.
func NewSQLite(path string, opTimeout time.Duration, log zerolog.Logger) (*SQLite, error) {
	memory := path == ":memory:" || strings.Contains(path, "mode=memory")
	if !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	dsn := path
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	// write transactions take the lock up front so concurrent writers wait
	// on busy_timeout instead of failing the read-to-write upgrade
	dsn += sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
	if !memory {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if memory {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if opTimeout <= 0 {
		opTimeout = DefaultOpTimeout
	}
	log.Info().Str("path", path).Msg("sqlite database opened")
	return &SQLite{
		db:  db,
		ops: ops{log: log, timeout: opTimeout, classify: classifySQLite, now: time.Now},
	}, nil
}

func classifySQLite(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	var sqlErr *sqlite.Error
	if errors.As(err, &sqlErr) {
		switch sqlErr.Code() & 0xff {
		case sqlite3.SQLITE_CONSTRAINT:
			return fmt.Errorf("%w: %w", ErrConstraint, err)
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_CANTOPEN:
			return fmt.Errorf("%w: %w", ErrConnection, err)
		}
	}
	if errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}
	return err
}

func (s *SQLite) Ready() bool {
	return s != nil && s.db != nil && !s.closed.Load()
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.run(ctx, s.Ready(), "ping", nil, func(ctx context.Context) error {
		return s.db.PingContext(ctx)
	})
}

func (s *SQLite) Close() {
	if s.closed.CompareAndSwap(false, true) {
		if err := s.db.Close(); err != nil {
			s.log.Warn().Err(err).Msg("close sqlite database")
		}
	}
}

func (s *SQLite) InitSchema(ctx context.Context) error {
	return s.run(ctx, s.Ready(), "init schema", nil, func(ctx context.Context) error {
		for i, stmt := range sqliteSchema {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to execute statement %d: %w", i+1, err)
			}
		}
		return nil
	})
}

func (s *SQLite) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLite) EnsureUser(ctx context.Context, externalID int64) (int64, error) {
	err := s.run(ctx, s.Ready(), "ensure user", map[string]any{"user_id": externalID}, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `INSERT INTO users (id) VALUES (?) ON CONFLICT (id) DO NOTHING`, externalID)
		return err
	})
	if err != nil {
		return 0, err
	}
	return externalID, nil
}

func (s *SQLite) SeedDefaultExercises(ctx context.Context, userID int64) error {
	return s.run(ctx, s.Ready(), "seed exercises", map[string]any{"user_id": userID}, func(ctx context.Context) error {
		return s.withTx(ctx, func(tx *sql.Tx) error {
			for _, ex := range DefaultExercises {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO exercises (user_id, muscle_group, name)
					VALUES (?, ?, ?)
					ON CONFLICT (user_id, name) DO NOTHING`,
					userID, ex.MuscleGroup, ex.Name); err != nil {
					return fmt.Errorf("seed %q: %w", ex.Name, err)
				}
			}
			return nil
		})
	})
}

func (s *SQLite) CreateWorkout(ctx context.Context, userID int64) (int64, error) {
	var id int64
	err := s.run(ctx, s.Ready(), "create workout", map[string]any{"user_id": userID}, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, `INSERT INTO workouts (user_id, date) VALUES (?, ?) RETURNING id`,
			userID, s.today().Format(dateLayout)).Scan(&id)
	})
	return id, err
}

func (s *SQLite) ImportWorkout(ctx context.Context, userID int64, date time.Time, sets []SetInput) (int64, error) {
	var id int64
	keys := map[string]any{"user_id": userID, "date": date.Format(dateLayout), "sets": len(sets)}
	err := s.run(ctx, s.Ready(), "import workout", keys, func(ctx context.Context) error {
		return s.withTx(ctx, func(tx *sql.Tx) error {
			for _, exerciseID := range distinctExerciseIDs(sets) {
				var owner int64
				err := tx.QueryRowContext(ctx, `SELECT user_id FROM exercises WHERE id = ?`, exerciseID).Scan(&owner)
				if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != userID) {
					return fmt.Errorf("%w: exercise %d does not belong to user %d", ErrConstraint, exerciseID, userID)
				}
				if err != nil {
					return fmt.Errorf("check exercise owner: %w", err)
				}
			}
			if err := tx.QueryRowContext(ctx,
				`INSERT INTO workouts (user_id, date) VALUES (?, ?) RETURNING id`,
				userID, date.Format(dateLayout)).Scan(&id); err != nil {
				return fmt.Errorf("insert workout: %w", err)
			}
			stmt, err := tx.PrepareContext(ctx, `
				INSERT INTO sets (workout_id, exercise_id, set_order, weight, reps)
				VALUES (?, ?, ?, ?, ?)`)
			if err != nil {
				return err
			}
			defer stmt.Close()
			for _, set := range sets {
				if _, err := stmt.ExecContext(ctx, id, set.ExerciseID, set.SetOrder, set.Weight, set.Reps); err != nil {
					return fmt.Errorf("insert set %d of exercise %d: %w", set.SetOrder, set.ExerciseID, err)
				}
			}
			return nil
		})
	})
	return id, err
}

func (s *SQLite) DeleteWorkoutIfEmpty(ctx context.Context, workoutID int64) (bool, error) {
	var deleted bool
	err := s.run(ctx, s.Ready(), "delete empty workout", map[string]any{"workout_id": workoutID}, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `
			DELETE FROM workouts
			WHERE id = ? AND NOT EXISTS (SELECT 1 FROM sets WHERE workout_id = workouts.id)`,
			workoutID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		deleted = n == 1
		return nil
	})
	return deleted, err
}

func (s *SQLite) CreateExercise(ctx context.Context, userID int64, muscleGroup, name string) (int64, error) {
	var id int64
	keys := map[string]any{"user_id": userID, "muscle_group": muscleGroup, "exercise": name}
	err := s.run(ctx, s.Ready(), "create exercise", keys, func(ctx context.Context) error {
		return s.withTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO exercises (user_id, muscle_group, name)
				VALUES (?, ?, ?)
				ON CONFLICT (user_id, name) DO NOTHING`,
				userID, muscleGroup, name); err != nil {
				return err
			}
			return tx.QueryRowContext(ctx,
				`SELECT id FROM exercises WHERE user_id = ? AND name = ?`,
				userID, name).Scan(&id)
		})
	})
	return id, err
}

func (s *SQLite) LookupExercise(ctx context.Context, userID int64, name string) (int64, error) {
	var id int64
	err := s.run(ctx, s.Ready(), "lookup exercise", map[string]any{"user_id": userID, "exercise": name}, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx,
			`SELECT id FROM exercises WHERE user_id = ? AND name = ?`,
			userID, name).Scan(&id)
	})
	return id, err
}

func (s *SQLite) ListMuscleGroups(ctx context.Context, userID int64) ([]string, error) {
	var groups []string
	err := s.run(ctx, s.Ready(), "list muscle groups", map[string]any{"user_id": userID}, func(ctx context.Context) error {
		var err error
		groups, err = s.queryStrings(ctx, `
			SELECT DISTINCT muscle_group FROM exercises
			WHERE user_id = ?
			ORDER BY muscle_group`, userID)
		return err
	})
	return groups, err
}

func (s *SQLite) ListExercises(ctx context.Context, userID int64, muscleGroup string) ([]string, error) {
	var names []string
	keys := map[string]any{"user_id": userID, "muscle_group": muscleGroup}
	err := s.run(ctx, s.Ready(), "list exercises", keys, func(ctx context.Context) error {
		var err error
		names, err = s.queryStrings(ctx, `
			SELECT name FROM exercises
			WHERE user_id = ? AND muscle_group = ?
			ORDER BY name`, userID, muscleGroup)
		return err
	})
	return names, err
}

func (s *SQLite) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *SQLite) AddSet(ctx context.Context, workoutID, exerciseID int64, setOrder int, weight float64, reps int) (int64, error) {
	var id int64
	keys := map[string]any{"workout_id": workoutID, "exercise_id": exerciseID, "set_order": setOrder}
	err := s.run(ctx, s.Ready(), "add set", keys, func(ctx context.Context) error {
		return s.withTx(ctx, func(tx *sql.Tx) error {
			var workoutOwner, exerciseOwner int64
			err := tx.QueryRowContext(ctx, `
				SELECT w.user_id, e.user_id
				FROM workouts w CROSS JOIN exercises e
				WHERE w.id = ? AND e.id = ?`,
				workoutID, exerciseID).Scan(&workoutOwner, &exerciseOwner)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: workout %d or exercise %d does not exist", ErrConstraint, workoutID, exerciseID)
			}
			if err != nil {
				return err
			}
			if workoutOwner != exerciseOwner {
				return fmt.Errorf("%w: exercise %d does not belong to the owner of workout %d", ErrConstraint, exerciseID, workoutID)
			}
			return tx.QueryRowContext(ctx, `
				INSERT INTO sets (workout_id, exercise_id, set_order, weight, reps)
				VALUES (?, ?, ?, ?, ?)
				RETURNING id`,
				workoutID, exerciseID, setOrder, weight, reps).Scan(&id)
		})
	})
	return id, err
}

func (s *SQLite) ListSetsForExercise(ctx context.Context, workoutID, exerciseID int64) ([]Set, error) {
	var sets []Set
	keys := map[string]any{"workout_id": workoutID, "exercise_id": exerciseID}
	err := s.run(ctx, s.Ready(), "list sets", keys, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, workout_id, exercise_id, set_order, weight, reps
			FROM sets
			WHERE workout_id = ? AND exercise_id = ?
			ORDER BY set_order`, workoutID, exerciseID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var set Set
			if err := rows.Scan(&set.ID, &set.WorkoutID, &set.ExerciseID, &set.SetOrder, &set.Weight, &set.Reps); err != nil {
				return fmt.Errorf("scan set row: %w", err)
			}
			sets = append(sets, set)
		}
		return rows.Err()
	})
	return sets, err
}

func (s *SQLite) ListWorkoutDates(ctx context.Context, userID int64) ([]time.Time, error) {
	var dates []time.Time
	err := s.run(ctx, s.Ready(), "list workout dates", map[string]any{"user_id": userID}, func(ctx context.Context) error {
		raw, err := s.queryStrings(ctx, `
			SELECT DISTINCT date FROM workouts
			WHERE user_id = ?
			ORDER BY date DESC`, userID)
		if err != nil {
			return err
		}
		for _, v := range raw {
			d, err := time.Parse(dateLayout, v)
			if err != nil {
				return fmt.Errorf("parse workout date %q: %w", v, err)
			}
			dates = append(dates, d)
		}
		return nil
	})
	return dates, err
}

func (s *SQLite) GetWorkoutByDate(ctx context.Context, userID int64, date time.Time) ([]SetDetail, error) {
	var details []SetDetail
	keys := map[string]any{"user_id": userID, "date": date.Format(dateLayout)}
	err := s.run(ctx, s.Ready(), "get workout by date", keys, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT e.name, s.set_order, s.weight, s.reps
			FROM sets s
			JOIN exercises e ON e.id = s.exercise_id
			JOIN workouts w ON w.id = s.workout_id
			WHERE w.user_id = ? AND w.date = ?
			ORDER BY w.id, e.name, s.set_order`, userID, date.Format(dateLayout))
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var d SetDetail
			if err := rows.Scan(&d.Exercise, &d.SetOrder, &d.Weight, &d.Reps); err != nil {
				return fmt.Errorf("scan workout row: %w", err)
			}
			details = append(details, d)
		}
		return rows.Err()
	})
	return details, err
}

func (s *SQLite) ListRecentWorkouts(ctx context.Context, userID int64, limit int) ([]WorkoutSummary, error) {
	var summaries []WorkoutSummary
	keys := map[string]any{"user_id": userID, "limit": limit}
	err := s.run(ctx, s.Ready(), "list recent workouts", keys, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT w.id, w.date, COUNT(s.id), COALESCE(SUM(s.weight * s.reps), 0)
			FROM workouts w
			LEFT JOIN sets s ON s.workout_id = w.id
			WHERE w.user_id = ?
			GROUP BY w.id, w.date
			ORDER BY w.date DESC, w.id DESC
			LIMIT ?`, userID, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var sum WorkoutSummary
			var date string
			if err := rows.Scan(&sum.ID, &date, &sum.SetCount, &sum.Volume); err != nil {
				return fmt.Errorf("scan summary row: %w", err)
			}
			if sum.Date, err = time.Parse(dateLayout, date); err != nil {
				return fmt.Errorf("parse workout date %q: %w", date, err)
			}
			summaries = append(summaries, sum)
		}
		return rows.Err()
	})
	return summaries, err
}
