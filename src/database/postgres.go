package database

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Postgres error codes mapped to ErrConstraint.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

type PoolOptions struct {
	MaxConns  int32
	MinConns  int32
	OpTimeout time.Duration
}

// Postgres implements Gateway on a pgx connection pool.
type Postgres struct {
	pool   *pgxpool.Pool
	closed atomic.Bool
	ops
}

// NewPostgres creates the pool. Connections are opened lazily, so callers
// should Ping before serving traffic.
func NewPostgres(ctx context.Context, dsn string, opts PoolOptions, log zerolog.Logger) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = DefaultOpTimeout
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	log.Info().Int32("max_conns", cfg.MaxConns).Int32("min_conns", cfg.MinConns).Msg("postgres pool created")
	return &Postgres{
		pool: pool,
		ops:  ops{log: log, timeout: opts.OpTimeout, classify: classifyPostgres, now: time.Now},
	}, nil
}

func classifyPostgres(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation, pgForeignKeyViolation, pgCheckViolation:
			return fmt.Errorf("%w: %w", ErrConstraint, err)
		}
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}
	return err
}

func (p *Postgres) Ready() bool {
	return p != nil && p.pool != nil && !p.closed.Load()
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.run(ctx, p.Ready(), "ping", nil, func(ctx context.Context) error {
		return p.pool.Ping(ctx)
	})
}

func (p *Postgres) Close() {
	if p.closed.CompareAndSwap(false, true) {
		p.pool.Close()
	}
}

func (p *Postgres) InitSchema(ctx context.Context) error {
	return p.run(ctx, p.Ready(), "init schema", nil, func(ctx context.Context) error {
		_, err := p.pool.Exec(ctx, postgresSchema)
		return err
	})
}

func (p *Postgres) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (p *Postgres) EnsureUser(ctx context.Context, externalID int64) (int64, error) {
	err := p.run(ctx, p.Ready(), "ensure user", map[string]any{"user_id": externalID}, func(ctx context.Context) error {
		_, err := p.pool.Exec(ctx, `INSERT INTO users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, externalID)
		return err
	})
	if err != nil {
		return 0, err
	}
	return externalID, nil
}

func (p *Postgres) SeedDefaultExercises(ctx context.Context, userID int64) error {
	return p.run(ctx, p.Ready(), "seed exercises", map[string]any{"user_id": userID}, func(ctx context.Context) error {
		return p.withTx(ctx, func(tx pgx.Tx) error {
			batch := &pgx.Batch{}
			for _, ex := range DefaultExercises {
				batch.Queue(`
					INSERT INTO exercises (user_id, muscle_group, name)
					VALUES ($1, $2, $3)
					ON CONFLICT (user_id, name) DO NOTHING`,
					userID, ex.MuscleGroup, ex.Name)
			}
			return tx.SendBatch(ctx, batch).Close()
		})
	})
}

func (p *Postgres) CreateWorkout(ctx context.Context, userID int64) (int64, error) {
	var id int64
	err := p.run(ctx, p.Ready(), "create workout", map[string]any{"user_id": userID}, func(ctx context.Context) error {
		return p.pool.QueryRow(ctx, `INSERT INTO workouts (user_id, date) VALUES ($1, $2) RETURNING id`,
			userID, p.today()).Scan(&id)
	})
	return id, err
}

func (p *Postgres) ImportWorkout(ctx context.Context, userID int64, date time.Time, sets []SetInput) (int64, error) {
	var id int64
	keys := map[string]any{"user_id": userID, "date": date.Format(dateLayout), "sets": len(sets)}
	err := p.run(ctx, p.Ready(), "import workout", keys, func(ctx context.Context) error {
		return p.withTx(ctx, func(tx pgx.Tx) error {
			if err := checkExerciseOwnerPg(ctx, tx, userID, sets); err != nil {
				return err
			}
			if err := tx.QueryRow(ctx,
				`INSERT INTO workouts (user_id, date) VALUES ($1, $2) RETURNING id`,
				userID, dateOnly(date)).Scan(&id); err != nil {
				return fmt.Errorf("insert workout: %w", err)
			}
			_, err := tx.CopyFrom(ctx,
				pgx.Identifier{"sets"},
				[]string{"workout_id", "exercise_id", "set_order", "weight", "reps"},
				pgx.CopyFromSlice(len(sets), func(i int) ([]any, error) {
					s := sets[i]
					return []any{id, s.ExerciseID, s.SetOrder, s.Weight, s.Reps}, nil
				}))
			if err != nil {
				return fmt.Errorf("copy sets: %w", err)
			}
			return nil
		})
	})
	return id, err
}

func checkExerciseOwnerPg(ctx context.Context, tx pgx.Tx, userID int64, sets []SetInput) error {
	ids := distinctExerciseIDs(sets)
	if len(ids) == 0 {
		return nil
	}
	var owned int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM exercises WHERE user_id = $1 AND id = ANY($2)`,
		userID, ids).Scan(&owned); err != nil {
		return fmt.Errorf("check exercise owner: %w", err)
	}
	if owned != len(ids) {
		return fmt.Errorf("%w: exercise does not belong to user %d", ErrConstraint, userID)
	}
	return nil
}

func distinctExerciseIDs(sets []SetInput) []int64 {
	seen := make(map[int64]bool, len(sets))
	var ids []int64
	for _, s := range sets {
		if !seen[s.ExerciseID] {
			seen[s.ExerciseID] = true
			ids = append(ids, s.ExerciseID)
		}
	}
	return ids
}

func (p *Postgres) DeleteWorkoutIfEmpty(ctx context.Context, workoutID int64) (bool, error) {
	var deleted bool
	err := p.run(ctx, p.Ready(), "delete empty workout", map[string]any{"workout_id": workoutID}, func(ctx context.Context) error {
		tag, err := p.pool.Exec(ctx, `
			DELETE FROM workouts w
			WHERE w.id = $1 AND NOT EXISTS (SELECT 1 FROM sets s WHERE s.workout_id = w.id)`,
			workoutID)
		if err != nil {
			return err
		}
		deleted = tag.RowsAffected() == 1
		return nil
	})
	return deleted, err
}

func (p *Postgres) CreateExercise(ctx context.Context, userID int64, muscleGroup, name string) (int64, error) {
	var id int64
	keys := map[string]any{"user_id": userID, "muscle_group": muscleGroup, "exercise": name}
	err := p.run(ctx, p.Ready(), "create exercise", keys, func(ctx context.Context) error {
		return p.withTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, `
				INSERT INTO exercises (user_id, muscle_group, name)
				VALUES ($1, $2, $3)
				ON CONFLICT (user_id, name) DO NOTHING`,
				userID, muscleGroup, name); err != nil {
				return err
			}
			return tx.QueryRow(ctx,
				`SELECT id FROM exercises WHERE user_id = $1 AND name = $2`,
				userID, name).Scan(&id)
		})
	})
	return id, err
}

func (p *Postgres) LookupExercise(ctx context.Context, userID int64, name string) (int64, error) {
	var id int64
	err := p.run(ctx, p.Ready(), "lookup exercise", map[string]any{"user_id": userID, "exercise": name}, func(ctx context.Context) error {
		return p.pool.QueryRow(ctx,
			`SELECT id FROM exercises WHERE user_id = $1 AND name = $2`,
			userID, name).Scan(&id)
	})
	return id, err
}

func (p *Postgres) ListMuscleGroups(ctx context.Context, userID int64) ([]string, error) {
	var groups []string
	err := p.run(ctx, p.Ready(), "list muscle groups", map[string]any{"user_id": userID}, func(ctx context.Context) error {
		rows, err := p.pool.Query(ctx, `
			SELECT DISTINCT muscle_group FROM exercises
			WHERE user_id = $1
			ORDER BY muscle_group`, userID)
		if err != nil {
			return err
		}
		groups, err = pgx.CollectRows(rows, pgx.RowTo[string])
		return err
	})
	return groups, err
}

func (p *Postgres) ListExercises(ctx context.Context, userID int64, muscleGroup string) ([]string, error) {
	var names []string
	keys := map[string]any{"user_id": userID, "muscle_group": muscleGroup}
	err := p.run(ctx, p.Ready(), "list exercises", keys, func(ctx context.Context) error {
		rows, err := p.pool.Query(ctx, `
			SELECT name FROM exercises
			WHERE user_id = $1 AND muscle_group = $2
			ORDER BY name`, userID, muscleGroup)
		if err != nil {
			return err
		}
		names, err = pgx.CollectRows(rows, pgx.RowTo[string])
		return err
	})
	return names, err
}

func (p *Postgres) AddSet(ctx context.Context, workoutID, exerciseID int64, setOrder int, weight float64, reps int) (int64, error) {
	var id int64
	keys := map[string]any{"workout_id": workoutID, "exercise_id": exerciseID, "set_order": setOrder}
	err := p.run(ctx, p.Ready(), "add set", keys, func(ctx context.Context) error {
		return p.withTx(ctx, func(tx pgx.Tx) error {
			var workoutOwner, exerciseOwner int64
			err := tx.QueryRow(ctx, `
				SELECT w.user_id, e.user_id
				FROM workouts w CROSS JOIN exercises e
				WHERE w.id = $1 AND e.id = $2`,
				workoutID, exerciseID).Scan(&workoutOwner, &exerciseOwner)
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: workout %d or exercise %d does not exist", ErrConstraint, workoutID, exerciseID)
			}
			if err != nil {
				return err
			}
			if workoutOwner != exerciseOwner {
				return fmt.Errorf("%w: exercise %d does not belong to the owner of workout %d", ErrConstraint, exerciseID, workoutID)
			}
			return tx.QueryRow(ctx, `
				INSERT INTO sets (workout_id, exercise_id, set_order, weight, reps)
				VALUES ($1, $2, $3, $4, $5)
				RETURNING id`,
				workoutID, exerciseID, setOrder, weight, reps).Scan(&id)
		})
	})
	return id, err
}

func (p *Postgres) ListSetsForExercise(ctx context.Context, workoutID, exerciseID int64) ([]Set, error) {
	var sets []Set
	keys := map[string]any{"workout_id": workoutID, "exercise_id": exerciseID}
	err := p.run(ctx, p.Ready(), "list sets", keys, func(ctx context.Context) error {
		rows, err := p.pool.Query(ctx, `
			SELECT id, workout_id, exercise_id, set_order, weight::float8, reps
			FROM sets
			WHERE workout_id = $1 AND exercise_id = $2
			ORDER BY set_order`, workoutID, exerciseID)
		if err != nil {
			return err
		}
		sets, err = pgx.CollectRows(rows, pgx.RowToStructByPos[Set])
		return err
	})
	return sets, err
}

func (p *Postgres) ListWorkoutDates(ctx context.Context, userID int64) ([]time.Time, error) {
	var dates []time.Time
	err := p.run(ctx, p.Ready(), "list workout dates", map[string]any{"user_id": userID}, func(ctx context.Context) error {
		rows, err := p.pool.Query(ctx, `
			SELECT DISTINCT date FROM workouts
			WHERE user_id = $1
			ORDER BY date DESC`, userID)
		if err != nil {
			return err
		}
		dates, err = pgx.CollectRows(rows, pgx.RowTo[time.Time])
		return err
	})
	return dates, err
}

func (p *Postgres) GetWorkoutByDate(ctx context.Context, userID int64, date time.Time) ([]SetDetail, error) {
	var details []SetDetail
	keys := map[string]any{"user_id": userID, "date": date.Format(dateLayout)}
	err := p.run(ctx, p.Ready(), "get workout by date", keys, func(ctx context.Context) error {
		rows, err := p.pool.Query(ctx, `
			SELECT e.name, s.set_order, s.weight::float8, s.reps
			FROM sets s
			JOIN exercises e ON e.id = s.exercise_id
			JOIN workouts w ON w.id = s.workout_id
			WHERE w.user_id = $1 AND w.date = $2
			ORDER BY w.id, e.name, s.set_order`, userID, dateOnly(date))
		if err != nil {
			return err
		}
		details, err = pgx.CollectRows(rows, pgx.RowToStructByPos[SetDetail])
		return err
	})
	return details, err
}

func (p *Postgres) ListRecentWorkouts(ctx context.Context, userID int64, limit int) ([]WorkoutSummary, error) {
	var summaries []WorkoutSummary
	keys := map[string]any{"user_id": userID, "limit": limit}
	err := p.run(ctx, p.Ready(), "list recent workouts", keys, func(ctx context.Context) error {
		rows, err := p.pool.Query(ctx, `
			SELECT w.id, w.date,
			       COUNT(s.id)::int,
			       COALESCE(SUM(s.weight * s.reps), 0)::float8
			FROM workouts w
			LEFT JOIN sets s ON s.workout_id = w.id
			WHERE w.user_id = $1
			GROUP BY w.id, w.date
			ORDER BY w.date DESC, w.id DESC
			LIMIT $2`, userID, limit)
		if err != nil {
			return err
		}
		summaries, err = pgx.CollectRows(rows, pgx.RowToStructByPos[WorkoutSummary])
		return err
	})
	return summaries, err
}
