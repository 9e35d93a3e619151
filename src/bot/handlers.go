package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/thomasfsr/gymlog/src/database"
	"github.com/thomasfsr/gymlog/src/importer"
	"github.com/thomasfsr/gymlog/src/llm"
	"github.com/thomasfsr/gymlog/src/menu"
	"github.com/thomasfsr/gymlog/src/session"
)

const recentWorkouts = 10

func (b *Bot) start(ctx context.Context, step session.Step, ev Event) (session.Step, *Response, error) {
	userID, err := b.db.EnsureUser(ctx, ev.UserID)
	if err != nil {
		return nil, nil, err
	}
	if err := b.db.SeedDefaultExercises(ctx, userID); err != nil {
		return nil, nil, err
	}
	if w, ok := session.WorkoutOf(step); ok {
		if _, err := b.db.DeleteWorkoutIfEmpty(ctx, w.ID); err != nil {
			return nil, nil, err
		}
	}
	return session.Idle{}, &Response{Text: greeting(ev.Name), Options: menu.Main()}, nil
}

func (b *Bot) finish(ctx context.Context, step session.Step) (session.Step, *Response, error) {
	text := textFinished
	if w, ok := session.WorkoutOf(step); ok {
		deleted, err := b.db.DeleteWorkoutIfEmpty(ctx, w.ID)
		if err != nil {
			return nil, nil, err
		}
		if deleted {
			text = textDiscarded
		}
	}
	return session.Idle{}, &Response{Text: text, Options: menu.Main()}, nil
}

func (b *Bot) newWorkout(ctx context.Context, ev Event) (session.Step, *Response, error) {
	userID, err := b.db.EnsureUser(ctx, ev.UserID)
	if err != nil {
		return nil, nil, err
	}
	workoutID, err := b.db.CreateWorkout(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return b.muscleGroups(ctx, userID, session.Progress{ID: workoutID})
}

func (b *Bot) muscleGroups(ctx context.Context, userID int64, w session.Progress) (session.Step, *Response, error) {
	groups, err := b.db.ListMuscleGroups(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	text := textChooseGroup
	if len(groups) == 0 {
		text = textNoGroups
	}
	return session.ChoosingMuscleGroup{Workout: w}, &Response{Text: text, Options: menu.MuscleGroups(groups)}, nil
}

func (b *Bot) chooseGroup(ctx context.Context, userID int64, w session.Progress, group string) (session.Step, *Response, error) {
	return b.exercises(ctx, userID, w.ResetCounts(), group)
}

func (b *Bot) exercises(ctx context.Context, userID int64, w session.Progress, group string) (session.Step, *Response, error) {
	names, err := b.db.ListExercises(ctx, userID, group)
	if err != nil {
		return nil, nil, err
	}
	next := session.ChoosingExercise{Workout: w, MuscleGroup: group}
	return next, &Response{Text: renderExercises(group, names), Options: menu.Exercises(names)}, nil
}

func (b *Bot) selectExercise(ctx context.Context, userID int64, s session.ChoosingExercise, name string) (session.Step, *Response, error) {
	exerciseID, err := b.db.LookupExercise(ctx, userID, name)
	if errors.Is(err, database.ErrNotFound) {
		return b.exercises(ctx, userID, s.Workout, s.MuscleGroup)
	}
	if err != nil {
		return nil, nil, err
	}
	return b.activate(ctx, s.Workout, s.MuscleGroup, exerciseID, name, "")
}

func (b *Bot) addExercise(ctx context.Context, userID int64, s session.AddingExercise, name string) (session.Step, *Response, error) {
	exerciseID, err := b.db.CreateExercise(ctx, userID, s.MuscleGroup, name)
	if err != nil {
		return nil, nil, err
	}
	return b.activate(ctx, s.Workout, s.MuscleGroup, exerciseID, name, "Упражнение добавлено!")
}

// activate makes exerciseID the active exercise, taking its set counter from
// the sets already stored for it in this workout.
func (b *Bot) activate(ctx context.Context, w session.Progress, group string, exerciseID int64, name, header string) (session.Step, *Response, error) {
	sets, err := b.db.ListSetsForExercise(ctx, w.ID, exerciseID)
	if err != nil {
		return nil, nil, err
	}
	next := session.EnteringSetInfo{
		Workout:      w.WithCount(exerciseID, lastOrder(sets)),
		MuscleGroup:  group,
		ExerciseID:   exerciseID,
		ExerciseName: name,
	}
	text := renderExercisePrompt(header, name, sets)
	return next, &Response{Text: strings.TrimLeft(text, "\n"), Options: menu.SetEntry()}, nil
}

func lastOrder(sets []database.Set) int {
	n := 0
	for _, s := range sets {
		n = max(n, s.SetOrder)
	}
	return n
}

// parseSet reads "weight reps". The weight may use a decimal comma.
func parseSet(text string) (llm.ExerciseSet, bool) {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return llm.ExerciseSet{}, false
	}
	weight, err := strconv.ParseFloat(strings.ReplaceAll(fields[0], ",", "."), 64)
	if err != nil || weight < 0 || weight > database.MaxWeight || math.IsNaN(weight) {
		return llm.ExerciseSet{}, false
	}
	reps, err := strconv.Atoi(fields[1])
	if err != nil || reps <= 0 || reps > database.MaxReps {
		return llm.ExerciseSet{}, false
	}
	return llm.ExerciseSet{Weight: weight, Reps: reps}, true
}

func (b *Bot) enterSets(ctx context.Context, s session.EnteringSetInfo, text string) (session.Step, *Response, error) {
	var sets []llm.ExerciseSet
	if set, ok := parseSet(text); ok {
		sets = []llm.ExerciseSet{set}
	} else {
		extracted, err := b.extract(ctx, text)
		if err != nil {
			return nil, &Response{Text: textBadSet, Options: menu.SetEntry()}, nil
		}
		for _, set := range extracted {
			if set.Weight <= database.MaxWeight && set.Reps <= database.MaxReps {
				sets = append(sets, set)
			}
		}
		if len(sets) == 0 {
			return nil, &Response{Text: textBadSet, Options: menu.SetEntry()}, nil
		}
	}

	next := s
	for i, set := range sets {
		order := next.Workout.Count(next.ExerciseID) + 1
		_, err := b.db.AddSet(ctx, next.Workout.ID, next.ExerciseID, order, set.Weight, set.Reps)
		if err != nil && i > 0 {
			return b.partial(ctx, next, i, len(sets), err)
		}
		if errors.Is(err, database.ErrConstraint) {
			return b.resync(ctx, next)
		}
		if err != nil {
			return nil, nil, err
		}
		next.Workout = next.Workout.WithCount(next.ExerciseID, order)
	}

	stored, err := b.db.ListSetsForExercise(ctx, next.Workout.ID, next.ExerciseID)
	if err != nil {
		return nil, nil, err
	}
	return next, &Response{Text: renderSets("Данные записаны!\nТекущие подходы:", stored), Options: menu.SetEntry()}, nil
}

// resync resets the active exercise's counter from storage after a set_order
// conflict.
func (b *Bot) resync(ctx context.Context, s session.EnteringSetInfo) (session.Step, *Response, error) {
	stored, err := b.db.ListSetsForExercise(ctx, s.Workout.ID, s.ExerciseID)
	if err != nil {
		return nil, nil, err
	}
	s.Workout = s.Workout.WithCount(s.ExerciseID, lastOrder(stored))
	return s, &Response{Text: textSetConflict, Options: menu.SetEntry()}, nil
}

// partial keeps the counter of the sets stored before a failure in the middle
// of a multi-set message and tells the user which ones to resend.
func (b *Bot) partial(ctx context.Context, s session.EnteringSetInfo, stored, total int, cause error) (session.Step, *Response, error) {
	b.log.Warn().Err(cause).Int("stored", stored).Int("total", total).Msg("sets partially stored")
	text := fmt.Sprintf(textPartialSets, stored, total)
	sets, err := b.db.ListSetsForExercise(ctx, s.Workout.ID, s.ExerciseID)
	if err != nil {
		return s, &Response{Text: text, Options: menu.SetEntry()}, nil
	}
	s.Workout = s.Workout.WithCount(s.ExerciseID, lastOrder(sets))
	return s, &Response{Text: renderSets(text+"\nТекущие подходы:", sets), Options: menu.SetEntry()}, nil
}

func (b *Bot) myWorkouts(ctx context.Context, ev Event) (session.Step, *Response, error) {
	dates, err := b.db.ListWorkoutDates(ctx, ev.UserID)
	if err != nil {
		return nil, nil, err
	}
	if len(dates) == 0 {
		return session.ViewingWorkouts{}, &Response{Text: textNoWorkouts, Options: menu.WorkoutDates(nil)}, nil
	}
	if len(dates) > recentWorkouts {
		dates = dates[:recentWorkouts]
	}
	summaries, err := b.db.ListRecentWorkouts(ctx, ev.UserID, recentWorkouts)
	if err != nil {
		return nil, nil, err
	}
	return session.ViewingWorkouts{}, &Response{Text: renderSummaries(summaries), Options: menu.WorkoutDates(dates)}, nil
}

func (b *Bot) showWorkout(ctx context.Context, userID int64, arg string) (session.Step, *Response, error) {
	date, err := time.Parse(menu.DateLayout, arg)
	if err != nil {
		return nil, nil, nil
	}
	details, err := b.db.GetWorkoutByDate(ctx, userID, date)
	if err != nil {
		return nil, nil, err
	}
	return nil, &Response{Text: renderWorkout(arg, details), Options: menu.WorkoutView()}, nil
}

func (b *Bot) importFile(ctx context.Context, _ session.ImportingData, ev Event) (session.Step, *Response, error) {
	if ev.File == nil || !strings.EqualFold(filepath.Ext(ev.File.Name), ".csv") {
		return nil, &Response{Text: textNotCSV, Options: menu.Import()}, nil
	}
	if len(ev.File.Data) > b.maxImport {
		return nil, &Response{Text: "Файл слишком большой.", Options: menu.Import()}, nil
	}
	res, err := importer.Parse(bytes.NewReader(ev.File.Data))
	if errors.Is(err, importer.ErrInvalid) {
		return nil, &Response{Text: "Не удалось прочитать файл: " + err.Error(), Options: menu.Import()}, nil
	}
	if err != nil {
		return nil, nil, err
	}
	stats, err := res.Save(ctx, b.db, ev.UserID)
	if err != nil {
		return nil, nil, err
	}
	b.log.Info().Int64("user_id", ev.UserID).Int("workouts", stats.Workouts).Int("sets", stats.Sets).Msg("import finished")
	return session.Idle{}, &Response{Text: renderImport(stats, res.Dropped), Options: menu.Main()}, nil
}
