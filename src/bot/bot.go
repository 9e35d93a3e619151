// Package bot routes user events through the conversation steps and turns
// them into gateway calls and replies.
package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/thomasfsr/gymlog/src/database"
	"github.com/thomasfsr/gymlog/src/llm"
	"github.com/thomasfsr/gymlog/src/menu"
	"github.com/thomasfsr/gymlog/src/session"
)

const (
	userLocks             = 64
	DefaultMaxImportBytes = 5 << 20
	extractTimeout        = 20 * time.Second
)

// SetExtractor reads sets out of text the strict "weight reps" parser
// rejected.
type SetExtractor interface {
	ExtractSets(ctx context.Context, text string) ([]llm.ExerciseSet, error)
}

type Bot struct {
	db        database.Gateway
	sessions  session.Store
	log       zerolog.Logger
	extractor SetExtractor
	maxImport int
	locks     [userLocks]sync.Mutex
}

type Option func(*Bot)

func WithLogger(log zerolog.Logger) Option {
	return func(b *Bot) { b.log = log }
}

func WithExtractor(e SetExtractor) Option {
	return func(b *Bot) { b.extractor = e }
}

func WithMaxImportBytes(n int) Option {
	return func(b *Bot) {
		if n > 0 {
			b.maxImport = n
		}
	}
}

func New(db database.Gateway, sessions session.Store, opts ...Option) *Bot {
	b := &Bot{
		db:        db,
		sessions:  sessions,
		log:       zerolog.Nop(),
		maxImport: DefaultMaxImportBytes,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Handle processes one event and returns the reply, or nil when the event
// does not apply to the user's current step. Events of one user are handled
// one at a time.
func (b *Bot) Handle(ctx context.Context, ev Event) *Response {
	if !b.db.Ready() {
		return &Response{Text: textNotReady}
	}

	mu := &b.locks[uint64(ev.UserID)%userLocks]
	mu.Lock()
	defer mu.Unlock()

	log := b.log.With().Int64("user_id", ev.UserID).Str("kind", string(ev.Kind)).Logger()
	step, err := b.sessions.Get(ctx, ev.UserID)
	if errors.Is(err, session.ErrCorrupt) {
		log.Warn().Err(err).Msg("discarding unreadable session")
		if err := b.sessions.Clear(ctx, ev.UserID); err != nil {
			log.Error().Err(err).Msg("clear session")
			return &Response{Text: textApology}
		}
		step, err = session.Idle{}, nil
	}
	if err != nil {
		log.Error().Err(err).Msg("load session")
		return &Response{Text: textApology}
	}
	log = log.With().Str("step", step.Name()).Logger()

	next, resp, err := b.dispatch(ctx, step, ev)
	if err != nil {
		if database.IsUnavailable(err) {
			log.Warn().Err(err).Msg("database unavailable")
			return &Response{Text: textNotReady}
		}
		log.Error().Err(err).Msg("handle event")
		return &Response{Text: textApology}
	}
	if resp == nil {
		log.Debug().Str("payload", ev.Payload).Msg("event dropped")
		return nil
	}
	if next != nil {
		if err := b.save(ctx, ev.UserID, next); err != nil {
			log.Error().Err(err).Str("next", next.Name()).Msg("save session")
			return &Response{Text: textApology}
		}
		if next.Name() != step.Name() {
			log.Debug().Str("next", next.Name()).Msg("step changed")
		}
	}
	return resp
}

func (b *Bot) save(ctx context.Context, userID int64, s session.Step) error {
	if _, idle := s.(session.Idle); idle {
		return b.sessions.Clear(ctx, userID)
	}
	return b.sessions.Set(ctx, userID, s)
}

// dispatch returns the next step (nil to keep the current one) and the
// reply (nil to drop the event).
func (b *Bot) dispatch(ctx context.Context, step session.Step, ev Event) (session.Step, *Response, error) {
	switch ev.Kind {
	case KindCommand:
		cmd := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ev.Command), "/"))
		if cmd == "start" {
			return b.start(ctx, step, ev)
		}
		// other commands behave like the button with the same payload
		return b.button(ctx, step, ev, cmd, "")
	case KindButton:
		name, arg := menu.Parse(ev.Payload)
		return b.button(ctx, step, ev, name, arg)
	case KindText:
		return b.text(ctx, step, ev)
	case KindFile:
		if s, ok := step.(session.ImportingData); ok {
			return b.importFile(ctx, s, ev)
		}
	}
	return nil, nil, nil
}

func (b *Bot) button(ctx context.Context, step session.Step, ev Event, name, arg string) (session.Step, *Response, error) {
	if name == menu.FinishWorkout {
		return b.finish(ctx, step)
	}
	switch s := step.(type) {
	case session.Idle:
		switch name {
		case menu.NewWorkout:
			return b.newWorkout(ctx, ev)
		case menu.MyWorkouts:
			return b.myWorkouts(ctx, ev)
		case menu.ImportData:
			return session.ImportingData{}, &Response{Text: textImportHelp, Options: menu.Import()}, nil
		}
	case session.ChoosingMuscleGroup:
		switch name {
		case menu.SelectMuscleGroupAction:
			if arg == "" {
				break
			}
			return b.chooseGroup(ctx, ev.UserID, s.Workout, arg)
		case menu.NewMuscleGroup:
			next := session.AddingMuscleGroup(s)
			return next, &Response{Text: textNewGroup, Options: menu.NewMuscleGroupPrompt()}, nil
		}
	case session.AddingMuscleGroup:
		if name == menu.BackToMuscleGroup {
			return b.muscleGroups(ctx, ev.UserID, s.Workout)
		}
	case session.ChoosingExercise:
		switch name {
		case menu.SelectExerciseAction:
			if arg == "" {
				break
			}
			return b.selectExercise(ctx, ev.UserID, s, arg)
		case menu.NewExercise:
			next := session.AddingExercise(s)
			return next, &Response{Text: textNewExercise, Options: menu.NewExercisePrompt()}, nil
		case menu.BackToMuscleGroup:
			return b.muscleGroups(ctx, ev.UserID, s.Workout)
		}
	case session.AddingExercise:
		if name == menu.BackToExercise {
			return b.exercises(ctx, ev.UserID, s.Workout, s.MuscleGroup)
		}
	case session.EnteringSetInfo:
		if name == menu.BackToExercise {
			return b.exercises(ctx, ev.UserID, s.Workout, s.MuscleGroup)
		}
	case session.ViewingWorkouts:
		switch name {
		case menu.MyWorkouts:
			return b.myWorkouts(ctx, ev)
		case menu.GetWorkoutAction:
			return b.showWorkout(ctx, ev.UserID, arg)
		case menu.BackToMain:
			return session.Idle{}, &Response{Text: textMainMenu, Options: menu.Main()}, nil
		}
	case session.ImportingData:
		if name == menu.BackToMain {
			return session.Idle{}, &Response{Text: textMainMenu, Options: menu.Main()}, nil
		}
	}
	return nil, nil, nil
}

func (b *Bot) text(ctx context.Context, step session.Step, ev Event) (session.Step, *Response, error) {
	switch s := step.(type) {
	case session.AddingMuscleGroup:
		group, ok := cleanName(ev.Text, database.MaxMuscleGroupLen)
		if !ok {
			return nil, &Response{Text: textBadName, Options: menu.NewMuscleGroupPrompt()}, nil
		}
		return b.chooseGroup(ctx, ev.UserID, s.Workout, group)
	case session.AddingExercise:
		name, ok := cleanName(ev.Text, database.MaxExerciseNameLen)
		if !ok {
			return nil, &Response{Text: textBadName, Options: menu.NewExercisePrompt()}, nil
		}
		return b.addExercise(ctx, ev.UserID, s, name)
	case session.EnteringSetInfo:
		return b.enterSets(ctx, s, ev.Text)
	}
	return nil, nil, nil
}

// cleanName collapses whitespace and rejects empty names or names longer
// than limit runes.
func cleanName(s string, limit int) (string, bool) {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" || len([]rune(s)) > limit {
		return "", false
	}
	return s, true
}

func (b *Bot) extract(ctx context.Context, text string) ([]llm.ExerciseSet, error) {
	if b.extractor == nil {
		return nil, llm.ErrNoSets
	}
	ctx, cancel := context.WithTimeout(ctx, extractTimeout)
	defer cancel()
	sets, err := b.extractor.ExtractSets(ctx, text)
	if err != nil && !errors.Is(err, llm.ErrNoSets) {
		b.log.Warn().Err(err).Msg("set extraction failed")
	}
	return sets, err
}
