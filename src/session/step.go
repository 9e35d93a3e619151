// Package session holds the per-user conversation step and the stores that
// keep it between events.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
)

// ErrCorrupt means a stored session could not be decoded, for example one
// written by a build with a different set of steps.
var ErrCorrupt = errors.New("corrupt session")

// Step is the current position of a user in the conversation. The set of
// variants is closed; each carries only the data its step needs.
type Step interface {
	Name() string
	step()
}

const (
	NameIdle                = "start"
	NameChoosingMuscleGroup = "choosing_muscle_group"
	NameAddingMuscleGroup   = "adding_muscle_group"
	NameChoosingExercise    = "choosing_exercise"
	NameAddingExercise      = "adding_exercise"
	NameEnteringSetInfo     = "entering_set_info"
	NameViewingWorkouts     = "view_workouts"
	NameImportingData       = "import_data"
)

// Progress is the workout being recorded and how many sets each exercise
// has in it so far.
type Progress struct {
	ID        int64         `json:"workout_id"`
	SetCounts map[int64]int `json:"set_counts,omitempty"`
}

// WithCount returns a copy of p with the counter for exerciseID set to n.
func (p Progress) WithCount(exerciseID int64, n int) Progress {
	counts := make(map[int64]int, len(p.SetCounts)+1)
	maps.Copy(counts, p.SetCounts)
	counts[exerciseID] = n
	return Progress{ID: p.ID, SetCounts: counts}
}

// ResetCounts returns a copy of p with no counters.
func (p Progress) ResetCounts() Progress {
	return Progress{ID: p.ID}
}

func (p Progress) Count(exerciseID int64) int {
	return p.SetCounts[exerciseID]
}

type Idle struct{}

type ChoosingMuscleGroup struct {
	Workout Progress `json:"workout"`
}

type AddingMuscleGroup struct {
	Workout Progress `json:"workout"`
}

type ChoosingExercise struct {
	Workout     Progress `json:"workout"`
	MuscleGroup string   `json:"muscle_group"`
}

type AddingExercise struct {
	Workout     Progress `json:"workout"`
	MuscleGroup string   `json:"muscle_group"`
}

type EnteringSetInfo struct {
	Workout      Progress `json:"workout"`
	MuscleGroup  string   `json:"muscle_group"`
	ExerciseID   int64    `json:"exercise_id"`
	ExerciseName string   `json:"exercise_name"`
}

type ViewingWorkouts struct{}

type ImportingData struct{}

func (Idle) Name() string                { return NameIdle }
func (ChoosingMuscleGroup) Name() string { return NameChoosingMuscleGroup }
func (AddingMuscleGroup) Name() string   { return NameAddingMuscleGroup }
func (ChoosingExercise) Name() string    { return NameChoosingExercise }
func (AddingExercise) Name() string      { return NameAddingExercise }
func (EnteringSetInfo) Name() string     { return NameEnteringSetInfo }
func (ViewingWorkouts) Name() string     { return NameViewingWorkouts }
func (ImportingData) Name() string       { return NameImportingData }

func (Idle) step()                {}
func (ChoosingMuscleGroup) step() {}
func (AddingMuscleGroup) step()   {}
func (ChoosingExercise) step()    {}
func (AddingExercise) step()      {}
func (EnteringSetInfo) step()     {}
func (ViewingWorkouts) step()     {}
func (ImportingData) step()       {}

// WorkoutOf returns the in-progress workout of s, if the step has one.
func WorkoutOf(s Step) (Progress, bool) {
	switch s := s.(type) {
	case ChoosingMuscleGroup:
		return s.Workout, true
	case AddingMuscleGroup:
		return s.Workout, true
	case ChoosingExercise:
		return s.Workout, true
	case AddingExercise:
		return s.Workout, true
	case EnteringSetInfo:
		return s.Workout, true
	}
	return Progress{}, false
}

type envelope struct {
	Step string          `json:"step"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Marshal encodes s as {"step": name, "data": {...}}.
func Marshal(s Step) ([]byte, error) {
	if s == nil {
		s = Idle{}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode step %s: %w", s.Name(), err)
	}
	return json.Marshal(envelope{Step: s.Name(), Data: data})
}

func Unmarshal(raw []byte) (Step, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	var s Step
	var err error
	switch env.Step {
	case NameIdle:
		s = Idle{}
	case NameChoosingMuscleGroup:
		s, err = decode[ChoosingMuscleGroup](env.Data)
	case NameAddingMuscleGroup:
		s, err = decode[AddingMuscleGroup](env.Data)
	case NameChoosingExercise:
		s, err = decode[ChoosingExercise](env.Data)
	case NameAddingExercise:
		s, err = decode[AddingExercise](env.Data)
	case NameEnteringSetInfo:
		s, err = decode[EnteringSetInfo](env.Data)
	case NameViewingWorkouts:
		s = ViewingWorkouts{}
	case NameImportingData:
		s = ImportingData{}
	default:
		return nil, fmt.Errorf("%w: unknown step %q", ErrCorrupt, env.Step)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: step %s: %w", ErrCorrupt, env.Step, err)
	}
	return s, nil
}

func decode[T Step](data json.RawMessage) (T, error) {
	var v T
	if len(data) == 0 {
		return v, nil
	}
	err := json.Unmarshal(data, &v)
	return v, err
}
