// Package menu builds the option lists shown to the user and defines the
// button payloads they carry back.
package menu

import (
	"strings"
	"time"
)

type Option struct {
	Label   string `json:"label"`
	Payload string `json:"payload"`
}

// Button payloads. Payloads with an argument use "name:arg".
const (
	NewWorkout              = "new_workout"
	MyWorkouts              = "my_workouts"
	ImportData              = "import_data"
	SelectMuscleGroupAction = "select_muscle_group"
	NewMuscleGroup          = "new_muscle_group"
	FinishWorkout           = "finish_workout"
	SelectExerciseAction    = "select_exercise"
	NewExercise             = "new_exercise"
	BackToMuscleGroup       = "back_to_muscle_group"
	BackToExercise          = "back_to_exercise"
	GetWorkoutAction        = "get_workout"
	BackToMain              = "back_to_main"
)

const DateLayout = "2006-01-02"

const (
	labelNewWorkout     = "Новая тренировка"
	labelMyWorkouts     = "Мои тренировки"
	labelImportData     = "Импорт данных"
	labelNewMuscleGroup = "Новая группа мышц"
	labelNewExercise    = "Новое упражнение"
	labelFinishWorkout  = "Завершить тренировку"
	labelBack           = "Назад"
	labelMainMenu       = "В главное меню"
)

func SelectMuscleGroup(group string) string { return SelectMuscleGroupAction + ":" + group }
func SelectExercise(name string) string     { return SelectExerciseAction + ":" + name }
func GetWorkout(date time.Time) string      { return GetWorkoutAction + ":" + date.Format(DateLayout) }

// Parse splits a payload into its name and argument. The argument keeps any
// further colons.
func Parse(payload string) (name, arg string) {
	name, arg, _ = strings.Cut(payload, ":")
	return name, arg
}

func Main() []Option {
	return []Option{
		{labelNewWorkout, NewWorkout},
		{labelMyWorkouts, MyWorkouts},
		{labelImportData, ImportData},
	}
}

func MuscleGroups(groups []string) []Option {
	opts := make([]Option, 0, len(groups)+2)
	for _, g := range groups {
		opts = append(opts, Option{g, SelectMuscleGroup(g)})
	}
	return append(opts,
		Option{labelNewMuscleGroup, NewMuscleGroup},
		Option{labelFinishWorkout, FinishWorkout},
	)
}

func Exercises(names []string) []Option {
	opts := make([]Option, 0, len(names)+3)
	for _, n := range names {
		opts = append(opts, Option{n, SelectExercise(n)})
	}
	return append(opts,
		Option{labelNewExercise, NewExercise},
		Option{labelFinishWorkout, FinishWorkout},
		Option{labelBack, BackToMuscleGroup},
	)
}

func SetEntry() []Option {
	return []Option{
		{labelFinishWorkout, FinishWorkout},
		{labelBack, BackToExercise},
	}
}

func NewMuscleGroupPrompt() []Option {
	return []Option{{labelBack, BackToMuscleGroup}}
}

func NewExercisePrompt() []Option {
	return []Option{{labelBack, BackToExercise}}
}

func WorkoutDates(dates []time.Time) []Option {
	opts := make([]Option, 0, len(dates)+1)
	for _, d := range dates {
		opts = append(opts, Option{d.Format(DateLayout), GetWorkout(d)})
	}
	return append(opts, Option{labelBack, BackToMain})
}

func WorkoutView() []Option {
	return []Option{
		{labelMainMenu, BackToMain},
		{labelBack, MyWorkouts},
	}
}

func Import() []Option {
	return []Option{{labelMainMenu, BackToMain}}
}
