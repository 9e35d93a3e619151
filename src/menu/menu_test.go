package menu

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func payloads(opts []Option) []string {
	out := make([]string, len(opts))
	for i, o := range opts {
		out[i] = o.Payload
	}
	return out
}

func TestMuscleGroups(t *testing.T) {
	opts := MuscleGroups([]string{"Chest", "Legs"})
	assert.Len(t, opts, 4)
	assert.Equal(t, []Option{
		{"Chest", "select_muscle_group:Chest"},
		{"Legs", "select_muscle_group:Legs"},
		{"Новая группа мышц", "new_muscle_group"},
		{"Завершить тренировку", "finish_workout"},
	}, opts)

	assert.Len(t, MuscleGroups(nil), 2)
}

func TestExercises(t *testing.T) {
	opts := Exercises([]string{"Жим штанги лежа", "Отжимания"})
	assert.Equal(t, []string{
		"select_exercise:Жим штанги лежа",
		"select_exercise:Отжимания",
		NewExercise,
		FinishWorkout,
		BackToMuscleGroup,
	}, payloads(opts))
}

func TestFixedMenus(t *testing.T) {
	assert.Equal(t, []string{NewWorkout, MyWorkouts, ImportData}, payloads(Main()))
	assert.Equal(t, []string{FinishWorkout, BackToExercise}, payloads(SetEntry()))
	assert.Equal(t, []string{BackToMuscleGroup}, payloads(NewMuscleGroupPrompt()))
	assert.Equal(t, []string{BackToExercise}, payloads(NewExercisePrompt()))
	assert.Equal(t, []string{BackToMain, MyWorkouts}, payloads(WorkoutView()))
	assert.Equal(t, []string{BackToMain}, payloads(Import()))
}

func TestWorkoutDates(t *testing.T) {
	dates := []time.Time{
		time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, []Option{
		{"2024-01-03", "get_workout:2024-01-03"},
		{"2024-01-01", "get_workout:2024-01-01"},
		{"Назад", "back_to_main"},
	}, WorkoutDates(dates))
}

func TestParse(t *testing.T) {
	tests := []struct {
		payload   string
		name, arg string
	}{
		{"new_workout", "new_workout", ""},
		{"select_muscle_group:Грудь", "select_muscle_group", "Грудь"},
		{"select_exercise:Press: seated", "select_exercise", "Press: seated"},
		{"get_workout:2024-01-01", "get_workout", "2024-01-01"},
	}
	for _, tt := range tests {
		name, arg := Parse(tt.payload)
		assert.Equal(t, tt.name, name, tt.payload)
		assert.Equal(t, tt.arg, arg, tt.payload)
	}
}
