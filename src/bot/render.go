package bot

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/thomasfsr/gymlog/src/database"
	"github.com/thomasfsr/gymlog/src/importer"
)

const (
	textNotReady    = "Бот инициализируется, попробуйте через несколько секунд..."
	textApology     = "Что-то пошло не так. Попробуйте ещё раз."
	textMainMenu    = "Главное меню. Выберите действие:"
	textChooseGroup = "Выберите группу мышц:"
	textNoGroups    = "У вас пока нет упражнений. Добавьте новую группу мышц:"
	textNewGroup    = "Введите название новой группы мышц:"
	textNewExercise = "Введите название нового упражнения:"
	textSetFormat   = "Введите подход в формате:\nВес Повторения\nПример:\n80 10"
	textBadSet      = "Не понял подход. " + textSetFormat
	textSetConflict = "Подход с таким номером уже записан. Счётчик обновлён, отправьте подход ещё раз."
	textPartialSets = "Записано подходов: %d из %d. Отправьте остальные ещё раз."
	textNoWorkouts  = "У вас пока нет тренировок."
	textChooseDate  = "Выберите тренировку:"
	textImportHelp  = "Отправьте CSV файл с колонками:\nDate, Exercise, Category, Weight, Weight Unit, Reps\n\nОдна строка на подход."
	textNotCSV      = "Пожалуйста, отправьте файл в формате CSV."
	textBadName     = "Название пустое или слишком длинное. Попробуйте ещё раз:"
	textFinished    = "Тренировка завершена!"
	textDiscarded   = "Тренировка завершена. Подходов не было, тренировка удалена."
)

func greeting(name string) string {
	hello := "Привет!"
	if name != "" {
		hello = fmt.Sprintf("Привет, %s!", name)
	}
	return hello + `

Я твой персональный фитнес-трекер!

Выбери действие ниже или используй команды:
/new_workout - Начать новую тренировку
/my_workouts - Мои последние тренировки`
}

func formatWeight(w float64) string {
	return strconv.FormatFloat(w, 'f', -1, 64)
}

func formatSet(order int, weight float64, reps int) string {
	return fmt.Sprintf("%d: %sкг × %d повторений", order, formatWeight(weight), reps)
}

func renderSets(header string, sets []database.Set) string {
	var b strings.Builder
	b.WriteString(header)
	for _, s := range sets {
		b.WriteString("\n")
		b.WriteString(formatSet(s.SetOrder, s.Weight, s.Reps))
	}
	return b.String()
}

func renderExercisePrompt(header, name string, sets []database.Set) string {
	text := header + "\nУпражнение: " + name
	if len(sets) > 0 {
		text = renderSets(text+"\n\nУже записано:", sets)
	}
	return text + "\n\n" + textSetFormat
}

func renderExercises(group string, names []string) string {
	if len(names) == 0 {
		return fmt.Sprintf("Группа: %s\nУпражнений пока нет. Добавьте новое:", group)
	}
	return fmt.Sprintf("Группа: %s\nВыберите упражнение:", group)
}

func renderWorkout(date string, details []database.SetDetail) string {
	if len(details) == 0 {
		return fmt.Sprintf("Тренировка %s\n\nПодходов нет.", date)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Тренировка %s", date)
	current := ""
	for _, d := range details {
		if d.Exercise != current {
			current = d.Exercise
			fmt.Fprintf(&b, "\n\n%s", current)
		}
		b.WriteString("\n")
		b.WriteString(formatSet(d.SetOrder, d.Weight, d.Reps))
	}
	return b.String()
}

func renderSummaries(summaries []database.WorkoutSummary) string {
	var b strings.Builder
	b.WriteString("Последние тренировки:")
	for _, s := range summaries {
		fmt.Fprintf(&b, "\n%s: подходов %d, объём %sкг",
			s.Date.Format("2006-01-02"), s.SetCount, formatWeight(math.Round(s.Volume*100)/100))
	}
	return b.String() + "\n\n" + textChooseDate
}

func renderImport(stats importer.Stats, dropped int) string {
	text := fmt.Sprintf("Данные успешно импортированы!\nТренировок: %d, подходов: %d, новых упражнений: %d.",
		stats.Workouts, stats.Sets, stats.Exercises)
	if dropped > 0 {
		text += fmt.Sprintf("\nПропущено неполных строк: %d.", dropped)
	}
	return text
}
