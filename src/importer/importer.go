// Package importer reads workout history exported as CSV (one row per set,
// columns Date, Exercise, Category, Weight, Weight Unit, Reps) and groups it
// into one workout per date with numbered sets.
package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/thomasfsr/gymlog/src/database"
)

// ErrInvalid marks input the user has to fix: missing columns, unparseable
// cells, or a file with no usable rows.
var ErrInvalid = errors.New("invalid import file")

const (
	colDate     = "date"
	colExercise = "exercise"
	colCategory = "category"
	colWeight   = "weight"
	colUnit     = "weight unit"
	colReps     = "reps"
)

var requiredColumns = []string{colDate, colExercise, colCategory, colWeight, colReps}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"02.01.2006",
	"01/02/2006",
}

const lbToKg = 0.45359237

type Set struct {
	Exercise    string
	MuscleGroup string
	Weight      float64
	Reps        int
	SetNumber   int
}

type Workout struct {
	Date time.Time
	Sets []Set
}

// Result is a parsed import. Its accessors return data in a stable order.
type Result struct {
	workouts []Workout
	groupOf  map[string]string
	groups   []string
	byGroup  map[string][]string
	// Dropped counts rows skipped for an empty required cell.
	Dropped int
}

type row struct {
	date     time.Time
	exercise string
	group    string
	weight   float64
	reps     int
}

func Parse(r io.Reader) (*Result, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: file is empty", ErrInvalid)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %w", ErrInvalid, err)
	}
	idx, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var rows []row
	dropped := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
		}
		line, _ := cr.FieldPos(0)
		cell := func(col string) string {
			i, ok := idx[col]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		if slices.ContainsFunc(requiredColumns, func(c string) bool { return cell(c) == "" }) {
			dropped++
			continue
		}
		parsed, err := parseRow(line, cell)
		if err != nil {
			return nil, err
		}
		rows = append(rows, parsed)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no complete rows", ErrInvalid)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].date.Equal(rows[j].date) {
			return rows[i].date.Before(rows[j].date)
		}
		return rows[i].exercise < rows[j].exercise
	})
	res := build(rows)
	res.Dropped = dropped
	return res, nil
}

func columnIndex(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := idx[h]; !dup {
			idx[h] = i
		}
	}
	var missing []string
	for _, c := range requiredColumns {
		if _, ok := idx[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing columns %s", ErrInvalid, strings.Join(missing, ", "))
	}
	return idx, nil
}

func parseRow(line int, cell func(string) string) (row, error) {
	date, err := parseDate(cell(colDate))
	if err != nil {
		return row{}, fmt.Errorf("%w: line %d: %w", ErrInvalid, line, err)
	}
	weight, err := strconv.ParseFloat(strings.ReplaceAll(cell(colWeight), ",", "."), 64)
	if err != nil || weight < 0 || math.IsNaN(weight) || math.IsInf(weight, 0) {
		return row{}, fmt.Errorf("%w: line %d: bad weight %q", ErrInvalid, line, cell(colWeight))
	}
	switch strings.ToLower(cell(colUnit)) {
	case "lbs", "lb":
		weight = math.Round(weight*lbToKg*100) / 100
	}
	if weight > database.MaxWeight {
		return row{}, fmt.Errorf("%w: line %d: weight %q is above %v kg", ErrInvalid, line, cell(colWeight), database.MaxWeight)
	}
	reps, err := parseReps(cell(colReps))
	if err != nil {
		return row{}, fmt.Errorf("%w: line %d: bad reps %q", ErrInvalid, line, cell(colReps))
	}
	if n := utf8.RuneCountInString(cell(colExercise)); n > database.MaxExerciseNameLen {
		return row{}, fmt.Errorf("%w: line %d: exercise name longer than %d characters", ErrInvalid, line, database.MaxExerciseNameLen)
	}
	if n := utf8.RuneCountInString(cell(colCategory)); n > database.MaxMuscleGroupLen {
		return row{}, fmt.Errorf("%w: line %d: category longer than %d characters", ErrInvalid, line, database.MaxMuscleGroupLen)
	}
	return row{
		date:     date,
		exercise: cell(colExercise),
		group:    cell(colCategory),
		weight:   weight,
		reps:     reps,
	}, nil
}

func parseDate(v string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("bad date %q", v)
}

func parseReps(v string) (int, error) {
	if n, err := strconv.Atoi(v); err == nil {
		if n <= 0 || n > database.MaxReps {
			return 0, errors.New("reps out of range")
		}
		return n, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f != math.Trunc(f) || f <= 0 || f > database.MaxReps {
		return 0, errors.New("reps must be a positive integer")
	}
	return int(f), nil
}

// build expects rows sorted by (date, exercise).
func build(rows []row) *Result {
	res := &Result{
		groupOf: make(map[string]string),
		byGroup: make(map[string][]string),
	}
	counters := make(map[string]int)
	for i, r := range rows {
		if i == 0 || !rows[i-1].date.Equal(r.date) {
			res.workouts = append(res.workouts, Workout{Date: r.date})
			clear(counters)
		}
		if _, seen := res.groupOf[r.exercise]; !seen {
			res.groupOf[r.exercise] = r.group
			res.byGroup[r.group] = append(res.byGroup[r.group], r.exercise)
		}
		counters[r.exercise]++
		w := &res.workouts[len(res.workouts)-1]
		w.Sets = append(w.Sets, Set{
			Exercise:    r.exercise,
			MuscleGroup: res.groupOf[r.exercise],
			Weight:      r.weight,
			Reps:        r.reps,
			SetNumber:   counters[r.exercise],
		})
	}
	for g, names := range res.byGroup {
		sort.Strings(names)
		res.groups = append(res.groups, g)
	}
	sort.Strings(res.groups)
	return res
}

func (r *Result) MuscleGroups() []string {
	return slices.Clone(r.groups)
}

func (r *Result) ExercisesByMuscleGroup(group string) []string {
	return slices.Clone(r.byGroup[group])
}

// MuscleGroupOf reports the group recorded for exercise: the first one seen
// after sorting.
func (r *Result) MuscleGroupOf(exercise string) (string, bool) {
	g, ok := r.groupOf[exercise]
	return g, ok
}

func (r *Result) Workouts() []Workout {
	return r.workouts
}

// SetCount is the total number of sets across all workouts.
func (r *Result) SetCount() int {
	n := 0
	for _, w := range r.workouts {
		n += len(w.Sets)
	}
	return n
}
