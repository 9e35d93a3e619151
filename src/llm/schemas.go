package llm

import "github.com/invopop/jsonschema"

type ExerciseSet struct {
	Weight float64 `json:"weight" jsonschema_description:"weight of the set in kilograms (kg), 0 for bodyweight"`
	Reps   int     `json:"reps" jsonschema_description:"number of repetitions of the set"`
}

type ListOfSets struct {
	Sets []ExerciseSet `json:"sets" jsonschema_description:"Sets found in the user message, in the order they were written. Empty when the message holds no set."`
}

func GenerateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

var ListOfSetsSchema = GenerateSchema[ListOfSets]()
