package flow

// ResultType tells the client what to do with a Result.
type ResultType string

// Result types.
const (
	ResultForm        ResultType = "form"
	ResultMenu        ResultType = "menu"
	ResultCreateEntry ResultType = "create_entry"
	ResultAbort       ResultType = "abort"
)

// Step identifiers.
const (
	StepUser       = "user"
	StepMedication = "medication"
	StepDosage     = "dosage"
	StepThreshold  = "threshold"
	StepGroup      = "group"
	StepInit       = "init"
)

// MenuKey is the input key a menu step reads its choice from.
const MenuKey = "next_step_id"

// FieldType is the expected input type of a form field.
type FieldType string

// Field types.
const (
	FieldString     FieldType = "string"
	FieldNumber     FieldType = "number"
	FieldInteger    FieldType = "integer"
	FieldEntityList FieldType = "entity_list"
)

// Field describes one input of a form step.
type Field struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
	Default  any       `json:"default,omitempty"`
	// Choices lists the allowed values of an entity_list field.
	Choices []string `json:"choices,omitempty"`
}

// Result is the response to Start or Step. A create_entry result from an
// options flow carries StepID "init".
type Result struct {
	FlowID      string            `json:"flow_id"`
	Type        ResultType        `json:"type"`
	StepID      string            `json:"step_id,omitempty"`
	Fields      []Field           `json:"data_schema,omitempty"`
	MenuOptions []string          `json:"menu_options,omitempty"`
	Errors      map[string]string `json:"errors,omitempty"`
	Title       string            `json:"title,omitempty"`
	EntryID     string            `json:"entry_id,omitempty"`
	Reason      string            `json:"reason,omitempty"`
}
