package models

// FieldState is the per-field outcome of parsing a model response. Keeping the
// three cases separate (rather than coercing failures to a zero value) is what
// lets the apply step commit only the fields that actually validated.
type FieldState int

const (
	// FieldAbsent means the model produced no value for the field, or
	// explicitly signaled that none applies.
	FieldAbsent FieldState = iota
	// FieldInvalid means a value was present but failed validation. It is
	// never written back.
	FieldInvalid
	// FieldValid means the value parsed and may be committed.
	FieldValid
)

func (s FieldState) String() string {
	switch s {
	case FieldValid:
		return "valid"
	case FieldInvalid:
		return "invalid"
	default:
		return "absent"
	}
}

// TitleField is the title extracted from a model response.
type TitleField struct {
	State FieldState
	Value string
}

// AmountField is the monetary amount extracted from a model response.
// The value is currency-agnostic; the currency is configuration.
type AmountField struct {
	State FieldState
	Value float64
}

// ExtractionResult is the structured outcome of one model response.
// Immutable once produced by the validator.
type ExtractionResult struct {
	Title  TitleField
	Amount AmountField
}

// HasValidField reports whether at least one field may be committed.
func (r ExtractionResult) HasValidField() bool {
	return r.Title.State == FieldValid || r.Amount.State == FieldValid
}
