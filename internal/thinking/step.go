// Package thinking holds the sequential-thinking core: the step model, the
// append-only thought store and the processor that validates, normalizes and
// records each submitted step.
package thinking

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Step is one validated thought as held by the Store.
type Step struct {
	Thought           string  `json:"thought"`
	ThoughtNumber     int     `json:"thoughtNumber"`
	TotalThoughts     int     `json:"totalThoughts"`
	NextThoughtNeeded bool    `json:"nextThoughtNeeded"`
	IsRevision        *bool   `json:"isRevision,omitempty"`
	RevisesThought    *int    `json:"revisesThought,omitempty"`
	BranchFromThought *int    `json:"branchFromThought,omitempty"`
	BranchID          *string `json:"branchId,omitempty"`
	NeedsMoreThoughts *bool   `json:"needsMoreThoughts,omitempty"`
}

// Revision reports whether the step is flagged as a revision.
func (s Step) Revision() bool {
	return s.IsRevision != nil && *s.IsRevision
}

// Branched reports whether the step is filed under a branch: both the
// divergence point and the branch id must be present.
func (s Step) Branched() bool {
	return s.BranchFromThought != nil && s.BranchID != nil && *s.BranchID != ""
}

// clone deep-copies the optional fields so callers never share pointers
// with stored steps.
func (s Step) clone() Step {
	c := s
	c.IsRevision = cloneBool(s.IsRevision)
	c.RevisesThought = cloneInt(s.RevisesThought)
	c.BranchFromThought = cloneInt(s.BranchFromThought)
	c.BranchID = cloneString(s.BranchID)
	c.NeedsMoreThoughts = cloneBool(s.NeedsMoreThoughts)
	return c
}

// StepInput is the loosely-typed wire shape of a submitted step. Required
// fields are pointers so that absence can be told apart from zero values.
type StepInput struct {
	Thought           *string `json:"thought" validate:"required,min=1"`
	ThoughtNumber     *int    `json:"thoughtNumber" validate:"required,gt=0"`
	TotalThoughts     *int    `json:"totalThoughts" validate:"required,gt=0"`
	NextThoughtNeeded *bool   `json:"nextThoughtNeeded" validate:"required"`
	IsRevision        *bool   `json:"isRevision,omitempty"`
	RevisesThought    *int    `json:"revisesThought,omitempty" validate:"omitnil,gt=0"`
	BranchFromThought *int    `json:"branchFromThought,omitempty" validate:"omitnil,gt=0"`
	BranchID          *string `json:"branchId,omitempty" validate:"omitnil,min=1"`
	NeedsMoreThoughts *bool   `json:"needsMoreThoughts,omitempty"`
}

// stepValidate is shared; validator caches struct metadata per instance.
var stepValidate *validator.Validate

func init() {
	stepValidate = validator.New(validator.WithRequiredStructEnabled())
	stepValidate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// Validate checks field presence and ranges and returns the typed Step.
func (in *StepInput) Validate() (Step, error) {
	if err := stepValidate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return Step{}, newValidationError(verrs)
		}
		return Step{}, &ValidationError{Fields: []FieldError{{Field: "input", Message: err.Error()}}}
	}

	return Step{
		Thought:           *in.Thought,
		ThoughtNumber:     *in.ThoughtNumber,
		TotalThoughts:     *in.TotalThoughts,
		NextThoughtNeeded: *in.NextThoughtNeeded,
		IsRevision:        cloneBool(in.IsRevision),
		RevisesThought:    cloneInt(in.RevisesThought),
		BranchFromThought: cloneInt(in.BranchFromThought),
		BranchID:          cloneString(in.BranchID),
		NeedsMoreThoughts: cloneBool(in.NeedsMoreThoughts),
	}, nil
}

// DecodeStepInput parses raw tool arguments. Both the flat step object and
// the {"thought_data": {...}} wrapper are accepted. Keys must match the field
// names exactly; any other key is ignored. Type mismatches are reported as
// validation errors against the offending field.
func DecodeStepInput(raw []byte) (*StepInput, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, &ValidationError{Fields: []FieldError{{Field: "input", Message: "is required"}}}
	}

	fields, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}
	if td, ok := fields["thought_data"]; ok && !isNull(td) {
		if fields, err = decodeObject(td); err != nil {
			return nil, err
		}
	}

	d := fieldDecoder{fields: fields}
	in := &StepInput{}
	d.str("thought", &in.Thought)
	d.integer("thoughtNumber", &in.ThoughtNumber)
	d.integer("totalThoughts", &in.TotalThoughts)
	d.boolean("nextThoughtNeeded", &in.NextThoughtNeeded)
	d.boolean("isRevision", &in.IsRevision)
	d.integer("revisesThought", &in.RevisesThought)
	d.integer("branchFromThought", &in.BranchFromThought)
	d.str("branchId", &in.BranchID)
	d.boolean("needsMoreThoughts", &in.NeedsMoreThoughts)

	if len(d.errs) > 0 {
		return nil, &ValidationError{Fields: d.errs}
	}
	return in, nil
}

func decodeObject(raw []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, &ValidationError{Fields: []FieldError{{Field: "input", Message: "must be a JSON object: " + err.Error()}}}
	}
	return fields, nil
}

// fieldDecoder reads step fields by exact key. A missing or null key leaves
// the destination nil so that Validate reports it when required.
type fieldDecoder struct {
	fields map[string]json.RawMessage
	errs   []FieldError
}

func (d *fieldDecoder) lookup(name string) (string, bool) {
	raw, ok := d.fields[name]
	if !ok || isNull(raw) {
		return "", false
	}
	return strings.TrimSpace(string(raw)), true
}

func (d *fieldDecoder) mismatch(name, want, got string) {
	d.errs = append(d.errs, FieldError{
		Field:   name,
		Message: fmt.Sprintf("must be of type %s, got %s", want, valueKind(got)),
	})
}

func (d *fieldDecoder) str(name string, dst **string) {
	raw, ok := d.lookup(name)
	if !ok {
		return
	}
	var v string
	if !strings.HasPrefix(raw, `"`) || json.Unmarshal([]byte(raw), &v) != nil {
		d.mismatch(name, "string", raw)
		return
	}
	*dst = &v
}

// integer accepts whole numbers, including integral values written with a
// fraction or exponent such as 2.0 or 1e1.
func (d *fieldDecoder) integer(name string, dst **int) {
	raw, ok := d.lookup(name)
	if !ok {
		return
	}
	var n json.Number
	if strings.HasPrefix(raw, `"`) || json.Unmarshal([]byte(raw), &n) != nil {
		d.mismatch(name, "integer", raw)
		return
	}
	if i, err := n.Int64(); err == nil && i >= math.MinInt && i <= math.MaxInt {
		v := int(i)
		*dst = &v
		return
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || f < math.MinInt || f >= math.MaxInt {
		d.mismatch(name, "integer", raw)
		return
	}
	v := int(f)
	*dst = &v
}

func (d *fieldDecoder) boolean(name string, dst **bool) {
	raw, ok := d.lookup(name)
	if !ok {
		return
	}
	var v bool
	switch raw {
	case "true":
		v = true
	case "false":
	default:
		d.mismatch(name, "boolean", raw)
		return
	}
	*dst = &v
}

func isNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}

// valueKind names the JSON type of raw the way encoding/json does.
func valueKind(raw string) string {
	switch {
	case strings.HasPrefix(raw, `"`):
		return "string"
	case raw == "true" || raw == "false":
		return "bool"
	case strings.HasPrefix(raw, "{"):
		return "object"
	case strings.HasPrefix(raw, "["):
		return "array"
	default:
		return "number " + raw
	}
}

// FieldError describes one violated field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports missing or malformed fields on a submitted step.
// No state is changed when it is returned.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s %s", f.Field, f.Message))
	}
	return "invalid thought: " + strings.Join(parts, "; ")
}

func newValidationError(verrs validator.ValidationErrors) *ValidationError {
	ve := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		ve.Fields = append(ve.Fields, FieldError{Field: fe.Field(), Message: describeTag(fe)})
	}
	return ve
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "min":
		if fe.Kind() == reflect.String {
			return "must not be empty"
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}

func cloneBool(p *bool) *bool {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
