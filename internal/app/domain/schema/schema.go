// Package schema describes configuration field sets (module configs,
// per-standard property records) so they can be validated generically instead
// of with per-field code.
package schema

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tidwall/gjson"
)

// FieldType tags the expected shape of a configuration value.
type FieldType string

const (
	TypeString   FieldType = "string"
	TypeInteger  FieldType = "integer"
	TypeNumber   FieldType = "number"
	TypeBool     FieldType = "bool"
	TypeAddress  FieldType = "address"
	TypeAmount   FieldType = "amount"
	TypeDuration FieldType = "duration"
	TypeEnum     FieldType = "enum"
)

// FieldSpec describes one configuration field.
type FieldSpec struct {
	Name        string    `json:"name" yaml:"name"`
	Type        FieldType `json:"type" yaml:"type"`
	Required    bool      `json:"required,omitempty" yaml:"required,omitempty"`
	Min         *float64  `json:"min,omitempty" yaml:"min,omitempty"`
	Max         *float64  `json:"max,omitempty" yaml:"max,omitempty"`
	Pattern     string    `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Enum        []string  `json:"enum,omitempty" yaml:"enum,omitempty"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
}

// Schema is an ordered field set.
type Schema struct {
	Fields []FieldSpec `json:"fields" yaml:"fields"`
}

// FieldError reports a single field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Field returns the spec for name, if present.
func (s Schema) Field(name string) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Validate checks a raw JSON object against the schema. Unknown fields,
// missing required fields, and type or constraint violations are all
// reported; an empty slice means the document is valid.
func (s Schema) Validate(raw []byte) []FieldError {
	var errs []FieldError

	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return []FieldError{{Field: "", Message: "configuration must be a JSON object"}}
	}

	known := make(map[string]FieldSpec, len(s.Fields))
	for _, f := range s.Fields {
		known[f.Name] = f
	}

	doc.ForEach(func(key, _ gjson.Result) bool {
		if _, ok := known[key.String()]; !ok {
			errs = append(errs, FieldError{Field: key.String(), Message: "unknown field"})
		}
		return true
	})

	for _, f := range s.Fields {
		value := doc.Get(f.Name)
		if !value.Exists() || value.Type == gjson.Null {
			if f.Required {
				errs = append(errs, FieldError{Field: f.Name, Message: "field is required"})
			}
			continue
		}
		if err := f.check(value); err != nil {
			errs = append(errs, FieldError{Field: f.Name, Message: err.Error()})
		}
	}

	return errs
}

func (f FieldSpec) check(value gjson.Result) error {
	switch f.Type {
	case TypeString:
		if value.Type != gjson.String {
			return fmt.Errorf("expected a string")
		}
		return f.checkString(value.String())
	case TypeInteger:
		if value.Type != gjson.Number {
			return fmt.Errorf("expected an integer")
		}
		if value.Num != float64(int64(value.Num)) {
			return fmt.Errorf("expected an integer, got a fraction")
		}
		return f.checkRange(value.Num)
	case TypeNumber:
		if value.Type != gjson.Number {
			return fmt.Errorf("expected a number")
		}
		return f.checkRange(value.Num)
	case TypeBool:
		if !value.IsBool() {
			return fmt.Errorf("expected a boolean")
		}
		return nil
	case TypeAddress:
		if value.Type != gjson.String || !common.IsHexAddress(value.String()) {
			return fmt.Errorf("expected a hex address")
		}
		return nil
	case TypeAmount:
		if value.Type != gjson.String {
			return fmt.Errorf("expected a decimal string")
		}
		str := strings.TrimSpace(value.String())
		if str == "" {
			return fmt.Errorf("expected a decimal string")
		}
		for _, r := range str {
			if r < '0' || r > '9' {
				return fmt.Errorf("expected a base-unit decimal string")
			}
		}
		return nil
	case TypeDuration:
		if value.Type == gjson.Number {
			if value.Num < 0 {
				return fmt.Errorf("duration must not be negative")
			}
			return f.checkRange(value.Num)
		}
		return fmt.Errorf("expected a duration in seconds")
	case TypeEnum:
		if value.Type != gjson.String {
			return fmt.Errorf("expected one of %s", strings.Join(f.Enum, ", "))
		}
		for _, allowed := range f.Enum {
			if value.String() == allowed {
				return nil
			}
		}
		return fmt.Errorf("expected one of %s", strings.Join(f.Enum, ", "))
	default:
		return fmt.Errorf("unknown field type %q", f.Type)
	}
}

func (f FieldSpec) checkString(s string) error {
	if f.Pattern != "" {
		re, err := regexp.Compile(f.Pattern)
		if err != nil {
			return fmt.Errorf("invalid pattern in schema: %v", err)
		}
		if !re.MatchString(s) {
			return fmt.Errorf("value does not match pattern %s", f.Pattern)
		}
	}
	if len(f.Enum) > 0 {
		for _, allowed := range f.Enum {
			if s == allowed {
				return nil
			}
		}
		return fmt.Errorf("expected one of %s", strings.Join(f.Enum, ", "))
	}
	return nil
}

func (f FieldSpec) checkRange(v float64) error {
	if f.Min != nil && v < *f.Min {
		return fmt.Errorf("value must be at least %v", *f.Min)
	}
	if f.Max != nil && v > *f.Max {
		return fmt.Errorf("value must be at most %v", *f.Max)
	}
	return nil
}
