package vat

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ExpectedFields is the number of columns in an input row:
// description; country code; identifier.
const ExpectedFields = 3

// ShapeError reports a row with the wrong number of fields.
type ShapeError struct {
	Line   int
	Fields int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("line %d: got %d fields, want %d", e.Line, e.Fields, ExpectedFields)
}

// FieldError reports a row whose fields do not satisfy the identifier rules.
type FieldError struct {
	Line   int
	Field  string
	Value  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("line %d: %s %q: %s", e.Line, e.Field, e.Value, e.Reason)
}

// ValidationOutcome is the diagnostic view of one validated row.
type ValidationOutcome struct {
	Record          RawRecord
	Accepted        bool
	RejectionReason string

	// Err is the *ShapeError, *FieldError or read error behind a rejection.
	Err error
}

// ValidateRow checks one input row and returns the accepted record. Rows are
// independent: the result never depends on other rows of the same file.
func ValidateRow(sourceFile string, line int, fields []string) (RawRecord, error) {
	if len(fields) != ExpectedFields {
		return RawRecord{}, &ShapeError{Line: line, Fields: len(fields)}
	}

	desc := strings.TrimSpace(fields[0])
	code := strings.TrimSpace(fields[1])
	id := strings.TrimSpace(fields[2])

	if desc == "" {
		return RawRecord{}, &FieldError{Line: line, Field: "description", Value: desc, Reason: "must not be empty"}
	}
	country, err := ParseCountryCode(code)
	if err != nil {
		return RawRecord{}, &FieldError{Line: line, Field: "country_code", Value: code, Reason: "not a VIES member state"}
	}
	if id == "" {
		return RawRecord{}, &FieldError{Line: line, Field: "identifier", Value: id, Reason: "must not be empty"}
	}
	if n := utf8.RuneCountInString(id); n > MaxIdentifierLength {
		return RawRecord{}, &FieldError{
			Line:   line,
			Field:  "identifier",
			Value:  id,
			Reason: fmt.Sprintf("length %d exceeds %d", n, MaxIdentifierLength),
		}
	}

	return RawRecord{
		SourceFile:  sourceFile,
		LineNumber:  line,
		Description: desc,
		CountryCode: country,
		Identifier:  id,
	}, nil
}

// Validate runs ValidateRow and folds the result into a ValidationOutcome.
func Validate(sourceFile string, line int, fields []string) ValidationOutcome {
	rec, err := ValidateRow(sourceFile, line, fields)
	if err != nil {
		return Reject(sourceFile, line, err)
	}
	return ValidationOutcome{Record: rec, Accepted: true}
}

// Reject builds the outcome of a row that could not be validated.
func Reject(sourceFile string, line int, err error) ValidationOutcome {
	return ValidationOutcome{
		Record:          RawRecord{SourceFile: sourceFile, LineNumber: line},
		RejectionReason: err.Error(),
		Err:             err,
	}
}
