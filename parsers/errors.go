package parsers

import "fmt"

// ErrorKind classifies parse failures. All of them are fatal to the
// input being parsed.
type ErrorKind string

const (
	MalformedSyntax          ErrorKind = "malformed-syntax"
	UnsupportedSchemaVersion ErrorKind = "unsupported-schema-version"
	UnsupportedFormat        ErrorKind = "unsupported-format"
	MissingRequiredField     ErrorKind = "missing-required-field"
	InvalidReference         ErrorKind = "invalid-reference"
	DuplicateComponent       ErrorKind = "duplicate-component"
	OversizedField           ErrorKind = "oversized-field"
	Cancelled                ErrorKind = "cancelled"
)

// ParseError carries the failure kind plus location when one is known.
// Line and ByteOffset are zero when unavailable.
type ParseError struct {
	Kind       ErrorKind
	Message    string
	Line       int
	ByteOffset int64
	Subject    string
	Wrapped    error
}

func (it *ParseError) Error() string {
	location := ""
	if it.Line > 0 {
		location = fmt.Sprintf(" (line %d)", it.Line)
	} else if it.ByteOffset > 0 {
		location = fmt.Sprintf(" (byte %d)", it.ByteOffset)
	}
	if len(it.Subject) > 0 {
		return fmt.Sprintf("%s: %s %q%s", it.Kind, it.Message, it.Subject, location)
	}
	return fmt.Sprintf("%s: %s%s", it.Kind, it.Message, location)
}

func (it *ParseError) Unwrap() error {
	return it.Wrapped
}

func syntaxError(offset int64, err error) *ParseError {
	return &ParseError{
		Kind:       MalformedSyntax,
		Message:    "document could not be decoded",
		ByteOffset: offset,
		Wrapped:    err,
	}
}

func schemaError(version string) *ParseError {
	return &ParseError{
		Kind:    UnsupportedSchemaVersion,
		Message: "schema version is not supported",
		Subject: version,
	}
}

func missingField(name string) *ParseError {
	return &ParseError{
		Kind:    MissingRequiredField,
		Message: "required field is missing",
		Subject: name,
	}
}

func invalidReference(id string) *ParseError {
	return &ParseError{
		Kind:    InvalidReference,
		Message: "dependency references unknown component",
		Subject: id,
	}
}

func duplicateComponent(id string) *ParseError {
	return &ParseError{
		Kind:    DuplicateComponent,
		Message: "component id occurs more than once",
		Subject: id,
	}
}

func cancelledError() *ParseError {
	return &ParseError{
		Kind:    Cancelled,
		Message: "parse was cancelled",
	}
}
