package content

import (
	"errors"
	"fmt"
)

// ParseError reports a content file that could not be turned into typed
// records. It is fatal for the whole run.
type ParseError struct {
	// Source is the file path (or reader label) being parsed.
	Source string

	// Entry identifies the offending record: a sender key or an email
	// position such as "#3". Empty for document-level problems.
	Entry string

	// Field is the missing or malformed field, if any.
	Field string

	Err error
}

func (e *ParseError) Error() string {
	switch {
	case e.Entry != "" && e.Field != "":
		return fmt.Sprintf("parsing %s: entry %s: field %q: %v", e.Source, e.Entry, e.Field, e.Err)
	case e.Entry != "":
		return fmt.Sprintf("parsing %s: entry %s: %v", e.Source, e.Entry, e.Err)
	default:
		return fmt.Sprintf("parsing %s: %v", e.Source, e.Err)
	}
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsParseError reports whether err (or any error in its chain) is a ParseError.
func IsParseError(err error) bool {
	var parseErr *ParseError
	return errors.As(err, &parseErr)
}

var (
	errMissingField = errors.New("required field is missing")
	errEmptyFile    = errors.New("document is empty")
)
