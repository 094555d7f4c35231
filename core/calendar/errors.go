package calendar

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrNotFound            = errors.New("academic calendar not found")
	ErrUnrecognizedDayType = errors.New("unrecognized day type")
	ErrYearNotFound        = errors.New("academic year not found in document")
	ErrMonthTableNotFound  = errors.New("month table not found")
	ErrEmptyDocument       = errors.New("document has no pages")
	ErrTooManyPages        = errors.New("document has too many pages")
	ErrInvalidDocument     = errors.New("invalid document")
	ErrInvalidStage        = errors.New("invalid stage")
)

// processing error labels
const (
	LabelYearNotFound       = "year_not_found"
	LabelMonthTableNotFound = "month_table_not_found"
	LabelEmptyDocument      = "empty_document"
	LabelTooManyPages       = "too_many_pages"
	LabelInvalidDocument    = "invalid_document"
	LabelInvalidStage       = "invalid_stage"
)

// ProcessingError is a document-shape failure: the document is readable but is not
// the expected calendar layout. Nothing is persisted when it occurs.
type ProcessingError struct {
	Label  string
	Detail string
	Err    error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s: %s", e.Label, e.Detail)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

func newProcessingError(label string, err error, detail string, args ...interface{}) *ProcessingError {
	return &ProcessingError{Label: label, Detail: fmt.Sprintf(detail, args...), Err: err}
}

// AsProcessingError reports whether `err` (or anything it wraps) is a ProcessingError.
func AsProcessingError(err error) (*ProcessingError, bool) {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
