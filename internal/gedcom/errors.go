package gedcom

import (
	"fmt"

	"go.uber.org/zap"
)

// SyntaxError is a physical line that does not match `level [@xref@] TAG [value]`.
type SyntaxError struct {
	Line int
	Text string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: malformed gedcom line %q", e.Line, e.Text)
}

// ContinuationError is a CONC/CONT line that was re-attached to the nearest
// preceding line despite a level mismatch, or dropped for lack of one.
type ContinuationError struct {
	Line     int
	Tag      string
	Level    int
	Expected int
	Dropped  bool
}

func (e *ContinuationError) Error() string {
	if e.Dropped {
		return fmt.Sprintf("line %d: %s has no preceding line, dropped", e.Line, e.Tag)
	}
	return fmt.Sprintf("line %d: %s at level %d, expected %d; attached to preceding line", e.Line, e.Tag, e.Level, e.Expected)
}

// StructuralError is a level jump of more than one. The record was demoted.
type StructuralError struct {
	Line      int
	Tag       string
	Level     int
	DemotedTo int
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("line %d: %s at level %d skips a level; demoted to %d", e.Line, e.Tag, e.Level, e.DemotedTo)
}

// DanglingReferenceError is a pointer to an id with no top-level record.
type DanglingReferenceError struct {
	Line int
	From string
	Tag  string
	Ref  string
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("line %d: %s %s references unknown id %s", e.Line, e.From, e.Tag, e.Ref)
}

// DuplicateIDError is a second top-level record reusing an id. It is skipped.
type DuplicateIDError struct {
	Line  int
	ID    string
	First int
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("line %d: duplicate id %s (first defined on line %d); record skipped", e.Line, e.ID, e.First)
}

// MissingXRefError is an INDI or FAM record without an id. It is skipped.
type MissingXRefError struct {
	Line int
	Tag  string
}

func (e *MissingXRefError) Error() string {
	return fmt.Sprintf("line %d: %s record has no id; record skipped", e.Line, e.Tag)
}

// Diagnostics collects the recoverable anomalies found in one file.
type Diagnostics struct {
	File  string
	Items []error
}

// NewDiagnostics returns an empty collector for file.
func NewDiagnostics(file string) *Diagnostics {
	return &Diagnostics{File: file}
}

// Add records and logs an anomaly. A nil receiver discards it.
func (d *Diagnostics) Add(err error) {
	if d == nil || err == nil {
		return
	}
	d.Items = append(d.Items, err)
	zap.L().Warn("gedcom: recovered anomaly",
		zap.String("file", d.File),
		zap.Error(err),
	)
}

// Len returns the number of anomalies recorded.
func (d *Diagnostics) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Items)
}
