package gedcom

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Line is one logical GEDCOM line with its continuations folded in.
type Line struct {
	Number int // physical line number of the first line
	Level  int
	XRef   string
	Tag    string
	Kind   TagKind
	Value  string
}

// lineRe splits `level [@xref@] TAG[ value]`. Exactly one space separates
// the tag from the value and is not part of it.
var lineRe = regexp.MustCompile(`^\s*(\d+)\s+(?:(@[^@\s]+@)\s+)?([A-Za-z0-9_]+)(?: (.*))?$`)

const (
	bom          = "\ufeff"
	maxLineBytes = 1 << 20
)

// Reader yields repaired logical lines from raw GEDCOM text. It reads
// lazily, holding back one line so trailing CONC/CONT lines can be folded
// in, and cannot be restarted.
type Reader struct {
	sc       *bufio.Scanner
	diag     *Diagnostics
	physical int
	pending  *Line
	line     Line
	err      error
}

// NewReader returns a Reader over r. Anomalies are recorded in diag, which
// may be nil.
func NewReader(r io.Reader, diag *Diagnostics) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &Reader{sc: sc, diag: diag}
}

// Next advances to the next logical line. It returns false at end of input
// or on a read error; check Err afterwards.
func (r *Reader) Next() bool {
	if r.err != nil {
		return false
	}
	for r.sc.Scan() {
		r.physical++
		text := strings.TrimRight(r.sc.Text(), "\r")
		if r.physical == 1 {
			text = strings.TrimPrefix(text, bom)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		l, ok := parseLine(text, r.physical)
		if !ok {
			r.diag.Add(&SyntaxError{Line: r.physical, Text: text})
			continue
		}

		if l.Kind.IsContinuation() {
			r.attach(l)
			continue
		}

		if r.pending == nil {
			r.pending = &l
			continue
		}
		r.line = *r.pending
		*r.pending = l
		return true
	}

	if err := r.sc.Err(); err != nil {
		r.err = eris.Wrapf(err, "gedcom: read line %d", r.physical+1)
		return false
	}
	if r.pending != nil {
		r.line = *r.pending
		r.pending = nil
		return true
	}
	return false
}

// Line returns the current logical line.
func (r *Reader) Line() Line { return r.line }

// Err returns the first read error, if any.
func (r *Reader) Err() error { return r.err }

func (r *Reader) attach(l Line) {
	if r.pending == nil {
		r.diag.Add(&ContinuationError{Line: l.Number, Tag: l.Tag, Level: l.Level, Dropped: true})
		return
	}
	if want := r.pending.Level + 1; l.Level != want {
		r.diag.Add(&ContinuationError{Line: l.Number, Tag: l.Tag, Level: l.Level, Expected: want})
	}
	if l.Kind == TagCont {
		r.pending.Value += "\n"
	}
	r.pending.Value += l.Value
}

func parseLine(text string, number int) (Line, bool) {
	m := lineRe.FindStringSubmatch(text)
	if m == nil {
		return Line{}, false
	}
	level, err := strconv.Atoi(m[1])
	if err != nil {
		return Line{}, false
	}
	tag := strings.ToUpper(m[3])
	return Line{
		Number: number,
		Level:  level,
		XRef:   m[2],
		Tag:    tag,
		Kind:   KindOf(tag),
		Value:  m[4],
	}, true
}
