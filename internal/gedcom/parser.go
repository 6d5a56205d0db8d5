package gedcom

import "strings"

// Record is one parsed GEDCOM structure and its substructures.
type Record struct {
	Line     int
	Level    int
	XRef     string
	Tag      string
	Kind     TagKind
	Value    string
	Children []*Record
}

// Child returns the first child of the given kind, or nil.
func (r *Record) Child(kind TagKind) *Record {
	if r == nil {
		return nil
	}
	for _, c := range r.Children {
		if c.Kind == kind {
			return c
		}
	}
	return nil
}

// ChildValue returns the value of the first child of the given kind.
func (r *Record) ChildValue(kind TagKind) string {
	if c := r.Child(kind); c != nil {
		return c.Value
	}
	return ""
}

// Pointer returns the value when it is an `@id@` cross-reference.
func (r *Record) Pointer() string {
	v := strings.TrimSpace(r.Value)
	if len(v) > 2 && strings.HasPrefix(v, "@") && strings.HasSuffix(v, "@") {
		return v
	}
	return ""
}

// Parser builds level-0 record trees from a Reader, one tree at a time.
type Parser struct {
	r     *Reader
	diag  *Diagnostics
	stack []*Record // stack[i] is the open record at level i
	rec   *Record
}

// NewParser returns a Parser reading repaired lines from r.
func NewParser(r *Reader, diag *Diagnostics) *Parser {
	return &Parser{r: r, diag: diag}
}

// Next advances to the next complete level-0 record. A tree is complete
// once the following level-0 line is read or the input ends.
func (p *Parser) Next() bool {
	for p.r.Next() {
		l := p.r.Line()
		rec := &Record{
			Line:  l.Number,
			Level: l.Level,
			XRef:  l.XRef,
			Tag:   l.Tag,
			Kind:  l.Kind,
			Value: l.Value,
		}

		if depth := len(p.stack); rec.Level > depth {
			p.diag.Add(&StructuralError{Line: rec.Line, Tag: rec.Tag, Level: rec.Level, DemotedTo: depth})
			rec.Level = depth
		}

		if rec.Level == 0 {
			var done *Record
			if len(p.stack) > 0 {
				done = p.stack[0]
			}
			p.stack = append(p.stack[:0], rec)
			if done != nil {
				p.rec = done
				return true
			}
			continue
		}

		parent := p.stack[rec.Level-1]
		parent.Children = append(parent.Children, rec)
		p.stack = append(p.stack[:rec.Level], rec)
	}

	if p.r.Err() != nil {
		p.stack = nil
		return false
	}
	if len(p.stack) > 0 {
		p.rec = p.stack[0]
		p.stack = nil
		return true
	}
	return false
}

// Record returns the current level-0 record.
func (p *Parser) Record() *Record { return p.rec }

// Err returns the underlying read error, if any.
func (p *Parser) Err() error { return p.r.Err() }

// ParseAll reads the whole forest.
func ParseAll(r *Reader, diag *Diagnostics) ([]*Record, error) {
	p := NewParser(r, diag)
	var forest []*Record
	for p.Next() {
		forest = append(forest, p.Record())
	}
	if err := p.Err(); err != nil {
		return nil, err
	}
	return forest, nil
}
