// Package gedcom repairs, parses and walks GEDCOM files into a model.Graph.
//
// The pipeline is Reader (continuation repair) → Parser (record forest) →
// Build (individuals, families, events). Every stage is synchronous and
// recovers from malformed input by recording a diagnostic instead of
// failing; only an unreadable input is fatal.
package gedcom

import "strings"

// TagKind is the closed set of tags the builder consumes. Everything else
// is TagUnrecognized and keeps its raw tag on the Record.
type TagKind int

const (
	TagUnrecognized TagKind = iota
	TagHead
	TagTrlr
	TagIndi
	TagFam
	TagName
	TagGivn
	TagSurn
	TagNsfx
	TagSex
	TagBirt
	TagDeat
	TagMarr
	TagDate
	TagPlac
	TagMap
	TagLati
	TagLong
	TagFamc
	TagFams
	TagHusb
	TagWife
	TagChil
	TagChan
	TagConc
	TagCont
)

var tagKinds = map[string]TagKind{
	"HEAD": TagHead,
	"TRLR": TagTrlr,
	"INDI": TagIndi,
	"FAM":  TagFam,
	"NAME": TagName,
	"GIVN": TagGivn,
	"SURN": TagSurn,
	"NSFX": TagNsfx,
	"SEX":  TagSex,
	"BIRT": TagBirt,
	"DEAT": TagDeat,
	"MARR": TagMarr,
	"DATE": TagDate,
	"PLAC": TagPlac,
	"MAP":  TagMap,
	"LATI": TagLati,
	"LONG": TagLong,
	"FAMC": TagFamc,
	"FAMS": TagFams,
	"HUSB": TagHusb,
	"WIFE": TagWife,
	"CHIL": TagChil,
	"CHAN": TagChan,
	"CONC": TagConc,
	"CONT": TagCont,
}

// KindOf classifies a raw tag. Matching is case-insensitive.
func KindOf(tag string) TagKind {
	if k, ok := tagKinds[strings.ToUpper(tag)]; ok {
		return k
	}
	return TagUnrecognized
}

// IsContinuation reports whether the kind extends the previous line.
func (k TagKind) IsContinuation() bool {
	return k == TagConc || k == TagCont
}

func (k TagKind) String() string {
	for tag, kind := range tagKinds {
		if kind == k {
			return tag
		}
	}
	return "UNRECOGNIZED"
}
