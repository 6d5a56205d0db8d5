// Package model defines the genealogy graph and place types shared by the
// parser, the resolver and downstream emitters.
package model

import (
	"regexp"
	"strings"
)

// IndividualID indexes Graph.Individuals.
type IndividualID int

// FamilyID indexes Graph.Families.
type FamilyID int

// EventID indexes Graph.Events.
type EventID int

// Absent link sentinels.
const (
	NoIndividual IndividualID = -1
	NoFamily     FamilyID     = -1
)

// Valid reports whether id refers to an individual.
func (id IndividualID) Valid() bool { return id >= 0 }

// Valid reports whether id refers to a family.
func (id FamilyID) Valid() bool { return id >= 0 }

// EventKind classifies a life event.
type EventKind string

const (
	EventBirth    EventKind = "BIRTH"
	EventMarriage EventKind = "MARRIAGE"
	EventDeath    EventKind = "DEATH"
	EventOther    EventKind = "OTHER"
)

// Name holds the parts of a personal name.
type Name struct {
	Full    string `json:"full"`
	Given   string `json:"given,omitempty"`
	Surname string `json:"surname,omitempty"`
	Suffix  string `json:"suffix,omitempty"`
}

// Individual is a person from an INDI record.
type Individual struct {
	XRef           string     `json:"xref"`
	Name           Name       `json:"name"`
	Sex            string     `json:"sex,omitempty"`
	Events         []EventID  `json:"events,omitempty"`
	ParentFamily   FamilyID   `json:"parent_family"`
	SpouseFamilies []FamilyID `json:"spouse_families,omitempty"`
}

// Family is a couple and their children from a FAM record.
type Family struct {
	XRef     string         `json:"xref"`
	Husband  IndividualID   `json:"husband"`
	Wife     IndividualID   `json:"wife"`
	Children []IndividualID `json:"children,omitempty"`
	Events   []EventID      `json:"events,omitempty"`
}

// Owner identifies the individual or family an event belongs to. Exactly
// one of the two fields is set.
type Owner struct {
	Individual IndividualID `json:"individual"`
	Family     FamilyID     `json:"family"`
}

// Event is a dated and/or placed life event.
type Event struct {
	Kind  EventKind `json:"kind"`
	Tag   string    `json:"tag"`
	Date  string    `json:"date,omitempty"`
	Place *PlaceRef `json:"place,omitempty"`
	Owner Owner     `json:"owner"`
}

var yearRe = regexp.MustCompile(`[0-9]{4}`)

// Year returns the first four-digit year in the event date, or "" when the
// date carries none.
func (e *Event) Year() string {
	return yearRe.FindString(e.Date)
}

// Graph is the arena holding everything parsed from one GEDCOM file.
type Graph struct {
	Source      string       `json:"source"`
	Individuals []Individual `json:"individuals"`
	Families    []Family     `json:"families"`
	Events      []Event      `json:"events"`

	individualIndex map[string]IndividualID
	familyIndex     map[string]FamilyID
}

// NewGraph returns an empty graph for the named source file.
func NewGraph(source string) *Graph {
	return &Graph{
		Source:          source,
		individualIndex: make(map[string]IndividualID),
		familyIndex:     make(map[string]FamilyID),
	}
}

// AddIndividual appends an individual under xref and returns its index.
func (g *Graph) AddIndividual(xref string) IndividualID {
	id := IndividualID(len(g.Individuals))
	g.Individuals = append(g.Individuals, Individual{XRef: xref, ParentFamily: NoFamily})
	g.individualIndex[xref] = id
	return id
}

// AddFamily appends a family under xref and returns its index.
func (g *Graph) AddFamily(xref string) FamilyID {
	id := FamilyID(len(g.Families))
	g.Families = append(g.Families, Family{XRef: xref, Husband: NoIndividual, Wife: NoIndividual})
	g.familyIndex[xref] = id
	return id
}

// AddEvent appends an event and returns its index.
func (g *Graph) AddEvent(e Event) EventID {
	id := EventID(len(g.Events))
	g.Events = append(g.Events, e)
	return id
}

// LookupIndividual resolves an xref, returning NoIndividual when unknown.
func (g *Graph) LookupIndividual(xref string) IndividualID {
	if id, ok := g.individualIndex[xref]; ok {
		return id
	}
	return NoIndividual
}

// LookupFamily resolves an xref, returning NoFamily when unknown.
func (g *Graph) LookupFamily(xref string) FamilyID {
	if id, ok := g.familyIndex[xref]; ok {
		return id
	}
	return NoFamily
}

// Individual returns the individual at id, or nil for an absent link.
func (g *Graph) Individual(id IndividualID) *Individual {
	if !id.Valid() || int(id) >= len(g.Individuals) {
		return nil
	}
	return &g.Individuals[id]
}

// Family returns the family at id, or nil for an absent link.
func (g *Graph) Family(id FamilyID) *Family {
	if !id.Valid() || int(id) >= len(g.Families) {
		return nil
	}
	return &g.Families[id]
}

// PlaceRefs returns every non-empty place reference in event order.
func (g *Graph) PlaceRefs() []*PlaceRef {
	var refs []*PlaceRef
	for i := range g.Events {
		if p := g.Events[i].Place; p != nil && strings.TrimSpace(p.Raw) != "" {
			refs = append(refs, p)
		}
	}
	return refs
}

// ReferenceCoordinate returns the first resolved coordinate among the
// individual's birth, marriage and death events, in that order.
func (g *Graph) ReferenceCoordinate(id IndividualID) *Coordinate {
	ind := g.Individual(id)
	if ind == nil {
		return nil
	}
	var marriages []EventID
	for _, fid := range ind.SpouseFamilies {
		if fam := g.Family(fid); fam != nil {
			for _, eid := range fam.Events {
				if g.Events[eid].Kind == EventMarriage {
					marriages = append(marriages, eid)
				}
			}
		}
	}
	order := make([]EventID, 0, len(ind.Events)+len(marriages))
	order = append(order, g.eventsOfKind(ind.Events, EventBirth)...)
	order = append(order, marriages...)
	order = append(order, g.eventsOfKind(ind.Events, EventDeath)...)
	for _, eid := range order {
		if p := g.Events[eid].Place; p != nil && p.Coordinate != nil {
			return p.Coordinate
		}
	}
	return nil
}

func (g *Graph) eventsOfKind(ids []EventID, kind EventKind) []EventID {
	var out []EventID
	for _, eid := range ids {
		if g.Events[eid].Kind == kind {
			out = append(out, eid)
		}
	}
	return out
}
