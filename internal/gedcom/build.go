package gedcom

import (
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/gedmap/internal/model"
)

type builder struct {
	g    *model.Graph
	diag *Diagnostics
}

// Build walks a record forest into a graph. Ids are indexed in a first pass
// over all top-level records so pointers resolve regardless of order.
func Build(forest []*Record, source string, diag *Diagnostics) *model.Graph {
	b := &builder{g: model.NewGraph(source), diag: diag}

	type pending struct {
		rec *Record
		ind model.IndividualID
		fam model.FamilyID
	}
	var todo []pending
	first := make(map[string]int)

	for _, rec := range forest {
		linked := rec.Kind == TagIndi || rec.Kind == TagFam
		if rec.XRef == "" {
			if linked {
				diag.Add(&MissingXRefError{Line: rec.Line, Tag: rec.Tag})
			}
			continue
		}
		// Ids are unique across every top-level record, not just INDI/FAM.
		if line, dup := first[rec.XRef]; dup {
			diag.Add(&DuplicateIDError{Line: rec.Line, ID: rec.XRef, First: line})
			continue
		}
		first[rec.XRef] = rec.Line
		if !linked {
			continue
		}

		p := pending{rec: rec, ind: model.NoIndividual, fam: model.NoFamily}
		if rec.Kind == TagIndi {
			p.ind = b.g.AddIndividual(rec.XRef)
		} else {
			p.fam = b.g.AddFamily(rec.XRef)
		}
		todo = append(todo, p)
	}

	for _, p := range todo {
		if p.ind.Valid() {
			b.individual(p.ind, p.rec)
		} else {
			b.family(p.fam, p.rec)
		}
	}
	return b.g
}

func (b *builder) individual(id model.IndividualID, rec *Record) {
	ind := b.g.Individual(id)
	ind.Name = parseName(rec.Child(TagName))
	ind.Sex = strings.TrimSpace(rec.ChildValue(TagSex))

	owner := model.Owner{Individual: id, Family: model.NoFamily}
	for _, c := range rec.Children {
		switch c.Kind {
		case TagBirt:
			ind.Events = append(ind.Events, b.event(c, model.EventBirth, owner))
		case TagDeat:
			ind.Events = append(ind.Events, b.event(c, model.EventDeath, owner))
		case TagFamc:
			fid := b.familyRef(rec, c)
			if !fid.Valid() {
				continue
			}
			if ind.ParentFamily.Valid() {
				zap.L().Debug("gedcom: additional FAMC ignored",
					zap.String("individual", rec.XRef),
					zap.String("family", c.Pointer()),
				)
				continue
			}
			ind.ParentFamily = fid
		case TagFams:
			if fid := b.familyRef(rec, c); fid.Valid() && !slices.Contains(ind.SpouseFamilies, fid) {
				ind.SpouseFamilies = append(ind.SpouseFamilies, fid)
			}
		default:
			if isOtherEvent(c) {
				ind.Events = append(ind.Events, b.event(c, model.EventOther, owner))
			}
		}
	}
}

func (b *builder) family(id model.FamilyID, rec *Record) {
	fam := b.g.Family(id)
	owner := model.Owner{Individual: model.NoIndividual, Family: id}
	for _, c := range rec.Children {
		switch c.Kind {
		case TagHusb:
			if iid := b.individualRef(rec, c); iid.Valid() && !fam.Husband.Valid() {
				fam.Husband = iid
			}
		case TagWife:
			if iid := b.individualRef(rec, c); iid.Valid() && !fam.Wife.Valid() {
				fam.Wife = iid
			}
		case TagChil:
			if iid := b.individualRef(rec, c); iid.Valid() && !slices.Contains(fam.Children, iid) {
				fam.Children = append(fam.Children, iid)
			}
		case TagMarr:
			fam.Events = append(fam.Events, b.event(c, model.EventMarriage, owner))
		default:
			if isOtherEvent(c) {
				fam.Events = append(fam.Events, b.event(c, model.EventOther, owner))
			}
		}
	}
}

func (b *builder) event(rec *Record, kind model.EventKind, owner model.Owner) model.EventID {
	return b.g.AddEvent(model.Event{
		Kind:  kind,
		Tag:   rec.Tag,
		Date:  strings.TrimSpace(rec.ChildValue(TagDate)),
		Place: placeRef(rec.Child(TagPlac)),
		Owner: owner,
	})
}

func (b *builder) individualRef(from, rec *Record) model.IndividualID {
	ref := rec.Pointer()
	id := b.g.LookupIndividual(ref)
	if !id.Valid() {
		b.diag.Add(&DanglingReferenceError{Line: rec.Line, From: from.XRef, Tag: rec.Tag, Ref: rec.Value})
	}
	return id
}

func (b *builder) familyRef(from, rec *Record) model.FamilyID {
	ref := rec.Pointer()
	id := b.g.LookupFamily(ref)
	if !id.Valid() {
		b.diag.Add(&DanglingReferenceError{Line: rec.Line, From: from.XRef, Tag: rec.Tag, Ref: rec.Value})
	}
	return id
}

// isOtherEvent treats any dated or placed substructure as an event. CHAN
// carries a DATE but records an edit, not a life event.
func isOtherEvent(rec *Record) bool {
	if rec.Kind == TagChan {
		return false
	}
	return rec.Child(TagDate) != nil || rec.Child(TagPlac) != nil
}

func placeRef(plac *Record) *model.PlaceRef {
	if plac == nil {
		return nil
	}
	p := &model.PlaceRef{Raw: plac.Value}
	if m := plac.Child(TagMap); m != nil {
		lat, latOK := model.ParseLatitude(m.ChildValue(TagLati))
		lon, lonOK := model.ParseLongitude(m.ChildValue(TagLong))
		if latOK && lonOK {
			p.Manual = &model.Coordinate{Latitude: lat, Longitude: lon, Source: model.SourceManual}
		}
	}
	return p
}

// parseName splits "Given /Surname/ Suffix". GIVN, SURN and NSFX
// substructures take precedence over the slashed form.
func parseName(rec *Record) model.Name {
	if rec == nil || strings.TrimSpace(rec.Value) == "" && len(rec.Children) == 0 {
		return model.Name{Full: "Unknown", Given: "Unknown", Surname: "Unknown"}
	}

	var n model.Name
	v := rec.Value
	if i := strings.Index(v, "/"); i >= 0 {
		n.Given = strings.TrimSpace(v[:i])
		rest := v[i+1:]
		if j := strings.Index(rest, "/"); j >= 0 {
			n.Surname = strings.TrimSpace(rest[:j])
			n.Suffix = strings.TrimSpace(rest[j+1:])
		} else {
			n.Surname = strings.TrimSpace(rest)
		}
	} else {
		n.Given = strings.TrimSpace(v)
	}

	if s := strings.TrimSpace(rec.ChildValue(TagGivn)); s != "" {
		n.Given = s
	}
	if s := strings.TrimSpace(rec.ChildValue(TagSurn)); s != "" {
		n.Surname = s
	}
	if s := strings.TrimSpace(rec.ChildValue(TagNsfx)); s != "" {
		n.Suffix = s
	}

	n.Full = strings.Join(strings.Fields(strings.Join([]string{n.Given, n.Surname, n.Suffix}, " ")), " ")
	if n.Full == "" {
		n.Full = "Unknown"
	}
	return n
}
