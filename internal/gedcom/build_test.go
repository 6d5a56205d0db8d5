package gedcom

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/gedmap/internal/model"
)

const familyGED = `0 HEAD
1 CHAR UTF-8
0 @I1@ INDI
1 NAME John /Smith/ Jr
1 SEX M
1 BIRT
2 DATE 12 MAR 1850
2 PLAC Lon
3 CONC don, England
1 FAMS @F1@
1 CHAN
2 DATE 1 JAN 2020
0 @I2@ INDI
1 NAME Mary /Jones/
2 GIVN Mary Ann
1 SEX F
1 DEAT
2 PLAC York, England
3 MAP
4 LATI N53.9590
4 LONG W1.0815
1 BURI
2 PLAC York Minster
1 FAMS @F1@
0 @I3@ INDI
1 NAME Tom /Smith/
1 FAMC @F1@
0 @F1@ FAM
1 HUSB @I1@
1 WIFE @I2@
1 CHIL @I3@
1 MARR
2 DATE 1875
2 PLAC Leeds, England
0 TRLR
`

func load(t *testing.T, src string) (*model.Graph, *Diagnostics) {
	t.Helper()
	g, diag, err := Load(strings.NewReader(src), "test.ged")
	require.NoError(t, err)
	return g, diag
}

func TestBuild_Individuals(t *testing.T) {
	g, diag := load(t, familyGED)
	assert.Equal(t, 0, diag.Len())
	require.Len(t, g.Individuals, 3)

	john := g.Individual(g.LookupIndividual("@I1@"))
	require.NotNil(t, john)
	assert.Equal(t, model.Name{Full: "John Smith Jr", Given: "John", Surname: "Smith", Suffix: "Jr"}, john.Name)
	assert.Equal(t, "M", john.Sex)
	require.Len(t, john.Events, 1)
	birth := g.Events[john.Events[0]]
	assert.Equal(t, model.EventBirth, birth.Kind)
	assert.Equal(t, "12 MAR 1850", birth.Date)
	assert.Equal(t, "1850", birth.Year())
	require.NotNil(t, birth.Place)
	assert.Equal(t, "London, England", birth.Place.Raw)
	assert.Nil(t, birth.Place.Manual)

	mary := g.Individual(g.LookupIndividual("@I2@"))
	require.NotNil(t, mary)
	assert.Equal(t, "Mary Ann", mary.Name.Given)
	assert.Equal(t, "Mary Ann Jones", mary.Name.Full)
	require.Len(t, mary.Events, 2)
	death := g.Events[mary.Events[0]]
	assert.Equal(t, model.EventDeath, death.Kind)
	require.NotNil(t, death.Place.Manual)
	assert.InDelta(t, 53.959, death.Place.Manual.Latitude, 1e-9)
	assert.InDelta(t, -1.0815, death.Place.Manual.Longitude, 1e-9)
	assert.Equal(t, model.SourceManual, death.Place.Manual.Source)

	burial := g.Events[mary.Events[1]]
	assert.Equal(t, model.EventOther, burial.Kind)
	assert.Equal(t, "BURI", burial.Tag)
	assert.Equal(t, "York Minster", burial.Place.Raw)
}

func TestBuild_ChangeDateIsNotAnEvent(t *testing.T) {
	g, _ := load(t, familyGED)
	for _, e := range g.Events {
		assert.NotEqual(t, "CHAN", e.Tag)
	}
}

func TestBuild_FamilyLinksAreBidirectional(t *testing.T) {
	g, _ := load(t, familyGED)
	require.Len(t, g.Families, 1)

	fid := g.LookupFamily("@F1@")
	fam := g.Family(fid)
	require.NotNil(t, fam)
	assert.Equal(t, g.LookupIndividual("@I1@"), fam.Husband)
	assert.Equal(t, g.LookupIndividual("@I2@"), fam.Wife)
	assert.Equal(t, []model.IndividualID{g.LookupIndividual("@I3@")}, fam.Children)

	tom := g.Individual(g.LookupIndividual("@I3@"))
	assert.Equal(t, fid, tom.ParentFamily)
	assert.Equal(t, []model.FamilyID{fid}, g.Individual(fam.Husband).SpouseFamilies)

	require.Len(t, fam.Events, 1)
	marr := g.Events[fam.Events[0]]
	assert.Equal(t, model.EventMarriage, marr.Kind)
	assert.Equal(t, "Leeds, England", marr.Place.Raw)
	assert.Equal(t, fid, marr.Owner.Family)
	assert.Equal(t, model.NoIndividual, marr.Owner.Individual)
}

func TestBuild_AsymmetricLinksPreserved(t *testing.T) {
	g, diag := load(t, `0 @I1@ INDI
1 NAME Ann //
0 @F1@ FAM
1 CHIL @I1@
`)
	assert.Equal(t, 0, diag.Len())
	ann := g.Individual(g.LookupIndividual("@I1@"))
	assert.Equal(t, model.NoFamily, ann.ParentFamily)
	assert.Len(t, g.Family(g.LookupFamily("@F1@")).Children, 1)
}

func TestBuild_DanglingReferenceIsAbsent(t *testing.T) {
	g, diag := load(t, `0 @I1@ INDI
1 FAMC @F9@
1 FAMS @F8@
0 @F1@ FAM
1 HUSB @I7@
1 CHIL @I1@
`)
	ind := g.Individual(g.LookupIndividual("@I1@"))
	assert.Equal(t, model.NoFamily, ind.ParentFamily)
	assert.Empty(t, ind.SpouseFamilies)
	assert.Equal(t, model.NoIndividual, g.Family(0).Husband)

	require.Equal(t, 3, diag.Len())
	var de *DanglingReferenceError
	require.True(t, errors.As(diag.Items[0], &de))
	assert.Equal(t, "@F9@", de.Ref)
	assert.Equal(t, "FAMC", de.Tag)
}

func TestBuild_DuplicateIDSkipped(t *testing.T) {
	g, diag := load(t, `0 @I1@ INDI
1 NAME First /One/
0 @I1@ INDI
1 NAME Second /One/
0 @I1@ FAM
0 @I2@ INDI
`)
	require.Len(t, g.Individuals, 2)
	assert.Empty(t, g.Families)
	assert.Equal(t, "First One", g.Individual(g.LookupIndividual("@I1@")).Name.Full)

	require.Equal(t, 2, diag.Len())
	var de *DuplicateIDError
	require.True(t, errors.As(diag.Items[0], &de))
	assert.Equal(t, "@I1@", de.ID)
	assert.Equal(t, 1, de.First)
	assert.Equal(t, 3, de.Line)
}

func TestBuild_DuplicateIDAcrossAnyRecord(t *testing.T) {
	g, diag := load(t, `0 @S1@ SOUR
1 TITL Parish register
0 @S1@ SOUR
1 TITL Census
0 @S1@ INDI
1 NAME Shadow /One/
0 @I2@ INDI
`)
	require.Len(t, g.Individuals, 1)
	assert.Equal(t, model.NoIndividual, g.LookupIndividual("@S1@"))

	require.Equal(t, 2, diag.Len())
	for i, line := range []int{3, 5} {
		var de *DuplicateIDError
		require.True(t, errors.As(diag.Items[i], &de))
		assert.Equal(t, "@S1@", de.ID)
		assert.Equal(t, 1, de.First)
		assert.Equal(t, line, de.Line)
	}
}

func TestBuild_MissingXRefSkipped(t *testing.T) {
	g, diag := load(t, "0 INDI\n1 NAME Nobody\n")
	assert.Empty(t, g.Individuals)
	var me *MissingXRefError
	require.Equal(t, 1, diag.Len())
	assert.True(t, errors.As(diag.Items[0], &me))
}

func TestBuild_UnknownName(t *testing.T) {
	g, _ := load(t, "0 @I1@ INDI\n1 SEX U\n")
	assert.Equal(t, "Unknown", g.Individuals[0].Name.Full)
}

func TestBuild_ForwardReferencesResolve(t *testing.T) {
	g, diag := load(t, "0 @F1@ FAM\n1 WIFE @I1@\n0 @I1@ INDI\n1 FAMS @F1@\n")
	assert.Equal(t, 0, diag.Len())
	assert.Equal(t, g.LookupIndividual("@I1@"), g.Families[0].Wife)
}

func TestBuild_EveryEventReachable(t *testing.T) {
	g, _ := load(t, familyGED)
	seen := make(map[model.EventID]bool)
	for _, ind := range g.Individuals {
		for _, id := range ind.Events {
			seen[id] = true
		}
	}
	for _, fam := range g.Families {
		for _, id := range fam.Events {
			seen[id] = true
		}
	}
	assert.Len(t, seen, len(g.Events))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.ged")
	require.NoError(t, os.WriteFile(path, []byte(familyGED), 0o644))

	g, diag, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, g.Source)
	assert.Equal(t, 0, diag.Len())
	assert.Len(t, g.PlaceRefs(), 4)

	_, _, err = LoadFile(filepath.Join(t.TempDir(), "missing.ged"))
	require.Error(t, err)
}
