package place

import (
	"encoding/csv"
	"errors"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// AltTable maps a raw place string to the canonical text to geocode instead.
type AltTable map[string]string

// ReadAltTable parses a two-column CSV of raw place and alternate name. A
// header row naming the columns (place/address, alt/alt_addr) is optional
// and may list the columns in either order.
func ReadAltTable(r io.Reader) (AltTable, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	table := make(AltTable)
	placeCol, altCol := 0, 1
	first := true
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "place: read alt table")
		}
		if first {
			first = false
			if p, a, ok := altHeader(rec); ok {
				placeCol, altCol = p, a
				continue
			}
		}
		if len(rec) <= placeCol || len(rec) <= altCol {
			continue
		}
		raw, alt := strings.TrimSpace(rec[placeCol]), strings.TrimSpace(rec[altCol])
		if raw == "" || alt == "" {
			continue
		}
		table[raw] = alt
	}
	return table, nil
}

// LoadAltTable reads an alternate-name CSV from path. A missing file yields
// an empty table.
func LoadAltTable(path string) (AltTable, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return AltTable{}, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "place: open alt table %s", path)
	}
	defer f.Close() //nolint:errcheck
	return ReadAltTable(f)
}

func altHeader(rec []string) (placeCol, altCol int, ok bool) {
	placeCol, altCol = -1, -1
	for i, h := range rec {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "place", "address", "name":
			placeCol = i
		case "alt", "alt_addr", "alt_place", "alternate":
			altCol = i
		}
	}
	return placeCol, altCol, placeCol >= 0 && altCol >= 0
}
