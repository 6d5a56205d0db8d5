package gedcom

import (
	"io"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gedmap/internal/model"
)

// Load repairs, parses and builds one GEDCOM stream. The returned error is
// non-nil only when the input could not be read.
func Load(r io.Reader, source string) (*model.Graph, *Diagnostics, error) {
	diag := NewDiagnostics(source)
	forest, err := ParseAll(NewReader(r, diag), diag)
	if err != nil {
		return nil, diag, eris.Wrapf(err, "gedcom: parse %s", source)
	}
	return Build(forest, source, diag), diag, nil
}

// LoadFile opens path and calls Load.
func LoadFile(path string) (*model.Graph, *Diagnostics, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "gedcom: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return Load(f, path)
}
