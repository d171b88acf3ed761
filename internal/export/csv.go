package export

import (
	"encoding/csv"
	"os"
	"path/filepath"

	"github.com/LdDl/spotmate/internal/stack"
	"github.com/LdDl/spotmate/mot"
	"github.com/pkg/errors"
)

// CSVExporter writes <base>.csv next to the stack, or into Dir when set.
// An existing table of the same name is replaced.
type CSVExporter struct {
	Dir string
}

// Export implements Exporter
func (exporter CSVExporter) Export(s *stack.Stack, model *mot.Model) (string, error) {
	dir := exporter.Dir
	if dir == "" {
		dir = filepath.Dir(s.Path)
	}
	path := filepath.Join(dir, s.BaseName()+".csv")
	// Partial tables never appear under the final name
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return "", errors.Wrap(err, "can't create csv")
	}
	writer := csv.NewWriter(file)
	if err := writer.Write(Header); err != nil {
		file.Close()
		os.Remove(tmp)
		return "", errors.Wrap(err, "can't write csv header")
	}
	for _, row := range Rows(s.Name, model) {
		if err := writer.Write(row.Record()); err != nil {
			file.Close()
			os.Remove(tmp)
			return "", errors.Wrapf(err, "can't write track %d", row.TrackID)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		file.Close()
		os.Remove(tmp)
		return "", errors.Wrap(err, "can't flush csv")
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return "", errors.Wrap(err, "can't close csv")
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", errors.Wrap(err, "can't move csv into place")
	}
	return path, nil
}
