// Package export flushes simulation results to CSV files, one file per
// node.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/mthorley/hydronet/internal/sim"
)

// WriteCSV writes one node's log to path: a header row followed by one
// row per step.
func WriteCSV(l *sim.Log, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(l.Headers()); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	row := make([]string, len(l.Headers()))
	for i := 0; i < l.Len(); i++ {
		for j, v := range l.Row(i) {
			row[j] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// WriteAll writes every log of a results set into dir as <node>.csv,
// creating the directory if needed.
func WriteAll(r *sim.Results, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for _, name := range r.Names() {
		if err := WriteCSV(r.Log(name), filepath.Join(dir, name+".csv")); err != nil {
			return err
		}
	}
	return nil
}
