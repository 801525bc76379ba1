package metrics

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"wavepinn/internal/loss"
)

// HistoryHeader is the column layout of the loss-history table.
var HistoryHeader = []string{"Epoch", "Total Loss", "PDE Loss", "IC Loss", "BC Loss"}

// Record is one completed epoch.
type Record struct {
	Epoch int
	loss.Components
}

// History is the append-only per-epoch loss log of a run.
type History []Record

// Append adds an epoch.
func (h *History) Append(epoch int, c loss.Components) {
	*h = append(*h, Record{Epoch: epoch, Components: c})
}

// Best returns the record with the lowest total loss.
func (h History) Best() (Record, bool) {
	if len(h) == 0 {
		return Record{}, false
	}
	best := h[0]
	for _, r := range h[1:] {
		if r.Total < best.Total {
			best = r
		}
	}
	return best, true
}

// WriteCSV writes the table with a header row.
func (h History) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(HistoryHeader); err != nil {
		return err
	}
	for _, r := range h {
		row := []string{
			strconv.Itoa(r.Epoch),
			formatFloat(r.Total),
			formatFloat(r.PDE),
			formatFloat(r.IC),
			formatFloat(r.BC),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Save writes the table to path, creating parent directories.
func (h History) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("history: mkdir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("history: create: %w", err)
	}
	if err := h.WriteCSV(f); err != nil {
		f.Close()
		return fmt.Errorf("history: write %s: %w", path, err)
	}
	return f.Close()
}

// ReadCSV parses a table written by WriteCSV.
func ReadCSV(r io.Reader) (History, error) {
	rows, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("history: missing header")
	}
	h := make(History, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) != len(HistoryHeader) {
			return nil, fmt.Errorf("history: row %d has %d columns", i+1, len(row))
		}
		epoch, err := strconv.Atoi(row[0])
		if err != nil {
			return nil, fmt.Errorf("history: row %d epoch: %w", i+1, err)
		}
		var vals [4]float64
		for j := range vals {
			if vals[j], err = strconv.ParseFloat(row[j+1], 64); err != nil {
				return nil, fmt.Errorf("history: row %d %s: %w", i+1, HistoryHeader[j+1], err)
			}
		}
		h.Append(epoch, loss.Components{Total: vals[0], PDE: vals[1], IC: vals[2], BC: vals[3]})
	}
	return h, nil
}

// LoadHistory reads the table at path. A missing file yields an empty
// history and no error.
func LoadHistory(path string) (History, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return History{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}
	defer f.Close()
	h, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return h, nil
}

// Before returns a copy of the records for epochs below epoch.
func (h History) Before(epoch int) History {
	out := make(History, 0, len(h))
	for _, r := range h {
		if r.Epoch < epoch {
			out = append(out, r)
		}
	}
	return out
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
