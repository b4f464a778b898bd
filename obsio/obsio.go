// Package obsio reads observation sequences from CSV files and writes
// decoded state sequences back out.
package obsio

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrNoColumn is returned when the requested column is not in the
// header row.
var ErrNoColumn = errors.New("obsio: column not found")

// ReadColumn reads the named numeric column from a CSV stream with a
// header row.  Rows where the column is empty or NaN are skipped.  If
// limit is positive at most limit values are returned.
func ReadColumn(r io.Reader, column string, limit int) ([]float64, error) {

	rdr := csv.NewReader(r)
	rdr.ReuseRecord = true
	rdr.FieldsPerRecord = -1

	head, err := rdr.Read()
	if err == io.EOF {
		return nil, errors.Wrap(ErrNoColumn, "empty input")
	} else if err != nil {
		return nil, errors.Wrap(err, "reading header")
	}

	pos := -1
	for i, h := range head {
		if strings.TrimSpace(h) == column {
			pos = i
			break
		}
	}
	if pos < 0 {
		return nil, errors.Wrapf(ErrNoColumn, "%q", column)
	}

	var obs []float64
	for line := 2; limit <= 0 || len(obs) < limit; line++ {
		rec, err := rdr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, errors.Wrapf(err, "reading line %d", line)
		}

		if pos >= len(rec) {
			continue
		}
		fld := strings.TrimSpace(rec[pos])
		if fld == "" {
			continue
		}

		x, err := strconv.ParseFloat(fld, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d column %q", line, column)
		}
		if math.IsNaN(x) {
			continue
		}
		obs = append(obs, x)
	}

	return obs, nil
}

// WriteStates writes one row per observation with its index, value and
// decoded state.
func WriteStates(w io.Writer, obs []float64, states []int) error {

	if len(obs) != len(states) {
		return errors.Errorf("obsio: %d observations but %d states", len(obs), len(states))
	}

	wtr := csv.NewWriter(w)
	if err := wtr.Write([]string{"index", "value", "state"}); err != nil {
		return errors.Wrap(err, "writing header")
	}

	row := make([]string, 3)
	for t := range obs {
		row[0] = strconv.Itoa(t)
		row[1] = strconv.FormatFloat(obs[t], 'g', -1, 64)
		row[2] = strconv.Itoa(states[t])
		if err := wtr.Write(row); err != nil {
			return errors.Wrapf(err, "writing row %d", t)
		}
	}

	wtr.Flush()
	return errors.Wrap(wtr.Error(), "flushing states")
}

// WriteObs writes a single column of observations, optionally with the
// states that generated them.
func WriteObs(w io.Writer, column string, obs []float64, states []int) error {

	wtr := csv.NewWriter(w)

	head := []string{column}
	if states != nil {
		head = append(head, "state")
	}
	if err := wtr.Write(head); err != nil {
		return errors.Wrap(err, "writing header")
	}

	row := make([]string, len(head))
	for t, y := range obs {
		row[0] = strconv.FormatFloat(y, 'f', 4, 64)
		if states != nil {
			row[1] = strconv.Itoa(states[t])
		}
		if err := wtr.Write(row); err != nil {
			return errors.Wrapf(err, "writing row %d", t)
		}
	}

	wtr.Flush()
	return errors.Wrap(wtr.Error(), "flushing observations")
}
