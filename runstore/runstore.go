// Package runstore persists the results of EM restarts.  Each run is
// stored under its RunID as a gzip-compressed gob file, next to a text
// summary of its starting and final parameters and its log-likelihood
// trace.
package runstore

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/kimberlymcm/digitalhealth-project/hmmlib"
)

const (
	gobExt = ".gob.gz"
	txtExt = ".txt"

	// BestKey is the key of the selected run.
	BestKey = "best"
)

// ErrNotFound is returned by Load when no record has the given key.
var ErrNotFound = errors.New("runstore: record not found")

// Dir stores run records as files in a directory.  It is safe for
// concurrent use as long as each call uses a different key.
type Dir struct {
	path string
}

// NewDir returns a Dir writing to path, creating the directory if
// needed.
func NewDir(path string) (*Dir, error) {

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating %s", path)
	}

	return &Dir{path: path}, nil
}

// Path returns the directory holding the records.
func (d *Dir) Path() string {
	return d.path
}

// Put stores res under its RunID.
func (d *Dir) Put(res *hmmlib.RunResult) error {
	return d.write(res.ID.String(), res)
}

// PutBest stores res under BestKey.
func (d *Dir) PutBest(res *hmmlib.RunResult) error {
	return d.write(BestKey, res)
}

// Load reads the record stored under key.
func (d *Dir) Load(key string) (*hmmlib.RunResult, error) {

	fname := filepath.Join(d.path, key+gobExt)
	fid, err := os.Open(fname)
	if os.IsNotExist(err) {
		return nil, errors.Wrap(ErrNotFound, key)
	} else if err != nil {
		return nil, errors.Wrapf(err, "opening %s", fname)
	}
	defer fid.Close()

	gid, err := gzip.NewReader(fid)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", fname)
	}
	defer gid.Close()

	var res hmmlib.RunResult
	if err := gob.NewDecoder(gid).Decode(&res); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", fname)
	}

	return &res, nil
}

// Keys returns the keys of all stored records in sorted order.
func (d *Dir) Keys() ([]string, error) {

	ents, err := os.ReadDir(d.path)
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", d.path)
	}

	var keys []string
	for _, e := range ents {
		if !e.IsDir() && strings.HasSuffix(e.Name(), gobExt) {
			keys = append(keys, strings.TrimSuffix(e.Name(), gobExt))
		}
	}
	sort.Strings(keys)

	return keys, nil
}

func (d *Dir) write(key string, res *hmmlib.RunResult) error {

	var buf bytes.Buffer
	gid := gzip.NewWriter(&buf)
	if err := gob.NewEncoder(gid).Encode(res); err != nil {
		return errors.Wrapf(err, "encoding %s", key)
	}
	if err := gid.Close(); err != nil {
		return errors.Wrapf(err, "compressing %s", key)
	}
	if err := d.atomicWrite(key+gobExt, buf.Bytes()); err != nil {
		return err
	}

	buf.Reset()
	if err := Summarize(&buf, res); err != nil {
		return errors.Wrapf(err, "summarizing %s", key)
	}

	return d.atomicWrite(key+txtExt, buf.Bytes())
}

// atomicWrite writes data to a temporary file and renames it, so
// readers never see a partial record.
func (d *Dir) atomicWrite(name string, data []byte) error {

	fid, err := os.CreateTemp(d.path, "."+name+".*")
	if err != nil {
		return errors.Wrapf(err, "creating temporary file for %s", name)
	}
	tmp := fid.Name()

	if _, err := fid.Write(data); err != nil {
		fid.Close()
		os.Remove(tmp)
		return errors.Wrapf(err, "writing %s", name)
	}
	if err := fid.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "closing %s", name)
	}

	if err := os.Rename(tmp, filepath.Join(d.path, name)); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "renaming %s", name)
	}

	return nil
}

// Summarize writes a text report of a run: its identity and status,
// its starting and final parameters and the full log-likelihood trace.
func Summarize(buf *bytes.Buffer, res *hmmlib.RunResult) error {

	fmt.Fprintf(buf, "Run %s\n", res.ID)
	fmt.Fprintf(buf, "Status: %s after %d iterations\n", res.Status, res.Iterations)
	if res.Err != "" {
		fmt.Fprintf(buf, "Reason: %s\n", res.Err)
	}
	buf.WriteString("\n")

	if err := hmmlib.WriteSummary(buf, res.Initial, "Starting values:", nil); err != nil {
		return err
	}
	if res.Final != nil {
		if err := hmmlib.WriteSummary(buf, res.Final, "Estimated parameters:", nil); err != nil {
			return err
		}
	}

	buf.WriteString("Log-likelihood trace:\n")
	for i, llf := range res.LogLike {
		fmt.Fprintf(buf, "%4d %16.6f\n", i, llf)
	}

	return nil
}
