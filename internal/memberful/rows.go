package memberful

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"
)

// Rows iterates over the records of a CSV document with a header line, every
// record is returned as a map of header name to value.
//
// To iterate again, parse the text again with ParseCSV.
type Rows struct {
	reader *csv.Reader
	header []string
	row    map[string]string
	err    error
	done   bool
}

func ParseCSV(content string) *Rows {
	content = strings.TrimPrefix(content, "\ufeff")
	reader := csv.NewReader(strings.NewReader(content))
	reader.FieldsPerRecord = -1

	rows := &Rows{reader: reader}
	header, err := reader.Read()
	switch {
	case errors.Is(err, io.EOF):
		rows.done = true
	case err != nil:
		rows.err = err
	default:
		rows.header = header
	}
	return rows
}

// Header returns the column names.
func (r *Rows) Header() []string {
	return r.header
}

func (r *Rows) Next() bool {
	if r.done || r.err != nil {
		return false
	}
	record, err := r.reader.Read()
	if errors.Is(err, io.EOF) {
		r.done = true
		return false
	}
	if err != nil {
		r.err = err
		return false
	}

	// short records leave the remaining columns out, values past the header are dropped
	row := make(map[string]string, len(r.header))
	for i, name := range r.header {
		if i >= len(record) {
			break
		}
		row[name] = record[i]
	}
	r.row = row
	return true
}

// Row returns the record Next moved to.
func (r *Rows) Row() map[string]string {
	return r.row
}

func (r *Rows) Err() error {
	return r.err
}

// All drains the remaining rows.
func (r *Rows) All() ([]map[string]string, error) {
	var out []map[string]string
	for r.Next() {
		out = append(out, r.Row())
	}
	return out, r.Err()
}
