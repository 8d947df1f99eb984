package io

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/meazyme/v-allo/pkg/errors"
)

// ImportValues reads an ID → value table from a CSV file.
func ImportValues(path, idColumn, valueColumn string) (map[string]float64, error) {
	if err := errors.ValidatePath(path); err != nil {
		return nil, err
	}
	f, err := open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadValues(f, idColumn, valueColumn)
}

// ReadValues reads an ID → value table from CSV with a header row. Rows with
// an empty value cell are skipped; repeated IDs are an error.
func ReadValues(r io.Reader, idColumn, valueColumn string) (map[string]float64, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New(errors.ErrCodeInvalidFormat, "CSV is empty")
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "read CSV header")
	}
	idCol, err := column(header, idColumn)
	if err != nil {
		return nil, err
	}
	valCol, err := column(header, valueColumn)
	if err != nil {
		return nil, err
	}

	values := make(map[string]float64)
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "read CSV")
		}
		if idCol >= len(row) || valCol >= len(row) {
			return nil, errors.New(errors.ErrCodeInvalidFormat, "line %d: too few columns", line)
		}
		id := strings.TrimSpace(row[idCol])
		raw := strings.TrimSpace(row[valCol])
		if id == "" || raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.New(errors.ErrCodeInvalidFormat, "line %d: %q is not a number", line, raw)
		}
		if _, dup := values[id]; dup {
			return nil, errors.New(errors.ErrCodeInvalidInput, "line %d: duplicate id %q", line, id)
		}
		values[id] = v
	}
	return values, nil
}

func column(header []string, name string) (int, error) {
	if err := errors.ValidateFieldName(name); err != nil {
		return 0, err
	}
	for i, h := range header {
		// Excel writes a BOM in front of the first header.
		if strings.TrimPrefix(strings.TrimSpace(h), "\ufeff") == name {
			return i, nil
		}
	}
	return 0, errors.New(errors.ErrCodeInvalidFormat, "CSV has no %q column (have %s)", name, fmt.Sprint(header))
}
