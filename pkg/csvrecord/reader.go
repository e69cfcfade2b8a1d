package csvrecord

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var ErrReadCSV = errors.New("cannot read csv")

const utf8BOM = "\uFEFF"

type ReadOption struct {
	// Header treats the first row as header, otherwise cells are keyed by their position.
	Header bool

	// Comma is the field delimiter, default ','.
	Comma rune
}

// ReadCSV reads every row from r. Blank lines are skipped.
// In header mode, missing trailing cells are nil and cells beyond the header are keyed "_<index>".
func ReadCSV(r io.Reader, opt ReadOption) ([]RawRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	if opt.Comma != 0 {
		reader.Comma = opt.Comma
	}

	var header []string
	rows := make([]RawRow, 0)
	for line := 0; ; line++ {
		cells, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrReadCSV, err)
		}

		if line == 0 && len(cells) > 0 {
			cells[0] = strings.TrimPrefix(cells[0], utf8BOM)
		}

		if !opt.Header {
			row := make(RawRow, len(cells))
			for i := range cells {
				row[strconv.Itoa(i)] = &cells[i]
			}

			rows = append(rows, row)
			continue
		}

		if header == nil {
			header = cells
			continue
		}

		row := make(RawRow, len(header))
		for i, h := range header {
			if i < len(cells) {
				row[h] = &cells[i]
				continue
			}

			row[h] = nil
		}

		for i := len(header); i < len(cells); i++ {
			row["_"+strconv.Itoa(i)] = &cells[i]
		}

		rows = append(rows, row)
	}

	return rows, nil
}

// Parse reads a CSV with header and normalizes it.
func Parse(r io.Reader, keep Predicate) ([]Record, error) {
	rows, err := ReadCSV(r, ReadOption{Header: true})
	if err != nil {
		return nil, err
	}

	return Normalize(rows, keep), nil
}
