package loader

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	"github.com/xuri/excelize/v2"
)

// DefaultColumn is the header of the column holding recipient addresses.
const DefaultColumn = "Email"

// Row maps a column header to the cell value of one spreadsheet row. Cells
// missing from a short row are absent from the map.
type Row map[string]string

// Table is a parsed spreadsheet: the header row and every data row after it.
type Table struct {
	Header []string
	Rows   []Row
}

// Column returns the non-blank values of the named column in row order.
// Values are trimmed; blank and missing cells are dropped.
func (t *Table) Column(name string) ([]string, error) {
	if !lo.Contains(t.Header, name) {
		return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}

	return lo.FilterMap(t.Rows, func(row Row, _ int) (string, bool) {
		value := strings.TrimSpace(row[name])
		return value, value != ""
	}), nil
}

type recipientOptions struct {
	column string
	sheet  string
}

// RecipientOption customizes LoadRecipients.
type RecipientOption func(*recipientOptions)

// WithColumn selects the column holding addresses. Empty keeps the default.
func WithColumn(name string) RecipientOption {
	return func(o *recipientOptions) {
		if name != "" {
			o.column = name
		}
	}
}

// WithSheet selects the worksheet of an Excel workbook. Empty means the
// first sheet. It has no effect on CSV files.
func WithSheet(name string) RecipientOption {
	return func(o *recipientOptions) {
		o.sheet = name
	}
}

// LoadRecipients reads the address column of the spreadsheet at path.
// Supported formats are .xlsx, .xlsm and .csv. The result keeps the file's
// row order and may contain duplicates. Header cells are trimmed before the
// column is matched, so " Email " selects the Email column.
func LoadRecipients(path string, opts ...RecipientOption) ([]string, error) {
	o := recipientOptions{column: DefaultColumn}
	for _, opt := range opts {
		opt(&o)
	}

	if _, err := os.Stat(path); err != nil {
		return nil, wrap("recipients", path, err)
	}

	table, err := ReadTable(path, o.sheet)
	if err != nil {
		return nil, wrap("recipients", path, err)
	}

	recipients, err := table.Column(o.column)
	if err != nil {
		return nil, wrap("recipients", path, err)
	}
	return recipients, nil
}

// ReadTable parses the spreadsheet at path, choosing the reader by extension.
func ReadTable(path, sheet string) (*Table, error) {
	var (
		records [][]string
		err     error
	)

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xlsx", ".xlsm":
		records, err = readExcel(path, sheet)
	case ".csv":
		records, err = readCSV(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, err
	}

	return newTable(records), nil
}

func readExcel(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	return rows, nil
}

func readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}

	// Spreadsheet exports often prefix the file with a UTF-8 byte order mark.
	if len(records) > 0 && len(records[0]) > 0 {
		records[0][0] = strings.TrimPrefix(records[0][0], "\ufeff")
	}
	return records, nil
}

// newTable turns raw records into a header and keyed rows. When a header is
// repeated the leftmost column wins.
func newTable(records [][]string) *Table {
	if len(records) == 0 {
		return &Table{}
	}

	header := lo.Map(records[0], func(cell string, _ int) string {
		return strings.TrimSpace(cell)
	})

	rows := make([]Row, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(Row, len(header))
		for i, name := range header {
			if i >= len(record) {
				break
			}
			if _, seen := row[name]; seen {
				continue
			}
			row[name] = record[i]
		}
		rows = append(rows, row)
	}

	return &Table{Header: header, Rows: rows}
}
