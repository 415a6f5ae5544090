package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/bosunhq/stockroom/internal/shared"
)

// Row is one data row of an import file. Number is the 1-based line in the
// file, so the first data row after the header is 2.
type Row struct {
	Number      int    `json:"row"`
	ProductName string `json:"product_name"`
	Warehouse   string `json:"warehouse"`
	Category    string `json:"category"`
	Quantity    string `json:"quantity"`
	Price       string `json:"price"`
	ItemCode    string `json:"item_code"`
	Description string `json:"description"`
	Unit        string `json:"unit"`
}

var columnAliases = map[string]string{
	"product_name": "product_name",
	"product":      "product_name",
	"name":         "product_name",
	"warehouse":    "warehouse",
	"category":     "category",
	"quantity":     "quantity",
	"qty":          "quantity",
	"price":        "price",
	"item_code":    "item_code",
	"code":         "item_code",
	"description":  "description",
	"unit":         "unit",
}

// ParseFile picks the parser from filename's extension.
func ParseFile(filename string, r io.Reader) ([]Row, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt":
		return ParseCSV(r)
	case ".xlsx":
		return ParseXLSX(r)
	default:
		return nil, fmt.Errorf("importer: %w: unsupported file type %q (use .csv, .txt or .xlsx)", shared.ErrInvalidInput, filepath.Ext(filename))
	}
}

// SupportedFile reports whether ParseFile accepts filename.
func SupportedFile(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt", ".xlsx":
		return true
	}
	return false
}

// ParseCSV reads a header row followed by data rows. Header names are matched
// case-insensitively with spaces treated as underscores. Rows whose cells are
// all blank are dropped.
func ParseCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := nextNonEmptyRecord(reader)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("importer: %w: file is empty", shared.ErrInvalidInput)
		}
		return nil, fmt.Errorf("importer: read header: %w", err)
	}
	columns, err := mapHeader(header)
	if err != nil {
		return nil, err
	}

	var rows []Row
	for {
		record, err := nextNonEmptyRecord(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("importer: read row: %w", err)
		}
		line, _ := reader.FieldPos(0)
		rows = append(rows, columns.row(line, record))
	}
	return rows, nil
}

// ParseXLSX reads the first worksheet of an .xlsx workbook with the same
// header rules as ParseCSV. Row numbers are the sheet's own row numbers.
func ParseXLSX(r io.Reader) ([]Row, error) {
	book, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("importer: %w: open workbook: %v", shared.ErrInvalidInput, err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("importer: %w: workbook has no sheets", shared.ErrInvalidInput)
	}
	records, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("importer: read sheet %q: %w", sheets[0], err)
	}

	headerAt := -1
	for i, record := range records {
		if !blank(record) {
			headerAt = i
			break
		}
	}
	if headerAt < 0 {
		return nil, fmt.Errorf("importer: %w: file is empty", shared.ErrInvalidInput)
	}
	columns, err := mapHeader(records[headerAt])
	if err != nil {
		return nil, err
	}

	var rows []Row
	for i := headerAt + 1; i < len(records); i++ {
		if blank(records[i]) {
			continue
		}
		rows = append(rows, columns.row(i+1, records[i]))
	}
	return rows, nil
}

// columnIndex maps canonical column names to their position in a record.
type columnIndex map[string]int

func mapHeader(header []string) (columnIndex, error) {
	indexes := make(columnIndex)
	for i, col := range header {
		key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))), " ", "_")
		if canonical, ok := columnAliases[key]; ok {
			if _, dup := indexes[canonical]; !dup {
				indexes[canonical] = i
			}
		}
	}
	for _, required := range []string{"product_name", "warehouse"} {
		if _, ok := indexes[required]; !ok {
			return nil, fmt.Errorf("importer: %w: missing required column %q", shared.ErrInvalidInput, required)
		}
	}
	return indexes, nil
}

func (c columnIndex) cell(record []string, column string) string {
	i, ok := c[column]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func (c columnIndex) row(number int, record []string) Row {
	return Row{
		Number:      number,
		ProductName: c.cell(record, "product_name"),
		Warehouse:   c.cell(record, "warehouse"),
		Category:    c.cell(record, "category"),
		Quantity:    c.cell(record, "quantity"),
		Price:       c.cell(record, "price"),
		ItemCode:    c.cell(record, "item_code"),
		Description: c.cell(record, "description"),
		Unit:        c.cell(record, "unit"),
	}
}

func blank(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

func nextNonEmptyRecord(r *csv.Reader) ([]string, error) {
	for {
		record, err := r.Read()
		if err != nil {
			return nil, err
		}
		if !blank(record) {
			return record, nil
		}
	}
}
