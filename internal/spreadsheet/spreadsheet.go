// Package spreadsheet builds xlsx import templates and decodes uploaded
// csv/xlsx files into section records.
package spreadsheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"

	"github.com/xuri/excelize/v2"

	"ecodash/internal/core"
)

const (
	DataSheet      = "Data"
	ReferenceSheet = "Reference"

	// validationRows is how far down the type drop-down list reaches.
	validationRows = 1000
)

var (
	ErrUnsupportedFile = errors.New("unsupported file type: upload a .csv or .xlsx file")
	ErrEmptyFile       = errors.New("file has no header row")
	ErrMissingColumn   = errors.New("missing required column")
)

// Headers returns the template column titles for a section.
func Headers(section core.Section) []string {
	var out []string
	for _, k := range section.KeyColumns() {
		out = append(out, strings.ToUpper(k[:1])+k[1:])
	}
	for _, f := range section.Fields() {
		out = append(out, core.Label(f))
	}
	return out
}

// TemplateFilename is the download name for a section's template.
func TemplateFilename(section core.Section) string {
	return "template-" + string(section) + ".xlsx"
}

// Template renders an empty workbook with a header row on the Data sheet and
// the reference lists on a second sheet.
func Template(section core.Section, companies []core.Company, types []core.ExpenditureType) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", DataSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	headers := Headers(section)
	row := make([]any, len(headers))
	for i, h := range headers {
		row[i] = h
	}
	if err := f.SetSheetRow(DataSheet, "A1", &row); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	lastCol, err := excelize.ColumnNumberToName(len(headers))
	if err != nil {
		return nil, err
	}
	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#DDEBF7"}},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	if err := f.SetCellStyle(DataSheet, "A1", lastCol+"1", style); err != nil {
		return nil, fmt.Errorf("apply header style: %w", err)
	}
	if err := f.SetColWidth(DataSheet, "A", lastCol, 22); err != nil {
		return nil, fmt.Errorf("column width: %w", err)
	}

	if section == core.SectionExpenditures {
		if err := writeReference(f, companies, types); err != nil {
			return nil, err
		}
		if len(types) > 0 {
			names := make([]string, len(types))
			for i, t := range types {
				names[i] = t.Name
			}
			dv := excelize.NewDataValidation(true)
			dv.Sqref = fmt.Sprintf("C2:C%d", validationRows)
			if err := dv.SetDropList(names); err != nil {
				return nil, fmt.Errorf("type list: %w", err)
			}
			if err := f.AddDataValidation(DataSheet, dv); err != nil {
				return nil, fmt.Errorf("add type list: %w", err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeReference(f *excelize.File, companies []core.Company, types []core.ExpenditureType) error {
	if _, err := f.NewSheet(ReferenceSheet); err != nil {
		return fmt.Errorf("create reference sheet: %w", err)
	}
	header := []any{"Company ID", "Company", "Type ID", "Type"}
	if err := f.SetSheetRow(ReferenceSheet, "A1", &header); err != nil {
		return err
	}
	for i, c := range companies {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []any{c.ID, c.Name}
		if err := f.SetSheetRow(ReferenceSheet, cell, &row); err != nil {
			return err
		}
	}
	for i, t := range types {
		cell, _ := excelize.CoordinatesToCellName(3, i+2)
		row := []any{t.ID, t.Name}
		if err := f.SetSheetRow(ReferenceSheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

// ReadRows loads every row of an upload, choosing the reader by file extension.
func ReadRows(filename string, r io.Reader) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		cr := csv.NewReader(r)
		cr.FieldsPerRecord = -1
		cr.TrimLeadingSpace = true
		rows, err := cr.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		return rows, nil
	case ".xlsx", ".xlsm":
		f, err := excelize.OpenReader(r)
		if err != nil {
			return nil, fmt.Errorf("open workbook: %w", err)
		}
		defer f.Close()
		sheet := f.GetSheetName(0)
		if slices.Contains(f.GetSheetList(), DataSheet) {
			sheet = DataSheet
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		return rows, nil
	}
	return nil, ErrUnsupportedFile
}

// Parse reads and decodes an upload in one step.
func Parse(section core.Section, filename string, data []byte, types []core.ExpenditureType) (Batch, []string, error) {
	rows, err := ReadRows(filename, bytes.NewReader(data))
	if err != nil {
		return Batch{}, nil, err
	}
	return Decode(section, rows, types)
}

// NewResult builds the import report. Any row error rejects the file.
func NewResult(processed int, rowErrors []string) core.ImportResult {
	res := core.ImportResult{
		TotalProcessed: processed,
		Errors:         len(rowErrors),
		ErrorDetails:   append([]string{}, rowErrors...),
	}
	if len(rowErrors) == 0 {
		res.SuccessfulImports = processed
	}
	return res
}
