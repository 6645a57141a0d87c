package tools

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

const spreadsheetDefaultMaxRows = 500

// SpreadsheetTool implements the read/write/create/info actions of
// spec.md §4.5 for CSV and Excel files, grounded on
// original_source/tappi/agent/tools/spreadsheet.py. CSV uses the standard
// library exactly as the Python original does ("zero deps"); Excel uses
// xuri/excelize/v2 in place of openpyxl.
type SpreadsheetTool struct {
	workspace string
}

func NewSpreadsheetTool(workspace string) *SpreadsheetTool {
	return &SpreadsheetTool{workspace: workspace}
}

func (t *SpreadsheetTool) Name() string { return "spreadsheet" }
func (t *SpreadsheetTool) Description() string {
	return "Read and write CSV and Excel (.xlsx) files: read data, write rows, create new spreadsheets, query columns."
}

func (t *SpreadsheetTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action":   map[string]interface{}{"type": "string", "enum": []string{"read", "write", "create", "info"}},
			"path":     map[string]interface{}{"type": "string"},
			"sheet":    map[string]interface{}{"type": "string"},
			"headers":  map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			"rows":     map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "array"}},
			"columns":  map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			"max_rows": map[string]interface{}{"type": "integer"},
		},
		"required": []string{"action", "path"},
	}
}

func (t *SpreadsheetTool) resolve(rel string) (string, error) {
	ws, err := filepath.Abs(t.workspace)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.Abs(filepath.Join(ws, rel))
	if err != nil {
		return "", err
	}
	if resolved != ws && !strings.HasPrefix(resolved, ws+string(os.PathSeparator)) {
		return "", fmt.Errorf("permission denied: path escapes workspace: %s", rel)
	}
	return resolved, nil
}

func isExcelPath(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".xlsx") || strings.HasSuffix(lower, ".xls")
}

func stringSlice(v interface{}) []string {
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func rowsArg(v interface{}) [][]string {
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([][]string, 0, len(list))
	for _, item := range list {
		out = append(out, stringSlice(item))
	}
	return out
}

func intArgDefault(args map[string]interface{}, key string, def int) int {
	if _, ok := args[key]; !ok {
		return def
	}
	if n := intArg(args, key); n != 0 {
		return n
	}
	return def
}

func (t *SpreadsheetTool) Execute(_ context.Context, args map[string]interface{}) *Result {
	action, _ := args["action"].(string)
	path, _ := args["path"].(string)

	var out string
	var err error
	switch action {
	case "read":
		out, err = t.read(path, args)
	case "write":
		out, err = t.write(path, args)
	case "create":
		out, err = t.create(path, args)
	case "info":
		out, err = t.info(path)
	default:
		return ErrorResult(fmt.Sprintf("Unknown action: %s", action))
	}
	if err != nil {
		if os.IsNotExist(err) {
			return ErrorResult("File not found: " + err.Error())
		}
		return ErrorResult("Error: " + err.Error())
	}
	return NewResult(out)
}

func (t *SpreadsheetTool) read(path string, args map[string]interface{}) (string, error) {
	resolved, err := t.resolve(path)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(resolved); err != nil {
		return "", err
	}
	maxRows := intArgDefault(args, "max_rows", spreadsheetDefaultMaxRows)
	cols := stringSlice(args["columns"])

	if isExcelPath(path) {
		sheet, _ := args["sheet"].(string)
		return t.readExcel(resolved, sheet, cols, maxRows)
	}
	return t.readCSV(resolved, cols, maxRows)
}

func filterHeaders(headers, want []string) []string {
	if len(want) == 0 {
		return headers
	}
	wantSet := map[string]bool{}
	for _, w := range want {
		wantSet[w] = true
	}
	out := make([]string, 0, len(headers))
	for _, h := range headers {
		if wantSet[h] {
			out = append(out, h)
		}
	}
	return out
}

func (t *SpreadsheetTool) readCSV(resolved string, filterCols []string, maxRows int) (string, error) {
	f, err := os.Open(resolved)
	if err != nil {
		return "", err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	allRows, err := r.ReadAll()
	if err != nil {
		return "", err
	}
	if len(allRows) == 0 {
		return "(empty spreadsheet)", nil
	}

	headers := allRows[0]
	want := filterHeaders(headers, filterCols)
	idx := columnIndices(headers, want)

	var b strings.Builder
	b.WriteString(strings.Join(want, ","))
	count := 0
	for _, row := range allRows[1:] {
		if count >= maxRows {
			fmt.Fprintf(&b, "\n... (truncated at %d rows)", maxRows)
			break
		}
		vals := make([]string, len(idx))
		for i, ci := range idx {
			if ci < len(row) {
				vals[i] = row[ci]
			}
		}
		b.WriteString("\n")
		b.WriteString(strings.Join(vals, ","))
		count++
	}
	return b.String(), nil
}

func columnIndices(headers, want []string) []int {
	idx := make([]int, 0, len(want))
	for _, w := range want {
		for i, h := range headers {
			if h == w {
				idx = append(idx, i)
				break
			}
		}
	}
	return idx
}

func (t *SpreadsheetTool) readExcel(resolved, sheet string, filterCols []string, maxRows int) (string, error) {
	wb, err := excelize.OpenFile(resolved)
	if err != nil {
		return "", err
	}
	defer wb.Close()

	sheetName := wb.GetSheetName(0)
	if sheet != "" {
		if idx, err := wb.GetSheetIndex(sheet); err == nil && idx >= 0 {
			sheetName = sheet
		}
	}
	rows, err := wb.GetRows(sheetName)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "(empty spreadsheet)", nil
	}

	headers := rows[0]
	for i, h := range headers {
		if h == "" {
			headers[i] = fmt.Sprintf("col_%d", i)
		}
	}
	want := filterHeaders(headers, filterCols)
	idx := columnIndices(headers, want)

	var b strings.Builder
	b.WriteString(strings.Join(want, ","))
	total := len(rows) - 1
	for i, row := range rows[1:] {
		if i >= maxRows {
			fmt.Fprintf(&b, "\n... (truncated at %d rows, %d total)", maxRows, total)
			break
		}
		vals := make([]string, len(idx))
		for j, ci := range idx {
			if ci < len(row) {
				vals[j] = row[ci]
			}
		}
		b.WriteString("\n")
		b.WriteString(strings.Join(vals, ","))
	}
	return b.String(), nil
}

func (t *SpreadsheetTool) write(path string, args map[string]interface{}) (string, error) {
	rows := rowsArg(args["rows"])
	if len(rows) == 0 {
		return "", fmt.Errorf("'rows' required for write action")
	}
	resolved, err := t.resolve(path)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(resolved); err != nil {
		return "", fmt.Errorf("%s. Use action='create' to make a new file", err.Error())
	}

	if isExcelPath(path) {
		wb, err := excelize.OpenFile(resolved)
		if err != nil {
			return "", err
		}
		sheetName := wb.GetSheetName(0)
		existingRows, _ := wb.GetRows(sheetName)
		nextRow := len(existingRows) + 1
		for i, row := range rows {
			for j, v := range row {
				cell, _ := excelize.CoordinatesToCellName(j+1, nextRow+i)
				wb.SetCellValue(sheetName, cell, v)
			}
		}
		if err := wb.SaveAs(resolved); err != nil {
			return "", err
		}
		return fmt.Sprintf("Appended %d rows to %s", len(rows), path), nil
	}

	f, err := os.OpenFile(resolved, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return "", err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return fmt.Sprintf("Appended %d rows to %s", len(rows), path), nil
}

func (t *SpreadsheetTool) create(path string, args map[string]interface{}) (string, error) {
	headers := stringSlice(args["headers"])
	rows := rowsArg(args["rows"])

	resolved, err := t.resolve(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return "", err
	}

	if isExcelPath(path) {
		wb := excelize.NewFile()
		sheetName := wb.GetSheetName(0)
		r := 1
		if len(headers) > 0 {
			for i, h := range headers {
				cell, _ := excelize.CoordinatesToCellName(i+1, r)
				wb.SetCellValue(sheetName, cell, h)
			}
			r++
		}
		for _, row := range rows {
			for i, v := range row {
				cell, _ := excelize.CoordinatesToCellName(i+1, r)
				wb.SetCellValue(sheetName, cell, v)
			}
			r++
		}
		if err := wb.SaveAs(resolved); err != nil {
			return "", err
		}
	} else {
		f, err := os.Create(resolved)
		if err != nil {
			return "", err
		}
		defer f.Close()
		w := csv.NewWriter(f)
		if len(headers) > 0 {
			if err := w.Write(headers); err != nil {
				return "", err
			}
		}
		for _, row := range rows {
			if err := w.Write(row); err != nil {
				return "", err
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return "", err
		}
	}

	total := len(rows)
	if len(headers) > 0 {
		total++
	}
	return fmt.Sprintf("Created: %s (%d rows)", path, total), nil
}

func (t *SpreadsheetTool) info(path string) (string, error) {
	resolved, err := t.resolve(path)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(resolved); err != nil {
		return "", err
	}

	if isExcelPath(path) {
		wb, err := excelize.OpenFile(resolved)
		if err != nil {
			return "", err
		}
		defer wb.Close()
		sheets := wb.GetSheetList()
		sheetName := wb.GetSheetName(0)
		rows, _ := wb.GetRows(sheetName)
		cols := 0
		if len(rows) > 0 {
			cols = len(rows[0])
		}
		return fmt.Sprintf("File: %s\nType: Excel\nSheets: %s\nRows: %d\nColumns: %d",
			path, strings.Join(sheets, ", "), len(rows), cols), nil
	}

	f, err := os.Open(resolved)
	if err != nil {
		return "", err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	allRows, err := r.ReadAll()
	if err != nil {
		return "", err
	}
	var headers []string
	if len(allRows) > 0 {
		headers = allRows[0]
	}
	return fmt.Sprintf("File: %s\nType: CSV\nHeaders: %s\nRows: %d",
		path, strings.Join(headers, ", "), len(allRows)-1), nil
}
