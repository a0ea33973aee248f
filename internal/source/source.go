// Package source reads product review tables into raw records.
package source

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"reviewrag/internal/domain"
	"reviewrag/internal/logger"
)

// Required column names, as published in the Flipkart review dataset.
const (
	ColumnTitle   = "product_title"
	ColumnRating  = "rating"
	ColumnSummary = "summary"
	ColumnReview  = "review"
)

var requiredColumns = []string{ColumnTitle, ColumnRating, ColumnSummary, ColumnReview}

// Load reads the table at path. The format is chosen by file extension:
// .xlsx is read as a spreadsheet, anything else as CSV.
func Load(ctx context.Context, path string) ([]domain.RawRecord, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		rows, err = readXLSX(path)
	default:
		rows, err = readCSV(path)
	}
	if err != nil {
		return nil, err
	}
	records, err := parseTable(rows)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", path, err)
	}
	logger.FromContext(ctx).Info("source.loaded", "path", path, "rows", len(records))
	return records, nil
}

// parseTable maps a header row plus data rows onto records. Columns are
// located by name so extra columns (for example a leading product_id) and
// any ordering are tolerated.
func parseTable(rows [][]string) ([]domain.RawRecord, error) {
	if len(rows) == 0 {
		return nil, &domain.ConfigError{Scope: "source columns", Missing: requiredColumns}
	}
	index := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &domain.ConfigError{Scope: "source columns", Missing: missing}
	}

	records := make([]domain.RawRecord, 0, len(rows)-1)
	var badRating []int
	for n, row := range rows[1:] {
		if isBlankRow(row) {
			continue
		}
		rating, ok := parseRating(strings.TrimSpace(cell(row, index[ColumnRating])))
		if !ok {
			badRating = append(badRating, n+1)
		}
		records = append(records, domain.RawRecord{
			Title:   strings.TrimSpace(cell(row, index[ColumnTitle])),
			Rating:  rating,
			Summary: strings.TrimSpace(cell(row, index[ColumnSummary])),
			Review:  cell(row, index[ColumnReview]),
			Line:    n + 1,
		})
	}
	if len(badRating) > 0 {
		return nil, &domain.DataQualityError{Fields: []string{ColumnRating}, Rows: badRating}
	}
	return records, nil
}

// cell returns the raw cell value. Review text is hashed byte for byte,
// so trimming is left to the callers that want it.
func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// parseRating accepts an empty cell as an unrated row.
func parseRating(raw string) (float64, bool) {
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
