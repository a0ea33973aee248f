// Package normalizer turns raw review rows into content-addressed documents.
package normalizer

import (
	"crypto/md5"
	"encoding/hex"
	"strings"

	"reviewrag/internal/domain"
)

// FieldReview is the only column a row cannot do without.
const FieldReview = "review"

// ID returns the document identifier for a review: the hex MD5 digest of
// its UTF-8 bytes. Identical review text always maps to the same ID.
func ID(review string) string {
	sum := md5.Sum([]byte(review))
	return hex.EncodeToString(sum[:])
}

// Transform converts rows into documents, one per row. If any row lacks
// review content the whole batch is rejected and no documents are returned.
// Offending rows are reported by their source line when known, otherwise
// by 1-based position.
func Transform(rows []domain.RawRecord) ([]domain.Document, error) {
	var bad []int
	for i := range rows {
		if strings.TrimSpace(rows[i].Review) == "" {
			line := rows[i].Line
			if line <= 0 {
				line = i + 1
			}
			bad = append(bad, line)
		}
	}
	if len(bad) > 0 {
		return nil, &domain.DataQualityError{Fields: []string{FieldReview}, Rows: bad}
	}
	docs := make([]domain.Document, len(rows))
	for i, row := range rows {
		docs[i] = domain.Document{
			ID:      ID(row.Review),
			Content: row.Review,
			Metadata: domain.Metadata{
				Title:   row.Title,
				Rating:  row.Rating,
				Summary: row.Summary,
			},
		}
	}
	return docs, nil
}
