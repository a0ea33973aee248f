package domain

// RawRecord is one row of the product review table as read from the source.
type RawRecord struct {
	Title   string
	Rating  float64
	Summary string
	Review  string
	// Line is the 1-based data row in the source, header excluded. Zero
	// when the record did not come from a table.
	Line int
}

// Metadata is carried alongside a document but never embedded or searched.
type Metadata struct {
	Title   string
	Rating  float64
	Summary string
}

// Document is a knowledge unit: review content identified by its content hash.
type Document struct {
	ID       string
	Content  string
	Metadata Metadata
}

// SearchResult represents a matching document with a relevance score.
type SearchResult struct {
	Document Document
	Score    float64
}

// Metadata keys used when a document is persisted to a vector store.
const (
	MetaProductName    = "product_name"
	MetaProductRating  = "product_rating"
	MetaProductSummary = "product_summary"
)

// Map flattens metadata into the key set stored with each vector.
func (m Metadata) Map() map[string]any {
	return map[string]any{
		MetaProductName:    m.Title,
		MetaProductRating:  m.Rating,
		MetaProductSummary: m.Summary,
	}
}

// MetadataFromMap rebuilds metadata from a stored payload. Unknown or
// mistyped values are left at their zero value.
func MetadataFromMap(raw map[string]any) Metadata {
	var m Metadata
	if v, ok := raw[MetaProductName].(string); ok {
		m.Title = v
	}
	if v, ok := raw[MetaProductSummary].(string); ok {
		m.Summary = v
	}
	switch v := raw[MetaProductRating].(type) {
	case float64:
		m.Rating = v
	case float32:
		m.Rating = float64(v)
	case int:
		m.Rating = float64(v)
	case int64:
		m.Rating = float64(v)
	}
	return m
}
