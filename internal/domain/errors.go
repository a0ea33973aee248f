package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Error taxonomy shared by every layer.
var (
	// ErrConfig indicates missing or invalid configuration. Never retried.
	ErrConfig = errors.New("configuration error")

	// ErrDataQuality indicates source rows that cannot become documents.
	ErrDataQuality = errors.New("data quality error")

	// ErrInvalidInput indicates malformed arguments to an operation.
	ErrInvalidInput = errors.New("invalid input")
)

// ConfigError lists every missing or invalid configuration field.
type ConfigError struct {
	Scope   string
	Missing []string
}

func (e *ConfigError) Error() string {
	if e.Scope == "" {
		return fmt.Sprintf("%s: missing %s", ErrConfig, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("%s: %s: missing %s", ErrConfig, e.Scope, strings.Join(e.Missing, ", "))
}

func (e *ConfigError) Unwrap() error { return ErrConfig }

// DataQualityError names the required fields that were absent and the
// 1-based row numbers where they were absent.
type DataQualityError struct {
	Fields []string
	Rows   []int
}

func (e *DataQualityError) Error() string {
	rows := make([]string, 0, len(e.Rows))
	for i, r := range e.Rows {
		if i == 10 {
			rows = append(rows, fmt.Sprintf("... (%d more)", len(e.Rows)-10))
			break
		}
		rows = append(rows, strconv.Itoa(r))
	}
	return fmt.Sprintf("%s: missing required field(s) [%s] in row(s) %s",
		ErrDataQuality, strings.Join(e.Fields, ", "), strings.Join(rows, ", "))
}

func (e *DataQualityError) Unwrap() error { return ErrDataQuality }
