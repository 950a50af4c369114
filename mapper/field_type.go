// Package mapper turns a stored query into the indexed representation the percolator
// searches: extracted terms, encoded ranges, an extraction-result tag, a
// minimum-should-match doc value and the serialized query itself.
package mapper

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/percolate/candidate"
)

// DefaultFieldName is the default name of the percolator field.
const DefaultFieldName = "query"

// Sub-field suffixes. Each sub-field is named <field>.<suffix>.
const (
	ExtractedTermsSuffix     = "extracted_terms"
	ExtractionResultSuffix   = "extraction_result"
	QueryBuilderSuffix       = "query_builder_field"
	RangeFieldSuffix         = "range_field"
	MinimumShouldMatchSuffix = "minimum_should_match_field"
)

// ExtractionResult tags how far extractions can be trusted.
type ExtractionResult string

const (
	// ExtractionComplete means the extractions decide matching on their own.
	ExtractionComplete ExtractionResult = "complete"
	// ExtractionPartial means the extractions are necessary but a match must be verified.
	ExtractionPartial ExtractionResult = "partial"
	// ExtractionFailed means there are no usable extractions. Such queries are always
	// candidates.
	ExtractionFailed ExtractionResult = candidate.ExtractionFailed
)

// ErrInvalidFieldName is returned by Build for unusable percolator field names.
var ErrInvalidFieldName = errors.New("invalid percolator field name")

// FieldType describes a percolator field and owns the names of its five sub-fields.
// It is immutable.
type FieldType struct {
	name                    string
	extractedTerms          string
	extractionResult        string
	queryBuilder            string
	rangeField              string
	minimumShouldMatch      string
	mapUnmappedFieldsAsText bool
}

// Name returns the percolator field name.
func (ft FieldType) Name() string { return ft.name }

// ExtractedTermsField returns the keyword field holding field\0term entries.
func (ft FieldType) ExtractedTermsField() string { return ft.extractedTerms }

// ExtractionResultField returns the keyword field holding the extraction-result tags.
func (ft FieldType) ExtractionResultField() string { return ft.extractionResult }

// QueryBuilderField returns the binary field holding the serialized query.
func (ft FieldType) QueryBuilderField() string { return ft.queryBuilder }

// RangeField returns the binary range field.
func (ft FieldType) RangeField() string { return ft.rangeField }

// MinimumShouldMatchField returns the numeric doc-values field.
func (ft FieldType) MinimumShouldMatchField() string { return ft.minimumShouldMatch }

// MapUnmappedFieldsAsText reports whether unmapped query fields are treated as text.
func (ft FieldType) MapUnmappedFieldsAsText() bool { return ft.mapUnmappedFieldsAsText }

// CandidateFields returns the fields a candidate query targets.
func (ft FieldType) CandidateFields() candidate.Fields {
	return candidate.Fields{
		ExtractedTerms:     ft.extractedTerms,
		ExtractionResult:   ft.extractionResult,
		Range:              ft.rangeField,
		MinimumShouldMatch: ft.minimumShouldMatch,
	}
}

// Builder accumulates the settings of a FieldType.
type Builder struct {
	name                    string
	mapUnmappedFieldsAsText bool
}

// NewBuilder returns a builder for a percolator field called name.
func NewBuilder(name string) *Builder {
	return &Builder{name: name}
}

// MapUnmappedFieldsAsText sets whether unmapped query fields are treated as text.
func (b *Builder) MapUnmappedFieldsAsText(v bool) *Builder {
	b.mapUnmappedFieldsAsText = v
	return b
}

// Build returns the immutable field type.
func (b *Builder) Build() (FieldType, error) {
	if b.name == "" || strings.IndexByte(b.name, candidate.FieldValueSeparator) >= 0 {
		return FieldType{}, fmt.Errorf("%w: %q", ErrInvalidFieldName, b.name)
	}
	sub := func(suffix string) string { return b.name + "." + suffix }
	return FieldType{
		name:                    b.name,
		extractedTerms:          sub(ExtractedTermsSuffix),
		extractionResult:        sub(ExtractionResultSuffix),
		queryBuilder:            sub(QueryBuilderSuffix),
		rangeField:              sub(RangeFieldSuffix),
		minimumShouldMatch:      sub(MinimumShouldMatchSuffix),
		mapUnmappedFieldsAsText: b.mapUnmappedFieldsAsText,
	}, nil
}
