package vectorstore

import (
	"reflect"

	"github.com/fyrsmithlabs/ragstore/internal/sanitize"
)

// FilterBuilder provides a fluent interface for building query filters.
type FilterBuilder struct {
	filters map[string]interface{}
}

// NewFilterBuilder creates a new FilterBuilder.
func NewFilterBuilder() *FilterBuilder {
	return &FilterBuilder{
		filters: make(map[string]interface{}),
	}
}

// With requires key to equal value.
func (b *FilterBuilder) With(key string, value interface{}) *FilterBuilder {
	b.filters[key] = value
	return b
}

// WithAny requires key to equal one of values.
func (b *FilterBuilder) WithAny(key string, values ...interface{}) *FilterBuilder {
	b.filters[key] = values
	return b
}

// WithMap merges an existing filter map.
func (b *FilterBuilder) WithMap(m map[string]interface{}) *FilterBuilder {
	for k, v := range m {
		b.filters[k] = v
	}
	return b
}

// Build returns the constructed filter map, or nil when empty.
func (b *FilterBuilder) Build() map[string]interface{} {
	if len(b.filters) == 0 {
		return nil
	}
	return b.filters
}

// MetadataBuilder provides a fluent interface for building document metadata.
type MetadataBuilder struct {
	metadata map[string]interface{}
}

// NewMetadataBuilder creates a new MetadataBuilder.
func NewMetadataBuilder() *MetadataBuilder {
	return &MetadataBuilder{
		metadata: make(map[string]interface{}),
	}
}

// With adds a key-value pair to the metadata.
func (b *MetadataBuilder) With(key string, value interface{}) *MetadataBuilder {
	b.metadata[key] = value
	return b
}

// WithMap merges an existing metadata map.
func (b *MetadataBuilder) WithMap(m map[string]interface{}) *MetadataBuilder {
	for k, v := range m {
		b.metadata[k] = v
	}
	return b
}

// Build returns the sanitized metadata.
func (b *MetadataBuilder) Build() map[string]interface{} {
	return sanitize.Metadata(b.metadata)
}

// matchesFilter reports whether metadata satisfies every filter condition.
//
// Values are compared by their sanitized string form, so 1 matches "1". A
// slice filter value matches when the metadata value equals any element.
// Nil conditions are ignored.
func matchesFilter(metadata map[string]interface{}, filter map[string]interface{}) bool {
	filter = liveConditions(filter)
	if len(filter) == 0 {
		return true
	}
	have := sanitize.MetadataToStrings(metadata)
	for key, want := range filter {
		got, ok := have[key]
		if !ok {
			return false
		}
		if !valueMatches(got, want) {
			return false
		}
	}
	return true
}

func valueMatches(got string, want interface{}) bool {
	rv := reflect.ValueOf(want)
	if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Type().Elem().Kind() != reflect.Uint8 {
		for i := 0; i < rv.Len(); i++ {
			if got == filterString(rv.Index(i).Interface()) {
				return true
			}
		}
		return false
	}
	return got == filterString(want)
}

// liveConditions drops nil conditions, typed nils included. A nil metadata
// value never reaches storage, so a nil condition constrains nothing.
func liveConditions(filter map[string]interface{}) map[string]interface{} {
	var out map[string]interface{}
	for k, v := range filter {
		if isNilValue(v) {
			continue
		}
		if out == nil {
			out = make(map[string]interface{}, len(filter))
		}
		out[k] = v
	}
	return out
}

func isNilValue(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

func filterString(v interface{}) string {
	return sanitize.MetadataToStrings(map[string]interface{}{"v": v})["v"]
}

// equalityFilter flattens a filter to string equality conditions. Slice
// values cannot be expressed as equality and are returned separately so the
// caller can post-filter.
func equalityFilter(filter map[string]interface{}) (where map[string]string, membership map[string]interface{}) {
	filter = liveConditions(filter)
	if len(filter) == 0 {
		return nil, nil
	}
	where = make(map[string]string, len(filter))
	for k, v := range filter {
		rv := reflect.ValueOf(v)
		if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Type().Elem().Kind() != reflect.Uint8 {
			if membership == nil {
				membership = make(map[string]interface{})
			}
			membership[k] = v
			continue
		}
		where[k] = filterString(v)
	}
	if len(where) == 0 {
		where = nil
	}
	return where, membership
}
