//go:build test

package testutils

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/mcuadros/go-defaults"
	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"

	"github.com/srg/joyc/internal/device"
)

// PresencePlaceholder, used as an expected value, asserts that the key exists
// without pinning what it holds. Useful for timestamps and sequence counters.
const PresencePlaceholder = "<<PRESENCE>>"

// MustJSON marshals v, panicking on failure. Meant for inlining values into
// JSON test fixtures.
func MustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("MustJSON: marshal %T: %v", v, err))
	}
	return string(data)
}

// JSONAssertOptions controls how far Assert bends strict equality.
type JSONAssertOptions struct {
	IgnoreExtraKeys          bool `default:"true"`
	NilToEmptyArray          bool `default:"true"`
	AllowPresencePlaceholder bool `default:"true"`
	CompareOnlyExpectedKeys  bool `default:"false"`
	IgnoreArrayOrder         bool `default:"false"`

	IgnoredFields []string
}

// Option configures a JSONAsserter.
type Option func(*JSONAssertOptions)

// WithIgnoreExtraKeys sets whether keys present only in the actual document
// are ignored.
func WithIgnoreExtraKeys(ignore bool) Option {
	return func(o *JSONAssertOptions) {
		o.IgnoreExtraKeys = ignore
	}
}

// WithNilToEmptyArray sets whether null and [] are treated as the same value.
func WithNilToEmptyArray(normalize bool) Option {
	return func(o *JSONAssertOptions) {
		o.NilToEmptyArray = normalize
	}
}

// WithAllowPresencePlaceholder sets whether PresencePlaceholder values are
// resolved before comparison.
func WithAllowPresencePlaceholder(allow bool) Option {
	return func(o *JSONAssertOptions) {
		o.AllowPresencePlaceholder = allow
	}
}

// WithCompareOnlyExpectedKeys restricts the comparison to keys named in the
// expected document.
func WithCompareOnlyExpectedKeys(enable bool) Option {
	return func(o *JSONAssertOptions) {
		o.CompareOnlyExpectedKeys = enable
	}
}

// WithIgnoredFields names keys to drop from both documents at every nesting
// level before comparison.
func WithIgnoredFields(fields ...string) Option {
	return func(o *JSONAssertOptions) {
		o.IgnoredFields = fields
	}
}

// WithIgnoreArrayOrder sets whether array elements are compared as sets
// rather than sequences.
func WithIgnoreArrayOrder(ignore bool) Option {
	return func(o *JSONAssertOptions) {
		o.IgnoreArrayOrder = ignore
	}
}

// JSONAsserter compares JSON documents structurally and reports mismatches as
// a readable diff instead of two multiline blobs.
type JSONAsserter struct {
	t       *testing.T
	options JSONAssertOptions
}

// NewJSONAsserter creates an asserter with the tag-declared defaults.
func NewJSONAsserter(t *testing.T) *JSONAsserter {
	var opts JSONAssertOptions
	defaults.SetDefaults(&opts)
	return &JSONAsserter{t: t, options: opts}
}

// WithOptions applies functional options and returns the asserter for
// chaining.
func (ja *JSONAsserter) WithOptions(opts ...Option) *JSONAsserter {
	for _, apply := range opts {
		apply(&ja.options)
	}
	return ja
}

// Assert fails the test with a diff when actualJSON does not match
// expectedJSON under the configured options.
func (ja *JSONAsserter) Assert(actualJSON, expectedJSON string) {
	if diff := ja.diff(actualJSON, expectedJSON); diff != "" {
		ja.t.Errorf("JSON assertion failed:\n%s", diff)
	}
}

// AssertDevice compares the DeviceToJSON projection of dev against
// expectedJSON.
func (ja *JSONAsserter) AssertDevice(dev device.Device, expectedJSON string) {
	ja.Assert(DeviceToJSON(dev), expectedJSON)
}

func (ja *JSONAsserter) diff(actualJSON, expectedJSON string) string {
	var expected, actual any
	if err := json.Unmarshal([]byte(expectedJSON), &expected); err != nil {
		return "invalid expected JSON: " + err.Error()
	}
	if err := json.Unmarshal([]byte(actualJSON), &actual); err != nil {
		return "invalid actual JSON: " + err.Error()
	}

	// gojsondiff only compares objects, so top-level arrays ride in a wrapper.
	if _, ok := expected.([]any); ok {
		if _, ok := actual.([]any); ok {
			expected = map[string]any{"array": expected}
			actual = map[string]any{"array": actual}
		}
	}

	if ja.options.AllowPresencePlaceholder {
		resolvePlaceholders(expected, actual)
	}
	if ja.options.NilToEmptyArray {
		alignEmptyArrays(expected, actual)
	}

	// Ignored fields have to go before the order-insensitive sort: they are
	// part of the marshal-based sort key and would scatter otherwise equal
	// elements.
	if len(ja.options.IgnoredFields) > 0 {
		stripFields(expected, ja.options.IgnoredFields)
		stripFields(actual, ja.options.IgnoredFields)
	}
	if ja.options.IgnoreArrayOrder {
		canonicalizeArrays(expected)
		canonicalizeArrays(actual)
	}
	// Both pruning options funnel into the same walk.
	if ja.options.IgnoreExtraKeys || ja.options.CompareOnlyExpectedKeys {
		dropUnexpectedKeys(actual, expected)
	}

	expectedBytes, _ := json.Marshal(expected)
	actualBytes, _ := json.Marshal(actual)

	d, err := gojsondiff.New().Compare(expectedBytes, actualBytes)
	if err != nil {
		return fmt.Sprintf("JSON comparison failed: %v", err)
	}
	if !d.Modified() {
		return ""
	}

	out, _ := formatter.NewAsciiFormatter(expected, formatter.AsciiFormatterConfig{
		ShowArrayIndex: true,
	}).Format(d)
	return out
}

// resolvePlaceholders substitutes each expected PresencePlaceholder with the
// matching actual value so the later diff only checks that the key exists.
func resolvePlaceholders(expected, actual any) {
	switch exp := expected.(type) {
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok {
			return
		}
		for k, v := range exp {
			if s, ok := v.(string); ok && s == PresencePlaceholder {
				exp[k] = act[k]
				continue
			}
			resolvePlaceholders(v, act[k])
		}
	case []any:
		act, ok := actual.([]any)
		if !ok {
			return
		}
		for i := range exp {
			if i >= len(act) {
				break
			}
			if s, ok := exp[i].(string); ok && s == PresencePlaceholder {
				exp[i] = act[i]
				continue
			}
			resolvePlaceholders(exp[i], act[i])
		}
	}
}

// alignEmptyArrays rewrites null to [] on whichever side lacks the value, but
// only when the other side is null or an empty array. A null against a
// populated array stays a mismatch.
func alignEmptyArrays(expected, actual any) {
	switch exp := expected.(type) {
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok {
			return
		}
		for k := range exp {
			if normalizablePair(exp[k], act[k]) {
				exp[k] = []any{}
				act[k] = []any{}
				continue
			}
			alignEmptyArrays(exp[k], act[k])
		}
	case []any:
		act, ok := actual.([]any)
		if !ok {
			return
		}
		for i := range exp {
			if i >= len(act) {
				break
			}
			if normalizablePair(exp[i], act[i]) {
				exp[i] = []any{}
				act[i] = []any{}
				continue
			}
			alignEmptyArrays(exp[i], act[i])
		}
	}
}

func normalizablePair(exp, act any) bool {
	emptyArray := func(v any) bool {
		arr, ok := v.([]any)
		return ok && len(arr) == 0
	}
	if exp == nil && act == nil {
		return true
	}
	if exp == nil {
		return emptyArray(act)
	}
	if act == nil {
		return emptyArray(exp)
	}
	return false
}

// stripFields removes the named keys at every level of doc.
func stripFields(doc any, fields []string) {
	switch v := doc.(type) {
	case map[string]any:
		for _, f := range fields {
			delete(v, f)
		}
		for _, nested := range v {
			stripFields(nested, fields)
		}
	case []any:
		for _, elem := range v {
			stripFields(elem, fields)
		}
	}
}

// canonicalizeArrays sorts every array by the marshaled form of its elements.
// Nested structures are canonicalized first so they contribute stable sort
// keys.
func canonicalizeArrays(doc any) {
	switch v := doc.(type) {
	case map[string]any:
		for _, nested := range v {
			canonicalizeArrays(nested)
		}
	case []any:
		for _, elem := range v {
			canonicalizeArrays(elem)
		}
		slices.SortFunc(v, func(x, y any) int {
			a, _ := json.Marshal(x)
			b, _ := json.Marshal(y)
			return strings.Compare(string(a), string(b))
		})
	}
}

// dropUnexpectedKeys deletes keys from actual that the expected document
// never mentions, walking the two structures in parallel.
func dropUnexpectedKeys(actual, expected any) {
	switch exp := expected.(type) {
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok {
			return
		}
		for k := range act {
			if _, known := exp[k]; !known {
				delete(act, k)
			}
		}
		for k := range exp {
			dropUnexpectedKeys(act[k], exp[k])
		}
	case []any:
		act, ok := actual.([]any)
		if !ok {
			return
		}
		for i := range exp {
			if i >= len(act) {
				break
			}
			dropUnexpectedKeys(act[i], exp[i])
		}
	}
}
