// Package compare holds a deep structural comparison for nested
// mappings, sequences and scalars, as produced by graph assembly and
// network stats. It is tolerant about numeric representation so that
// fixtures written by hand compare cleanly against live values.
package compare

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/elementsproject/lnregtest/log"
)

// floatTolerance absorbs platform level floating point rounding in
// aggregate statistics.
const floatTolerance = 1e-6

// Compare recursively compares expected against actual. Mappings must
// have identical key sets (order irrelevant), sequences must match in
// length and position, integers compare exactly across widths and
// signedness, and a floating point expectation compares with a fixed
// tolerance. Strings always compare as strings, numeric looking or not.
//
// With showDiff set, every differing path is reported through the log
// facade; the comparison still visits the whole structure.
func Compare(expected, actual interface{}, showDiff bool) bool {
	c := &comparison{showDiff: showDiff}
	c.compare("", reflect.ValueOf(expected), reflect.ValueOf(actual))
	return c.equal()
}

type comparison struct {
	showDiff   bool
	mismatches int
}

func (c *comparison) equal() bool {
	return c.mismatches == 0
}

func (c *comparison) report(path string, expected, actual interface{}) {
	c.mismatches++
	if c.showDiff {
		if path == "" {
			path = "."
		}
		log.Infof("compare: %s: expected %v, got %v", path, expected, actual)
	}
}

func (c *comparison) compare(path string, expected, actual reflect.Value) {
	expected = indirect(expected)
	actual = indirect(actual)

	if !expected.IsValid() || !actual.IsValid() {
		if expected.IsValid() != actual.IsValid() {
			c.report(path, valueOrNil(expected), valueOrNil(actual))
		}
		return
	}

	// Numeric leaves are handled before any kind check so that e.g. a
	// float64 expectation matches an integer typed actual value.
	if isNumeric(expected) && isNumeric(actual) {
		if !c.numericEqual(expected, actual) {
			c.report(path, expected.Interface(), actual.Interface())
		}
		return
	}

	ek, ak := kindClass(expected), kindClass(actual)
	if ek != ak {
		c.report(path, expected.Interface(), actual.Interface())
		return
	}

	switch ek {
	case classMap:
		c.compareMaps(path, asMap(expected), asMap(actual))
	case classSequence:
		c.compareSequences(path, expected, actual)
	default:
		if !reflect.DeepEqual(expected.Interface(), actual.Interface()) {
			c.report(path, expected.Interface(), actual.Interface())
		}
	}
}

func (c *comparison) compareMaps(path string, expected, actual map[string]reflect.Value) {
	keys := make([]string, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		av, ok := actual[k]
		if !ok {
			c.report(joinPath(path, k), expected[k].Interface(), "<missing>")
			continue
		}
		c.compare(joinPath(path, k), expected[k], av)
	}

	for k := range actual {
		if _, ok := expected[k]; !ok {
			c.report(joinPath(path, k), "<missing>", actual[k].Interface())
		}
	}
}

func (c *comparison) compareSequences(path string, expected, actual reflect.Value) {
	if expected.Len() != actual.Len() {
		c.report(path, fmt.Sprintf("len %d", expected.Len()), fmt.Sprintf("len %d", actual.Len()))
		return
	}
	for i := 0; i < expected.Len(); i++ {
		c.compare(joinPath(path, fmt.Sprintf("%d", i)), expected.Index(i), actual.Index(i))
	}
}

// numericEqual compares two numeric values. If the expectation is a
// float the comparison is tolerant, otherwise it is exact.
func (c *comparison) numericEqual(expected, actual reflect.Value) bool {
	if isFloat(expected) {
		dt := expected.Float() - toFloat(actual)
		return !(dt > floatTolerance) && !(dt < -floatTolerance)
	}
	if isFloat(actual) {
		// Integral expectation against a float actual: the actual
		// must hold the exact integral value.
		return toFloat(expected) == actual.Float()
	}

	eSigned, aSigned := isSignedInt(expected), isSignedInt(actual)
	switch {
	case eSigned && aSigned:
		return expected.Int() == actual.Int()
	case !eSigned && !aSigned:
		return expected.Uint() == actual.Uint()
	case eSigned:
		return expected.Int() >= 0 && uint64(expected.Int()) == actual.Uint()
	default:
		return actual.Int() >= 0 && expected.Uint() == uint64(actual.Int())
	}
}

type class int

const (
	classScalar class = iota
	classMap
	classSequence
)

func kindClass(v reflect.Value) class {
	switch v.Kind() {
	case reflect.Map, reflect.Struct:
		return classMap
	case reflect.Slice, reflect.Array:
		return classSequence
	default:
		return classScalar
	}
}

// asMap views a map or struct as a string keyed map of values. Struct
// fields are keyed by their json tag when one is present.
func asMap(v reflect.Value) map[string]reflect.Value {
	m := map[string]reflect.Value{}
	switch v.Kind() {
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			m[fmt.Sprintf("%v", iter.Key().Interface())] = iter.Value()
		}
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			name := f.Name
			if tag, ok := f.Tag.Lookup("json"); ok {
				tagName := strings.Split(tag, ",")[0]
				if tagName == "-" {
					continue
				}
				if tagName != "" {
					name = tagName
				}
			}
			m[name] = v.Field(i)
		}
	}
	return m
}

func indirect(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Interface || v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func isNumeric(v reflect.Value) bool {
	return isSignedInt(v) || isUnsignedInt(v) || isFloat(v)
}

func isSignedInt(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}

func isUnsignedInt(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func isFloat(v reflect.Value) bool {
	return v.Kind() == reflect.Float32 || v.Kind() == reflect.Float64
}

func toFloat(v reflect.Value) float64 {
	switch {
	case isFloat(v):
		return v.Float()
	case isSignedInt(v):
		return float64(v.Int())
	default:
		return float64(v.Uint())
	}
}

func valueOrNil(v reflect.Value) interface{} {
	if !v.IsValid() {
		return nil
	}
	return v.Interface()
}

func joinPath(path, elem string) string {
	if path == "" {
		return elem
	}
	return path + "." + elem
}

// FormatDict renders a nested structure as indented JSON for log
// output of mappings and assembled graphs.
func FormatDict(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
