package block

import (
	"encoding/json"
	"fmt"

	"github.com/specialistvlad/llmgrid/internal/contenthash"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// ToValue converts a JSON-ready Go value (maps, slices, strings,
// json.Number, float64, bool, nil) into a cty value by way of its canonical
// JSON. Arrays become tuples and objects become object values.
func ToValue(v any) (cty.Value, error) {
	if v == nil {
		return cty.NullVal(cty.DynamicPseudoType), nil
	}
	b, err := contenthash.Canonical(v)
	if err != nil {
		return cty.NilVal, fmt.Errorf("could not encode value as JSON: %w", err)
	}
	return ValueFromJSON(b)
}

// ValueFromJSON decodes raw JSON into a cty value.
func ValueFromJSON(b []byte) (cty.Value, error) {
	ty, err := ctyjson.ImpliedType(b)
	if err != nil {
		return cty.NilVal, fmt.Errorf("could not infer type of JSON value: %w", err)
	}
	v, err := ctyjson.Unmarshal(b, ty)
	if err != nil {
		return cty.NilVal, fmt.Errorf("could not decode JSON value: %w", err)
	}
	return v, nil
}

// FromValue converts a cty value into its JSON-ready Go counterpart. Numbers
// become json.Number holding their exact decimal text, so that encoding the
// result is lossless and stable.
func FromValue(v cty.Value) (any, error) {
	if v == cty.NilVal || v.IsNull() {
		return nil, nil
	}
	if !v.IsKnown() {
		return nil, fmt.Errorf("value is not known")
	}

	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil

	case ty == cty.Number:
		if v.RawEquals(cty.PositiveInfinity) || v.RawEquals(cty.NegativeInfinity) {
			return nil, fmt.Errorf("cannot represent infinity as JSON")
		}
		return json.Number(v.AsBigFloat().Text('f', -1)), nil

	case ty == cty.Bool:
		return v.True(), nil

	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		slice := make([]any, 0, v.LengthInt())
		it := v.ElementIterator()
		for it.Next() {
			_, elem := it.Element()
			native, err := FromValue(elem)
			if err != nil {
				return nil, err
			}
			slice = append(slice, native)
		}
		return slice, nil

	case ty.IsObjectType() || ty.IsMapType():
		m := make(map[string]any, v.LengthInt())
		it := v.ElementIterator()
		for it.Next() {
			key, elem := it.Element()
			native, err := FromValue(elem)
			if err != nil {
				return nil, fmt.Errorf("in attribute '%s': %w", key.AsString(), err)
			}
			m[key.AsString()] = native
		}
		return m, nil

	default:
		return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
	}
}

// ValueJSON returns the canonical JSON encoding of v.
func ValueJSON(v cty.Value) (json.RawMessage, error) {
	native, err := FromValue(v)
	if err != nil {
		return nil, err
	}
	return contenthash.Canonical(native)
}

// objectVal builds an object from attributes, mapping a nil map to the
// empty object.
func objectVal(attrs map[string]cty.Value) cty.Value {
	if len(attrs) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(attrs)
}

// tupleVal builds a tuple, mapping an empty slice to the empty tuple.
func tupleVal(elems []cty.Value) cty.Value {
	if len(elems) == 0 {
		return cty.EmptyTupleVal
	}
	return cty.TupleVal(elems)
}

// stringMapVal turns string pairs into an object.
func stringMapVal(m map[string]string) cty.Value {
	attrs := make(map[string]cty.Value, len(m))
	for k, v := range m {
		attrs[k] = cty.StringVal(v)
	}
	return objectVal(attrs)
}
