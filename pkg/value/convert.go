package value

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"
)

// FromGo builds a Value from plain Go data (the shapes produced by JSON
// decoding and by the template layer). Go maps do not preserve insertion
// order, so keys are sorted for determinism; order-sensitive callers should
// build values through FromYAMLNode or MapSet instead.
func FromGo(x interface{}) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case bool:
		return BoolValue(t)
	case int:
		return IntValue(int64(t))
	case int32:
		return IntValue(int64(t))
	case int64:
		return IntValue(t)
	case uint:
		return IntValue(int64(t))
	case uint32:
		return IntValue(int64(t))
	case uint64:
		return IntValue(int64(t))
	case float32:
		return FloatValue(float64(t))
	case float64:
		return FloatValue(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return IntValue(i)
		}
		f, _ := t.Float64()
		return FloatValue(f)
	case string:
		if t == OmitMarker {
			return Omit()
		}
		return StringValue(t)
	case []byte:
		return BytesValue(t)
	case []interface{}:
		items := make([]Value, len(t))
		for i, e := range t {
			items[i] = FromGo(e)
		}
		return SeqValue(items...)
	case []string:
		items := make([]Value, len(t))
		for i, e := range t {
			items[i] = StringValue(e)
		}
		return SeqValue(items...)
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := NewMap()
		for _, k := range keys {
			m.MapSet(k, FromGo(t[k]))
		}
		return m
	default:
		return StringValue(fmt.Sprint(t))
	}
}

// ToGo converts a Value to plain Go data for the template context. Mapping
// order is lost at this border; the template engine resolves names, not
// positions, once values cross it.
func (v Value) ToGo() interface{} {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindBytes:
		return v.bs
	case KindSeq:
		out := make([]interface{}, len(v.seq))
		for i, e := range v.seq {
			out[i] = e.ToGo()
		}
		return out
	case KindMap:
		out := make(map[string]interface{}, len(v.m.entries))
		for _, e := range v.m.entries {
			out[e.key] = e.val.ToGo()
		}
		return out
	case KindOmit:
		return OmitMarker
	default:
		return nil
	}
}

// FromYAMLNode builds a Value from a decoded yaml.Node, preserving mapping
// insertion order.
func FromYAMLNode(n *yaml.Node) (Value, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return Null(), nil
		}
		return FromYAMLNode(n.Content[0])
	case yaml.AliasNode:
		return FromYAMLNode(n.Alias)
	case yaml.ScalarNode:
		return fromYAMLScalar(n)
	case yaml.SequenceNode:
		items := make([]Value, len(n.Content))
		for i, c := range n.Content {
			item, err := FromYAMLNode(c)
			if err != nil {
				return Value{}, err
			}
			items[i] = item
		}
		return SeqValue(items...), nil
	case yaml.MappingNode:
		m := NewMap()
		for i := 0; i+1 < len(n.Content); i += 2 {
			keyNode := n.Content[i]
			if keyNode.Kind != yaml.ScalarNode {
				return Value{}, fmt.Errorf("line %d: mapping key must be a scalar", keyNode.Line)
			}
			val, err := FromYAMLNode(n.Content[i+1])
			if err != nil {
				return Value{}, err
			}
			m.MapSet(keyNode.Value, val)
		}
		return m, nil
	default:
		return Value{}, fmt.Errorf("line %d: unsupported YAML node kind %d", n.Line, n.Kind)
	}
}

func fromYAMLScalar(n *yaml.Node) (Value, error) {
	switch n.Tag {
	case "!!null", "":
		if n.Tag == "" && n.Value != "" {
			return StringValue(n.Value), nil
		}
		return Null(), nil
	case "!!bool":
		b, err := strconv.ParseBool(n.Value)
		if err != nil {
			return Value{}, fmt.Errorf("line %d: invalid bool %q", n.Line, n.Value)
		}
		return BoolValue(b), nil
	case "!!int":
		i, err := strconv.ParseInt(n.Value, 0, 64)
		if err != nil {
			return Value{}, fmt.Errorf("line %d: invalid int %q", n.Line, n.Value)
		}
		return IntValue(i), nil
	case "!!float":
		f, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			return Value{}, fmt.Errorf("line %d: invalid float %q", n.Line, n.Value)
		}
		return FloatValue(f), nil
	case "!!binary":
		raw, err := base64.StdEncoding.DecodeString(n.Value)
		if err != nil {
			return Value{}, fmt.Errorf("line %d: invalid binary scalar", n.Line)
		}
		return BytesValue(raw), nil
	default:
		if n.Value == OmitMarker {
			return Omit(), nil
		}
		return StringValue(n.Value), nil
	}
}

// ParseYAML parses a YAML document into a Value. An empty document is null.
func ParseYAML(src string) (Value, error) {
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(src), &node); err != nil {
		return Value{}, err
	}
	if node.Kind == 0 {
		return Null(), nil
	}
	return FromYAMLNode(&node)
}

// MarshalJSON implements json.Marshaler. Mappings serialise in insertion
// order; the omit sentinel serialises as its marker string.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindInvalid, KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindInt:
		return json.Marshal(v.i)
	case KindFloat:
		return json.Marshal(v.f)
	case KindString:
		return json.Marshal(v.s)
	case KindBytes:
		return json.Marshal(base64.StdEncoding.EncodeToString(v.bs))
	case KindOmit:
		return json.Marshal(OmitMarker)
	case KindSeq:
		out := []byte{'['}
		for i, e := range v.seq {
			if i > 0 {
				out = append(out, ',')
			}
			b, err := e.MarshalJSON()
			if err != nil {
				return nil, err
			}
			out = append(out, b...)
		}
		return append(out, ']'), nil
	case KindMap:
		out := []byte{'{'}
		for i, e := range v.m.entries {
			if i > 0 {
				out = append(out, ',')
			}
			k, err := json.Marshal(e.key)
			if err != nil {
				return nil, err
			}
			out = append(out, k...)
			out = append(out, ':')
			b, err := e.val.MarshalJSON()
			if err != nil {
				return nil, err
			}
			out = append(out, b...)
		}
		return append(out, '}'), nil
	default:
		return nil, fmt.Errorf("cannot marshal %s value", v.kind)
	}
}

// UnmarshalJSON implements json.Unmarshaler, preserving object key order.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	parsed, err := decodeJSON(dec)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func decodeJSON(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	return decodeJSONToken(dec, tok)
}

func decodeJSONToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return BoolValue(t), nil
	case json.Number:
		return FromGo(t), nil
	case string:
		if t == OmitMarker {
			return Omit(), nil
		}
		return StringValue(t), nil
	case json.Delim:
		switch t {
		case '[':
			var items []Value
			for dec.More() {
				item, err := decodeJSON(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return Value{}, err
			}
			return SeqValue(items...), nil
		case '{':
			m := NewMap()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("object key is not a string: %v", keyTok)
				}
				val, err := decodeJSON(dec)
				if err != nil {
					return Value{}, err
				}
				m.MapSet(key, val)
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return Value{}, err
			}
			return m, nil
		default:
			return Value{}, fmt.Errorf("unexpected delimiter %v", t)
		}
	default:
		return Value{}, fmt.Errorf("unexpected JSON token %v", tok)
	}
}
