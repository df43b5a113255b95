package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/OmkarTuptewar/template-generator/internal/core/common"
)

// Catalog maps an entity label to its known surface forms.
// Order fixes the label order used for JSON output and for leak candidate
// tie-breaking; labels present in Values but missing from Order sort after
// the ordered ones, alphabetically.
type Catalog struct {
	Order  []string
	Values map[string][]string
}

// Labels returns the catalog's labels in canonical order.
func (c Catalog) Labels() []string {
	seen := make(map[string]struct{}, len(c.Order))
	out := make([]string, 0, len(c.Values))
	for _, l := range c.Order {
		if _, ok := c.Values[l]; !ok {
			continue
		}
		if _, dup := seen[l]; dup {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	var rest []string
	for l := range c.Values {
		if _, ok := seen[l]; !ok {
			rest = append(rest, l)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// Len is the total number of values across labels.
func (c Catalog) Len() int {
	n := 0
	for _, v := range c.Values {
		n += len(v)
	}
	return n
}

// Clone returns a deep copy.
func (c Catalog) Clone() Catalog {
	out := Catalog{
		Order:  append([]string(nil), c.Order...),
		Values: make(map[string][]string, len(c.Values)),
	}
	for l, v := range c.Values {
		out.Values[l] = append([]string{}, v...)
	}
	return out
}

// MarshalJSON writes the catalog as a JSON object with keys in label order.
func (c Catalog) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, label := range c.Labels() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := common.Marshal(label)
		if err != nil {
			return nil, err
		}
		values := c.Values[label]
		if values == nil {
			values = []string{}
		}
		val, err := common.Marshal(values)
		if err != nil {
			return nil, fmt.Errorf("label %s: %w", label, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a label → array-of-strings object, keeping key order.
// Entries whose value is not an array, and array items that are not strings,
// are skipped.
func (c *Catalog) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("catalog: expected JSON object")
	}
	out := Catalog{Values: make(map[string][]string)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		label, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var items []json.RawMessage
		if trimmed := bytes.TrimSpace(raw); len(trimmed) == 0 || trimmed[0] != '[' {
			continue
		}
		if err := json.Unmarshal(raw, &items); err != nil {
			continue
		}
		if _, ok := out.Values[label]; !ok {
			out.Order = append(out.Order, label)
		}
		for _, item := range items {
			if t := bytes.TrimSpace(item); len(t) == 0 || t[0] != '"' {
				continue
			}
			var s string
			if err := json.Unmarshal(item, &s); err == nil {
				out.Values[label] = append(out.Values[label], s)
			}
		}
		if out.Values[label] == nil {
			out.Values[label] = []string{}
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*c = out
	return nil
}
