package model

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// lotFields is LotRecord without its custom (un)marshalers.
type lotFields LotRecord

// knownLotKeys lists the JSON keys LotRecord names explicitly.
var knownLotKeys = jsonKeys(reflect.TypeOf(lotFields{}))

func jsonKeys(t reflect.Type) map[string]struct{} {
	keys := make(map[string]struct{}, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		name, _, _ := strings.Cut(tag, ",")
		if name == "" || name == "-" {
			continue
		}
		keys[name] = struct{}{}
	}
	return keys
}

// UnmarshalJSON decodes named fields, then sorts every remaining key into
// Annotations ("_" prefix) or Fields.
func (l *LotRecord) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode lot: %w", err)
	}

	var f lotFields
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("decode lot fields: %w", err)
	}
	*l = LotRecord(f)

	for key, value := range raw {
		if IsAnnotationKey(key) {
			var v any
			if err := json.Unmarshal(value, &v); err != nil {
				return fmt.Errorf("decode annotation %s: %w", key, err)
			}
			if l.Annotations == nil {
				l.Annotations = make(map[string]any)
			}
			l.Annotations[key] = v
			continue
		}
		if _, ok := knownLotKeys[key]; ok {
			continue
		}
		if l.Fields == nil {
			l.Fields = make(map[string]json.RawMessage)
		}
		l.Fields[key] = value
	}

	return nil
}

// MarshalJSON writes named fields, pass-through Fields and Annotations as
// one flat object.
func (l LotRecord) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(lotFields(l))
	if err != nil {
		return nil, err
	}
	if len(l.Fields) == 0 && len(l.Annotations) == 0 {
		return base, nil
	}

	var out map[string]json.RawMessage
	if err := json.Unmarshal(base, &out); err != nil {
		return nil, err
	}
	for key, value := range l.Fields {
		if _, ok := out[key]; !ok {
			out[key] = value
		}
	}
	for key, value := range l.Annotations {
		b, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode annotation %s: %w", key, err)
		}
		out[key] = b
	}
	return json.Marshal(out)
}
