package workspace

import (
	"encoding/json"
	"sort"
)

// PropertyType is the subset of remote property types the mapping uses.
type PropertyType string

const (
	TypeTitle  PropertyType = "title"
	TypeSelect PropertyType = "select"
	TypeDate   PropertyType = "date"
	TypeOther  PropertyType = "other"
)

// Property describes one database property. Options is set for select
// properties only.
type Property struct {
	Type    PropertyType
	Options []string
}

// Schema is a snapshot of a remote database's properties keyed by name.
type Schema struct {
	Properties map[string]Property
}

// Names returns the property names of type t in sorted order. TypeOther
// matches nothing.
func (s *Schema) Names(t PropertyType) []string {
	var names []string
	for name, p := range s.Properties {
		if p.Type == t && t != TypeOther {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// SelectOptions lists the options of a select property in schema order.
func (s *Schema) SelectOptions(name string) []string {
	p, ok := s.Properties[name]
	if !ok || p.Type != TypeSelect {
		return nil
	}
	return append([]string(nil), p.Options...)
}

type rawSchema struct {
	Properties map[string]struct {
		Type   string `json:"type"`
		Select *struct {
			Options []struct {
				Name string `json:"name"`
			} `json:"options"`
		} `json:"select"`
	} `json:"properties"`
}

func parseSchema(data []byte) (*Schema, error) {
	var raw rawSchema
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	s := &Schema{Properties: make(map[string]Property, len(raw.Properties))}
	for name, rp := range raw.Properties {
		p := Property{Type: TypeOther}
		switch PropertyType(rp.Type) {
		case TypeTitle:
			p.Type = TypeTitle
		case TypeDate:
			p.Type = TypeDate
		case TypeSelect:
			p.Type = TypeSelect
			if rp.Select != nil {
				for _, o := range rp.Select.Options {
					p.Options = append(p.Options, o.Name)
				}
			}
		}
		s.Properties[name] = p
	}
	return s, nil
}
