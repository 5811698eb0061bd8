// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Role names the purpose a column plays in the knowledge base.
type Role string

const (
	RoleID      Role = "id"
	RoleSearch  Role = "search"
	RoleContent Role = "content"
	RoleFilter  Role = "filter"
	RoleTags    Role = "tags"
)

// ColumnRef references either a single column or a list of columns.
// The zero value references no column.
type ColumnRef struct {
	names    []string
	multiple bool
}

// Single returns a reference to one column.
func Single(name string) ColumnRef {
	return ColumnRef{names: compactNames([]string{name})}
}

// Multiple returns a reference to a list of columns.
func Multiple(names ...string) ColumnRef {
	return ColumnRef{names: compactNames(names), multiple: true}
}

// Names returns the referenced column names. Empty names are never returned.
func (c ColumnRef) Names() []string {
	return append([]string(nil), c.names...)
}

// IsMultiple reports whether the reference was given in list form.
func (c ColumnRef) IsMultiple() bool {
	return c.multiple
}

// IsEmpty reports whether the reference resolves to no column.
func (c ColumnRef) IsEmpty() bool {
	return len(c.names) == 0
}

// String renders the reference as "col" or "[a b]".
func (c ColumnRef) String() string {
	if c.multiple {
		return "[" + strings.Join(c.names, " ") + "]"
	}
	return strings.Join(c.names, "")
}

// UnmarshalJSON accepts a string, a list of strings or null.
func (c *ColumnRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = ColumnRef{}
		return nil
	}
	if len(data) > 0 && data[0] == '[' {
		var names []string
		if err := json.Unmarshal(data, &names); err != nil {
			return fmt.Errorf("column list must contain only strings: %w", err)
		}
		*c = Multiple(names...)
		return nil
	}
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("column must be a string or a list of strings: %w", err)
	}
	*c = Single(name)
	return nil
}

// MarshalJSON renders the reference in the same shape it was given.
func (c ColumnRef) MarshalJSON() ([]byte, error) {
	if c.IsEmpty() && !c.multiple {
		return []byte("null"), nil
	}
	if c.multiple {
		return json.Marshal(c.Names())
	}
	return json.Marshal(c.names[0])
}

func compactNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// RoleMap maps knowledge-base roles to record columns.
type RoleMap struct {
	ID      ColumnRef `json:"id"`
	Search  ColumnRef `json:"search"`
	Content ColumnRef `json:"content"`
	Filter  ColumnRef `json:"filter"`
	Tags    ColumnRef `json:"tags"`
}

// ParseRoleMap parses a JSON object such as
//
//	{"id": "code", "search": ["title", "question"], "tags": "labels"}
//
// and validates it. Any failure wraps ErrConfig.
func ParseRoleMap(data []byte) (RoleMap, error) {
	var m RoleMap
	if len(bytes.TrimSpace(data)) == 0 {
		return m, fmt.Errorf("%w: kb_fields is empty", ErrConfig)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return RoleMap{}, fmt.Errorf("%w: kb_fields: %w", ErrConfig, err)
	}
	if err := ValidateRoleMap(m); err != nil {
		return RoleMap{}, err
	}
	return m, nil
}

// Columns returns the columns bound to role.
func (m RoleMap) Columns(role Role) []string {
	switch role {
	case RoleID:
		return m.ID.Names()
	case RoleSearch:
		return m.Search.Names()
	case RoleContent:
		return m.Content.Names()
	case RoleFilter:
		return m.Filter.Names()
	case RoleTags:
		return m.Tags.Names()
	}
	return nil
}

// RecordID derives the identity of r: the id columns joined with "-".
func (m RoleMap) RecordID(r Record) string {
	cols := m.ID.names
	if len(cols) == 1 {
		return r.Text(cols[0])
	}
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = r.Text(c)
	}
	return strings.Join(parts, "-")
}
