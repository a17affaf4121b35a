package query

import (
	"sort"
	"strings"
)

// SchemaCatalog lists the tables and columns a query may reference.
// Names are case-insensitive and stored folded to lower case. A catalog is
// read-only once built; build it with NewSchemaCatalog or AddTable before
// sharing it.
type SchemaCatalog struct {
	tables map[string]map[string]struct{}
}

// NewSchemaCatalog builds a catalog from table name → column names.
func NewSchemaCatalog(tables map[string][]string) *SchemaCatalog {
	c := &SchemaCatalog{tables: make(map[string]map[string]struct{}, len(tables))}
	for t, cols := range tables {
		c.AddTable(t, cols...)
	}
	return c
}

// AddTable registers a table, merging columns if it already exists.
func (c *SchemaCatalog) AddTable(table string, columns ...string) {
	if c.tables == nil {
		c.tables = make(map[string]map[string]struct{})
	}
	key := fold(table)
	cols, ok := c.tables[key]
	if !ok {
		cols = make(map[string]struct{}, len(columns))
		c.tables[key] = cols
	}
	for _, col := range columns {
		cols[fold(col)] = struct{}{}
	}
}

// HasTable reports whether table is known.
func (c *SchemaCatalog) HasTable(table string) bool {
	_, ok := c.tables[fold(table)]
	return ok
}

// HasColumn reports whether table has column.
func (c *SchemaCatalog) HasColumn(table, column string) bool {
	cols, ok := c.tables[fold(table)]
	if !ok {
		return false
	}
	_, ok = cols[fold(column)]
	return ok
}

// Tables returns the sorted table names.
func (c *SchemaCatalog) Tables() []string {
	out := make([]string, 0, len(c.tables))
	for t := range c.tables {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Columns returns the sorted column names of table.
func (c *SchemaCatalog) Columns(table string) []string {
	cols := c.tables[fold(table)]
	out := make([]string, 0, len(cols))
	for col := range cols {
		out = append(out, col)
	}
	sort.Strings(out)
	return out
}

// Map returns a copy of the catalog as table → sorted columns.
func (c *SchemaCatalog) Map() map[string][]string {
	out := make(map[string][]string, len(c.tables))
	for t := range c.tables {
		out[t] = c.Columns(t)
	}
	return out
}

func fold(s string) string { return strings.ToLower(s) }
