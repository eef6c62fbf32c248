package query

import (
	"fmt"
	"strings"
)

// Expr is a SQL fragment with '?' markers and the arguments bound to them.
type Expr struct {
	SQL  string
	Args []any
}

// Raw wraps a fragment and its arguments.
func Raw(sql string, args ...any) Expr { return Expr{SQL: sql, Args: args} }

// Eq matches col against v.
func Eq(col string, v any) Expr { return Expr{SQL: col + " = ?", Args: []any{v}} }

// NotNull matches rows where col has a value.
func NotNull(col string) Expr { return Expr{SQL: col + " IS NOT NULL"} }

// AnyOf joins exprs with OR. An empty group matches nothing.
func AnyOf(exprs ...Expr) Expr {
	if len(exprs) == 0 {
		return Expr{SQL: "1 = 0"}
	}
	parts := make([]string, len(exprs))
	var args []any
	for i, e := range exprs {
		parts[i] = e.SQL
		args = append(args, e.Args...)
	}
	return Expr{SQL: "(" + strings.Join(parts, " OR ") + ")", Args: args}
}

// Contains matches rows whose col contains keyword, ignoring case.
func Contains(d Dialect, col, keyword string) Expr {
	return Expr{SQL: d.ContainsFold(col), Args: []any{d.FoldArg(keyword)}}
}

// LikePattern escapes LIKE metacharacters in s and wraps it for substring matching.
func LikePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// Query is a built statement ready for database/sql.
type Query struct {
	SQL  string
	Args []any
}

// Select accumulates the clauses of a SELECT statement.
type Select struct {
	cols    []Expr
	from    string
	joins   []string
	where   []Expr
	groupBy []string
	orderBy []string
	limit   int
}

// From starts a SELECT over table.
func From(table string) *Select { return &Select{from: table} }

// Columns adds plain columns.
func (s *Select) Columns(cols ...string) *Select {
	for _, c := range cols {
		s.cols = append(s.cols, Expr{SQL: c})
	}
	return s
}

// Column adds a computed column, optionally aliased.
func (s *Select) Column(e Expr, alias string) *Select {
	if alias != "" {
		e.SQL += " AS " + alias
	}
	s.cols = append(s.cols, e)
	return s
}

// Join adds a join clause verbatim, e.g. "JOIN entries e ON e.id = c.entry_id".
func (s *Select) Join(clause string) *Select {
	s.joins = append(s.joins, clause)
	return s
}

// Where adds a predicate; predicates are joined with AND.
func (s *Select) Where(e Expr) *Select {
	s.where = append(s.where, e)
	return s
}

// GroupBy sets the grouping columns.
func (s *Select) GroupBy(cols ...string) *Select {
	s.groupBy = append(s.groupBy, cols...)
	return s
}

// OrderBy appends ordering terms.
func (s *Select) OrderBy(terms ...string) *Select {
	s.orderBy = append(s.orderBy, terms...)
	return s
}

// Limit caps the row count; n <= 0 means no limit.
func (s *Select) Limit(n int) *Select {
	s.limit = n
	return s
}

// Build renders the statement for d.
func (s *Select) Build(d Dialect) (Query, error) {
	if s.from == "" {
		return Query{}, fmt.Errorf("query: select without table")
	}
	if len(s.cols) == 0 {
		return Query{}, fmt.Errorf("query: select without columns")
	}

	var b strings.Builder
	var args []any

	b.WriteString("SELECT ")
	for i, c := range s.cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c.SQL)
		args = append(args, c.Args...)
	}
	b.WriteString(" FROM ")
	b.WriteString(s.from)
	for _, j := range s.joins {
		b.WriteString(" ")
		b.WriteString(j)
	}
	if len(s.where) > 0 {
		b.WriteString(" WHERE ")
		for i, w := range s.where {
			if i > 0 {
				b.WriteString(" AND ")
			}
			b.WriteString(w.SQL)
			args = append(args, w.Args...)
		}
	}
	if len(s.groupBy) > 0 {
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(s.groupBy, ", "))
	}
	if len(s.orderBy) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(s.orderBy, ", "))
	}
	if s.limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, s.limit)
	}

	sql, n := Rebind(d, b.String())
	if n != len(args) {
		return Query{}, fmt.Errorf("query: %d markers but %d arguments", n, len(args))
	}
	return Query{SQL: sql, Args: args}, nil
}

// Rebind replaces '?' markers outside quoted literals with d's placeholders
// and reports how many it replaced.
func Rebind(d Dialect, sql string) (string, int) {
	var b strings.Builder
	b.Grow(len(sql) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteString(d.Placeholder(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), n
}
