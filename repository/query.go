/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package repository

import (
	"reflect"

	"github.com/tomoncle/repokit/types"
	"github.com/uptrace/bun"
)

// Filter narrows a select query. A nil Filter leaves the query unchanged.
type Filter func(q *bun.SelectQuery) *bun.SelectQuery

func (f Filter) apply(q *bun.SelectQuery) *bun.SelectQuery {
	if f == nil {
		return q
	}
	return f(q)
}

// grouped applies f inside a parenthesized WHERE group joined with AND, so
// an OR in f cannot widen conditions added before it.
func (f Filter) grouped(q *bun.SelectQuery) *bun.SelectQuery {
	if f == nil {
		return q
	}
	return q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
		return f(q)
	})
}

// Where returns a filter adding a WHERE condition, e.g. Where("status = ?", "open").
func Where(query string, args ...interface{}) Filter {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where(query, args...)
	}
}

// FromQueryFilter adapts a types.QueryFilter. A nil filter matches everything.
func FromQueryFilter(f *types.QueryFilter) Filter {
	if f == nil || f.Schema == "" {
		return nil
	}
	return Where(f.Schema, f.Args...)
}

// And applies every filter in order.
func And(filters ...Filter) Filter {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		for _, f := range filters {
			q = f.apply(q)
		}
		return q
	}
}

// Projector sets the columns a query selects.
type Projector interface {
	Project(q *bun.SelectQuery) *bun.SelectQuery
}

type columnExpr struct {
	query string
	args  []interface{}
}

// Projection selects columns that are scanned into P. Rows are matched to P
// by the bun column names of its fields.
type Projection[P any] struct {
	columns []string
	exprs   []columnExpr
}

var _ Projector = Projection[struct{}]{}

// Project selects the given columns. Without columns it selects one column
// per field of P, so Project[T]() on a repository of T is the identity
// projection.
func Project[P any](columns ...string) Projection[P] {
	return Projection[P]{columns: columns}
}

// WithExpr adds a computed column, e.g. WithExpr("upper(?) AS label", bun.Ident("name")).
func (p Projection[P]) WithExpr(query string, args ...interface{}) Projection[P] {
	exprs := make([]columnExpr, len(p.exprs), len(p.exprs)+1)
	copy(exprs, p.exprs)
	p.exprs = append(exprs, columnExpr{query: query, args: args})
	return p
}

func (p Projection[P]) Project(q *bun.SelectQuery) *bun.SelectQuery {
	columns := p.columns
	if len(columns) == 0 && len(p.exprs) == 0 {
		table := q.DB().Dialect().Tables().Get(reflect.TypeOf((*P)(nil)).Elem())
		for _, f := range table.Fields {
			columns = append(columns, f.Name)
		}
	}
	if len(columns) > 0 {
		q = q.Column(columns...)
	}
	for _, e := range p.exprs {
		q = q.ColumnExpr(e.query, e.args...)
	}
	return q
}
