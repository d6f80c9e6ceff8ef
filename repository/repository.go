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
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/tomoncle/repokit/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"
	"github.com/uptrace/bun/schema"
)

type options struct {
	fixed Filter
}

// Option configures a Repository.
type Option func(*options)

// WithFixedConditions sets a filter applied to every select, query and paged
// read of the repository, e.g. tenant scoping or hiding soft-deleted rows.
// Find and All never apply it.
func WithFixedConditions(f Filter) Option {
	return func(o *options) { o.fixed = f }
}

// Repository is a generic data-access facade for the bun model T keyed by K.
// It borrows a UnitOfWork and never closes it. Like the unit of work it is
// not safe for concurrent use.
type Repository[T any, K types.Key] struct {
	uow   *UnitOfWork
	table *schema.Table
	pk    *schema.Field
	fixed Filter
}

// New returns a repository over uow. T must be a bun model struct with
// exactly one primary key column.
func New[T any, K types.Key](uow *UnitOfWork, opts ...Option) (*Repository[T, K], error) {
	if uow == nil {
		return nil, ErrNoUnitOfWork
	}
	typ := reflect.TypeFor[T]()
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidEntity, typ)
	}
	table := uow.DB().Dialect().Tables().Get(typ)
	if len(table.PKs) != 1 {
		return nil, fmt.Errorf("%w: %s has %d", ErrNoPrimaryKey, table.TypeName, len(table.PKs))
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return &Repository[T, K]{uow: uow, table: table, pk: table.PKs[0], fixed: o.fixed}, nil
}

// MustNew is like New but panics on error.
func MustNew[T any, K types.Key](uow *UnitOfWork, opts ...Option) *Repository[T, K] {
	r, err := New[T, K](uow, opts...)
	if err != nil {
		panic(err)
	}
	return r
}

// WithUnitOfWork returns a copy of the repository bound to uow, typically a
// transaction-bound unit of work from UnitOfWork.RunInTx.
func (r *Repository[T, K]) WithUnitOfWork(uow *UnitOfWork) *Repository[T, K] {
	c := *r
	c.uow = uow
	return &c
}

func (r *Repository[T, K]) UnitOfWork() *UnitOfWork { return r.uow }

// Table returns the bun table metadata of T.
func (r *Repository[T, K]) Table() *schema.Table { return r.table }

func (r *Repository[T, K]) db() bun.IDB { return r.uow.DB() }

// Find returns the entity with the given key, or nil without error when no
// row has it. The entity is attached to the unit of work.
func (r *Repository[T, K]) Find(ctx context.Context, key K) (*T, error) {
	entity := new(T)
	err := r.db().NewSelect().
		Model(entity).
		Where("?TableAlias.? = ?", bun.Ident(r.pk.Name), key).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := r.uow.Attach(entity); err != nil {
		return nil, err
	}
	return entity, nil
}

// All returns every row ordered by primary key.
func (r *Repository[T, K]) All(ctx context.Context) ([]*T, error) {
	entities := make([]*T, 0)
	err := r.db().NewSelect().
		Model(&entities).
		OrderExpr("?TableAlias.? ASC", bun.Ident(r.pk.Name)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return entities, r.attachAll(entities)
}

// Add inserts entity and returns it with store-assigned columns populated.
// The entity is attached to the unit of work.
func (r *Repository[T, K]) Add(ctx context.Context, entity *T) (*T, error) {
	if entity == nil {
		return nil, fmt.Errorf("%w: nil %T", ErrInvalidEntity, entity)
	}
	q := r.db().NewInsert().Model(entity)
	if r.db().Dialect().Features().Has(feature.InsertReturning) {
		q = q.Returning("*")
	}
	if _, err := q.Exec(ctx); err != nil {
		return nil, err
	}
	if err := r.uow.Attach(entity); err != nil {
		return nil, err
	}
	return entity, nil
}

// AddRange inserts entities in one statement and attaches them.
func (r *Repository[T, K]) AddRange(ctx context.Context, entities ...*T) ([]*T, error) {
	if len(entities) == 0 {
		return entities, nil
	}
	q := r.db().NewInsert().Model(&entities)
	if r.db().Dialect().Features().Has(feature.InsertReturning) {
		q = q.Returning("*")
	}
	if _, err := q.Exec(ctx); err != nil {
		return nil, err
	}
	return entities, r.attachAll(entities)
}

// Update saves the pending changes of the unit of work. entity must already
// be tracked, either because it was read or added through a repository or
// because the caller attached it; otherwise ErrNotTracked is returned.
// Change detection is switched on for the save and is always left off.
func (r *Repository[T, K]) Update(ctx context.Context, entity *T) (*T, error) {
	restore := r.uow.EnableChangeDetection()
	defer restore()
	if entity == nil || !r.uow.Tracked(entity) {
		return nil, fmt.Errorf("%w: %T", ErrNotTracked, entity)
	}
	if _, err := r.uow.SaveChanges(ctx); err != nil {
		return nil, err
	}
	return entity, nil
}

// RemoveByKey deletes the entity with the given key. It returns an error
// wrapping ErrNotFound when there is none.
func (r *Repository[T, K]) RemoveByKey(ctx context.Context, key K) error {
	entity, err := r.Find(ctx, key)
	if err != nil {
		return err
	}
	if entity == nil {
		return fmt.Errorf("%w: %s %v", ErrNotFound, r.table.TypeName, key)
	}
	_, err = r.Remove(ctx, entity)
	return err
}

// Remove deletes entity by primary key and detaches it. It returns false and
// an error wrapping ErrNotFound when no row was deleted.
func (r *Repository[T, K]) Remove(ctx context.Context, entity *T) (bool, error) {
	if entity == nil {
		return false, fmt.Errorf("%w: nil %T", ErrInvalidEntity, entity)
	}
	res, err := r.db().NewDelete().Model(entity).WherePK().Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		key := r.pk.Value(reflect.ValueOf(entity).Elem()).Interface()
		return false, fmt.Errorf("%w: %s %v", ErrNotFound, r.table.TypeName, key)
	}
	r.uow.Detach(entity)
	return true, nil
}

// Upsert inserts entities, updating columns of rows whose conflict columns
// already exist. conflict defaults to the primary key and is ignored on
// MySQL, which resolves conflicts on any unique key.
func (r *Repository[T, K]) Upsert(ctx context.Context, columns []string, conflict []string, entities ...*T) error {
	if len(columns) == 0 {
		return fmt.Errorf("repository: upsert columns cannot be empty")
	}
	if len(entities) == 0 {
		return nil
	}
	for _, c := range append(append([]string{}, columns...), conflict...) {
		if _, ok := r.table.FieldMap[c]; !ok {
			return fmt.Errorf("%w: %s.%s", ErrUnknownColumn, r.table.TypeName, c)
		}
	}
	q := r.db().NewInsert().Model(&entities)
	switch {
	case r.db().Dialect().Features().Has(feature.InsertOnConflict):
		if len(conflict) == 0 {
			conflict = []string{r.pk.Name}
		}
		q = q.On("CONFLICT ("+placeholders(len(conflict))+") DO UPDATE", idents(conflict)...)
		for _, c := range columns {
			q = q.Set("? = EXCLUDED.?", bun.Ident(c), bun.Ident(c))
		}
	case r.db().Dialect().Features().Has(feature.InsertOnDuplicateKey):
		q = q.On("DUPLICATE KEY UPDATE")
		for _, c := range columns {
			q = q.Set("? = VALUES(?)", bun.Ident(c), bun.Ident(c))
		}
	default:
		return fmt.Errorf("repository: dialect %s does not support upsert", r.db().Dialect().Name())
	}
	_, err := q.Exec(ctx)
	return err
}

// AddFixedConditions applies the fixed conditions to q as one WHERE group.
// Without WithFixedConditions it returns q unchanged.
func (r *Repository[T, K]) AddFixedConditions(q *bun.SelectQuery) *bun.SelectQuery {
	return r.fixed.grouped(q)
}

// Query returns a lazily evaluated select over T with fixed conditions and
// filter applied, each in its own WHERE group joined with AND. Callers may
// add clauses before scanning it; a later WhereOr is theirs to group.
func (r *Repository[T, K]) Query(filter Filter) *bun.SelectQuery {
	q := r.db().NewSelect().Model((*T)(nil))
	return filter.grouped(r.AddFixedConditions(q))
}

// QueryProjected is Query with a projection and no filter.
func (r *Repository[T, K]) QueryProjected(p Projector) *bun.SelectQuery {
	return r.QueryBy(nil, p)
}

// QueryBy is Query followed by a projection.
func (r *Repository[T, K]) QueryBy(filter Filter, p Projector) *bun.SelectQuery {
	q := r.Query(filter)
	if p != nil {
		q = p.Project(q)
	}
	return q
}

// SelectBy returns the entities matching filter under the fixed conditions,
// ordered by primary key, and attaches them.
func (r *Repository[T, K]) SelectBy(ctx context.Context, filter Filter) ([]*T, error) {
	entities := make([]*T, 0)
	err := r.Query(filter).
		OrderExpr("?TableAlias.? ASC", bun.Ident(r.pk.Name)).
		Scan(ctx, &entities)
	if err != nil {
		return nil, err
	}
	return entities, r.attachAll(entities)
}

// SelectPagedBy returns one page of the entities matching filter. The total
// counts every match under the fixed conditions. Page entities are attached.
func (r *Repository[T, K]) SelectPagedBy(ctx context.Context, settings PaginationSettings[T], filter Filter) (*types.PagedResult[T], error) {
	page, err := selectPaged[T, K, T](ctx, r, settings, r.Query(filter))
	if err != nil {
		return nil, err
	}
	return page, r.attachAll(page.Items)
}

// SortKey declares a sort key for column, given as SQL column name or Go
// field name. It returns ErrUnknownSortKey for anything else.
func (r *Repository[T, K]) SortKey(column string) (SortKey[T], error) {
	if f, ok := r.table.FieldMap[column]; ok {
		return SortKey[T]{column: f.Name}, nil
	}
	for _, f := range r.table.Fields {
		if f.GoName == column {
			return SortKey[T]{column: f.Name}, nil
		}
	}
	return SortKey[T]{}, fmt.Errorf("%w: %s.%s", ErrUnknownSortKey, r.table.TypeName, column)
}

// MustSortKey is like SortKey but panics on error. It suits package-level
// key declarations.
func (r *Repository[T, K]) MustSortKey(column string) SortKey[T] {
	k, err := r.SortKey(column)
	if err != nil {
		panic(err)
	}
	return k
}

// orderBy orders q by the settings' key, then by primary key so that pages
// are stable when the key has duplicates.
func (r *Repository[T, K]) orderBy(q *bun.SelectQuery, settings PaginationSettings[T]) *bun.SelectQuery {
	dir := settings.Direction.String()
	column := settings.OrderBy.Column()
	if column == "" {
		column = r.pk.Name
	}
	q = q.OrderExpr("?TableAlias.? "+dir, bun.Ident(column))
	if column != r.pk.Name {
		q = q.OrderExpr("?TableAlias.? "+dir, bun.Ident(r.pk.Name))
	}
	return q
}

func (r *Repository[T, K]) attachAll(entities []*T) error {
	for _, e := range entities {
		if err := r.uow.Attach(e); err != nil {
			return err
		}
	}
	return nil
}

// SelectProjected projects every row under the fixed conditions into P.
func SelectProjected[T any, K types.Key, P any](ctx context.Context, r *Repository[T, K], p Projection[P]) ([]*P, error) {
	return SelectByProjected(ctx, r, nil, p)
}

// SelectByProjected projects the rows matching filter under the fixed
// conditions into P, ordered by primary key.
func SelectByProjected[T any, K types.Key, P any](ctx context.Context, r *Repository[T, K], filter Filter, p Projection[P]) ([]*P, error) {
	items := make([]*P, 0)
	err := r.QueryBy(filter, p).
		OrderExpr("?TableAlias.? ASC", bun.Ident(r.pk.Name)).
		Scan(ctx, &items)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// SelectPagedByProjected returns one page of the rows matching filter,
// projected into P.
func SelectPagedByProjected[T any, K types.Key, P any](ctx context.Context, r *Repository[T, K], settings PaginationSettings[T], filter Filter, p Projection[P]) (*types.PagedResult[P], error) {
	return selectPaged[T, K, P](ctx, r, settings, r.QueryBy(filter, p))
}

// SelectPagedProjected returns one page of all rows, projected into P.
func SelectPagedProjected[T any, K types.Key, P any](ctx context.Context, r *Repository[T, K], settings PaginationSettings[T], p Projection[P]) (*types.PagedResult[P], error) {
	return selectPaged[T, K, P](ctx, r, settings, r.QueryBy(nil, p))
}

// selectPaged counts q, then scans the requested page of it into P. The data
// query is skipped when the page is past the last row.
func selectPaged[T any, K types.Key, P any](ctx context.Context, r *Repository[T, K], settings PaginationSettings[T], q *bun.SelectQuery) (*types.PagedResult[P], error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	page := types.NewPagedResult[P](settings.normalized().Page, settings.Take())
	total, err := q.Count(ctx)
	if err != nil {
		return nil, err
	}
	page.Total = total
	if total == 0 || settings.Skip() >= total {
		return page, nil
	}
	err = r.orderBy(q, settings).
		Offset(settings.Skip()).
		Limit(settings.Take()).
		Scan(ctx, &page.Items)
	if err != nil {
		return nil, err
	}
	return page, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func idents(columns []string) []interface{} {
	args := make([]interface{}, len(columns))
	for i, c := range columns {
		args[i] = bun.Ident(c)
	}
	return args
}
