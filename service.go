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

package repokit

import (
	"context"
	"sync"

	"github.com/tomoncle/repokit/database"
	"github.com/tomoncle/repokit/repository"
	"github.com/tomoncle/repokit/types"
	"github.com/uptrace/bun"
)

// Service is a convenience facade over the globally initialised database.
// Every call runs with its own unit of work, so a Service is safe for
// concurrent use even though repositories are not.
type Service[T any, K types.Key] interface {
	// Get returns a single entity by key, or nil when none exists.
	Get(ctx context.Context, id K) (*T, error)

	// All returns all entities.
	All(ctx context.Context) ([]*T, error)

	// List returns entities matching the filter under the fixed conditions.
	List(ctx context.Context, filter *types.QueryFilter) ([]*T, error)

	// Page returns one page of entities matching the filter.
	Page(ctx context.Context, settings repository.PaginationSettings[T], filter *types.QueryFilter) (*types.PagedResult[T], error)

	// SortKey declares a sort key for Page.
	SortKey(column string) (repository.SortKey[T], error)

	// Save inserts one or more new entities.
	Save(ctx context.Context, model ...*T) error

	// SaveOrUpdate upserts entities, updating columns on conflict.
	SaveOrUpdate(ctx context.Context, columns []string, conflict []string, model ...*T) error

	// Modify loads the entity with the given key, applies fn to it and saves
	// the changed columns in one transaction.
	Modify(ctx context.Context, id K, fn func(*T) error) (*T, error)

	// Delete removes an entity by key.
	Delete(ctx context.Context, id K) error

	// Repository returns a repository bound to uow with the service options.
	Repository(uow *repository.UnitOfWork) (*repository.Repository[T, K], error)

	// SelectBuilder returns a select over the entity with fixed conditions applied.
	SelectBuilder() *bun.SelectQuery
}

type baseServiceImpl[T any, K types.Key] struct {
	opts []repository.Option
	db   *bun.DB
	once sync.Once
}

// NewService returns a Service backed by database.GetDB. Options apply to
// every repository the service creates.
func NewService[T any, K types.Key](opts ...repository.Option) Service[T, K] {
	return &baseServiceImpl[T, K]{opts: opts}
}

// NewServiceWithDB returns a Service backed by db instead of the global
// connection.
func NewServiceWithDB[T any, K types.Key](db *bun.DB, opts ...repository.Option) Service[T, K] {
	return &baseServiceImpl[T, K]{opts: opts, db: db}
}

func (s *baseServiceImpl[T, K]) baseDB() *bun.DB {
	s.once.Do(func() {
		if s.db == nil {
			s.db = database.GetDB()
		}
	})
	return s.db
}

func (s *baseServiceImpl[T, K]) Repository(uow *repository.UnitOfWork) (*repository.Repository[T, K], error) {
	return repository.New[T, K](uow, s.opts...)
}

func (s *baseServiceImpl[T, K]) repo() (*repository.Repository[T, K], error) {
	return s.Repository(repository.NewUnitOfWork(s.baseDB()))
}

func (s *baseServiceImpl[T, K]) Get(ctx context.Context, id K) (*T, error) {
	r, err := s.repo()
	if err != nil {
		return nil, err
	}
	return r.Find(ctx, id)
}

func (s *baseServiceImpl[T, K]) All(ctx context.Context) ([]*T, error) {
	r, err := s.repo()
	if err != nil {
		return nil, err
	}
	return r.All(ctx)
}

func (s *baseServiceImpl[T, K]) List(ctx context.Context, filter *types.QueryFilter) ([]*T, error) {
	r, err := s.repo()
	if err != nil {
		return nil, err
	}
	return r.SelectBy(ctx, repository.FromQueryFilter(filter))
}

func (s *baseServiceImpl[T, K]) Page(ctx context.Context, settings repository.PaginationSettings[T], filter *types.QueryFilter) (*types.PagedResult[T], error) {
	r, err := s.repo()
	if err != nil {
		return nil, err
	}
	return r.SelectPagedBy(ctx, settings, repository.FromQueryFilter(filter))
}

func (s *baseServiceImpl[T, K]) SortKey(column string) (repository.SortKey[T], error) {
	r, err := s.repo()
	if err != nil {
		return repository.SortKey[T]{}, err
	}
	return r.SortKey(column)
}

func (s *baseServiceImpl[T, K]) Save(ctx context.Context, model ...*T) error {
	r, err := s.repo()
	if err != nil {
		return err
	}
	_, err = r.AddRange(ctx, model...)
	return err
}

func (s *baseServiceImpl[T, K]) SaveOrUpdate(ctx context.Context, columns []string, conflict []string, model ...*T) error {
	r, err := s.repo()
	if err != nil {
		return err
	}
	return r.Upsert(ctx, columns, conflict, model...)
}

func (s *baseServiceImpl[T, K]) Modify(ctx context.Context, id K, fn func(*T) error) (*T, error) {
	var out *T
	uow := repository.NewUnitOfWork(s.baseDB())
	err := uow.RunInTx(ctx, func(ctx context.Context, tx *repository.UnitOfWork) error {
		r, err := s.Repository(tx)
		if err != nil {
			return err
		}
		entity, err := r.Find(ctx, id)
		if err != nil {
			return err
		}
		if entity == nil {
			return repository.ErrNotFound
		}
		if err := fn(entity); err != nil {
			return err
		}
		out, err = r.Update(ctx, entity)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *baseServiceImpl[T, K]) Delete(ctx context.Context, id K) error {
	r, err := s.repo()
	if err != nil {
		return err
	}
	return r.RemoveByKey(ctx, id)
}

func (s *baseServiceImpl[T, K]) SelectBuilder() *bun.SelectQuery {
	r, err := s.repo()
	if err != nil {
		// T is not a usable model; an unscoped select still reports the
		// problem when executed.
		return s.baseDB().NewSelect().Model((*T)(nil))
	}
	return r.Query(nil)
}
