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

	"github.com/tomoncle/repokit/types"
	"github.com/uptrace/bun"
)

// CrudRepository defines the basic operations on entities of type T keyed by K.
type CrudRepository[T any, K types.Key] interface {
	Find(ctx context.Context, key K) (*T, error)

	All(ctx context.Context) ([]*T, error)

	Add(ctx context.Context, entity *T) (*T, error)

	Update(ctx context.Context, entity *T) (*T, error)

	RemoveByKey(ctx context.Context, key K) error

	Remove(ctx context.Context, entity *T) (bool, error)
}

// QueryRepository defines filtered reads that honor fixed conditions.
type QueryRepository[T any] interface {
	SelectBy(ctx context.Context, filter Filter) ([]*T, error)
	Query(filter Filter) *bun.SelectQuery
	QueryProjected(p Projector) *bun.SelectQuery
	QueryBy(filter Filter, p Projector) *bun.SelectQuery
	AddFixedConditions(q *bun.SelectQuery) *bun.SelectQuery
}

// PageQueryRepository defines paged reads.
type PageQueryRepository[T any] interface {
	SelectPagedBy(ctx context.Context, settings PaginationSettings[T], filter Filter) (*types.PagedResult[T], error)
	SortKey(column string) (SortKey[T], error)
}

// Interface is implemented by Repository. Consumers depending on it can
// substitute their own implementation in tests.
type Interface[T any, K types.Key] interface {
	CrudRepository[T, K]
	QueryRepository[T]
	PageQueryRepository[T]
	UnitOfWork() *UnitOfWork
}

var _ Interface[struct{ ID int64 }, int64] = (*Repository[struct{ ID int64 }, int64])(nil)
