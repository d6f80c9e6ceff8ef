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
	"fmt"
	"math"

	"github.com/tomoncle/repokit/types"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 1000
)

// SortKey is a column of T that paged queries can order by. Keys are
// obtained from Repository.SortKey, which checks the column against the
// model, so a paged query never sees an unknown column. The zero SortKey
// orders by primary key.
type SortKey[T any] struct {
	column string
}

// Column returns the SQL column name, or "" for the zero key.
func (k SortKey[T]) Column() string { return k.column }

func (k SortKey[T]) IsZero() bool { return k.column == "" }

func (k SortKey[T]) String() string {
	if k.column == "" {
		return "<primary key>"
	}
	return k.column
}

// PaginationSettings selects one page of an ordered query.
type PaginationSettings[T any] struct {
	// Page is 1-based; values below 1 mean the first page.
	Page int `json:"page" validate:"gte=0"`
	// PageSize values below 1 mean DefaultPageSize.
	PageSize  int                  `json:"page_size" validate:"gte=0,lte=1000"`
	OrderBy   SortKey[T]           `json:"-"`
	Direction types.OrderDirection `json:"direction"`
}

// NewPaginationSettings returns settings for page/pageSize ordered by key.
func NewPaginationSettings[T any](page, pageSize int, key SortKey[T], dir types.OrderDirection) PaginationSettings[T] {
	return PaginationSettings[T]{Page: page, PageSize: pageSize, OrderBy: key, Direction: dir}
}

func (s PaginationSettings[T]) normalized() PaginationSettings[T] {
	if s.Page < 1 {
		s.Page = 1
	}
	if s.PageSize < 1 {
		s.PageSize = DefaultPageSize
	}
	return s
}

// Skip returns the number of rows before the page.
func (s PaginationSettings[T]) Skip() int {
	n := s.normalized()
	return (n.Page - 1) * n.PageSize
}

// Take returns the page size.
func (s PaginationSettings[T]) Take() int {
	return s.normalized().PageSize
}

// Validate rejects page sizes above MaxPageSize, pages whose offset does not
// fit in an int and unknown directions.
func (s PaginationSettings[T]) Validate() error {
	if err := types.Validate(s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPagination, err)
	}
	if n := s.normalized(); n.Page-1 > math.MaxInt/n.PageSize {
		return fmt.Errorf("%w: page %d overflows offset", ErrInvalidPagination, s.Page)
	}
	if !s.Direction.IsValid() {
		return fmt.Errorf("%w: direction %d", ErrInvalidPagination, int(s.Direction))
	}
	return nil
}
