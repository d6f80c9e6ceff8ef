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

package repository_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tomoncle/repokit/repository"
	"github.com/tomoncle/repokit/types"
)

func TestPaginationSettingsSkipTake(t *testing.T) {
	tests := []struct {
		page, size int
		skip, take int
	}{
		{page: 1, size: 10, skip: 0, take: 10},
		{page: 2, size: 10, skip: 10, take: 10},
		{page: 3, size: 7, skip: 14, take: 7},
		{page: 0, size: 0, skip: 0, take: repository.DefaultPageSize},
		{page: -4, size: 5, skip: 0, take: 5},
	}
	for _, tt := range tests {
		s := repository.PaginationSettings[Ticket]{Page: tt.page, PageSize: tt.size}
		assert.Equal(t, tt.skip, s.Skip(), "skip for page %d size %d", tt.page, tt.size)
		assert.Equal(t, tt.take, s.Take(), "take for page %d size %d", tt.page, tt.size)
	}
}

func TestPaginationSettingsValidate(t *testing.T) {
	assert.NoError(t, repository.PaginationSettings[Ticket]{Page: 1, PageSize: repository.MaxPageSize}.Validate())
	assert.NoError(t, repository.PaginationSettings[Ticket]{Direction: types.Descending}.Validate())

	err := repository.PaginationSettings[Ticket]{PageSize: repository.MaxPageSize + 1}.Validate()
	assert.ErrorIs(t, err, repository.ErrInvalidPagination)

	err = repository.PaginationSettings[Ticket]{Page: -1}.Validate()
	assert.ErrorIs(t, err, repository.ErrInvalidPagination)

	err = repository.PaginationSettings[Ticket]{Direction: types.OrderDirection(5)}.Validate()
	assert.ErrorIs(t, err, repository.ErrInvalidPagination)

	err = repository.PaginationSettings[Ticket]{Page: math.MaxInt, PageSize: 10}.Validate()
	assert.ErrorIs(t, err, repository.ErrInvalidPagination)
	err = repository.PaginationSettings[Ticket]{Page: math.MaxInt}.Validate()
	assert.ErrorIs(t, err, repository.ErrInvalidPagination)
	assert.NoError(t, repository.PaginationSettings[Ticket]{Page: math.MaxInt/10 + 1, PageSize: 10}.Validate())
	assert.NoError(t, repository.PaginationSettings[Ticket]{Page: math.MaxInt, PageSize: 1}.Validate())
}

func TestZeroSortKey(t *testing.T) {
	var k repository.SortKey[Ticket]
	assert.True(t, k.IsZero())
	assert.Equal(t, "", k.Column())
	assert.Equal(t, "<primary key>", k.String())
}
