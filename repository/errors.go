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

import "errors"

var (
	// ErrNotFound is returned by RemoveByKey when no entity has the key.
	ErrNotFound = errors.New("repository: entity not found")
	// ErrNotTracked is returned by Update for entities never attached to the
	// unit of work.
	ErrNotTracked = errors.New("repository: entity is not tracked by the unit of work")
	// ErrUnknownSortKey is returned when declaring a sort key for a column the
	// model does not have.
	ErrUnknownSortKey = errors.New("repository: unknown sort column")
	// ErrUnknownColumn is returned for upsert columns the model does not have.
	ErrUnknownColumn = errors.New("repository: unknown column")
	// ErrInvalidPagination is returned for page settings out of range.
	ErrInvalidPagination = errors.New("repository: invalid pagination settings")
	// ErrNoPrimaryKey is returned by New for models without exactly one
	// primary key column.
	ErrNoPrimaryKey = errors.New("repository: model must have exactly one primary key")
	// ErrInvalidEntity is returned for nil entities and non-struct models.
	ErrInvalidEntity = errors.New("repository: entity must be a non-nil pointer to a struct")
	// ErrNoUnitOfWork is returned by New when no unit of work is given.
	ErrNoUnitOfWork = errors.New("repository: unit of work is required")
)
