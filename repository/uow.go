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
	"fmt"
	"reflect"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

// EntityState is the tracking state of an entity in a UnitOfWork.
type EntityState int

const (
	Detached EntityState = iota
	Unchanged
	Modified
)

func (s EntityState) String() string {
	switch s {
	case Unchanged:
		return "unchanged"
	case Modified:
		return "modified"
	default:
		return "detached"
	}
}

type trackedEntry struct {
	model    interface{}
	table    *schema.Table
	snapshot map[string]interface{}
	// columns pending an UPDATE; empty when the entity is unchanged
	modified []string
}

// UnitOfWork is the persistence context a repository borrows. It wraps a
// *bun.DB or bun.Tx and tracks attached entities with a snapshot of their
// column values so that SaveChanges can write only what changed.
//
// Automatic change detection is off by default: SaveChanges then writes only
// entities marked with MarkModified. With it on, SaveChanges first compares
// every tracked entity against its snapshot.
//
// A UnitOfWork is not safe for concurrent use.
type UnitOfWork struct {
	db         bun.IDB
	entries    map[interface{}]*trackedEntry
	order      []interface{}
	autoDetect bool
}

// NewUnitOfWork returns an empty unit of work over db.
func NewUnitOfWork(db bun.IDB) *UnitOfWork {
	return &UnitOfWork{db: db, entries: make(map[interface{}]*trackedEntry)}
}

// DB returns the handle queries are issued on.
func (u *UnitOfWork) DB() bun.IDB { return u.db }

func (u *UnitOfWork) AutoDetectChanges() bool { return u.autoDetect }

func (u *UnitOfWork) SetAutoDetectChanges(on bool) { u.autoDetect = on }

// EnableChangeDetection turns automatic change detection on and returns a
// func that turns it off again.
func (u *UnitOfWork) EnableChangeDetection() (restore func()) {
	u.autoDetect = true
	return func() { u.autoDetect = false }
}

// Attach starts tracking entity, a pointer to a bun model, taking a fresh
// snapshot. Attaching a tracked entity resets it to Unchanged.
func (u *UnitOfWork) Attach(entity interface{}) error {
	strct, err := structValue(entity)
	if err != nil {
		return err
	}
	if e, ok := u.entries[entity]; ok {
		e.snapshot = takeSnapshot(e.table, strct)
		e.modified = nil
		return nil
	}
	table := u.db.Dialect().Tables().Get(strct.Type())
	u.entries[entity] = &trackedEntry{model: entity, table: table, snapshot: takeSnapshot(table, strct)}
	u.order = append(u.order, entity)
	return nil
}

// MarkModified flags every data column of a tracked entity for the next save.
func (u *UnitOfWork) MarkModified(entity interface{}) error {
	e, ok := u.entries[entity]
	if !ok {
		return fmt.Errorf("%w: %T", ErrNotTracked, entity)
	}
	e.modified = e.modified[:0]
	for _, f := range e.table.DataFields {
		e.modified = append(e.modified, f.Name)
	}
	return nil
}

// Detach stops tracking entity. Untracked entities are ignored.
func (u *UnitOfWork) Detach(entity interface{}) {
	if _, ok := u.entries[entity]; !ok {
		return
	}
	delete(u.entries, entity)
	for i, m := range u.order {
		if m == entity {
			u.order = append(u.order[:i], u.order[i+1:]...)
			break
		}
	}
}

func (u *UnitOfWork) Tracked(entity interface{}) bool {
	_, ok := u.entries[entity]
	return ok
}

// Len returns the number of tracked entities.
func (u *UnitOfWork) Len() int { return len(u.entries) }

func (u *UnitOfWork) State(entity interface{}) EntityState {
	e, ok := u.entries[entity]
	switch {
	case !ok:
		return Detached
	case len(e.modified) > 0:
		return Modified
	default:
		return Unchanged
	}
}

// DetectChanges compares tracked entities with their snapshots and marks
// changed columns as modified, whatever AutoDetectChanges says.
func (u *UnitOfWork) DetectChanges() {
	for _, m := range u.order {
		e := u.entries[m]
		strct := reflect.ValueOf(e.model).Elem()
		for _, f := range e.table.DataFields {
			if containsString(e.modified, f.Name) {
				continue
			}
			if !reflect.DeepEqual(e.snapshot[f.Name], f.Value(strct).Interface()) {
				e.modified = append(e.modified, f.Name)
			}
		}
	}
}

// HasChanges reports whether a save would write anything.
func (u *UnitOfWork) HasChanges() bool {
	if u.autoDetect {
		u.DetectChanges()
	}
	for _, e := range u.entries {
		if len(e.modified) > 0 {
			return true
		}
	}
	return false
}

// SaveChanges writes modified columns of tracked entities, one UPDATE per
// entity in attach order, and returns how many entities were written. It
// stops at the first error; entities written before it stay saved unless db
// is a transaction that is rolled back.
func (u *UnitOfWork) SaveChanges(ctx context.Context) (int, error) {
	if u.autoDetect {
		u.DetectChanges()
	}
	saved := 0
	for _, m := range u.order {
		e := u.entries[m]
		if len(e.modified) == 0 {
			continue
		}
		if _, err := u.db.NewUpdate().Model(e.model).Column(e.modified...).WherePK().Exec(ctx); err != nil {
			return saved, err
		}
		e.snapshot = takeSnapshot(e.table, reflect.ValueOf(e.model).Elem())
		e.modified = nil
		saved++
	}
	return saved, nil
}

// RunInTx runs fn with a unit of work bound to a new transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
func (u *UnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context, tx *UnitOfWork) error) error {
	return u.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		txu := NewUnitOfWork(tx)
		txu.autoDetect = u.autoDetect
		return fn(ctx, txu)
	})
}

func structValue(entity interface{}) (reflect.Value, error) {
	v := reflect.ValueOf(entity)
	if v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("%w: got %T", ErrInvalidEntity, entity)
	}
	return v.Elem(), nil
}

func takeSnapshot(table *schema.Table, strct reflect.Value) map[string]interface{} {
	snap := make(map[string]interface{}, len(table.DataFields))
	for _, f := range table.DataFields {
		snap[f.Name] = cloneValue(f.Value(strct))
	}
	return snap
}

// cloneValue copies slices and maps one level deep so that in-place edits
// show up as changes.
func cloneValue(v reflect.Value) interface{} {
	switch v.Kind() {
	case reflect.Slice:
		if v.IsNil() {
			return v.Interface()
		}
		c := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		reflect.Copy(c, v)
		return c.Interface()
	case reflect.Map:
		if v.IsNil() {
			return v.Interface()
		}
		c := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			c.SetMapIndex(iter.Key(), iter.Value())
		}
		return c.Interface()
	default:
		return v.Interface()
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
