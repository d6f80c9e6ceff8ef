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
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/repokit/repository"
)

func loadTicket(t *testing.T, uow *repository.UnitOfWork, id int64) *Ticket {
	t.Helper()
	tk := new(Ticket)
	require.NoError(t, uow.DB().NewSelect().Model(tk).Where("id = ?", id).Scan(context.Background()))
	require.NoError(t, uow.Attach(tk))
	return tk
}

func TestUnitOfWorkAttachRejectsNonStructPointers(t *testing.T) {
	uow := repository.NewUnitOfWork(newTestDB(t))

	assert.ErrorIs(t, uow.Attach(Ticket{}), repository.ErrInvalidEntity)
	assert.ErrorIs(t, uow.Attach((*Ticket)(nil)), repository.ErrInvalidEntity)
	n := 1
	assert.ErrorIs(t, uow.Attach(&n), repository.ErrInvalidEntity)
	assert.Equal(t, 0, uow.Len())
}

func TestUnitOfWorkStates(t *testing.T) {
	db := newTestDB(t)
	seedTickets(t, db, 1)
	uow := repository.NewUnitOfWork(db)
	tk := loadTicket(t, uow, 1)

	assert.Equal(t, repository.Unchanged, uow.State(tk))
	assert.Equal(t, "unchanged", uow.State(tk).String())

	tk.Title = "edited"
	assert.Equal(t, repository.Unchanged, uow.State(tk), "nothing is detected until asked")
	uow.DetectChanges()
	assert.Equal(t, repository.Modified, uow.State(tk))

	require.NoError(t, uow.Attach(tk))
	assert.Equal(t, repository.Unchanged, uow.State(tk), "re-attaching resets the snapshot")

	uow.Detach(tk)
	assert.Equal(t, repository.Detached, uow.State(tk))
	assert.False(t, uow.Tracked(tk))
	uow.Detach(tk)
	assert.ErrorIs(t, uow.MarkModified(tk), repository.ErrNotTracked)
}

func TestUnitOfWorkSaveWithoutDetection(t *testing.T) {
	db := newTestDB(t)
	seedTickets(t, db, 2)
	uow := repository.NewUnitOfWork(db)
	ctx := context.Background()
	first := loadTicket(t, uow, 1)
	second := loadTicket(t, uow, 2)

	first.Title = "silently edited"
	second.Title = "explicitly marked"
	require.NoError(t, uow.MarkModified(second))
	assert.True(t, uow.HasChanges())

	n, err := uow.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, "ticket 1", loadTicket(t, repository.NewUnitOfWork(db), 1).Title)
	assert.Equal(t, "explicitly marked", loadTicket(t, repository.NewUnitOfWork(db), 2).Title)
}

func TestUnitOfWorkSaveWithDetection(t *testing.T) {
	db := newTestDB(t)
	seedTickets(t, db, 3)
	uow := repository.NewUnitOfWork(db)
	ctx := context.Background()
	restore := uow.EnableChangeDetection()
	assert.True(t, uow.AutoDetectChanges())

	tickets := []*Ticket{loadTicket(t, uow, 1), loadTicket(t, uow, 2), loadTicket(t, uow, 3)}
	tickets[0].Priority = 7
	tickets[2].Title = "third"

	n, err := uow.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.False(t, uow.HasChanges())

	n, err = uow.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	restore()
	assert.False(t, uow.AutoDetectChanges())

	fresh := repository.NewUnitOfWork(db)
	assert.Equal(t, 7, loadTicket(t, fresh, 1).Priority)
	assert.Equal(t, "ticket 2", loadTicket(t, fresh, 2).Title)
	assert.Equal(t, "third", loadTicket(t, fresh, 3).Title)
}

func TestUnitOfWorkRunInTxCommits(t *testing.T) {
	db := newTestDB(t)
	seedTickets(t, db, 1)
	uow := repository.NewUnitOfWork(db)
	uow.SetAutoDetectChanges(true)
	ctx := context.Background()

	err := uow.RunInTx(ctx, func(ctx context.Context, tx *repository.UnitOfWork) error {
		assert.True(t, tx.AutoDetectChanges())
		tk := loadTicket(t, tx, 1)
		tk.Title = "committed"
		_, err := tx.SaveChanges(ctx)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "committed", loadTicket(t, repository.NewUnitOfWork(db), 1).Title)
}
