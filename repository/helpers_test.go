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
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/repokit/database"
	"github.com/tomoncle/repokit/repository"
	"github.com/uptrace/bun"
)

type Ticket struct {
	bun.BaseModel `bun:"table:tickets,alias:t"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	Code      string    `bun:"code,notnull,unique" json:"code"`
	Title     string    `bun:"title,notnull" json:"title"`
	Tenant    string    `bun:"tenant,nullzero,notnull,default:'acme'" json:"tenant"`
	Priority  int       `bun:"priority,notnull,default:0" json:"priority"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

type Note struct {
	bun.BaseModel `bun:"table:notes,alias:n"`

	ID   uuid.UUID `bun:"id,pk,type:varchar(36)"`
	Body string    `bun:"body"`
}

type ticketTitle struct {
	ID    int64  `bun:"id"`
	Title string `bun:"title"`
}

type ticketLabel struct {
	ID    int64  `bun:"id"`
	Label string `bun:"label"`
}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	m := database.NewManager(&database.ConnectionConfig{
		Type:   "sqlite",
		DBName: fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	})
	ctx := context.Background()
	require.NoError(t, m.Connect(ctx))
	t.Cleanup(func() { _ = m.Disconnect() })

	db := m.DB()
	for _, model := range []interface{}{(*Ticket)(nil), (*Note)(nil)} {
		_, err := db.NewCreateTable().Model(model).Exec(ctx)
		require.NoError(t, err)
	}
	return db
}

func newTicketRepo(t *testing.T, db *bun.DB, opts ...repository.Option) *repository.Repository[Ticket, int64] {
	t.Helper()
	r, err := repository.New[Ticket, int64](repository.NewUnitOfWork(db), opts...)
	require.NoError(t, err)
	return r
}

// seedTickets inserts n tickets with ids 1..n. Even ids belong to tenant
// "other", odd ids to "acme"; priority is id mod 3.
func seedTickets(t *testing.T, db *bun.DB, n int) {
	t.Helper()
	tickets := make([]*Ticket, 0, n)
	for i := 1; i <= n; i++ {
		tenant := "acme"
		if i%2 == 0 {
			tenant = "other"
		}
		tickets = append(tickets, &Ticket{
			Code:     fmt.Sprintf("T-%03d", i),
			Title:    fmt.Sprintf("ticket %d", i),
			Tenant:   tenant,
			Priority: i % 3,
		})
	}
	for _, tk := range tickets {
		_, err := db.NewInsert().Model(tk).Exec(context.Background())
		require.NoError(t, err)
	}
}

func countTickets(t *testing.T, db *bun.DB) int {
	t.Helper()
	n, err := db.NewSelect().Model((*Ticket)(nil)).Count(context.Background())
	require.NoError(t, err)
	return n
}

func ticketIDs(tickets []*Ticket) []int64 {
	ids := make([]int64, 0, len(tickets))
	for _, tk := range tickets {
		ids = append(ids, tk.ID)
	}
	return ids
}

func titleIDs(titles []*ticketTitle) []int64 {
	ids := make([]int64, 0, len(titles))
	for _, p := range titles {
		ids = append(ids, p.ID)
	}
	return ids
}

func acmeOnly() repository.Option {
	return repository.WithFixedConditions(repository.Where("?TableAlias.tenant = ?", "acme"))
}
