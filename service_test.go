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
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/repokit/database"
	"github.com/tomoncle/repokit/repository"
	"github.com/tomoncle/repokit/types"
	"github.com/uptrace/bun"
)

type SystemConfig struct {
	bun.BaseModel `bun:"table:system_config,alias:sc"`

	ID          int64  `bun:"id,pk,autoincrement" json:"id"`
	ConfigKey   string `bun:"config_key,notnull,unique" json:"config_key"`
	ConfigValue string `bun:"config_value" json:"config_value"`
	Scope       string `bun:"scope,nullzero,notnull,default:'global'" json:"scope"`
}

func init() {
	database.RegisterModel((*SystemConfig)(nil), 1)
}

func initTestDB(t *testing.T) {
	t.Helper()
	cfg := database.DefaultConfig()
	cfg.Connection.Type = "sqlite"
	cfg.Connection.DBName = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	cfg.Migrate.OnStartup = true
	_, err := database.InitDB(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.CloseDB() })
}

func TestServiceCrud(t *testing.T) {
	initTestDB(t)
	svc := NewService[SystemConfig, int64]()
	ctx := context.Background()

	require.NoError(t, svc.Save(ctx,
		&SystemConfig{ConfigKey: "site.name", ConfigValue: "repokit"},
		&SystemConfig{ConfigKey: "site.lang", ConfigValue: "en", Scope: "ui"},
	))

	all, err := svc.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "global", all[0].Scope)

	got, err := svc.Get(ctx, all[1].ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "site.lang", got.ConfigKey)

	list, err := svc.List(ctx, types.NewQueryFilter("scope = ?", "ui"))
	require.NoError(t, err)
	require.Len(t, list, 1)

	modified, err := svc.Modify(ctx, got.ID, func(c *SystemConfig) error {
		c.ConfigValue = "fr"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fr", modified.ConfigValue)
	got, err = svc.Get(ctx, got.ID)
	require.NoError(t, err)
	assert.Equal(t, "fr", got.ConfigValue)

	require.NoError(t, svc.SaveOrUpdate(ctx, []string{"config_value"}, []string{"config_key"},
		&SystemConfig{ConfigKey: "site.name", ConfigValue: "renamed"}))
	list, err = svc.List(ctx, types.NewQueryFilter("config_key = ?", "site.name"))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "renamed", list[0].ConfigValue)

	require.NoError(t, svc.Delete(ctx, got.ID))
	assert.ErrorIs(t, svc.Delete(ctx, got.ID), repository.ErrNotFound)

	var rest []SystemConfig
	require.NoError(t, svc.SelectBuilder().Scan(ctx, &rest))
	assert.Len(t, rest, 1)
}

func TestServiceModifyRollsBack(t *testing.T) {
	initTestDB(t)
	svc := NewService[SystemConfig, int64]()
	ctx := context.Background()
	require.NoError(t, svc.Save(ctx, &SystemConfig{ConfigKey: "k", ConfigValue: "v"}))

	boom := errors.New("boom")
	_, err := svc.Modify(ctx, 1, func(c *SystemConfig) error {
		c.ConfigValue = "changed"
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = svc.Modify(ctx, 404, func(*SystemConfig) error { return nil })
	assert.ErrorIs(t, err, repository.ErrNotFound)

	got, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "v", got.ConfigValue)
}

func TestServicePageWithFixedConditions(t *testing.T) {
	initTestDB(t)
	svc := NewService[SystemConfig, int64](
		repository.WithFixedConditions(repository.Where("?TableAlias.scope = ?", "global")))
	ctx := context.Background()

	for i := 1; i <= 12; i++ {
		scope := "global"
		if i%4 == 0 {
			scope = "ui"
		}
		require.NoError(t, svc.Save(ctx, &SystemConfig{ConfigKey: fmt.Sprintf("k%02d", i), Scope: scope}))
	}

	key, err := svc.SortKey("ConfigKey")
	require.NoError(t, err)
	page, err := svc.Page(ctx, repository.NewPaginationSettings(2, 4, key, types.Descending), nil)
	require.NoError(t, err)
	assert.Equal(t, 9, page.Total)
	require.Len(t, page.Items, 4)
	assert.Equal(t, "k06", page.Items[0].ConfigKey)

	all, err := svc.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 12)
}

func TestServiceWithDB(t *testing.T) {
	initTestDB(t)
	svc := NewServiceWithDB[SystemConfig, int64](database.GetDB())

	r, err := svc.Repository(repository.NewUnitOfWork(database.GetDB()))
	require.NoError(t, err)
	assert.NotNil(t, r.UnitOfWork())

	got, err := svc.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, got)
}
