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

package database

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/uptrace/bun"
)

// Migration is an applied migration record.
type Migration struct {
	bun.BaseModel `bun:"table:repokit_migrations,alias:rm"`

	Version     string    `bun:"version,pk"`
	Name        string    `bun:"name,notnull"`
	Description string    `bun:"description"`
	AppliedAt   time.Time `bun:"applied_at,notnull"`
}

// MigrationFunc is a migration step executed within a transaction.
type MigrationFunc func(ctx context.Context, db bun.IDB) error

// MigrationItem describes a single migration version.
type MigrationItem struct {
	Version     string
	Name        string
	Description string
	Up          MigrationFunc
}

// MigrationManager applies versioned migrations exactly once each, recording
// them in repokit_migrations.
type MigrationManager struct {
	db       *bun.DB
	logger   Logger
	registry ModelRegistry
	items    []MigrationItem
}

// NewMigrationManager returns a manager whose first step creates the tables
// of every model in the default registry.
func NewMigrationManager(db *bun.DB, logger Logger) *MigrationManager {
	if logger == nil {
		logger = GetLogger()
	}
	mm := &MigrationManager{db: db, logger: logger, registry: defaultRegistry}
	mm.Add(MigrationItem{
		Version:     "001",
		Name:        "create_registered_tables",
		Description: "Create tables for registered models",
		Up:          mm.createRegisteredTables,
	})
	return mm
}

// SetRegistry replaces the model registry used by the table creation step.
func (mm *MigrationManager) SetRegistry(r ModelRegistry) {
	mm.registry = r
}

// Add appends a migration step. Steps run in ascending Version order.
func (mm *MigrationManager) Add(item MigrationItem) {
	mm.items = append(mm.items, item)
}

// AddSeeding appends a step that runs the seeder once, inside the step's
// transaction.
func (mm *MigrationManager) AddSeeding(seeder *Seeder) {
	mm.Add(MigrationItem{
		Version:     "900",
		Name:        "seed_initial_data",
		Description: "Seed initial data from SQL files",
		Up: func(ctx context.Context, db bun.IDB) error {
			_, err := seeder.withDB(db).Run(ctx)
			return err
		},
	})
}

// Run creates the tracking table if needed and applies pending migrations.
func (mm *MigrationManager) Run(ctx context.Context) error {
	if mm.db == nil {
		return fmt.Errorf("database not initialized")
	}
	if _, ok := os.LookupEnv("BUNDEBUG_MIGRATION"); !ok {
		SilenceQueryLog(true)
		defer SilenceQueryLog(false)
	}

	if _, err := mm.db.NewCreateTable().Model((*Migration)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	items := make([]MigrationItem, len(mm.items))
	copy(items, mm.items)
	sort.SliceStable(items, func(i, j int) bool { return items[i].Version < items[j].Version })

	for _, item := range items {
		if err := mm.apply(ctx, item); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", item.Version, err)
		}
	}
	mm.logger.Info("Database migrations completed", "steps", len(items))
	return nil
}

func (mm *MigrationManager) apply(ctx context.Context, item MigrationItem) error {
	exists, err := mm.db.NewSelect().
		Model((*Migration)(nil)).
		Where("version = ?", item.Version).
		Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	err = mm.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := item.Up(ctx, tx); err != nil {
			return err
		}
		_, err := tx.NewInsert().Model(&Migration{
			Version:     item.Version,
			Name:        item.Name,
			Description: item.Description,
			AppliedAt:   time.Now(),
		}).Exec(ctx)
		return err
	})
	if err != nil {
		return err
	}
	mm.logger.Info("Migration executed successfully", "version", item.Version, "name", item.Name)
	return nil
}

func (mm *MigrationManager) createRegisteredTables(ctx context.Context, db bun.IDB) error {
	for _, model := range mm.registry.Instances() {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table %T: %w", model, err)
		}
	}
	return nil
}

// Applied returns migration records ordered by version.
func (mm *MigrationManager) Applied(ctx context.Context) ([]Migration, error) {
	var migrations []Migration
	err := mm.db.NewSelect().Model(&migrations).Order("version ASC").Scan(ctx)
	return migrations, err
}
