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
	"sync"

	"github.com/uptrace/bun"
)

var (
	globalMu      sync.RWMutex
	globalManager Manager
	globalConfig  *Config
)

// InitDB validates cfg, connects the global database and, when
// cfg.Migrate.OnStartup is set, runs migrations.
func InitDB(ctx context.Context, cfg *Config, opts ...ManagerOption) (*bun.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	manager := NewManager(&cfg.Connection, opts...)
	if err := manager.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	db := manager.DB()
	db.RegisterModel(defaultRegistry.Instances()...)

	if cfg.Migrate.OnStartup {
		if err := NewMigrator(db, cfg).Run(ctx); err != nil {
			_ = manager.Disconnect()
			return nil, fmt.Errorf("failed to run database migrations: %w", err)
		}
	}

	globalMu.Lock()
	globalManager, globalConfig = manager, cfg
	globalMu.Unlock()
	return db, nil
}

// NewMigrator builds the migration manager described by cfg.
func NewMigrator(db *bun.DB, cfg *Config) *MigrationManager {
	mm := NewMigrationManager(db, GetLogger())
	if cfg != nil && cfg.Migrate.SeedOnMigrate {
		mm.AddSeeding(NewSeeder(db, cfg.Seed.Path, cfg.Seed.Environment))
	}
	return mm
}

// GetDB returns the global database or nil before InitDB.
func GetDB() *bun.DB {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalManager == nil {
		return nil
	}
	return globalManager.DB()
}

// GetManager returns the global manager or nil before InitDB.
func GetManager() Manager {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalManager
}

// CloseDB closes the global database.
func CloseDB() error {
	globalMu.Lock()
	manager := globalManager
	globalManager, globalConfig = nil, nil
	globalMu.Unlock()
	if manager == nil {
		return nil
	}
	return manager.Disconnect()
}

// GetHealthStatus checks the global database.
func GetHealthStatus(ctx context.Context) *HealthStatus {
	if m := GetManager(); m != nil {
		return m.HealthCheck(ctx)
	}
	return &HealthStatus{LastError: "Database not initialized"}
}

// SeedData runs the seed files configured at InitDB for environment, or
// for the configured environment when empty.
func SeedData(ctx context.Context, environment string) ([]SeedResult, error) {
	globalMu.RLock()
	manager, cfg := globalManager, globalConfig
	globalMu.RUnlock()
	if manager == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if environment == "" {
		environment = cfg.Seed.Environment
	}
	return NewSeeder(manager.DB(), cfg.Seed.Path, environment).Run(ctx)
}
