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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/tomoncle/repokit/database"
	"github.com/tomoncle/repokit/utils"
	"github.com/urfave/cli/v2"
)

var log = utils.NewLogger("REPOKIT")

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:      "repokit",
		Usage:     "Inspect, migrate and seed the database used by repokit repositories",
		Writer:    out,
		ErrWriter: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML database config; DB_* environment variables override it",
				EnvVars: []string{"REPOKIT_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Load environment variables from this file before reading the config",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (trace, debug, info, warn, error)",
				Value:   "info",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Timeout for each command",
				Value: 30 * time.Second,
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:   "check",
				Usage:  "Connect and print the health status as JSON",
				Action: checkCommand,
			},
			{
				Name:   "stats",
				Usage:  "Connect and print connection pool statistics as JSON",
				Action: statsCommand,
			},
			{
				Name:   "migrate",
				Usage:  "Apply pending migrations",
				Action: migrateCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "seed",
						Usage: "Also run the SQL seed files as a migration step",
					},
				},
			},
			{
				Name:   "seed",
				Usage:  "Run SQL seed files",
				Action: seedCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "environment",
						Aliases: []string{"e"},
						Usage:   "Seed environment directory under <path>/environments",
					},
					&cli.StringFlag{
						Name:  "path",
						Usage: "Root directory of the seed files",
					},
				},
			},
		},
	}
}

// setup loads the env file and config, and stores the config in the app
// metadata for the commands.
func setup(c *cli.Context) error {
	utils.SetAllLoggersLevel(c.String("log-level"))
	if f := c.String("env-file"); f != "" {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load env file %s: %w", f, err)
		}
	}
	cfg := database.DefaultConfig()
	if path := c.String("config"); path != "" {
		loaded, err := database.LoadConfig(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	database.ApplyEnv(&cfg.Connection)
	if c.App.Metadata == nil {
		c.App.Metadata = map[string]interface{}{}
	}
	c.App.Metadata["config"] = cfg
	return cfg.Validate()
}

func config(c *cli.Context) *database.Config {
	if cfg, ok := c.App.Metadata["config"].(*database.Config); ok {
		return cfg
	}
	return database.DefaultConfig()
}

func connect(c *cli.Context) (database.Manager, context.Context, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	m := database.NewManager(&config(c).Connection)
	if err := m.Connect(ctx); err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return m, ctx, cancel, nil
}

func printJSON(c *cli.Context, v interface{}) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func checkCommand(c *cli.Context) error {
	m, ctx, cancel, err := connect(c)
	if err != nil {
		return err
	}
	defer cancel()
	defer m.Disconnect()

	status := m.HealthCheck(ctx)
	if err := printJSON(c, status); err != nil {
		return err
	}
	if !status.Healthy {
		return cli.Exit("database is unhealthy: "+status.LastError, 1)
	}
	return nil
}

func statsCommand(c *cli.Context) error {
	m, _, cancel, err := connect(c)
	if err != nil {
		return err
	}
	defer cancel()
	defer m.Disconnect()
	return printJSON(c, m.Stats())
}

func migrateCommand(c *cli.Context) error {
	m, ctx, cancel, err := connect(c)
	if err != nil {
		return err
	}
	defer cancel()
	defer m.Disconnect()

	cfg := *config(c)
	if c.Bool("seed") {
		cfg.Migrate.SeedOnMigrate = true
	}
	mm := database.NewMigrator(m.DB(), &cfg)
	if err := mm.Run(ctx); err != nil {
		return err
	}
	applied, err := mm.Applied(ctx)
	if err != nil {
		return err
	}
	return printJSON(c, applied)
}

func seedCommand(c *cli.Context) error {
	m, ctx, cancel, err := connect(c)
	if err != nil {
		return err
	}
	defer cancel()
	defer m.Disconnect()

	cfg := config(c)
	path, env := cfg.Seed.Path, cfg.Seed.Environment
	if v := c.String("path"); v != "" {
		path = v
	}
	if v := c.String("environment"); v != "" {
		env = v
	}
	results, err := database.NewSeeder(m.DB(), path, env).Run(ctx)
	if err != nil {
		return err
	}
	for _, r := range results {
		log.Infof("seeded %s (%d rows, %s)", r.File, r.RowsAffected, r.Duration)
	}
	return printJSON(c, results)
}
