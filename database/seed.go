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
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

var (
	seedOrderPattern = regexp.MustCompile(`^(\d+)_`)
	seedVarPattern   = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)
)

// SeedFile is a SQL file discovered by a Seeder.
type SeedFile struct {
	Path        string
	Name        string
	Order       int
	Environment string
}

// SeedResult is the outcome of one executed file.
type SeedResult struct {
	File         string
	Duration     time.Duration
	RowsAffected int64
}

// Seeder executes SQL files from <root>/common followed by
// <root>/environments/<environment>. Within each directory files run in the
// order of their numeric "NNN_" prefix; unprefixed files run last. Each file
// runs in its own transaction and ${VAR} placeholders are replaced with
// environment variables, plus ENVIRONMENT.
type Seeder struct {
	db          bun.IDB
	root        string
	environment string
	logger      Logger
}

// NewSeeder returns a seeder reading from root for environment.
func NewSeeder(db bun.IDB, root, environment string) *Seeder {
	if root == "" {
		root = "configs/sql"
	}
	return &Seeder{db: db, root: root, environment: environment, logger: GetLogger()}
}

func (s *Seeder) withDB(db bun.IDB) *Seeder {
	c := *s
	c.db = db
	return &c
}

// Files lists the SQL files in execution order.
func (s *Seeder) Files() ([]SeedFile, error) {
	common, err := collectSeedFiles(filepath.Join(s.root, "common"), "common")
	if err != nil {
		return nil, fmt.Errorf("failed to get common SQL files: %w", err)
	}
	env, err := collectSeedFiles(filepath.Join(s.root, "environments", s.environment), s.environment)
	if err != nil {
		return nil, fmt.Errorf("failed to get environment SQL files: %w", err)
	}
	return append(common, env...), nil
}

func collectSeedFiles(dir, environment string) ([]SeedFile, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}
	var files []SeedFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".sql") {
			return nil
		}
		order := 999
		if m := seedOrderPattern.FindStringSubmatch(d.Name()); m != nil {
			order, _ = strconv.Atoi(m[1])
		}
		files = append(files, SeedFile{Path: path, Name: d.Name(), Order: order, Environment: environment})
		return nil
	})
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].Order != files[j].Order {
			return files[i].Order < files[j].Order
		}
		return files[i].Name < files[j].Name
	})
	return files, err
}

// Run executes every file and stops at the first failure.
func (s *Seeder) Run(ctx context.Context) ([]SeedResult, error) {
	files, err := s.Files()
	if err != nil {
		return nil, err
	}
	s.logger.Info("Starting SQL seeding", "environment", s.environment, "path", s.root, "files", len(files))

	results := make([]SeedResult, 0, len(files))
	for _, f := range files {
		res, err := s.runFile(ctx, f)
		if err != nil {
			s.logger.Error("SQL file execution failed", "file", f.Path, "error", err)
			return results, fmt.Errorf("SQL file execution failed %s: %w", f.Path, err)
		}
		s.logger.Info("SQL file executed successfully", "file", f.Path, "duration", res.Duration, "rows_affected", res.RowsAffected)
		results = append(results, res)
	}
	return results, nil
}

func (s *Seeder) runFile(ctx context.Context, f SeedFile) (SeedResult, error) {
	start := time.Now()
	res := SeedResult{File: f.Path}
	content, err := os.ReadFile(f.Path)
	if err != nil {
		return res, fmt.Errorf("failed to read file: %w", err)
	}
	statements := splitStatements(s.expand(string(content)))

	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, stmt := range statements {
			r, err := tx.ExecContext(ctx, stmt)
			if err != nil {
				return fmt.Errorf("failed to execute SQL statement: %s, error: %w", stmt, err)
			}
			n, _ := r.RowsAffected()
			res.RowsAffected += n
		}
		return nil
	})
	res.Duration = time.Since(start)
	return res, err
}

func (s *Seeder) expand(content string) string {
	return seedVarPattern.ReplaceAllStringFunc(content, func(m string) string {
		name := seedVarPattern.FindStringSubmatch(m)[1]
		if name == "ENVIRONMENT" {
			return s.environment
		}
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return m
	})
}

// splitStatements splits on lines ending with ';', dropping blank lines and
// "--" comment lines.
func splitStatements(content string) []string {
	var statements []string
	var current strings.Builder

	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString(" ")
		if strings.HasSuffix(line, ";") {
			statements = append(statements, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}
	if stmt := strings.TrimSpace(current.String()); stmt != "" {
		statements = append(statements, stmt)
	}
	return statements
}
