// Package database provides connection configuration, a bun-backed connection
// manager with health checks, query logging and metrics hooks, SQL error
// classification, model registration, migrations and SQL seed files.
package database
