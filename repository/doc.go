// Package repository provides a generic repository over bun bound to a unit
// of work: find, list, add, update and remove by key, plus filtered, projected
// and paged queries narrowed by optional fixed conditions.
package repository
