// Package storage persists scaffolds, games, and rosters in SQLite
// (modernc.org/sqlite, pure Go). It implements game.Store; all scheduling
// and lifecycle decisions live in the game package.
package storage
