// Package sqlstore implements the relational repositories on database/sql.
//
// Two dialects share every query: PostgreSQL through the pgx stdlib driver,
// with JSONB fragments and pgvector columns, and SQLite through
// modernc.org/sqlite, with JSON and vectors stored as text. Queries are
// written with $N placeholders and rebound for SQLite.
//
// The SQLite pool is limited to one connection because temporary staging
// tables and :memory: databases belong to a single connection.
package sqlstore
