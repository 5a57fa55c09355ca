// Package store is the persistence layer: job definitions and their
// execution history, backed by SQLite.
//
// Access goes through two typed repositories:
//   - JobRepository: CRUD over job definitions plus the scheduler's
//     list-enabled scan query
//   - ExecutionRepository: append-once/finish-once execution records,
//     history queries and per-job aggregates
package store
