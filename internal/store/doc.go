// Package store is the single writer of questledger's persistent state:
// profiles, per-profile entry statuses, the catalog blob and the sync run log.
// All of it lives in one SQLite file opened through sqlitedb and upgraded by
// migrate before any query runs.
package store
