// Package state stores harvest high-water marks by namespace and key.
//
// Three backends implement Store: a JSON file written atomically on every
// update, a SQLite table, and an in-memory map for tests and dry runs.
package state
