// Package runner executes harvest requests concurrently. Each job builds its
// own client and pagination engine while all jobs share one state store.
package runner
