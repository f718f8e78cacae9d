// Package scheduler runs harvest cycles on a fixed interval for watch mode.
package scheduler
