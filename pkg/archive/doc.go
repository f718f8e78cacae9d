// Package archive stores harvested posts as JSON lines and replays them.
//
// A Writer receives every emitted post in order. Each line wraps the post
// exactly as the API returned it together with its item type and harvest
// key. Replay reads an archive back, and Report keeps the counters of the
// cycle that produced it.
package archive
