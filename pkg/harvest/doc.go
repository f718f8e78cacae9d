// Package harvest runs harvest cycles.
//
// A cycle parses a request into a Target, resolves the incremental window,
// pulls posts from the pagination engine and writes each one to a Sink
// before counting it. Timeline cycles move the window when the walk
// completes; topic search cycles move it post by post.
package harvest
