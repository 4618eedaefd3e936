// Package scheduler drives the engine's poll cycles and liveness beat on
// gocron. Poll runs never overlap, and Stop waits for a cycle in progress.
//
// The scheduler is implemented in jobs.go
package scheduler
