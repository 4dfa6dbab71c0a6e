// Package queue provides the in-memory priority job queue and its
// bounded-concurrency executor. Jobs dispatch by priority tier (high >
// normal > low), FIFO within a tier, with at most N jobs processing
// simultaneously. A failing job never affects the pool or other jobs.
package queue
