// Package core provides the domain models and collaborator interfaces for
// the publishing engine: scheduled posts, publish requests/results, queue
// jobs, and the error taxonomy shared by every adapter.
package core
