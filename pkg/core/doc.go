// Package core holds the job model, queue events, error taxonomy, and
// the Storage interface. It has no dependencies on the other queue
// packages so that storage, queue, and worker can all import it.
package core
