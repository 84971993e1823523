// Package worker contains the Worker that claims and executes jobs, and
// the Supervisor that fans workers out, keeps them alive, runs the
// queue's maintenance loops, and re-queues in-flight work on shutdown.
package worker
