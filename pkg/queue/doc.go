// Package queue implements the durable priority work queue: consumer
// registration, enqueueing with priority/delay/attempts, the promotion
// of delayed jobs, queue-depth counts, and the event/observer surface
// workers report through.
package queue
