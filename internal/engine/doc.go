// Package engine provides the task execution engine. It persists each
// submitted task as pending, then either runs its lifecycle in the caller's
// goroutine (blocking submissions) or in a detached goroutine, moving the task
// through running to finished and recording every transition in the store.
package engine
