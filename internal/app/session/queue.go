/*
Package session contains the core logic for pairing anonymous participants.

This file defines the waiting queue: a FIFO holder of connections currently
seeking a partner. It is owned by the Coordinator and only mutated inside the
Coordinator's critical section, so it carries no locking of its own.
*/
package session

// waitingQueue holds connection identities in strict arrival order.
// An identity appears at most once.
type waitingQueue struct {
	order   []string
	members map[string]struct{}
}

func newWaitingQueue() *waitingQueue {
	return &waitingQueue{
		members: make(map[string]struct{}),
	}
}

// enqueue appends the identity unless it is already queued.
// It reports whether the identity was added.
func (q *waitingQueue) enqueue(connID string) bool {
	if _, queued := q.members[connID]; queued {
		return false
	}

	q.members[connID] = struct{}{}
	q.order = append(q.order, connID)
	return true
}

// dequeueOldest removes and returns the earliest-enqueued identity.
// The second return value is false when the queue is empty.
func (q *waitingQueue) dequeueOldest() (string, bool) {
	if len(q.order) == 0 {
		return "", false
	}

	connID := q.order[0]
	q.order = q.order[1:]
	delete(q.members, connID)
	return connID, true
}

// remove deletes an arbitrary member, preserving the relative order of the rest.
// It is a no-op when the identity is absent.
func (q *waitingQueue) remove(connID string) bool {
	if _, queued := q.members[connID]; !queued {
		return false
	}

	delete(q.members, connID)
	for i, id := range q.order {
		if id == connID {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return true
}

// contains reports whether the identity is currently queued.
func (q *waitingQueue) contains(connID string) bool {
	_, queued := q.members[connID]
	return queued
}

// size returns the number of waiting connections.
func (q *waitingQueue) size() int {
	return len(q.order)
}
