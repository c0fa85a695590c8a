/*
Package session contains the core logic for pairing anonymous participants.

This file defines the room registry: a bidirectional map from connection identity
to its active room. A room exists if and only if both members map to it; dissolve
removes both sides in a single step so a one-sided mapping can never be observed.
Like the waiting queue, the registry is owned by the Coordinator and mutated only
inside its critical section.
*/
package session

import "fmt"

// room is an ephemeral pairing of exactly two connections.
// Its identity is derived from the two member identities, which are unique per
// process, so the room identity is collision-free for concurrently active pairs.
type room struct {
	id string
	a  string
	b  string
}

// partnerOf returns the other member of the room.
func (r *room) partnerOf(connID string) string {
	if connID == r.a {
		return r.b
	}
	return r.a
}

// roomRegistry maps connection identities to their active room.
type roomRegistry struct {
	byConn map[string]*room
}

func newRoomRegistry() *roomRegistry {
	return &roomRegistry{
		byConn: make(map[string]*room),
	}
}

// pair creates a new room for a and b and records both directions.
// It fails if either connection already maps to a room.
func (rr *roomRegistry) pair(a, b string) (*room, error) {
	if existing, ok := rr.byConn[a]; ok {
		return nil, fmt.Errorf("connection %s is already paired in room %s", a, existing.id)
	}
	if existing, ok := rr.byConn[b]; ok {
		return nil, fmt.Errorf("connection %s is already paired in room %s", b, existing.id)
	}

	rm := &room{
		id: a + ":" + b,
		a:  a,
		b:  b,
	}
	rr.byConn[a] = rm
	rr.byConn[b] = rm
	return rm, nil
}

// lookup returns the room the connection currently maps to, if any.
func (rr *roomRegistry) lookup(connID string) (*room, bool) {
	rm, ok := rr.byConn[connID]
	return rm, ok
}

// partnerOf resolves the other member of the connection's room.
// The second return value is false when the connection is unpaired.
func (rr *roomRegistry) partnerOf(connID string) (string, bool) {
	rm, ok := rr.byConn[connID]
	if !ok {
		return "", false
	}
	return rm.partnerOf(connID), true
}

// dissolve removes the mapping for the connection and its partner as a single
// step and returns the partner identity so the caller can notify it.
// Dissolving an already-unpaired connection is a no-op.
func (rr *roomRegistry) dissolve(connID string) (string, bool) {
	rm, ok := rr.byConn[connID]
	if !ok {
		return "", false
	}

	partner := rm.partnerOf(connID)
	delete(rr.byConn, connID)
	delete(rr.byConn, partner)
	return partner, true
}

// size returns the number of active rooms.
func (rr *roomRegistry) size() int {
	return len(rr.byConn) / 2
}
