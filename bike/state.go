package bike

import (
	"fmt"

	"github.com/semanticallynull/bikeshare-backend/internal/apperrors"
)

type Event string

const (
	EventReserve  Event = "reserve"
	EventUnlock   Event = "unlock"
	EventExpire   Event = "expire"
	EventEndRide  Event = "end-ride"
	EventMaintain Event = "maintain"
	EventRestore  Event = "restore"
	// EventRelock returns a bike that was unlocked but never ridden.
	EventRelock Event = "relock"
)

// A bike in maintenance keeps that status when its reservation expires or
// its ride ends. Only a technician restore brings it back.
var transitions = map[Status]map[Event]Status{
	StatusAvailable: {
		EventReserve: StatusReserved,
	},
	StatusReserved: {
		EventUnlock: StatusInRide,
		EventExpire: StatusAvailable,
	},
	StatusInRide: {
		EventEndRide: StatusAvailable,
		EventRelock:  StatusAvailable,
	},
	StatusMaintenance: {
		EventExpire:  StatusMaintenance,
		EventEndRide: StatusMaintenance,
		EventRelock:  StatusMaintenance,
		EventRestore: StatusAvailable,
	},
}

// Next returns the status a bike moves to when ev happens in status from.
// Guards that depend on reservations and rides are checked by the callers
// holding the relevant row locks.
func Next(from Status, ev Event) (Status, error) {
	if ev == EventMaintain {
		if _, known := transitions[from]; known {
			return StatusMaintenance, nil
		}
	}

	to, ok := transitions[from][ev]
	if !ok {
		return "", fmt.Errorf("%w: cannot %s a bike that is %s", apperrors.ErrInvalidStateTransition, ev, from)
	}
	return to, nil
}

// holder is what still claims a bike when it leaves maintenance.
type holder struct {
	reserved bool
	unlocked bool
	riding   bool
}

// restoredStatus is the status a bike leaves maintenance in. A reservation
// or ride that outlived the maintenance gets its bike back in the state it
// expects.
func restoredStatus(h holder) Status {
	switch {
	case h.riding, h.unlocked:
		return StatusInRide
	case h.reserved:
		return StatusReserved
	}
	return StatusAvailable
}
