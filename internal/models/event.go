package models

import (
	"time"

	"github.com/google/uuid"
)

type Event struct {
	ID          uuid.UUID
	CreatedAt   time.Time
	Name        string
	Description string
	StartsAt    time.Time
	EndsAt      time.Time

	// PointsRemain is the undistributed part of the event's point budget
	PointsRemain int64

	// PointsAwarded is the total already handed out to guests
	PointsAwarded int64

	OrganizerIDs []uuid.UUID
	GuestIDs     []uuid.UUID
}

func (e Event) IsOrganizer(userID uuid.UUID) bool {
	for _, id := range e.OrganizerIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (e Event) IsGuest(userID uuid.UUID) bool {
	for _, id := range e.GuestIDs {
		if id == userID {
			return true
		}
	}
	return false
}
