package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/store"
)

// AllowAll authorizes every handshake. Used when no database is configured,
// typically local development.
type AllowAll struct{}

func (AllowAll) Authorize(ctx context.Context, req AttachRequest) error {
	if req.UserID == "" {
		return ErrUnauthorized
	}
	return nil
}

// StoreAuthorizer validates handshakes against the meeting store: the room
// must be an open meeting, and private meetings require the passcode.
type StoreAuthorizer struct {
	meetings *store.MeetingStore
}

// NewStoreAuthorizer creates a store-backed authorizer.
func NewStoreAuthorizer(meetings *store.MeetingStore) *StoreAuthorizer {
	return &StoreAuthorizer{meetings: meetings}
}

func (a *StoreAuthorizer) Authorize(ctx context.Context, req AttachRequest) error {
	if req.UserID == "" || req.Token == "" {
		return ErrUnauthorized
	}

	meetingID, err := uuid.Parse(req.RoomID)
	if err != nil {
		return ErrUnauthorized
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	meeting, err := a.meetings.GetMeeting(ctx, meetingID)
	if err != nil {
		return err
	}
	if meeting == nil || meeting.ClosedAt != nil {
		return ErrUnauthorized
	}

	if meeting.IsPrivate {
		hash, err := a.meetings.GetMeetingPasscodeHash(ctx, meetingID)
		if err != nil {
			return err
		}
		if hash == "" {
			return ErrUnauthorized
		}
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Passcode)) != nil {
			return ErrUnauthorized
		}
	}

	return nil
}
