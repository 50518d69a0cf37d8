package client

import "context"

// Booking is a reservation against an event.
type Booking struct {
	ID           string   `json:"id,omitempty"`
	EventID      string   `json:"eventId"`
	GroupMembers []string `json:"groupMembers,omitempty"`
	Status       string   `json:"status,omitempty"`
}

type bookingsEnvelope struct {
	Success  bool      `json:"success"`
	Bookings []Booking `json:"bookings"`
}

// BookingsAPI is the typed surface over the backend booking endpoints.
type BookingsAPI struct {
	api *APIClient
}

func NewBookingsAPI(api *APIClient) *BookingsAPI {
	return &BookingsAPI{api: api}
}

// CreateIndividual books a single spot on an event.
func (b *BookingsAPI) CreateIndividual(ctx context.Context, eventID string) error {
	_, err := b.api.Post(ctx, "/api/bookings/individual", map[string]any{"eventId": eventID})
	return err
}

// CreateGroup books an event for the caller plus the listed members.
func (b *BookingsAPI) CreateGroup(ctx context.Context, eventID string, members []string) error {
	_, err := b.api.Post(ctx, "/api/bookings/group", map[string]any{
		"eventId":      eventID,
		"groupMembers": members,
	})
	return err
}

// ListMine returns the caller's bookings.
func (b *BookingsAPI) ListMine(ctx context.Context) ([]Booking, error) {
	resp, err := b.api.Get(ctx, "/api/bookings/my", nil)
	if err != nil {
		return nil, err
	}
	envelope := bookingsEnvelope{}
	if err := resp.Decode(&envelope); err != nil {
		return nil, err
	}
	return envelope.Bookings, nil
}
