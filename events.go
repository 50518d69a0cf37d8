package client

import "context"

// Event is an entry in the discovery feed.
type Event struct {
	ID              string `json:"id"`
	Title           string `json:"title,omitempty"`
	Description     string `json:"description,omitempty"`
	Category        string `json:"category,omitempty"`
	Location        string `json:"location,omitempty"`
	Date            string `json:"date,omitempty"`
	Time            string `json:"time,omitempty"`
	MaxParticipants int    `json:"maxParticipants,omitempty"`
	ImageURL        string `json:"imageUrl,omitempty"`
}

// EventFilter narrows the discovery listing.
type EventFilter struct {
	Category string
	Status   string
	Limit    string
	Cursor   string
}

func (f *EventFilter) params() map[string]string {
	if f == nil {
		return nil
	}
	return map[string]string{
		"category": f.Category,
		"status":   f.Status,
		"limit":    f.Limit,
		"cursor":   f.Cursor,
	}
}

type eventsEnvelope struct {
	Success bool    `json:"success"`
	Events  []Event `json:"events"`
}

type eventEnvelope struct {
	Success bool   `json:"success"`
	Event   *Event `json:"event"`
}

// EventsAPI is the typed surface over the backend event endpoints.
type EventsAPI struct {
	api *APIClient
}

func NewEventsAPI(api *APIClient) *EventsAPI {
	return &EventsAPI{api: api}
}

// List returns the discovery feed, optionally filtered.
func (e *EventsAPI) List(ctx context.Context, filter *EventFilter) ([]Event, error) {
	resp, err := e.api.Get(ctx, "/api/events", filter.params())
	if err != nil {
		return nil, err
	}
	envelope := eventsEnvelope{}
	if err := resp.Decode(&envelope); err != nil {
		return nil, err
	}
	return envelope.Events, nil
}

// Get returns a single event by ID.
func (e *EventsAPI) Get(ctx context.Context, eventID string) (*Event, error) {
	resp, err := e.api.Get(ctx, "/api/events/"+eventID, nil)
	if err != nil {
		return nil, err
	}
	envelope := eventEnvelope{}
	if err := resp.Decode(&envelope); err != nil {
		return nil, err
	}
	return envelope.Event, nil
}

// Create registers a new event. Admin only; the guard mirrors this with the
// event-creation route flag.
func (e *EventsAPI) Create(ctx context.Context, event Event) (*Event, error) {
	resp, err := e.api.Post(ctx, "/api/admin/events", event)
	if err != nil {
		return nil, err
	}
	envelope := eventEnvelope{}
	if err := resp.Decode(&envelope); err != nil {
		return nil, err
	}
	return envelope.Event, nil
}

// Suggest submits an event suggestion for admin review.
func (e *EventsAPI) Suggest(ctx context.Context, event Event) error {
	_, err := e.api.Post(ctx, "/api/suggestions", event)
	return err
}
