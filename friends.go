package client

import "context"

// FriendAction is the verdict on a pending friend request.
type FriendAction string

const (
	FriendAccept FriendAction = "accept"
	FriendReject FriendAction = "reject"
)

// Friend is a connection in the user's friend list.
type Friend struct {
	UID         string `json:"uid,omitempty"`
	Name        string `json:"name,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

type friendsEnvelope struct {
	Success bool     `json:"success"`
	Friends []Friend `json:"friends"`
}

// FriendsAPI is the typed surface over the backend friends endpoints.
type FriendsAPI struct {
	api *APIClient
}

func NewFriendsAPI(api *APIClient) *FriendsAPI {
	return &FriendsAPI{api: api}
}

// Request sends a friend request addressed by the friend's phone-alias email.
func (f *FriendsAPI) Request(ctx context.Context, email string) error {
	_, err := f.api.Post(ctx, "/api/friends/request", map[string]any{"email": email})
	return err
}

// Respond accepts or rejects a pending request.
func (f *FriendsAPI) Respond(ctx context.Context, requestID string, action FriendAction) error {
	_, err := f.api.Put(ctx, "/api/friends/request/"+requestID, map[string]any{"action": string(action)})
	return err
}

// List returns the caller's friends.
func (f *FriendsAPI) List(ctx context.Context) ([]Friend, error) {
	resp, err := f.api.Get(ctx, "/api/friends", nil)
	if err != nil {
		return nil, err
	}
	envelope := friendsEnvelope{}
	if err := resp.Decode(&envelope); err != nil {
		return nil, err
	}
	return envelope.Friends, nil
}
