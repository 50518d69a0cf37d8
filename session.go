package client

import "encoding/json"

// User is the session's view of the account: the provider handle plus
// whatever profile fields the backend has reported so far.
type User struct {
	UID         string         `json:"uid"`
	PhoneNumber string         `json:"phoneNumber,omitempty"`
	Name        string         `json:"name,omitempty"`
	Role        UserRole       `json:"role,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// Clone returns a deep copy safe to hand to callers.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	if u.Extra != nil {
		out.Extra = make(map[string]any, len(u.Extra))
		for k, v := range u.Extra {
			out.Extra[k] = v
		}
	}
	return &out
}

// mergeProfile folds backend profile fields into the user record. Known
// fields map onto the struct; everything else lands in Extra.
func (u *User) mergeProfile(fields map[string]any) {
	for k, v := range fields {
		switch k {
		case "uid":
			if s, ok := v.(string); ok && s != "" {
				u.UID = s
			}
		case "phoneNumber":
			if s, ok := v.(string); ok && s != "" {
				u.PhoneNumber = s
			}
		case "name":
			if s, ok := v.(string); ok {
				u.Name = s
			}
		case "role":
			if s, ok := v.(string); ok && s != "" {
				u.Role, _ = ParseRole(s)
			}
		case "profileCompleted":
			// tracked on the session, not the user record
		default:
			if u.Extra == nil {
				u.Extra = map[string]any{}
			}
			u.Extra[k] = v
		}
	}
}

func (u *User) marshal() (string, error) {
	raw, err := json.Marshal(u)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func unmarshalUser(raw string) (*User, error) {
	u := new(User)
	if err := json.Unmarshal([]byte(raw), u); err != nil {
		return nil, err
	}
	return u, nil
}

// Session holds the reconciled auth state. Invariant: when IsAuthenticated is
// false, User is nil and ProfileCompleted is false; Token and User are always
// persisted and cleared together.
type Session struct {
	User             *User
	IsAuthenticated  bool
	ProfileCompleted bool
	IsAdmin          bool
	Token            string
	Loading          bool
	LastError        string
}

// IsLoggedIn reports whether an authenticated session is active.
func (s Session) IsLoggedIn() bool {
	return s.IsAuthenticated
}

// NeedsProfileCompletion reports whether the user still has to finish their
// profile before reaching the main app.
func (s Session) NeedsProfileCompletion() bool {
	return s.IsAuthenticated && !s.ProfileCompleted
}

// CanAccessAdmin reports whether admin-only routes are reachable.
func (s Session) CanAccessAdmin() bool {
	return s.IsAdmin
}

func (s Session) clone() Session {
	out := s
	out.User = s.User.Clone()
	return out
}
