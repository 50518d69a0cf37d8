package client

import (
	"context"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
)

// LoginResult reports the outcome of a login or signup. BackendSynced is
// false when the identity provider accepted the credentials but the backend
// handshake was skipped or failed; the session is still authenticated.
type LoginResult struct {
	BackendSynced bool
}

// SignupInput carries the enrollment fields for a new account.
type SignupInput struct {
	Phone     string
	Password  string
	FirstName string
	LastName  string
	FINNumber string
}

// Validate enforces the enrollment constraints before any provider call.
func (r SignupInput) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Phone, validation.Required),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 100)),
		validation.Field(&r.FirstName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.LastName, validation.Length(0, 200)),
		validation.Field(&r.FINNumber, validation.Length(0, 20)),
	)
}

// CompletionStatus is the backend's profile-completion report.
type CompletionStatus struct {
	ProfileCompleted bool `json:"profileCompleted"`
}

type loginEnvelope struct {
	Success bool  `json:"success"`
	User    *User `json:"user"`
}

type profileEnvelope struct {
	Success bool           `json:"success"`
	Profile map[string]any `json:"profile"`
}

type updateEnvelope struct {
	Success          bool           `json:"success"`
	Updated          map[string]any `json:"updated"`
	ProfileCompleted bool           `json:"profileCompleted"`
}

type completionEnvelope struct {
	Success bool             `json:"success"`
	Status  CompletionStatus `json:"status"`
}

// SessionStore owns the process-wide Session and reconciles the identity
// provider's auth-change stream, locally persisted session data, and the
// backend's authoritative profile record.
type SessionStore struct {
	mu      sync.Mutex
	session Session

	provider IdentityProvider
	api      *APIClient
	storage  Storage
	ready    *ReadySignal
	activity ActivitySink
	logger   Logger

	unsubscribe func()
}

func NewSessionStore(provider IdentityProvider, api *APIClient, storage Storage) *SessionStore {
	return &SessionStore{
		provider: provider,
		api:      api,
		storage:  storage,
		ready:    NewReadySignal(),
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

func (s *SessionStore) WithLogger(l Logger) *SessionStore {
	if l != nil {
		s.logger = l
	}
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *SessionStore) WithActivitySink(sink ActivitySink) *SessionStore {
	s.activity = normalizeActivitySink(sink)
	return s
}

// Start binds the provider auth-change handler and triggers the provider's
// initial session restoration. Call once at process start.
func (s *SessionStore) Start(ctx context.Context) {
	s.unsubscribe = s.provider.OnAuthChange(func(user *IdentityUser) {
		s.HandleAuthChange(ctx, user)
	})
	s.provider.Start(ctx)
}

// Stop detaches the provider subscription.
func (s *SessionStore) Stop() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

// Ready returns the one-shot barrier resolved on the provider's first
// auth-change emission.
func (s *SessionStore) Ready() *ReadySignal {
	return s.ready
}

// Session returns a copy of the current session state.
func (s *SessionStore) Session() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.clone()
}

// IsAuthenticated reports whether an authenticated session is active.
func (s *SessionStore) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.IsAuthenticated
}

// ClearError resets the last recorded operation error.
func (s *SessionStore) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.LastError = ""
}

// Login authenticates a phone/password pair. Identity-provider success is
// authoritative for "logged in": when the backend handshake is unreachable or
// rejects, the session falls back to a minimal user record built from the
// provider's own profile fields and the result reports BackendSynced=false.
func (s *SessionStore) Login(ctx context.Context, phone, password string) (*LoginResult, error) {
	s.setLoading(true)
	defer s.setLoading(false)

	formatted, err := NormalizePhone(phone)
	if err != nil {
		s.recordError(err)
		return nil, err
	}

	alias, err := PhoneToEmail(formatted)
	if err != nil {
		s.recordError(err)
		return nil, err
	}

	identity, err := s.provider.SignIn(ctx, alias, password)
	if err != nil {
		s.recordError(err)
		s.emit(ctx, ActivityEventLoginFailure, "", map[string]any{
			"phone": formatted,
			"error": err.Error(),
		})
		return nil, ErrIdentityAuth.WithMetadata(map[string]any{
			"phone": formatted,
			"cause": err.Error(),
		})
	}

	token, err := s.provider.IDToken(ctx, false)
	if err != nil || token == "" {
		// Token fetch right after a successful sign-in failing is a provider
		// fault, treated the same as a rejected credential.
		s.recordError(err)
		return nil, ErrIdentityAuth.WithMetadata(map[string]any{"phone": formatted})
	}

	user, backendSynced := s.backendHandshake(ctx, token, &LoginExtra{PhoneNumber: formatted})
	if user == nil {
		user = fallbackUser(identity, formatted, "")
	}

	s.establishSession(token, user)

	// Profile completion may still require the backend; transient failures
	// leave the default in place.
	s.CheckProfileCompletion(ctx)

	s.emit(ctx, ActivityEventLoginSuccess, user.UID, map[string]any{
		"phone":          formatted,
		"backend_synced": backendSynced,
	})

	return &LoginResult{BackendSynced: backendSynced}, nil
}

// Signup creates a new identity-provider account and provisions it with the
// backend. Backend failures follow the same fallback policy as Login. New
// accounts always start with an incomplete profile regardless of the backend
// response.
func (s *SessionStore) Signup(ctx context.Context, input SignupInput) (*LoginResult, error) {
	s.setLoading(true)
	defer s.setLoading(false)

	if err := input.Validate(); err != nil {
		s.recordError(err)
		return nil, err
	}

	formatted, err := NormalizePhone(input.Phone)
	if err != nil {
		s.recordError(err)
		return nil, err
	}

	alias, err := PhoneToEmail(formatted)
	if err != nil {
		s.recordError(err)
		return nil, err
	}

	identity, err := s.provider.CreateAccount(ctx, alias, input.Password)
	if err != nil {
		s.recordError(err)
		s.emit(ctx, ActivityEventSignupFailure, "", map[string]any{
			"phone": formatted,
			"error": err.Error(),
		})
		return nil, ErrIdentityAuth.WithMetadata(map[string]any{
			"phone": formatted,
			"cause": err.Error(),
		})
	}

	displayName := strings.TrimSpace(strings.TrimSpace(input.FirstName) + " " + strings.TrimSpace(input.LastName))
	if displayName != "" {
		if err := s.provider.UpdateDisplayName(ctx, displayName); err != nil {
			s.logger.Warn("signup: update display name failed: %v", err)
		}
	}

	token, err := s.provider.IDToken(ctx, false)
	if err != nil || token == "" {
		s.recordError(err)
		return nil, ErrIdentityAuth.WithMetadata(map[string]any{"phone": formatted})
	}

	user, backendSynced := s.backendHandshake(ctx, token, &LoginExtra{
		PhoneNumber: formatted,
		Name:        displayName,
		FINNumber:   input.FINNumber,
	})
	if user == nil {
		user = fallbackUser(identity, formatted, displayName)
	}

	s.establishSession(token, user)

	// New accounts always start incomplete.
	s.mu.Lock()
	s.session.ProfileCompleted = false
	s.mu.Unlock()

	s.emit(ctx, ActivityEventSignupSuccess, user.UID, map[string]any{
		"phone":          formatted,
		"backend_synced": backendSynced,
	})

	return &LoginResult{BackendSynced: backendSynced}, nil
}

// Logout signs out of the identity provider, then clears local state. When
// the provider call itself fails the local session is deliberately left
// untouched: an inconsistent remote/local split is worse than a stuck
// session.
func (s *SessionStore) Logout(ctx context.Context) error {
	uid := ""
	if sess := s.Session(); sess.User != nil {
		uid = sess.User.UID
	}

	if err := s.provider.SignOut(ctx); err != nil {
		s.recordError(err)
		return ErrSignOutFailed.WithMetadata(map[string]any{"cause": err.Error()})
	}

	s.ClearSessionLocal()
	s.emit(ctx, ActivityEventLogout, uid, nil)
	return nil
}

// ClearSessionLocal clears the session and durable storage without contacting
// the identity provider. Used when the provider itself reports a sign-out, or
// when the backend explicitly rejects the stored credential.
func (s *SessionStore) ClearSessionLocal() {
	s.mu.Lock()
	s.session = Session{Loading: s.session.Loading}
	s.mu.Unlock()

	if s.storage != nil {
		s.storage.Delete(StorageKeyToken)
		s.storage.Delete(StorageKeyUser)
	}
}

// InitializeAuth restores a session from durable storage, then verifies it
// with the backend best-effort. Three outcomes: confirmed valid (keep,
// refresh completion status), explicitly invalid (clear), or verify failed
// (keep the provisional session: transient infrastructure failure must not
// force a spurious logout). Returns whether an authenticated session is
// active afterwards.
func (s *SessionStore) InitializeAuth(ctx context.Context) bool {
	if s.storage == nil {
		return s.IsAuthenticated()
	}

	storedToken, okToken := s.storage.Get(StorageKeyToken)
	storedUser, okUser := s.storage.Get(StorageKeyUser)
	if !okToken || !okUser || storedToken == "" || storedUser == "" {
		return s.IsAuthenticated()
	}

	user, err := unmarshalUser(storedUser)
	if err != nil {
		s.logger.Warn("initialize: stored user unreadable, dropping session: %v", err)
		s.ClearSessionLocal()
		return false
	}

	// Trust local state first so the UI has no flicker window while the
	// verify round-trip is in flight.
	s.mu.Lock()
	s.session.Token = storedToken
	s.session.User = user
	s.session.IsAuthenticated = true
	s.session.IsAdmin = user.Role.IsAdmin()
	s.mu.Unlock()

	result, err := s.api.Verify(ctx)
	if err != nil {
		s.logger.Warn("initialize: verify unreachable, keeping local session: %v", err)
		return true
	}

	if !result.Valid {
		s.ClearSessionLocal()
		s.emit(ctx, ActivityEventSessionCleared, user.UID, map[string]any{"reason": "verify_invalid"})
		return false
	}

	s.CheckProfileCompletion(ctx)
	s.emit(ctx, ActivityEventSessionRestored, user.UID, nil)
	return true
}

// HandleAuthChange is the identity-provider event handler. Every emission
// resolves the readiness barrier; a signed-in emission refreshes the profile
// from the backend, a signed-out emission clears local state. The full Logout
// path is never taken here: the provider is the one reporting the sign-out.
func (s *SessionStore) HandleAuthChange(ctx context.Context, user *IdentityUser) {
	defer s.ready.Resolve()

	if user == nil {
		wasAuthenticated := s.IsAuthenticated()
		s.ClearSessionLocal()
		if wasAuthenticated {
			s.emit(ctx, ActivityEventSessionCleared, "", map[string]any{"reason": "provider_signed_out"})
		}
		return
	}

	s.mu.Lock()
	if s.session.User == nil {
		s.session.User = &User{
			UID:         user.UID,
			PhoneNumber: EmailToPhone(user.Email),
			Name:        user.DisplayName,
			Role:        RoleUser,
		}
	}
	s.session.IsAuthenticated = true
	s.session.IsAdmin = s.session.User.Role.IsAdmin()
	s.mu.Unlock()

	if _, err := s.FetchProfile(ctx); err != nil {
		s.logger.Warn("auth change: profile refresh failed: %v", err)
	}
}

// FetchProfile retrieves the remote profile record and merges it into the
// session user. Backend failures surface as errors without altering the
// authenticated state.
func (s *SessionStore) FetchProfile(ctx context.Context) (map[string]any, error) {
	resp, err := s.api.Get(ctx, "/api/profile", nil)
	if err != nil {
		s.recordError(err)
		return nil, err
	}

	envelope := profileEnvelope{}
	if err := resp.Decode(&envelope); err != nil {
		return nil, err
	}
	if !envelope.Success || envelope.Profile == nil {
		return nil, nil
	}

	s.mu.Lock()
	if s.session.User == nil {
		s.session.User = &User{}
	}
	s.session.User.mergeProfile(envelope.Profile)
	if completed, ok := envelope.Profile["profileCompleted"].(bool); ok {
		s.session.ProfileCompleted = completed
	}
	s.session.IsAdmin = s.session.User.Role.IsAdmin()
	user := s.session.User.Clone()
	token := s.session.Token
	s.mu.Unlock()

	s.persistSession(token, user)
	return envelope.Profile, nil
}

// UpdateProfile persists a partial profile to the backend and merges the
// acknowledged fields into the session user.
func (s *SessionStore) UpdateProfile(ctx context.Context, data map[string]any) error {
	s.setLoading(true)
	defer s.setLoading(false)

	resp, err := s.api.Put(ctx, "/api/profile", data)
	if err != nil {
		s.recordError(err)
		return err
	}

	envelope := updateEnvelope{}
	if err := resp.Decode(&envelope); err != nil {
		return err
	}
	if !envelope.Success {
		return nil
	}

	s.mu.Lock()
	if s.session.User != nil {
		s.session.User.mergeProfile(envelope.Updated)
	}
	s.session.ProfileCompleted = envelope.ProfileCompleted
	user := s.session.User.Clone()
	token := s.session.Token
	s.mu.Unlock()

	s.persistSession(token, user)
	return nil
}

// CheckProfileCompletion refreshes only the ProfileCompleted flag. Failure is
// logged and reported as nil; no other state changes.
func (s *SessionStore) CheckProfileCompletion(ctx context.Context) *CompletionStatus {
	resp, err := s.api.Get(ctx, "/api/profile/completion-status", nil)
	if err != nil {
		s.logger.Warn("profile completion check failed: %v", err)
		return nil
	}

	envelope := completionEnvelope{}
	if err := resp.Decode(&envelope); err != nil {
		s.logger.Warn("profile completion check: bad payload: %v", err)
		return nil
	}
	if !envelope.Success {
		return nil
	}

	s.mu.Lock()
	s.session.ProfileCompleted = envelope.Status.ProfileCompleted
	s.mu.Unlock()

	status := envelope.Status
	return &status
}

// backendHandshake tries the backend login endpoint. Any failure is soft: it
// returns a nil user and lets the caller fall back to provider data.
func (s *SessionStore) backendHandshake(ctx context.Context, token string, extra *LoginExtra) (*User, bool) {
	resp, err := s.api.LoginWithIDToken(ctx, token, extra)
	if err != nil {
		s.logger.Warn("backend login failed, proceeding with provider session: %v", err)
		return nil, false
	}

	envelope := loginEnvelope{}
	if err := resp.Decode(&envelope); err != nil {
		s.logger.Warn("backend login: bad payload: %v", err)
		return nil, false
	}
	if !envelope.Success || envelope.User == nil {
		return nil, false
	}

	if _, ok := ParseRole(string(envelope.User.Role)); !ok {
		envelope.User.Role = RoleUser
	}
	return envelope.User, true
}

// establishSession installs an authenticated session and persists it.
func (s *SessionStore) establishSession(token string, user *User) {
	s.mu.Lock()
	s.session.User = user
	s.session.Token = token
	s.session.IsAuthenticated = true
	s.session.IsAdmin = user.Role.IsAdmin()
	s.session.LastError = ""
	s.mu.Unlock()

	s.persistSession(token, user)
}

// persistSession writes token and user together; they are never stored
// individually.
func (s *SessionStore) persistSession(token string, user *User) {
	if s.storage == nil || user == nil || token == "" {
		return
	}
	raw, err := user.marshal()
	if err != nil {
		s.logger.Warn("persist session: %v", err)
		return
	}
	s.storage.Set(StorageKeyToken, token)
	s.storage.Set(StorageKeyUser, raw)
}

func fallbackUser(identity *IdentityUser, phone, displayName string) *User {
	user := &User{
		PhoneNumber: phone,
		Role:        RoleUser,
	}
	if identity != nil {
		user.UID = identity.UID
		user.Name = identity.DisplayName
	}
	if displayName != "" {
		user.Name = displayName
	}
	return user
}

func (s *SessionStore) setLoading(v bool) {
	s.mu.Lock()
	s.session.Loading = v
	s.mu.Unlock()
}

func (s *SessionStore) recordError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.session.LastError = err.Error()
	s.mu.Unlock()
}

func (s *SessionStore) emit(ctx context.Context, eventType ActivityEventType, userID string, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		UserID:     userID,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}
	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}
	if err := normalizeActivitySink(s.activity).Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error: %v", err)
	}
}
