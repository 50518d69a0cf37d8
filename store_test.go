package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	client "github.com/merlionapp/go-client"
)

// fakeBackend serves canned responses per path and records request counts.
type fakeBackend struct {
	mu        sync.Mutex
	responses map[string]backendResponse
	hits      map[string]int
	server    *httptest.Server
}

type backendResponse struct {
	status  int
	payload string
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{
		responses: map[string]backendResponse{},
		hits:      map[string]int{},
	}
	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.hits[r.URL.Path]++
		resp, ok := b.responses[r.URL.Path]
		b.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"not found"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.status)
		_, _ = w.Write([]byte(resp.payload))
	}))
	t.Cleanup(b.server.Close)
	return b
}

func (b *fakeBackend) respond(path string, status int, payload string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.responses[path] = backendResponse{status: status, payload: payload}
}

func (b *fakeBackend) hitCount(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[path]
}

type storeFixture struct {
	store    *client.SessionStore
	provider *MockIdentityProvider
	storage  *client.MemoryStorage
	backend  *fakeBackend
}

func newStoreFixture(t *testing.T) *storeFixture {
	t.Helper()
	backend := newFakeBackend(t)
	provider := &MockIdentityProvider{}
	storage := client.NewMemoryStorage()
	api := client.NewAPIClient(backend.server.URL, storage, client.NewCredentialResolver(storage, provider))
	return &storeFixture{
		store:    client.NewSessionStore(provider, api, storage),
		provider: provider,
		storage:  storage,
		backend:  backend,
	}
}

// newOfflineFixture points the API client at a dead address so every backend
// call fails at the transport level.
func newOfflineFixture(t *testing.T) *storeFixture {
	t.Helper()
	provider := &MockIdentityProvider{}
	storage := client.NewMemoryStorage()
	api := client.NewAPIClient("http://127.0.0.1:1", storage, client.NewCredentialResolver(storage, provider))
	return &storeFixture{
		store:    client.NewSessionStore(provider, api, storage),
		provider: provider,
		storage:  storage,
	}
}

func identityFor(uid string) *client.IdentityUser {
	return &client.IdentityUser{UID: uid, Email: "6591234567@phone.local"}
}

func TestLoginBackendSyncedAdoptsBackendUser(t *testing.T) {
	f := newStoreFixture(t)
	f.backend.respond("/api/auth/login", http.StatusOK,
		`{"success":true,"user":{"uid":"u-1","phoneNumber":"+6591234567","name":"Alex Tan","role":"admin"}}`)
	f.backend.respond("/api/profile/completion-status", http.StatusOK,
		`{"success":true,"status":{"profileCompleted":true}}`)

	f.provider.On("SignIn", mock.Anything, "6591234567@phone.local", "secret123").
		Return(identityFor("u-1"), nil).Once()
	f.provider.On("IDToken", mock.Anything, false).Return("id-tok", nil)

	result, err := f.store.Login(context.Background(), "91234567", "secret123")
	require.NoError(t, err)
	assert.True(t, result.BackendSynced)

	session := f.store.Session()
	assert.True(t, session.IsAuthenticated)
	assert.True(t, session.IsAdmin)
	assert.True(t, session.ProfileCompleted)
	assert.Equal(t, "id-tok", session.Token)
	require.NotNil(t, session.User)
	assert.Equal(t, "Alex Tan", session.User.Name)
	assert.Equal(t, client.RoleAdmin, session.User.Role)

	// Token and user persisted together.
	tok, ok := f.storage.Get(client.StorageKeyToken)
	require.True(t, ok)
	assert.Equal(t, "id-tok", tok)
	raw, ok := f.storage.Get(client.StorageKeyUser)
	require.True(t, ok)
	stored := map[string]any{}
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	assert.Equal(t, "u-1", stored["uid"])

	f.provider.AssertExpectations(t)
}

func TestLoginBackendUnreachableFallsBackToProviderUser(t *testing.T) {
	f := newOfflineFixture(t)

	f.provider.On("SignIn", mock.Anything, "6591234567@phone.local", "secret123").
		Return(&client.IdentityUser{UID: "u-1", DisplayName: "Alex"}, nil).Once()
	f.provider.On("IDToken", mock.Anything, false).Return("id-tok", nil)

	result, err := f.store.Login(context.Background(), "+65 9123 4567", "secret123")
	require.NoError(t, err)
	assert.False(t, result.BackendSynced)

	session := f.store.Session()
	assert.True(t, session.IsAuthenticated)
	assert.False(t, session.IsAdmin)
	require.NotNil(t, session.User)
	assert.Equal(t, "u-1", session.User.UID)
	assert.Equal(t, "+6591234567", session.User.PhoneNumber)
	assert.Equal(t, client.RoleUser, session.User.Role)

	tok, ok := f.storage.Get(client.StorageKeyToken)
	require.True(t, ok)
	assert.Equal(t, "id-tok", tok)
}

func TestLoginUnknownBackendRoleFallsBackToUser(t *testing.T) {
	f := newStoreFixture(t)
	f.backend.respond("/api/auth/login", http.StatusOK,
		`{"success":true,"user":{"uid":"u-1","role":"superuser"}}`)

	f.provider.On("SignIn", mock.Anything, mock.Anything, mock.Anything).
		Return(identityFor("u-1"), nil).Once()
	f.provider.On("IDToken", mock.Anything, false).Return("id-tok", nil)

	_, err := f.store.Login(context.Background(), "91234567", "secret123")
	require.NoError(t, err)

	session := f.store.Session()
	assert.Equal(t, client.RoleUser, session.User.Role)
	assert.False(t, session.IsAdmin)
}

func TestLoginRejectsInvalidPhoneBeforeProvider(t *testing.T) {
	f := newStoreFixture(t)

	_, err := f.store.Login(context.Background(), "12345", "secret123")
	assert.ErrorIs(t, err, client.ErrInvalidPhone)

	f.provider.AssertNotCalled(t, "SignIn", mock.Anything, mock.Anything, mock.Anything)
	assert.False(t, f.store.IsAuthenticated())
	assert.NotEmpty(t, f.store.Session().LastError)
}

func TestLoginProviderRejectionSurfacesAuthError(t *testing.T) {
	f := newStoreFixture(t)

	f.provider.On("SignIn", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("INVALID_PASSWORD")).Once()

	_, err := f.store.Login(context.Background(), "91234567", "wrongpass")
	assert.ErrorIs(t, err, client.ErrIdentityAuth)
	assert.False(t, f.store.IsAuthenticated())

	_, ok := f.storage.Get(client.StorageKeyToken)
	assert.False(t, ok)
}

func TestSignupForcesIncompleteProfile(t *testing.T) {
	f := newStoreFixture(t)
	// Backend claims the profile is complete; new accounts still start
	// incomplete.
	f.backend.respond("/api/auth/login", http.StatusOK,
		`{"success":true,"user":{"uid":"u-9","role":"user","profileCompleted":true}}`)

	f.provider.On("CreateAccount", mock.Anything, "6598765432@phone.local", "secret123").
		Return(&client.IdentityUser{UID: "u-9"}, nil).Once()
	f.provider.On("UpdateDisplayName", mock.Anything, "Jamie Lee").Return(nil).Once()
	f.provider.On("IDToken", mock.Anything, false).Return("id-tok", nil)

	result, err := f.store.Signup(context.Background(), client.SignupInput{
		Phone:     "98765432",
		Password:  "secret123",
		FirstName: "Jamie",
		LastName:  "Lee",
	})
	require.NoError(t, err)
	assert.True(t, result.BackendSynced)

	session := f.store.Session()
	assert.True(t, session.IsAuthenticated)
	assert.False(t, session.ProfileCompleted)

	f.provider.AssertExpectations(t)
}

func TestSignupValidatesInputBeforeProvider(t *testing.T) {
	f := newStoreFixture(t)

	_, err := f.store.Signup(context.Background(), client.SignupInput{
		Phone:     "98765432",
		Password:  "short",
		FirstName: "Jamie",
	})
	require.Error(t, err)

	f.provider.AssertNotCalled(t, "CreateAccount", mock.Anything, mock.Anything, mock.Anything)
}

func TestSignupSurvivesDisplayNameFailure(t *testing.T) {
	f := newOfflineFixture(t)

	f.provider.On("CreateAccount", mock.Anything, mock.Anything, mock.Anything).
		Return(&client.IdentityUser{UID: "u-9"}, nil).Once()
	f.provider.On("UpdateDisplayName", mock.Anything, "Jamie").
		Return(errors.New("transient")).Once()
	f.provider.On("IDToken", mock.Anything, false).Return("id-tok", nil)

	result, err := f.store.Signup(context.Background(), client.SignupInput{
		Phone:     "98765432",
		Password:  "secret123",
		FirstName: "Jamie",
	})
	require.NoError(t, err)
	assert.False(t, result.BackendSynced)
	assert.True(t, f.store.IsAuthenticated())
}

func TestLogoutClearsSessionAndStorage(t *testing.T) {
	f := newStoreFixture(t)
	f.backend.respond("/api/auth/login", http.StatusOK, `{"success":true,"user":{"uid":"u-1","role":"user"}}`)

	f.provider.On("SignIn", mock.Anything, mock.Anything, mock.Anything).
		Return(identityFor("u-1"), nil).Once()
	f.provider.On("IDToken", mock.Anything, false).Return("id-tok", nil)
	f.provider.On("SignOut", mock.Anything).Return(nil).Once()

	_, err := f.store.Login(context.Background(), "91234567", "secret123")
	require.NoError(t, err)

	require.NoError(t, f.store.Logout(context.Background()))

	session := f.store.Session()
	assert.False(t, session.IsAuthenticated)
	assert.Nil(t, session.User)
	assert.Empty(t, session.Token)

	_, ok := f.storage.Get(client.StorageKeyToken)
	assert.False(t, ok)
	_, ok = f.storage.Get(client.StorageKeyUser)
	assert.False(t, ok)
}

func TestLogoutProviderFailureLeavesSessionIntact(t *testing.T) {
	f := newStoreFixture(t)
	f.backend.respond("/api/auth/login", http.StatusOK, `{"success":true,"user":{"uid":"u-1","role":"user"}}`)

	f.provider.On("SignIn", mock.Anything, mock.Anything, mock.Anything).
		Return(identityFor("u-1"), nil).Once()
	f.provider.On("IDToken", mock.Anything, false).Return("id-tok", nil)
	f.provider.On("SignOut", mock.Anything).Return(errors.New("network down")).Once()

	_, err := f.store.Login(context.Background(), "91234567", "secret123")
	require.NoError(t, err)

	err = f.store.Logout(context.Background())
	assert.ErrorIs(t, err, client.ErrSignOutFailed)

	assert.True(t, f.store.IsAuthenticated())
	_, ok := f.storage.Get(client.StorageKeyToken)
	assert.True(t, ok)
}

func TestInitializeAuthNoStoredSession(t *testing.T) {
	f := newStoreFixture(t)
	assert.False(t, f.store.InitializeAuth(context.Background()))
	assert.Zero(t, f.backend.hitCount("/api/auth/verify"))
}

func TestInitializeAuthVerifyUnreachableKeepsSession(t *testing.T) {
	f := newOfflineFixture(t)
	f.storage.Set(client.StorageKeyToken, "stored-tok")
	f.storage.Set(client.StorageKeyUser, `{"uid":"u-1","phoneNumber":"+6591234567","role":"admin"}`)

	f.provider.On("IDToken", mock.Anything, false).Return("", errors.New("no session"))

	assert.True(t, f.store.InitializeAuth(context.Background()))

	session := f.store.Session()
	assert.True(t, session.IsAuthenticated)
	assert.True(t, session.IsAdmin)
	assert.Equal(t, "stored-tok", session.Token)
	require.NotNil(t, session.User)
	assert.Equal(t, "u-1", session.User.UID)
}

func TestInitializeAuthVerifyInvalidClearsSession(t *testing.T) {
	f := newStoreFixture(t)
	f.backend.respond("/api/auth/verify", http.StatusUnauthorized, `{"valid":false}`)
	f.storage.Set(client.StorageKeyToken, "stale-tok")
	f.storage.Set(client.StorageKeyUser, `{"uid":"u-1","role":"user"}`)

	f.provider.On("IDToken", mock.Anything, false).Return("", errors.New("no session"))

	assert.False(t, f.store.InitializeAuth(context.Background()))

	session := f.store.Session()
	assert.False(t, session.IsAuthenticated)
	assert.Nil(t, session.User)

	_, ok := f.storage.Get(client.StorageKeyToken)
	assert.False(t, ok)
	_, ok = f.storage.Get(client.StorageKeyUser)
	assert.False(t, ok)
}

func TestInitializeAuthVerifyValidRefreshesCompletion(t *testing.T) {
	f := newStoreFixture(t)
	f.backend.respond("/api/auth/verify", http.StatusOK, `{"valid":true,"uid":"u-1"}`)
	f.backend.respond("/api/profile/completion-status", http.StatusOK,
		`{"success":true,"status":{"profileCompleted":true}}`)
	f.storage.Set(client.StorageKeyToken, "stored-tok")
	f.storage.Set(client.StorageKeyUser, `{"uid":"u-1","role":"user"}`)

	f.provider.On("IDToken", mock.Anything, false).Return("", errors.New("no session"))

	assert.True(t, f.store.InitializeAuth(context.Background()))

	session := f.store.Session()
	assert.True(t, session.IsAuthenticated)
	assert.True(t, session.ProfileCompleted)
}

func TestInitializeAuthCorruptStoredUserClears(t *testing.T) {
	f := newStoreFixture(t)
	f.storage.Set(client.StorageKeyToken, "stored-tok")
	f.storage.Set(client.StorageKeyUser, "{not json")

	assert.False(t, f.store.InitializeAuth(context.Background()))
	_, ok := f.storage.Get(client.StorageKeyToken)
	assert.False(t, ok)
}

func TestHandleAuthChangeSignedOutClearsAndResolvesReady(t *testing.T) {
	f := newStoreFixture(t)
	f.store.Start(context.Background())
	defer f.store.Stop()

	// MockIdentityProvider.Start emits a signed-out state.
	assert.True(t, f.store.Ready().Resolved())
	assert.False(t, f.store.IsAuthenticated())
}

func TestHandleAuthChangeSignedInFetchesProfile(t *testing.T) {
	f := newStoreFixture(t)
	f.backend.respond("/api/profile", http.StatusOK,
		`{"success":true,"profile":{"uid":"u-1","name":"Alex Tan","role":"admin","interests":["tennis"],"profileCompleted":true}}`)

	f.provider.On("IDToken", mock.Anything, false).Return("id-tok", nil)

	f.store.Start(context.Background())
	defer f.store.Stop()

	f.provider.Emit(&client.IdentityUser{
		UID:         "u-1",
		Email:       "6591234567@phone.local",
		DisplayName: "Alex",
	})

	session := f.store.Session()
	assert.True(t, session.IsAuthenticated)
	assert.True(t, session.ProfileCompleted)
	assert.True(t, session.IsAdmin)
	require.NotNil(t, session.User)
	assert.Equal(t, "Alex Tan", session.User.Name)
	assert.Equal(t, "+6591234567", session.User.PhoneNumber)
	assert.Equal(t, []any{"tennis"}, session.User.Extra["interests"])
	assert.True(t, f.store.Ready().Resolved())
}

func TestHandleAuthChangeLaterSignOutClearsSession(t *testing.T) {
	f := newStoreFixture(t)
	f.backend.respond("/api/profile", http.StatusOK, `{"success":true,"profile":{"uid":"u-1"}}`)

	f.provider.On("IDToken", mock.Anything, false).Return("id-tok", nil)

	f.store.Start(context.Background())
	defer f.store.Stop()

	f.provider.Emit(&client.IdentityUser{UID: "u-1"})
	require.True(t, f.store.IsAuthenticated())

	f.provider.Emit(nil)
	assert.False(t, f.store.IsAuthenticated())
}

func TestUpdateProfileMergesAcknowledgedFields(t *testing.T) {
	f := newStoreFixture(t)
	f.backend.respond("/api/auth/login", http.StatusOK, `{"success":true,"user":{"uid":"u-1","role":"user"}}`)
	f.backend.respond("/api/profile", http.StatusOK,
		`{"success":true,"updated":{"name":"Alex T.","occupation":"engineer"},"profileCompleted":true}`)

	f.provider.On("SignIn", mock.Anything, mock.Anything, mock.Anything).
		Return(identityFor("u-1"), nil).Once()
	f.provider.On("IDToken", mock.Anything, false).Return("id-tok", nil)

	_, err := f.store.Login(context.Background(), "91234567", "secret123")
	require.NoError(t, err)

	err = f.store.UpdateProfile(context.Background(), map[string]any{
		"name":       "Alex T.",
		"occupation": "engineer",
	})
	require.NoError(t, err)

	session := f.store.Session()
	assert.True(t, session.ProfileCompleted)
	assert.Equal(t, "Alex T.", session.User.Name)
	assert.Equal(t, "engineer", session.User.Extra["occupation"])
}

func TestCheckProfileCompletionFailureLeavesFlagUntouched(t *testing.T) {
	f := newOfflineFixture(t)
	f.provider.On("IDToken", mock.Anything, false).Return("", errors.New("no session"))

	assert.Nil(t, f.store.CheckProfileCompletion(context.Background()))
	assert.False(t, f.store.Session().ProfileCompleted)
}

func TestSessionStoreActivityEvents(t *testing.T) {
	f := newStoreFixture(t)
	f.backend.respond("/api/auth/login", http.StatusOK, `{"success":true,"user":{"uid":"u-1","role":"user"}}`)

	var mu sync.Mutex
	events := []client.ActivityEvent{}
	f.store.WithActivitySink(client.ActivitySinkFunc(func(ctx context.Context, e client.ActivityEvent) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
		return nil
	}))

	f.provider.On("SignIn", mock.Anything, mock.Anything, mock.Anything).
		Return(identityFor("u-1"), nil).Once()
	f.provider.On("IDToken", mock.Anything, false).Return("id-tok", nil)
	f.provider.On("SignOut", mock.Anything).Return(nil).Once()

	_, err := f.store.Login(context.Background(), "91234567", "secret123")
	require.NoError(t, err)
	require.NoError(t, f.store.Logout(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 2)
	assert.Equal(t, client.ActivityEventLoginSuccess, events[0].EventType)
	assert.Equal(t, "u-1", events[0].UserID)
	assert.Equal(t, client.ActivityEventLogout, events[1].EventType)
	assert.WithinDuration(t, time.Now(), events[0].OccurredAt, time.Minute)
}

func TestClearErrorResetsLastError(t *testing.T) {
	f := newStoreFixture(t)

	_, err := f.store.Login(context.Background(), "bad", "secret123")
	require.Error(t, err)
	require.NotEmpty(t, f.store.Session().LastError)

	f.store.ClearError()
	assert.Empty(t, f.store.Session().LastError)
}
