package client

import (
	"context"
)

// Route describes one navigable screen and its access requirements.
type Route struct {
	Path string
	Name string

	RequiresAuth  bool
	RequiresAdmin bool

	// AllowIncompleteProfile lets an authenticated user with an unfinished
	// profile reach this route (e.g. the profile-completion screen itself).
	AllowIncompleteProfile bool
}

// RouteTable maps paths to route metadata.
type RouteTable struct {
	routes map[string]Route
}

func NewRouteTable(routes ...Route) *RouteTable {
	t := &RouteTable{routes: map[string]Route{}}
	for _, r := range routes {
		t.routes[r.Path] = r
	}
	return t
}

func (t *RouteTable) Lookup(path string) (Route, bool) {
	r, ok := t.routes[path]
	return r, ok
}

// Default route paths for the event app.
const (
	RouteLogin           = "/login"
	RouteSignUp          = "/signup"
	RouteDiscover        = "/discover"
	RouteEvent           = "/event"
	RouteEventCreation   = "/event-creation"
	RouteEventSuggestion = "/event-suggestion"
	RouteProfile         = "/profile"
	RouteFriends         = "/friends"
	RouteFriendInfo      = "/friend-info"
)

// DefaultRouteTable mirrors the application's screen set.
func DefaultRouteTable() *RouteTable {
	return NewRouteTable(
		Route{Path: RouteLogin, Name: "Login"},
		Route{Path: RouteSignUp, Name: "SignUp"},
		Route{Path: RouteDiscover, Name: "Discover", RequiresAuth: true},
		Route{Path: RouteEvent, Name: "Event", RequiresAuth: true},
		Route{Path: RouteEventCreation, Name: "EventCreation", RequiresAuth: true, RequiresAdmin: true},
		Route{Path: RouteEventSuggestion, Name: "EventSuggestion", RequiresAuth: true},
		Route{Path: RouteProfile, Name: "Profile", RequiresAuth: true, AllowIncompleteProfile: true},
		Route{Path: RouteFriends, Name: "Friends", RequiresAuth: true},
		Route{Path: RouteFriendInfo, Name: "FriendInfo", RequiresAuth: true},
	)
}

// Decision is the guard's verdict on a route transition.
type Decision struct {
	Allowed  bool
	Location string

	// RedirectBack preserves the originally requested path so the target
	// screen can return the user after login/profile completion.
	RedirectBack string
}

func allow() Decision {
	return Decision{Allowed: true}
}

func redirect(to string) Decision {
	return Decision{Location: to}
}

func redirectBack(to, original string) Decision {
	return Decision{Location: to, RedirectBack: original}
}

// Guard gates route transitions on the reconciled session state.
type Guard struct {
	store  *SessionStore
	routes *RouteTable

	loginRoute   string
	landingRoute string
	profileRoute string

	logger Logger
}

func NewGuard(store *SessionStore, routes *RouteTable) *Guard {
	if routes == nil {
		routes = DefaultRouteTable()
	}
	return &Guard{
		store:        store,
		routes:       routes,
		loginRoute:   RouteLogin,
		landingRoute: RouteDiscover,
		profileRoute: RouteProfile,
		logger:       defLogger{},
	}
}

func (g *Guard) WithLogger(l Logger) *Guard {
	if l != nil {
		g.logger = l
	}
	return g
}

// WithRedirects overrides the login, landing, and profile-completion targets.
func (g *Guard) WithRedirects(login, landing, profile string) *Guard {
	if login != "" {
		g.loginRoute = login
	}
	if landing != "" {
		g.landingRoute = landing
	}
	if profile != "" {
		g.profileRoute = profile
	}
	return g
}

// Check decides a transition to target. It first awaits the readiness barrier
// so a hard reload never produces a false "not logged in" verdict before the
// provider has reported its restored session.
func (g *Guard) Check(ctx context.Context, target string) (Decision, error) {
	if err := g.store.Ready().Wait(ctx); err != nil {
		return Decision{}, err
	}

	if !g.store.IsAuthenticated() {
		g.store.InitializeAuth(ctx)
	}

	session := g.store.Session()
	route, known := g.routes.Lookup(target)

	if target == g.loginRoute && session.IsAuthenticated {
		return redirect(g.landingRoute), nil
	}

	if known && route.RequiresAuth && !session.IsAuthenticated {
		g.logger.Debug("guard: %s requires auth, redirecting to login", target)
		return redirectBack(g.loginRoute, target), nil
	}

	if session.NeedsProfileCompletion() && known && route.RequiresAuth && !route.AllowIncompleteProfile {
		g.logger.Debug("guard: %s blocked pending profile completion", target)
		return redirectBack(g.profileRoute, target), nil
	}

	if known && route.RequiresAdmin && !session.CanAccessAdmin() {
		g.logger.Debug("guard: %s requires admin", target)
		return redirect(g.landingRoute), nil
	}

	return allow(), nil
}
