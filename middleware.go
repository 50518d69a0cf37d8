package client

import (
	"net/http"
	"net/url"

	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// RedirectParam is the query parameter carrying the originally requested path
// through a guard redirect.
const RedirectParam = "redirect"

// Middleware adapts the Guard to a router middleware: every route transition
// is checked and denied transitions are answered with a redirect.
func (g *Guard) Middleware() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			decision, err := g.Check(c.Context(), c.Path())
			if err != nil {
				return err
			}

			if decision.Allowed {
				return next(c)
			}

			g.logger.Info("navigation denied path=%s decision=%s", c.Path(), print.MaybePrettyJSON(decision))

			location := decision.Location
			if decision.RedirectBack != "" {
				location += "?" + RedirectParam + "=" + url.QueryEscape(decision.RedirectBack)
			}

			status := http.StatusSeeOther
			if c.Method() == string(router.GET) {
				status = http.StatusFound
			}
			return c.Redirect(location, status)
		}
	}
}
