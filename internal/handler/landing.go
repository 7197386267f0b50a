package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const landingPage = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>GitHub proxy</title></head>
<body>
<h1>GitHub proxy</h1>
<p>Prefix a GitHub URL with this server's origin to route it through the proxy:</p>
<pre>git clone {origin}/github.com/torvalds/linux
curl -LO {origin}/raw.githubusercontent.com/golang/go/master/README.md</pre>
<p>Allowed hosts: github.com, raw.githubusercontent.com, gist.github.com,
gist.githubusercontent.com, objects.githubusercontent.com,
codeload.github.com, github.githubassets.com.</p>
</body>
</html>
`

// LandingHandler serves the informational landing page.
type LandingHandler struct{}

// NewLandingHandler creates a LandingHandler.
func NewLandingHandler() *LandingHandler {
	return &LandingHandler{}
}

// Home renders a short usage page with the request's own origin substituted
// into the examples.
func (h *LandingHandler) Home(c echo.Context) error {
	origin := c.Scheme() + "://" + c.Request().Host
	page := strings.ReplaceAll(landingPage, "{origin}", origin)
	return c.HTML(http.StatusOK, page)
}
