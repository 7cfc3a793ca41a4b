package authgate

import (
	"net/http"
	"net/url"

	"github.com/gorilla/mux"
)

// RouteClass is a category of endpoints sharing one rate limit policy.
type RouteClass string

const (
	// Unmanaged routes are never rate limited.
	Unmanaged  RouteClass = ""
	Login      RouteClass = "LOGIN"
	Signup     RouteClass = "SIGNUP"
	Refresh    RouteClass = "REFRESH"
	PublicRead RouteClass = "PUBLIC_READ"
)

// RouteClasses lists every managed class.
var RouteClasses = []RouteClass{Login, Signup, Refresh, PublicRead}

// publicReadPatterns are the listing and detail endpoints readable without a session.
var publicReadPatterns = []string{
	"/api/posts",
	"/api/posts/{id:[0-9]+}",
	"/api/image-posts",
	"/api/image-posts/nearby",
	"/api/image-posts/{id:[0-9]+}",
	"/api/pins",
	"/api/pins/nearby",
	"/api/pins/{id:[0-9]+}/posts",
	"/api/pins/{id:[0-9]+}/image-posts",
	"/api/map/directions",
}

// RouteTable classifies requests by method and path.
// Exact sensitive endpoints are matched before the public read patterns.
type RouteTable struct {
	router *mux.Router
}

// DefaultRouteTable returns the table of sensitive and public read endpoints.
func DefaultRouteTable() *RouteTable {
	t := NewRouteTable()
	t.Handle(http.MethodPost, "/api/auth/login", Login)
	t.Handle(http.MethodPost, "/api/members", Signup)
	t.Handle(http.MethodPost, "/api/auth/refresh", Refresh)
	for _, pattern := range publicReadPatterns {
		t.Handle(http.MethodGet, pattern, PublicRead)
	}
	return t
}

// NewRouteTable returns an empty table; every request is Unmanaged.
func NewRouteTable() *RouteTable {
	return &RouteTable{router: mux.NewRouter()}
}

// Handle maps a method and a mux path template to a class.
// Entries added first take priority.
func (t *RouteTable) Handle(method, pathTemplate string, class RouteClass) {
	t.router.Methods(method).Path(pathTemplate).Name(string(class))
}

// Classify returns the class of the request, or Unmanaged.
func (t *RouteTable) Classify(method, path string) RouteClass {
	req := &http.Request{Method: method, URL: &url.URL{Path: path}}

	var match mux.RouteMatch
	if !t.router.Match(req, &match) || match.Route == nil {
		return Unmanaged
	}
	return RouteClass(match.Route.GetName())
}
