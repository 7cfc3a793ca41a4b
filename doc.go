/*
Package authgate provides the request-path guards of an API: a per-client
token bucket rate limiter for sensitive and public read endpoints, and (in
package tokenstore) the refresh token and access token blacklist store.

Requests are classified into a RouteClass by method and path. Login, signup
and token refresh are matched exactly; GET requests on public listing and
detail endpoints share one PUBLIC_READ bucket per client. Every other route
is unmanaged and always allowed.

# Rate limiting a router

Example:

	import (
		"github.com/gorilla/mux"
		"github.com/parkerroan/authgate"
	)

	rl, err := authgate.NewRateLimiter(authgate.DefaultPolicies())
	if err != nil {
		log.Fatal(err)
	}

	r := mux.NewRouter()
	r.Use(authgate.HTTPMiddleware(rl, authgate.ClientKeyFunc(true)))

Rejected requests get a 429 with a Retry-After header and a JSON body:

	{"code":"E429","message":"Too many requests. Please try again later."}

Buckets live in a limiter.Registry that is sharded and bounded; buckets idle
for three times the longest period are dropped lazily on insert.

The related packages are:
  - limiter (https://github.com/parkerroan/authgate/limiter): Bucket and Registry
  - tokenstore (https://github.com/parkerroan/authgate/tokenstore): refresh token and blacklist persistence
  - auth (https://github.com/parkerroan/authgate/auth): session rotation, logout and the fail-closed revocation check
*/
package authgate
