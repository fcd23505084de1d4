package httpclient

import "net/http"

// Auth adds credentials to an outbound request. It runs after default
// headers are applied.
type Auth func(req *http.Request)

// Bearer sends token in the Authorization header. An empty token sends
// nothing.
func Bearer(token string) Auth {
	return func(req *http.Request) {
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
}

// HeaderKey sends key in the named header, e.g. "X-API-Key".
func HeaderKey(header, key string) Auth {
	return func(req *http.Request) {
		if key != "" {
			req.Header.Set(header, key)
		}
	}
}
