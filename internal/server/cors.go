package server

import "net/http"

const (
	headerOrigin           = "Origin"
	headerVary             = "Vary"
	headerAllowOrigin      = "Access-Control-Allow-Origin"
	headerAllowMethods     = "Access-Control-Allow-Methods"
	headerAllowHeaders     = "Access-Control-Allow-Headers"
	headerAllowCredentials = "Access-Control-Allow-Credentials"
	allowedMethods         = "GET, POST, OPTIONS"
	allowedHeaders         = "Content-Type, Authorization"
	anyOrigin              = "*"
)

// withCORS applies the origin policy. With no configured origin every origin
// is allowed without credentials; otherwise only the configured origin is.
func withCORS(next http.Handler, allowedOrigin string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get(headerOrigin)

		if origin != "" && originAllowed(origin, allowedOrigin) {
			header := w.Header()
			header.Add(headerVary, headerOrigin)
			header.Set(headerAllowMethods, allowedMethods)
			header.Set(headerAllowHeaders, allowedHeaders)

			if allowedOrigin == "" {
				header.Set(headerAllowOrigin, anyOrigin)
			} else {
				header.Set(headerAllowOrigin, origin)
				header.Set(headerAllowCredentials, "true")
			}
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)

			return
		}

		next.ServeHTTP(w, r)
	})
}

func originAllowed(origin, allowedOrigin string) bool {
	return allowedOrigin == "" || origin == allowedOrigin
}
