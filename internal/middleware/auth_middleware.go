// Package middleware provides HTTP middleware for the guard service.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/guardpost/guardpost/internal/constants"
	"github.com/guardpost/guardpost/internal/utils"
)

// SecretAuth gates administrative endpoints behind the shared secret
// token, expected as a bearer credential in the Authorization header.
// The comparison is constant-time; a missing or wrong token is rejected
// with the AuthError taxonomy kind and never reaches the rule store.
func SecretAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// An empty configured secret closes the admin surface
			// entirely rather than leaving it open.
			if secret == "" {
				utils.ErrorFromAppError(w, utils.NewAuthError())
				return
			}

			token, ok := strings.CutPrefix(r.Header.Get(constants.HeaderAuthorization), constants.BearerPrefix)
			if !ok {
				utils.ErrorFromAppError(w, utils.NewAuthError())
				return
			}

			if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				utils.ErrorFromAppError(w, utils.NewAuthError())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders adds security-related HTTP headers to responses.
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(constants.HeaderXContentTypeOptions, constants.ContentTypeOptionsNoSniff)
			w.Header().Set(constants.HeaderXFrameOptions, constants.FrameOptionsDeny)
			w.Header().Set(constants.HeaderReferrerPolicy, constants.ReferrerPolicyStrictOrigin)

			next.ServeHTTP(w, r)
		})
	}
}
