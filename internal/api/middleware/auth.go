// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"net/http"

	"github.com/epheterson/zimi/internal/auth"
	"github.com/epheterson/zimi/internal/domain"
)

// managePasswordHeader carries the shared management password on protected
// requests (spec.md §6: "Auth. Routes under /manage/* and mutating
// collection routes require a shared password if one is set").
const managePasswordHeader = "X-Manage-Password"

// RequireManagePassword returns a middleware that checks managePasswordHeader
// against authService whenever a password has been configured. When no
// password is set, requests pass through unauthenticated, matching spec.md's
// "single optional shared password".
func RequireManagePassword(authService *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !authService.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			password := r.Header.Get(managePasswordHeader)
			if password == "" || !authService.Check(r.Context(), password) {
				writeError(w, http.StatusUnauthorized, domain.ErrUnauthorized, "management password required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
