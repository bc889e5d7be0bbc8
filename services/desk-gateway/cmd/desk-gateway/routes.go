package main

import (
	"net/http"
	"strings"

	"github.com/tranqhuy/clubsched/libs/auth"
	"github.com/tranqhuy/clubsched/services/desk-gateway/internal/handlers"
)

func registerRoutes(mux *http.ServeMux, desk *handlers.DeskHandler, jwtSecret string) {
	// Reading schedules and sessions needs any authenticated staff member;
	// changing the roster is manager-only.
	mux.Handle("/api/v1/desk/schedules", requireAuth(method(http.MethodGet, desk.ListSchedules), jwtSecret))
	mux.Handle("/api/v1/desk/sessions", requireAuth(method(http.MethodGet, desk.ListSessions), jwtSecret))
	mux.Handle("/api/v1/desk/shifts", requireAuth(requireRole(method(http.MethodPost, desk.ScheduleShift), "manager", "admin"), jwtSecret))
	mux.Handle("/api/v1/desk/bookings", requireAuth(method(http.MethodPost, desk.BookSession), jwtSecret))
	mux.Handle("/api/v1/desk/bookings/cancel", requireAuth(method(http.MethodPost, desk.CancelBooking), jwtSecret))
}

func method(m string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != m {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	})
}

func requireAuth(next http.Handler, jwtSecret string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") || len(strings.TrimSpace(authHeader)) <= len("Bearer ") {
			http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		claims, err := auth.ParseAndVerifyHS256(token, jwtSecret)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		r.Header.Del("X-User-Id")
		r.Header.Del("X-Club-Id")
		r.Header.Del("X-Role")
		r.Header.Set("X-User-Id", claims.Sub)
		r.Header.Set("X-Club-Id", claims.ClubID)
		r.Header.Set("X-Role", claims.Role)
		next.ServeHTTP(w, r)
	})
}

func requireRole(next http.Handler, roles ...string) http.Handler {
	allowed := map[string]struct{}{}
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role := r.Header.Get("X-Role")
		if _, ok := allowed[role]; !ok {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
