package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "admin@example.com"
	testPassword = "s3cret"
)

// testTokenExpiry is the exp claim of the token handed out by fakeAPI.
var testTokenExpiry = time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)

// fakeAPI serves the admin endpoints the commands use from in-memory data.
type fakeAPI struct {
	server *httptest.Server
	token  string

	mu       sync.Mutex
	requests []string
	users    []map[string]any
	apps     []map[string]any
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":  "admin-1",
		"exp": testTokenExpiry.Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	f := &fakeAPI{
		token: token,
		users: []map[string]any{
			{"_id": "u1", "name": "John Smith", "email": "john@example.com", "phone": "555-0101",
				"address": map[string]any{"street": "1 Main St", "city": "Springfield"}, "createdAt": "2024-03-05T10:00:00Z"},
			{"_id": "u2", "name": "Johnny Bravo", "email": "johnny@example.com", "createdAt": "2024-03-06T10:00:00Z"},
			{"_id": "u3", "name": "Ada Lovelace", "email": "ada@example.com", "is_admin": true, "createdAt": "2024-03-07T10:00:00Z"},
		},
		apps: []map[string]any{
			{"_id": "a1", "name": "Grace", "email": "grace@example.com", "mobile": "555", "course": "Go", "status": "pending",
				"message": "Keen to learn", "createdAt": "2024-04-01T09:00:00Z"},
			{"_id": "a2", "name": "Linus", "email": "linus@example.com", "mobile": "556", "course": "C", "status": "approved",
				"createdAt": "2024-04-02T09:00:00Z"},
		},
	}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			f.mu.Lock()
			f.requests = append(f.requests, r.Method+" "+r.URL.RequestURI())
			f.mu.Unlock()
			next.ServeHTTP(w, r)
		})
	})
	r.Post("/api/admin/login", f.login)
	r.Group(func(r chi.Router) {
		r.Use(f.requireToken)
		r.Get("/api/admin/me", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"user": adminDoc()})
		})
		r.Get("/api/admin/dashboard", f.dashboard)
		r.Get("/api/admin/users", f.list(&f.users, "users"))
		r.Get("/api/admin/users/{id}", f.get(&f.users, "user", "User not found"))
		r.Delete("/api/admin/users/{id}", f.remove(&f.users, "User not found"))
		r.Get("/api/admin/applications", f.list(&f.apps, "applications"))
		r.Get("/api/admin/applications/{id}", f.get(&f.apps, "application", "Application not found"))
		r.Patch("/api/admin/applications/{id}/status", f.updateStatus)
		r.Delete("/api/admin/applications/{id}", f.remove(&f.apps, "Application not found"))
	})

	f.server = httptest.NewServer(r)
	t.Cleanup(f.server.Close)
	return f
}

func adminDoc() map[string]any {
	return map[string]any{"_id": "admin-1", "name": "Root", "email": testEmail, "is_admin": true}
}

func (f *fakeAPI) URL() string { return f.server.URL }

// Count returns how many requests equal "METHOD uri" exactly.
func (f *fakeAPI) Count(request string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r == request {
			n++
		}
	}
	return n
}

// CountPrefix returns how many requests start with prefix.
func (f *fakeAPI) CountPrefix(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if strings.HasPrefix(r, prefix) {
			n++
		}
	}
	return n
}

// RevokeToken makes every later authenticated request fail with 401.
func (f *fakeAPI) RevokeToken() {
	f.mu.Lock()
	f.token = "revoked"
	f.mu.Unlock()
}

func (f *fakeAPI) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		want := "Bearer " + f.token
		f.mu.Unlock()
		if r.Header.Get("Authorization") != want {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Not authorized, token failed"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *fakeAPI) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.Email != testEmail || body.Password != testPassword {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Invalid credentials"})
		return
	}
	f.mu.Lock()
	token := f.token
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "user": adminDoc()})
}

func (f *fakeAPI) dashboard(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	pending, approved := 0, 0
	for _, a := range f.apps {
		switch a["status"] {
		case "pending":
			pending++
		case "approved":
			approved++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stats": map[string]any{
			"totalUsers":           len(f.users),
			"totalApplications":    len(f.apps),
			"pendingApplications":  pending,
			"approvedApplications": approved,
		},
		"recentApplications": f.apps,
		"recentUsers":        f.users,
	})
}

func (f *fakeAPI) list(docs *[]map[string]any, field string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		q := r.URL.Query()
		search := strings.ToLower(q.Get("search"))
		status := q.Get("status")
		items := []map[string]any{}
		for _, d := range *docs {
			if status != "" && status != "all" && d["status"] != status {
				continue
			}
			name, _ := d["name"].(string)
			if search != "" && !strings.Contains(strings.ToLower(name), search) {
				continue
			}
			items = append(items, d)
		}

		page, _ := strconv.Atoi(q.Get("page"))
		limit, _ := strconv.Atoi(q.Get("limit"))
		if page < 1 {
			page = 1
		}
		if limit < 1 {
			limit = 10
		}
		pages := (len(items) + limit - 1) / limit
		start := min((page-1)*limit, len(items))
		end := min(start+limit, len(items))
		writeJSON(w, http.StatusOK, map[string]any{
			field:        items[start:end],
			"pagination": map[string]any{"total": len(items), "pages": pages, "page": page},
		})
	}
}

func (f *fakeAPI) get(docs *[]map[string]any, field, notFound string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		for _, d := range *docs {
			if d["_id"] == chi.URLParam(r, "id") {
				writeJSON(w, http.StatusOK, map[string]any{field: d})
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]any{"message": notFound})
	}
}

func (f *fakeAPI) remove(docs *[]map[string]any, notFound string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		for i, d := range *docs {
			if d["_id"] == chi.URLParam(r, "id") {
				*docs = append((*docs)[:i:i], (*docs)[i+1:]...)
				writeJSON(w, http.StatusOK, map[string]any{"message": "Deleted"})
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]any{"message": notFound})
	}
}

func (f *fakeAPI) updateStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.apps {
		if d["_id"] == chi.URLParam(r, "id") {
			d["status"] = body.Status
			writeJSON(w, http.StatusOK, map[string]any{"application": d})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"message": "Application not found"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// syncBuffer is a bytes.Buffer safe for one writer and concurrent readers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Reset discards everything written so far.
func (b *syncBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}
