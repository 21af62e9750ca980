package service

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

// fakeAdminAPI is an in-memory admin backend routed with chi.
type fakeAdminAPI struct {
	t      *testing.T
	server *httptest.Server

	mu           sync.Mutex
	requests     []string
	loginAuth    []string
	token        string
	users        []map[string]any
	applications []map[string]any
}

const (
	fakeEmail    = "admin@example.com"
	fakePassword = "s3cret"
	fakeToken    = "tok-1"
)

func newFakeAdminAPI(t *testing.T) *fakeAdminAPI {
	t.Helper()

	f := &fakeAdminAPI{
		t:     t,
		token: fakeToken,
		users: []map[string]any{
			{"_id": "u1", "name": "John Smith", "email": "john@example.com", "is_admin": false},
			{"_id": "u2", "name": "Johnny Bravo", "email": "johnny@example.com", "is_admin": false},
			{"_id": "u3", "name": "Ada Lovelace", "email": "ada@example.com", "is_admin": false},
		},
		applications: []map[string]any{
			{"_id": "a1", "name": "Grace", "email": "grace@example.com", "mobile": "555", "course": "Go", "status": "pending"},
			{"_id": "a2", "name": "Linus", "email": "linus@example.com", "mobile": "556", "course": "C", "status": "approved"},
		},
	}

	r := chi.NewRouter()
	r.Use(f.record)
	r.Post("/api/admin/login", f.login)
	r.Group(func(r chi.Router) {
		r.Use(f.requireToken)
		r.Get("/api/admin/me", f.me)
		r.Get("/api/admin/dashboard", f.dashboard)
		r.Get("/api/admin/users", f.listUsers)
		r.Get("/api/admin/users/{id}", f.getUser)
		r.Delete("/api/admin/users/{id}", f.deleteUser)
		r.Get("/api/admin/applications", f.listApplications)
		r.Get("/api/admin/applications/{id}", f.getApplication)
		r.Patch("/api/admin/applications/{id}/status", f.updateStatus)
		r.Delete("/api/admin/applications/{id}", f.deleteApplication)
	})

	f.server = httptest.NewServer(r)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeAdminAPI) URL() string { return f.server.URL }

// Requests returns every request URI received, in order.
func (f *fakeAdminAPI) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

// CountPrefix counts requests whose "METHOD uri" starts with prefix.
func (f *fakeAdminAPI) CountPrefix(prefix string) int {
	n := 0
	for _, r := range f.Requests() {
		if strings.HasPrefix(r, prefix) {
			n++
		}
	}
	return n
}

// LoginAuthorizations returns the Authorization header of each login request.
func (f *fakeAdminAPI) LoginAuthorizations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.loginAuth...)
}

// RevokeToken makes the server reject the current token.
func (f *fakeAdminAPI) RevokeToken() {
	f.mu.Lock()
	f.token = "rotated"
	f.mu.Unlock()
}

func (f *fakeAdminAPI) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests = append(f.requests, r.Method+" "+r.URL.RequestURI())
		f.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (f *fakeAdminAPI) requireToken(next http.Handler) http.Handler {
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

func (f *fakeAdminAPI) login(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.loginAuth = append(f.loginAuth, r.Header.Get("Authorization"))
	f.mu.Unlock()

	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "Invalid body"})
		return
	}
	if body.Email != fakeEmail || body.Password != fakePassword {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Invalid credentials"})
		return
	}
	f.mu.Lock()
	token := f.token
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user":  map[string]any{"_id": "admin-1", "name": "Root", "email": fakeEmail, "is_admin": true},
	})
}

func (f *fakeAdminAPI) me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"user": map[string]any{"_id": "admin-1", "name": "Root", "email": fakeEmail, "is_admin": true},
	})
}

func (f *fakeAdminAPI) dashboard(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	pending, approved := 0, 0
	for _, a := range f.applications {
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
			"totalApplications":    len(f.applications),
			"pendingApplications":  pending,
			"approvedApplications": approved,
		},
		"recentApplications": f.applications,
		"recentUsers":        f.users,
	})
}

func (f *fakeAdminAPI) listUsers(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	items := filterDocs(f.users, r.URL.Query().Get("search"), "")
	page, body := paginate(items, r)
	writeJSON(w, http.StatusOK, map[string]any{"users": page, "pagination": body})
}

func (f *fakeAdminAPI) listApplications(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	items := filterDocs(f.applications, r.URL.Query().Get("search"), r.URL.Query().Get("status"))
	page, body := paginate(items, r)
	writeJSON(w, http.StatusOK, map[string]any{"applications": page, "pagination": body})
}

func (f *fakeAdminAPI) getUser(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if doc := findDoc(f.users, chi.URLParam(r, "id")); doc != nil {
		writeJSON(w, http.StatusOK, map[string]any{"user": doc})
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"message": "User not found"})
}

func (f *fakeAdminAPI) getApplication(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if doc := findDoc(f.applications, chi.URLParam(r, "id")); doc != nil {
		writeJSON(w, http.StatusOK, map[string]any{"application": doc})
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"message": "Application not found"})
}

func (f *fakeAdminAPI) deleteUser(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var ok bool
	f.users, ok = removeDoc(f.users, chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "User not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "User deleted"})
}

func (f *fakeAdminAPI) deleteApplication(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var ok bool
	f.applications, ok = removeDoc(f.applications, chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Application not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeAdminAPI) updateStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "Status is required"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	doc := findDoc(f.applications, chi.URLParam(r, "id"))
	if doc == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Application not found"})
		return
	}
	doc["status"] = body.Status
	writeJSON(w, http.StatusOK, map[string]any{"application": doc})
}

func filterDocs(docs []map[string]any, search, status string) []map[string]any {
	search = strings.ToLower(search)
	out := []map[string]any{}
	for _, d := range docs {
		if status != "" && status != "all" && d["status"] != status {
			continue
		}
		name, _ := d["name"].(string)
		email, _ := d["email"].(string)
		if search != "" && !strings.Contains(strings.ToLower(name), search) && !strings.Contains(strings.ToLower(email), search) {
			continue
		}
		out = append(out, d)
	}
	return out
}

func paginate(items []map[string]any, r *http.Request) ([]map[string]any, map[string]any) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	pages := (len(items) + limit - 1) / limit
	if pages == 0 {
		pages = 1
	}
	start := (page - 1) * limit
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end], map[string]any{"total": len(items), "pages": pages, "page": page}
}

func findDoc(docs []map[string]any, id string) map[string]any {
	for _, d := range docs {
		if d["_id"] == id {
			return d
		}
	}
	return nil
}

func removeDoc(docs []map[string]any, id string) ([]map[string]any, bool) {
	for i, d := range docs {
		if d["_id"] == id {
			return append(docs[:i:i], docs[i+1:]...), true
		}
	}
	return docs, false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
