package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certdesk/admin-console/internal/adapter/outbound/adminapi"
	"github.com/certdesk/admin-console/internal/adapter/outbound/memory"
	"github.com/certdesk/admin-console/internal/domain/admin"
	"github.com/certdesk/admin-console/internal/domain/query"
	"github.com/certdesk/admin-console/internal/domain/session"
)

type consoleHarness struct {
	api      *fakeAdminAPI
	store    *memory.SlotStore
	sessions *SessionService
	engine   *QueryEngine
	svc      *AdminService
}

func newConsoleHarness(t *testing.T) *consoleHarness {
	t.Helper()

	h := &consoleHarness{
		api:   newFakeAdminAPI(t),
		store: memory.NewSlotStore(),
	}
	h.sessions = NewSessionService(h.store, testLogger())
	h.sessions.Initialize(context.Background())

	client, err := adminapi.NewClient(h.api.URL(), h.sessions,
		adminapi.WithLogger(testLogger()),
		adminapi.WithUnauthorizedHandler(func(token string) {
			h.sessions.ClearIfCurrent(context.Background(), token)
		}),
	)
	require.NoError(t, err)

	h.engine = NewQueryEngine(testLogger())
	t.Cleanup(h.engine.Close)

	h.svc = NewAdminService(client, h.sessions, h.engine, testLogger())
	t.Cleanup(h.svc.Close)
	return h
}

func (h *consoleHarness) login(t *testing.T) {
	t.Helper()
	_, err := h.svc.Login(context.Background(), Credentials{Email: fakeEmail, Password: fakePassword})
	require.NoError(t, err)
}

func settle[T any](t *testing.T, sub *Subscription, pred func(T) bool) T {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()

	res, err := sub.Wait(ctx, func(r query.Result) bool {
		if !r.Settled() {
			return false
		}
		v, ok := query.Data[T](r)
		return ok && (pred == nil || pred(v))
	})
	require.NoError(t, err, "last snapshot: %+v", res)
	v, _ := query.Data[T](res)
	return v
}

func TestAdminService_EndToEndSearchAndDelete(t *testing.T) {
	h := newConsoleHarness(t)
	ctx := context.Background()

	sess, err := h.svc.Login(ctx, Credentials{Email: fakeEmail, Password: fakePassword})
	require.NoError(t, err)
	assert.Equal(t, fakeToken, sess.Token)
	require.NotNil(t, sess.User)
	assert.Equal(t, "admin-1", sess.User.ID)
	assert.True(t, sess.User.IsAdmin)

	persisted, err := h.store.Load(ctx, session.TokenSlot, session.UserSlot)
	require.NoError(t, err)
	assert.Equal(t, fakeToken, persisted[session.TokenSlot])
	assert.Contains(t, persisted[session.UserSlot], `"id":"admin-1"`)

	dash := h.svc.WatchDashboard()
	defer dash.Close()
	before := settle[admin.Dashboard](t, dash, nil)
	assert.Equal(t, 3, before.Stats.TotalUsers)

	users, err := h.svc.WatchUsers(admin.UserListParams{Search: "john"})
	require.NoError(t, err)
	defer users.Close()

	page := settle[admin.Page[admin.User]](t, users, nil)
	require.Equal(t, 2, page.TotalCount)
	assert.Equal(t, 1, page.TotalPages)
	assert.Equal(t, 1, page.CurrentPage)
	assert.Equal(t, 1, h.api.CountPrefix("GET /api/admin/users?page=1&limit=10&search=john"))
	assert.Contains(t, h.api.Requests(), "GET /api/admin/users?page=1&limit=10&search=john")

	res := h.svc.DeleteUser(ctx, page.Items[0].ID)
	require.True(t, res.OK(), "delete failed: %v", res.Err)
	assert.Equal(t, query.InvalidationReport{Refetched: 2}, res.Invalidation)

	after := settle(t, users, func(p admin.Page[admin.User]) bool { return p.TotalCount == page.TotalCount-1 })
	assert.Len(t, after.Items, 1)
	settle(t, dash, func(d admin.Dashboard) bool { return d.Stats.TotalUsers == before.Stats.TotalUsers-1 })

	assert.Equal(t, 2, h.api.CountPrefix("GET /api/admin/users?"))
	assert.Equal(t, 2, h.api.CountPrefix("GET /api/admin/dashboard"))
}

func TestAdminService_ConcurrentWatchersShareOneRequest(t *testing.T) {
	h := newConsoleHarness(t)
	h.login(t)

	params := admin.UserListParams{Page: 1, Limit: 10}
	a, err := h.svc.WatchUsers(params)
	require.NoError(t, err)
	defer a.Close()
	b, err := h.svc.WatchUsers(admin.UserListParams{})
	require.NoError(t, err)
	defer b.Close()

	pa := settle[admin.Page[admin.User]](t, a, nil)
	pb := settle[admin.Page[admin.User]](t, b, nil)

	assert.Equal(t, pa, pb)
	assert.Equal(t, 1, h.api.CountPrefix("GET /api/admin/users?page=1&limit=10&search="))
}

func TestAdminService_LoginValidatesBeforeRequest(t *testing.T) {
	h := newConsoleHarness(t)

	tests := []Credentials{
		{Email: "", Password: "x"},
		{Email: fakeEmail, Password: ""},
		{Email: "not-an-email", Password: "x"},
	}
	for _, creds := range tests {
		_, err := h.svc.Login(context.Background(), creds)
		assert.ErrorIs(t, err, ErrInvalidCredentials, "creds %+v", creds)
	}
	assert.Empty(t, h.api.Requests())
	assert.False(t, h.sessions.IsAuthenticated())
}

func TestAdminService_LoginRejected(t *testing.T) {
	h := newConsoleHarness(t)

	_, err := h.svc.Login(context.Background(), Credentials{Email: fakeEmail, Password: "wrong"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, adminapi.ErrUnauthorized))
	assert.Equal(t, "Invalid credentials", adminapi.UserMessage(err, "Login failed. Please try again."))
	assert.False(t, h.sessions.IsAuthenticated())
	assert.Zero(t, h.store.Len())
}

func TestAdminService_FailedReloginKeepsSession(t *testing.T) {
	h := newConsoleHarness(t)
	ctx := context.Background()
	h.login(t)

	dash := h.svc.WatchDashboard()
	defer dash.Close()
	settle[admin.Dashboard](t, dash, nil)

	_, err := h.svc.Login(ctx, Credentials{Email: fakeEmail, Password: "typo"})
	require.ErrorIs(t, err, adminapi.ErrUnauthorized)

	assert.True(t, h.sessions.IsAuthenticated(), "bad credentials must not end a valid session")
	assert.Equal(t, fakeToken, h.sessions.Token())
	assert.Equal(t, 2, h.store.Len())
	assert.Equal(t, query.StatusSuccess, dash.Current().Status)
	assert.Equal(t, []string{"", ""}, h.api.LoginAuthorizations(), "login is sent without a bearer token")
}

func TestAdminService_LogoutIsIdempotentAndResetsCache(t *testing.T) {
	h := newConsoleHarness(t)
	ctx := context.Background()
	h.login(t)

	dash := h.svc.WatchDashboard()
	settle[admin.Dashboard](t, dash, nil)
	dash.Close()
	require.Equal(t, 1, h.engine.Stats().Entries)

	for i := 0; i < 2; i++ {
		require.NoError(t, h.svc.Logout(ctx))
		assert.Equal(t, session.Session{}, h.sessions.Current())
		assert.Zero(t, h.store.Len())
	}
	assert.Zero(t, h.engine.Stats().Entries, "cached data must not survive logout")
}

func TestAdminService_UnauthorizedResponseClearsSession(t *testing.T) {
	h := newConsoleHarness(t)
	h.login(t)

	h.api.RevokeToken()

	me := h.svc.WatchMe()
	defer me.Close()

	require.Eventually(t, func() bool { return !h.sessions.IsAuthenticated() }, waitTimeout, 5*time.Millisecond)
	require.Eventually(t, func() bool { return h.store.Len() == 0 }, waitTimeout, 5*time.Millisecond,
		"rejected token must be removed from storage")
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	res, err := me.WaitSettled(ctx)
	require.NoError(t, err)
	assert.Equal(t, query.StatusError, res.Status, "subscribers see the session end as an error")
	assert.ErrorIs(t, res.Err, ErrCacheReset)
	assert.False(t, res.HasData)
}

func TestAdminService_LoginResumesSubscribedQueries(t *testing.T) {
	h := newConsoleHarness(t)
	ctx := context.Background()
	h.login(t)

	dash := h.svc.WatchDashboard()
	defer dash.Close()
	settle[admin.Dashboard](t, dash, nil)

	require.NoError(t, h.svc.Logout(ctx))
	assert.ErrorIs(t, dash.Current().Err, ErrCacheReset)
	assert.Equal(t, 1, h.api.CountPrefix("GET /api/admin/dashboard"))

	h.login(t)
	d := settle[admin.Dashboard](t, dash, nil)
	assert.Equal(t, 3, d.Stats.TotalUsers)
	assert.Equal(t, 2, h.api.CountPrefix("GET /api/admin/dashboard"))
}

func TestAdminService_WatchMe(t *testing.T) {
	h := newConsoleHarness(t)
	h.login(t)

	me := h.svc.WatchMe()
	defer me.Close()

	user := settle[session.AdminUser](t, me, nil)
	assert.Equal(t, session.AdminUser{ID: "admin-1", Name: "Root", Email: fakeEmail, IsAdmin: true}, user)
}

func TestAdminService_WatchUserAndNotFound(t *testing.T) {
	h := newConsoleHarness(t)
	h.login(t)

	u, err := h.svc.WatchUser("u3")
	require.NoError(t, err)
	defer u.Close()
	user := settle[admin.User](t, u, nil)
	assert.Equal(t, "Ada Lovelace", user.Name)

	missing, err := h.svc.WatchUser("nope")
	require.NoError(t, err)
	defer missing.Close()

	res := waitSettled(t, missing)
	assert.Equal(t, query.StatusError, res.Status)
	assert.ErrorIs(t, res.Err, adminapi.ErrRejected)
	assert.Equal(t, "User not found", adminapi.UserMessage(res.Err, "Failed to load user"))

	_, err = h.svc.WatchUser("  ")
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestAdminService_ApplicationsFilterAndStatusUpdate(t *testing.T) {
	h := newConsoleHarness(t)
	ctx := context.Background()
	h.login(t)

	pending, err := h.svc.WatchApplications(admin.ApplicationListParams{Status: "pending"})
	require.NoError(t, err)
	defer pending.Close()
	all, err := h.svc.WatchApplications(admin.ApplicationListParams{})
	require.NoError(t, err)
	defer all.Close()
	detail, err := h.svc.WatchApplication("a1")
	require.NoError(t, err)
	defer detail.Close()

	p := settle[admin.Page[admin.Application]](t, pending, nil)
	require.Len(t, p.Items, 1)
	assert.Equal(t, admin.StatusPending, p.Items[0].Status)
	settle[admin.Page[admin.Application]](t, all, func(pg admin.Page[admin.Application]) bool { return pg.TotalCount == 2 })
	settle[admin.Application](t, detail, nil)

	assert.Contains(t, h.api.Requests(), "GET /api/admin/applications?page=1&limit=10&search=&status=pending")
	assert.Contains(t, h.api.Requests(), "GET /api/admin/applications?page=1&limit=10&search=&status=all")

	res := h.svc.UpdateApplicationStatus(ctx, "a1", admin.StatusApproved)
	require.True(t, res.OK(), "update failed: %v", res.Err)
	assert.Equal(t, 3, res.Invalidation.Refetched)

	settle(t, pending, func(pg admin.Page[admin.Application]) bool { return pg.TotalCount == 0 && len(pg.Items) == 0 })
	app := settle(t, detail, func(a admin.Application) bool { return a.Status == admin.StatusApproved })
	assert.Equal(t, "Grace", app.Name)
}

func TestAdminService_MutationValidation(t *testing.T) {
	h := newConsoleHarness(t)
	ctx := context.Background()
	h.login(t)
	before := len(h.api.Requests())

	results := []query.MutationResult{
		h.svc.DeleteUser(ctx, ""),
		h.svc.DeleteApplication(ctx, " "),
		h.svc.UpdateApplicationStatus(ctx, "a1", "archived"),
		h.svc.UpdateApplicationStatus(ctx, "", admin.StatusApproved),
	}
	for _, res := range results {
		assert.Equal(t, query.StatusError, res.Status)
		assert.ErrorIs(t, res.Err, ErrInvalidParams)
	}
	assert.Len(t, h.api.Requests(), before, "invalid mutations must not reach the API")
}

func TestAdminService_DeleteApplicationRejected(t *testing.T) {
	h := newConsoleHarness(t)
	h.login(t)

	res := h.svc.DeleteApplication(context.Background(), "missing")
	assert.False(t, res.OK())
	assert.Equal(t, "Application not found", adminapi.UserMessage(res.Err, "Failed to delete application"))
	assert.Zero(t, res.Invalidation)
}

func TestAdminService_ListParamValidation(t *testing.T) {
	h := newConsoleHarness(t)

	_, err := h.svc.WatchUsers(admin.UserListParams{Limit: 500})
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = h.svc.WatchApplications(admin.ApplicationListParams{Status: "archived"})
	assert.ErrorIs(t, err, ErrInvalidParams)
	assert.ErrorContains(t, err, "status must be one of")

	p, err := h.svc.ApplicationParams(admin.ApplicationListParams{Page: -3})
	require.NoError(t, err)
	assert.Equal(t, admin.ApplicationListParams{Page: 1, Limit: admin.DefaultPageSize, Status: admin.StatusFilterAll}, p)

	assert.Empty(t, h.api.Requests())
}

func TestAdminService_DefaultPageSizeOption(t *testing.T) {
	h := newConsoleHarness(t)
	svc := NewAdminService(nil, h.sessions, h.engine, testLogger(), WithDefaultPageSize(25))
	defer svc.Close()

	p, err := svc.UserParams(admin.UserListParams{})
	require.NoError(t, err)
	assert.Equal(t, 25, p.Limit)
	assert.Equal(t, 25, svc.DefaultPageSize())
}

func TestEndpointTable(t *testing.T) {
	byName := map[string]Endpoint{}
	for _, ep := range Endpoints() {
		byName[ep.Name] = ep
	}
	require.Len(t, byName, 10)

	users := query.TypeTag(query.TagUsers)
	dashboard := query.TypeTag(query.TagDashboard)
	apps := query.TypeTag(query.TagApplications)

	assert.Equal(t, []query.Tag{users, dashboard}, byName[EndpointDeleteUser].Invalidates)
	assert.Equal(t, []query.Tag{apps, dashboard}, byName[EndpointUpdateApplicationStatus].Invalidates)
	assert.Equal(t, []query.Tag{apps, dashboard}, byName[EndpointDeleteApplication].Invalidates)
	assert.Empty(t, byName[EndpointAdminLogin].Invalidates)

	assert.Equal(t, []query.Tag{users, query.IDTag(query.TagUsers, "u1")}, byName[EndpointGetUserByID].tagsFor("u1"))
	assert.Equal(t, []query.Tag{query.TypeTag(query.TagUser)}, byName[EndpointGetMe].tagsFor(""))
	assert.Equal(t, "/api/admin/applications/a%2F1/status", byName[EndpointUpdateApplicationStatus].path("a/1"))

	for _, ep := range Endpoints() {
		if ep.Kind == KindQuery {
			assert.NotEmpty(t, ep.Provides, ep.Name)
			assert.Empty(t, ep.Invalidates, ep.Name)
		}
	}
}

func TestToPageDefaults(t *testing.T) {
	page := toPage[admin.User](nil, nil)
	assert.Equal(t, admin.Page[admin.User]{Items: []admin.User{}, TotalPages: 1, CurrentPage: 1}, page)

	page = toPage([]admin.User{{ID: "u1"}}, &pagination{Total: 31, Pages: 4, Page: 2})
	assert.Equal(t, 31, page.TotalCount)
	assert.Equal(t, 4, page.TotalPages)
	assert.Equal(t, 2, page.CurrentPage)

	d := toDashboard(dashboardResponse{})
	assert.Equal(t, admin.Stats{}, d.Stats)
	assert.NotNil(t, d.RecentApplications)
	assert.NotNil(t, d.RecentUsers)
}
