package service

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/certdesk/admin-console/internal/domain/admin"
	"github.com/certdesk/admin-console/internal/domain/query"
	"github.com/certdesk/admin-console/internal/domain/session"
)

// Admin API endpoint names. They label cache keys, metrics and logs.
const (
	EndpointAdminLogin              = "adminLogin"
	EndpointGetMe                   = "getMe"
	EndpointGetDashboardStats       = "getDashboardStats"
	EndpointGetUsers                = "getUsers"
	EndpointGetUserByID             = "getUserById"
	EndpointDeleteUser              = "deleteUser"
	EndpointGetApplications         = "getApplications"
	EndpointGetApplicationByID      = "getApplicationById"
	EndpointUpdateApplicationStatus = "updateApplicationStatus"
	EndpointDeleteApplication       = "deleteApplication"
)

// EndpointKind distinguishes cached reads from writes.
type EndpointKind string

const (
	KindQuery    EndpointKind = "query"
	KindMutation EndpointKind = "mutation"
)

// Endpoint is one row of the static endpoint table.
type Endpoint struct {
	Name   string
	Kind   EndpointKind
	Method string
	// Path uses ":id" for the entity id segment.
	Path string
	// Provides are the tags of every entry of this query.
	Provides []query.Tag
	// ProvidesByID, when set, adds the tag {ProvidesByID, id} for by-id queries.
	ProvidesByID query.TagType
	// Invalidates are applied when this mutation succeeds.
	Invalidates []query.Tag
}

var endpointTable = []Endpoint{
	{
		Name:   EndpointAdminLogin,
		Kind:   KindMutation,
		Method: http.MethodPost,
		Path:   "/api/admin/login",
	},
	{
		Name:     EndpointGetMe,
		Kind:     KindQuery,
		Method:   http.MethodGet,
		Path:     "/api/admin/me",
		Provides: []query.Tag{query.TypeTag(query.TagUser)},
	},
	{
		Name:     EndpointGetDashboardStats,
		Kind:     KindQuery,
		Method:   http.MethodGet,
		Path:     "/api/admin/dashboard",
		Provides: []query.Tag{query.TypeTag(query.TagDashboard)},
	},
	{
		Name:     EndpointGetUsers,
		Kind:     KindQuery,
		Method:   http.MethodGet,
		Path:     "/api/admin/users",
		Provides: []query.Tag{query.TypeTag(query.TagUsers)},
	},
	{
		Name:         EndpointGetUserByID,
		Kind:         KindQuery,
		Method:       http.MethodGet,
		Path:         "/api/admin/users/:id",
		Provides:     []query.Tag{query.TypeTag(query.TagUsers)},
		ProvidesByID: query.TagUsers,
	},
	{
		Name:        EndpointDeleteUser,
		Kind:        KindMutation,
		Method:      http.MethodDelete,
		Path:        "/api/admin/users/:id",
		Invalidates: []query.Tag{query.TypeTag(query.TagUsers), query.TypeTag(query.TagDashboard)},
	},
	{
		Name:     EndpointGetApplications,
		Kind:     KindQuery,
		Method:   http.MethodGet,
		Path:     "/api/admin/applications",
		Provides: []query.Tag{query.TypeTag(query.TagApplications)},
	},
	{
		Name:         EndpointGetApplicationByID,
		Kind:         KindQuery,
		Method:       http.MethodGet,
		Path:         "/api/admin/applications/:id",
		Provides:     []query.Tag{query.TypeTag(query.TagApplications)},
		ProvidesByID: query.TagApplications,
	},
	{
		Name:        EndpointUpdateApplicationStatus,
		Kind:        KindMutation,
		Method:      http.MethodPatch,
		Path:        "/api/admin/applications/:id/status",
		Invalidates: []query.Tag{query.TypeTag(query.TagApplications), query.TypeTag(query.TagDashboard)},
	},
	{
		Name:        EndpointDeleteApplication,
		Kind:        KindMutation,
		Method:      http.MethodDelete,
		Path:        "/api/admin/applications/:id",
		Invalidates: []query.Tag{query.TypeTag(query.TagApplications), query.TypeTag(query.TagDashboard)},
	},
}

var endpointsByName = func() map[string]Endpoint {
	m := make(map[string]Endpoint, len(endpointTable))
	for _, ep := range endpointTable {
		m[ep.Name] = ep
	}
	return m
}()

// Endpoints returns a copy of the endpoint table in declaration order.
func Endpoints() []Endpoint {
	return append([]Endpoint(nil), endpointTable...)
}

func lookupEndpoint(name string) Endpoint {
	ep, ok := endpointsByName[name]
	if !ok {
		panic("service: unknown endpoint " + name)
	}
	return ep
}

// tagsFor returns the tags provided by an entry of the named query.
func (ep Endpoint) tagsFor(id string) []query.Tag {
	tags := append([]query.Tag(nil), ep.Provides...)
	if ep.ProvidesByID != "" && id != "" {
		tags = append(tags, query.IDTag(ep.ProvidesByID, id))
	}
	return tags
}

// path fills the ":id" segment, escaping id.
func (ep Endpoint) path(id string) string {
	return strings.Replace(ep.Path, ":id", url.PathEscape(id), 1)
}

// Wire shapes of admin API responses.

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string             `json:"token"`
	User  *session.AdminUser `json:"user"`
}

type meResponse struct {
	User *session.AdminUser `json:"user"`
}

type dashboardResponse struct {
	Stats              *admin.Stats        `json:"stats"`
	RecentApplications []admin.Application `json:"recentApplications"`
	RecentUsers        []admin.User        `json:"recentUsers"`
}

type pagination struct {
	Total int `json:"total"`
	Pages int `json:"pages"`
	Page  int `json:"page"`
}

type userListResponse struct {
	Users      []admin.User `json:"users"`
	Pagination *pagination  `json:"pagination"`
}

type userResponse struct {
	User *admin.User `json:"user"`
}

type applicationListResponse struct {
	Applications []admin.Application `json:"applications"`
	Pagination   *pagination         `json:"pagination"`
}

type applicationResponse struct {
	Application *admin.Application `json:"application"`
}

type statusUpdateRequest struct {
	Status admin.ApplicationStatus `json:"status"`
}

// toPage applies the list defaults: no items, total 0, one page, page 1.
func toPage[T any](items []T, p *pagination) admin.Page[T] {
	page := admin.Page[T]{
		Items:       items,
		TotalPages:  1,
		CurrentPage: 1,
	}
	if page.Items == nil {
		page.Items = []T{}
	}
	if p == nil {
		return page
	}
	page.TotalCount = p.Total
	if p.Pages > 0 {
		page.TotalPages = p.Pages
	}
	if p.Page > 0 {
		page.CurrentPage = p.Page
	}
	return page
}

// toDashboard applies the dashboard defaults: zero counters, empty lists.
func toDashboard(resp dashboardResponse) admin.Dashboard {
	d := admin.Dashboard{
		RecentApplications: resp.RecentApplications,
		RecentUsers:        resp.RecentUsers,
	}
	if resp.Stats != nil {
		d.Stats = *resp.Stats
	}
	if d.RecentApplications == nil {
		d.RecentApplications = []admin.Application{}
	}
	if d.RecentUsers == nil {
		d.RecentUsers = []admin.User{}
	}
	return d
}
