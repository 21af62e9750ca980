package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/certdesk/admin-console/internal/adapter/outbound/adminapi"
	"github.com/certdesk/admin-console/internal/domain/admin"
	"github.com/certdesk/admin-console/internal/domain/query"
	"github.com/certdesk/admin-console/internal/domain/session"
)

var (
	// ErrInvalidParams is returned when request parameters fail validation.
	// No request is sent.
	ErrInvalidParams = errors.New("invalid parameters")

	// ErrInvalidCredentials is returned when email or password is missing
	// or malformed. No request is sent.
	ErrInvalidCredentials = errors.New("please enter email and password")

	// ErrNoToken is returned when the login response carries no token.
	ErrNoToken = errors.New("login response carried no token")
)

// APIDoer performs admin API requests. *adminapi.Client implements it.
type APIDoer interface {
	Do(ctx context.Context, req adminapi.Request, out any) error
}

// Credentials are the admin login inputs.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AdminServiceOption configures an AdminService.
type AdminServiceOption func(*AdminService)

// WithDefaultPageSize sets the page size used when list params leave it unset.
func WithDefaultPageSize(n int) AdminServiceOption {
	return func(s *AdminService) {
		if n > 0 {
			s.defaultLimit = n
		}
	}
}

// AdminService binds the admin API endpoints to the query engine and the
// session: typed queries return subscriptions, mutations invalidate the
// tags listed in the endpoint table.
type AdminService struct {
	api          APIDoer
	sessions     *SessionService
	engine       *QueryEngine
	validate     *validator.Validate
	defaultLimit int
	logger       *slog.Logger

	stopWatch func()
}

// NewAdminService creates an AdminService. The engine cache is reset
// whenever the session ends, whatever ended it, and entries still
// subscribed refetch once a session starts again.
func NewAdminService(api APIDoer, sessions *SessionService, engine *QueryEngine, logger *slog.Logger, opts ...AdminServiceOption) *AdminService {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	s := &AdminService{
		api:          api,
		sessions:     sessions,
		engine:       engine,
		validate:     v,
		defaultLimit: admin.DefaultPageSize,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.stopWatch = sessions.OnChange(func(sess session.Session) {
		if !sess.IsAuthenticated() {
			engine.Reset()
			return
		}
		engine.RefetchReset()
	})
	return s
}

// Close detaches the service from session changes.
func (s *AdminService) Close() {
	if s.stopWatch != nil {
		s.stopWatch()
	}
}

// DefaultPageSize returns the page size applied to unset list limits.
func (s *AdminService) DefaultPageSize() int {
	return s.defaultLimit
}

// Login authenticates with the API and stores the returned credentials.
// Input is validated before any request is made.
func (s *AdminService) Login(ctx context.Context, creds Credentials) (session.Session, error) {
	creds.Email = strings.TrimSpace(creds.Email)
	if err := s.validate.Struct(creds); err != nil {
		return session.Session{}, fmt.Errorf("%w: %s", ErrInvalidCredentials, formatParamErrors(err))
	}

	ep := lookupEndpoint(EndpointAdminLogin)
	res := s.engine.Mutate(ctx, query.Mutation{
		Endpoint: ep.Name,
		Do: func(ctx context.Context) (any, error) {
			var resp loginResponse
			// A 401 here means bad credentials, not a stale session.
			err := s.api.Do(ctx, adminapi.Request{
				Endpoint:  ep.Name,
				Method:    ep.Method,
				Path:      ep.Path,
				Body:      loginRequest{Email: creds.Email, Password: creds.Password},
				Anonymous: true,
			}, &resp)
			return resp, err
		},
	})
	if !res.OK() {
		return session.Session{}, res.Err
	}

	resp := res.Data.(loginResponse)
	if resp.Token == "" {
		return session.Session{}, ErrNoToken
	}
	if err := s.sessions.SetCredentials(ctx, resp.Token, resp.User); err != nil {
		return session.Session{}, err
	}
	return s.sessions.Current(), nil
}

// Logout ends the session. The query cache is reset by the session
// listener installed in NewAdminService.
func (s *AdminService) Logout(ctx context.Context) error {
	return s.sessions.Logout(ctx)
}

// WatchMe subscribes to the logged-in admin's profile.
// Data is a session.AdminUser.
func (s *AdminService) WatchMe() *Subscription {
	ep := lookupEndpoint(EndpointGetMe)
	return s.engine.Subscribe(query.Definition{
		Endpoint: ep.Name,
		Tags:     ep.tagsFor(""),
		Fetch: func(ctx context.Context) (any, error) {
			var resp meResponse
			if err := s.get(ctx, ep, "", nil, &resp); err != nil {
				return nil, err
			}
			if resp.User == nil {
				return nil, fmt.Errorf("%s: response has no user", ep.Name)
			}
			return *resp.User, nil
		},
	})
}

// WatchDashboard subscribes to the dashboard counters and recent activity.
// Data is an admin.Dashboard.
func (s *AdminService) WatchDashboard() *Subscription {
	ep := lookupEndpoint(EndpointGetDashboardStats)
	return s.engine.Subscribe(query.Definition{
		Endpoint: ep.Name,
		Tags:     ep.tagsFor(""),
		Fetch: func(ctx context.Context) (any, error) {
			var resp dashboardResponse
			if err := s.get(ctx, ep, "", nil, &resp); err != nil {
				return nil, err
			}
			return toDashboard(resp), nil
		},
	})
}

// WatchUsers subscribes to one page of users. Data is an admin.Page[admin.User].
// Every distinct params value is its own cache entry.
func (s *AdminService) WatchUsers(params admin.UserListParams) (*Subscription, error) {
	p, err := s.UserParams(params)
	if err != nil {
		return nil, err
	}

	ep := lookupEndpoint(EndpointGetUsers)
	return s.engine.Subscribe(query.Definition{
		Endpoint: ep.Name,
		Params:   p,
		Tags:     ep.tagsFor(""),
		Fetch: func(ctx context.Context) (any, error) {
			var resp userListResponse
			q := []adminapi.Param{
				{Name: "page", Value: strconv.Itoa(p.Page)},
				{Name: "limit", Value: strconv.Itoa(p.Limit)},
				{Name: "search", Value: p.Search},
			}
			if err := s.get(ctx, ep, "", q, &resp); err != nil {
				return nil, err
			}
			return toPage(resp.Users, resp.Pagination), nil
		},
	}), nil
}

// WatchUser subscribes to one user's details. Data is an admin.User.
func (s *AdminService) WatchUser(id string) (*Subscription, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidParams)
	}

	ep := lookupEndpoint(EndpointGetUserByID)
	return s.engine.Subscribe(query.Definition{
		Endpoint: ep.Name,
		Params:   id,
		Tags:     ep.tagsFor(id),
		Fetch: func(ctx context.Context) (any, error) {
			var resp userResponse
			if err := s.get(ctx, ep, id, nil, &resp); err != nil {
				return nil, err
			}
			if resp.User == nil {
				return nil, fmt.Errorf("%s: response has no user", ep.Name)
			}
			return *resp.User, nil
		},
	}), nil
}

// WatchApplications subscribes to one page of applications.
// Data is an admin.Page[admin.Application].
func (s *AdminService) WatchApplications(params admin.ApplicationListParams) (*Subscription, error) {
	p, err := s.ApplicationParams(params)
	if err != nil {
		return nil, err
	}

	ep := lookupEndpoint(EndpointGetApplications)
	return s.engine.Subscribe(query.Definition{
		Endpoint: ep.Name,
		Params:   p,
		Tags:     ep.tagsFor(""),
		Fetch: func(ctx context.Context) (any, error) {
			var resp applicationListResponse
			q := []adminapi.Param{
				{Name: "page", Value: strconv.Itoa(p.Page)},
				{Name: "limit", Value: strconv.Itoa(p.Limit)},
				{Name: "search", Value: p.Search},
				{Name: "status", Value: p.Status},
			}
			if err := s.get(ctx, ep, "", q, &resp); err != nil {
				return nil, err
			}
			return toPage(resp.Applications, resp.Pagination), nil
		},
	}), nil
}

// WatchApplication subscribes to one application's details.
// Data is an admin.Application.
func (s *AdminService) WatchApplication(id string) (*Subscription, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: application id is required", ErrInvalidParams)
	}

	ep := lookupEndpoint(EndpointGetApplicationByID)
	return s.engine.Subscribe(query.Definition{
		Endpoint: ep.Name,
		Params:   id,
		Tags:     ep.tagsFor(id),
		Fetch: func(ctx context.Context) (any, error) {
			var resp applicationResponse
			if err := s.get(ctx, ep, id, nil, &resp); err != nil {
				return nil, err
			}
			if resp.Application == nil {
				return nil, fmt.Errorf("%s: response has no application", ep.Name)
			}
			return *resp.Application, nil
		},
	}), nil
}

// DeleteUser deletes a user. On success the users lists and the dashboard
// are refetched or evicted.
func (s *AdminService) DeleteUser(ctx context.Context, id string) query.MutationResult {
	id = strings.TrimSpace(id)
	if id == "" {
		return invalidMutation(EndpointDeleteUser, "user id is required")
	}
	return s.mutate(ctx, lookupEndpoint(EndpointDeleteUser), id, nil)
}

// UpdateApplicationStatus moves an application to a new review state.
func (s *AdminService) UpdateApplicationStatus(ctx context.Context, id string, status admin.ApplicationStatus) query.MutationResult {
	id = strings.TrimSpace(id)
	if id == "" {
		return invalidMutation(EndpointUpdateApplicationStatus, "application id is required")
	}
	if !status.IsValid() {
		return invalidMutation(EndpointUpdateApplicationStatus, fmt.Sprintf("unknown status %q", status))
	}
	return s.mutate(ctx, lookupEndpoint(EndpointUpdateApplicationStatus), id, statusUpdateRequest{Status: status})
}

// DeleteApplication deletes an application.
func (s *AdminService) DeleteApplication(ctx context.Context, id string) query.MutationResult {
	id = strings.TrimSpace(id)
	if id == "" {
		return invalidMutation(EndpointDeleteApplication, "application id is required")
	}
	return s.mutate(ctx, lookupEndpoint(EndpointDeleteApplication), id, nil)
}

// UserParams normalizes and validates user list params.
func (s *AdminService) UserParams(p admin.UserListParams) (admin.UserListParams, error) {
	p = p.Normalize(s.defaultLimit)
	if err := s.validate.Struct(p); err != nil {
		return p, fmt.Errorf("%w: %s", ErrInvalidParams, formatParamErrors(err))
	}
	return p, nil
}

// ApplicationParams normalizes and validates application list params.
func (s *AdminService) ApplicationParams(p admin.ApplicationListParams) (admin.ApplicationListParams, error) {
	p = p.Normalize(s.defaultLimit)
	if err := s.validate.Struct(p); err != nil {
		return p, fmt.Errorf("%w: %s", ErrInvalidParams, formatParamErrors(err))
	}
	return p, nil
}

func (s *AdminService) get(ctx context.Context, ep Endpoint, id string, q []adminapi.Param, out any) error {
	return s.api.Do(ctx, adminapi.Request{
		Endpoint: ep.Name,
		Method:   ep.Method,
		Path:     ep.path(id),
		Query:    q,
	}, out)
}

func (s *AdminService) mutate(ctx context.Context, ep Endpoint, id string, body any) query.MutationResult {
	return s.engine.Mutate(ctx, query.Mutation{
		Endpoint:    ep.Name,
		Invalidates: ep.Invalidates,
		Do: func(ctx context.Context) (any, error) {
			err := s.api.Do(ctx, adminapi.Request{
				Endpoint: ep.Name,
				Method:   ep.Method,
				Path:     ep.path(id),
				Body:     body,
			}, nil)
			return nil, err
		},
	})
}

func invalidMutation(endpoint, msg string) query.MutationResult {
	return query.MutationResult{
		Endpoint: endpoint,
		Status:   query.StatusError,
		Err:      fmt.Errorf("%w: %s", ErrInvalidParams, msg),
	}
}

// formatParamErrors renders validator errors as short field messages.
func formatParamErrors(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err.Error()
	}
	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		field := e.Field()
		switch e.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", field))
		case "email":
			messages = append(messages, fmt.Sprintf("%s must be a valid email address", field))
		case "min":
			messages = append(messages, fmt.Sprintf("%s must be at least %s", field, e.Param()))
		case "max":
			messages = append(messages, fmt.Sprintf("%s must be at most %s", field, e.Param()))
		case "oneof":
			messages = append(messages, fmt.Sprintf("%s must be one of: %s", field, e.Param()))
		default:
			messages = append(messages, fmt.Sprintf("%s failed validation: %s", field, e.Tag()))
		}
	}
	return strings.Join(messages, "; ")
}
