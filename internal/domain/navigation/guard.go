// Package navigation decides which console views a session may open.
package navigation

import "strings"

// View is a console destination, named by its route path.
type View string

const (
	ViewLogin        View = "/login"
	ViewDashboard    View = "/"
	ViewUsers        View = "/users"
	ViewApplications View = "/applications"
)

// protected lists the views that require an authenticated session.
var protected = map[View]bool{
	ViewDashboard:    true,
	ViewUsers:        true,
	ViewApplications: true,
}

// Decision is the guard's verdict for one navigation.
type Decision struct {
	// Admit is true when the destination may be shown.
	Admit bool
	// Redirect is where to go instead when Admit is false.
	Redirect View
	// From is the originally requested destination, kept so navigation can
	// resume after login.
	From View
}

// Resolve maps a path or view name to a known view. Unknown destinations
// resolve to the dashboard.
func Resolve(dest string) View {
	d := strings.ToLower(strings.TrimSpace(dest))
	switch d {
	case "/login", "login":
		return ViewLogin
	case "/users", "users":
		return ViewUsers
	case "/applications", "applications", "apps":
		return ViewApplications
	default:
		return ViewDashboard
	}
}

// Guard admits or redirects a navigation to dest.
// Unauthenticated sessions are sent to the login view with the destination
// preserved; authenticated sessions asking for the login view go home.
func Guard(authenticated bool, dest View) Decision {
	if !authenticated && protected[dest] {
		return Decision{Redirect: ViewLogin, From: dest}
	}
	if authenticated && dest == ViewLogin {
		return Decision{Redirect: ViewDashboard}
	}
	return Decision{Admit: true}
}

// AfterLogin returns where navigation resumes once login succeeds.
func AfterLogin(from View) View {
	if from == "" || from == ViewLogin {
		return ViewDashboard
	}
	return from
}

// Title is the human-readable name of a view.
func (v View) Title() string {
	switch v {
	case ViewLogin:
		return "Login"
	case ViewUsers:
		return "Users"
	case ViewApplications:
		return "Applications"
	default:
		return "Dashboard"
	}
}
