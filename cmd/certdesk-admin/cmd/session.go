package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/certdesk/admin-console/internal/adapter/outbound/state"
	"github.com/certdesk/admin-console/internal/config"
	"github.com/certdesk/admin-console/internal/domain/navigation"
	"github.com/certdesk/admin-console/internal/domain/session"
	"github.com/certdesk/admin-console/internal/service"
)

// passwordEnv supplies the login password when --password is not given.
const passwordEnv = "CERTDESK_ADMIN_PASSWORD"

var (
	loginEmail    string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the session",
	Long: `Log in to the admin API and store the returned token.

The password is taken from --password, then from the CERTDESK_ADMIN_PASSWORD
environment variable, and is otherwise prompted for.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return a.login(ctx, loginEmail, loginPassword)
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return a.logout(ctx)
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored session",
	Long: `Show who is logged in according to local session storage. No request is
made; use whoami to ask the API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return a.status()
		})
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in admin as the API sees it",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return a.whoami(ctx)
		})
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "admin email address")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "admin password (prefer "+passwordEnv+")")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(whoamiCmd)
}

func (a *app) login(ctx context.Context, email, password string) error {
	var err error
	if email == "" {
		if email, err = a.prompt("Email: "); err != nil {
			return err
		}
	}
	if password == "" {
		password = os.Getenv(passwordEnv)
	}
	if password == "" {
		if password, err = a.prompt("Password: "); err != nil {
			return err
		}
	}

	sess, err := a.admin.Login(ctx, service.Credentials{Email: email, Password: password})
	if err != nil {
		return explain(err, "Login failed")
	}
	fmt.Fprintf(a.out, "Logged in as %s\n", describeUser(sess.User))
	return nil
}

func (a *app) logout(ctx context.Context) error {
	wasAuthenticated := a.sessions.IsAuthenticated()
	if err := a.admin.Logout(ctx); err != nil {
		return err
	}
	if wasAuthenticated {
		fmt.Fprintln(a.out, "Logged out")
	} else {
		fmt.Fprintln(a.out, "Not logged in")
	}
	return nil
}

// sessionStatus is the status command's output.
type sessionStatus struct {
	Authenticated bool               `json:"authenticated"`
	User          *session.AdminUser `json:"user,omitempty"`
	ExpiresAt     *time.Time         `json:"expiresAt,omitempty"`
	Expired       bool               `json:"expired"`
	APIBaseURL    string             `json:"apiBaseUrl"`
	Storage       string             `json:"storage"`
}

func (a *app) status() error {
	sess := a.sessions.Current()
	st := sessionStatus{
		Authenticated: sess.IsAuthenticated(),
		User:          sess.User,
		APIBaseURL:    a.client.BaseURL(),
		Storage:       a.storageDescription(),
	}
	if exp, ok := tokenExpiry(sess.Token); ok {
		st.ExpiresAt = &exp
		st.Expired = !exp.After(time.Now())
	}

	return a.render(st, func(w io.Writer) {
		if !st.Authenticated {
			fmt.Fprintln(w, "Session:\tlogged out")
		} else {
			fmt.Fprintf(w, "Session:\tlogged in as %s\n", describeUser(st.User))
		}
		if st.ExpiresAt != nil {
			state := "valid"
			if st.Expired {
				state = "expired"
			}
			fmt.Fprintf(w, "Token expires:\t%s (%s)\n", st.ExpiresAt.Local().Format(time.RFC1123), state)
		}
		fmt.Fprintf(w, "API:\t%s\n", st.APIBaseURL)
		fmt.Fprintf(w, "Storage:\t%s\n", st.Storage)
	})
}

func (a *app) whoami(ctx context.Context) error {
	if err := a.requireView(navigation.ViewDashboard); err != nil {
		return err
	}
	user, err := awaitData[session.AdminUser](ctx, a.admin.WatchMe(), "Could not load your profile")
	if err != nil {
		return err
	}
	return a.render(user, func(w io.Writer) {
		fmt.Fprintf(w, "ID:\t%s\n", user.ID)
		fmt.Fprintf(w, "Name:\t%s\n", orDash(user.Name))
		fmt.Fprintf(w, "Email:\t%s\n", orDash(user.Email))
		fmt.Fprintf(w, "Admin:\t%s\n", yesNo(user.IsAdmin))
	})
}

func (a *app) storageDescription() string {
	s := a.cfg.Session
	switch s.Backend {
	case config.BackendRedis:
		return fmt.Sprintf("redis %s db %d (prefix %q)", s.RedisAddr, s.RedisDB, s.RedisPrefix)
	case config.BackendMemory:
		return "memory (this invocation only)"
	}

	path := s.Path
	if p, ok := a.store.(interface{ Path() string }); ok {
		path = p.Path()
	}
	desc := fmt.Sprintf("%s %s", s.Backend, path)
	if f, ok := a.store.(*state.FileSlotStore); ok && !f.Exists() {
		desc += " (nothing saved yet)"
	}
	return desc
}

// tokenExpiry reads the exp claim of a JWT without verifying it. Tokens are
// opaque to the console, so anything unparseable simply has no expiry.
func tokenExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func describeUser(u *session.AdminUser) string {
	switch {
	case u == nil:
		return "an unknown admin"
	case u.Email == "":
		return orDash(u.Name)
	case u.Name == "":
		return u.Email
	default:
		return fmt.Sprintf("%s <%s>", u.Name, u.Email)
	}
}
