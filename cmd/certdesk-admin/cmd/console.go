package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	inboundhttp "github.com/certdesk/admin-console/internal/adapter/inbound/http"
	"github.com/certdesk/admin-console/internal/debounce"
	"github.com/certdesk/admin-console/internal/domain/admin"
	"github.com/certdesk/admin-console/internal/domain/navigation"
	"github.com/certdesk/admin-console/internal/domain/query"
	"github.com/certdesk/admin-console/internal/domain/session"
	"github.com/certdesk/admin-console/internal/service"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive console with live views",
	Long: `Start an interactive console. Views stay subscribed while open, so
changes made here (deletes, status updates) refresh the affected lists and
the dashboard automatically. Type "help" for the command list.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return a.runConsole(ctx)
		})
	},
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}

const consoleHelp = `Commands:
  go <dashboard|users|applications>   open a view
  search <text>                       filter the current list (empty clears)
  filter <status>                     applications: all, pending, reviewed, approved, rejected
  page <n> | next | prev              change page
  limit <n>                           rows per page
  show <id>                           details of a user or application
  delete <id>                         delete a user or application (asks first)
  set-status <id> <status>            review an application
  refetch                             reload the current view
  login <email> <password>            log in
  logout                              log out
  stats                               query cache statistics
  help                                this text
  quit                                leave the console`

// searchTerm is a committed search, tied to the list it was typed in.
type searchTerm struct {
	view navigation.View
	text string
}

// console holds the interactive state. All fields are owned by the run loop.
type console struct {
	a *app

	view       navigation.View
	from       navigation.View
	users      admin.UserListParams
	apps       admin.ApplicationListParams
	totalPages int

	sub     *service.Subscription
	updates <-chan query.Result

	searches chan searchTerm
	search   *debounce.Debouncer[searchTerm]
	sessions chan session.Session

	// confirmed runs when the next line is "y" or "yes".
	confirmed func()
}

func newConsole(a *app) *console {
	c := &console{
		a:        a,
		users:    admin.UserListParams{Page: 1, Limit: a.admin.DefaultPageSize()},
		apps:     admin.ApplicationListParams{Page: 1, Limit: a.admin.DefaultPageSize(), Status: admin.StatusFilterAll},
		searches: make(chan searchTerm, 1),
		sessions: make(chan session.Session, 1),
	}
	c.search = debounce.New(a.cfg.SearchDebounce(), func(t searchTerm) {
		offerLatest(c.searches, t)
	})
	return c
}

// offerLatest sends v on a one-slot channel, replacing an unread value.
func offerLatest[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func (a *app) runConsole(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if addr := a.cfg.Telemetry.MetricsAddr; addr != "" {
		srv := inboundhttp.NewServer(addr, a.registry,
			inboundhttp.NewHealthChecker(a.engine, a.sessions, Version), a.logger)
		served := make(chan struct{})
		go func() {
			defer close(served)
			if err := srv.Start(ctx); err != nil {
				a.logger.Error("metrics server failed", "addr", addr, "error", err)
			}
		}()
		defer func() {
			cancel()
			<-served
		}()
	}

	c := newConsole(a)
	defer c.search.Stop()

	stopWatch := a.sessions.OnChange(func(s session.Session) {
		offerLatest(c.sessions, s)
	})
	defer stopWatch()

	lines := make(chan string)
	go readLines(ctx, a.in, lines)

	fmt.Fprintln(a.out, `certdesk admin console. Type "help" for commands.`)
	c.navigate(navigation.ViewDashboard)
	defer c.release()

	for {
		select {
		case <-ctx.Done():
			return nil

		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := c.handle(ctx, line); quit {
				return nil
			}

		case t := <-c.searches:
			c.applySearch(t)

		case r, ok := <-c.updates:
			if !ok {
				c.updates = nil
				continue
			}
			c.show(r)

		case s := <-c.sessions:
			if !s.IsAuthenticated() && c.view != navigation.ViewLogin {
				fmt.Fprintln(a.out, "Your session has ended.")
				c.navigate(c.view)
			}
		}
	}
}

// readLines forwards input lines until EOF or ctx is done.
func readLines(ctx context.Context, in *bufio.Reader, lines chan<- string) {
	defer close(lines)
	for {
		line, err := in.ReadString('\n')
		if line != "" {
			select {
			case lines <- strings.TrimRight(line, "\r\n"):
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// handle runs one input line and reports whether the console should exit.
func (c *console) handle(ctx context.Context, line string) bool {
	fields := strings.Fields(line)

	if c.confirmed != nil {
		run := c.confirmed
		c.confirmed = nil
		if len(fields) == 1 && (strings.EqualFold(fields[0], "y") || strings.EqualFold(fields[0], "yes")) {
			run()
		} else {
			fmt.Fprintln(c.a.out, "Cancelled")
		}
		return false
	}
	if len(fields) == 0 {
		return false
	}

	name, args := strings.ToLower(fields[0]), fields[1:]
	switch name {
	case "quit", "exit":
		return true
	case "help", "?":
		fmt.Fprintln(c.a.out, consoleHelp)
	case "go", "open":
		if len(args) != 1 {
			c.usage("go <dashboard|users|applications>")
			return false
		}
		c.navigate(navigation.Resolve(args[0]))
	case "search":
		c.pushSearch(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0])))
	case "filter":
		c.commitSearch()
		c.filter(args)
	case "page":
		c.commitSearch()
		n, ok := c.intArg(args, "page <n>")
		if ok {
			c.setPage(n)
		}
	case "next":
		c.commitSearch()
		if c.totalPages > 0 && c.currentPage() >= c.totalPages {
			fmt.Fprintln(c.a.out, "Already on the last page")
			return false
		}
		c.setPage(c.currentPage() + 1)
	case "prev":
		c.commitSearch()
		if c.currentPage() <= 1 {
			fmt.Fprintln(c.a.out, "Already on the first page")
			return false
		}
		c.setPage(c.currentPage() - 1)
	case "limit":
		c.commitSearch()
		n, ok := c.intArg(args, "limit <n>")
		if ok {
			c.setLimit(n)
		}
	case "show":
		if len(args) != 1 {
			c.usage("show <id>")
			return false
		}
		c.showDetails(ctx, args[0])
	case "delete":
		if len(args) != 1 {
			c.usage("delete <id>")
			return false
		}
		c.askDelete(ctx, args[0])
	case "set-status":
		if len(args) != 2 {
			c.usage("set-status <id> <pending|reviewed|approved|rejected>")
			return false
		}
		c.setStatus(ctx, args[0], args[1])
	case "refetch", "refresh":
		if c.sub == nil {
			fmt.Fprintln(c.a.out, "Nothing to refetch")
			return false
		}
		c.sub.Refetch()
	case "login":
		if len(args) != 2 {
			c.usage("login <email> <password>")
			return false
		}
		c.login(ctx, args[0], args[1])
	case "logout":
		if err := c.a.logout(ctx); err != nil {
			c.fail(err)
			return false
		}
		c.from = ""
		c.enter(navigation.ViewLogin)
	case "stats":
		stats := c.a.engine.Stats()
		c.report(c.a.render(stats, func(w io.Writer) {
			fmt.Fprintf(w, "Entries:\t%d\n", stats.Entries)
			fmt.Fprintf(w, "Subscribed:\t%d\n", stats.Subscribed)
			fmt.Fprintf(w, "In flight:\t%d\n", stats.InFlight)
		}))
	default:
		fmt.Fprintf(c.a.out, "Unknown command %q. Type \"help\" for commands.\n", name)
	}
	return false
}

// navigate applies the route guard and opens dest or its redirect.
func (c *console) navigate(dest navigation.View) {
	d := navigation.Guard(c.a.sessions.IsAuthenticated(), dest)
	if d.Admit {
		c.enter(dest)
		return
	}
	if d.Redirect == navigation.ViewLogin {
		c.from = d.From
		c.enter(navigation.ViewLogin)
		return
	}
	c.enter(d.Redirect)
}

// enter switches to view and subscribes to its data.
func (c *console) enter(view navigation.View) {
	c.view = view
	c.totalPages = 0
	if view == navigation.ViewLogin {
		c.release()
		if c.from != "" {
			fmt.Fprintf(c.a.out, "Log in to open %s: login <email> <password>\n", c.from.Title())
		} else {
			fmt.Fprintln(c.a.out, "Log in: login <email> <password>")
		}
		return
	}
	c.resubscribe()
}

// resubscribe attaches to the current view's key before releasing the old
// one, so revisiting a cached page is served without a request.
func (c *console) resubscribe() {
	var (
		sub *service.Subscription
		err error
	)
	switch c.view {
	case navigation.ViewUsers:
		sub, err = c.a.admin.WatchUsers(c.users)
	case navigation.ViewApplications:
		sub, err = c.a.admin.WatchApplications(c.apps)
	default:
		sub = c.a.admin.WatchDashboard()
	}
	if err != nil {
		c.fail(err)
		return
	}
	c.release()
	c.sub = sub
	c.updates = sub.Updates()
}

func (c *console) release() {
	if c.sub != nil {
		c.sub.Close()
		c.sub = nil
		c.updates = nil
	}
}

// show renders a snapshot of the current view.
func (c *console) show(r query.Result) {
	switch {
	case r.IsLoading():
		fmt.Fprintf(c.a.out, "Loading %s...\n", c.view.Title())
		return
	case !r.Settled():
		return
	case errors.Is(r.Err, service.ErrCacheReset):
		// The session ended; the session event redirects to login.
		return
	}

	if r.HasData {
		c.report(c.renderView(r.Data))
	}
	if r.Status == query.StatusError {
		fmt.Fprintln(c.a.out, "Error:", explain(r.Err, "Failed to load "+strings.ToLower(c.view.Title())))
	}
}

func (c *console) renderView(data any) error {
	fmt.Fprintf(c.a.out, "== %s ==\n", c.view.Title())
	switch v := data.(type) {
	case admin.Dashboard:
		return c.a.render(v, func(w io.Writer) { writeDashboard(w, v) })
	case admin.Page[admin.User]:
		c.totalPages = v.TotalPages
		if c.users.Search != "" {
			fmt.Fprintf(c.a.out, "Search: %q\n", c.users.Search)
		}
		return c.a.render(v, func(w io.Writer) { writeUserPage(w, v, c.users.Limit) })
	case admin.Page[admin.Application]:
		c.totalPages = v.TotalPages
		if c.apps.Search != "" || c.apps.Status != admin.StatusFilterAll {
			fmt.Fprintf(c.a.out, "Search: %q  Status: %s\n", c.apps.Search, c.apps.Status)
		}
		return c.a.render(v, func(w io.Writer) { writeApplicationPage(w, v, c.apps.Limit) })
	default:
		return fmt.Errorf("unexpected %T for %s", data, c.view.Title())
	}
}

func (c *console) pushSearch(text string) {
	if !c.onList() {
		return
	}
	c.search.Push(searchTerm{view: c.view, text: text})
}

// applySearch switches the list to a committed search term, from page 1.
func (c *console) applySearch(t searchTerm) {
	if t.view != c.view {
		return
	}
	switch c.view {
	case navigation.ViewUsers:
		c.users.Search, c.users.Page = t.text, 1
	case navigation.ViewApplications:
		c.apps.Search, c.apps.Page = t.text, 1
	default:
		return
	}
	c.totalPages = 0
	c.resubscribe()
}

// commitSearch applies a search still inside its debounce window, so list
// commands typed right after it act on the searched list.
func (c *console) commitSearch() {
	if !c.search.Flush() {
		return
	}
	select {
	case t := <-c.searches:
		c.applySearch(t)
	default:
	}
}

func (c *console) filter(args []string) {
	if c.view != navigation.ViewApplications {
		fmt.Fprintln(c.a.out, "filter applies to the applications view")
		return
	}
	if len(args) != 1 {
		c.usage("filter <all|pending|reviewed|approved|rejected>")
		return
	}
	status, err := admin.ParseStatusFilter(args[0])
	if err != nil {
		c.fail(err)
		return
	}
	c.apps.Status, c.apps.Page = status, 1
	c.resubscribe()
}

func (c *console) currentPage() int {
	if c.view == navigation.ViewApplications {
		return c.apps.Page
	}
	return c.users.Page
}

func (c *console) setPage(n int) {
	if !c.onList() {
		return
	}
	if c.totalPages > 0 && n > c.totalPages {
		fmt.Fprintf(c.a.out, "Page %d is past the last page (%d)\n", n, c.totalPages)
		return
	}
	c.updateParams(func(u *admin.UserListParams) { u.Page = n }, func(p *admin.ApplicationListParams) { p.Page = n })
}

func (c *console) setLimit(n int) {
	if !c.onList() {
		return
	}
	c.updateParams(
		func(u *admin.UserListParams) { u.Limit, u.Page = n, 1 },
		func(p *admin.ApplicationListParams) { p.Limit, p.Page = n, 1 },
	)
}

// updateParams validates the edited params of the current list and keeps
// the previous ones when validation fails.
func (c *console) updateParams(users func(*admin.UserListParams), apps func(*admin.ApplicationListParams)) {
	switch c.view {
	case navigation.ViewUsers:
		next := c.users
		users(&next)
		p, err := c.a.admin.UserParams(next)
		if err != nil {
			c.fail(err)
			return
		}
		c.users = p
	case navigation.ViewApplications:
		next := c.apps
		apps(&next)
		p, err := c.a.admin.ApplicationParams(next)
		if err != nil {
			c.fail(err)
			return
		}
		c.apps = p
	}
	c.resubscribe()
}

func (c *console) showDetails(ctx context.Context, id string) {
	switch c.view {
	case navigation.ViewUsers:
		c.report(c.a.showUser(ctx, id))
	case navigation.ViewApplications:
		c.report(c.a.showApplication(ctx, id))
	default:
		fmt.Fprintln(c.a.out, "show applies to the users and applications views")
	}
}

func (c *console) askDelete(ctx context.Context, id string) {
	switch c.view {
	case navigation.ViewUsers:
		fmt.Fprintf(c.a.out, "Delete user %s? [y/N]\n", id)
		c.confirmed = func() { c.report(c.a.deleteUser(ctx, id, true)) }
	case navigation.ViewApplications:
		fmt.Fprintf(c.a.out, "Delete application %s? [y/N]\n", id)
		c.confirmed = func() { c.report(c.a.deleteApplication(ctx, id, true)) }
	default:
		fmt.Fprintln(c.a.out, "delete applies to the users and applications views")
	}
}

func (c *console) setStatus(ctx context.Context, id, value string) {
	status, err := admin.ParseApplicationStatus(value)
	if err != nil {
		c.fail(err)
		return
	}
	c.report(c.a.setApplicationStatus(ctx, id, status))
}

func (c *console) login(ctx context.Context, email, password string) {
	if err := c.a.login(ctx, email, password); err != nil {
		c.fail(err)
		return
	}
	dest := navigation.AfterLogin(c.from)
	c.from = ""
	c.navigate(dest)
}

func (c *console) onList() bool {
	if c.view == navigation.ViewUsers || c.view == navigation.ViewApplications {
		return true
	}
	fmt.Fprintln(c.a.out, "open the users or applications view first")
	return false
}

func (c *console) intArg(args []string, usage string) (int, bool) {
	if len(args) != 1 {
		c.usage(usage)
		return 0, false
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		c.usage(usage)
		return 0, false
	}
	return n, true
}

func (c *console) usage(u string) {
	fmt.Fprintln(c.a.out, "usage:", u)
}

// report prints err, if any, and keeps the console running.
func (c *console) report(err error) {
	if err != nil {
		c.fail(err)
	}
}

func (c *console) fail(err error) {
	if errors.Is(err, errLoginRequired) {
		c.navigate(c.view)
		return
	}
	fmt.Fprintln(c.a.out, "Error:", err)
}
