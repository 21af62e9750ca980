package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/certdesk/admin-console/internal/domain/admin"
	"github.com/certdesk/admin-console/internal/domain/navigation"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show platform counters and recent activity",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return a.dashboard(ctx)
		})
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}

func (a *app) dashboard(ctx context.Context) error {
	if err := a.requireView(navigation.ViewDashboard); err != nil {
		return err
	}
	d, err := awaitData[admin.Dashboard](ctx, a.admin.WatchDashboard(), "Failed to load dashboard")
	if err != nil {
		return err
	}
	return a.render(d, func(w io.Writer) { writeDashboard(w, d) })
}

func writeDashboard(w io.Writer, d admin.Dashboard) {
	fmt.Fprintf(w, "Total users:\t%d\n", d.Stats.TotalUsers)
	fmt.Fprintf(w, "Total applications:\t%d\n", d.Stats.TotalApplications)
	fmt.Fprintf(w, "Pending applications:\t%d\n", d.Stats.PendingApplications)
	fmt.Fprintf(w, "Approved applications:\t%d\n", d.Stats.ApprovedApplications)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "RECENT APPLICATIONS")
	if len(d.RecentApplications) == 0 {
		fmt.Fprintln(w, "No applications yet")
	} else {
		writeApplicationRows(w, d.RecentApplications)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "RECENT USERS")
	if len(d.RecentUsers) == 0 {
		fmt.Fprintln(w, "No users yet")
	} else {
		writeUserRows(w, d.RecentUsers)
	}
}
