package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/certdesk/admin-console/internal/domain/admin"
	"github.com/certdesk/admin-console/internal/domain/navigation"
)

var (
	appListPage   int
	appListLimit  int
	appListSearch string
	appListStatus string
	appDeleteYes  bool
)

var applicationsCmd = &cobra.Command{
	Use:     "applications",
	Aliases: []string{"apps"},
	Short:   "List, inspect, review and delete course applications",
}

var applicationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List applications",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			status, err := admin.ParseStatusFilter(appListStatus)
			if err != nil {
				return err
			}
			return a.listApplications(ctx, admin.ApplicationListParams{
				Page:   appListPage,
				Limit:  appListLimit,
				Search: appListSearch,
				Status: status,
			})
		})
	},
}

var applicationsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one application",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return a.showApplication(ctx, args[0])
		})
	},
}

var applicationsSetStatusCmd = &cobra.Command{
	Use:   "set-status <id> <pending|reviewed|approved|rejected>",
	Short: "Move an application to a new review state",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			status, err := admin.ParseApplicationStatus(args[1])
			if err != nil {
				return err
			}
			return a.setApplicationStatus(ctx, args[0], status)
		})
	},
}

var applicationsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an application",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return a.deleteApplication(ctx, args[0], appDeleteYes)
		})
	},
}

func init() {
	applicationsListCmd.Flags().IntVar(&appListPage, "page", 1, "page number")
	applicationsListCmd.Flags().IntVar(&appListLimit, "limit", 0, "applications per page (default from cache.default_page_size)")
	applicationsListCmd.Flags().StringVar(&appListSearch, "search", "", "filter by applicant name, email or course")
	applicationsListCmd.Flags().StringVar(&appListStatus, "status", admin.StatusFilterAll, "filter by status: all, pending, reviewed, approved, rejected")
	applicationsDeleteCmd.Flags().BoolVarP(&appDeleteYes, "yes", "y", false, "skip the confirmation prompt")

	applicationsCmd.AddCommand(applicationsListCmd)
	applicationsCmd.AddCommand(applicationsGetCmd)
	applicationsCmd.AddCommand(applicationsSetStatusCmd)
	applicationsCmd.AddCommand(applicationsDeleteCmd)
	rootCmd.AddCommand(applicationsCmd)
}

func (a *app) listApplications(ctx context.Context, params admin.ApplicationListParams) error {
	if err := a.requireView(navigation.ViewApplications); err != nil {
		return err
	}
	p, err := a.admin.ApplicationParams(params)
	if err != nil {
		return err
	}
	sub, err := a.admin.WatchApplications(p)
	if err != nil {
		return err
	}
	page, err := awaitData[admin.Page[admin.Application]](ctx, sub, "Failed to load applications")
	if err != nil {
		return err
	}
	return a.render(page, func(w io.Writer) { writeApplicationPage(w, page, p.Limit) })
}

func (a *app) showApplication(ctx context.Context, id string) error {
	if err := a.requireView(navigation.ViewApplications); err != nil {
		return err
	}
	sub, err := a.admin.WatchApplication(id)
	if err != nil {
		return err
	}
	application, err := awaitData[admin.Application](ctx, sub, "Failed to load application details")
	if err != nil {
		return err
	}
	return a.render(application, func(w io.Writer) { writeApplicationDetails(w, application) })
}

func (a *app) setApplicationStatus(ctx context.Context, id string, status admin.ApplicationStatus) error {
	if err := a.requireView(navigation.ViewApplications); err != nil {
		return err
	}
	res := a.admin.UpdateApplicationStatus(ctx, id, status)
	if err := mutationError(res, "Failed to update status"); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Application marked as %s\n", status.Label())
	return nil
}

func (a *app) deleteApplication(ctx context.Context, id string, yes bool) error {
	if err := a.requireView(navigation.ViewApplications); err != nil {
		return err
	}
	if !yes && !a.confirm(fmt.Sprintf("Delete application %s?", id)) {
		fmt.Fprintln(a.out, "Cancelled")
		return nil
	}
	if err := mutationError(a.admin.DeleteApplication(ctx, id), "Failed to delete application"); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Application deleted successfully")
	return nil
}

func writeApplicationPage(w io.Writer, page admin.Page[admin.Application], limit int) {
	if len(page.Items) > 0 {
		writeApplicationRows(w, page.Items)
		fmt.Fprintln(w)
	}
	start, end := page.Range(limit)
	fmt.Fprintln(w, showing(start, end, page.TotalCount, "applications"))
	if page.TotalPages > 1 {
		fmt.Fprintf(w, "Page %d of %d\n", page.CurrentPage, page.TotalPages)
	}
}

func writeApplicationRows(w io.Writer, apps []admin.Application) {
	fmt.Fprintln(w, "ID\tAPPLICANT\tEMAIL\tCOURSE\tSTATUS\tSUBMITTED")
	for _, ap := range apps {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			ap.ID, orDash(ap.Name), orDash(ap.Email), orDash(ap.Course), ap.Status.Label(), formatDate(ap.CreatedAt))
	}
}

func writeApplicationDetails(w io.Writer, ap admin.Application) {
	fmt.Fprintf(w, "ID:\t%s\n", ap.ID)
	fmt.Fprintf(w, "Applicant:\t%s\n", orDash(ap.Name))
	fmt.Fprintf(w, "Email:\t%s\n", orDash(ap.Email))
	fmt.Fprintf(w, "Mobile:\t%s\n", orDash(ap.Mobile))
	fmt.Fprintf(w, "Course:\t%s\n", orDash(ap.Course))
	fmt.Fprintf(w, "Status:\t%s\n", ap.Status.Label())
	fmt.Fprintf(w, "Submitted:\t%s\n", formatDate(ap.CreatedAt))
	fmt.Fprintf(w, "Updated:\t%s\n", formatDate(ap.UpdatedAt))
	if ap.Message != "" {
		fmt.Fprintf(w, "Message:\t%s\n", ap.Message)
	}
}
