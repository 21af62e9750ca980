package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/certdesk/admin-console/internal/domain/admin"
	"github.com/certdesk/admin-console/internal/domain/navigation"
)

var (
	userListPage   int
	userListLimit  int
	userListSearch string
	userDeleteYes  bool
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List, inspect and delete users",
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return a.listUsers(ctx, admin.UserListParams{
				Page:   userListPage,
				Limit:  userListLimit,
				Search: userListSearch,
			})
		})
	},
}

var usersGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return a.showUser(ctx, args[0])
		})
	},
}

var usersDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return a.deleteUser(ctx, args[0], userDeleteYes)
		})
	},
}

func init() {
	usersListCmd.Flags().IntVar(&userListPage, "page", 1, "page number")
	usersListCmd.Flags().IntVar(&userListLimit, "limit", 0, "users per page (default from cache.default_page_size)")
	usersListCmd.Flags().StringVar(&userListSearch, "search", "", "filter by name or email")
	usersDeleteCmd.Flags().BoolVarP(&userDeleteYes, "yes", "y", false, "skip the confirmation prompt")

	usersCmd.AddCommand(usersListCmd)
	usersCmd.AddCommand(usersGetCmd)
	usersCmd.AddCommand(usersDeleteCmd)
	rootCmd.AddCommand(usersCmd)
}

func (a *app) listUsers(ctx context.Context, params admin.UserListParams) error {
	if err := a.requireView(navigation.ViewUsers); err != nil {
		return err
	}
	p, err := a.admin.UserParams(params)
	if err != nil {
		return err
	}
	sub, err := a.admin.WatchUsers(p)
	if err != nil {
		return err
	}
	page, err := awaitData[admin.Page[admin.User]](ctx, sub, "Failed to load users")
	if err != nil {
		return err
	}
	return a.render(page, func(w io.Writer) { writeUserPage(w, page, p.Limit) })
}

func (a *app) showUser(ctx context.Context, id string) error {
	if err := a.requireView(navigation.ViewUsers); err != nil {
		return err
	}
	sub, err := a.admin.WatchUser(id)
	if err != nil {
		return err
	}
	u, err := awaitData[admin.User](ctx, sub, "Failed to load user details")
	if err != nil {
		return err
	}
	return a.render(u, func(w io.Writer) { writeUserDetails(w, u) })
}

func (a *app) deleteUser(ctx context.Context, id string, yes bool) error {
	if err := a.requireView(navigation.ViewUsers); err != nil {
		return err
	}
	if !yes && !a.confirm(fmt.Sprintf("Delete user %s?", id)) {
		fmt.Fprintln(a.out, "Cancelled")
		return nil
	}
	if err := mutationError(a.admin.DeleteUser(ctx, id), "Failed to delete user"); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "User deleted successfully")
	return nil
}

func writeUserPage(w io.Writer, page admin.Page[admin.User], limit int) {
	if len(page.Items) > 0 {
		writeUserRows(w, page.Items)
		fmt.Fprintln(w)
	}
	start, end := page.Range(limit)
	fmt.Fprintln(w, showing(start, end, page.TotalCount, "users"))
	if page.TotalPages > 1 {
		fmt.Fprintf(w, "Page %d of %d\n", page.CurrentPage, page.TotalPages)
	}
}

func writeUserRows(w io.Writer, users []admin.User) {
	fmt.Fprintln(w, "ID\tNAME\tEMAIL\tPHONE\tROLE\tJOINED")
	for _, u := range users {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			u.ID, orDash(u.Name), orDash(u.Email), orDash(u.Phone), role(u.IsAdmin), formatDate(u.CreatedAt))
	}
}

func writeUserDetails(w io.Writer, u admin.User) {
	fmt.Fprintf(w, "ID:\t%s\n", u.ID)
	fmt.Fprintf(w, "Name:\t%s\n", orDash(u.Name))
	fmt.Fprintf(w, "Email:\t%s\n", orDash(u.Email))
	fmt.Fprintf(w, "Phone:\t%s\n", orDash(u.Phone))
	fmt.Fprintf(w, "Role:\t%s\n", role(u.IsAdmin))
	fmt.Fprintf(w, "Address:\t%s\n", formatAddress(u.Address))
	fmt.Fprintf(w, "Profile image:\t%s\n", documentSummary(u.ProfileImage))
	for _, d := range u.Certificates.Labeled() {
		fmt.Fprintf(w, "%s:\t%s\n", d.Label, documentSummary(d.Document))
	}
	fmt.Fprintf(w, "Joined:\t%s\n", formatDate(u.CreatedAt))
	fmt.Fprintf(w, "Updated:\t%s\n", formatDate(u.UpdatedAt))
}

func role(isAdmin bool) string {
	if isAdmin {
		return "Admin"
	}
	return "User"
}

func formatAddress(a admin.Address) string {
	if a.IsEmpty() {
		return "-"
	}
	var parts []string
	for _, p := range []string{a.Street, a.City, a.State, a.ZipCode, a.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

func documentSummary(d *admin.Document) string {
	if !d.Uploaded() {
		return "not uploaded"
	}
	kind := "document"
	if d.IsImage() {
		kind = "image"
	}
	if d.OriginalName != "" {
		return fmt.Sprintf("%s (%s, %s)", d.OriginalName, kind, d.MimeType)
	}
	return fmt.Sprintf("%s (%s)", kind, orDash(d.MimeType))
}
