package cmd

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certdesk/admin-console/internal/domain/admin"
)

func TestRenderTo_Formats(t *testing.T) {
	t.Parallel()

	v := admin.Stats{TotalUsers: 3, PendingApplications: 1}
	table := func(w io.Writer) {
		fmt.Fprintf(w, "Total users:\t%d\n", v.TotalUsers)
		fmt.Fprintf(w, "Pending:\t%d\n", v.PendingApplications)
	}

	var buf bytes.Buffer
	require.NoError(t, renderTo(&buf, formatTable, v, table))
	assert.Equal(t, "Total users:  3\nPending:      1\n", buf.String())

	buf.Reset()
	require.NoError(t, renderTo(&buf, formatJSON, v, table))
	assert.JSONEq(t, `{"totalUsers":3,"totalApplications":0,"pendingApplications":1,"approvedApplications":0}`, buf.String())

	buf.Reset()
	require.NoError(t, renderTo(&buf, formatYAML, v, table))
	assert.Equal(t, "totalUsers: 3\ntotalApplications: 0\npendingApplications: 1\napprovedApplications: 0\n", buf.String())
}

func TestEncodeYAML_BlockStyle(t *testing.T) {
	t.Parallel()

	page := admin.Page[admin.Application]{
		Items:       []admin.Application{{ID: "a1", Name: "Grace", Status: admin.StatusPending}},
		TotalCount:  1,
		TotalPages:  1,
		CurrentPage: 1,
	}

	var buf bytes.Buffer
	require.NoError(t, encodeYAML(&buf, page))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "items:\n"), out)
	assert.Contains(t, out, "- id: a1\n")
	assert.Contains(t, out, "status: pending")
	assert.Contains(t, out, "totalCount: 1")
	assert.NotContains(t, out, "{")
}

func TestShowing(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "No users found", showing(0, 0, 0, "users"))
	assert.Equal(t, "Showing 11 to 20 of 45 applications", showing(11, 20, 45, "applications"))
}

func TestFormatHelpers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "-", formatDate(time.Time{}))
	assert.Equal(t, "Mar 5, 2024", formatDate(time.Date(2024, 3, 5, 12, 0, 0, 0, time.Local)))
	assert.Equal(t, "-", orDash(""))
	assert.Equal(t, "yes", yesNo(true))
	assert.Equal(t, "Admin", role(true))
	assert.Equal(t, "User", role(false))

	assert.Equal(t, "-", formatAddress(admin.Address{Country: "IN"}))
	assert.Equal(t, "1 Main St, Pune, IN", formatAddress(admin.Address{Street: "1 Main St", City: "Pune", Country: "IN"}))

	assert.Equal(t, "not uploaded", documentSummary(nil))
	assert.Equal(t, "photo.png (image, image/png)",
		documentSummary(&admin.Document{DataURL: "data:image/png;base64,AA==", MimeType: "image/png", OriginalName: "photo.png"}))
	assert.Equal(t, "document (application/pdf)",
		documentSummary(&admin.Document{DataURL: "data:application/pdf;base64,AA==", MimeType: "application/pdf"}))
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "certdesk-admin "+Version)
	assert.Contains(t, out.String(), "Go version:")
}

func TestWithApp_RejectsUnknownFormat(t *testing.T) {
	old := outputFormat
	outputFormat = "xml"
	t.Cleanup(func() { outputFormat = old })

	err := withApp(versionCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown output format "xml"`)
}
