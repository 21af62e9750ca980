// Command certdesk-admin is the command-line admin console for the certdesk platform.
package main

import "github.com/certdesk/admin-console/cmd/certdesk-admin/cmd"

func main() {
	cmd.Execute()
}
