// File: cmd/evsock/version.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/momentics/evsock/internal/transport"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), TitleStyle.Render("evsock")+" "+getVersionString())
		if !transport.Supported {
			fmt.Fprintln(cmd.OutOrStdout(), WarningStyle.Render("descriptor I/O is not supported on this platform"))
		}
	},
}
