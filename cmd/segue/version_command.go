package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// buildVersion is overridden at link time via -ldflags "-X main.buildVersion=...".
var buildVersion = "dev"

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the segue version",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "segue %s\n", buildVersion)
		},
	}
}
