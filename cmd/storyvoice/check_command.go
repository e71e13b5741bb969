package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"storyvoice/internal/preflight"
	"storyvoice/internal/services"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check directories, binaries and backend connectivity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			results := preflight.RunAll(cmd.Context(), ctx.configValue(), ctx.httpDoer())

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			printSection(out, "Preflight", colorize)
			for _, r := range results {
				kind := statusOK
				switch {
				case r.Passed:
				case r.Optional:
					kind = statusWarn
				default:
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
			}
			if preflight.Failed(results) {
				return services.Wrap(services.ErrConfiguration, "cli", "check", "one or more required checks failed", nil)
			}
			return nil
		},
	}
}
