package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <ref>...",
	Short: "Resolve media references to URLs",
	Long:  "Print the renderable URL of each reference. An empty line means a placeholder should be shown.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) (err error) {
	m, err := openCache()
	if err != nil {
		return err
	}
	defer closeCache(m, &err)

	for _, ref := range args {
		fmt.Fprintln(cmd.OutOrStdout(), m.Resolve(ref))
	}
	return nil
}
