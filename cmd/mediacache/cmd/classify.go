package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <ref>...",
	Short: "Show how references are classified",
	Long:  "Print the resolution rule, the video flag and the resolved URL of each reference.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)
}

func runClassify(cmd *cobra.Command, args []string) (err error) {
	m, err := openCache()
	if err != nil {
		return err
	}
	defer closeCache(m, &err)

	for _, ref := range args {
		url, form := m.Classify(ref)
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tvideo=%t\t%s\n", ref, form, m.IsVideo(ref), url)
	}
	return nil
}
