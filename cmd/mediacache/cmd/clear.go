package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cached object",
	Args:  cobra.NoArgs,
	RunE:  runClear,
}

func init() {
	rootCmd.AddCommand(clearCmd)
}

func runClear(cmd *cobra.Command, args []string) (err error) {
	m, err := openCache()
	if err != nil {
		return err
	}
	defer closeCache(m, &err)

	if err := m.Clear(context.Background()); err != nil {
		return fmt.Errorf("clear failed: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Cleared %s\n", m.Dir())
	return nil
}
