package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aweris/mediacache"
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve <handle>",
	Short: "Write the bytes behind a handle to a file",
	Long: `Write the bytes behind a live handle to a file.

Handles only live as long as the process that minted them. Pass --server to
fetch from a running "mediacache serve"; without it the lookup runs in this
process and reports the handle as stale.`,
	Args: cobra.ExactArgs(1),
	RunE: runRetrieve,
}

func init() {
	retrieveCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	retrieveCmd.Flags().String("server", "", "base URL of a running mediacache serve")
	rootCmd.AddCommand(retrieveCmd)
}

func runRetrieve(cmd *cobra.Command, args []string) (err error) {
	handle := args[0]
	output, _ := cmd.Flags().GetString("output")
	serverURL, _ := cmd.Flags().GetString("server")

	var data []byte
	if serverURL != "" {
		data, err = fetchBlob(cmd.Context(), serverURL, handle)
	} else {
		data, err = retrieveLocal(handle)
	}
	if err != nil {
		return err
	}

	if output == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}
	fmt.Fprintf(os.Stderr, "Wrote %s\n", output)
	return nil
}

func retrieveLocal(handle string) (data []byte, err error) {
	m, err := openCache()
	if err != nil {
		return nil, err
	}
	defer closeCache(m, &err)

	f, err := m.Retrieve(context.Background(), handle)
	if errors.Is(err, mediacache.ErrHandleNotFound) {
		return nil, fmt.Errorf("%w (handles do not survive the process that minted them)", err)
	}
	if err != nil {
		return nil, err
	}
	return f.Data, nil
}

func fetchBlob(ctx context.Context, serverURL, handle string) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	id := handle[strings.LastIndex(handle, "/")+1:]
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(serverURL, "/")+"/blob/"+id, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", handle, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return io.ReadAll(resp.Body)
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", mediacache.ErrHandleNotFound, handle)
	case http.StatusGone:
		return nil, fmt.Errorf("%w: %s", mediacache.ErrEvicted, handle)
	default:
		return nil, fmt.Errorf("fetch %s: unexpected status %s", handle, resp.Status)
	}
}
