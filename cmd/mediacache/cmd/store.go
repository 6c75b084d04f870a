package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"

	"github.com/aweris/mediacache"
)

var storeCmd = &cobra.Command{
	Use:   "store <file>...",
	Short: "Store files in the cache",
	Long: `Transcode and store files under a profile.

Handles printed by this command are only valid while the process runs; the
cache keys remain in the durable store until "mediacache clear".`,
	Args: cobra.MinimumNArgs(1),
	RunE: runStore,
}

func init() {
	storeCmd.Flags().StringP("profile", "p", "photo", "usage profile")
	storeCmd.Flags().Bool("json", false, "print reference bundles as JSON")
	storeCmd.Flags().IntP("jobs", "j", 4, "files transcoded in parallel")
	rootCmd.AddCommand(storeCmd)
}

func runStore(cmd *cobra.Command, args []string) (err error) {
	profile, _ := cmd.Flags().GetString("profile")
	asJSON, _ := cmd.Flags().GetBool("json")
	jobs, _ := cmd.Flags().GetInt("jobs")

	m, err := openCache()
	if err != nil {
		return err
	}
	defer closeCache(m, &err)

	// Files are transcoded in parallel; output keeps argument order.
	bundles := make([]*mediacache.ReferenceBundle, len(args))
	sizes := make([]int64, len(args))
	p := pool.New().WithMaxGoroutines(max(1, jobs)).WithContext(context.Background()).WithCancelOnError()
	for i, path := range args {
		p.Go(func(ctx context.Context) error {
			f, err := readRawFile(path)
			if err != nil {
				return err
			}
			bundle, err := m.Store(ctx, f, profile)
			if err != nil {
				return fmt.Errorf("store %s: %w", path, err)
			}
			bundles[i], sizes[i] = bundle, f.Size()
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	enc := json.NewEncoder(out)
	for i, bundle := range bundles {
		if asJSON {
			if err := enc.Encode(bundle); err != nil {
				return err
			}
			continue
		}
		fmt.Fprintf(out, "%s\t%s\t%s\n", args[i], bundle.CacheKey, humanize.IBytes(uint64(sizes[i])))
		if bundle.HasThumbnail() {
			fmt.Fprintf(out, "%s\t%s\t(thumbnail)\n", args[i], bundle.ThumbnailKey)
		}
	}
	return nil
}

func readRawFile(path string) (mediacache.RawFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return mediacache.RawFile{}, fmt.Errorf("read %s: %w", path, err)
	}
	return mediacache.RawFile{
		Name:     filepath.Base(path),
		MIMEType: mimetype.Detect(data).String(),
		Data:     data,
	}, nil
}
