package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/aweris/mediacache"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached objects",
	Long:  "List every object in the durable store, oldest first.",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) (err error) {
	m, err := openCache()
	if err != nil {
		return err
	}
	defer closeCache(m, &err)

	objects, err := m.Objects(context.Background())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(objects) == 0 {
		fmt.Fprintln(out, "(no entries)")
		return nil
	}
	if isTerminal(out) {
		fmt.Fprintln(out, renderObjects(objects))
		return nil
	}
	for _, o := range objects {
		fmt.Fprintf(out, "%s\t%s\t%d\t%s\n", o.Key, o.MIMEType, o.Size, o.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
	}
	return nil
}

func renderObjects(objects []mediacache.ObjectInfo) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Key", "Type", "Size", "Created"})

	var total int64
	for _, o := range objects {
		tw.AppendRow(table.Row{o.Key, o.MIMEType, humanize.IBytes(uint64(o.Size)), humanize.Time(o.CreatedAt)})
		total += o.Size
	}
	tw.AppendFooter(table.Row{fmt.Sprintf("%d objects", len(objects)), "", humanize.IBytes(uint64(total)), ""})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight, AlignFooter: text.AlignRight},
	})
	return tw.Render()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
