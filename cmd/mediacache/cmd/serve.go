package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aweris/mediacache"
	"github.com/aweris/mediacache/internal/metrics"
	"github.com/aweris/mediacache/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the cache over HTTP",
	Long: `Serve the cache for local previews.

Handles minted by the server carry its public origin, so every handle it
returns can be fetched from /blob/<id> for as long as the server runs.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", server.DefaultAddr, "listen address")
	serveCmd.Flags().Bool("cors", true, "allow cross-origin requests")
	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	viper.BindPFlag("server.cors", serveCmd.Flags().Lookup("cors"))
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) (err error) {
	addr := viper.GetString("server.addr")
	origin := viper.GetString("origin")
	if origin == "" || origin == mediacache.DefaultOrigin {
		origin = "http://" + addr
	}

	observer, err := metrics.NewPrometheus(metrics.DefaultNamespace, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}

	m, err := openCache(mediacache.WithOrigin(origin), mediacache.WithObserver(observer))
	if err != nil {
		return err
	}
	defer closeCache(m, &err)

	if !logger.IsLevelEnabled(logrus.DebugLevel) {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := server.New(m, server.Config{
		Addr:   addr,
		Origin: origin,
		CORS:   viper.GetBool("server.cors"),
		Log:    logger,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(os.Stderr, "Serving %s on %s (media base %q)\n", m.Dir(), srv.Addr(), m.MediaBase())
	return srv.Run(ctx)
}
