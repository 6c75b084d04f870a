package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aweris/mediacache"
)

var logger = logrus.New()

var rootCmd = &cobra.Command{
	Use:   "mediacache",
	Short: "Local media cache CLI",
	Long:  "CLI for storing, resolving and serving cached media references.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogger()
	},
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default: ~/.config/mediacache/config.yaml)")
	flags.String("cache-dir", "", "cache directory (default: ~/.local/share/mediacache)")
	flags.String("backend", mediacache.BackendFS, "durable store backend: fs or sqlite")
	flags.String("origin", "", "origin minted handles carry (default: null)")
	flags.String("media-base", "", "base URL server-relative references resolve against")
	flags.String("log-level", "info", "log level")
	flags.String("log-format", "text", "log format: text or json")

	viper.BindPFlag("cache_dir", flags.Lookup("cache-dir"))
	viper.BindPFlag("backend", flags.Lookup("backend"))
	viper.BindPFlag("origin", flags.Lookup("origin"))
	viper.BindPFlag("media.base_url", flags.Lookup("media-base"))
	viper.BindPFlag("log.level", flags.Lookup("log-level"))
	viper.BindPFlag("log.format", flags.Lookup("log-format"))
}

func initConfig() {
	if cfg := rootCmd.PersistentFlags().Lookup("config").Value.String(); cfg != "" {
		viper.SetConfigFile(cfg)
	} else {
		viper.AddConfigPath(configDir())
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("MEDIACACHE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	viper.SetDefault("cache_dir", defaultCacheDir())
	viper.SetDefault("backend", mediacache.BackendFS)
	viper.SetDefault("compression.enabled", true)
	viper.SetDefault("compression.level", "default")
	viper.SetDefault("memory_cache_entries", mediacache.DefaultMemoryCacheEntries)
	viper.SetDefault("origin", mediacache.DefaultOrigin)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	viper.ReadInConfig()
}

func setupLogger() error {
	level, err := logrus.ParseLevel(viper.GetString("log.level"))
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logger.SetLevel(level)
	logger.SetOutput(os.Stderr)

	switch format := viper.GetString("log.format"); format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("invalid log format %q", format)
	}
	return nil
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "mediacache")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "mediacache")
	}
	return ".mediacache"
}

func defaultCacheDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "mediacache")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "mediacache")
	}
	return ".mediacache"
}
