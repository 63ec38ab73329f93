package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	wvc "github.com/Skryldev/webview-channel"
)

var (
	configPath string
	logLevel   string
)

func main() {
	root := &cobra.Command{
		Use:   "wvc-demo",
		Short: "Run either side of a webview channel",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(logLevel)
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")

	root.AddCommand(newHostCommand(), newWidgetCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogging(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = zerolog.New(zerolog.NewConsoleWriter()).
		With().
		Timestamp().
		Logger().
		Level(lvl)
	return nil
}

func loadConfig() (wvc.Config, error) {
	if configPath == "" {
		return wvc.DefaultConfig(), nil
	}
	return wvc.LoadConfig(configPath)
}

// debugOptions adds per-envelope logging when the demo runs at debug level
// or below.
func debugOptions() []wvc.Option {
	if log.Logger.GetLevel() > zerolog.DebugLevel {
		return nil
	}
	return []wvc.Option{wvc.WithMiddleware(wvc.LoggingMiddleware(log.Logger))}
}
