package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRootCmd constructs the Cobra command tree.
func buildRootCmd() *cobra.Command {
	var (
		cfgPath  string
		addr     string
		logLevel string
		logJSON  bool
	)
	root := &cobra.Command{
		Use:           "inferd",
		Short:         "Inference request orchestration daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	root.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Emit JSON logs instead of console format")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the orchestration HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(logLevel, logJSON)
			return runServe(cmd.Context(), cfgPath, addr, log)
		},
	}
	serve.Flags().StringVarP(&cfgPath, "config", "c", "", "Path to config file (.yaml|.json|.toml)")
	serve.Flags().StringVar(&addr, "addr", "", "HTTP listen address override, e.g. :8080")
	root.AddCommand(serve)

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the inferd version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("inferd", version)
		},
	})
	return root
}

func newLogger(level string, jsonOut bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	if jsonOut {
		return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl).With().Timestamp().Logger()
}
