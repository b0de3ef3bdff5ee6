package commands

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"whisper.bot/config"
	"whisper.bot/internal/logging"
)

var (
	configPath string

	cfg    *config.Config
	logger zerolog.Logger
)

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "whisperd",
		Short:         "Whisper store and reveal service for the chat bot",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return err
			}
			logger = logging.New(cfg.Log)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	root.AddCommand(serveCmd(), inspectCmd())
	return root
}
