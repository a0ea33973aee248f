package main

import (
	"github.com/spf13/cobra"

	"reviewrag/internal/config"
	"reviewrag/internal/logger"
)

// app is the state shared by every subcommand once flags are parsed.
type app struct {
	cfgPath   string
	envFiles  []string
	cfg       *config.AppConfig
	cfgSource string
	creds     config.Credentials
	log       logger.Logger
}

func RootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "reviewbot",
		Short:         "Answer product questions from customer reviews",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.cfgPath, "config", "", "Path to YAML config file (default ./config.yaml, then ~/.config/reviewrag/config.yaml)")
	root.PersistentFlags().StringSliceVar(&a.envFiles, "env-file", []string{".env"}, "dotenv files to load before reading credentials")

	root.AddCommand(
		ingestCmd(a),
		serveCmd(a),
		chatCmd(a),
		searchCmd(a),
		configCmd(a),
	)
	return root
}

func (a *app) load(cmd *cobra.Command) error {
	var err error
	if a.cfgPath == "" {
		a.cfg, a.cfgSource, err = config.LoadDefault()
	} else {
		a.cfg, err = config.Load(a.cfgPath)
		a.cfgSource = a.cfgPath
	}
	if err != nil {
		return err
	}
	a.creds, err = config.LoadCredentials(a.envFiles...)
	if err != nil {
		return err
	}
	a.log = logger.NewLogger(&logger.Config{
		Level:      logger.LogLevel(a.cfg.Log.Level),
		Output:     cmd.ErrOrStderr(),
		JSON:       a.cfg.Log.JSON,
		TimeFormat: "15:04:05",
	})
	logger.SetDefault(a.log)
	cmd.SetContext(logger.ContextWithLogger(cmd.Context(), a.log))
	return nil
}
