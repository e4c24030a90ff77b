package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/netbirdio/appupdate/util"
)

const envPrefix = "NB_UPDATER_"

var (
	configPath        string
	defaultConfigPath string
	logLevel          string
	logFile           string

	rootCmd = &cobra.Command{
		Use:          "updater",
		Short:        "Check for, download and install application updates",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			util.SetFlagsFromEnvVars(cmd.Root(), envPrefix)
			return util.InitLog(logLevel, logFile)
		},
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	defaultConfigPath = "/etc/appupdate/config.json"
	if runtime.GOOS == "windows" {
		defaultConfigPath = os.Getenv("PROGRAMDATA") + "\\AppUpdate\\config.json"
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Updater config file location")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "sets the updater log level")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "console", "sets the updater log path. If console is specified the log will be output to stderr")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(bundleKeysCmd)
	rootCmd.AddCommand(signCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(encryptCmd)
	rootCmd.AddCommand(resultCmd)
	rootCmd.AddCommand(versionCmd)
}

// SetupCloseHandler cancels ctx on SIGINT or SIGTERM
func SetupCloseHandler(ctx context.Context, cancel context.CancelFunc) {
	termCh := make(chan os.Signal, 1)
	signal.Notify(termCh, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(termCh)
		select {
		case <-ctx.Done():
			return
		case <-termCh:
		}

		log.Info("shutdown signal received")
		cancel()
	}()
}
