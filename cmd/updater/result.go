package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/netbirdio/appupdate/updatemanager/installer"
)

var (
	resultDir     string
	resultTimeout time.Duration

	resultCmd = &cobra.Command{
		Use:   "result",
		Short: "Wait for the result of an installation and print it",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			SetupCloseHandler(ctx, cancel)

			if resultTimeout > 0 {
				var timeoutCancel context.CancelFunc
				ctx, timeoutCancel = context.WithTimeout(ctx, resultTimeout)
				defer timeoutCancel()
			}

			result, err := installer.NewResultHandler(resultDir).Watch(ctx)
			if err != nil {
				return fmt.Errorf("wait for installer result: %w", err)
			}

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			cmd.Println(string(out))

			if !result.Success {
				return fmt.Errorf("installation of %s failed: %s", result.Version, result.Error)
			}
			return nil
		},
	}
)

func init() {
	resultCmd.Flags().StringVar(&resultDir, "result-dir", "", "Directory the installer writes its result to")
	resultCmd.Flags().DurationVar(&resultTimeout, "timeout", 0, "stop waiting after this duration, 0 waits until interrupted")
	mustMarkRequired(resultCmd, "result-dir")
}
