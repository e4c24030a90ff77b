package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/netbirdio/appupdate/updatemanager/decrypt"
)

const packagePasswordEnv = envPrefix + "PACKAGE_PASSWORD"

var (
	encryptOutput string

	encryptCmd = &cobra.Command{
		Use:   "encrypt <file>",
		Short: "Encrypt an update package with a password",
		Long: `Encrypt an update package for publishing. The password is read from the
` + packagePasswordEnv + ` environment variable.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password := os.Getenv(packagePasswordEnv)
			if password == "" {
				return fmt.Errorf("%s is not set", packagePasswordEnv)
			}

			dst := encryptOutput
			if dst == "" {
				dst = args[0] + ".enc"
			}

			cred := decrypt.NewCredential(password)
			defer cred.Wipe()

			if err := decrypt.EncryptFile(args[0], dst, cred, decrypt.DefaultKDFParams); err != nil {
				return fmt.Errorf("failed to encrypt %s: %w", args[0], err)
			}

			cmd.Printf("Encrypted package written to %s\n", dst)
			return nil
		},
	}
)

func init() {
	encryptCmd.Flags().StringVarP(&encryptOutput, "output", "o", "", "Path of the encrypted package, defaults to <file>.enc")
}
