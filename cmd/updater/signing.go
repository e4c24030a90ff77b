package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/netbirdio/appupdate/updatemanager/reposign"
)

const signatureSuffix = ".sig"

var (
	keygenPrivKeyFile string
	keygenPubKeyFile  string
	keygenExpiration  time.Duration

	bundlePubKeyFiles []string
	bundleKeysFile    string

	signPrivKeyFile string

	verifyKeysFile      string
	verifySignatureFile string
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Create a new artifact signing key pair",
	Long: `Generate an ed25519 artifact signing key pair. The private key signs update packages,
the public key goes into the trusted keys file of the clients.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if keygenExpiration < 0 {
			return fmt.Errorf("--expiration must not be negative")
		}

		if err := handleKeygen(cmd, keygenPrivKeyFile, keygenPubKeyFile, keygenExpiration); err != nil {
			return fmt.Errorf("failed to create artifact key: %w", err)
		}
		return nil
	},
}

var bundleKeysCmd = &cobra.Command{
	Use:   "bundle-keys",
	Short: "Bundle artifact public keys into a trusted keys file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(bundlePubKeyFiles) == 0 {
			return fmt.Errorf("at least one --pub-key-file must be provided")
		}

		if err := handleBundleKeys(cmd, bundlePubKeyFiles, bundleKeysFile); err != nil {
			return fmt.Errorf("failed to bundle public keys: %w", err)
		}
		return nil
	},
}

var signCmd = &cobra.Command{
	Use:   "sign <file>",
	Short: "Sign an update package, writing <file>.sig",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := handleSign(cmd, signPrivKeyFile, args[0]); err != nil {
			return fmt.Errorf("failed to sign %s: %w", args[0], err)
		}
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify <file>",
	Short: "Verify the signature of an update package",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := handleVerify(cmd, verifyKeysFile, args[0], verifySignatureFile); err != nil {
			return fmt.Errorf("failed to verify %s: %w", args[0], err)
		}
		return nil
	},
}

func init() {
	keygenCmd.Flags().StringVar(&keygenPrivKeyFile, "priv-key-file", "", "Path where the artifact private key will be saved")
	keygenCmd.Flags().StringVar(&keygenPubKeyFile, "pub-key-file", "", "Path where the artifact public key will be saved")
	keygenCmd.Flags().DurationVar(&keygenExpiration, "expiration", 0, "Expiration duration for the artifact key (e.g., 720h, 8760h), 0 never expires")
	mustMarkRequired(keygenCmd, "priv-key-file", "pub-key-file")

	bundleKeysCmd.Flags().StringArrayVar(&bundlePubKeyFiles, "pub-key-file", nil, "Path(s) to the artifact public key files to include in the bundle (can be repeated)")
	bundleKeysCmd.Flags().StringVar(&bundleKeysFile, "keys-file", "", "Path where the trusted keys file will be saved")
	mustMarkRequired(bundleKeysCmd, "pub-key-file", "keys-file")

	signCmd.Flags().StringVar(&signPrivKeyFile, "priv-key-file", "", "Path to the artifact private key")
	mustMarkRequired(signCmd, "priv-key-file")

	verifyCmd.Flags().StringVar(&verifyKeysFile, "keys-file", "", "Path to the trusted keys file")
	verifyCmd.Flags().StringVar(&verifySignatureFile, "signature-file", "", "Path to the signature, defaults to <file>.sig")
	mustMarkRequired(verifyCmd, "keys-file")
}

func mustMarkRequired(cmd *cobra.Command, names ...string) {
	for _, name := range names {
		if err := cmd.MarkFlagRequired(name); err != nil {
			panic(fmt.Errorf("mark %s as required: %w", name, err))
		}
	}
}

func handleKeygen(cmd *cobra.Command, privKeyFile, pubKeyFile string, expiration time.Duration) error {
	cmd.Println("Creating new artifact signing key...")

	artifactKey, privPEM, pubPEM, err := reposign.GenerateArtifactKey(expiration)
	if err != nil {
		return fmt.Errorf("generate artifact key: %w", err)
	}

	if err := os.WriteFile(privKeyFile, privPEM, 0o600); err != nil {
		return fmt.Errorf("write private key file (%s): %w", privKeyFile, err)
	}

	if err := os.WriteFile(pubKeyFile, pubPEM, 0o644); err != nil {
		return fmt.Errorf("write public key file (%s): %w", pubKeyFile, err)
	}

	cmd.Printf("Artifact key created successfully.\n")
	cmd.Printf("%s\n", artifactKey.String())
	return nil
}

func handleBundleKeys(cmd *cobra.Command, pubKeyFiles []string, keysFile string) error {
	publicKeys := make([]reposign.PublicKey, 0, len(pubKeyFiles))
	for _, pubFile := range pubKeyFiles {
		pubPEM, err := os.ReadFile(pubFile)
		if err != nil {
			return fmt.Errorf("read public key file: %w", err)
		}

		pk, err := reposign.ParseArtifactPubKey(pubPEM)
		if err != nil {
			return fmt.Errorf("failed to parse artifact key %s: %w", pubFile, err)
		}
		publicKeys = append(publicKeys, pk)
	}

	bundled, err := reposign.BundleArtifactKeys(publicKeys)
	if err != nil {
		return fmt.Errorf("bundle artifact keys: %w", err)
	}

	if err := os.WriteFile(keysFile, bundled, 0o644); err != nil {
		return fmt.Errorf("write keys file (%s): %w", keysFile, err)
	}

	cmd.Printf("Bundle created with %d public keys.\n", len(publicKeys))
	return nil
}

func handleSign(cmd *cobra.Command, privKeyFile, file string) error {
	privPEM, err := os.ReadFile(privKeyFile)
	if err != nil {
		return fmt.Errorf("read private key file: %w", err)
	}

	artifactKey, err := reposign.ParseArtifactKey(privPEM)
	if err != nil {
		return err
	}

	signature, err := reposign.SignFile(artifactKey, file)
	if err != nil {
		return err
	}

	signatureFile := file + signatureSuffix
	if err := os.WriteFile(signatureFile, signature, 0o644); err != nil {
		return fmt.Errorf("write signature file (%s): %w", signatureFile, err)
	}

	cmd.Printf("Signature written to %s\n", signatureFile)
	return nil
}

func handleVerify(cmd *cobra.Command, keysFile, file, signatureFile string) error {
	if signatureFile == "" {
		signatureFile = file + signatureSuffix
	}

	keysPEM, err := os.ReadFile(keysFile)
	if err != nil {
		return fmt.Errorf("read keys file: %w", err)
	}
	keys, err := reposign.ParseArtifactPubKeys(keysPEM)
	if err != nil {
		return err
	}

	sigData, err := os.ReadFile(signatureFile)
	if err != nil {
		return fmt.Errorf("read signature file: %w", err)
	}
	signature, err := reposign.ParseSignature(sigData)
	if err != nil {
		return fmt.Errorf("parse signature: %w", err)
	}

	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := reposign.ValidateArtifact(keys, f, *signature); err != nil {
		return err
	}

	cmd.Printf("Signature of %s is valid (key %s)\n", file, signature.KeyID)
	return nil
}
