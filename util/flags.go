package util

import (
	"os"
	"path"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// SetFlagsFromEnvVars reads and updates persistent flag values. A file named after the
// flag in the systemd CREDENTIALS_DIRECTORY wins over the environment variable, which
// is constructed by adding prefix (e.g. log-level -> NB_UPDATER_LOG_LEVEL).
func SetFlagsFromEnvVars(cmd *cobra.Command, prefix string) {
	credsDir, present := os.LookupEnv("CREDENTIALS_DIRECTORY")

	flags := cmd.PersistentFlags()
	flags.VisitAll(func(f *pflag.Flag) {
		name := flagNameToUpper(f.Name)

		if present {
			data, e := os.ReadFile(path.Join(credsDir, name))

			if e == nil {
				err := setFlag(flags, f, strings.TrimSuffix(string(data), "\n"))

				if err != nil {
					log.Infof("unable to configure flag %s using credential %s, err: %v", f.Name, name, err)
				} else {
					return
				}
			}
		}

		envName := prefix + name

		if value, varPresent := os.LookupEnv(envName); varPresent {
			err := setFlag(flags, f, value)

			if err != nil {
				log.Infof("unable to configure flag %s using variable %s, err: %v", f.Name, envName, err)
			}
		}
	})
}

// setFlag keeps the previous value when value does not parse, pflag stores the zero
// value before reporting the error
func setFlag(flags *pflag.FlagSet, f *pflag.Flag, value string) error {
	prev := f.Value.String()
	if err := flags.Set(f.Name, value); err != nil {
		if rerr := f.Value.Set(prev); rerr != nil {
			log.Warnf("unable to restore flag %s to %q: %v", f.Name, prev, rerr)
		}
		return err
	}
	return nil
}

// FlagNameToEnvVar returns the environment variable read for cmdFlag
func FlagNameToEnvVar(cmdFlag string, prefix string) string {
	return prefix + flagNameToUpper(cmdFlag)
}

// flagNameToUpper converts a flag name to its corresponding base env name
// replacing dashes by underscores and making the result uppercase
// E.g. log-level -> LOG_LEVEL
func flagNameToUpper(cmdFlag string) string {
	return strings.ToUpper(strings.ReplaceAll(cmdFlag, "-", "_"))
}
