// Copyright © 2018 One Concern

package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/howeyc/gopass"
	"github.com/oneconcern/otarepo/pkg/config"
	"github.com/spf13/cobra"
)

// used to patch over the terminal prompt during test
var readPassword = func() ([]byte, error) {
	fmt.Print("Password: ")
	return gopass.GetPasswdMasked()
}

// configCmd represents the config related commands
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Commands to manage the CLI configuration",
	Long: `Commands to manage the otarepo CLI configuration.

The configuration describes the repository to work with. It is read from the file named by the
` + envConfigLocation + ` environment variable, or from otarepo.yaml in the current directory or in $HOME/.otarepo.

Environment variables such as OTAREPO_ENDPOINT and flags override the configuration file.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved configuration",
	Long:  `Prints the configuration resolved from the configuration file, the environment and flags. Passwords are redacted.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := repositoryConfig()
		if err != nil {
			wrapFatalln("failed to resolve configuration", err)
			return
		}
		out, err := cfg.Redacted().Marshal()
		if err != nil {
			wrapFatalln("could not serialize config to yaml", err)
			return
		}
		_, _ = fmt.Fprint(cmd.OutOrStdout(), string(out))
	},
}

var configSetPasswordCmd = &cobra.Command{
	Use:   "set-password",
	Short: "Store the repository password",
	Long: `Seals the password of the repository user with a local secret key, then saves it in the configuration file.

The secret key is created the first time a password is stored.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := repositoryConfig()
		if err != nil {
			wrapFatalln("failed to resolve configuration", err)
			return
		}

		var password string
		if otarepoFlags.password.stdin {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				wrapFatalln("failed to read password", err)
				return
			}
			password = strings.TrimRight(line, "\r\n")
		} else {
			raw, err := readPassword()
			if err != nil {
				wrapFatalln("failed to read password", err)
				return
			}
			password = string(raw)
		}
		if password == "" {
			wrapFatalln("empty password", nil)
			return
		}

		k, err := config.ReadOrCreateKey(current.fs, cfg.KeyFile)
		if err != nil {
			wrapFatalln("failed to get secret key", err)
			return
		}
		if err = cfg.SetPassword(k, password); err != nil {
			wrapFatalln("failed to seal password", err)
			return
		}
		file := configFileLocation()
		if err = cfg.Save(current.fs, file); err != nil {
			wrapFatalln("error writing config file "+file, err)
			return
		}
		infoLogger.Printf("password stored in %s", file)
	},
}

func init() {
	addPasswordStdinFlag(configSetPasswordCmd)
	configCmd.AddCommand(configShowCmd, configSetPasswordCmd)
	rootCmd.AddCommand(configCmd)
}
