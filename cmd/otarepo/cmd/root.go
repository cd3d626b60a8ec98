// Copyright © 2018 One Concern

package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envConfigLocation = "OTAREPO_CONFIG"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "otarepo",
	Short: "otarepo keeps a local copy of OTA2 schema libraries in sync with a remote repository",
	Long: `otarepo keeps a local copy of OTA2 schema libraries in sync with a remote repository.

Items are downloaded on demand, and locked for edition: a locked item gets a local work in
progress which may be committed back to the repository before the lock is released.

Items are designated either by their base namespace, file name and version, or by a URI:

	otm://<repository>/<filename>?ns=<namespace>
`,
	SilenceUsage: true,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if otarepoFlags.root.metrics {
			printMetrics(cmd.OutOrStdout())
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		osExit(1)
	}
}

func init() {
	log.SetFlags(0)
	cobra.OnInitialize(initConfig)
	addRootFlags(rootCmd)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if location := os.Getenv(envConfigLocation); location != "" {
		viper.SetConfigFile(location)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.otarepo")
		viper.SetConfigName("otarepo")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("otarepo")
	viper.AutomaticEnv() // read in environment variables that match
	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && !os.IsNotExist(err) {
			wrapFatalln("reading config file", err)
		}
	}
	resetSession()
}
