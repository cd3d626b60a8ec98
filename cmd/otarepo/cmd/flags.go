// Copyright © 2018 One Concern

package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type flagsT struct {
	root struct {
		repositoryID string
		endpoint     string
		user         string
		localRoot    string
		logLevel     string
		metrics      bool
	}
	item struct {
		namespace string
		filename  string
		version   string
		uri       string
		force     bool
	}
	list struct {
		status   string
		itemType string
		latest   bool
	}
	lock struct {
		commit  bool
		remarks string
	}
	status struct {
		target string
	}
	publish struct {
		file          string
		libraryName   string
		versionScheme string
	}
	history struct {
		effective string
		output    string
		urlOnly   bool
	}
	whereUsed struct {
		indirect   bool
		entity     string
		entityType string
	}
	password struct {
		stdin bool
	}
}

var otarepoFlags = flagsT{}

// bindFlag makes a persistent flag override the matching configuration key
func bindFlag(cmd *cobra.Command, name, key string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(name)); err != nil {
		panic(err)
	}
}

func addRootFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&otarepoFlags.root.repositoryID, "repository-id", "", "The id of the remote repository")
	bindFlag(cmd, "repository-id", "id")
	cmd.PersistentFlags().StringVar(&otarepoFlags.root.endpoint, "endpoint", "", "The URL of the remote repository service")
	bindFlag(cmd, "endpoint", "endpoint")
	cmd.PersistentFlags().StringVar(&otarepoFlags.root.user, "user", "", "The user name sent to the remote repository")
	bindFlag(cmd, "user", "user")
	cmd.PersistentFlags().StringVar(&otarepoFlags.root.localRoot, "local-root", "", "The folder holding the local copy of the repository")
	bindFlag(cmd, "local-root", "localRoot")
	cmd.PersistentFlags().StringVar(&otarepoFlags.root.logLevel, "loglevel", "", "The logging level: debug, info, warn, error or none")
	bindFlag(cmd, "loglevel", "logLevel")
	cmd.PersistentFlags().BoolVar(&otarepoFlags.root.metrics, "metrics", false, "Print metrics about remote calls once the command is done")
}

func addNamespaceFlag(cmd *cobra.Command) string {
	namespace := "namespace"
	cmd.Flags().StringVar(&otarepoFlags.item.namespace, namespace, "", "The base namespace of the item")
	return namespace
}

func addItemFlags(cmd *cobra.Command) {
	addNamespaceFlag(cmd)
	cmd.Flags().StringVar(&otarepoFlags.item.filename, "filename", "", "The file name of the item")
	cmd.Flags().StringVar(&otarepoFlags.item.version, "version", "", "The version of the item")
	cmd.Flags().StringVar(&otarepoFlags.item.uri, "uri", "", "The URI of the item, e.g. otm://<repository>/<filename>?ns=<namespace>, instead of namespace, filename and version")
}

func addForceFlag(cmd *cobra.Command) string {
	force := "force"
	cmd.Flags().BoolVar(&otarepoFlags.item.force, force, false, "Download the item even if it was fetched already")
	return force
}

func addListFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&otarepoFlags.list.status, "status", "", "The minimum status of listed items: DRAFT, UNDER_REVIEW, FINAL or OBSOLETE")
	cmd.Flags().StringVar(&otarepoFlags.list.itemType, "type", "", "The type of listed items: LIBRARY, RELEASE or ASSEMBLY")
	cmd.Flags().BoolVar(&otarepoFlags.list.latest, "latest", false, "List only the latest version of each library")
}

func addRemarksFlag(cmd *cobra.Command) string {
	remarks := "remarks"
	cmd.Flags().StringVar(&otarepoFlags.lock.remarks, remarks, "", "Remarks recorded with the commit")
	return remarks
}

func addCommitFlag(cmd *cobra.Command) string {
	commit := "commit"
	cmd.Flags().BoolVar(&otarepoFlags.lock.commit, commit, false, "Commit the work in progress before unlocking")
	return commit
}

func addTargetStatusFlag(cmd *cobra.Command) string {
	target := "to"
	cmd.Flags().StringVar(&otarepoFlags.status.target, target, "", "The new status of the item")
	return target
}

func addPublishFlags(cmd *cobra.Command) []string {
	cmd.Flags().StringVar(&otarepoFlags.publish.file, "file", "", "The file to publish")
	cmd.Flags().StringVar(&otarepoFlags.item.namespace, "namespace", "", "The namespace of the new item")
	cmd.Flags().StringVar(&otarepoFlags.publish.libraryName, "library", "", "The name of the library")
	cmd.Flags().StringVar(&otarepoFlags.item.version, "version", "", "The version of the new item")
	cmd.Flags().StringVar(&otarepoFlags.publish.versionScheme, "scheme", "", "The version scheme of the new item (defaults to OTA2)")
	cmd.Flags().StringVar(&otarepoFlags.list.status, "status", "", "The initial status of the new item (defaults to DRAFT)")
	return []string{"file", "namespace", "library", "version"}
}

func addHistoricalFlags(cmd *cobra.Command) []string {
	cmd.Flags().StringVar(&otarepoFlags.history.effective, "as-of", "", "The date of the content, as RFC 3339")
	cmd.Flags().StringVar(&otarepoFlags.history.output, "output", "", "Write the content to a file instead of stdout")
	cmd.Flags().BoolVar(&otarepoFlags.history.urlOnly, "url", false, "Print the URL of the content instead of fetching it")
	return []string{"as-of"}
}

func addWhereUsedFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&otarepoFlags.whereUsed.indirect, "indirect", false, "Include items depending on the item transitively")
	cmd.Flags().StringVar(&otarepoFlags.whereUsed.entity, "entity", "", "Query the users of an entity instead of an item")
	cmd.Flags().StringVar(&otarepoFlags.whereUsed.entityType, "entity-type", "", "The type of the entity")
}

func addPasswordStdinFlag(cmd *cobra.Command) string {
	stdin := "password-stdin"
	cmd.Flags().BoolVar(&otarepoFlags.password.stdin, stdin, false, "Read the password from stdin instead of prompting")
	return stdin
}

func requireFlags(cmd *cobra.Command, flags ...string) {
	for _, flag := range flags {
		err := cmd.MarkFlagRequired(flag)
		if err != nil {
			logFatalln(err)
		}
	}
}
