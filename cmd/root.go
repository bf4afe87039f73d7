// Package cmd wires the command line interface to the migration pipeline.
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aerostitch/trac-hub/internal/config"
	"github.com/aerostitch/trac-hub/internal/github"
	"github.com/aerostitch/trac-hub/internal/logging"
	"github.com/aerostitch/trac-hub/internal/markup"
	"github.com/aerostitch/trac-hub/internal/migration"
	"github.com/aerostitch/trac-hub/internal/trac"
	"github.com/aerostitch/trac-hub/internal/vcs"
)

var (
	configPath  string
	startTicket int64
	singlePost  bool
	noVerify    bool
	skipClosed  bool
	revmapPath  string
)

var rootCmd = &cobra.Command{
	Use:   "trac-hub",
	Short: "trac-hub migrates Trac tickets to GitHub issues",
	Long: `trac-hub reads tickets from a Trac database and imports them into a GitHub
repository, preserving each ticket's history as a comment timeline and
translating Trac wiki markup to GitHub markdown. Ticket ids are preserved as
issue numbers, which the safety checks verify after every import.`,
	SilenceUsage: true,
	RunE:         run,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "trac-hub.yaml", "path of the configuration file")
	rootCmd.Flags().Int64VarP(&startTicket, "start", "s", 0, "first ticket id to migrate (default: one past the newest GitHub issue)")
	rootCmd.Flags().BoolVar(&singlePost, "singlepost", false, "fold each ticket's history into one issue body instead of comments")
	rootCmd.Flags().BoolVar(&noVerify, "no-verify", false, "disable safety checks: skip detection, job polling and issue id verification")
	rootCmd.Flags().BoolVar(&skipClosed, "skip-closed", false, "do not migrate closed tickets")
	rootCmd.Flags().StringVar(&revmapPath, "revmap", "", "path of a revision-to-commit map file")
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	// Flags override the configuration file.
	if cmd.Flags().Changed("start") {
		cfg.Migrate.StartTicket = startTicket
	}
	if singlePost {
		cfg.Migrate.SinglePost = true
	}
	if noVerify {
		cfg.Migrate.Verify = false
	}
	if skipClosed {
		cfg.Migrate.SkipClosed = true
	}
	if revmapPath != "" {
		cfg.Migrate.Revmap = revmapPath
	}

	store, err := trac.Open(cfg.Trac.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	client, err := github.NewClient(cfg.GitHub.Repo, cfg.GitHub.Token)
	if err != nil {
		return err
	}

	var revisions map[string]string
	if cfg.Migrate.Revmap != "" {
		revisions, err = vcs.LoadRevisionMap(cfg.Migrate.Revmap)
		if err != nil {
			return err
		}
		logging.Info("loaded revision map", "path", cfg.Migrate.Revmap, "entries", len(revisions))
	}

	commitURL := fmt.Sprintf("https://github.com/%s/commit", cfg.GitHub.Repo)
	converter := markup.NewConverter(revisions, commitURL)
	resolver := migration.NewResolver(store, cfg.Users)

	var attachmentURL string
	if cfg.Trac.URL != "" {
		attachmentURL = strings.TrimSuffix(cfg.Trac.URL, "/") + "/raw-attachment/ticket"
	}

	merger := migration.NewMerger(resolver, converter, cfg.Labels, attachmentURL)
	composer := migration.NewComposer(resolver, converter, cfg.Migrate.SinglePost)
	migrator := migration.NewMigrator(store, client, merger, composer, migration.Options{
		StartTicket: cfg.Migrate.StartTicket,
		SkipClosed:  cfg.Migrate.SkipClosed,
		Verify:      cfg.Migrate.Verify,
	})

	// The migrator samples cancellation between tickets, so the first signal
	// lets the ticket in flight finish before the run stops.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return migrator.Run(ctx)
}
