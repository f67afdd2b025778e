package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/NewsHound/internal/engine"
	"github.com/IshaanNene/NewsHound/internal/scraper"
)

var (
	checkDryRun bool

	reprocessCount      int
	reprocessMarkUnread bool
)

// checkCmd creates the "check" subcommand.
func checkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check NAME",
		Short: "Run one check cycle for a source",
		Long: `Run a single scrape, dedup, rewrite and persist cycle for one source without
starting its loop or taking its lock. With --dry-run new articles are printed
as JSON lines instead of being stored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := setupLogger(cfg)

			eng, err := engine.New(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("create engine: %w", err)
			}
			defer eng.Close()

			var out io.Writer
			if checkDryRun {
				out = cmd.OutOrStdout()
			}
			res, err := eng.Check(cmd.Context(), args[0], out)
			if err != nil {
				return err
			}

			fmt.Fprintf(os.Stderr, "\n✅ Check complete in %s\n", res.Duration.Round(time.Millisecond))
			fmt.Fprintf(os.Stderr, "   Scraped:    %d\n", res.Scraped)
			fmt.Fprintf(os.Stderr, "   New:        %d\n", res.Persisted)
			fmt.Fprintf(os.Stderr, "   Skipped:    %d duplicates, %d dropped, %d deferred\n", res.Duplicates, res.Dropped, res.Deferred)
			if res.Errors > 0 || res.RewriteFailures > 0 {
				fmt.Fprintf(os.Stderr, "   Errors:     %d (%d rewrite failures)\n", res.Errors, res.RewriteFailures)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&checkDryRun, "dry-run", false, "print new articles instead of storing them")
	return cmd
}

// reprocessEmailsCmd creates the "reprocess-emails" subcommand.
func reprocessEmailsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reprocess-emails NAME",
		Short: "List the last messages of an email source, optionally marking them unread",
		Long: `List the last N messages of an email source's mailbox, read or not. With
--mark-unread they are flagged unread so the next cycle picks them up again;
messages already turned into articles are still skipped by the store check.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := setupLogger(cfg)

			eng, err := engine.New(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("create engine: %w", err)
			}
			defer eng.Close()

			src, err := eng.Sources().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			s, err := eng.BuildScraper(*src)
			if err != nil {
				return err
			}
			mail, ok := s.(*scraper.EmailScraper)
			if !ok {
				return fmt.Errorf("source %q is a %s source, not email", src.Name, src.Kind)
			}

			msgs, err := mail.Recent(cmd.Context(), reprocessCount, reprocessMarkUnread)
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "UID\tDATE\tFROM\tSUBJECT\tSEEN")
			for _, m := range msgs {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%v\n", m.UID, formatTime(m.Date), m.From, m.Subject, m.Seen)
			}
			tw.Flush()
			if err != nil {
				return err
			}
			if reprocessMarkUnread {
				fmt.Fprintf(cmd.OutOrStdout(), "\n%d messages marked unread\n", len(msgs))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&reprocessCount, "count", "n", 5, "number of messages to list")
	cmd.Flags().BoolVar(&reprocessMarkUnread, "mark-unread", false, "mark the messages unread so the monitor processes them again")
	return cmd
}
