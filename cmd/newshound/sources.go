package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/IshaanNene/NewsHound/internal/config"
	"github.com/IshaanNene/NewsHound/internal/lock"
	"github.com/IshaanNene/NewsHound/internal/storage"
)

var (
	importUpdate bool
	forceClean   bool
)

func openSources(cfg *config.Config, logger *slog.Logger) (*storage.SQLiteSourceStore, error) {
	store, err := storage.NewSQLiteSourceStore(cfg.Storage.SourcesDSN, cfg.Engine.DefaultInterval, logger)
	if err != nil {
		return nil, fmt.Errorf("open source store: %w", err)
	}
	return store, nil
}

// statusCmd creates the "status" subcommand.
func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List sources with their lock holders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := setupLogger(cfg)
			store, err := openSources(cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			locks, err := lock.NewManager(cfg.Engine.LocksDir, cfg.Engine.MasterLockMaxAge, logger)
			if err != nil {
				return err
			}

			srcs, err := store.List(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tKIND\tACTIVE\tINTERVAL\tLAST RUN\tRUNNING (PID)")
			for _, src := range srcs {
				holder := "-"
				if pid, ok := locks.Holder(src.Key()); ok {
					holder = fmt.Sprintf("yes (%d)", pid)
				}
				fmt.Fprintf(tw, "%s\t%s\t%v\t%s\t%s\t%s\n",
					src.Name, src.Kind, src.Active, src.Interval, formatTime(src.LastRun), holder)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			infos, err := locks.List()
			if err != nil {
				return err
			}
			for _, info := range infos {
				if info.Master {
					fmt.Fprintf(cmd.OutOrStdout(), "\nMaster lock: pid %d, age %s\n", info.PID, info.Age.Round(time.Second))
				}
			}
			return nil
		},
	}
}

// sourcesCmd groups the source administration subcommands.
func sourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Manage configured sources",
	}

	importCmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import sources from a YAML file",
		Long: `Import sources from a YAML file with a top-level 'sources' list. Existing
sources are left untouched unless --update is given. Credentials written as
${ENV_VAR} are expanded at import time.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSources(cmd, func(ctx context.Context, cfg *config.Config, store *storage.SQLiteSourceStore) error {
				srcs, err := config.LoadSourcesFile(args[0], cfg.Engine.DefaultInterval)
				if err != nil {
					return err
				}
				var created, updated, skipped int
				for _, src := range srcs {
					isNew, err := store.Upsert(ctx, src, importUpdate)
					switch {
					case err != nil:
						return fmt.Errorf("import %q: %w", src.Name, err)
					case isNew:
						created++
					case importUpdate:
						updated++
					default:
						skipped++
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✅ Imported %d sources: %d created, %d updated, %d unchanged\n",
					len(srcs), created, updated, skipped)
				return nil
			})
		},
	}
	importCmd.Flags().BoolVar(&importUpdate, "update", false, "overwrite sources that already exist")

	enableCmd := &cobra.Command{
		Use:   "enable NAME",
		Short: "Activate a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setActive(cmd, args[0], true)
		},
	}

	disableCmd := &cobra.Command{
		Use:   "disable NAME",
		Short: "Deactivate a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setActive(cmd, args[0], false)
		},
	}

	showCmd := &cobra.Command{
		Use:   "show [NAME]",
		Short: "Show source configuration with secrets masked",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSources(cmd, func(ctx context.Context, _ *config.Config, store *storage.SQLiteSourceStore) error {
				var srcs []config.SourceConfig
				if len(args) == 1 {
					src, err := store.Get(ctx, args[0])
					if err != nil {
						return err
					}
					srcs = append(srcs, *src)
				} else {
					all, err := store.List(ctx)
					if err != nil {
						return err
					}
					srcs = all
				}

				masked := make([]config.SourceConfig, 0, len(srcs))
				for i := range srcs {
					masked = append(masked, srcs[i].Masked())
				}
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				defer enc.Close()
				return enc.Encode(map[string]any{"sources": masked})
			})
		},
	}

	cmd.AddCommand(importCmd, enableCmd, disableCmd, showCmd)
	return cmd
}

func withSources(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config, store *storage.SQLiteSourceStore) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openSources(cfg, setupLogger(cfg))
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(cmd.Context(), cfg, store)
}

func setActive(cmd *cobra.Command, name string, active bool) error {
	return withSources(cmd, func(ctx context.Context, _ *config.Config, store *storage.SQLiteSourceStore) error {
		if err := store.SetActive(ctx, name, active); err != nil {
			if errors.Is(err, storage.ErrSourceNotFound) {
				return fmt.Errorf("no source named %q", name)
			}
			return err
		}
		state := "disabled"
		if active {
			state = "enabled"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Source %q %s. A running engine applies it on the next watchdog tick.\n", name, state)
		return nil
	})
}

// cleanLocksCmd creates the "clean-locks" subcommand.
func cleanLocksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean-locks",
		Short: "Remove all monitor lock files",
		Long: `Remove every lock file in the locks directory, including those of running
processes. Use it after a crash left locks behind; the engine itself only
sweeps locks whose owner is gone.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			locks, err := lock.NewManager(cfg.Engine.LocksDir, cfg.Engine.MasterLockMaxAge, setupLogger(cfg))
			if err != nil {
				return err
			}

			infos, err := locks.List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(infos) == 0 {
				fmt.Fprintln(out, "No lock files to remove")
				return nil
			}

			fmt.Fprintf(out, "Found %d lock files:\n", len(infos))
			for _, info := range infos {
				owner := "dead"
				if info.Alive {
					owner = "alive"
				}
				fmt.Fprintf(out, "  - %s (pid %d, %s, age %s)\n", info.Name, info.PID, owner, info.Age.Round(time.Second))
			}

			if !forceClean {
				fmt.Fprint(out, "\nRemove all locks? (yes/no): ")
				answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if strings.ToLower(strings.TrimSpace(answer)) != "yes" {
					fmt.Fprintln(out, "Aborted")
					return nil
				}
			}

			removed, err := locks.CleanAll()
			fmt.Fprintf(out, "Removed %d lock files\n", removed)
			return err
		},
	}
	cmd.Flags().BoolVar(&forceClean, "force", false, "remove without asking for confirmation")
	return cmd
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
