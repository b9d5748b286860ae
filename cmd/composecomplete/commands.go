package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dshills/composecomplete/internal/config"
	"github.com/dshills/composecomplete/internal/ingest"
	"github.com/dshills/composecomplete/internal/mcp"
	"github.com/dshills/composecomplete/internal/storage"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "composecomplete",
		Short:        "@mention and #hashtag completion over a local candidate cache",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("db", "", "database path (overrides "+config.EnvDBPath+")")

	root.AddCommand(
		newServeCmd(),
		newSeedCmd(),
		newPrefCmd(),
		newClearCmd(),
		newStatusCmd(),
		newVersionCmd(),
	)
	return root
}

// loadConfig reads the environment and applies the --db flag
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, err
	}
	if db, _ := cmd.Flags().GetString("db"); db != "" {
		cfg.DBPath = db
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (*storage.SQLiteStorage, error) {
	path, err := cfg.ResolveDBPath()
	if err != nil {
		return nil, err
	}
	return storage.NewSQLiteStorage(path)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			log.Printf("composecomplete v%s starting...", version)
			log.Printf("Build Mode: %s, Driver: %s", storage.BuildMode, storage.DriverName)

			server, err := mcp.NewServer(cfg)
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigChan)

			errChan := make(chan error, 1)
			go func() {
				log.Println("MCP server ready, listening on stdio...")
				errChan <- server.Serve(ctx)
			}()

			select {
			case sig := <-sigChan:
				log.Printf("Received signal %v, shutting down gracefully...", sig)
				cancel()
				_ = server.Close()
			case err := <-errChan:
				if err != nil {
					return fmt.Errorf("server error: %w", err)
				}
			}

			log.Println("Server stopped")
			return nil
		},
	}
}

func newSeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Cache users and hashtags from a JSON array of statuses",
		Long: `Read a JSON array of statuses and cache their authors, mentioned
users and hashtags. Use --file - to read from stdin.

Each status looks like:
  {"id": 1, "text": "hi @peach #golang",
   "user": {"id": 7, "name": "Gopher", "screen_name": "gopher"},
   "mentions": [{"id": 8, "name": "Peach", "screen_name": "peach"}]}`,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			if file == "" {
				return fmt.Errorf("--file is required")
			}

			statuses, err := readStatuses(cmd, file)
			if err != nil {
				return err
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			stats, err := ingest.New(store).IngestStatuses(cmd.Context(), statuses, &ingest.Config{Workers: cfg.IngestWorkers})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Processed %d statuses (%d failed)\n", stats.StatusesProcessed, stats.StatusesFailed)
			fmt.Fprintf(out, "Cached %d users, %d new hashtags in %s\n", stats.UsersCached, stats.HashtagsCached, stats.Duration)
			for _, msg := range stats.ErrorMessages {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", msg)
			}
			return nil
		},
	}
	cmd.Flags().StringP("file", "f", "", "JSON file with statuses, or - for stdin")
	return cmd
}

func readStatuses(cmd *cobra.Command, file string) ([]ingest.Status, error) {
	var r io.Reader
	if file == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(file)
		if err != nil {
			return nil, fmt.Errorf("failed to open statuses: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	var statuses []ingest.Status
	if err := json.NewDecoder(r).Decode(&statuses); err != nil {
		return nil, fmt.Errorf("failed to decode statuses: %w", err)
	}
	return statuses, nil
}

func newPrefCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pref <key> [value]",
		Short: "Show or set a stored preference",
		Long: `Show or set a preference stored in the cache database.

Known keys:
  display_profile_image  show profile images in suggestions (true/false)`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			key := args[0]
			if len(args) == 2 {
				if key == config.PreferenceDisplayProfileImage {
					if _, err := strconv.ParseBool(args[1]); err != nil {
						return fmt.Errorf("%s expects true or false, got %q", key, args[1])
					}
				}
				if err := store.SetPreference(cmd.Context(), key, args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, args[1])
				return nil
			}

			value, err := store.GetPreference(cmd.Context(), key)
			if errors.Is(err, storage.ErrNotFound) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is not set\n", key)
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, value)
			return nil
		},
	}
}

func newClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Forget cached users and hashtags",
		Long: `Remove entries from the candidate cache. Without flags every cached
user and hashtag is removed; preferences are kept.`,
		Example: `  composecomplete clear
  composecomplete clear --user 42 --hashtag golang`,
		RunE: func(cmd *cobra.Command, args []string) error {
			users, _ := cmd.Flags().GetInt64Slice("user")
			hashtags, _ := cmd.Flags().GetStringSlice("hashtag")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			if len(users) == 0 && len(hashtags) == 0 {
				if err := store.ClearCache(ctx); err != nil {
					return err
				}
				fmt.Fprintln(out, "Cleared all cached users and hashtags")
				return nil
			}

			tx, err := store.BeginTx(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = tx.Rollback() }()

			for _, id := range users {
				if err := tx.DeleteUser(ctx, id); err != nil {
					return fmt.Errorf("failed to remove user %d: %w", id, err)
				}
			}
			for _, tag := range hashtags {
				if err := tx.DeleteHashtag(ctx, ingest.NormalizeHashtag(tag)); err != nil {
					return fmt.Errorf("failed to remove hashtag %q: %w", tag, err)
				}
			}
			if err := tx.Commit(); err != nil {
				return err
			}
			fmt.Fprintf(out, "Removed %d users, %d hashtags\n", len(users), len(hashtags))
			return nil
		},
	}
	cmd.Flags().Int64Slice("user", nil, "user id to forget (repeatable)")
	cmd.Flags().StringSlice("hashtag", nil, "hashtag to forget, with or without '#' (repeatable)")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show candidate cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			status, err := store.GetStatus(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Users:    %s\n", humanize.Comma(int64(status.UsersCount)))
			fmt.Fprintf(out, "Hashtags: %s (%s distinct)\n",
				humanize.Comma(int64(status.HashtagsCount)), humanize.Comma(int64(status.DistinctHashtags)))
			fmt.Fprintf(out, "Size:     %s\n", humanize.IBytes(uint64(status.SizeBytes)))
			fmt.Fprintf(out, "Schema:   %s\n", status.SchemaVersion)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "composecomplete\n")
			fmt.Fprintf(out, "Version: %s\n", version)
			fmt.Fprintf(out, "Build Time: %s\n", buildTime)
			fmt.Fprintf(out, "Build Mode: %s\n", storage.BuildMode)
			fmt.Fprintf(out, "SQLite Driver: %s\n", storage.DriverName)
			fmt.Fprintf(out, "Schema Version: %s\n", storage.CurrentSchemaVersion)
		},
	}
}
