package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Stupremee/fhir/internal/config"
	"github.com/Stupremee/fhir/internal/domain/entity"
	"github.com/Stupremee/fhir/internal/platform/db"
	"github.com/Stupremee/fhir/internal/platform/history"
	"github.com/Stupremee/fhir/internal/platform/index"
	"github.com/Stupremee/fhir/internal/platform/schema"
	"github.com/Stupremee/fhir/internal/platform/search"
	"github.com/Stupremee/fhir/migrations"
)

const defaultSchema = "fhir"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "fhir-server",
		Short:        "FHIR entity store with search index and audit history",
		SilenceUsage: true,
	}

	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(validateCmd())
	root.AddCommand(generateIDCmd())
	root.AddCommand(historyCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the FHIR API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			return withPool(cmd.Context(), func(ctx context.Context, pool *pgxpool.Pool, _ *config.Config) error {
				migrator := db.NewMigrator(pool, migrationSource(dir))
				fmt.Fprintf(cmd.OutOrStdout(), "Running migrations on schema: %s\n", target)

				count, err := migrator.Up(ctx, target)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().String("schema", defaultSchema, "Schema that records applied migrations")
	upCmd.Flags().String("dir", "", "Migrations directory (defaults to the embedded migrations)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			return withPool(cmd.Context(), func(ctx context.Context, pool *pgxpool.Pool, _ *config.Config) error {
				statuses, err := db.NewMigrator(pool, migrationSource(dir)).Status(ctx, target)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printStatus(cmd.OutOrStdout(), target, statuses)
				return nil
			})
		},
	}
	statusCmd.Flags().String("schema", defaultSchema, "Schema that records applied migrations")
	statusCmd.Flags().String("dir", "", "Migrations directory (defaults to the embedded migrations)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file|->",
		Short: "Check a JSON document against the bundled FHIR schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resource, _ := cmd.Flags().GetString("resource")

			raw, err := readDocument(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			v, err := schema.Default()
			if err != nil {
				return err
			}

			var doc map[string]any
			valid := json.Unmarshal(raw, &doc) == nil && doc != nil
			if valid {
				if resource == "" {
					err = v.Validate(doc)
				} else {
					err = v.ValidateFor(resource, doc)
				}
				valid = err == nil
			}

			out := cmd.OutOrStdout()
			if !valid {
				fmt.Fprintln(out, "invalid")
				if err != nil {
					fmt.Fprintln(out, err)
				}
				return fmt.Errorf("%s is not a valid document", args[0])
			}
			fmt.Fprintln(out, "valid")
			return nil
		},
	}
	cmd.Flags().String("resource", "", "Resource type the document must have")
	return cmd
}

func generateIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate-id",
		Short: "Print a new time-ordered entity id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := entity.GenerateID()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <resource> <id>",
		Short: "Print the current document and audit trail of an entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[1])
			if err != nil {
				return fmt.Errorf("invalid id %q: %w", args[1], err)
			}

			return withPool(cmd.Context(), func(ctx context.Context, pool *pgxpool.Pool, cfg *config.Config) error {
				svc, err := newEntityService(pool, cfg, zerolog.New(cmd.ErrOrStderr()).Level(cfg.Level()))
				if err != nil {
					return err
				}
				view, err := svc.History(ctx, args[0], id)
				if err != nil {
					return err
				}

				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(view)
			})
		},
	}
}

// newEntityService wires the entity store to PostgreSQL.
func newEntityService(pool *pgxpool.Pool, cfg *config.Config, logger zerolog.Logger) (*entity.Service, error) {
	validator, err := schema.Default()
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	registry := index.DefaultRegistry()
	recorder := history.NewRecorder(history.NewRepoPG(pool), logger)

	svc := entity.NewService(entity.Deps{
		Repo:      entity.WithSchema(entity.NewRepoPG(pool), validator),
		Tx:        db.NewTxManager(pool),
		Hook:      recorder,
		History:   recorder,
		Registry:  registry,
		Searcher:  search.NewTranslator(registry, search.NewRunnerPG(pool)),
		Validator: validator,
		Logger:    logger,
	})
	svc.SetReindexOnUpdate(cfg.ReindexOnUpdate)
	return svc, nil
}

func withPool(ctx context.Context, fn func(ctx context.Context, pool *pgxpool.Pool, cfg *config.Config) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, pool, cfg)
}

func migrationSource(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

// readDocument reads path, or stdin when path is "-".
func readDocument(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func printStatus(w io.Writer, target string, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "Migration status for schema: %s\n", target)
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}
