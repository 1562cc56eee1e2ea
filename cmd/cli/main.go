package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/plew99/cytokines-metaanalysis/app"
	ma "github.com/plew99/cytokines-metaanalysis/domain/metaanalysis"
	"github.com/plew99/cytokines-metaanalysis/internal"
	"github.com/plew99/cytokines-metaanalysis/internal/config"
	"github.com/plew99/cytokines-metaanalysis/internal/container"
	"github.com/plew99/cytokines-metaanalysis/internal/database"
	"github.com/plew99/cytokines-metaanalysis/internal/effects"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "meta-cli",
		Short:         "Effect derivation, workbook import and audit for the cytokine meta-analysis",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newImportCmd("import-xlsx [path]", "Import a multi-sheet or flat .xlsx workbook", false),
		newImportCmd("import-csv [folder]", "Import a folder of <Sheet>.csv files", true),
		newDeriveCmd(),
		newAuditCmd(),
		newMigrateCmd(),
	)
	return rootCmd
}

// openContainer loads configuration, migrates the database and wires services
func openContainer(ctx context.Context) (*container.Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := internal.NewLogger(internal.ParseLogLevel(cfg.LogLevel))

	db, err := database.OpenAndMigrate(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c, err := container.New(ctx, cfg, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := c.InitWithDatabase(db); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newImportCmd(use, short string, folder bool) *cobra.Command {
	var opts app.ImportOptions

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long: short + `.

Rows that fail validation are reported and skipped; valid rows are saved in one
transaction. With --strict nothing is saved when any row fails. Diagnostics are
written to REPORTS_DIR (or REPORTS_S3_BUCKET) as import_<timestamp>.csv.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := openContainer(ctx)
			if err != nil {
				return err
			}
			defer c.Shutdown(context.Background())

			var result *app.ImportResult
			if folder {
				result, err = c.Imports.ImportCSVFolder(ctx, args[0], opts)
			} else {
				result, err = c.Imports.ImportFile(ctx, args[0], opts)
			}
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if opts.Strict && len(result.Diagnostics) > 0 {
				return fmt.Errorf("strict import aborted: %d validation errors", len(result.Diagnostics))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Validate and derive without saving")
	cmd.Flags().BoolVar(&opts.Replace, "replace", false, "Clear all stored study data first (all raw records for flat workbooks)")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "Save nothing when any row fails")
	return cmd
}

// deriveOutput is what the derive command prints
type deriveOutput struct {
	Effect  *ma.Effect           `json:"effect"`
	Inputs  ma.RawInput          `json:"inputs"`
	Display effects.Presentation `json:"display"`
}

func newDeriveCmd() *cobra.Command {
	var effectType string
	var level, correction float64
	var hedges bool
	values := make(map[ma.Field]*float64, len(ma.AllFields))

	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Derive one effect from summary statistics and print it as JSON",
		Long: `Derive one effect from summary statistics without touching the database.

Example: meta-cli derive --type MD --mean-treat 10 --sd-treat 2 --n-treat 30 --mean-ctrl 8 --sd-ctrl 2.5 --n-ctrl 28`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := ma.ParseEffectType(effectType)
			if err != nil {
				return err
			}
			deriver, err := effects.NewDeriver(effects.Options{
				Level: level,
				FormulaOptions: effects.FormulaOptions{
					ContinuityCorrection:  correction,
					SmallSampleCorrection: hedges,
				},
			})
			if err != nil {
				return err
			}

			sc, raw := standaloneContext()
			for _, field := range ma.AllFields {
				if cmd.Flags().Changed(flagName(field)) {
					raw.Set(field, values[field])
				}
			}

			effect, err := deriver.Derive(raw, t, sc)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), deriveOutput{
				Effect:  effect,
				Inputs:  effect.Raw(),
				Display: effects.Present(*effect, 3),
			})
		},
	}

	cmd.Flags().StringVar(&effectType, "type", "", "Effect type: SMD, MD, logOR or RR")
	cmd.Flags().Float64Var(&level, "level", effects.DefaultLevel, "Confidence level")
	cmd.Flags().Float64Var(&correction, "zero-cell-correction", 0, "Continuity correction for zero cells (0 rejects them)")
	cmd.Flags().BoolVar(&hedges, "hedges", false, "Apply Hedges' small-sample correction to SMD")
	for _, field := range ma.AllFields {
		values[field] = cmd.Flags().Float64(flagName(field), 0, string(field))
	}
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func flagName(field ma.Field) string {
	return strings.ReplaceAll(string(field), "_", "-")
}

// standaloneContext is a one-study arena with a treatment arm, a control
// arm and one outcome, for derivations outside the database
func standaloneContext() (ma.StudyContext, ma.RawInput) {
	sc := ma.NewStudyContext(
		ma.Study{ID: "cli", Title: "command line"},
		[]ma.Arm{{ID: "treat", StudyID: "cli", Label: "treatment"}, {ID: "ctrl", StudyID: "cli", Label: "control"}},
		[]ma.Outcome{{ID: "outcome", StudyID: "cli", Name: "outcome"}},
		nil,
	)
	raw := ma.RawInput{StudyID: "cli", OutcomeID: "outcome", ArmTreatID: "treat", ArmCtrlID: "ctrl"}
	return sc, raw
}

func newAuditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Re-validate every stored effect against its study",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := openContainer(ctx)
			if err != nil {
				return err
			}
			defer c.Shutdown(context.Background())

			report, err := c.Audit.Run(ctx)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if len(report.Violations) > 0 {
				return fmt.Errorf("audit found %d violations", len(report.Violations))
			}
			return nil
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := database.OpenAndMigrate(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "Migrations applied to %s database\n", cfg.DatabaseDriver)
			return nil
		},
	}
}
