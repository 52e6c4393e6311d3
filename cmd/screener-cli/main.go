// Command screener-cli is a cobra-based debug client for the screener
// pipeline: run a query end to end, or explain what SQL it compiles to
// without executing it. The cobra root/subcommand layout is grounded in
// the teacher pack's penny-vault-pvbt/cmd package (rootCmd with
// serveCmd/etc. registered via AddCommand in each subcommand's init).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"screenforge/internal/catalog"
	"screenforge/internal/compiler"
	"screenforge/internal/config"
	"screenforge/internal/datastore"
	"screenforge/internal/screenql"
	"screenforge/internal/translator"
	"screenforge/internal/validator"
)

var (
	flagQuery string
	flagDSL   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "screener-cli",
	Short: "Debug client for the natural-language-to-SQL screener pipeline",
}

func init() {
	runCmd.Flags().StringVar(&flagQuery, "query", "", "free-form English screen")
	runCmd.Flags().StringVar(&flagDSL, "dsl", "", "path to a DSL JSON file, alternative to --query")
	explainCmd.Flags().StringVar(&flagQuery, "query", "", "free-form English screen")
	explainCmd.Flags().StringVar(&flagDSL, "dsl", "", "path to a DSL JSON file, alternative to --query")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(explainCmd)
	rootCmd.AddCommand(alertCmd)
}

// buildRule turns --query or --dsl into a *screenql.Rule and reports any
// translation/parse error, but does not validate or compile it.
func buildRule(ctx context.Context, cat *catalog.Catalog) (*screenql.Rule, error) {
	switch {
	case flagDSL != "":
		data, err := os.ReadFile(flagDSL)
		if err != nil {
			return nil, fmt.Errorf("read dsl file: %w", err)
		}
		return screenql.ParseRule(data)
	case flagQuery != "":
		return translator.New(cat).Translate(ctx, flagQuery)
	default:
		return nil, fmt.Errorf("one of --query or --dsl is required")
	}
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Translate, validate, compile, and execute a screen",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cat, err := catalog.Default()
		if err != nil {
			return err
		}

		rule, err := buildRule(ctx, cat)
		if err != nil {
			return fmt.Errorf("UNPARSEABLE: %w", err)
		}

		v := config.Load()
		compilerCfg := config.CompilerFrom(v)
		val := validator.New(cat, validator.WithMaxNestingDepth(compilerCfg.MaxNestingDepth))
		result := val.Validate(rule)
		if !result.OK() {
			for _, e := range result.Errors {
				fmt.Fprintln(os.Stderr, "VALIDATION:", e.Error())
			}
			return fmt.Errorf("rule failed validation")
		}

		comp := compiler.New(cat, compiler.WithDefaultLimit(compilerCfg.DefaultLimit))
		compiled, err := comp.Compile(rule)
		if err != nil {
			return fmt.Errorf("VALIDATION: %w", err)
		}

		ds, err := datastore.New(datastore.Config{
			Type:             datastore.Type(v.GetString(config.KeyDataStoreType)),
			ConnectionString: v.GetString(config.KeyDataStoreConnString),
			MockDataPath:     v.GetString(config.KeyDataStoreMockPath),
		})
		if err != nil {
			return fmt.Errorf("EXECUTION: %w", err)
		}
		defer ds.Close()

		rows, err := ds.RunScreen(ctx, compiled.SQL, compiled.Args)
		if err != nil {
			return fmt.Errorf("EXECUTION: %w", err)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"count": len(rows), "results": rows})
	},
}

var explainCmd = &cobra.Command{
	Use:   "explain",
	Short: "Show the compiled SQL and arguments for a screen without executing it",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cat, err := catalog.Default()
		if err != nil {
			return err
		}

		rule, err := buildRule(ctx, cat)
		if err != nil {
			return fmt.Errorf("UNPARSEABLE: %w", err)
		}

		v := config.Load()
		compilerCfg := config.CompilerFrom(v)
		val := validator.New(cat, validator.WithMaxNestingDepth(compilerCfg.MaxNestingDepth))
		result := val.Validate(rule)
		for _, w := range result.Warnings {
			fmt.Fprintln(os.Stderr, "warning:", w.Error())
		}
		if !result.OK() {
			for _, e := range result.Errors {
				fmt.Fprintln(os.Stderr, "VALIDATION:", e.Error())
			}
			return fmt.Errorf("rule failed validation")
		}

		comp := compiler.New(cat, compiler.WithDefaultLimit(compilerCfg.DefaultLimit))
		compiled, err := comp.Compile(rule)
		if err != nil {
			return fmt.Errorf("VALIDATION: %w", err)
		}

		fmt.Println(compiled.SQL)
		fmt.Println()
		fmt.Println("args:", compiled.Args)
		return nil
	},
}

var alertCmd = &cobra.Command{
	Use:   "alert",
	Short: "Inspect alert subscriptions against the configured data store",
}

func init() {
	alertCmd.AddCommand(alertListCmd)
}

var alertListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active alert subscriptions outside the rate-limit window, as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		v := config.Load()
		ds, err := datastore.New(datastore.Config{
			Type:             datastore.Type(v.GetString(config.KeyDataStoreType)),
			ConnectionString: v.GetString(config.KeyDataStoreConnString),
			MockDataPath:     v.GetString(config.KeyDataStoreMockPath),
		})
		if err != nil {
			return err
		}
		defer ds.Close()

		schedCfg := config.SchedulerFrom(v)
		alerts, err := ds.ActiveAlerts(ctx, schedCfg.RateLimitWindow)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(alerts)
	},
}
