package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Vovarama1992/otk-assistant/internal/ai"
	"github.com/Vovarama1992/otk-assistant/internal/database"
	"github.com/Vovarama1992/otk-assistant/internal/extraction"
	"github.com/Vovarama1992/otk-assistant/internal/inspection"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the inspection schema in DATABASE_URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadBase()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx := cmd.Context()
			db, dialect, err := database.Open(ctx, cfg.Database.URL)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := inspection.Migrate(ctx, db); err != nil {
				return err
			}
			log.Info("app", "schema ready", map[string]any{"dialect": string(dialect)})
			return nil
		},
	}
}

func newExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract <text>",
		Short: "Run extraction on a text report once and print the candidate",
		Long: `Sends the text through the configured LLM exactly as a chat message
would be processed and prints the resulting candidate as JSON.

Examples:
  otk-assistant extract "Заказы 101, 102 прошли проверку"
  otk-assistant extract "10432 в доработку, царапина на корпусе"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadBase()
			if err != nil {
				return err
			}
			defer log.Sync()

			gw, err := ai.New(cfg, log)
			if err != nil {
				return err
			}
			_, engine, err := pipeline(cfg, gw, log)
			if err != nil {
				return err
			}

			cand, err := engine.Extract(cmd.Context(), extraction.Input{
				UserID: "cli",
				Text:   strings.Join(args, " "),
				Source: inspection.SourceText,
			})
			if err != nil {
				return fmt.Errorf("extraction failed (%s): %w", inspection.KindOf(err), err)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(cand)
		},
	}
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Probe the configured LLM, vision and speech providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadBase()
			if err != nil {
				return err
			}
			defer log.Sync()

			gw, err := ai.New(cfg, log)
			if err != nil {
				return err
			}
			return printCheck(cmd.Context(), gw)
		},
	}
}

func printCheck(ctx context.Context, gw *ai.Gateway) error {
	res := gw.Check(ctx)

	kinds := make([]string, 0, len(res))
	for k := range res {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)

	failed := 0
	for _, k := range kinds {
		kind := ai.Kind(k)
		if err := res[kind]; err != nil {
			failed++
			fmt.Printf("%-7s %-13s FAIL %v\n", k, gw.Backend(kind), err)
			continue
		}
		fmt.Printf("%-7s %-13s ok\n", k, gw.Backend(kind))
	}

	if failed > 0 {
		return fmt.Errorf("%d provider(s) unavailable", failed)
	}
	return nil
}
