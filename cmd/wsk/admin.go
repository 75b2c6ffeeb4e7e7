package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	cl "wealthsim/internal/cli"
	"wealthsim/internal/config"
	"wealthsim/internal/game"

	"github.com/spf13/cobra"
)

// adminCtx bundles what every facilitator command needs.
type adminCtx struct {
	client     *cl.Client
	passphrase string
}

func newAdminCmd(apiBase, passphrase *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Facilitator commands (passphrase protected)",
	}
	cmd.PersistentFlags().StringVar(passphrase, "passphrase", *passphrase, "facilitator passphrase (prompted when empty)")

	with := func(run func(ctx context.Context, a adminCtx, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			pass := strings.TrimSpace(*passphrase)
			if pass == "" {
				var err error
				if pass, err = promptSecret("Facilitator passphrase"); err != nil {
					return err
				}
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			return run(ctx, adminCtx{client: newClient(apiBase), passphrase: pass}, args)
		}
	}

	var savePath, loadPath, chartPath string
	var seed int64
	var journalRound int
	var confirm bool

	metrics := &cobra.Command{
		Use:   "metrics",
		Short: "Show every statistic regardless of round",
		RunE: with(func(ctx context.Context, a adminCtx, _ []string) error {
			m, err := a.client.Metrics(ctx, a.passphrase)
			if err != nil {
				return err
			}
			renderMetrics(m)
			return nil
		}),
	}

	table := &cobra.Command{
		Use:   "table",
		Short: "Show the return table",
		RunE: with(func(ctx context.Context, a adminCtx, _ []string) error {
			t, err := a.client.Returns(ctx, a.passphrase)
			if err != nil {
				return err
			}
			renderTable(t)
			if savePath == "" {
				return nil
			}
			state, err := a.client.State(ctx)
			if err != nil {
				return err
			}
			params := game.DefaultParams()
			params.MaxRounds = state.MaxRounds
			params.LeverageRound = state.LeverageRound
			gf := config.GameFile{Params: params, Assets: t.Assets, Returns: t.Rows}
			if err := gf.SaveToFile(savePath); err != nil {
				return err
			}
			printSuccess("Table saved to " + savePath)
			return nil
		}),
	}
	table.Flags().StringVar(&savePath, "save", "", "write the table to a game file")

	setTable := &cobra.Command{
		Use:   "set-table",
		Short: "Replace the return table from a YAML or JSON game file",
		RunE: with(func(ctx context.Context, a adminCtx, _ []string) error {
			if loadPath == "" {
				return fmt.Errorf("--file is required")
			}
			gf, err := config.LoadGameFile(loadPath, game.DefaultParams())
			if err != nil {
				return err
			}
			if len(gf.Returns) == 0 {
				return fmt.Errorf("%s has no returns", loadPath)
			}
			current, err := a.client.Returns(ctx, a.passphrase)
			if err != nil {
				return err
			}
			if len(current.Assets) != len(gf.Assets) {
				return fmt.Errorf("file has %d assets, game has %d", len(gf.Assets), len(current.Assets))
			}
			if !slices.Equal(current.Assets, gf.Assets) {
				if _, err := a.client.Rename(ctx, a.passphrase, gf.Assets); err != nil {
					return err
				}
			}
			t, err := a.client.SetReturns(ctx, a.passphrase, gf.Returns)
			if err != nil {
				return err
			}
			renderTable(t)
			printSuccess("Return table replaced.")
			return nil
		}),
	}
	setTable.Flags().StringVarP(&loadPath, "file", "f", "", "game file to read")

	randomize := &cobra.Command{
		Use:   "randomize",
		Short: "Draw a fresh return table",
		RunE: with(func(ctx context.Context, a adminCtx, _ []string) error {
			t, err := a.client.Randomize(ctx, a.passphrase, seed)
			if err != nil {
				return err
			}
			renderTable(t)
			return nil
		}),
	}
	randomize.Flags().Int64Var(&seed, "seed", 0, "seed for a reproducible draw (0 picks one)")

	rename := &cobra.Command{
		Use:   "rename NAME...",
		Short: "Rename all assets, in order",
		Args:  cobra.MinimumNArgs(1),
		RunE: with(func(ctx context.Context, a adminCtx, args []string) error {
			assets, err := a.client.Rename(ctx, a.passphrase, args)
			if err != nil {
				return err
			}
			printSuccess("Assets: " + strings.Join(assets, ", "))
			return nil
		}),
	}

	addAsset := &cobra.Command{
		Use:   "add-asset NAME",
		Short: "Add an asset with zero returns",
		Args:  cobra.ExactArgs(1),
		RunE: with(func(ctx context.Context, a adminCtx, args []string) error {
			assets, err := a.client.AddAsset(ctx, a.passphrase, args[0])
			if err != nil {
				return err
			}
			printSuccess("Assets: " + strings.Join(assets, ", "))
			return nil
		}),
	}

	removeAsset := &cobra.Command{
		Use:   "remove-asset NAME",
		Short: "Remove an asset; holdings in it return to cash",
		Args:  cobra.ExactArgs(1),
		RunE: with(func(ctx context.Context, a adminCtx, args []string) error {
			assets, err := a.client.RemoveAsset(ctx, a.passphrase, args[0])
			if err != nil {
				return err
			}
			printSuccess("Assets: " + strings.Join(assets, ", "))
			return nil
		}),
	}

	settle := &cobra.Command{
		Use:   "settle",
		Short: "Settle the current round for every player",
		RunE: with(func(ctx context.Context, a adminCtx, _ []string) error {
			out, err := a.client.Settle(ctx, a.passphrase)
			if err != nil {
				return err
			}
			renderSettlement(out)
			return nil
		}),
	}

	advance := &cobra.Command{
		Use:   "advance",
		Short: "Open the next round",
		RunE: with(func(ctx context.Context, a adminCtx, _ []string) error {
			out, err := a.client.Advance(ctx, a.passphrase)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Round %d of %d is open. Students now see: %s", out.Round.Round, out.Round.MaxRounds, statList(out.Visible.Stats)))
			return nil
		}),
	}

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Clear all players and start again at round 1",
		RunE: with(func(ctx context.Context, a adminCtx, _ []string) error {
			if !confirm {
				answer, err := promptRequired("Type RESET to clear every player")
				if err != nil {
					return err
				}
				if answer != "RESET" {
					printInfo("Reset cancelled.")
					return nil
				}
			}
			round, err := a.client.Reset(ctx, a.passphrase)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Game reset. Round %d is open.", round.Round))
			return nil
		}),
	}
	reset.Flags().BoolVar(&confirm, "yes", false, "skip the confirmation prompt")

	journal := &cobra.Command{
		Use:   "journal",
		Short: "List recorded settlements",
		RunE: with(func(ctx context.Context, a adminCtx, _ []string) error {
			entries, err := a.client.Journal(ctx, a.passphrase, journalRound)
			if err != nil {
				return err
			}
			renderJournal(entries)
			return nil
		}),
	}
	journal.Flags().IntVar(&journalRound, "round", 0, "only this round (0 lists all)")

	chart := &cobra.Command{
		Use:   "chart",
		Short: "Save a PNG bar chart of asset CAGRs",
		RunE: with(func(ctx context.Context, a adminCtx, _ []string) error {
			img, err := a.client.CAGRChart(ctx, a.passphrase)
			if err != nil {
				return err
			}
			if err := os.WriteFile(chartPath, img, 0o644); err != nil {
				return err
			}
			printSuccess("Chart written to " + chartPath)
			return nil
		}),
	}
	chart.Flags().StringVarP(&chartPath, "out", "o", "cagr.png", "output file")

	cmd.AddCommand(metrics, table, setTable, randomize, rename, addAsset, removeAsset, settle, advance, reset, journal, chart)
	return cmd
}
