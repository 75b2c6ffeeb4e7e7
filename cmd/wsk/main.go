package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	cl "wealthsim/internal/cli"
	"wealthsim/internal/config"
	"wealthsim/internal/syncq"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL
	passphrase := cfg.Passphrase

	root := &cobra.Command{
		Use:          "wsk",
		Short:        "Wealth simulation classroom client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "API base URL")

	root.AddCommand(
		newRegisterCmd(&apiBase),
		newLoginCmd(&apiBase),
		newLogoutCmd(&apiBase),
		newMeCmd(&apiBase),
		newStateCmd(&apiBase),
		newMarketCmd(&apiBase),
		newBuyCmd(&apiBase),
		newBorrowCmd(&apiBase),
		newLockCmd(&apiBase, true),
		newLockCmd(&apiBase, false),
		newLeaderboardCmd(&apiBase),
		newBoardCmd(&apiBase),
		newChartCmd(&apiBase),
		newSyncCmd(&apiBase),
		newAdminCmd(&apiBase, &passphrase),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func requireSession() (cl.Session, error) {
	f, err := cl.DefaultSessionFile()
	if err != nil {
		return cl.Session{}, err
	}
	sess, err := f.Load()
	if err != nil {
		return cl.Session{}, fmt.Errorf("login required: %w", err)
	}
	return sess, nil
}

// rememberRound keeps the open round in the session so decisions queued
// offline can be tagged with it.
func rememberRound(sess cl.Session, round int) {
	if round == 0 || round == sess.Round {
		return
	}
	f, err := cl.DefaultSessionFile()
	if err != nil {
		return
	}
	sess.Round = round
	_ = f.Save(sess)
}

func newRegisterCmd(apiBase *string) *cobra.Command {
	return newSignInCmd(apiBase, "register", "Create a player for this game", true)
}

func newLoginCmd(apiBase *string) *cobra.Command {
	return newSignInCmd(apiBase, "login", "Login, registering the name on first use", false)
}

func newSignInCmd(apiBase *string, use, short string, strict bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [name]",
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var name string
			var err error
			if len(args) > 0 {
				name = strings.TrimSpace(args[0])
			} else if name, err = promptRequired("Name"); err != nil {
				return err
			}
			password, err := promptSecret("Password")
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			signIn := client.Login
			if strict {
				signIn = client.Register
			}
			out, err := signIn(ctx, name, password)
			if err != nil {
				return err
			}
			f, err := cl.DefaultSessionFile()
			if err != nil {
				return err
			}
			if err := f.Save(cl.Session{
				AccessToken: out.Session.AccessToken,
				Player:      out.Player.Name,
				APIBase:     client.BaseURL,
				ExpiresAt:   out.Session.ExpiresAt,
				Round:       out.Round,
			}); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Signed in as %s.", out.Player.Name))
			renderPlayer(out.Player)
			return nil
		},
	}
}

func newLogoutCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear local session",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := cl.DefaultSessionFile()
			if err != nil {
				return err
			}
			if sess, err := f.Load(); err == nil {
				ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
				defer cancel()
				if err := newClient(apiBase).Logout(ctx, sess.AccessToken); err != nil {
					printWarn("Server logout failed: " + err.Error())
				}
			}
			if err := f.Clear(); err != nil {
				return err
			}
			printSuccess("Logged out.")
			return nil
		},
	}
}

func newMeCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show your portfolio and settled rounds",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			me, err := newClient(apiBase).Me(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			renderPlayer(me)
			printQueued()
			return nil
		},
	}
}

func newStateCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "round",
		Short: "Show the current round",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			state, err := newClient(apiBase).State(ctx)
			if err != nil {
				return err
			}
			if sess, err := requireSession(); err == nil {
				rememberRound(sess, state.Round)
			}
			renderState(state)
			return nil
		},
	}
}

func newMarketCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "market",
		Short: "Show the statistics disclosed this round",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			view, err := newClient(apiBase).Market(ctx)
			if err != nil {
				return err
			}
			renderMarket(view)
			return nil
		},
	}
}

func newBuyCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "buy [asset] [amount]",
		Short: "Move cash into an asset",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			asset, amount, err := assetAndAmount(args)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			idem := uuid.NewString()
			out, err := newClient(apiBase).Buy(ctx, sess.AccessToken, asset, amount, idem)
			if err != nil {
				return queueOnNetworkError(err, syncq.Command{
					Method:         http.MethodPost,
					Path:           "/v1/me/buy",
					Body:           cl.BuyBody(asset, amount),
					IdempotencyKey: idem,
					Round:          sess.Round,
				})
			}
			rememberRound(sess, out.Round)
			renderDecision(out, fmt.Sprintf("Buy %s of %s", formatMoney(amount), asset))
			return nil
		},
	}
}

func newBorrowCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "borrow [amount]",
		Short: "Take a loan (from the leverage round on)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			var amount float64
			if len(args) > 0 {
				amount, err = parseAmount(args[0])
			} else {
				amount, err = promptFloat("Amount", 0)
			}
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			idem := uuid.NewString()
			out, err := newClient(apiBase).Borrow(ctx, sess.AccessToken, amount, idem)
			if err != nil {
				return queueOnNetworkError(err, syncq.Command{
					Method:         http.MethodPost,
					Path:           "/v1/me/borrow",
					Body:           cl.BorrowBody(amount),
					IdempotencyKey: idem,
					Round:          sess.Round,
				})
			}
			rememberRound(sess, out.Round)
			renderDecision(out, fmt.Sprintf("Borrow %s", formatMoney(amount)))
			return nil
		},
	}
}

func newLockCmd(apiBase *string, lock bool) *cobra.Command {
	use, short, path := "lock", "Submit your decision for this round", "/v1/me/lock"
	if !lock {
		use, short, path = "unlock", "Reopen your decision before settlement", "/v1/me/unlock"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			idem := uuid.NewString()
			var out cl.DecisionResponse
			if lock {
				out, err = client.Lock(ctx, sess.AccessToken, idem)
			} else {
				out, err = client.Unlock(ctx, sess.AccessToken, idem)
			}
			if err != nil {
				return queueOnNetworkError(err, syncq.Command{
					Method:         http.MethodPost,
					Path:           path,
					IdempotencyKey: idem,
					Round:          sess.Round,
				})
			}
			rememberRound(sess, out.Round)
			renderDecision(out, strings.ToUpper(use[:1])+use[1:])
			return nil
		},
	}
}

func newLeaderboardCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "leaderboard",
		Short: "Show ranking by net worth",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			board, err := newClient(apiBase).Leaderboard(ctx)
			if err != nil {
				return err
			}
			renderLeaderboard(board)
			return nil
		},
	}
}

func newChartCmd(apiBase *string) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "chart",
		Short: "Save a PNG of your wealth path in the last settled round",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			img, err := newClient(apiBase).MyChart(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			if err := os.WriteFile(outPath, img, 0o644); err != nil {
				return err
			}
			printSuccess("Chart written to " + outPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "wealth.png", "output file")
	return cmd
}

func newSyncCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay decisions queued while offline",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			q, err := syncq.Default()
			if err != nil {
				return err
			}
			queue, err := q.Load()
			if err != nil {
				return err
			}
			if len(queue) == 0 {
				printInfo("Sync queue is empty.")
				return nil
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			results, err := newClient(apiBase).SyncReplay(ctx, sess.AccessToken, queue)
			if err != nil {
				return err
			}
			// The server answered for every returned key, so none of them
			// should be replayed again.
			done := make(map[string]bool, len(results))
			replayed := 0
			for _, r := range results {
				done[r.IdempotencyKey] = true
				switch {
				case r.OK && !r.Duplicate:
					replayed++
				case !r.OK:
					printError(fmt.Sprintf("%s rejected: %s", r.Path, r.Error))
				}
			}
			remaining, err := q.Drop(done)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Sync complete: replayed=%d remaining=%d", replayed, remaining))
			return nil
		},
	}
}

// queueOnNetworkError keeps a decision for `wsk sync` when the server could
// not be reached. API errors are returned as is.
func queueOnNetworkError(err error, cmd syncq.Command) error {
	if err == nil {
		return nil
	}
	if isAPIStructuredError(err) {
		return err
	}
	q, qerr := syncq.Default()
	if qerr == nil {
		qerr = q.Push(cmd)
	}
	if qerr != nil {
		return fmt.Errorf("request failed and could not be queued: %w", errors.Join(err, qerr))
	}
	printWarn(fmt.Sprintf("Server unreachable; decision queued in %s. Run `wsk sync` once you are back online.", q.Path()))
	return nil
}

func isAPIStructuredError(err error) bool {
	var se *cl.StatusError
	return errors.As(err, &se)
}

func printQueued() {
	q, err := syncq.Default()
	if err != nil {
		return
	}
	queue, err := q.Load()
	if err == nil && len(queue) > 0 {
		printWarn(fmt.Sprintf("%d decision(s) waiting for `wsk sync`.", len(queue)))
	}
}

func assetAndAmount(args []string) (string, float64, error) {
	var asset string
	var err error
	if len(args) > 0 {
		asset = strings.TrimSpace(args[0])
	} else if asset, err = promptRequired("Asset"); err != nil {
		return "", 0, err
	}
	if len(args) > 1 {
		amount, err := parseAmount(args[1])
		return asset, amount, err
	}
	amount, err := promptFloat("Amount", 0)
	return asset, amount, err
}
