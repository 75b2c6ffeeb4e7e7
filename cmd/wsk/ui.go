package main

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	cl "wealthsim/internal/cli"
	"wealthsim/internal/disclosure"
	"wealthsim/internal/game"
	"wealthsim/internal/market"

	"github.com/fatih/color"
	"golang.org/x/term"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

// promptSecret reads without echo when stdin is a terminal and falls back to
// a plain line read when it is piped.
func promptSecret(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return promptRequired(label)
	}
	for {
		fmt.Printf("%s: ", label)
		raw, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		text := strings.TrimSpace(string(raw))
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptFloat(label string, min float64) (float64, error) {
	for {
		text, err := promptRequired(label)
		if err != nil {
			return 0, err
		}
		v, err := parseAmount(text)
		if err != nil {
			printWarn("Enter a valid number.")
			continue
		}
		if v <= min {
			printWarn(fmt.Sprintf("Value must be > %.2f", min))
			continue
		}
		return v, nil
	}
}

// parseAmount accepts "12,500" and "12500.50".
func parseAmount(text string) (float64, error) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(text), ",", ""), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("amount must be finite")
	}
	return v, nil
}

func renderPlayer(p game.PlayerView) {
	accent.Printf("\n== %s ==\n", p.Name)
	fmt.Printf("Net Worth:  %s\n", formatMoney(p.NetWorth))
	fmt.Printf("Cash:       %s\n", formatMoney(p.Cash))
	fmt.Printf("Invested:   %s\n", formatMoney(p.Invested))
	fmt.Printf("Loan:       %s\n", formatMoney(p.Loan))
	if p.Locked {
		fmt.Printf("Decision:   %s\n", success.Sprint("locked"))
	} else {
		fmt.Printf("Decision:   %s\n", warn.Sprint("open"))
	}

	fmt.Println()
	accent.Println("Holdings")
	fmt.Printf("%-16s %14s %8s\n", "ASSET", "VALUE", "WEIGHT")
	for _, h := range p.Holdings {
		fmt.Printf("%-16s %14s %7.2f%%\n", truncate(h.Asset, 16), formatMoney(h.Value), h.Weight)
	}

	if len(p.History) > 0 {
		fmt.Println()
		accent.Println("Settled Rounds")
		fmt.Printf("%-6s %14s %9s %10s %10s %10s\n", "ROUND", "NET WORTH", "MULTIPLE", "CAGR", "VOL", "RISK-ADJ")
		for _, r := range p.History {
			fmt.Printf("%-6d %14s %8.2fx %10s %10s %10s\n",
				r.Round,
				formatMoney(r.NetWorth),
				r.Multiple,
				optionalPercent(r.RealizedCAGR, r.CAGRDefined),
				optionalPercent(r.Volatility, r.RiskMeasured),
				optionalNumber(r.RiskAdjusted, r.RiskMeasured),
			)
		}
	}
	fmt.Println()
}

func renderDecision(out cl.DecisionResponse, action string) {
	if out.Duplicate {
		printInfo(action + " was already applied.")
	} else {
		printSuccess(action + " recorded.")
	}
	fmt.Printf("Cash: %s  Loan: %s  Net Worth: %s\n", formatMoney(out.Player.Cash), formatMoney(out.Player.Loan), formatMoney(out.Player.NetWorth))
}

func renderState(s game.StateView) {
	accent.Printf("\n== ROUND %d of %d ==\n", s.Round, s.MaxRounds)
	fmt.Printf("Phase:     %s\n", s.Phase)
	fmt.Printf("Players:   %d\n", s.Players)
	fmt.Printf("Assets:    %s\n", strings.Join(s.Assets, ", "))
	if s.LeverageEnabled {
		fmt.Printf("Borrowing: %s\n", success.Sprint("open"))
	} else {
		fmt.Printf("Borrowing: opens in round %d\n", s.LeverageRound)
	}
	if s.Complete {
		printInfo("The game is complete.")
	}
}

func renderMarket(v disclosure.View) {
	accent.Printf("\n== MARKET (round %d) ==\n", v.Round)
	fmt.Printf("%-16s %10s %10s %10s\n", "ASSET", "MEAN", "STDEV", "CAGR")
	for _, a := range v.Assets {
		fmt.Printf("%-16s %10s %10s %10s\n", truncate(a.Asset, 16), hiddenPercent(a.Mean), hiddenPercent(a.StdDev), hiddenPercent(a.CAGR))
	}
	if len(v.Correlation) > 0 {
		names := make([]string, len(v.Assets))
		for i, a := range v.Assets {
			names[i] = a.Asset
		}
		renderMatrix("Correlation", names, v.Correlation)
	}
	if v.LeverageEnabled {
		printInfo("Borrowing is open this round.")
	}
	fmt.Println()
}

func renderMetrics(m cl.MetricsResponse) {
	accent.Printf("\n== FULL METRICS (round %d, students see: %s) ==\n", m.Round.Round, statList(m.Visible.Stats))
	fmt.Printf("%-16s %10s %10s %10s\n", "ASSET", "MEAN", "STDEV", "CAGR")
	for _, st := range m.Metrics.Stats {
		fmt.Printf("%-16s %9.2f%% %9.2f%% %10s\n", truncate(st.Asset, 16), st.Mean, st.StdDev, hiddenPercent(st.CAGR))
	}
	renderMatrix("Correlation", m.Metrics.Assets, m.Metrics.Correlation)
	fmt.Println()
}

func renderMatrix(title string, names []string, m [][]float64) {
	fmt.Println()
	accent.Println(title)
	fmt.Printf("%-10s", "")
	for _, n := range names {
		fmt.Printf(" %8s", truncate(n, 8))
	}
	fmt.Println()
	for i, row := range m {
		name := ""
		if i < len(names) {
			name = names[i]
		}
		fmt.Printf("%-10s", truncate(name, 10))
		for _, v := range row {
			fmt.Printf(" %8.2f", v)
		}
		fmt.Println()
	}
}

func renderTable(t market.ReturnTable) {
	accent.Println("\n== RETURN TABLE (% per year) ==")
	fmt.Printf("%-6s", "YEAR")
	for _, a := range t.Assets {
		fmt.Printf(" %9s", truncate(a, 9))
	}
	fmt.Println()
	for i, row := range t.Rows {
		fmt.Printf("%-6d", i+1)
		for _, v := range row {
			fmt.Printf(" %9.2f", v)
		}
		fmt.Println()
	}
	fmt.Println()
}

func renderLeaderboard(board cl.LeaderboardResponse) {
	accent.Printf("\n== LEADERBOARD (round %d) ==\n", board.Round.Round)
	if len(board.Players) == 0 {
		printInfo("No players yet.")
		return
	}
	fmt.Printf("%-6s %-18s %14s %10s %12s %-6s\n", "RANK", "PLAYER", "NET WORTH", "MULTIPLE", "LOAN", "LOCKED")
	for _, row := range board.Players {
		locked := "no"
		if row.Locked {
			locked = "yes"
		}
		fmt.Printf("%-6d %-18s %14s %9.2fx %12s %-6s\n", row.Rank, truncate(row.Name, 18), formatMoney(row.NetWorth), row.Multiple, formatMoney(row.Loan), locked)
	}
	fmt.Println()
}

func renderSettlement(out cl.SettlementResponse) {
	accent.Printf("\n== ROUND %d SETTLED (%s) ==\n", out.Round, out.Mode)
	fmt.Printf("%-18s %14s %9s %10s %10s\n", "PLAYER", "NET WORTH", "MULTIPLE", "CAGR", "RISK-ADJ")
	for _, pr := range out.Results {
		r := pr.Result
		fmt.Printf("%-18s %14s %8.2fx %10s %10s\n",
			truncate(pr.Name, 18),
			formatMoney(r.NetWorth),
			r.Multiple,
			optionalPercent(r.RealizedCAGR, r.CAGRDefined),
			optionalNumber(r.RiskAdjusted, r.RiskMeasured),
		)
	}
	fmt.Println()
}

func renderJournal(entries []game.JournalEntry) {
	accent.Println("\n== SETTLEMENT JOURNAL ==")
	if len(entries) == 0 {
		printInfo("No settlements recorded.")
		return
	}
	fmt.Printf("%-6s %-18s %14s %9s %12s %-20s\n", "ROUND", "PLAYER", "NET WORTH", "MULTIPLE", "LOAN", "SETTLED")
	for _, e := range entries {
		fmt.Printf("%-6d %-18s %14s %8.2fx %12s %-20s\n",
			e.Round, truncate(e.Player, 18), formatMoney(e.NetWorth), e.Multiple, formatMoney(e.Loan),
			e.SettledAt.Local().Format("2006-01-02 15:04"))
	}
	fmt.Println()
}

func statList(stats []disclosure.Stat) string {
	parts := make([]string, len(stats))
	for i, s := range stats {
		parts[i] = string(s)
	}
	return strings.Join(parts, ", ")
}

func hiddenPercent(v *float64) string {
	if v == nil {
		return neutral.Sprint("-")
	}
	return fmt.Sprintf("%.2f%%", *v)
}

func optionalPercent(v float64, ok bool) string {
	if !ok {
		return "n/a"
	}
	return colorizePercent(v)
}

func optionalNumber(v float64, ok bool) string {
	if !ok {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", v)
}

func colorizePercent(v float64) string {
	text := fmt.Sprintf("%+.2f%%", v)
	switch {
	case v > 0:
		return success.Sprint(text)
	case v < 0:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

// formatMoney renders cents with thousands separators, e.g. 1,234.50.
func formatMoney(v float64) string {
	cents := int64(math.Round(v * 100))
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%s.%02d", sign, comma(cents/100), cents%100)
}

func comma(v int64) string {
	s := strconv.FormatInt(v, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		b.WriteByte(',')
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
