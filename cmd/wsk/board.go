package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	cl "wealthsim/internal/cli"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	boardTitle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("45")).MarginBottom(1)
	boardFrame = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	boardHint  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	boardError = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

type boardMsg struct {
	board cl.LeaderboardResponse
	err   error
}

type boardTick struct{}

// boardModel is a live leaderboard that polls the API every interval.
type boardModel struct {
	ctx      context.Context
	client   *cl.Client
	interval time.Duration
	table    table.Model
	round    int
	rounds   int
	updated  time.Time
	err      error
}

func newBoardModel(ctx context.Context, client *cl.Client, interval time.Duration) boardModel {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "#", Width: 4},
			{Title: "Player", Width: 18},
			{Title: "Net worth", Width: 14},
			{Title: "Multiple", Width: 9},
			{Title: "Loan", Width: 12},
			{Title: "Locked", Width: 7},
		}),
		table.WithFocused(true),
		table.WithHeight(15),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)
	return boardModel{ctx: ctx, client: client, interval: interval, table: t}
}

func (m boardModel) fetch() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, 10*time.Second)
		defer cancel()
		board, err := m.client.Leaderboard(ctx)
		return boardMsg{board: board, err: err}
	}
}

func (m boardModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg { return boardTick{} })
}

func (m boardModel) Init() tea.Cmd {
	return m.fetch()
}

func (m boardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.fetch()
		}
	case boardTick:
		return m, m.fetch()
	case boardMsg:
		m.err = msg.err
		if msg.err == nil {
			m.round = msg.board.Round.Round
			m.rounds = msg.board.Round.MaxRounds
			m.updated = time.Now()
			m.table.SetRows(boardRows(msg.board))
		}
		return m, m.tick()
	}
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m boardModel) View() string {
	title := boardTitle.Render(fmt.Sprintf("Leaderboard · round %d of %d", m.round, m.rounds))
	status := boardHint.Render(fmt.Sprintf("updated %s · r refresh · q quit", m.updated.Format("15:04:05")))
	if m.err != nil {
		status = boardError.Render("refresh failed: " + m.err.Error())
	}
	return lipgloss.JoinVertical(lipgloss.Left, title, boardFrame.Render(m.table.View()), status) + "\n"
}

func boardRows(board cl.LeaderboardResponse) []table.Row {
	rows := make([]table.Row, 0, len(board.Players))
	for _, p := range board.Players {
		locked := ""
		if p.Locked {
			locked = "yes"
		}
		rows = append(rows, table.Row{
			strconv.FormatInt(p.Rank, 10),
			truncate(p.Name, 18),
			formatMoney(p.NetWorth),
			fmt.Sprintf("%.2fx", p.Multiple),
			formatMoney(p.Loan),
			locked,
		})
	}
	return rows
}

func newBoardCmd(apiBase *string) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Live leaderboard for the classroom screen",
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval < time.Second {
				interval = time.Second
			}
			model := newBoardModel(cmd.Context(), newClient(apiBase), interval)
			_, err := tea.NewProgram(model, tea.WithAltScreen()).Run()
			return err
		},
	}
	cmd.Flags().DurationVar(&interval, "every", 5*time.Second, "refresh interval")
	return cmd
}
