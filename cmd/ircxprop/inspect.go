package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"ircxprop/pkg/config"
	"ircxprop/pkg/store"
)

func inspectCmd() *cobra.Command {
	var (
		databasePath string
		showHidden   bool
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show stored accounts and their properties",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger(verbose)
			defer logger.Sync()

			hidden := []string{"passphrase"}
			if configFile != "" {
				cfg, err := config.LoadConfig(configFile)
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
				if databasePath == "" {
					databasePath = cfg.DatabasePath
				}
				hidden = cfg.HiddenKeys
			}
			if databasePath == "" {
				return fmt.Errorf("no database given")
			}

			st, err := store.New(databasePath, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			records, err := st.ListAccounts(context.Background())
			if err != nil {
				return err
			}

			var (
				primaryColor = lipgloss.Color("#7571f9")
				mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6c757d"))
				titleStyle   = lipgloss.NewStyle().
						Bold(true).
						Foreground(primaryColor).
						MarginBottom(1)
			)

			fmt.Println(titleStyle.Render(fmt.Sprintf("Accounts (%d)", len(records))))
			if len(records) == 0 {
				fmt.Println(mutedStyle.Render("No accounts stored"))
				return nil
			}

			fmt.Println(accountTable(records, hidden, showHidden))
			return nil
		},
	}

	cmd.Flags().StringVar(&databasePath, "database", "", "SQLite database for accounts")
	cmd.Flags().BoolVar(&showHidden, "show-hidden", false, "print values of hidden keys")

	return cmd
}

func accountTable(records []store.AccountRecord, hidden []string, showHidden bool) string {
	masked := make(map[string]bool, len(hidden))
	for _, key := range hidden {
		masked[key] = true
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#7571f9"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return lipgloss.NewStyle().
					Foreground(lipgloss.Color("#ffffff")).
					Bold(true).
					Padding(0, 1)
			default:
				return lipgloss.NewStyle().
					Padding(0, 1)
			}
		}).
		Headers("ACCOUNT", "CREATED", "KEY", "VALUE", "SET BY", "SET AT")

	for _, rec := range records {
		created := formatTS(rec.CreationTS)
		if len(rec.Props) == 0 {
			t.Row(rec.Name, created, "-", "-", "-", "-")
			continue
		}
		for _, p := range rec.Props {
			value := p.Value
			if masked[p.Name] && !showHidden {
				value = "********"
			}
			t.Row(rec.Name, created, p.Name, value, p.Setter, formatTS(p.SetAt))
		}
	}
	return t.Render()
}

func formatTS(ts int64) string {
	if ts <= 0 {
		return strconv.FormatInt(ts, 10)
	}
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}
