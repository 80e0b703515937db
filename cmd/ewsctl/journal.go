package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nhle/ews-client/internal/journal"
)

var (
	flagLimit     int
	flagOlderThan time.Duration
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect requests that failed",
}

var journalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent failed requests",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withJournal(func(j *journal.SQLiteJournal) error {
			entries, err := j.Recent(context.Background(), flagLimit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println(subtleStyle.Render("No failed requests recorded."))
				return nil
			}
			for _, e := range entries {
				fmt.Printf("%s  %-20s %s  %s\n",
					subtleStyle.Render(e.ID),
					e.Operation,
					humanize.Time(e.FailedAt),
					errorStyle.Render(firstLineOf(e.Error)))
			}
			return nil
		})
	},
}

var journalShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show the full trace of a failed request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withJournal(func(j *journal.SQLiteJournal) error {
			e, err := j.Get(context.Background(), args[0])
			if errors.Is(err, journal.ErrNotFound) {
				return fmt.Errorf("no failed request with id %s", args[0])
			}
			if err != nil {
				return err
			}

			lines := []string{
				headerStyle.Render(e.Operation),
				field("URL", e.URL),
				field("Failed", e.FailedAt.Local().Format(time.RFC1123)),
				field("Status", fmt.Sprint(e.StatusCode)),
				field("Error", e.Error),
			}
			fmt.Println(panelStyle.Render(strings.Join(lines, "\n")))

			section("Request headers", e.RequestHeaders)
			section("Request body", e.RequestBody)
			section("Response headers", e.ResponseHeaders)
			section("Response body", e.ResponseBody)
			return nil
		})
	},
}

var journalPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete old failed requests",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withJournal(func(j *journal.SQLiteJournal) error {
			n, err := j.Purge(context.Background(), time.Now().Add(-flagOlderThan))
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d failed request(s).\n", n)
			return nil
		})
	},
}

func init() {
	journalListCmd.Flags().IntVarP(&flagLimit, "limit", "n", 20, "Maximum number of entries (0 for all)")
	journalPurgeCmd.Flags().DurationVar(&flagOlderThan, "older-than", 30*24*time.Hour, "Remove entries older than this")

	journalCmd.AddCommand(journalListCmd)
	journalCmd.AddCommand(journalShowCmd)
	journalCmd.AddCommand(journalPurgeCmd)
}

func withJournal(fn func(*journal.SQLiteJournal) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.JournalPath == "" {
		return errors.New("journal is disabled (journal_path is empty)")
	}

	j, err := journal.NewSQLiteJournal(cfg.JournalPath)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer j.Close()

	return fn(j)
}

func section(title, content string) {
	fmt.Println(headerStyle.Render(title))
	if content == "" {
		fmt.Println(subtleStyle.Render("(empty)"))
		return
	}
	fmt.Println(content)
}

func firstLineOf(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
