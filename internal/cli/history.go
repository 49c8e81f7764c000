// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// history.go - Query history command.

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/jeranaias/sciquery/internal/config"
	"github.com/jeranaias/sciquery/internal/storage"
)

const historyTimeout = 10 * time.Second

// RunHistory prints the caller's most recent queries, newest first.
// A limit of zero means all.
func RunHistory(cfg *config.Config, limit int) error {
	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()

	c := newAPIClient(cfg)
	records, err := c.History(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println(DimStyle.Render("No queries yet."))
		return nil
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	fmt.Println(TitleStyle.Render("Query history"))
	for _, rec := range records {
		fmt.Println(formatHistoryRecord(rec))
	}
	return nil
}

func formatHistoryRecord(rec storage.QueryRecord) string {
	question := runewidth.Truncate(rec.Question, 70, "...")

	line := fmt.Sprintf("%s  %s  %s",
		DimStyle.Render(formatHistoryTime(rec.CreatedAt)),
		historyStatusBadge(rec.Status),
		ValueStyle.Render(question))

	if rec.Status == storage.QueryCompleted && rec.ProcessingTime > 0 {
		origin := "db"
		if rec.FromWebSearch {
			origin = "web"
		}
		line += DimStyle.Render(fmt.Sprintf(" (%s, %s)", origin, FormatElapsed(rec.ProcessingTime)))
	}
	if rec.Status == storage.QueryFailed && rec.ErrorMessage != "" {
		line += "\n" + ErrorStyle.Render("      "+runewidth.Truncate(rec.ErrorMessage, 70, "..."))
	}
	return line
}

func historyStatusBadge(status string) string {
	switch status {
	case storage.QueryCompleted:
		return SuccessStyle.Render("[done]")
	case storage.QueryFailed:
		return ErrorStyle.Render("[fail]")
	default:
		return WarningStyle.Render("[" + status + "]")
	}
}

// formatHistoryTime shortens an RFC3339 timestamp for the listing.
// Unparseable values pass through untouched.
func formatHistoryTime(value string) string {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return value
	}
	return t.Local().Format("2006-01-02 15:04")
}
