// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// render.go - Answer and document rendering for ask, chat and history.

package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-runewidth"

	"github.com/jeranaias/sciquery/internal/stream"
)

// maxTitleWidth bounds document titles in the source list.
const maxTitleWidth = 60

// newMarkdownRenderer builds a glamour renderer sized to the terminal.
// Returns nil when the renderer cannot be constructed. Callers fall
// back to plain text.
func newMarkdownRenderer() *glamour.TermRenderer {
	width := GetTerminalWidth()
	if width > 100 {
		width = 100
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	return r
}

// RenderMarkdown renders markdown for terminal display. Piped output
// and renderer failures get the raw text back.
func RenderMarkdown(text string) string {
	if !IsStdoutTTY() {
		return text
	}
	r := newMarkdownRenderer()
	if r == nil {
		return text
	}
	out, err := r.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n") + "\n"
}

// FormatDocument renders one supporting document as a numbered source
// line with similarity and origin.
func FormatDocument(index int, doc stream.DocumentPayload) string {
	title := strings.TrimSpace(doc.Title)
	if title == "" {
		title = "(untitled)"
	}
	title = runewidth.Truncate(title, maxTitleWidth, "...")

	var b strings.Builder
	b.WriteString(SourceStyle.Render(fmt.Sprintf("  [%d] %s", index, title)))

	var meta []string
	if doc.Similarity > 0 {
		meta = append(meta, fmt.Sprintf("relevance %.2f", doc.Similarity))
	}
	if doc.Provider != "" {
		meta = append(meta, doc.Provider)
	}
	if doc.Date != "" {
		meta = append(meta, doc.Date)
	}
	if len(meta) > 0 {
		b.WriteString(DimStyle.Render(" (" + strings.Join(meta, ", ") + ")"))
	}
	if doc.URL != "" {
		b.WriteString("\n")
		b.WriteString(DimStyle.Render("      " + doc.URL))
	}
	return b.String()
}

// FormatDocuments renders the full source list, or an empty string if
// there are none.
func FormatDocuments(docs []stream.DocumentPayload) string {
	if len(docs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(SectionStyle.Render("Sources"))
	b.WriteString("\n")
	for i, doc := range docs {
		b.WriteString(FormatDocument(i+1, doc))
		b.WriteString("\n")
	}
	return b.String()
}

// FormatElapsed renders a processing time in seconds for display.
func FormatElapsed(seconds float64) string {
	if seconds < 1 {
		return fmt.Sprintf("%.0fms", seconds*1000)
	}
	if seconds < 60 {
		return fmt.Sprintf("%.1fs", seconds)
	}
	return fmt.Sprintf("%dm%02ds", int(seconds)/60, int(seconds)%60)
}

// FormatFooter renders the completion line shown under an answer.
func FormatFooter(fromWebSearch bool, processingTime float64) string {
	origin := "knowledge base"
	if fromWebSearch {
		origin = "web search"
	}
	return DimStyle.Render(fmt.Sprintf("Answered from %s in %s", origin, FormatElapsed(processingTime)))
}
