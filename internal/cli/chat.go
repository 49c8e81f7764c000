// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive question REPL.
//
// Wraps liner for line editing with persistent input history under the
// config directory. Each submitted question streams through the same
// path as the ask command. Slash commands cover help, server status and
// query history.

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/peterh/liner"

	"github.com/jeranaias/sciquery/internal/client"
	"github.com/jeranaias/sciquery/internal/config"
	"github.com/jeranaias/sciquery/internal/stream"
)

const (
	chatHistoryFile = "chat_history"

	// statusTimeout bounds the /status health probe.
	statusTimeout = 5 * time.Second
)

// chatDisplay accumulates one streamed exchange for rendering after
// the status line is cleared.
type chatDisplay struct {
	answer   string
	docs     []stream.DocumentPayload
	complete *stream.CompletePayload
	failure  *stream.ErrorPayload
}

func (d *chatDisplay) handle(printer statusPrinter) client.Handler {
	return func(ev client.Event) error {
		switch ev.Type {
		case stream.EventStatus:
			printer.SetStatus(ev.Status.Status)
		case stream.EventAnswer:
			d.answer = ev.Answer.Content
		case stream.EventDocument:
			d.docs = append(d.docs, *ev.Document)
		case stream.EventComplete:
			d.complete = ev.Complete
		case stream.EventError:
			d.failure = ev.Err
		}
		return nil
	}
}

func (d *chatDisplay) flush() error {
	if d.failure != nil {
		msg := d.failure.Error
		if d.failure.Message != "" {
			msg = d.failure.Message
		}
		return errors.New(msg)
	}
	printAnswer(d.answer, d.docs, d.complete, AskOptions{})
	fmt.Println()
	return nil
}

// ChatCLI wraps liner with persistent history.
type ChatCLI struct {
	line        *liner.State
	historyPath string
}

// NewChatCLI initializes line editing and loads saved input history.
func NewChatCLI() (*ChatCLI, error) {
	if err := RequiresTTY("chat"); err != nil {
		return nil, err
	}

	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	c := &ChatCLI{line: line}
	if dir, err := config.ConfigDir(); err == nil {
		c.historyPath = filepath.Join(dir, chatHistoryFile)
		if f, err := os.Open(c.historyPath); err == nil {
			c.line.ReadHistory(f)
			f.Close()
		}
	}
	return c, nil
}

// Prompt reads one line. Returns liner.ErrPromptAborted on Ctrl+C.
func (c *ChatCLI) Prompt(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	input = strings.TrimSpace(input)
	if input != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves history and restores the terminal.
func (c *ChatCLI) Close() {
	if c.historyPath != "" {
		if err := config.EnsureConfigDir(); err == nil {
			if f, err := os.OpenFile(c.historyPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600); err == nil {
				c.line.WriteHistory(f)
				f.Close()
			}
		}
	}
	c.line.Close()
}

// RequiresTTY returns an error when stdin is not a terminal.
func RequiresTTY(operation string) error {
	if !IsTTY() {
		return fmt.Errorf("stdin is not a terminal; cannot %s interactively", operation)
	}
	return nil
}

// RunChat starts the interactive REPL.
func RunChat(cfg *config.Config) error {
	cli, err := NewChatCLI()
	if err != nil {
		return err
	}
	defer cli.Close()

	c := newAPIClient(cfg)
	printChatWelcome(cfg)

	asked := 0
	for {
		input, err := cli.Prompt(DimStyle.Render("ask> "))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				fmt.Println(DimStyle.Render("(Ctrl+C again or /quit to exit)"))
				continue
			}
			// io.EOF on Ctrl+D ends the session.
			break
		}
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") || input == "exit" || input == "quit" {
			if done := runChatCommand(cfg, c, input); done {
				break
			}
			continue
		}

		if err := askInChat(c, input); err != nil {
			fmt.Println(ErrorStyle.Render("Error: " + err.Error()))
			continue
		}
		asked++
	}

	fmt.Println(DimStyle.Render(fmt.Sprintf("Session ended. %d question(s) asked.", asked)))
	return nil
}

// askInChat streams one question, cancellable with Ctrl+C without
// leaving the REPL.
func askInChat(c *client.Client, question string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	printer := newStatusPrinter("Connecting")
	var display chatDisplay
	err := c.Ask(ctx, question, display.handle(printer))
	printer.Stop()

	if err != nil {
		if ctx.Err() != nil {
			fmt.Println(WarningStyle.Render("Cancelled."))
			return nil
		}
		return err
	}
	return display.flush()
}

// runChatCommand handles slash commands. Returns true when the REPL
// should exit.
func runChatCommand(cfg *config.Config, c *client.Client, input string) bool {
	cmd := strings.Fields(input)[0]
	switch cmd {
	case "/quit", "/exit", "exit", "quit":
		return true
	case "/help":
		printChatHelp()
	case "/status":
		printServerStatus(c)
	case "/history":
		if err := RunHistory(cfg, 10); err != nil {
			fmt.Println(ErrorStyle.Render("Error: " + err.Error()))
		}
	case "/clear":
		fmt.Print("\033[2J\033[H")
	default:
		fmt.Println(WarningStyle.Render("Unknown command " + cmd + ". Try /help."))
	}
	return false
}

func printChatWelcome(cfg *config.Config) {
	fmt.Println(TitleStyle.Render("sciquery chat"))
	fmt.Println(DimStyle.Render("Server: " + cfg.Client.ServerURL))
	fmt.Println(DimStyle.Render("Type a science question, /help for commands, /quit to exit."))
	fmt.Println()
}

func printChatHelp() {
	rows := [][2]string{
		{"/help", "Show this help"},
		{"/status", "Show server load"},
		{"/history", "Show your recent queries"},
		{"/clear", "Clear the screen"},
		{"/quit", "Exit chat"},
	}
	fmt.Println(SectionStyle.Render("Commands"))
	for _, row := range rows {
		fmt.Printf("  %s %s\n", LabelStyle.Render(row[0]), ValueStyle.Render(row[1]))
	}
}

func printServerStatus(c *client.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()

	h, err := c.ServerHealth(ctx)
	if err != nil {
		fmt.Println(ErrorStyle.Render("Server unreachable: " + err.Error()))
		return
	}
	fmt.Println(SectionStyle.Render("Server"))
	fmt.Printf("  %s %s\n", LabelStyle.Render("Status"), SuccessStyle.Render(h.Status))
	fmt.Printf("  %s %s\n", LabelStyle.Render("Version"), ValueStyle.Render(h.Version))
	fmt.Printf("  %s %s\n", LabelStyle.Render("Active"), ValueStyle.Render(fmt.Sprintf("%d", h.Active)))
	fmt.Printf("  %s %s\n", LabelStyle.Render("Queued"), ValueStyle.Render(fmt.Sprintf("%d", h.Queued)))
}
