// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - One-shot question command.
//
// Streams the pipeline over SSE, shows stage updates on a live status
// line, then renders the answer as markdown with its source list.

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/jeranaias/sciquery/internal/client"
	"github.com/jeranaias/sciquery/internal/config"
	"github.com/jeranaias/sciquery/internal/stream"
)

// AskOptions controls RunAsk behavior.
type AskOptions struct {
	// Sync uses the non-streaming endpoint. No stage updates, one
	// JSON response at the end.
	Sync bool

	// Plain skips markdown rendering even on a terminal.
	Plain bool
}

// RunAsk submits one question and prints the result. Ctrl+C cancels
// the request and releases the server slot.
func RunAsk(cfg *config.Config, question string, opts AskOptions) error {
	question = strings.TrimSpace(question)
	if question == "" {
		return fmt.Errorf("no question given")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c := newAPIClient(cfg)
	if opts.Sync {
		return runAskSync(ctx, c, question, opts)
	}
	return runAskStream(ctx, c, question, opts)
}

func runAskStream(ctx context.Context, c *client.Client, question string, opts AskOptions) error {
	printer := newStatusPrinter("Connecting")

	var (
		answer   string
		docs     []stream.DocumentPayload
		complete *stream.CompletePayload
		failure  *stream.ErrorPayload
	)

	err := c.Ask(ctx, question, func(ev client.Event) error {
		switch ev.Type {
		case stream.EventStatus:
			printer.SetStatus(ev.Status.Status)
		case stream.EventAnswer:
			answer = ev.Answer.Content
		case stream.EventDocument:
			docs = append(docs, *ev.Document)
		case stream.EventComplete:
			complete = ev.Complete
		case stream.EventError:
			failure = ev.Err
		}
		return nil
	})
	printer.Stop()

	if err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, WarningStyle.Render("Cancelled."))
			return nil
		}
		return err
	}
	if failure != nil {
		msg := failure.Error
		if failure.Message != "" {
			msg = failure.Message
		}
		return fmt.Errorf("%s", msg)
	}

	printAnswer(answer, docs, complete, opts)
	return nil
}

func runAskSync(ctx context.Context, c *client.Client, question string, opts AskOptions) error {
	printer := newStatusPrinter("Waiting for answer")
	result, err := c.AskSync(ctx, question)
	printer.Stop()
	if err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, WarningStyle.Render("Cancelled."))
			return nil
		}
		return err
	}

	complete := &stream.CompletePayload{
		FromWebSearch:  result.FromWebSearch,
		ProcessingTime: result.ProcessingTime,
		QueryID:        result.QueryID,
	}
	printAnswer(result.Answer, result.Documents, complete, opts)
	return nil
}

func printAnswer(answer string, docs []stream.DocumentPayload, complete *stream.CompletePayload, opts AskOptions) {
	if answer == "" {
		fmt.Println(WarningStyle.Render("No answer received."))
		return
	}

	if opts.Plain {
		fmt.Println(answer)
	} else {
		fmt.Print(RenderMarkdown(answer))
	}

	if sources := FormatDocuments(docs); sources != "" {
		fmt.Println(sources)
	}
	if complete != nil {
		fmt.Println(FormatFooter(complete.FromWebSearch, complete.ProcessingTime))
	}
}

// newAPIClient builds the HTTP client from config, resolving the user
// id from config, then $USER, then a fixed fallback.
func newAPIClient(cfg *config.Config) *client.Client {
	var opts []client.Option
	if cfg.Server.BearerToken != "" {
		opts = append(opts, client.WithToken(cfg.Server.BearerToken))
	}
	return client.New(cfg.Client.ServerURL, resolveUserID(cfg), opts...)
}

func resolveUserID(cfg *config.Config) string {
	if cfg.Client.UserID != "" {
		return cfg.Client.UserID
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "anonymous"
}
