package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/xhad/docbot/pkg/extract"
	"github.com/xhad/docbot/pkg/llm"
)

type ChatCmd struct {
	File string `arg:"" help:"PDF file to read." type:"existingfile"`
}

func (c *ChatCmd) Run(g *Globals) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := newApp(ctx, g, pipelineSections...)
	if err != nil {
		return err
	}
	defer a.Close()

	data, err := os.ReadFile(c.File)
	if err != nil {
		return err
	}
	doc, err := a.loader.Load(filepath.Base(c.File), data)
	if err != nil {
		return err
	}

	var out *extract.Outcome
	err = withSpinner("Indexing "+doc.Name+"...", func() error {
		var err error
		out, err = a.extractor.Run(ctx, doc, extract.AskYourPDF, "")
		return err
	})
	if err != nil {
		return err
	}
	defer out.Close()
	color.Green("✓ %d pages, %d chunks", doc.Pages, out.Chunks)

	// Interactive chat loop with colored output
	color.Cyan("\nAsk a query about your PDF (type 'exit' to quit)")

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if strings.ToLower(query) == "exit" {
			break
		}

		assistantPrompt("Assistant: ")
		_, err := a.extractor.Ask(ctx, out.Retriever, query, func(piece string) error {
			fmt.Print(piece)
			return nil
		})
		fmt.Println()
		if errors.Is(err, llm.ErrContextTooLong) {
			color.Red("The document is too long for the model. Please shorten the document and try again.")
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			color.Red("Error: %v", err)
		}
	}

	return scanner.Err()
}
