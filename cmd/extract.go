package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/xhad/docbot/pkg/extract"
	"github.com/xhad/docbot/pkg/llm"
	"github.com/xhad/docbot/pkg/render"
)

// sections of the config used by the offline commands
var pipelineSections = []string{"llm", "embedder", "index", "database", "log"}

type ExtractCmd struct {
	Type     string `help:"Document type." short:"t" enum:"Resume,Bill of loading,Procurement,Ask your pdf" default:"Resume"`
	Question string `help:"Question to ask, required for the Ask your pdf type." short:"q"`
	JSON     bool   `help:"Print the record as JSON."`
	File     string `arg:"" help:"PDF file to read." type:"existingfile"`
}

func (c *ExtractCmd) Run(g *Globals) error {
	docType := extract.DocType(c.Type)
	if docType == extract.AskYourPDF && strings.TrimSpace(c.Question) == "" {
		return errors.New("--question is required for the Ask your pdf type")
	}

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
	err = withSpinner(fmt.Sprintf("Reading %s as %s...", doc.Name, docType), func() error {
		var err error
		out, err = a.extractor.Run(ctx, doc, docType, c.Question)
		return err
	})
	defer out.Close()

	switch {
	case errors.Is(err, extract.ErrDocTypeMismatch):
		color.Yellow("This document does not look like a %s.", docType)
		return err
	case errors.Is(err, llm.ErrContextTooLong):
		color.Red("The document is too long for the model. Please shorten the document and try again.")
		return err
	case err != nil:
		return err
	}

	if out.Record == nil {
		fmt.Println(out.Answer)
		return nil
	}

	if c.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out.Record.Values)
	}

	tmpl, err := extract.Lookup(docType)
	if err != nil {
		return err
	}
	form, err := render.Form(tmpl, out.Record)
	if err != nil {
		return err
	}
	color.Green("✓ %s (%d chunks)", doc.Name, out.Chunks)
	printForm(form, "")
	return nil
}

func printForm(views []render.FieldView, indent string) {
	label := color.New(color.FgCyan, color.Bold).SprintFunc()
	for _, v := range views {
		switch {
		case v.IsGroup():
			fmt.Printf("%s%s:\n", indent, label(v.Label))
			if len(v.Groups) == 0 {
				fmt.Printf("%s  (none)\n", indent)
			}
			for i, group := range v.Groups {
				fmt.Printf("%s  #%d\n", indent, i+1)
				printForm(group, indent+"    ")
			}
		case len(v.Values) > 1:
			fmt.Printf("%s%s:\n", indent, label(v.Label))
			for _, value := range v.Values {
				fmt.Printf("%s  - %s\n", indent, value)
			}
		default:
			fmt.Printf("%s%s: %s\n", indent, label(v.Label), v.Values[0])
		}
	}
}
