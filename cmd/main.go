package main

import (
	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
)

// Globals are flags shared by every command.
type Globals struct {
	Config string `help:"Path to config file" type:"path" short:"c"`
	Debug  bool   `help:"Development logging"`
}

var cli struct {
	Globals

	Serve   ServeCmd   `cmd:"" help:"Run the web app."`
	Extract ExtractCmd `cmd:"" help:"Extract a record from a PDF and print it."`
	Chat    ChatCmd    `cmd:"" help:"Ask questions about a PDF in the terminal."`
}

func main() {
	_ = godotenv.Load()

	ctx := kong.Parse(&cli,
		kong.Name("docbot"),
		kong.Description("Extract structured records from PDFs and read Xero invoices."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&cli.Globals))
}
