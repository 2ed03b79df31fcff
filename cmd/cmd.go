// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// serveCommand runs the task engine and HTTP API
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the task engine and dashboard API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (overrides [server] host and port)",
			},
		},
		Action: r.Serve,
	}
}

// setupCommand initializes local state
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Initialize configuration and database",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write config.toml from the bundled template",
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Create the SQLite database and run migrations",
				Action: r.SetupDatabase,
			},
		},
	}
}

// taskCommand manages live tasks through the API
func taskCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "task",
		Aliases: []string{"tasks", "t"},
		Usage:   "Create, inspect and cancel tasks",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Submit a task",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "kind",
						Aliases:  []string{"k"},
						Usage:    "Task kind (file_processing, web_scraping, pdf_download, playlist_download)",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "input",
						Aliases: []string{"i"},
						Usage:   "JSON input for the work function",
					},
					&cli.StringFlag{
						Name:  "input-file",
						Usage: "Read the JSON input from a file",
					},
					&cli.BoolFlag{
						Name:  "wait",
						Usage: "Poll until the task finishes",
					},
				},
				Action: r.TaskCreate,
			},
			{
				Name:  "status",
				Usage: "Show one task",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.TaskStatus,
			},
			{
				Name:  "list",
				Usage: "List live tasks",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "status",
						Usage: "Only show tasks with this status",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.TaskList,
			},
			{
				Name:  "cancel",
				Usage: "Ask a task to stop",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Action: r.TaskCancel,
			},
			{
				Name:  "stop",
				Usage: "Emergency stop: cancel every running task",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "reason",
						Usage: "Reason recorded on cancelled tasks",
					},
				},
				Action: r.TaskStop,
			},
			{
				Name:   "kinds",
				Usage:  "List task kinds the server can run",
				Action: r.TaskKinds,
			},
		},
	}
}

// historyCommand reads and exports durable task records
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Inspect the task history",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recent task records",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "kind",
						Usage: "Only show records of this kind",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of records to return",
						Value: 20,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.HistoryList,
			},
			{
				Name:  "clear",
				Usage: "Remove every task record",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "yes",
						Usage: "Skip the confirmation check",
					},
				},
				Action: r.HistoryClear,
			},
			{
				Name:  "export",
				Usage: "Export task records to a file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Export format (json, csv, markdown, txt)",
						Value:   "json",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path",
					},
					&cli.StringFlag{
						Name:  "kind",
						Usage: "Only export records of this kind",
					},
				},
				Action: r.HistoryExport,
			},
		},
	}
}

// tuiCommand launches the live dashboard
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch the live task dashboard",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Refresh interval",
				Value: 0,
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Where dashboard logs are written",
				Value: "./tmp/docdash-tui.log",
			},
		},
		Action: r.TUI,
	}
}
