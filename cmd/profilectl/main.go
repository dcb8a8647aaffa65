// Command profilectl is the operator tool for the profile store: schema
// migration, batch ingestion from JSON lines, and read-back queries.
package main

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/MrWong99/frameingest/internal/app"
	"github.com/MrWong99/frameingest/internal/config"
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:      "profilectl",
		Usage:     "Manage enriched social-graph profiles",
		Writer:    out,
		ErrWriter: os.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file",
				Value:   "config.yaml",
				EnvVars: []string{"FRAMEINGEST_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "env",
				Usage: "Dotenv file loaded before the config",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Create the profile table and vector extension",
				Action: migrateCommand,
			},
			{
				Name:   "ingest",
				Usage:  "Enrich and store profiles read from a JSON lines file",
				Action: ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "JSON lines file with one ingest request per line (- for stdin)",
						Required: true,
					},
					&cli.IntFlag{
						Name:    "workers",
						Aliases: []string{"w"},
						Usage:   "Concurrent ingestions (0 = number of CPUs)",
						Value:   0,
					},
				},
			},
			{
				Name:   "get",
				Usage:  "Print a stored profile as JSON",
				Action: getCommand,
				Flags: []cli.Flag{
					&cli.Int64Flag{
						Name:     "fid",
						Usage:    "Profile fid",
						Required: true,
					},
				},
			},
			{
				Name:   "search",
				Usage:  "List the profiles most similar to a stored one",
				Action: searchCommand,
				Flags: []cli.Flag{
					&cli.Int64Flag{
						Name:     "fid",
						Usage:    "Profile fid whose embedding is the query",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "k",
						Usage: "Number of matches",
						Value: 5,
					},
				},
			},
		},
	}
}

// setup configures the logger and loads the dotenv file.
func setup(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))
	level := config.LogLevel(levelStr)
	if !level.IsValid() {
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: app.ParseLevel(level)})))

	return config.LoadDotEnv(c.String("env"))
}
