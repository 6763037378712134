package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/applydraft/internal/ai/langchain"
	"github.com/applydraft/internal/api"
	"github.com/applydraft/internal/config"
	"github.com/applydraft/internal/credits"
	"github.com/applydraft/internal/database"
	"github.com/applydraft/internal/discovery"
	"github.com/applydraft/internal/jobqueue"
	"github.com/applydraft/internal/project"
	"github.com/applydraft/internal/render"
)

// APICommand returns the CLI command for starting the API server
func APICommand() *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Start the ApplyDraft API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server (overrides config)",
			},
			&cli.BoolFlag{
				Name:  "no-queue",
				Usage: "Disable the background generation queue",
			},
		},
		Action: func(c *cli.Context) error {
			_ = LoadEnvFile(".env")

			// Fall back to the default search paths when the named
			// config file is absent.
			configPath := c.String("config")
			if _, statErr := os.Stat(configPath); statErr != nil {
				configPath = ""
			}
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if c.IsSet("port") {
				cfg.Server.Port = c.Int("port")
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}

			check := CheckRequiredConfig()
			PrintConfigCheck(check)
			if len(check.Missing) > 0 {
				return fmt.Errorf("missing required configuration: %v", check.Missing)
			}

			db, err := database.NewDB()
			if err != nil {
				return fmt.Errorf("connecting to database: %w", err)
			}
			if err := credits.NewStore(db).InitSchema(c.Context); err != nil {
				return fmt.Errorf("initializing credits schema: %w", err)
			}
			if err := api.NewSettingsStore(db).InitSchema(c.Context); err != nil {
				return fmt.Errorf("initializing settings schema: %w", err)
			}

			client, err := langchain.New(langchain.Config{
				APIKey:    cfg.AI.APIKey,
				ModelName: cfg.AI.Model,
			})
			if err != nil {
				return fmt.Errorf("creating AI client: %w", err)
			}
			gen := langchain.NewResilientGenerator(client)

			var renderer *render.Renderer
			if cfg.Render.BrowserPath != "" {
				renderer = render.NewWithBrowser(cfg.Render.BrowserPath)
			} else if r, rerr := render.New(); rerr == nil {
				renderer = r
			} else {
				log.Warn().Msg("no headless browser found, PDF rendering disabled")
			}

			var queue *jobqueue.JobQueue
			if !c.Bool("no-queue") {
				dbURL, uerr := database.URL()
				if uerr != nil {
					return uerr
				}
				settings := api.NewSettingsStore(db)
				runner := &api.QueueRunner{
					Cfg:      cfg,
					Gen:      gen,
					Projects: project.NewStore(cfg.Server.DataDir),
					Credits:  credits.NewStore(db),
					Settings: settings,
					Searcher: discovery.NewSearcher(gen),
				}
				if renderer != nil {
					runner.Renderer = renderer
				}
				queue, err = jobqueue.NewJobQueue(dbURL, runner, settings)
				if err != nil {
					return fmt.Errorf("creating job queue: %w", err)
				}
				if err := queue.Start(c.Context); err != nil {
					return fmt.Errorf("starting job queue: %w", err)
				}
				defer queue.Stop(c.Context)
			}

			fmt.Printf("Starting ApplyDraft API server on port %d...\n", cfg.Server.Port)

			server := api.NewServer(api.Deps{
				Config:   cfg,
				DB:       db,
				Gen:      gen,
				Renderer: renderer,
				Queue:    queue,
			})
			return server.Start()
		},
	}
}
