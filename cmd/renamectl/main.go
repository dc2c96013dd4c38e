package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/autorenamer/autorenamer/pkg/config"
	"github.com/autorenamer/autorenamer/pkg/database"
	"github.com/autorenamer/autorenamer/pkg/migrations"
	"github.com/autorenamer/autorenamer/pkg/settings"
	"github.com/autorenamer/autorenamer/pkg/stats"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
	"github.com/urfave/cli/v2"
)

func main() {
	log := logger.New()

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	db, err := database.New(cfg)
	if err != nil {
		log.Err(err).Fatal("database error")
	}

	app := &cli.App{
		Name:  "renamectl",
		Usage: "inspect and maintain the rename bot database",
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "create or upgrade the settings and stats tables",
				Action: func(c *cli.Context) error {
					group, err := migrations.BringUpToDate(c.Context, db)
					if err != nil {
						return err
					}
					if group.ID == 0 {
						fmt.Println("Schema is already up to date")
						return nil
					}
					fmt.Printf("Applied group %d: %s\n", group.ID, group.Migrations)
					return nil
				},
			},
			{
				Name:  "rollback",
				Usage: "revert the last migration group (drops stats if it created them)",
				Action: func(c *cli.Context) error {
					group, err := migrations.Rollback(c.Context, db)
					if err != nil {
						return err
					}
					if group.ID == 0 {
						fmt.Println("Nothing to roll back")
						return nil
					}
					fmt.Printf("Rolled back group %d: %s\n", group.ID, group.Migrations)
					return nil
				},
			},
			{
				Name:  "status",
				Usage: "list applied and pending migrations",
				Action: func(c *cli.Context) error {
					status, err := migrations.Current(c.Context, db)
					if err != nil {
						return err
					}
					for _, name := range status.Applied {
						fmt.Printf("applied  %s\n", name)
					}
					for _, name := range status.Pending {
						fmt.Printf("pending  %s\n", name)
					}
					fmt.Printf("Last group: %d\n", status.LastGroupID)
					return nil
				},
			},
			{
				Name:  "stats",
				Usage: "print rename totals and the leaderboard",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: stats.DefaultLeaderboardLimit, Usage: "leaderboard size"},
				},
				Action: func(c *cli.Context) error {
					svc := stats.NewService(db)
					summary, err := svc.Summary(c.Context)
					if err != nil {
						return err
					}
					fmt.Printf("Files renamed: %s (%s)\n", humanize.Comma(summary.TotalFiles), summary.TotalBytesHuman)
					fmt.Printf("Users: %d, active today: %d\n", summary.Users, summary.ActiveToday)

					entries, err := svc.Leaderboard(c.Context, c.Int("limit"))
					if err != nil {
						return err
					}
					for i, e := range entries {
						fmt.Printf("%2d. %-24s %6d files  %s\n", i+1, e.DisplayName, e.FilesProcessed, humanize.IBytes(uint64(e.BytesProcessed)))
					}
					return nil
				},
			},
			{
				Name:      "settings",
				Usage:     "print a user's settings as JSON (defaults if the user is unknown)",
				ArgsUsage: "<user_id>",
				Action: func(c *cli.Context) error {
					userID, err := strconv.ParseInt(c.Args().First(), 10, 64)
					if err != nil {
						return errors.Errorf("invalid user id %q", c.Args().First())
					}
					s, err := settings.NewService(db).Get(c.Context, userID)
					if err != nil {
						return err
					}
					out, err := json.MarshalIndent(s, "", "  ")
					if err != nil {
						return errors.WithStack(err)
					}
					fmt.Println(string(out))
					return nil
				},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Err(err).Fatal("renamectl error")
	}
}
