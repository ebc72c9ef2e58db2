// Command migrate manages the kkoala database schema.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/ashureev/kkoala/internal/store"
	"github.com/ashureev/kkoala/internal/store/migrate"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	_ = godotenv.Load()

	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:      "migrate",
		Usage:     "Manage the kkoala database schema",
		Writer:    out,
		ErrWriter: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Aliases: []string{"d"},
				Usage:   "Database URL (sqlite://path or postgres://...)",
				EnvVars: []string{"DATABASE_URL"},
				Value:   "sqlite://./data/kkoala.db",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "Apply all pending migrations",
				Action: withStore(func(c *cli.Context, st *store.SQLStore) error {
					return migrate.Run(st.DB(), string(st.Dialect()))
				}),
			},
			{
				Name:  "down",
				Usage: "Roll back every migration",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "yes",
						Usage: "Confirm dropping all tables",
					},
				},
				Action: withStore(func(c *cli.Context, st *store.SQLStore) error {
					if !c.Bool("yes") {
						return fmt.Errorf("refusing to drop all tables without --yes")
					}
					return migrate.Down(st.DB(), string(st.Dialect()))
				}),
			},
			{
				Name:      "steps",
				Usage:     "Apply n migrations (negative rolls back)",
				ArgsUsage: "<n>",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:     "n",
						Usage:    "Number of migrations",
						Required: true,
					},
				},
				Action: withStore(func(c *cli.Context, st *store.SQLStore) error {
					return migrate.Steps(st.DB(), string(st.Dialect()), c.Int("n"))
				}),
			},
			{
				Name:  "version",
				Usage: "Print the current schema version",
				Action: withStore(func(c *cli.Context, st *store.SQLStore) error {
					version, dirty, err := migrate.Version(st.DB(), string(st.Dialect()))
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "version %d (dirty: %t)\n", version, dirty)
					return nil
				}),
			},
		},
	}
}

func withStore(fn func(c *cli.Context, st *store.SQLStore) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		st, err := store.Open(c.String("database-url"))
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer st.Close()
		return fn(c, st)
	}
}
