// shiftctl runs admin operations against the configured store without the API.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	_ "time/tzdata"

	"shiftbook/internal/app"
	"shiftbook/internal/config"
	"shiftbook/internal/events"
	"shiftbook/internal/logging"
	"shiftbook/internal/models"
	"shiftbook/internal/service"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	if err := execute(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type cli struct {
	configPath string
	actor      string
	out        io.Writer

	cfg      *config.Config
	logger   *zerolog.Logger
	store    *app.Store
	calendar *service.CalendarService
	closers  []func()
}

func execute(args []string, out io.Writer) error {
	c := &cli{out: out}
	defer c.close()

	root := c.rootCmd()
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(out)
	return root.ExecuteContext(context.Background())
}

func (c *cli) rootCmd() *cobra.Command {
	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "configs/config.yaml"
	}

	root := &cobra.Command{
		Use:           "shiftctl",
		Short:         "Admin tool for the shift calendar",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.open()
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", defaultConfig, "Path to config.yaml")
	root.PersistentFlags().StringVar(&c.actor, "as", "shiftctl", "User id recorded as the acting admin")

	root.AddCommand(
		c.blockCmd(),
		c.closedDaysCmd(),
		c.statsCmd(),
		c.exportCmd(),
		c.backupCmd(),
		c.usersCmd(),
	)
	return root
}

func (c *cli) open() error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	// stdout is for command output
	if cfg.Logging.Output == "" || cfg.Logging.Output == "stdout" {
		cfg.Logging.Output = "stderr"
	}
	logger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if closer != nil {
		c.closers = append(c.closers, func() { _ = closer.Close() })
	}
	c.cfg = cfg
	c.logger = logging.Component(logger, "shiftctl")

	st, err := app.OpenStore(cfg, nil, logging.Component(logger, "store"))
	if err != nil {
		return err
	}
	c.store = st
	c.closers = append(c.closers, func() { _ = st.Close() })

	pub, closePub := app.Publisher(cfg.Events, events.NewEventBus(), logging.Component(logger, "events"))
	c.closers = append(c.closers, closePub)

	c.calendar, err = app.CalendarService(cfg.Booking, st, pub, logging.Component(logger, "calendar"))
	return err
}

func (c *cli) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// session is the admin identity the CLI acts under. It is never stored.
func (c *cli) session() *models.Session {
	return &models.Session{UserID: c.actor, Email: c.actor, Role: models.RoleAdmin}
}
