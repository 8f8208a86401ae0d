package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"shiftbook/internal/database"
	"shiftbook/internal/export"
	"shiftbook/internal/google"
	"shiftbook/internal/models"
	"shiftbook/internal/service"

	"github.com/spf13/cobra"
)

var errSQLiteOnly = errors.New("command requires the sqlite store backend")

func (c *cli) blockCmd() *cobra.Command {
	var req service.BlockRequest
	cmd := &cobra.Command{
		Use:     "block",
		Short:   "Book every slot in [start, end) for a user",
		Example: "  shiftctl block --user 42 --start 2025-06-11T07:00 --end 2025-06-14T00:00",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := c.calendar.Block(cmd.Context(), c.session(), req)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, res.Summary())
			for _, f := range res.Failures {
				fmt.Fprintf(c.out, "  %s %s: %s\n", f.Date, f.StartTime, f.Error)
			}
			if res.RefreshError != "" {
				c.logger.Warn().Str("error", res.RefreshError).Msg("calendar refresh after block failed")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&req.UserID, "user", "", "User id to book for")
	cmd.Flags().StringVar(&req.Start, "start", "", "Range start, YYYY-MM-DDTHH:MM")
	cmd.Flags().StringVar(&req.End, "end", "", "Range end (exclusive), YYYY-MM-DDTHH:MM")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func (c *cli) closedDaysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "closed-days",
		Short: "Manage days on which nothing can be booked",
	}

	var reason string
	add := &cobra.Command{
		Use:   "add DATE",
		Short: "Close a day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := c.calendar.AddClosedDay(cmd.Context(), c.session(), args[0], reason)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "closed day %s on %s\n", day.ID, day.Date)
			return nil
		},
	}
	add.Flags().StringVar(&reason, "reason", "", "Reason shown to users")

	rm := &cobra.Command{
		Use:   "rm ID",
		Short: "Reopen a closed day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.calendar.DeleteClosedDay(cmd.Context(), c.session(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "removed closed day %s\n", args[0])
			return nil
		},
	}

	var m monthFlags
	ls := &cobra.Command{
		Use:   "ls",
		Short: "List closed days of a month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			year, month, err := m.resolve(c)
			if err != nil {
				return err
			}
			days, err := c.calendar.ListClosedDays(cmd.Context(), c.session(), year, month)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tDATE\tREASON")
			for _, d := range days {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", d.ID, d.Date, d.Reason)
			}
			return tw.Flush()
		},
	}
	m.register(ls)

	cmd.AddCommand(add, rm, ls)
	return cmd
}

func (c *cli) statsCmd() *cobra.Command {
	var (
		m    monthFlags
		sync bool
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print per-user statistics for a month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			year, month, err := m.resolve(c)
			if err != nil {
				return err
			}
			rows, err := c.calendar.AdminStats(cmd.Context(), c.session(), year, month)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, strings.ToUpper(strings.Join(export.Headers, "\t")))
			for _, r := range rows {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", r.Email, r.HoursWorked, r.HoursBooked, r.ShiftsBooked, r.Cancellations)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			if !sync {
				return nil
			}
			if !c.cfg.Google.Enabled() {
				return errors.New("google sheets is not configured")
			}
			sheets, err := google.NewSheetsService(cmd.Context(), c.cfg.Google.GoogleCredentialsFile, c.cfg.Google.StatsSpreadSheetID)
			if err != nil {
				return err
			}
			p := period(year, month)
			if err := sheets.WriteMonthStats(cmd.Context(), p, rows); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "synced %s to google sheets\n", p)
			return nil
		},
	}
	m.register(cmd)
	cmd.Flags().BoolVar(&sync, "sync", false, "Also write the month to the stats spreadsheet")
	return cmd
}

func (c *cli) exportCmd() *cobra.Command {
	var (
		m   monthFlags
		dir string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write monthly statistics to an xlsx file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			year, month, err := m.resolve(c)
			if err != nil {
				return err
			}
			rows, err := c.calendar.AdminStats(cmd.Context(), c.session(), year, month)
			if err != nil {
				return err
			}
			if dir == "" {
				dir = c.cfg.Exports.Path
			}
			path, err := export.Save(dir, period(year, month), rows)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, path)
			return nil
		},
	}
	m.register(cmd)
	cmd.Flags().StringVar(&dir, "dir", "", "Output directory (default exports.path)")
	return cmd
}

func (c *cli) backupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the sqlite database and prune old snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.store.SQLite == nil {
				return errSQLiteOnly
			}
			svc := database.NewBackupService(c.store.SQLite, c.cfg.Backup, c.logger)
			path, err := svc.PerformBackup(cmd.Context())
			if err != nil {
				return err
			}
			removed := svc.CleanupOldBackups()
			fmt.Fprintf(c.out, "%s (%d old backups removed)\n", path, removed)
			return nil
		},
	}
}

func (c *cli) usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "List and seed users",
	}

	ls := &cobra.Command{
		Use:   "ls",
		Short: "List known users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			users, err := c.calendar.Users(cmd.Context(), c.session())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tEMAIL")
			for _, u := range users {
				fmt.Fprintf(tw, "%s\t%s\n", u.ID, u.Email)
			}
			return tw.Flush()
		},
	}

	var admin bool
	add := &cobra.Command{
		Use:   "add ID EMAIL",
		Short: "Create or update a user; --admin needs the sqlite backend",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if admin && c.store.SQLite == nil {
				return errSQLiteOnly
			}
			user := &models.User{ID: args[0], Email: strings.ToLower(strings.TrimSpace(args[1]))}
			if err := c.store.UpsertUser(cmd.Context(), user); err != nil {
				return err
			}
			if admin {
				if err := c.store.SQLite.SetRole(cmd.Context(), user.ID, models.RoleAdmin); err != nil {
					return err
				}
			}
			fmt.Fprintf(c.out, "user %s saved\n", user.ID)
			return nil
		},
	}
	add.Flags().BoolVar(&admin, "admin", false, "Grant the admin role")

	cmd.AddCommand(ls, add)
	return cmd
}

// monthFlags are --year/--month, defaulting to the current month in the
// booking timezone.
type monthFlags struct {
	year  int
	month int
}

func (m *monthFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&m.year, "year", 0, "Year (default current)")
	cmd.Flags().IntVar(&m.month, "month", 0, "Month 1-12 (default current)")
}

func (m *monthFlags) resolve(c *cli) (int, time.Month, error) {
	year, month := c.calendar.CurrentMonth()
	if m.year != 0 {
		year = m.year
	}
	if m.month != 0 {
		if m.month < 1 || m.month > 12 {
			return 0, 0, fmt.Errorf("month %d out of range", m.month)
		}
		month = time.Month(m.month)
	}
	return year, month, nil
}

func period(year int, month time.Month) string {
	return fmt.Sprintf("%04d-%02d", year, int(month))
}
