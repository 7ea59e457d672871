package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"snusstats/internal/reminder"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show reminder settings and the upcoming schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		s := a.Scheduler()
		if err := s.Load(ctx); err != nil {
			return err
		}
		snap := s.Snapshot()

		onOff := "off"
		if snap.Settings.Enabled {
			onOff = "on"
		}
		fmt.Printf("reminders: %s (mode %s)\n", onOff, snap.Settings.Mode)
		switch snap.Settings.Mode {
		case reminder.ModeSingle:
			if snap.Settings.HaveSingle {
				fmt.Printf("time of day: %02d:%02d\n", snap.Settings.SingleHour, snap.Settings.SingleMinute)
			} else {
				fmt.Println("time of day: not set")
			}
		case reminder.ModeInterval:
			fmt.Printf("interval: every %dh\n", snap.Settings.IntervalHours)
		}

		pending, err := a.Dispatcher().Pending(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("pending: %d\n", len(pending))
		for _, n := range pending {
			fmt.Printf("  #%d at %s\n", n.ID, n.FireAt.Format("Mon 15:04"))
		}

		counts, err := a.Journal().CountByDay(ctx, 7)
		if err != nil {
			return err
		}
		if len(counts) > 0 {
			fmt.Println("last 7 days:")
			for _, dc := range counts {
				fmt.Printf("  %s  %d\n", dc.Day, dc.Count)
			}
		}
		return nil
	},
}
