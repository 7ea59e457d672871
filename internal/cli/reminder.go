package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"snusstats/internal/reminder"
)

var reminderCmd = &cobra.Command{
	Use:   "reminder",
	Short: "Manage reminder settings",
}

var reminderEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Turn reminders on (checks the delivery channel first)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withScheduler(func(ctx context.Context, s *reminder.Scheduler) error {
			if err := s.SetEnabled(ctx, true); err != nil {
				return err
			}
			fmt.Println("reminders enabled")
			return nil
		})
	},
}

var reminderDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Turn reminders off and cancel everything pending",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withScheduler(func(ctx context.Context, s *reminder.Scheduler) error {
			if err := s.SetEnabled(ctx, false); err != nil {
				return err
			}
			fmt.Println("reminders disabled")
			return nil
		})
	},
}

var reminderModeCmd = &cobra.Command{
	Use:   "mode <single|interval>",
	Short: "Switch between a one-shot and a recurring schedule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, ok := reminder.ParseMode(args[0])
		if !ok {
			return fmt.Errorf("unknown mode %q (want single or interval)", args[0])
		}
		return withScheduler(func(ctx context.Context, s *reminder.Scheduler) error {
			if err := s.SetMode(ctx, mode); err != nil {
				return err
			}
			fmt.Printf("mode set to %s\n", mode)
			return nil
		})
	},
}

var reminderTimeCmd = &cobra.Command{
	Use:   "time <HH:MM>",
	Short: "Set the one-shot reminder time of day",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hour, minute, err := parseHHMM(args[0])
		if err != nil {
			return err
		}
		return withScheduler(func(ctx context.Context, s *reminder.Scheduler) error {
			fireAt, err := s.SetSingleTime(ctx, hour, minute)
			if err != nil {
				return err
			}
			fmt.Printf("next reminder: %s\n", fireAt.Format("Mon 15:04"))
			return nil
		})
	},
}

var reminderIntervalCmd = &cobra.Command{
	Use:   "interval <hours>",
	Short: "Set the recurring reminder spacing (1-12 hours)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hours, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid hours %q", args[0])
		}
		return withScheduler(func(ctx context.Context, s *reminder.Scheduler) error {
			if err := s.SetIntervalHours(ctx, hours); err != nil {
				return err
			}
			fmt.Printf("reminders every %dh (%d per day)\n", hours, 24/hours)
			return nil
		})
	},
}

// withScheduler runs one settings operation against the persisted state.
// The serve daemon re-derives its pending set from the same store on
// startup, on every firing and on the daily re-prime.
func withScheduler(fn func(ctx context.Context, s *reminder.Scheduler) error) error {
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
	return fn(ctx, s)
}

func parseHHMM(s string) (hour, minute int, err error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q (want HH:MM)", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q (want HH:MM)", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q (want HH:MM)", s)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("time %q out of range", s)
	}
	return hour, minute, nil
}

func init() {
	reminderCmd.AddCommand(
		reminderEnableCmd,
		reminderDisableCmd,
		reminderModeCmd,
		reminderTimeCmd,
		reminderIntervalCmd,
	)
}
