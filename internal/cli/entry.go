package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"snusstats/internal/journal"
)

var entryCmd = &cobra.Command{
	Use:   "entry",
	Short: "Manage journal entries",
}

var (
	addNote       string
	addPhoto      string
	addLat        float64
	addLon        float64
	addCompanions []string
	addAt         string
)

var entryAddCmd = &cobra.Command{
	Use:   "add <product>",
	Short: "Log a consumption event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e := journal.Entry{
			Product:    args[0],
			Note:       addNote,
			PhotoPath:  addPhoto,
			Companions: addCompanions,
		}
		if cmd.Flags().Changed("lat") != cmd.Flags().Changed("lon") {
			return fmt.Errorf("--lat and --lon must be given together")
		}
		if cmd.Flags().Changed("lat") {
			lat, lon := addLat, addLon
			e.Latitude, e.Longitude = &lat, &lon
		}
		if strings.TrimSpace(addAt) != "" {
			at, err := time.Parse(time.RFC3339, addAt)
			if err != nil {
				return fmt.Errorf("invalid --at %q (want RFC3339): %w", addAt, err)
			}
			e.ConsumedAt = at
		}

		return withJournal(func(ctx context.Context, st *journal.Store) error {
			saved, err := st.Insert(ctx, e)
			if err != nil {
				return err
			}
			fmt.Printf("logged %s (%s)\n", saved.Product, saved.ID)
			return nil
		})
	},
}

var (
	listLimit  int
	listOffset int
)

var entryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent entries, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withJournal(func(ctx context.Context, st *journal.Store) error {
			entries, err := st.Recent(ctx, listLimit, listOffset)
			if err != nil {
				return err
			}
			for _, e := range entries {
				line := fmt.Sprintf("%s  %-20s", e.ConsumedAt.Format("2006-01-02 15:04"), e.Product)
				if len(e.Companions) > 0 {
					line += "  with " + strings.Join(e.Companions, ", ")
				}
				if e.Latitude != nil && e.Longitude != nil {
					line += fmt.Sprintf("  @ %.4f,%.4f", *e.Latitude, *e.Longitude)
				}
				fmt.Println(line)
			}
			if len(entries) == 0 {
				fmt.Println("no entries")
			}
			return nil
		})
	},
}

var entryDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withJournal(func(ctx context.Context, st *journal.Store) error {
			if err := st.Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Println("deleted")
			return nil
		})
	},
}

func withJournal(fn func(ctx context.Context, st *journal.Store) error) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return fn(ctx, a.Journal())
}

func init() {
	entryAddCmd.Flags().StringVar(&addNote, "note", "", "free-form note")
	entryAddCmd.Flags().StringVar(&addPhoto, "photo", "", "path to a photo file")
	entryAddCmd.Flags().Float64Var(&addLat, "lat", 0, "latitude")
	entryAddCmd.Flags().Float64Var(&addLon, "lon", 0, "longitude")
	entryAddCmd.Flags().StringSliceVar(&addCompanions, "with", nil, "companion names")
	entryAddCmd.Flags().StringVar(&addAt, "at", "", "consumed-at timestamp (RFC3339, default now)")

	entryListCmd.Flags().IntVar(&listLimit, "limit", 20, "max entries")
	entryListCmd.Flags().IntVar(&listOffset, "offset", 0, "skip entries")

	entryCmd.AddCommand(entryAddCmd, entryListCmd, entryDeleteCmd)
}
