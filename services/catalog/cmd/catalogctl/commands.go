package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/animefan/services/catalog/internal/consistency"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the catalog schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		e, err := open(ctx, true)
		if err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
		defer e.Close()
		fmt.Println("Schema is up to date.")
		return nil
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run a full reconciliation sweep",
	Long:  `Recompute ratings and every derived counter for anime, studios, genres and users, correcting drift.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		e, err := open(ctx, false)
		if err != nil {
			return err
		}
		defer e.Close()

		rep, err := e.reconciler.Run(ctx)
		if err != nil {
			return fmt.Errorf("sweep failed: %w", err)
		}
		fmt.Printf("Anime: %d | Studios: %d | Genres: %d | Users: %d\n", rep.Anime, rep.Studios, rep.Genres, rep.Users)
		fmt.Printf("Corrections: %d | Failures: %d | Took: %s\n", rep.Corrections, rep.Failures, rep.Duration)
		return nil
	},
}

var recountGenresCmd = &cobra.Command{
	Use:   "recount-genres [name...]",
	Short: "Recount anime per genre",
	Long:  `Recount the named genres, or every genre when no name is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		e, err := open(ctx, false)
		if err != nil {
			return err
		}
		defer e.Close()

		if len(args) == 0 {
			n, err := e.counters.RecountAllGenres(ctx)
			if err != nil {
				return fmt.Errorf("failed to recount genres: %w", err)
			}
			fmt.Printf("Corrected %d genre counts.\n", n)
			return nil
		}
		e.counters.RecountGenres(ctx, args...)
		fmt.Printf("Recounted %d genres.\n", len(args))
		return nil
	},
}

var recomputeRatingCmd = &cobra.Command{
	Use:   "recompute-rating [anime-id]",
	Short: "Recompute one anime's rating from its reviews",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		e, err := open(ctx, false)
		if err != nil {
			return err
		}
		defer e.Close()

		rating, count, err := e.ratings.Recompute(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to recompute rating: %w", err)
		}
		fmt.Printf("Rating: %.2f from %d reviews\n", rating, count)
		return nil
	},
}

var repairCmd = &cobra.Command{
	Use:   "repair [anime|user|studio|genre] [id]",
	Short: "Recount one entity's derived values",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := consistency.Kind(args[0])
		if !kind.Valid() {
			return fmt.Errorf("invalid kind %q", args[0])
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()
		e, err := open(ctx, false)
		if err != nil {
			return err
		}
		defer e.Close()

		n, err := e.reconciler.Repair(ctx, kind, args[1])
		if err != nil {
			return fmt.Errorf("repair failed: %w", err)
		}
		fmt.Printf("Corrections: %d\n", n)
		return nil
	},
}
