/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/simkit/rollout-engine/pkg/config"
	"github.com/simkit/rollout-engine/pkg/pool"
	"github.com/simkit/rollout-engine/pkg/sim"
)

var benchActors int
var benchSteps int
var benchType string
var benchSeed int64

// benchCmd represents the bench command
var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "measure pool step throughput with synthetic actors",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		entries := make([]pool.Entry, 0, benchActors)
		for i := 0; i < benchActors; i++ {
			ac := &config.ActorConfig{
				Name: fmt.Sprintf("bench-%d", i),
				Type: benchType,
			}
			entries = append(entries, pool.Entry{
				Name: ac.Name,
				Constructor: func(ctx context.Context, name string) (sim.Actor, error) {
					return sim.New(ctx, name, ac)
				},
			})
		}
		p, err := pool.New(ctx, entries)
		if err != nil {
			return err
		}
		defer p.Close()

		if _, err = p.Seed(ctx, []int64{benchSeed}); err != nil {
			return err
		}
		specs, err := p.GetSpecs(ctx)
		if err != nil {
			return err
		}
		obs, err := p.Reset(ctx)
		if err != nil {
			return err
		}

		names := p.Names()
		act := int64(specs.Action.Low)
		start := time.Now()
		for s := 0; s < benchSteps; s++ {
			actions := make(map[string]sim.Action, len(names))
			for i, name := range names {
				a := sim.Action{}
				for agent := range obs[i] {
					a[agent] = act
				}
				actions[name] = a
			}
			batch, err := p.Step(ctx, actions)
			if err != nil {
				return err
			}
			obs = batch.Observations
		}
		elapsed := time.Since(start)
		total := benchSteps * len(names)
		fmt.Printf("%d steps across %d actor(s) in %s: %.1f steps/sec\n",
			total, len(names), elapsed, float64(total)/elapsed.Seconds())
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(benchCmd)
	benchCmd.Flags().IntVarP(&benchActors, "actors", "n", 4, "number of pool workers")
	benchCmd.Flags().IntVarP(&benchSteps, "steps", "s", 1000, "batched steps to run")
	benchCmd.Flags().StringVarP(&benchType, "type", "t", "noop", "actor type")
	benchCmd.Flags().Int64Var(&benchSeed, "seed", 1, "seed broadcast to all actors")
}
