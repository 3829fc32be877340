/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/simkit/rollout-engine/pkg/config"
	"github.com/simkit/rollout-engine/pkg/sim"
)

var actorType string

// actorSpecsCmd represents the specs command
var actorSpecsCmd = &cobra.Command{
	Use:   "specs",
	Short: "print the observation and action specs of an actor type",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := sim.New(ctx, "probe", &config.ActorConfig{
			Name: "probe",
			Type: actorType,
		})
		if err != nil {
			return err
		}
		defer a.Close()
		specs, err := a.Specs(ctx)
		if err != nil {
			return err
		}
		var b []byte
		switch format {
		case "yaml":
			b, err = yaml.Marshal(specs)
		default:
			b, err = json.MarshalIndent(specs, "", "  ")
		}
		if err != nil {
			return err
		}
		fmt.Println(string(b))
		return nil
	},
	SilenceUsage: true,
}

func init() {
	actorCmd.AddCommand(actorSpecsCmd)
	actorSpecsCmd.Flags().StringVarP(&actorType, "type", "t", "noop", "actor type")
}
