/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/simkit/rollout-engine/pkg/sim"
)

// actorTypesCmd represents the types command
var actorTypesCmd = &cobra.Command{
	Use:   "types",
	Short: "list registered actor types",
	Run: func(cmd *cobra.Command, args []string) {
		for _, t := range sim.Types() {
			fmt.Println(t)
		}
	},
}

func init() {
	actorCmd.AddCommand(actorTypesCmd)
}
