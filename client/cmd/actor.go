/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/spf13/cobra"
)

// actorCmd represents the actor command
var actorCmd = &cobra.Command{
	Use:   "actor",
	Short: "inspect available actor types",
}

func init() {
	rootCmd.AddCommand(actorCmd)
}
