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
)

// configValidateCmd represents the validate command
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "load a config file and print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New(configFile)
		if err != nil {
			return err
		}
		var b []byte
		switch format {
		case "yaml":
			b, err = yaml.Marshal(cfg)
		default:
			b, err = json.MarshalIndent(cfg, "", "  ")
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
	configCmd.AddCommand(configValidateCmd)
}
