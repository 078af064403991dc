// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/buslink/internal/config"
)

var showConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	Long: `Print the configuration after the config file and flag overrides are
applied. Without --config the defaults are printed, which makes a starting
point for a new config file:

  buslink config > buslink.yaml`,
	RunE: runShowConfig,
}

func init() {
	rootCmd.AddCommand(showConfigCmd)
}

func runShowConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out, err := config.Marshal(cfg)
	if err != nil {
		return err
	}
	fmt.Print(string(out))
	return nil
}
