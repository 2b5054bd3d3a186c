// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// devicelab is the operator CLI for a running host service: device
// inventory, navigation runs and exploration cleanup from a terminal
// instead of raw curl.
package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Version is stamped by the build.
var Version = "dev"

// Config is the optional devicelab.yaml next to the binary or in the
// working directory. Flags override file values.
type Config struct {
	HostURL  string `yaml:"host_url"`
	TeamID   string `yaml:"team_id"`
	DeviceID string `yaml:"device_id"`
}

var config Config

var rootCmd = &cobra.Command{
	Use:   "devicelab",
	Short: "Operator CLI for the DeviceLab host service",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func init() {
	rootCmd.PersistentFlags().String("host", "", "host service base URL")
	rootCmd.PersistentFlags().String("team", "", "team id for tenant-scoped calls")
	rootCmd.PersistentFlags().String("device", "", "device id")

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		// The config file is optional; flags or defaults cover the rest.
		if raw, err := os.ReadFile("devicelab.yaml"); err == nil {
			if err := yaml.Unmarshal(raw, &config); err != nil {
				log.Fatalf("Error parsing devicelab.yaml: %v", err)
			}
		}
		if v, _ := cmd.Flags().GetString("host"); v != "" {
			config.HostURL = v
		}
		if v, _ := cmd.Flags().GetString("team"); v != "" {
			config.TeamID = v
		}
		if v, _ := cmd.Flags().GetString("device"); v != "" {
			config.DeviceID = v
		}
		if config.HostURL == "" {
			config.HostURL = "http://localhost:6109"
		}
	}

	rootCmd.AddCommand(versionCmd, healthCmd, navigateCmd, statusCmd, cleanupCmd)
}
