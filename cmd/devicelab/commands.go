// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// pollInterval paces execution status polls during `navigate --wait`.
const pollInterval = 500 * time.Millisecond

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("devicelab", Version)
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show the host's status and device inventory",
	RunE: func(cmd *cobra.Command, args []string) error {
		var out map[string]any
		client := newHostClient(config.HostURL)
		if err := client.call(cmd.Context(), http.MethodGet, "/health", nil, nil, &out); err != nil {
			return err
		}
		return printJSON(out)
	},
}

var navigateCmd = &cobra.Command{
	Use:   "navigate <tree_id> <target_node>",
	Short: "Start a navigation and optionally wait for it to finish",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if config.DeviceID == "" {
			return fmt.Errorf("a device id is required (--device or devicelab.yaml)")
		}
		byLabel, _ := cmd.Flags().GetBool("by-label")
		wait, _ := cmd.Flags().GetBool("wait")

		body := map[string]any{"device_id": config.DeviceID}
		if byLabel {
			body["target_node_label"] = args[1]
		} else {
			body["target_node_id"] = args[1]
		}

		client := newHostClient(config.HostURL)
		var started struct {
			ExecutionID string `json:"execution_id"`
		}
		err := client.call(cmd.Context(), http.MethodPost,
			"/host/navigation/execute/"+url.PathEscape(args[0]), teamQuery(), body, &started)
		if err != nil {
			return err
		}
		fmt.Println("execution:", started.ExecutionID)

		if !wait {
			return nil
		}
		return waitForExecution(cmd.Context(), client, started.ExecutionID)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <execution_id>",
	Short: "Show one execution record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		record, err := fetchExecution(cmd.Context(), newHostClient(config.HostURL), args[0])
		if err != nil {
			return err
		}
		return printJSON(record)
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup <tree_id>",
	Short: "Remove temp exploration leftovers from a tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out map[string]any
		client := newHostClient(config.HostURL)
		err := client.call(cmd.Context(), http.MethodPost,
			"/host/ai-generation/cleanup-temp", teamQuery(),
			map[string]any{"tree_id": args[0], "device_id": config.DeviceID}, &out)
		if err != nil {
			return err
		}
		return printJSON(out)
	},
}

func init() {
	navigateCmd.Flags().Bool("by-label", false, "treat the target as a node label instead of an id")
	navigateCmd.Flags().Bool("wait", false, "poll until the execution finishes")
}

// executionView is the subset of the execution record the CLI shows.
type executionView struct {
	ExecutionID string `json:"execution_id"`
	Status      string `json:"status"`
	Progress    int    `json:"progress"`
	Message     string `json:"message,omitempty"`
	Error       string `json:"error,omitempty"`
}

func fetchExecution(ctx context.Context, client *hostClient, executionID string) (*executionView, error) {
	q := url.Values{}
	q.Set("device_id", config.DeviceID)
	var out struct {
		Execution executionView `json:"execution"`
	}
	err := client.call(ctx, http.MethodGet,
		"/host/navigation/execution/"+url.PathEscape(executionID)+"/status", q, nil, &out)
	if err != nil {
		return nil, err
	}
	return &out.Execution, nil
}

func waitForExecution(ctx context.Context, client *hostClient, executionID string) error {
	for {
		record, err := fetchExecution(ctx, client, executionID)
		if err != nil {
			return err
		}
		fmt.Printf("%s %d%% %s\n", record.Status, record.Progress, record.Message)
		switch record.Status {
		case "completed":
			return nil
		case "error":
			return fmt.Errorf("navigation failed: %s", record.Error)
		}

		select {
		case <-time.After(pollInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
