// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package controllers

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// allowedDesktopCommands is the closed set of commands the bash
// desktop controller will run. Anything else is rejected.
var allowedDesktopCommands = map[string]bool{
	"xdotool":     true,
	"wmctrl":      true,
	"systemctl":   true,
	"loginctl":    true,
	"xrandr":      true,
	"pactl":       true,
	"scrot":       true,
	"x11vnc":      true,
	"vncpasswd":   true,
	"killall":     true,
	"notify-send": true,
}

// bashDesktop executes whitelisted desktop commands on the host.
type bashDesktop struct {
	deviceID string
}

func newBashDesktop(deviceID string) *bashDesktop {
	return &bashDesktop{deviceID: deviceID}
}

func (b *bashDesktop) Kind() Kind             { return KindDesktop }
func (b *bashDesktop) Implementation() string { return ImplBash }

func (b *bashDesktop) Execute(ctx context.Context, command string, args []string) (string, error) {
	if !allowedDesktopCommands[command] {
		return "", fmt.Errorf("desktop command %q is not allowed", command)
	}

	ctx, cancel := context.WithTimeout(ctx, subprocessTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, command, args...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("desktop command %s failed: %w: %s", command, err, stderr.String())
	}
	return out.String(), nil
}

// AvailableActions implements ActionCatalog.
func (b *bashDesktop) AvailableActions() map[string][]string {
	return map[string][]string{"desktop": {"execute"}}
}
