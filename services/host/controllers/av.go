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
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// captureTimeout bounds one frame grab.
const captureTimeout = 15 * time.Second

// streamAV captures frames from a video stream (HDMI capture card,
// VNC proxy or camera) using the host's capture tooling.
type streamAV struct {
	deviceID    string
	impl        string
	streamPath  string
	capturePath string
}

func newStreamAV(deviceID, impl string, params map[string]any) (*streamAV, error) {
	streamPath, _ := params["video_stream_path"].(string)
	capturePath, _ := params["video_capture_path"].(string)
	if streamPath == "" {
		return nil, fmt.Errorf("%s av controller requires video_stream_path", impl)
	}
	if capturePath == "" {
		capturePath = os.TempDir()
	}
	return &streamAV{
		deviceID:    deviceID,
		impl:        impl,
		streamPath:  streamPath,
		capturePath: capturePath,
	}, nil
}

func (s *streamAV) Kind() Kind             { return KindAV }
func (s *streamAV) Implementation() string { return s.impl }
func (s *streamAV) StreamPath() string     { return s.streamPath }

// CaptureScreenshot grabs a single frame into the capture directory
// and returns the file path.
func (s *streamAV) CaptureScreenshot(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, captureTimeout)
	defer cancel()

	outPath := filepath.Join(s.capturePath,
		fmt.Sprintf("%s_%d.jpg", s.deviceID, time.Now().UnixMilli()))

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y", "-i", s.streamPath, "-frames:v", "1", "-q:v", "2", outPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("frame capture failed for %s: %w: %s",
			s.deviceID, err, stderr.String())
	}
	if _, err := os.Stat(outPath); err != nil {
		return "", fmt.Errorf("frame capture produced no file: %w", err)
	}
	return outPath, nil
}

// AvailableActions implements ActionCatalog.
func (s *streamAV) AvailableActions() map[string][]string {
	return map[string][]string{"av": {"capture_screenshot"}}
}
