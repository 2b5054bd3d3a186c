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
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// tapoPower switches a Tapo smart plug feeding the device.
type tapoPower struct {
	deviceID string
	plugIP   string
	username string
	password string
	client   *http.Client
}

func newTapoPower(deviceID string, params map[string]any) (*tapoPower, error) {
	plugIP, _ := params["power_ip"].(string)
	if plugIP == "" {
		return nil, fmt.Errorf("tapo power requires power_ip")
	}
	username, _ := params["power_username"].(string)
	password, _ := params["power_password"].(string)
	return &tapoPower{
		deviceID: deviceID,
		plugIP:   plugIP,
		username: username,
		password: password,
		client:   &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (t *tapoPower) Kind() Kind             { return KindPower }
func (t *tapoPower) Implementation() string { return ImplTapo }

func (t *tapoPower) PowerOn(ctx context.Context) error {
	return t.setState(ctx, true)
}

func (t *tapoPower) PowerOff(ctx context.Context) error {
	return t.setState(ctx, false)
}

func (t *tapoPower) PowerStatus(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("http://%s/status", t.plugIP), nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(t.username, t.password)
	resp, err := t.client.Do(req)
	if err != nil {
		return "unknown", fmt.Errorf("tapo status failed: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		DeviceOn bool `json:"device_on"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "unknown", fmt.Errorf("tapo status decode failed: %w", err)
	}
	if body.DeviceOn {
		return "on", nil
	}
	return "off", nil
}

func (t *tapoPower) setState(ctx context.Context, on bool) error {
	payload := fmt.Sprintf(`{"device_on":%t}`, on)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("http://%s/set_device_info", t.plugIP),
		strings.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(t.username, t.password)
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("tapo set state failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("tapo set state returned %d", resp.StatusCode)
	}
	return nil
}

// AvailableActions implements ActionCatalog.
func (t *tapoPower) AvailableActions() map[string][]string {
	return map[string][]string{"power": {"power_on", "power_off", "power_status"}}
}
