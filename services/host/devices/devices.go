// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package devices assembles the per-device executors from config. A
// Host owns up to four devices, one shared tree cache and one shared
// task runner; each device carries its controller registry plus the
// navigation and exploration executors bound to it.
package devices

import (
	"context"
	"fmt"

	"github.com/AleutianAI/DeviceLab/pkg/logging"
	"github.com/AleutianAI/DeviceLab/services/host/cache"
	"github.com/AleutianAI/DeviceLab/services/host/config"
	"github.com/AleutianAI/DeviceLab/services/host/controllers"
	"github.com/AleutianAI/DeviceLab/services/host/exploration"
	"github.com/AleutianAI/DeviceLab/services/host/navigation"
	"github.com/AleutianAI/DeviceLab/services/host/planner"
	"github.com/AleutianAI/DeviceLab/services/host/store"
	"github.com/AleutianAI/DeviceLab/services/host/tasks"
)

// ErrDeviceNotFound is returned for unknown device ids.
var ErrDeviceNotFound = fmt.Errorf("devices: device not found")

// Device is one configured device with its controllers and executors.
type Device struct {
	ID    string
	Name  string
	Model string

	Controls *controllers.Registry
	Nav      *navigation.Executor
	Explore  *exploration.Executor
}

// RunScript executes a named script through the device's desktop
// controller.
func (d *Device) RunScript(ctx context.Context, scriptName string, params map[string]any) (string, error) {
	desktop := d.Controls.Desktop()
	if desktop == nil {
		return "", fmt.Errorf("devices: device %s has no desktop controller", d.ID)
	}
	args := make([]string, 0, len(params))
	for key, value := range params {
		args = append(args, fmt.Sprintf("--%s=%v", key, value))
	}
	return desktop.Execute(ctx, scriptName, args)
}

// Capabilities summarizes the device for the health endpoint.
func (d *Device) Capabilities() []string {
	kinds := d.Controls.Capabilities()
	out := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		out = append(out, string(kind))
	}
	return out
}

// Host is the assembled host service state.
type Host struct {
	Name   string
	Cache  *cache.TreeCache
	Runner *tasks.Runner
	Store  store.NavigationStore

	devices map[string]*Device
	order   []string
	log     *logging.Logger
}

// NewHost builds every configured device. Devices whose controllers
// all fail to construct still exist; they just answer with capability
// errors at execution time.
func NewHost(cfg *config.HostConfig, st store.NavigationStore, objects store.ObjectStore, pl planner.Planner, log *logging.Logger) *Host {
	h := &Host{
		Name:    cfg.Name,
		Cache:   cache.NewTreeCache(st),
		Runner:  tasks.NewRunner(log, cfg.CallbackURL),
		Store:   st,
		devices: make(map[string]*Device),
		log:     log,
	}

	for _, dc := range cfg.Devices {
		registry := controllers.BuildRegistry(dc.ID, dc.Model, dc.ControllerConfigs())
		nav := navigation.NewExecutor(dc.ID, registry, st, h.Cache, h.Runner, log)
		engine := exploration.NewEngine(registry, objects, pl, dc.Model, log)

		device := &Device{
			ID:       dc.ID,
			Name:     dc.Name,
			Model:    dc.Model,
			Controls: registry,
			Nav:      nav,
			Explore:  exploration.NewExecutor(dc.ID, st, h.Cache, nav, engine, log),
		}
		h.devices[dc.ID] = device
		h.order = append(h.order, dc.ID)
		log.Info("device assembled",
			"device_id", dc.ID, "name", dc.Name, "model", dc.Model,
			"capabilities", device.Capabilities())
	}
	return h
}

// Device returns the device with the given id.
func (h *Host) Device(id string) (*Device, error) {
	if d, ok := h.devices[id]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
}

// Devices returns every device in configuration order.
func (h *Host) Devices() []*Device {
	out := make([]*Device, 0, len(h.order))
	for _, id := range h.order {
		out = append(out, h.devices[id])
	}
	return out
}
