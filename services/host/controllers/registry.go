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
	"log/slog"
)

// ControllerConfig is one entry of a device's flat controller
// configuration: a kind, an implementation name and free-form params.
type ControllerConfig struct {
	Type           Kind           `json:"type"`
	Implementation string         `json:"implementation"`
	Params         map[string]any `json:"params,omitempty"`
}

// Registry is the per-device typed bag of controllers.
type Registry struct {
	deviceID    string
	deviceModel string
	controllers map[Kind][]Controller
}

// BuildRegistry constructs a device's controllers from its flat
// configuration. Construction order matters: av first (verification
// controllers need it), then the order-independent kinds, then
// verification last. Unknown {type, implementation} pairs log a
// warning and yield no controller; everything else keeps building.
func BuildRegistry(deviceID, deviceModel string, configs []ControllerConfig) *Registry {
	r := &Registry{
		deviceID:    deviceID,
		deviceModel: deviceModel,
		controllers: make(map[Kind][]Controller),
	}

	// Pass 1: av.
	for _, cfg := range configs {
		if cfg.Type != KindAV {
			continue
		}
		r.build(cfg, nil)
	}

	// Pass 2: everything except av and verification.
	for _, cfg := range configs {
		if cfg.Type == KindAV || cfg.Type == KindVerification {
			continue
		}
		r.build(cfg, nil)
	}

	// Pass 3: verification, injecting the device's av controller.
	av := r.AV()
	for _, cfg := range configs {
		if cfg.Type != KindVerification {
			continue
		}
		r.build(cfg, av)
	}

	return r
}

func (r *Registry) build(cfg ControllerConfig, av AVController) {
	ctrl, err := newController(r.deviceID, r.deviceModel, cfg, av)
	if err != nil {
		slog.Error("Controller construction failed",
			"device_id", r.deviceID, "type", cfg.Type,
			"implementation", cfg.Implementation, "error", err)
		return
	}
	if ctrl == nil {
		slog.Warn("Unknown controller configuration skipped",
			"device_id", r.deviceID, "type", cfg.Type,
			"implementation", cfg.Implementation)
		return
	}
	r.controllers[cfg.Type] = append(r.controllers[cfg.Type], ctrl)
}

// newController dispatches a config entry to the variant constructor.
// Returns (nil, nil) for unknown pairs.
func newController(deviceID, deviceModel string, cfg ControllerConfig, av AVController) (Controller, error) {
	switch cfg.Type {
	case KindAV:
		switch cfg.Implementation {
		case ImplHDMIStream, ImplVNCStream, ImplCameraStream:
			return newStreamAV(deviceID, cfg.Implementation, cfg.Params)
		}
	case KindRemote:
		switch cfg.Implementation {
		case ImplAndroidMobile, ImplAndroidTV:
			return newADBRemote(deviceID, cfg.Implementation, cfg.Params)
		case ImplIRRemote:
			return newIRRemote(deviceID, cfg.Params)
		case ImplAppium:
			return newAppiumRemote(deviceID, cfg.Params)
		}
	case KindVerification:
		switch cfg.Implementation {
		case ImplVerifyImage, ImplVerifyText, ImplVerifyVideo, ImplVerifyAudio:
			// These variants verify against captured frames and need
			// the device's av controller.
			return newAVVerification(cfg.Implementation, deviceModel, av)
		case ImplVerifyADB:
			return newADBVerification(deviceID, deviceModel, cfg.Params)
		case ImplVerifyAppium:
			return newAppiumVerification(deviceID, deviceModel, cfg.Params)
		}
	case KindWeb:
		if cfg.Implementation == ImplPlaywright {
			return newRodWeb(deviceID, cfg.Params)
		}
	case KindPower:
		if cfg.Implementation == ImplTapo {
			return newTapoPower(deviceID, cfg.Params)
		}
	case KindDesktop:
		if cfg.Implementation == ImplBash {
			return newBashDesktop(deviceID), nil
		}
	case KindAI:
		if cfg.Implementation == ImplAIAgent {
			return newAIAgent(deviceID, deviceModel, cfg.Params), nil
		}
	}
	return nil, nil
}

// Get returns the first controller of a kind, or nil.
func (r *Registry) Get(kind Kind) Controller {
	if list := r.controllers[kind]; len(list) > 0 {
		return list[0]
	}
	return nil
}

// GetAll returns every controller of a kind.
func (r *Registry) GetAll(kind Kind) []Controller {
	return r.controllers[kind]
}

// Capabilities returns the kinds with at least one controller.
func (r *Registry) Capabilities() []Kind {
	kinds := make([]Kind, 0, len(r.controllers))
	for kind, list := range r.controllers {
		if len(list) > 0 {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

// HasCapability reports whether any controller of the kind exists.
func (r *Registry) HasCapability(kind Kind) bool {
	return len(r.controllers[kind]) > 0
}

// Remote returns the device's first remote controller, or nil.
func (r *Registry) Remote() RemoteController {
	if c, ok := r.Get(KindRemote).(RemoteController); ok {
		return c
	}
	return nil
}

// AV returns the device's first av controller, or nil.
func (r *Registry) AV() AVController {
	if c, ok := r.Get(KindAV).(AVController); ok {
		return c
	}
	return nil
}

// Web returns the device's first web controller, or nil.
func (r *Registry) Web() WebController {
	if c, ok := r.Get(KindWeb).(WebController); ok {
		return c
	}
	return nil
}

// Power returns the device's first power controller, or nil.
func (r *Registry) Power() PowerController {
	if c, ok := r.Get(KindPower).(PowerController); ok {
		return c
	}
	return nil
}

// Desktop returns the device's first desktop controller, or nil.
func (r *Registry) Desktop() DesktopController {
	if c, ok := r.Get(KindDesktop).(DesktopController); ok {
		return c
	}
	return nil
}

// AI returns the device's first ai controller, or nil.
func (r *Registry) AI() AIController {
	if c, ok := r.Get(KindAI).(AIController); ok {
		return c
	}
	return nil
}

// Verifications returns every verification controller.
func (r *Registry) Verifications() []VerificationController {
	list := r.controllers[KindVerification]
	out := make([]VerificationController, 0, len(list))
	for _, c := range list {
		if vc, ok := c.(VerificationController); ok {
			out = append(out, vc)
		}
	}
	return out
}

// VerificationFor returns the verification controller matching a
// verification's type, or nil.
func (r *Registry) VerificationFor(verificationType string) VerificationController {
	for _, vc := range r.Verifications() {
		if vc.Implementation() == verificationType {
			return vc
		}
	}
	return nil
}

// AvailableActionTypes aggregates the self-describing action
// catalogues of every controller, keyed by category.
func (r *Registry) AvailableActionTypes() map[string][]string {
	out := make(map[string][]string)
	for _, list := range r.controllers {
		for _, c := range list {
			catalog, ok := c.(ActionCatalog)
			if !ok {
				continue
			}
			for category, commands := range catalog.AvailableActions() {
				out[category] = append(out[category], commands...)
			}
		}
	}
	return out
}

// AvailableVerificationTypes aggregates the verification catalogues
// of every controller, keyed by category.
func (r *Registry) AvailableVerificationTypes() map[string][]string {
	out := make(map[string][]string)
	for _, list := range r.controllers {
		for _, c := range list {
			catalog, ok := c.(VerificationCatalog)
			if !ok {
				continue
			}
			for category, commands := range catalog.AvailableVerifications() {
				out[category] = append(out[category], commands...)
			}
		}
	}
	return out
}
