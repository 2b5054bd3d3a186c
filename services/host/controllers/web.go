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
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// hostBrowser is the one Chrome process shared by every web controller
// on this host. Launched lazily on first Connect, torn down on
// Disconnect of the last controller.
var hostBrowser struct {
	mu       sync.Mutex
	browser  *rod.Browser
	refCount int
}

// rodWeb automates a browser page over the DevTools protocol.
type rodWeb struct {
	deviceID    string
	browserPath string
	headless    bool

	mu   sync.Mutex
	page *rod.Page
}

func newRodWeb(deviceID string, params map[string]any) (*rodWeb, error) {
	browserPath, _ := params["browser_path"].(string)
	headless := true
	if h, ok := params["headless"].(bool); ok {
		headless = h
	}
	return &rodWeb{deviceID: deviceID, browserPath: browserPath, headless: headless}, nil
}

func (w *rodWeb) Kind() Kind             { return KindWeb }
func (w *rodWeb) Implementation() string { return ImplPlaywright }

// Connect attaches this controller to the shared browser, launching
// it if needed, and opens a fresh page.
func (w *rodWeb) Connect(ctx context.Context) error {
	hostBrowser.mu.Lock()
	defer hostBrowser.mu.Unlock()

	if hostBrowser.browser == nil {
		launch := launcher.New().Headless(w.headless)
		if w.browserPath != "" {
			launch = launch.Bin(w.browserPath)
		}
		controlURL, err := launch.Launch()
		if err != nil {
			return fmt.Errorf("launch browser: %w", err)
		}
		browser := rod.New().ControlURL(controlURL).Context(ctx)
		if err := browser.Connect(); err != nil {
			return fmt.Errorf("connect to browser: %w", err)
		}
		hostBrowser.browser = browser
		slog.Info("Shared browser launched", "control_url", controlURL)
	}

	page, err := hostBrowser.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}

	w.mu.Lock()
	w.page = page
	w.mu.Unlock()
	hostBrowser.refCount++
	return nil
}

// Disconnect closes this controller's page and, when it was the last
// one, the shared browser.
func (w *rodWeb) Disconnect() error {
	w.mu.Lock()
	if w.page != nil {
		_ = w.page.Close()
		w.page = nil
	}
	w.mu.Unlock()

	hostBrowser.mu.Lock()
	defer hostBrowser.mu.Unlock()
	if hostBrowser.refCount > 0 {
		hostBrowser.refCount--
	}
	if hostBrowser.refCount == 0 && hostBrowser.browser != nil {
		err := hostBrowser.browser.Close()
		hostBrowser.browser = nil
		return err
	}
	return nil
}

func (w *rodWeb) currentPage() (*rod.Page, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.page == nil {
		return nil, fmt.Errorf("web controller for %s is not connected", w.deviceID)
	}
	return w.page, nil
}

// Navigate opens a URL and waits for load.
func (w *rodWeb) Navigate(ctx context.Context, url string) error {
	page, err := w.currentPage()
	if err != nil {
		return err
	}
	if err := page.Context(ctx).Navigate(url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return page.Context(ctx).WaitLoad()
}

// ClickElement clicks by CSS selector, or by visible text when the
// target does not look like a selector.
func (w *rodWeb) ClickElement(ctx context.Context, target string) error {
	page, err := w.currentPage()
	if err != nil {
		return err
	}

	var el *rod.Element
	if looksLikeSelector(target) {
		el, err = page.Context(ctx).Element(target)
	} else {
		el, err = page.Context(ctx).ElementR("*", "^"+regexpQuote(target)+"$")
	}
	if err != nil {
		return fmt.Errorf("element %q not found: %w", target, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click %q: %w", target, err)
	}
	return nil
}

// DumpElements returns a text listing of the page's interactive
// elements (tag, text, selector hints).
func (w *rodWeb) DumpElements(ctx context.Context) (string, error) {
	page, err := w.currentPage()
	if err != nil {
		return "", err
	}
	res, err := page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS: `() => {
			const rows = [];
			document.querySelectorAll('a,button,[role=button],input,[onclick]').forEach(el => {
				const text = (el.innerText || el.value || '').trim().slice(0, 80);
				if (text) rows.push(el.tagName.toLowerCase() + '\t' + text);
			});
			return rows.join('\n');
		}`,
	})
	if err != nil {
		return "", fmt.Errorf("dump elements: %w", err)
	}
	return res.Value.Str(), nil
}

// AvailableActions implements ActionCatalog.
func (w *rodWeb) AvailableActions() map[string][]string {
	return map[string][]string{
		"web": {"navigate", "click_element", "dump_elements"},
	}
}

func looksLikeSelector(target string) bool {
	return strings.ContainsAny(target, "#.[>:")
}

func regexpQuote(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(`\.+*?()|[]{}^$`, r) {
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
