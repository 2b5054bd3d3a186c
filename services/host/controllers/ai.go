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
	"os"

	"github.com/sashabaranov/go-openai"
)

// aiAgent is the device's ai-kind controller: a thin chat-completion
// surface used for ad-hoc AI tasks against device state.
type aiAgent struct {
	deviceID    string
	deviceModel string
	client      *openai.Client
	model       string
}

func newAIAgent(deviceID, deviceModel string, params map[string]any) *aiAgent {
	model, _ := params["model"].(string)
	if model == "" {
		model = os.Getenv("OPENAI_MODEL")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	var client *openai.Client
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		client = openai.NewClient(apiKey)
	} else {
		slog.Warn("OPENAI_API_KEY not set; ai controller will reject tasks",
			"device_id", deviceID)
	}
	return &aiAgent{
		deviceID:    deviceID,
		deviceModel: deviceModel,
		client:      client,
		model:       model,
	}
}

func (a *aiAgent) Kind() Kind             { return KindAI }
func (a *aiAgent) Implementation() string { return ImplAIAgent }

func (a *aiAgent) ExecuteTask(ctx context.Context, prompt string) (string, error) {
	if a.client == nil {
		return "", fmt.Errorf("ai controller for %s has no API key", a.deviceID)
	}
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: fmt.Sprintf(
					"You are a device-automation assistant for a %s device.", a.deviceModel),
			},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("ai task failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("ai task returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// AvailableActions implements ActionCatalog.
func (a *aiAgent) AvailableActions() map[string][]string {
	return map[string][]string{"ai": {"execute_task"}}
}
