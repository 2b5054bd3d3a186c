// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package planner asks a vision-capable model to propose an
// exploration plan from a screenshot of the device's current screen.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/AleutianAI/DeviceLab/pkg/logging"
	"github.com/AleutianAI/DeviceLab/services/host/datatypes"
)

// PlanRequest carries everything the planner needs for one proposal.
type PlanRequest struct {
	ScreenshotURL  string
	DeviceModel    string
	Strategy       string
	OriginalPrompt string
}

// Planner proposes an exploration plan for a screen.
type Planner interface {
	PlanExploration(ctx context.Context, req PlanRequest) (*datatypes.ExplorationPlan, error)
}

// OpenAIPlanner implements Planner over the OpenAI chat API.
type OpenAIPlanner struct {
	client *openai.Client
	model  string
	log    *logging.Logger
}

// NewOpenAIPlanner creates a planner. model defaults to gpt-4o when
// empty.
func NewOpenAIPlanner(apiKey, model string, log *logging.Logger) (*OpenAIPlanner, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("planner: api key is required")
	}
	if model == "" {
		model = openai.GPT4o
	}
	return &OpenAIPlanner{
		client: openai.NewClient(apiKey),
		model:  model,
		log:    log,
	}, nil
}

const planSystemPrompt = `You analyse screenshots of device user interfaces and map their navigation structure.
Respond with a single JSON object and nothing else:
{
  "menu_type": "horizontal" | "vertical" | "grid" | "mixed",
  "lines": [["item", ...], ...],
  "items": ["item", ...],
  "items_left_of_home": ["item", ...],
  "strategy": "click_with_selectors" | "click_with_text" | "dpad_with_screenshot",
  "predicted_depth": <int>,
  "reasoning": "<short explanation>"
}
"lines" groups items by visual row. "items_left_of_home" lists menu items positioned left of the currently focused item, in order of distance. Omit it when not applicable.`

// PlanExploration sends the screenshot to the model and parses its
// JSON reply into a plan.
func (p *OpenAIPlanner) PlanExploration(ctx context.Context, req PlanRequest) (*datatypes.ExplorationPlan, error) {
	if req.ScreenshotURL == "" {
		return nil, fmt.Errorf("planner: screenshot url is required")
	}

	userText := fmt.Sprintf("Device model: %s. Preferred strategy: %s.", req.DeviceModel, req.Strategy)
	if req.OriginalPrompt != "" {
		userText += " Operator goal: " + req.OriginalPrompt
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: planSystemPrompt},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: userText},
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: req.ScreenshotURL},
					},
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("planner: completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("planner: empty completion")
	}

	plan, err := ParsePlan(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	p.log.Info("exploration plan received",
		"menu_type", plan.MenuType,
		"items", len(plan.Items),
		"predicted_depth", plan.PredictedDepth)
	return plan, nil
}

// ParsePlan decodes a model reply into a plan, tolerating markdown
// code fences around the JSON.
func ParsePlan(content string) (*datatypes.ExplorationPlan, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		if idx := strings.LastIndex(content, "```"); idx >= 0 {
			content = content[:idx]
		}
		content = strings.TrimSpace(content)
	}

	var plan datatypes.ExplorationPlan
	if err := json.Unmarshal([]byte(content), &plan); err != nil {
		return nil, fmt.Errorf("planner: malformed plan: %w", err)
	}
	if len(plan.Items) == 0 && len(plan.Lines) > 0 {
		for _, line := range plan.Lines {
			plan.Items = append(plan.Items, line...)
		}
	}
	if len(plan.Items) == 0 {
		return nil, fmt.Errorf("planner: plan contains no items")
	}
	return &plan, nil
}
