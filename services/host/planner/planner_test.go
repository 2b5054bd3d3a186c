// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlan(t *testing.T) {
	plan, err := ParsePlan(`{
		"menu_type": "horizontal",
		"lines": [["Home", "Live TV", "Settings"]],
		"items": ["Home", "Live TV", "Settings"],
		"strategy": "dpad_with_screenshot",
		"predicted_depth": 2,
		"reasoning": "single horizontal strip"
	}`)
	require.NoError(t, err)
	assert.Equal(t, "horizontal", plan.MenuType)
	assert.Equal(t, []string{"Home", "Live TV", "Settings"}, plan.Items)
	assert.Equal(t, 2, plan.PredictedDepth)
}

func TestParsePlan_MarkdownFences(t *testing.T) {
	plan, err := ParsePlan("```json\n{\"menu_type\":\"vertical\",\"items\":[\"Search\"],\"lines\":[[\"Search\"]]}\n```")
	require.NoError(t, err)
	assert.Equal(t, "vertical", plan.MenuType)
	assert.Equal(t, []string{"Search"}, plan.Items)
}

func TestParsePlan_ItemsDerivedFromLines(t *testing.T) {
	plan, err := ParsePlan(`{"menu_type":"grid","lines":[["A","B"],["C"]]}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, plan.Items)
}

func TestParsePlan_Errors(t *testing.T) {
	_, err := ParsePlan("not json at all")
	assert.Error(t, err)

	_, err = ParsePlan(`{"menu_type":"horizontal"}`)
	assert.ErrorContains(t, err, "no items")
}
