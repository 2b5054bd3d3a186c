// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package exploration

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanNodeName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Live TV", "live_tv"},
		{"  Settings  ", "settings"},
		{"Películas", "peliculas"},
		{"Fernsehen & Mehr", "fernsehen_mehr"},
		{"Search&amp;Find", "search_find"},
		{"Home Button", "home"},
		{"Apps Tab", "apps"},
		{"My   Stuff!!!", "my_stuff"},
		{"___", ""},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CleanNodeName(tc.in), "input %q", tc.in)
	}
}

func TestCleanNodeNames_DedupesAndDropsEmpty(t *testing.T) {
	got := CleanNodeNames([]string{"Live TV", "live tv", "!!!", "Settings"})
	assert.Equal(t, []string{"live_tv", "settings"}, got)
}
