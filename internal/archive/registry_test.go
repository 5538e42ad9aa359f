// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package archive

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArchiveIDFromFilename(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		file string
		want string
	}{
		{"simple", "wikipedia_en_all_nopic.zim", "wikipedia_en_all_nopic"},
		{"dated catalog name", "wikipedia_en_all_nopic_2024-01.zim", "wikipedia_en_all_nopic_2024-01"},
		{"no extension preserved only strips zim", "devdocs_en_go.zim", "devdocs_en_go"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, archiveIDFromFilename(tt.file))
		})
	}
}
