package domain

import (
	"strings"
	"testing"

	"github.com/reshetovitsme/tracker-bundle-bot/internal/shared/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLabels(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{raw: "", want: []string{}},
		{raw: "todo #bug", want: []string{"status:todo", "type:bug"}},
		{raw: "doing, area:ui; area:ui", want: []string{"status:in_progress", "area:ui"}},
		{raw: "DONE  #Feature", want: []string{"status:done", "type:feature"}},
		{raw: "status:todo todo", want: []string{"status:todo"}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := NormalizeLabels(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeLabelsRejectsUnknownStatus(t *testing.T) {
	_, err := NormalizeLabels("type:bug status:blocked")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidStatusLabel)
	assert.True(t, errors.IsValidation(err))
}

func TestValidateInterval(t *testing.T) {
	assert.NoError(t, ValidateInterval(1))
	assert.NoError(t, ValidateInterval(180))
	assert.ErrorIs(t, ValidateInterval(0), errors.ErrInvalidInterval)
	assert.ErrorIs(t, ValidateInterval(181), errors.ErrInvalidInterval)
}

func TestNormalizeGroupName(t *testing.T) {
	name, err := NormalizeGroupName("  bugs ")
	require.NoError(t, err)
	assert.Equal(t, "bugs", name)

	_, err = NormalizeGroupName("   ")
	assert.ErrorIs(t, err, errors.ErrInvalidGroupName)

	_, err = NormalizeGroupName(strings.Repeat("x", MaxGroupNameLen+1))
	assert.ErrorIs(t, err, errors.ErrInvalidGroupName)
}

func TestShortcutsIsACopy(t *testing.T) {
	shortcuts := Shortcuts()
	shortcuts["todo"] = "changed"
	assert.Equal(t, "status:todo", Shortcuts()["todo"])
}
