package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateType(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "note", false},
		{"with separators", "app.task-list_v2", false},
		{"empty", "", true},
		{"uppercase", "Note", true},
		{"starts with digit", "1note", true},
		{"space", "my note", true},
		{"too long", "a" + strings.Repeat("b", 64), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateType(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"uuid", "6f1c2a6e-3b7a-4b8e-9a51-2c1f0d9e8b7a", false},
		{"custom", "visits:home", false},
		{"empty", "", true},
		{"space", "a b", true},
		{"newline", "a\nb", true},
		{"too long", strings.Repeat("x", MaxIDLen+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateID(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
