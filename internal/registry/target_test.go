package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(r *Registry)
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "freeform passes through unchanged",
			input: "ledger-store",
			want:  "ledger-store",
		},
		{
			name:  "alias resolves to its canonical target",
			setup: func(r *Registry) { _ = r.Alias("pg", "postgres-store") },
			input: "pg",
			want:  "postgres-store",
		},
		{
			name:  "unaliased input falls back case-insensitively",
			setup: func(r *Registry) { _ = r.Alias("pg", "postgres-store") },
			input: "POSTGRES-STORE",
			want:  "postgres-store",
		},
		{
			name:    "blank target is rejected",
			input:   "   ",
			wantErr: true,
		},
		{
			name:    "invalid characters are rejected",
			input:   "bad target!",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New()
			if tt.setup != nil {
				tt.setup(r)
			}
			got, err := r.Canonicalize(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAliasRejectsEmpty(t *testing.T) {
	r := New()
	assert.Error(t, r.Alias("", "canon"))
	assert.Error(t, r.Alias("alias", ""))
}
