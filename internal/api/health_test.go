package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/apiforge-ai/apiforge/internal/domain"
)

func TestDependenciesValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Dependencies)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*Dependencies) {},
		},
		{
			name:    "missing logger",
			mutate:  func(d *Dependencies) { d.Logger = nil },
			wantErr: "logger",
		},
		{
			name:    "missing registry",
			mutate:  func(d *Dependencies) { d.Registry = nil },
			wantErr: "registry",
		},
		{
			name:    "missing store",
			mutate:  func(d *Dependencies) { d.Store = nil },
			wantErr: "store",
		},
		{
			name:    "missing upstream",
			mutate:  func(d *Dependencies) { d.Upstream = nil },
			wantErr: "upstream",
		},
		{
			name:    "missing telemetry",
			mutate:  func(d *Dependencies) { d.Telemetry = nil },
			wantErr: "telemetry",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			deps := testDeps(t)
			tc.mutate(&deps)

			err := deps.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestDispatchTelemetryAfterRecordedCall(t *testing.T) {
	t.Parallel()

	deps := testDeps(t)
	id := deployTestDocument(t, deps)

	latency := 25 * time.Millisecond
	deps.Telemetry.Record(id, domain.DispatchStatusOK, &latency)

	health, err := deps.Telemetry.Status(id)
	require.NoError(t, err)
	require.Equal(t, domain.DispatchStatusOK, health.Status)
}
