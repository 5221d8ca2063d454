package api

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/apiforge-ai/apiforge/internal/domain"
	"github.com/apiforge-ai/apiforge/internal/endpoint"
	apierrors "github.com/apiforge-ai/apiforge/internal/errors"
	"github.com/apiforge-ai/apiforge/internal/registry"
	"github.com/apiforge-ai/apiforge/internal/store"
	"github.com/apiforge-ai/apiforge/internal/upstream"
)

// mockDispatchMonitor implements contracts.DispatchMonitor for handler tests.
type mockDispatchMonitor struct {
	mu      sync.Mutex
	tracked map[string]domain.DispatchHealth
}

func newMockDispatchMonitor() *mockDispatchMonitor {
	return &mockDispatchMonitor{tracked: make(map[string]domain.DispatchHealth)}
}

func (m *mockDispatchMonitor) Status(serverID string) (domain.DispatchHealth, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.tracked[serverID]; ok {
		return h, nil
	}
	return domain.DispatchHealth{}, fmt.Errorf("%w: %s", apierrors.ErrDispatchNotTracked, serverID)
}

func (m *mockDispatchMonitor) List() []domain.DispatchHealth {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.DispatchHealth, 0, len(m.tracked))
	for _, h := range m.tracked {
		out = append(out, h)
	}
	return out
}

func (m *mockDispatchMonitor) Record(serverID string, status domain.DispatchStatus, _ *time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.tracked[serverID]; ok {
		h.Status = status
		m.tracked[serverID] = h
	}
}

func (m *mockDispatchMonitor) Add(serverID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracked[serverID] = domain.DispatchHealth{ServerID: serverID, Status: domain.DispatchStatusUnknown}
}

func (m *mockDispatchMonitor) Remove(serverID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tracked, serverID)
}

// testDeps builds handler dependencies backed by in-memory components.
func testDeps(t *testing.T) Dependencies {
	t.Helper()

	return Dependencies{
		Logger:    hclog.NewNullLogger(),
		Registry:  registry.NewRegistry(),
		Store:     store.NewMemoryStore(),
		Upstream:  upstream.NewClient(hclog.NewNullLogger()),
		Telemetry: newMockDispatchMonitor(),
	}
}

// testDocument is a two-endpoint document with one endpoint selected.
func testDocument() endpoint.Document {
	return endpoint.Document{
		ID:      "petstore",
		Name:    "Pet Store",
		BaseURL: "https://api.pets.example",
		Endpoints: []endpoint.Descriptor{
			{
				Method:          "GET",
				Path:            "/pets/{pet_id}",
				Selected:        true,
				ToolDescription: "Fetch a pet",
				Parameters: []endpoint.Parameter{
					{Name: "pet_id", Location: endpoint.LocationPath, Type: "string", Description: "Pet id", Required: true},
				},
			},
			{
				Method: "DELETE",
				Path:   "/pets/{pet_id}",
				Parameters: []endpoint.Parameter{
					{Name: "pet_id", Location: endpoint.LocationPath, Type: "string", Description: "Pet id", Required: true},
				},
			},
		},
	}
}

// deployTestDocument imports and deploys the test document, returning the
// assigned server id.
func deployTestDocument(t *testing.T, deps Dependencies) string {
	t.Helper()

	_, err := handleImportDocument(deps, testDocument())
	require.NoError(t, err)

	resp, err := handleDeploy(deps, "petstore", "", "")
	require.NoError(t, err)

	return resp.Body.ID
}
