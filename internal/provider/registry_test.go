package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/runtime/pkg/types"
)

// fakeProvider implements Provider minimally for registry-level tests that
// never touch ChatModel()/CreateCompletion().
type fakeProvider struct {
	id     string
	models []types.Model
}

func (f *fakeProvider) ID() string             { return f.id }
func (f *fakeProvider) Name() string           { return f.id }
func (f *fakeProvider) Models() []types.Model  { return f.models }
func (f *fakeProvider) ChatModel() model.ToolCallingChatModel { return nil }
func (f *fakeProvider) CreateCompletion(ctx context.Context, req *CompletionRequest) (*CompletionStream, error) {
	return nil, errors.New("fakeProvider: not implemented")
}

func TestParseModelString(t *testing.T) {
	cases := []struct {
		input        string
		wantProvider string
		wantModel    string
	}{
		{"anthropic/claude-sonnet-4-20250514", "anthropic", "claude-sonnet-4-20250514"},
		{"gpt-4o", "", "gpt-4o"},
	}
	for _, tc := range cases {
		p, m := ParseModelString(tc.input)
		assert.Equal(t, tc.wantProvider, p)
		assert.Equal(t, tc.wantModel, m)
	}
}

func TestRegistryDefaultModelFallsBackToFirstAvailable(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeProvider{id: "custom", models: []types.Model{{ID: "m1", ProviderID: "custom"}}})

	m, err := r.DefaultModel()
	require.NoError(t, err)
	assert.Equal(t, "m1", m.ID)
}

func TestRegistryAllModelsRanksGPT5Highest(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeProvider{id: "a", models: []types.Model{{ID: "gpt-4o"}, {ID: "gpt-5"}}})

	models := r.AllModels()
	require.Len(t, models, 2)
	assert.Equal(t, "gpt-5", models[0].ID)
}

func TestRegistryGetModelNotFound(t *testing.T) {
	r := NewRegistry()
	_, err := r.GetModel("anthropic", "does-not-exist")
	assert.Error(t, err)
}
