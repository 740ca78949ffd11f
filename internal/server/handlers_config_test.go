package server

import (
	"testing"

	"github.com/agentmesh/runtime/pkg/types"
)

func TestConfigFieldValue(t *testing.T) {
	cfg := types.RuntimeConfig{RagMode: true, Tracing: types.TracingConfig{Enabled: true}}

	if v := configFieldValue(cfg, configFieldRagMode); v.(map[string]bool)["ragMode"] != true {
		t.Errorf("expected ragMode true, got %v", v)
	}
	if v := configFieldValue(cfg, configFieldTracing); v.(types.TracingConfig).Enabled != true {
		t.Errorf("expected tracing.enabled true, got %v", v)
	}
	if v := configFieldValue(cfg, configFieldRuntime); v.(types.RuntimeConfig).RagMode != true {
		t.Errorf("expected full config with ragMode true, got %v", v)
	}
}

func TestConfigToMapRoundTrips(t *testing.T) {
	cfg := types.RuntimeConfig{RagMode: true}
	m, err := configToMap(cfg)
	if err != nil {
		t.Fatalf("configToMap failed: %v", err)
	}
	if m["ragMode"] != true {
		t.Errorf("expected ragMode true in map, got %v", m["ragMode"])
	}
}

func TestFieldKey(t *testing.T) {
	if fieldKey(configFieldTracing) != "tracing" {
		t.Errorf("expected tracing key")
	}
	if fieldKey(configFieldRagMode) != "ragMode" {
		t.Errorf("expected ragMode key")
	}
	if fieldKey(configFieldRuntime) != "runtime" {
		t.Errorf("expected runtime key")
	}
}
