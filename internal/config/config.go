package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"sort"

	"github.com/tidwall/jsonc"

	"github.com/agentmesh/runtime/internal/logging"
	"github.com/agentmesh/runtime/pkg/types"
)

// Default returns the built-in baseline RuntimeConfig. Every agent's
// effective config is deep_merge(global, agent_delta) starting from this
// baseline, so an unchanged field always resolves here.
func Default() types.RuntimeConfig {
	return types.RuntimeConfig{
		RagMode:       false,
		InjectionMode: types.InjectionEveryTurn,
		Bootstrap: types.BootstrapConfig{
			MaxCharsPerSection: 4000,
			TotalMaxChars:      20000,
		},
		Execution: types.ExecutionConfig{
			MaxSteps:   50,
			MaxRetries: 3,
		},
		LLM: types.LLMConfig{
			Temperature: 0.7,
			TimeoutSecs: 120,
		},
		Retrieval: types.RetrievalConfig{
			Memory: types.DomainRetrievalConfig{
				TopK: 5, SemanticWeight: 0.7, LexicalWeight: 0.3,
				ChunkSize: 512, ChunkOverlap: 64,
			},
			Knowledge: types.DomainRetrievalConfig{
				TopK: 8, SemanticWeight: 0.6, LexicalWeight: 0.4,
				ChunkSize: 768, ChunkOverlap: 96,
			},
		},
		RetrievalStore: types.RetrievalStoreConfig{
			Engine:        types.RetrievalEngineSQLite,
			DBPath:        "storage/retrieval.db",
			FTSPrefilterK: 50,
		},
		Tools: types.ToolsConfig{
			RepeatIdenticalFailureLimit: 2,
			Timeouts:                    map[string]int{"terminal": 120, "python_repl": 30, "fetch_url": 30},
			OutputCharLimits:            map[string]int{"terminal": 30000, "fetch_url": 20000},
			AutonomousEnable: map[types.TriggerType][]string{
				types.TriggerHeartbeat: {},
				types.TriggerCron:      {},
			},
		},
		Heartbeat: types.HeartbeatConfig{
			Enabled:         false,
			IntervalSeconds: 300,
			Timezone:        "UTC",
			ActiveStartHour: 0,
			ActiveEndHour:   24,
		},
		Cron: types.CronConfig{
			Enabled:          true,
			PollIntervalSecs: 30,
			Timezone:         "UTC",
			MaxFailures:      5,
			RetryBaseSeconds: 30,
			RetryMaxSeconds:  3600,
			FailureRetention: 200,
		},
	}
}

// Load reads the global config file, then layers the agent-local override
// file on top via DeepMerge. Either file may be absent; absence is not an
// error, it just means that layer contributes nothing.
func Load(globalPath, agentPath string) (types.RuntimeConfig, error) {
	effective := Default()

	if raw, err := loadLayer(globalPath); err != nil {
		return effective, err
	} else if raw != nil {
		merged, err := mergeLayer(effective, raw)
		if err != nil {
			return effective, err
		}
		effective = merged
	}

	if raw, err := loadLayer(agentPath); err != nil {
		return effective, err
	} else if raw != nil {
		merged, err := mergeLayer(effective, raw)
		if err != nil {
			return effective, err
		}
		effective = merged
	}

	return effective, nil
}

// loadLayer reads and JSONC-strips a config file, returning nil if it does
// not exist.
func loadLayer(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	data = jsonc.ToJSON(data)
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		logging.Warn().Err(err).Str("path", path).Msg("config layer failed to parse, skipping")
		return nil, nil
	}
	return raw, nil
}

// mergeLayer deep-merges a raw JSON layer over an effective config by
// round-tripping through generic maps.
func mergeLayer(base types.RuntimeConfig, layer map[string]any) (types.RuntimeConfig, error) {
	baseMap, err := toMap(base)
	if err != nil {
		return base, err
	}
	merged := DeepMerge(baseMap, layer)
	var out types.RuntimeConfig
	buf, err := json.Marshal(merged)
	if err != nil {
		return base, err
	}
	if err := json.Unmarshal(buf, &out); err != nil {
		return base, err
	}
	return out, nil
}

func toMap(cfg types.RuntimeConfig) (map[string]any, error) {
	buf, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(buf, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// DeepMerge recursively merges src over dst, overriding leaves. Maps merge
// key-by-key; any other type (including slices) is replaced wholesale.
func DeepMerge(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst))
	for k, v := range dst {
		out[k] = v
	}
	for k, sv := range src {
		if dvRaw, ok := out[k]; ok {
			if dm, ok1 := dvRaw.(map[string]any); ok1 {
				if sm, ok2 := sv.(map[string]any); ok2 {
					out[k] = DeepMerge(dm, sm)
					continue
				}
			}
		}
		out[k] = sv
	}
	return out
}

// DeepDiff returns the subset of effective that differs from baseline,
// recursing into nested maps so unchanged fields are omitted and continue
// to inherit from the global layer when persisted back as an agent delta.
func DeepDiff(effective, baseline map[string]any) map[string]any {
	out := map[string]any{}
	for k, ev := range effective {
		bv, existed := baseline[k]
		if !existed {
			out[k] = ev
			continue
		}
		em, eIsMap := ev.(map[string]any)
		bm, bIsMap := bv.(map[string]any)
		if eIsMap && bIsMap {
			if d := DeepDiff(em, bm); len(d) > 0 {
				out[k] = d
			}
			continue
		}
		if !jsonEqual(ev, bv) {
			out[k] = ev
		}
	}
	return out
}

func jsonEqual(a, b any) bool {
	ab, _ := json.Marshal(a)
	bb, _ := json.Marshal(b)
	return string(ab) == string(bb)
}

// Digest computes a stable content hash of the effective config, used as
// the cache key for reload detection. Canonicalization round-trips through
// a map so object keys are ordered and numeric values are normalized.
func Digest(cfg types.RuntimeConfig) (string, error) {
	m, err := toMap(cfg)
	if err != nil {
		return "", err
	}
	canonical, err := canonicalMarshal(m)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalMarshal serializes v with map keys sorted at every level. Go's
// encoding/json already sorts map[string]any keys, so this mainly documents
// the invariant Digest relies on.
func canonicalMarshal(v any) ([]byte, error) {
	sorted := sortKeys(v)
	return json.Marshal(sorted)
}

func sortKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]any, len(t))
		for _, k := range keys {
			out[k] = sortKeys(t[k])
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = sortKeys(e)
		}
		return out
	default:
		return t
	}
}

// Save writes a config layer (global defaults or an agent's deep_diff
// delta) atomically via a temp-file-then-rename, matching the storage
// subsystem's write discipline.
func Save(path string, payload map[string]any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
