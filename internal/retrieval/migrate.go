package retrieval

import (
	"context"

	"github.com/agentmesh/runtime/internal/logging"
	"github.com/agentmesh/runtime/pkg/types"
)

// MigrateLegacyJSON imports domain's JSON-fallback index into sqliteStore
// when index_meta lacks the domain but a legacy JSON index exists and
// parses. Failures are swallowed: the caller rebuilds from scratch when
// migration doesn't produce a usable index.
func MigrateLegacyJSON(ctx context.Context, sqliteStore *SQLiteStore, jsonStore *JSONStore, domain types.RetrievalDomain) {
	if _, ok, err := sqliteStore.Meta(ctx, domain); err != nil || ok {
		return
	}

	idx, ok, err := jsonStore.load(domain)
	if err != nil || !ok {
		return
	}

	if err := sqliteStore.Replace(ctx, idx.Meta, idx.Chunks); err != nil {
		logging.Warn().Str("domain", string(domain)).Err(err).Msg("retrieval: legacy JSON migration failed")
	}
}
