package sandbox

import "github.com/agentmesh/runtime/pkg/types"

// Tier is a permission level a tool declares; higher tiers subsume lower
// ones. L0_READ < L1_WRITE < L2_NETWORK < L3_SYSTEM.
type Tier int

const (
	TierRead Tier = iota
	TierWrite
	TierNetwork
	TierSystem
)

// ceilings is the per-trigger permission ceiling: the highest tier a tool
// may run at without appearing in the trigger's explicit-enable list.
var ceilings = map[types.TriggerType]Tier{
	types.TriggerChat:      TierSystem,
	types.TriggerHeartbeat: TierRead,
	types.TriggerCron:      TierRead,
}

// Policy evaluates whether a tool call is permitted for a given trigger.
type Policy struct {
	// AutonomousEnable lists tool names explicitly permitted for a
	// trigger regardless of its ceiling (heartbeat/cron only).
	AutonomousEnable map[types.TriggerType][]string
	// ChatAllowlist, when non-empty, additionally restricts chat to
	// exactly these tool names.
	ChatAllowlist []string
}

// Allowed reports whether toolName at the given tier may run under
// trigger. Explicit-enable bypasses the tier ceiling for autonomous
// triggers (an operator can permit "terminal" in cron by name).
func (p Policy) Allowed(trigger types.TriggerType, toolName string, tier Tier) bool {
	if trigger == types.TriggerChat {
		if len(p.ChatAllowlist) > 0 && !contains(p.ChatAllowlist, toolName) {
			return false
		}
		return tier <= ceilings[types.TriggerChat]
	}

	if contains(p.AutonomousEnable[trigger], toolName) {
		return true
	}
	return tier <= ceilings[trigger]
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
