// Package policy derives the effective capability set for one turn from
// the server ceiling, the request preset, and the caller's team role.
package policy

import "github.com/BetaStreetOmnis/CoDeskTeam/internal/events"

// Presets name capability requests; custom uses explicit request toggles.
const (
	PresetSafe     = "safe"
	PresetStandard = "standard"
	PresetPower    = "power"
	PresetCustom   = "custom"
)

// Team roles. Only owners and admins may enable dangerous-class bits.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Input collects everything the derivation depends on.
type Input struct {
	Ceiling Capabilities // server upper bound
	Preset  string       // safe | standard | power | custom ("" = safe)
	Toggles Capabilities // explicit request toggles, honored for custom only
	Role    string       // caller's role in the active team

	// ProviderUnsandboxed reports whether the selected provider declares it
	// can run without a sandbox; the dangerous bit requires it.
	ProviderUnsandboxed bool
}

// Capabilities mirrors events.Capabilities for derivation inputs/outputs.
type Capabilities = events.Capabilities

// Result is the outcome of a derivation.
type Result struct {
	Preset    string
	Requested Capabilities
	Effective Capabilities

	// DangerousDenied is set when the request explicitly asked for the
	// dangerous bit and the server ceiling forbids it. This is the only
	// denial the chat entry rejects with 403; all others clear silently.
	DangerousDenied bool
}

// Derive computes effective = requested ∩ ceiling ∩ role gate. The
// dangerous bit is additionally gated on preset=custom and a provider that
// declares unsandboxed execution.
func Derive(in Input) Result {
	preset := normalizePreset(in.Preset)
	requested := requestedSet(preset, in.Toggles)

	admin := in.Role == RoleOwner || in.Role == RoleAdmin

	effective := Capabilities{
		Shell:   requested.Shell && in.Ceiling.Shell && admin,
		Write:   requested.Write && in.Ceiling.Write && admin,
		Browser: requested.Browser && in.Ceiling.Browser && admin,
	}

	dangerousDenied := false
	if requested.Dangerous {
		if !in.Ceiling.Dangerous {
			dangerousDenied = true
		} else if admin && preset == PresetCustom && in.ProviderUnsandboxed {
			effective.Dangerous = true
		}
	}

	return Result{
		Preset:    preset,
		Requested: requested,
		Effective: effective,
		DangerousDenied: dangerousDenied,
	}
}

func normalizePreset(p string) string {
	switch p {
	case PresetSafe, PresetStandard, PresetPower, PresetCustom:
		return p
	case "":
		return PresetSafe
	default:
		return PresetSafe
	}
}

func requestedSet(preset string, toggles Capabilities) Capabilities {
	switch preset {
	case PresetSafe:
		return Capabilities{}
	case PresetStandard:
		return Capabilities{Write: true}
	case PresetPower:
		return Capabilities{Shell: true, Write: true, Browser: true}
	default: // custom
		return toggles
	}
}
