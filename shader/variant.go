package shader

import (
	"sort"
	"strconv"
	"strings"
)

// PurposeGroup classifies a bind group by the role its data plays in the
// render graph, letting material setup code and the RDG share a uniform
// binding layer without each shader inventing its own group-index
// convention.
type PurposeGroup int

const (
	// PurposeGroupUnknown is any group whose variable names don't match a
	// recognized naming convention.
	PurposeGroupUnknown PurposeGroup = iota
	PurposeGroupCamera
	PurposeGroupMaterial
	PurposeGroupLight
	PurposeGroupShadow
	PurposeGroupObject
)

func (p PurposeGroup) String() string {
	switch p {
	case PurposeGroupCamera:
		return "camera"
	case PurposeGroupMaterial:
		return "material"
	case PurposeGroupLight:
		return "light"
	case PurposeGroupShadow:
		return "shadow"
	case PurposeGroupObject:
		return "object"
	default:
		return "unknown"
	}
}

// purposeNameHints maps substrings commonly found in this engine's WGSL
// variable names (camera, material, light, shadow, object/model) to their
// PurposeGroup. The first matching hint, scanned in table order, wins.
var purposeNameHints = []struct {
	substr string
	group  PurposeGroup
}{
	{"shadow", PurposeGroupShadow},
	{"light", PurposeGroupLight},
	{"camera", PurposeGroupCamera},
	{"material", PurposeGroupMaterial},
	{"object", PurposeGroupObject},
	{"model", PurposeGroupObject},
}

// classifyPurposeGroups assigns a PurposeGroup to each bind group index by
// inspecting the variable names declared within it (case-insensitive
// substring match against purposeNameHints). A group is left
// PurposeGroupUnknown if none of its variable names match any hint.
func classifyPurposeGroups(varNames map[int]map[int]string) map[int]PurposeGroup {
	kinds := make(map[int]PurposeGroup, len(varNames))
	for group, bindings := range varNames {
		kinds[group] = purposeGroupFor(bindings)
	}
	return kinds
}

func purposeGroupFor(bindings map[int]string) PurposeGroup {
	for _, hint := range purposeNameHints {
		for _, name := range bindings {
			if strings.Contains(strings.ToLower(name), hint.substr) {
				return hint.group
			}
		}
	}
	return PurposeGroupUnknown
}

// VariantFlag is a single named boolean feature a shader technique may be
// compiled with or without (e.g. "SKINNED", "SHADOW_PASS", "ALPHA_TEST").
type VariantFlag string

// VariantKey is the canonical, order-independent identity of one shader
// variant: a technique name, a render-pass index, and a sorted, deduplicated
// set of enabled flags. Two Keys built from the same technique/pass/flag-set
// in any insertion order compare equal and hash identically, which is what
// lets the PSO cache (pso.go) treat them as the same cache entry.
type VariantKey struct {
	Technique string
	PassIndex int
	flags     string // sorted, comma-joined, deduplicated — the actual cache discriminant
}

// NewVariantKey builds a canonical VariantKey: flags are deduplicated and
// sorted so that insertion order never affects the resulting key.
func NewVariantKey(technique string, passIndex int, flags []VariantFlag) VariantKey {
	seen := make(map[VariantFlag]struct{}, len(flags))
	unique := make([]string, 0, len(flags))
	for _, f := range flags {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		unique = append(unique, string(f))
	}
	sort.Strings(unique)

	return VariantKey{
		Technique: technique,
		PassIndex: passIndex,
		flags:     strings.Join(unique, ","),
	}
}

// Flags returns the sorted, deduplicated flag list backing this key.
func (k VariantKey) Flags() []VariantFlag {
	if k.flags == "" {
		return nil
	}
	parts := strings.Split(k.flags, ",")
	out := make([]VariantFlag, len(parts))
	for i, p := range parts {
		out[i] = VariantFlag(p)
	}
	return out
}

// String renders a stable, human-readable cache key, primarily for
// diagnostics and log lines.
func (k VariantKey) String() string {
	var sb strings.Builder
	sb.WriteString(k.Technique)
	sb.WriteByte('#')
	sb.WriteString(strconv.Itoa(k.PassIndex))
	if k.flags != "" {
		sb.WriteByte('[')
		sb.WriteString(k.flags)
		sb.WriteByte(']')
	}
	return sb.String()
}
