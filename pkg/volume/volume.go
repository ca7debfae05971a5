package volume

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hubfleet/hubfleet/pkg/types"
)

// Spec is one declarative volume entry: the container-side target and an
// optional access mode. In YAML it is either a bare path string (mode
// defaults per source map) or a {bind, mode} mapping.
type Spec struct {
	Bind string
	Mode types.MountMode
}

// UnmarshalYAML accepts both the string and the mapping form.
func (s *Spec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		return node.Decode(&s.Bind)
	case yaml.MappingNode:
		var raw struct {
			Bind string          `yaml:"bind"`
			Mode types.MountMode `yaml:"mode"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		s.Bind = raw.Bind
		s.Mode = raw.Mode
		return nil
	}
	return fmt.Errorf("volume entry must be a path string or a {bind, mode} mapping (line %d)", node.Line)
}

// Context carries the substitution values a naming strategy may use.
type Context struct {
	Username string
}

// NamingStrategy formats a host or container path template before it is
// handed to the engine. Pluggable so deployments can route per-user storage
// however they like.
type NamingStrategy func(template string, ctx Context) (string, error)

// DefaultNamingStrategy substitutes {username} in the path template.
func DefaultNamingStrategy(template string, ctx Context) (string, error) {
	return strings.ReplaceAll(template, "{username}", ctx.Username), nil
}

type binding struct {
	source string
	spec   Spec
}

// Build collapses the generic and read-only volume maps into the engine's
// mount-spec list. The read-only map is layered on top of the generic map:
// a host path declared in both resolves to the read-only entry. A mode set
// on the entry itself wins over the map's default. Output is sorted by
// container target so identical input always yields byte-identical specs.
func Build(volumes, readOnly map[string]Spec, driver *types.DriverConfig, strategy NamingStrategy, ctx Context) ([]types.Mount, error) {
	if strategy == nil {
		strategy = DefaultNamingStrategy
	}

	merged := map[string]binding{}
	layer := func(src map[string]Spec, defaultMode types.MountMode) error {
		// Deterministic layering order within one map.
		keys := make([]string, 0, len(src))
		for k := range src {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, host := range keys {
			entry := src[host]
			mode := entry.Mode
			if mode == "" {
				mode = defaultMode
			}
			if !mode.Valid() {
				return fmt.Errorf("volume %q: invalid mount mode %q", host, mode)
			}
			source, err := strategy(host, ctx)
			if err != nil {
				return fmt.Errorf("volume %q: formatting host path: %w", host, err)
			}
			target, err := strategy(entry.Bind, ctx)
			if err != nil {
				return fmt.Errorf("volume %q: formatting bind path: %w", host, err)
			}
			merged[source] = binding{source: source, spec: Spec{Bind: target, Mode: mode}}
		}
		return nil
	}

	if err := layer(volumes, types.MountModeReadWrite); err != nil {
		return nil, err
	}
	if err := layer(readOnly, types.MountModeReadOnly); err != nil {
		return nil, err
	}

	sources := make([]string, 0, len(merged))
	for source := range merged {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	mounts := make([]types.Mount, 0, len(merged))
	seen := map[string]string{}
	for _, source := range sources {
		b := merged[source]
		if prev, dup := seen[b.spec.Bind]; dup {
			return nil, fmt.Errorf("mount target %q declared for both %q and %q", b.spec.Bind, prev, b.source)
		}
		seen[b.spec.Bind] = b.source
		m := types.Mount{
			Type:     "bind",
			Source:   b.source,
			Target:   b.spec.Bind,
			ReadOnly: b.spec.Mode == types.MountModeReadOnly,
		}
		if driver != nil && driver.Name != "" {
			m.VolumeOptions = &types.VolumeOptions{DriverConfig: driver}
		}
		mounts = append(mounts, m)
	}
	sort.Slice(mounts, func(i, j int) bool { return mounts[i].Target < mounts[j].Target })
	return mounts, nil
}

// MountPoints returns the sorted container-side targets of the built mounts.
func MountPoints(mounts []types.Mount) []string {
	points := make([]string, len(mounts))
	for i, m := range mounts {
		points[i] = m.Target
	}
	return points
}
