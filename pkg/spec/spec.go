package spec

import (
	"fmt"
	"sort"
	"time"

	"github.com/hubfleet/hubfleet/pkg/types"
)

// Options is the flat bag of create options assembled by the spawner and
// extended by operator configuration. Keys are partitioned into the four
// engine spec levels by static membership below.
type Options map[string]any

// Static key sets, versioned with the engine API surface we target. A key
// claimed by none of them lands in Result.Unused instead of failing: the
// engine's surface evolves and strict rejection would break forward
// compatibility.
var (
	containerKeys = keySet(
		"image", "command", "args", "hostname", "env", "workdir", "user",
		"labels", "mounts", "stop_grace_period", "secrets", "tty", "groups",
		"open_stdin", "read_only", "stop_signal", "healthcheck", "hosts",
		"dns_config", "configs", "privileges",
	)
	resourceKeys = keySet("cpu_limit", "mem_limit", "cpu_reservation", "mem_reservation")
	taskKeys     = keySet("networks")
	endpointKeys = keySet("ports")

	// Top-level keys consumed outside the four spec slices.
	excludedKeys = keySet("name")
)

func keySet(keys ...string) map[string]bool {
	s := make(map[string]bool, len(keys))
	for _, k := range keys {
		s[k] = true
	}
	return s
}

// Result is the outcome of one build: the assembled specification and every
// input key that no spec slice claimed.
type Result struct {
	Spec   types.ServiceSpec
	Unused []string
}

// Build partitions opts into the engine's hierarchical service specification.
// Malformed values are configuration errors and fail before any engine call;
// unknown keys never fail.
func Build(opts Options) (Result, error) {
	var res Result

	b := &builder{opts: opts}
	res.Spec.Name = b.str("name")

	cs, err := b.containerSpec()
	if err != nil {
		return res, err
	}
	resources, err := b.resources()
	if err != nil {
		return res, err
	}
	networks, err := b.strSlice("networks")
	if err != nil {
		return res, err
	}
	endpoint, err := b.endpointSpec()
	if err != nil {
		return res, err
	}

	res.Spec.TaskTemplate = types.TaskTemplate{
		ContainerSpec: cs,
		Resources:     resources,
		ForceUpdate:   1,
	}
	for _, n := range networks {
		res.Spec.TaskTemplate.Networks = append(res.Spec.TaskTemplate.Networks, types.NetworkAttachment{Target: n})
	}
	res.Spec.EndpointSpec = endpoint

	for k := range opts {
		if containerKeys[k] || resourceKeys[k] || taskKeys[k] || endpointKeys[k] || excludedKeys[k] {
			continue
		}
		res.Unused = append(res.Unused, k)
	}
	sort.Strings(res.Unused)
	return res, nil
}

type builder struct {
	opts Options
}

func (b *builder) containerSpec() (types.ContainerSpec, error) {
	var cs types.ContainerSpec
	var err error
	cs.Image = b.str("image")
	if cs.Command, err = b.strSlice("command"); err != nil {
		return cs, err
	}
	if cs.Args, err = b.strSlice("args"); err != nil {
		return cs, err
	}
	cs.Hostname = b.str("hostname")
	if cs.Env, err = b.strSlice("env"); err != nil {
		return cs, err
	}
	cs.Dir = b.str("workdir")
	cs.User = b.str("user")
	if cs.Groups, err = b.strSlice("groups"); err != nil {
		return cs, err
	}
	if cs.Labels, err = b.strMap("labels"); err != nil {
		return cs, err
	}
	if cs.Mounts, err = b.mounts("mounts"); err != nil {
		return cs, err
	}
	if cs.StopGracePeriod, err = b.durationNanos("stop_grace_period"); err != nil {
		return cs, err
	}
	cs.StopSignal = b.str("stop_signal")
	cs.TTY = b.boolVal("tty")
	cs.OpenStdin = b.boolVal("open_stdin")
	cs.ReadOnly = b.boolVal("read_only")
	if cs.Hosts, err = b.strSlice("hosts"); err != nil {
		return cs, err
	}
	if v, ok := b.opts["healthcheck"]; ok {
		hc, ok := v.(*types.Healthcheck)
		if !ok {
			return cs, fmt.Errorf("option healthcheck: expected *types.Healthcheck, got %T", v)
		}
		cs.Healthcheck = hc
	}
	if v, ok := b.opts["dns_config"]; ok {
		dc, ok := v.(*types.DNSConfig)
		if !ok {
			return cs, fmt.Errorf("option dns_config: expected *types.DNSConfig, got %T", v)
		}
		cs.DNSConfig = dc
	}
	if v, ok := b.opts["secrets"]; ok {
		s, ok := v.([]any)
		if !ok {
			return cs, fmt.Errorf("option secrets: expected list, got %T", v)
		}
		cs.Secrets = s
	}
	if v, ok := b.opts["configs"]; ok {
		c, ok := v.([]any)
		if !ok {
			return cs, fmt.Errorf("option configs: expected list, got %T", v)
		}
		cs.Configs = c
	}
	if v, ok := b.opts["privileges"]; ok {
		p, ok := v.(map[string]any)
		if !ok {
			return cs, fmt.Errorf("option privileges: expected mapping, got %T", v)
		}
		cs.Privileges = p
	}
	return cs, nil
}

// resources converts the flat resource options into the engine's resource
// spec. CPU values are fractional cores converted to integer nano-units with
// truncation toward zero. Missing values stay absent: an unset limit and an
// explicit zero limit are different things to the engine.
func (b *builder) resources() (*types.Resources, error) {
	limits, err := b.resourceSpec("cpu_limit", "mem_limit")
	if err != nil {
		return nil, err
	}
	reservations, err := b.resourceSpec("cpu_reservation", "mem_reservation")
	if err != nil {
		return nil, err
	}
	if limits == nil && reservations == nil {
		return nil, nil
	}
	return &types.Resources{Limits: limits, Reservations: reservations}, nil
}

func (b *builder) resourceSpec(cpuKey, memKey string) (*types.ResourceSpec, error) {
	var rs types.ResourceSpec
	set := false
	if cpu, ok, err := b.float(cpuKey); err != nil {
		return nil, err
	} else if ok {
		nano := int64(cpu * 1e9)
		rs.NanoCPUs = &nano
		set = true
	}
	if mem, ok, err := b.int64Val(memKey); err != nil {
		return nil, err
	} else if ok {
		rs.MemoryBytes = &mem
		set = true
	}
	if !set {
		return nil, nil
	}
	return &rs, nil
}

func (b *builder) endpointSpec() (*types.EndpointSpec, error) {
	v, ok := b.opts["ports"]
	if !ok {
		return nil, nil
	}
	ports, ok := v.([]types.PortConfig)
	if !ok {
		return nil, fmt.Errorf("option ports: expected []types.PortConfig, got %T", v)
	}
	return &types.EndpointSpec{Ports: ports}, nil
}

func (b *builder) str(key string) string {
	if v, ok := b.opts[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func (b *builder) boolVal(key string) bool {
	if v, ok := b.opts[key]; ok {
		if bv, ok := v.(bool); ok {
			return bv
		}
	}
	return false
}

// strSlice accepts both []string and the []any that yaml decoding produces
// for list values arriving through extra_create_options.
func (b *builder) strSlice(key string) ([]string, error) {
	v, ok := b.opts[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch s := v.(type) {
	case []string:
		return s, nil
	case []any:
		out := make([]string, len(s))
		for i, e := range s {
			str, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("option %s: element %d: expected string, got %T", key, i, e)
			}
			out[i] = str
		}
		return out, nil
	}
	return nil, fmt.Errorf("option %s: expected []string, got %T", key, v)
}

// strMap accepts both map[string]string and the map[string]any that yaml
// decoding produces for mapping values arriving through extra_create_options.
func (b *builder) strMap(key string) (map[string]string, error) {
	v, ok := b.opts[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch m := v.(type) {
	case map[string]string:
		return m, nil
	case map[string]any:
		out := make(map[string]string, len(m))
		for k, e := range m {
			str, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("option %s: key %q: expected string, got %T", key, k, e)
			}
			out[k] = str
		}
		return out, nil
	}
	return nil, fmt.Errorf("option %s: expected map[string]string, got %T", key, v)
}

func (b *builder) mounts(key string) ([]types.Mount, error) {
	v, ok := b.opts[key]
	if !ok || v == nil {
		return nil, nil
	}
	m, ok := v.([]types.Mount)
	if !ok {
		return nil, fmt.Errorf("option %s: expected []types.Mount, got %T", key, v)
	}
	return m, nil
}

func (b *builder) durationNanos(key string) (*int64, error) {
	v, ok := b.opts[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch d := v.(type) {
	case time.Duration:
		n := d.Nanoseconds()
		return &n, nil
	case int64:
		return &d, nil
	case int:
		n := int64(d)
		return &n, nil
	}
	return nil, fmt.Errorf("option %s: expected duration, got %T", key, v)
}

func (b *builder) float(key string) (float64, bool, error) {
	v, ok := b.opts[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	switch n := v.(type) {
	case float64:
		return n, true, nil
	case float32:
		return float64(n), true, nil
	case int:
		return float64(n), true, nil
	case int64:
		return float64(n), true, nil
	}
	return 0, false, fmt.Errorf("option %s: expected number, got %T", key, v)
}

func (b *builder) int64Val(key string) (int64, bool, error) {
	v, ok := b.opts[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	switch n := v.(type) {
	case int64:
		return n, true, nil
	case int:
		return int64(n), true, nil
	case float64:
		return int64(n), true, nil
	}
	return 0, false, fmt.Errorf("option %s: expected integer, got %T", key, v)
}
