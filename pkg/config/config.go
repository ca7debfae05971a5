package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hubfleet/hubfleet/pkg/engine"
	"github.com/hubfleet/hubfleet/pkg/volume"
)

// Config is the flat configuration surface consumed by the spawner core.
type Config struct {
	// Image for user services.
	Image string `yaml:"image"`

	// Command overrides the image's default command when non-empty.
	Command []string `yaml:"command"`

	// ExtraArgs are appended to the server arguments on create.
	ExtraArgs []string `yaml:"extra_args"`

	// Prefix and NameTemplate derive the engine service name.
	// NameTemplate placeholders: {prefix}, {username}, {imagename},
	// {servername}.
	Prefix       string `yaml:"service_prefix"`
	NameTemplate string `yaml:"service_name_template"`

	// Port the server binds inside the service.
	Port int `yaml:"port"`

	// HostIP is only meaningful for callers resolving off the overlay
	// network through a custom address resolver.
	HostIP string `yaml:"host_ip"`

	// NetworkName attaches the service's tasks to an overlay network.
	// Name-based resolution of the service is delegated to that network.
	NetworkName string `yaml:"network_name"`

	Volumes             map[string]volume.Spec `yaml:"volumes"`
	ReadOnlyVolumes     map[string]volume.Spec `yaml:"read_only_volumes"`
	VolumeDriver        string                 `yaml:"volume_driver"`
	VolumeDriverOptions map[string]string      `yaml:"volume_driver_options"`

	// Resource limits and reservations. Pointers so an explicit zero is
	// distinguishable from unset. CPU in cores, memory in bytes.
	CPULimit     *float64 `yaml:"cpu_limit"`
	CPUGuarantee *float64 `yaml:"cpu_guarantee"`
	MemLimit     *int64   `yaml:"mem_limit"`
	MemGuarantee *int64   `yaml:"mem_guarantee"`

	// RemoveOnStop removes a pre-existing service before starting a new
	// one, instead of reusing it.
	RemoveOnStop bool `yaml:"remove_services"`

	// HubConnectAddr rewrites the hub callback address given to services,
	// for hubs bound to all interfaces or running inside a service.
	HubConnectAddr string `yaml:"hub_connect_addr"`

	// ExtraCreateOptions overlay the generated create options; unknown
	// keys are reported by the spec builder, not rejected.
	ExtraCreateOptions map[string]any `yaml:"extra_create_options"`

	Engine engine.Config `yaml:"engine"`

	// DataDir holds the session state database.
	DataDir string `yaml:"data_dir"`

	Log LogConfig `yaml:"log"`
}

// LogConfig configures process logging.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Warning records one deprecated field mapped (or dropped) at load time.
type Warning struct {
	Field       string
	Replacement string
}

func (w Warning) String() string {
	if w.Replacement == "" {
		return fmt.Sprintf("config field %q is deprecated and ignored", w.Field)
	}
	return fmt.Sprintf("config field %q is deprecated, use %q", w.Field, w.Replacement)
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Image:        "jupyterhub/singleuser:latest",
		Prefix:       "jupyter",
		NameTemplate: "{prefix}-{username}",
		Port:         8888,
		HostIP:       "127.0.0.1",
		NetworkName:  "bridge",
		DataDir:      "/var/lib/hubfleet",
		Log:          LogConfig{Level: "info"},
	}
}

// Load reads path, maps deprecated fields once, applies defaults and
// validates. The returned warnings name every deprecated field encountered.
func Load(path string) (Config, []Warning, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse is Load on raw bytes, split out for tests.
func Parse(data []byte) (Config, []Warning, error) {
	cfg := Default()

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return cfg, nil, fmt.Errorf("parsing config: %w", err)
	}

	warnings := mapDeprecated(raw)

	// Round-trip the migrated map through YAML into the typed config so
	// custom unmarshallers (volume specs) still run.
	migrated, err := yaml.Marshal(raw)
	if err != nil {
		return cfg, warnings, err
	}
	if err := yaml.Unmarshal(migrated, &cfg); err != nil {
		return cfg, warnings, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, warnings, err
	}
	return cfg, warnings, nil
}

// renamed maps deprecated field names to their current ones. Dropped fields
// map to "".
var renamed = map[string]string{
	"service_image":         "image",
	"service_port":          "port",
	"service_ip":            "host_ip",
	"hub_ip_connect":        "hub_connect_addr",
	"extra_create_kwargs":   "extra_create_options",
	"use_docker_client_env": "",
}

// tlsRenamed maps flat deprecated TLS fields into the engine.tls block.
var tlsRenamed = map[string]string{
	"tls_ca":     "ca_file",
	"tls_cert":   "cert_file",
	"tls_key":    "key_file",
	"tls_verify": "verify",
}

// mapDeprecated rewrites deprecated keys in place, once, at load time. A
// value already present under the current name wins over the deprecated one.
func mapDeprecated(raw map[string]any) []Warning {
	var warnings []Warning
	for old, current := range renamed {
		v, ok := raw[old]
		if !ok {
			continue
		}
		delete(raw, old)
		if current == "" {
			warnings = append(warnings, Warning{Field: old})
			continue
		}
		if _, exists := raw[current]; !exists {
			raw[current] = v
		}
		warnings = append(warnings, Warning{Field: old, Replacement: current})
	}

	for old, current := range tlsRenamed {
		v, ok := raw[old]
		if !ok {
			continue
		}
		delete(raw, old)
		eng, _ := raw["engine"].(map[string]any)
		if eng == nil {
			eng = map[string]any{}
			raw["engine"] = eng
		}
		tlsBlock, _ := eng["tls"].(map[string]any)
		if tlsBlock == nil {
			tlsBlock = map[string]any{}
			eng["tls"] = tlsBlock
		}
		if _, exists := tlsBlock[current]; !exists {
			tlsBlock[current] = v
		}
		warnings = append(warnings, Warning{Field: old, Replacement: "engine.tls." + current})
	}
	return warnings
}

// Validate fails fast on configuration that would produce an illegal
// specification, before any engine call is issued.
func (c *Config) Validate() error {
	if c.Image == "" {
		return fmt.Errorf("image must not be empty")
	}
	if c.NameTemplate == "" {
		return fmt.Errorf("service_name_template must not be empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range 1-65535", c.Port)
	}
	for host, v := range c.Volumes {
		if v.Mode != "" && !v.Mode.Valid() {
			return fmt.Errorf("volume %q: invalid mode %q", host, v.Mode)
		}
	}
	for host, v := range c.ReadOnlyVolumes {
		if v.Mode != "" && !v.Mode.Valid() {
			return fmt.Errorf("read-only volume %q: invalid mode %q", host, v.Mode)
		}
	}
	return nil
}

// UseInternalAddressing reports whether services are reached by name over
// the overlay network. Bridge and host networking fall back to host-side
// port publishing.
func (c *Config) UseInternalAddressing() bool {
	return c.NetworkName != "bridge" && c.NetworkName != "host"
}
