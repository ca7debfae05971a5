package types

import "time"

// Service is the engine's record of a declarative service as returned by
// service inspect and create calls.
type Service struct {
	ID        string      `json:"ID"`
	Version   Version     `json:"Version,omitempty"`
	CreatedAt time.Time   `json:"CreatedAt,omitempty"`
	UpdatedAt time.Time   `json:"UpdatedAt,omitempty"`
	Spec      ServiceSpec `json:"Spec"`
}

// Version is the engine's optimistic-lock counter for a service.
type Version struct {
	Index uint64 `json:"Index,omitempty"`
}

// ServiceSpec is the full declarative specification submitted on create.
type ServiceSpec struct {
	Name         string            `json:"Name"`
	Labels       map[string]string `json:"Labels,omitempty"`
	TaskTemplate TaskTemplate      `json:"TaskTemplate"`
	EndpointSpec *EndpointSpec     `json:"EndpointSpec,omitempty"`
}

// TaskTemplate describes how the engine should run the service's tasks.
type TaskTemplate struct {
	ContainerSpec ContainerSpec       `json:"ContainerSpec"`
	Resources     *Resources          `json:"Resources,omitempty"`
	Networks      []NetworkAttachment `json:"Networks,omitempty"`
	ForceUpdate   uint64              `json:"ForceUpdate,omitempty"`
}

// ContainerSpec is the container-level slice of a service specification.
type ContainerSpec struct {
	Image           string            `json:"Image"`
	Command         []string          `json:"Command,omitempty"`
	Args            []string          `json:"Args,omitempty"`
	Hostname        string            `json:"Hostname,omitempty"`
	Env             []string          `json:"Env,omitempty"`
	Dir             string            `json:"Dir,omitempty"`
	User            string            `json:"User,omitempty"`
	Groups          []string          `json:"Groups,omitempty"`
	Labels          map[string]string `json:"Labels,omitempty"`
	Mounts          []Mount           `json:"Mounts,omitempty"`
	StopSignal      string            `json:"StopSignal,omitempty"`
	StopGracePeriod *int64            `json:"StopGracePeriod,omitempty"`
	TTY             bool              `json:"TTY,omitempty"`
	OpenStdin       bool              `json:"OpenStdin,omitempty"`
	ReadOnly        bool              `json:"ReadOnly,omitempty"`
	Hosts           []string          `json:"Hosts,omitempty"`
	Healthcheck     *Healthcheck      `json:"HealthCheck,omitempty"`
	DNSConfig       *DNSConfig        `json:"DNSConfig,omitempty"`
	Secrets         []any             `json:"Secrets,omitempty"`
	Configs         []any             `json:"Configs,omitempty"`
	Privileges      map[string]any    `json:"Privileges,omitempty"`
}

// Healthcheck configures the engine-side container health probe.
type Healthcheck struct {
	Test        []string `json:"Test,omitempty"`
	Interval    int64    `json:"Interval,omitempty"`
	Timeout     int64    `json:"Timeout,omitempty"`
	Retries     int      `json:"Retries,omitempty"`
	StartPeriod int64    `json:"StartPeriod,omitempty"`
}

// DNSConfig overrides the container's resolver configuration.
type DNSConfig struct {
	Nameservers []string `json:"Nameservers,omitempty"`
	Search      []string `json:"Search,omitempty"`
	Options     []string `json:"Options,omitempty"`
}

// Resources carries the resource-level slice of a service specification.
type Resources struct {
	Limits       *ResourceSpec `json:"Limits,omitempty"`
	Reservations *ResourceSpec `json:"Reservations,omitempty"`
}

// ResourceSpec holds CPU in nano-units (one core = 1e9) and memory in bytes.
// Pointers distinguish "unset" from an explicit zero.
type ResourceSpec struct {
	NanoCPUs    *int64 `json:"NanoCPUs,omitempty"`
	MemoryBytes *int64 `json:"MemoryBytes,omitempty"`
}

// NetworkAttachment connects tasks to a named overlay network.
type NetworkAttachment struct {
	Target string `json:"Target"`
}

// EndpointSpec is the endpoint/network-level slice of a service specification.
type EndpointSpec struct {
	Mode  string       `json:"Mode,omitempty"`
	Ports []PortConfig `json:"Ports,omitempty"`
}

// PortConfig publishes a single task port.
type PortConfig struct {
	Name          string `json:"Name,omitempty"`
	Protocol      string `json:"Protocol,omitempty"`
	TargetPort    int    `json:"TargetPort,omitempty"`
	PublishedPort int    `json:"PublishedPort,omitempty"`
	PublishMode   string `json:"PublishMode,omitempty"`
}

// MountMode is the access mode of a bind mount.
type MountMode string

const (
	MountModeReadWrite    MountMode = "rw"
	MountModeReadOnly     MountMode = "ro"
	MountModeSharedLabel  MountMode = "z"
	MountModePrivateLabel MountMode = "Z"
)

// Valid reports whether m is one of the recognized mount modes.
func (m MountMode) Valid() bool {
	switch m {
	case MountModeReadWrite, MountModeReadOnly, MountModeSharedLabel, MountModePrivateLabel:
		return true
	}
	return false
}

// Mount maps a host-accessible path into the container filesystem.
type Mount struct {
	Type          string         `json:"Type"`
	Source        string         `json:"Source"`
	Target        string         `json:"Target"`
	ReadOnly      bool           `json:"ReadOnly,omitempty"`
	VolumeOptions *VolumeOptions `json:"VolumeOptions,omitempty"`
}

// VolumeOptions configures named-volume mounts.
type VolumeOptions struct {
	DriverConfig *DriverConfig `json:"DriverConfig,omitempty"`
}

// DriverConfig names a volume driver and its options.
type DriverConfig struct {
	Name    string            `json:"Name,omitempty"`
	Options map[string]string `json:"Options,omitempty"`
}

// Task is a single scheduled instance of a service.
type Task struct {
	ID           string     `json:"ID"`
	ServiceID    string     `json:"ServiceID"`
	NodeID       string     `json:"NodeID,omitempty"`
	Slot         int        `json:"Slot,omitempty"`
	DesiredState TaskState  `json:"DesiredState"`
	Status       TaskStatus `json:"Status"`
	CreatedAt    time.Time  `json:"CreatedAt,omitempty"`
}

// TaskStatus reports the engine's view of a task's progress.
type TaskStatus struct {
	Timestamp time.Time `json:"Timestamp,omitempty"`
	State     TaskState `json:"State"`
	Message   string    `json:"Message,omitempty"`
	Err       string    `json:"Err,omitempty"`
}

// TaskState is an engine task lifecycle state.
type TaskState string

const (
	TaskStateNew       TaskState = "new"
	TaskStatePending   TaskState = "pending"
	TaskStateAssigned  TaskState = "assigned"
	TaskStatePreparing TaskState = "preparing"
	TaskStateStarting  TaskState = "starting"
	TaskStateRunning   TaskState = "running"
	TaskStateComplete  TaskState = "complete"
	TaskStateShutdown  TaskState = "shutdown"
	TaskStateFailed    TaskState = "failed"
	TaskStateRejected  TaskState = "rejected"
)

// TaskSnapshot is the per-poll diagnostic view of a task that is not (or no
// longer) running. It is consumed once and never persisted.
type TaskSnapshot struct {
	State  TaskState         `json:"state"`
	Detail map[string]string `json:"detail"`
}

// Record is the durable per-session state persisted across hub restarts.
// ServiceID is opaque to callers; APIToken lets a resumed session keep the
// credential already baked into a running service.
type Record struct {
	ServiceID string `json:"service_id"`
	APIToken  string `json:"api_token,omitempty"`
}
