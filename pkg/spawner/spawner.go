package spawner

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hubfleet/hubfleet/pkg/config"
	"github.com/hubfleet/hubfleet/pkg/engine"
	"github.com/hubfleet/hubfleet/pkg/log"
	"github.com/hubfleet/hubfleet/pkg/metrics"
	"github.com/hubfleet/hubfleet/pkg/name"
	"github.com/hubfleet/hubfleet/pkg/spec"
	"github.com/hubfleet/hubfleet/pkg/state"
	"github.com/hubfleet/hubfleet/pkg/types"
	"github.com/hubfleet/hubfleet/pkg/volume"
)

// Recognized env keys carrying the session api token in a running service.
// Scanned in declaration order; first match wins.
var tokenEnvPrefixes = []string{"JPY_API_TOKEN=", "JUPYTERHUB_API_TOKEN="}

// TaskConflictError reports more than one running task for one service name,
// a violation of the at-most-one-task invariant. It is never resolved by
// picking a task: that would hide a real orchestration bug.
type TaskConflictError struct {
	Service string
	Count   int
}

func (e *TaskConflictError) Error() string {
	return fmt.Sprintf("found %d running tasks for service %q, expected at most one", e.Count, e.Service)
}

// Endpoint is where a user's server is reachable. Host is the engine service
// name: callers on the same overlay network resolve it by name.
type Endpoint struct {
	Host string
	Port int
}

// AddressResolver overrides endpoint resolution for callers that bypass the
// overlay network (host networking, external proxies).
type AddressResolver func(serviceName string, cfg *config.Config) (Endpoint, error)

// StartOptions are the per-session inputs to EnsureRunning.
type StartOptions struct {
	// Image overrides the configured image for this session.
	Image string

	// Args are the server arguments handed to the service.
	Args []string

	// Env is the hub-provided environment for the service.
	Env map[string]string

	// APIToken is the hub-minted credential. Empty means reuse the
	// recovered token or mint a fresh one.
	APIToken string

	// HubAPIURL is the hub callback address baked into Args; rewritten
	// when the config sets hub_connect_addr.
	HubAPIURL string

	// ExtraCreateOptions overlay the generated create options last.
	ExtraCreateOptions map[string]any
}

// Spawner reconciles one user session against the engine: it derives the
// session's service identity, discovers existing state, and creates, reuses
// or replaces the service as needed.
type Spawner struct {
	cfg    *config.Config
	user   string
	server string

	engine *engine.Facade
	store  state.Store
	log    zerolog.Logger

	deriver     *name.Deriver
	serviceName string

	// serviceID is the retained engine identifier; empty means no known
	// service. apiToken is the session credential, recovered on reuse.
	serviceID string
	apiToken  string

	resolver     AddressResolver
	volumeNaming volume.NamingStrategy
}

// New builds a Spawner for one user session and restores any persisted
// record. serverName is empty for the user's default session. The service
// name is derived eagerly so a broken template fails here, before any engine
// call.
func New(cfg *config.Config, user, serverName string, eng *engine.Facade, store state.Store) (*Spawner, error) {
	deriver := name.NewDeriver(user)
	serviceName, err := deriver.ServiceName(cfg.NameTemplate, cfg.Image, serverName, cfg.Prefix)
	if err != nil {
		return nil, err
	}

	s := &Spawner{
		cfg:         cfg,
		user:        user,
		server:      serverName,
		engine:      eng,
		store:       store,
		log:         log.WithService(serviceName),
		deriver:     deriver,
		serviceName: serviceName,
	}

	if store != nil {
		rec, found, err := store.Get(user, serverName)
		if err != nil {
			return nil, fmt.Errorf("loading session record: %w", err)
		}
		if found {
			s.serviceID = rec.ServiceID
			s.apiToken = rec.APIToken
		}
	}
	return s, nil
}

// ServiceName returns the derived engine service name for this session.
func (s *Spawner) ServiceName() string {
	return s.serviceName
}

// ServiceID returns the retained engine identifier, empty if none is known.
func (s *Spawner) ServiceID() string {
	return s.serviceID
}

// APIToken returns the session credential, recovered or minted.
func (s *Spawner) APIToken() string {
	return s.apiToken
}

// SetAddressResolver installs a custom endpoint resolver.
func (s *Spawner) SetAddressResolver(r AddressResolver) {
	s.resolver = r
}

// SetVolumeNamingStrategy installs a custom path naming strategy.
func (s *Spawner) SetVolumeNamingStrategy(strategy volume.NamingStrategy) {
	s.volumeNaming = strategy
}

// GetService queries the engine for this session's service by derived name.
// A 404 (service removed) and a 500 (service on an unhealthy node) both
// return (nil, nil) and clear the retained identifier: in neither case may
// the caller assume continuity. Any other failure surfaces unmodified.
func (s *Spawner) GetService(ctx context.Context) (*types.Service, error) {
	s.log.Debug().Msg("inspecting service")
	svc, err := s.engine.InspectService(ctx, s.serviceName)
	if err != nil {
		switch {
		case engine.IsNotFound(err):
			s.log.Info().Msg("service is gone")
		case engine.IsNodeUnhealthy(err):
			s.log.Info().Msg("service is on an unhealthy node")
		default:
			return nil, err
		}
		s.serviceID = ""
		return nil, nil
	}
	s.serviceID = svc.ID
	return svc, nil
}

// GetTask returns this session's single running task, or nil if the service
// or task is absent. Service existence is confirmed first; the task filter
// never runs against a name known to be gone. More than one running task is
// a fatal consistency violation.
func (s *Spawner) GetTask(ctx context.Context) (*types.Task, error) {
	svc, err := s.GetService(ctx)
	if err != nil {
		return nil, err
	}
	if svc == nil {
		return nil, nil
	}

	s.log.Debug().Msg("listing running tasks")
	tasks, err := s.engine.ListTasks(ctx, s.serviceName, types.TaskStateRunning)
	if err != nil {
		if engine.IsNotFound(err) {
			s.log.Info().Msg("tasks are gone")
			return nil, nil
		}
		return nil, err
	}
	switch len(tasks) {
	case 0:
		return nil, nil
	case 1:
		return &tasks[0], nil
	}
	return nil, &TaskConflictError{Service: s.serviceName, Count: len(tasks)}
}

// EnsureRunning makes sure exactly one service exists for this session and
// returns its endpoint. An absent service is created from a freshly built
// specification; a present one is reused, recovering the api token from its
// declared environment so the session resumes its old credential. With
// RemoveOnStop set, a pre-existing service is removed first as leftover
// state from a dirty shutdown.
func (s *Spawner) EnsureRunning(ctx context.Context, opts StartOptions) (Endpoint, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SpawnDuration)

	svc, err := s.GetService(ctx)
	if err != nil {
		metrics.SpawnsTotal.WithLabelValues("error").Inc()
		return Endpoint{}, err
	}

	if svc != nil && s.cfg.RemoveOnStop {
		s.log.Warn().Str("id", shortID(s.serviceID)).Msg("removing service that should have been cleaned up")
		if err := s.engine.RemoveService(ctx, s.serviceID); err != nil && !engine.IsNotFound(err) {
			metrics.SpawnsTotal.WithLabelValues("error").Inc()
			return Endpoint{}, err
		}
		svc = nil
		s.serviceID = ""
	}

	if svc == nil {
		if err := s.create(ctx, opts); err != nil {
			metrics.SpawnsTotal.WithLabelValues("error").Inc()
			return Endpoint{}, err
		}
		metrics.SpawnsTotal.WithLabelValues("created").Inc()
		metrics.ServicesActive.Inc()
	} else {
		s.reuse(svc, opts)
		metrics.SpawnsTotal.WithLabelValues("reused").Inc()
	}

	if err := s.persist(); err != nil {
		return Endpoint{}, err
	}

	if s.resolver != nil {
		return s.resolver(s.serviceName, s.cfg)
	}
	// Name resolution is delegated to the overlay network: the service
	// name resolves for every caller attached to it.
	return Endpoint{Host: s.serviceName, Port: s.cfg.Port}, nil
}

// create builds a specification and submits it. On failure no record is
// retained, so the next attempt retries cleanly.
func (s *Spawner) create(ctx context.Context, opts StartOptions) error {
	image := opts.Image
	if image == "" {
		image = s.cfg.Image
	}

	token := opts.APIToken
	if token == "" {
		token = s.apiToken
	}
	if token == "" {
		token = uuid.NewString()
	}

	mounts, err := volume.Build(
		s.cfg.Volumes,
		s.cfg.ReadOnlyVolumes,
		s.driverConfig(),
		s.volumeNaming,
		volume.Context{Username: s.deriver.Username()},
	)
	if err != nil {
		return err
	}

	args, err := s.buildArgs(opts)
	if err != nil {
		return err
	}

	createOpts := spec.Options{
		"name":     s.serviceName,
		"image":    image,
		"env":      s.buildEnv(opts.Env, token),
		"mounts":   mounts,
		"args":     args,
		"networks": s.networks(),
	}
	if len(s.cfg.Command) > 0 {
		createOpts["command"] = s.cfg.Command
	}
	if s.cfg.MemLimit != nil {
		createOpts["mem_limit"] = *s.cfg.MemLimit
	}
	if s.cfg.MemGuarantee != nil {
		createOpts["mem_reservation"] = *s.cfg.MemGuarantee
	}
	if s.cfg.CPULimit != nil {
		createOpts["cpu_limit"] = *s.cfg.CPULimit
	}
	if s.cfg.CPUGuarantee != nil {
		createOpts["cpu_reservation"] = *s.cfg.CPUGuarantee
	}
	for k, v := range s.cfg.ExtraCreateOptions {
		createOpts[k] = v
	}
	for k, v := range opts.ExtraCreateOptions {
		createOpts[k] = v
	}

	result, err := spec.Build(createOpts)
	if err != nil {
		return err
	}
	if len(result.Unused) > 0 {
		s.log.Warn().Strs("keys", result.Unused).Msg("unused create option keys")
	}

	id, err := s.engine.CreateService(ctx, result.Spec)
	if err != nil {
		return err
	}
	s.serviceID = id
	s.apiToken = token
	s.log.Info().Str("id", shortID(id)).Str("image", image).Msg("created service")
	return nil
}

// reuse adopts a running service, recovering the session token from its
// declared environment instead of minting a new one.
func (s *Spawner) reuse(svc *types.Service, opts StartOptions) {
	s.log.Info().Str("id", shortID(s.serviceID)).Msg("found existing service")
	for _, line := range svc.Spec.TaskTemplate.ContainerSpec.Env {
		for _, prefix := range tokenEnvPrefixes {
			if strings.HasPrefix(line, prefix) {
				s.apiToken = line[len(prefix):]
				return
			}
		}
	}
	if opts.APIToken != "" {
		s.apiToken = opts.APIToken
	}
}

// Stop removes the session's service. The local record is always cleared,
// even when removal fails: the engine stays reachable for operator cleanup,
// but a wedged session record would lock the caller out forever.
func (s *Spawner) Stop(ctx context.Context) error {
	if s.serviceID == "" {
		s.log.Debug().Msg("stop with no retained service id")
	} else {
		s.log.Info().Str("id", shortID(s.serviceID)).Msg("stopping service")
		err := s.engine.RemoveService(ctx, s.serviceID)
		switch {
		case err == nil, engine.IsNotFound(err):
			metrics.StopsTotal.WithLabelValues("removed").Inc()
		default:
			metrics.StopsTotal.WithLabelValues("error").Inc()
			s.log.Error().Err(err).Msg("removing service failed, clearing record anyway")
		}
		metrics.ServicesActive.Dec()
	}

	s.serviceID = ""
	s.apiToken = ""
	if s.store != nil {
		if err := s.store.Delete(s.user, s.server); err != nil {
			return fmt.Errorf("clearing session record: %w", err)
		}
	}
	return nil
}

func (s *Spawner) persist() error {
	if s.store == nil {
		return nil
	}
	rec := types.Record{ServiceID: s.serviceID, APIToken: s.apiToken}
	if err := s.store.Put(s.user, s.server, rec); err != nil {
		return fmt.Errorf("persisting session record: %w", err)
	}
	return nil
}

func (s *Spawner) driverConfig() *types.DriverConfig {
	if s.cfg.VolumeDriver == "" {
		return nil
	}
	return &types.DriverConfig{
		Name:    s.cfg.VolumeDriver,
		Options: s.cfg.VolumeDriverOptions,
	}
}

func (s *Spawner) networks() []string {
	if s.cfg.NetworkName == "" {
		return nil
	}
	return []string{s.cfg.NetworkName}
}

// buildEnv flattens the hub environment plus the session token into the
// engine's KEY=VALUE list, sorted for reproducible specifications. The token
// is written under both recognized keys so a later reconciliation can
// recover it.
func (s *Spawner) buildEnv(env map[string]string, token string) []string {
	merged := make(map[string]string, len(env)+2)
	for k, v := range env {
		merged[k] = v
	}
	merged["JUPYTERHUB_API_TOKEN"] = token
	merged["JPY_API_TOKEN"] = token

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+merged[k])
	}
	return lines
}

// buildArgs appends the configured extra args and, when hub_connect_addr is
// set, replaces the hub callback argument with one pointing at the
// reachable address.
func (s *Spawner) buildArgs(opts StartOptions) ([]string, error) {
	args := append([]string{}, opts.Args...)
	args = append(args, s.cfg.ExtraArgs...)
	if s.cfg.HubConnectAddr == "" {
		return args, nil
	}

	hubURL, err := rewriteHubURL(opts.HubAPIURL, s.cfg.HubConnectAddr)
	if err != nil {
		return nil, err
	}
	filtered := args[:0]
	for _, arg := range args {
		if strings.HasPrefix(arg, "--hub-api-url=") {
			continue
		}
		filtered = append(filtered, arg)
	}
	return append(filtered, "--hub-api-url="+hubURL), nil
}

// rewriteHubURL swaps the host of the hub api url for the configured connect
// address, keeping scheme, port and path.
func rewriteHubURL(apiURL, connectAddr string) (string, error) {
	if apiURL == "" {
		return "", fmt.Errorf("hub_connect_addr set but no hub api url provided")
	}
	u, err := url.Parse(apiURL)
	if err != nil {
		return "", fmt.Errorf("invalid hub api url %q: %w", apiURL, err)
	}
	if port := u.Port(); port != "" {
		u.Host = connectAddr + ":" + port
	} else {
		u.Host = connectAddr
	}
	return u.String(), nil
}

func shortID(id string) string {
	if len(id) > 7 {
		return id[:7]
	}
	return id
}
