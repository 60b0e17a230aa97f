package domain

import (
	"errors"
	"strings"
	"time"
)

// ErrInvalidSpec marks configuration errors detected before any resource is touched.
var ErrInvalidSpec = errors.New("invalid service spec")

// ServiceSpec is the declarative unit an operator authors. It is never
// mutated during a deployment attempt.
type ServiceSpec struct {
	Name    string         `yaml:"name" validate:"required,dns_rfc1035_label"`
	Pack    string         `yaml:"pack,omitempty"`
	Options map[string]any `yaml:"options,omitempty"`

	// build
	Path      string            `yaml:"path,omitempty"`
	File      string            `yaml:"file,omitempty"`
	BuildArgs map[string]string `yaml:"build_args,omitempty"`
	Pull      bool              `yaml:"pull,omitempty"`
	Cache     *bool             `yaml:"cache,omitempty"`

	// runtime
	Restart     string   `yaml:"restart,omitempty" validate:"omitempty,oneof=no on-failure always unless-stopped"`
	Commands    []string `yaml:"commands,omitempty"`
	Entrypoints []string `yaml:"entrypoints,omitempty"`
	Init        bool     `yaml:"init,omitempty"`
	CPU         string   `yaml:"cpu,omitempty" validate:"omitempty,numeric"`
	Memory      string   `yaml:"memory,omitempty"`
	OOMKill     *bool    `yaml:"oom_kill,omitempty"`
	Privileged  bool     `yaml:"privileged,omitempty"`
	CapAdds     []string `yaml:"cap_adds,omitempty"`
	CapDrops    []string `yaml:"cap_drops,omitempty"`
	User        string   `yaml:"user,omitempty"`
	Workdir     string   `yaml:"workdir,omitempty"`
	Groups      []string `yaml:"groups,omitempty"`

	// routing
	Domain      []string        `yaml:"domain,omitempty" validate:"dive,hostname_rfc1123"`
	Rule        string          `yaml:"rule,omitempty"`
	TLS         bool            `yaml:"tls,omitempty"`
	Port        int             `yaml:"port,omitempty" validate:"omitempty,min=1,max=65535"`
	Scheme      string          `yaml:"scheme,omitempty" validate:"omitempty,oneof=http https h2c"`
	Middlewares []Middleware    `yaml:"middlewares,omitempty" validate:"dive"`
	Ports       []PortMapping   `yaml:"ports,omitempty" validate:"dive"`
	Healthcheck *HealthcheckDef `yaml:"healthcheck,omitempty"`
	Rollout     Rollout         `yaml:"rollout,omitempty"`

	// networking
	Networks []string          `yaml:"networks,omitempty"`
	DNS      []string          `yaml:"dns,omitempty" validate:"dive,ip"`
	Hostname string            `yaml:"hostname,omitempty"`
	Hosts    map[string]string `yaml:"hosts,omitempty"`

	Volumes []Volume          `yaml:"volumes,omitempty" validate:"dive"`
	Secrets map[string]string `yaml:"secrets,omitempty"`
	Labels  map[string]string `yaml:"labels,omitempty"`
}

// Middleware is one reverse-proxy middleware attached to the service router.
type Middleware struct {
	Name    string            `yaml:"name" validate:"required,alphanum"`
	Type    string            `yaml:"type" validate:"required"`
	Options map[string]string `yaml:"options,omitempty"`
}

// PortMapping publishes a raw TCP or UDP port through the proxy.
type PortMapping struct {
	HostPort      int    `yaml:"hport" validate:"required,min=1,max=65535"`
	ContainerPort int    `yaml:"cport" validate:"required,min=1,max=65535"`
	Proto         string `yaml:"proto,omitempty" validate:"omitempty,oneof=tcp udp"`
}

// Protocol returns the mapping protocol, tcp when unset.
func (p PortMapping) Protocol() string {
	if p.Proto == "" {
		return "tcp"
	}
	return strings.ToLower(p.Proto)
}

// HealthcheckDef is the container health check a service declares.
type HealthcheckDef struct {
	Commands []string      `yaml:"commands" validate:"required,min=1"`
	Period   time.Duration `yaml:"period,omitempty"`
	Interval time.Duration `yaml:"interval,omitempty"`
	Retries  int           `yaml:"retries,omitempty" validate:"omitempty,min=0"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
}

// Rollout bounds the health gate. Zero values fall back to engine defaults.
type Rollout struct {
	Interval time.Duration `yaml:"interval,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
}

// Volume mounts a host path into the container. HostPath may reference
// placeholders.
type Volume struct {
	HostPath      string `yaml:"hpath" validate:"required"`
	ContainerPath string `yaml:"cpath" validate:"required"`
	ReadOnly      bool   `yaml:"readonly,omitempty"`
}

// Routed reports whether the spec declares HTTP routing.
func (s *ServiceSpec) Routed() bool {
	return s.Rule != "" || len(s.Domain) > 0
}

// CacheEnabled reports whether build cache is allowed (default true).
func (s *ServiceSpec) CacheEnabled() bool {
	return s.Cache == nil || *s.Cache
}

// HostPorts returns the host ports the proxy must publish for this service.
func (s *ServiceSpec) HostPorts() []int {
	ports := make([]int, 0, len(s.Ports))
	for _, p := range s.Ports {
		ports = append(ports, p.HostPort)
	}
	return ports
}
