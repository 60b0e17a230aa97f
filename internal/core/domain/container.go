package domain

import (
	"strings"
	"time"
)

// Container runtime states reported by the engine.
const (
	StatusCreated    = "created"
	StatusRunning    = "running"
	StatusRestarting = "restarting"
	StatusExited     = "exited"
	StatusDead       = "dead"
)

// Health states reported when a container defines a health check.
const (
	HealthStarting  = "starting"
	HealthHealthy   = "healthy"
	HealthUnhealthy = "unhealthy"
)

// Container is the read-only projection of an engine container.
type Container struct {
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	Image   string            `json:"image"`
	Status  string            `json:"status"`           // created, running, exited, ...
	Health  string            `json:"health,omitempty"` // empty when no health check is configured
	Labels  map[string]string `json:"labels,omitempty"`
	Created time.Time         `json:"created"`
}

// Active reports whether the container is running and, when it has a health
// check, healthy.
func (c Container) Active() bool {
	status := strings.ToLower(c.Status)
	health := strings.ToLower(c.Health)
	return status == StatusRunning && (health == "" || health == HealthHealthy)
}

// PortBinding publishes a container port on the host.
type PortBinding struct {
	HostPort      int
	ContainerPort int
	Proto         string // tcp | udp
}

// Healthcheck mirrors the engine's health check configuration.
type Healthcheck struct {
	Test        []string
	Interval    time.Duration
	Timeout     time.Duration
	StartPeriod time.Duration
	Retries     int
}

// ContainerOptions is everything needed to create a container.
type ContainerOptions struct {
	Image      string
	Cmd        []string
	Entrypoint []string
	Env        map[string]string
	Labels     map[string]string

	Restart     string
	Init        bool
	Healthcheck *Healthcheck

	Network    string   // primary network
	Networks   []string // additional networks
	Hostname   string
	DNS        []string
	ExtraHosts map[string]string

	CPU            string // fractional cores, ex: "0.5"
	Memory         string // ex: "512m"
	OOMKillDisable bool

	Privileged bool
	CapAdd     []string
	CapDrop    []string

	User     string
	Workdir  string
	GroupAdd []string

	Binds []string // host:container:mode
	Ports []PortBinding
}

// BuildOptions tunes an image build.
type BuildOptions struct {
	Dockerfile string
	Args       map[string]string
	Labels     map[string]string
	Hosts      map[string]string
	Pull       bool
	NoCache    bool
}

// Labels stamped on every managed container.
const (
	LabelName    = "lighthouse.name"
	LabelID      = "lighthouse.id"
	LabelVersion = "lighthouse.version"
)
