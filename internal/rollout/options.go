package rollout

import (
	"path/filepath"
	"strings"

	"github.com/melih/lighthouse/internal/core/domain"
	"github.com/melih/lighthouse/internal/placeholder"
	"github.com/melih/lighthouse/internal/proxy"
	"github.com/melih/lighthouse/internal/version"
)

// DefaultRestart is the restart policy of services that do not set one.
const DefaultRestart = "always"

// Environment holds what container options depend on beyond the spec itself.
type Environment struct {
	Lookup  placeholder.Lookup // resolves secrets, env values, labels and volume paths
	DataDir string             // relative volume host paths live under <DataDir>/volumes
	Network string             // primary network shared with the proxy
	Proxy   proxy.LabelOptions
}

// ContainerOptions computes the creation options of a deployment's container.
func ContainerOptions(spec *domain.ServiceSpec, image, deploymentID string, env Environment) domain.ContainerOptions {
	lookup := env.Lookup
	if lookup == nil {
		lookup = placeholder.Map(nil)
	}

	envs := placeholder.ResolveMap(spec.Secrets, lookup)
	envs["LIGHTHOUSE_NAME"] = spec.Name
	envs["LIGHTHOUSE_ID"] = deploymentID
	envs["LIGHTHOUSE_VERSION"] = version.Version

	labels := placeholder.ResolveMap(spec.Labels, lookup)
	for k, v := range proxy.Labels(spec, deploymentID, env.Proxy) {
		labels[k] = v
	}
	labels[domain.LabelName] = spec.Name
	labels[domain.LabelID] = deploymentID
	labels[domain.LabelVersion] = version.Version

	restart := spec.Restart
	if restart == "" {
		restart = DefaultRestart
	}

	opts := domain.ContainerOptions{
		Image:          image,
		Cmd:            spec.Commands,
		Entrypoint:     spec.Entrypoints,
		Env:            envs,
		Labels:         labels,
		Restart:        restart,
		Init:           spec.Init,
		Network:        env.Network,
		Networks:       spec.Networks,
		Hostname:       spec.Hostname,
		DNS:            spec.DNS,
		ExtraHosts:     spec.Hosts,
		CPU:            spec.CPU,
		Memory:         spec.Memory,
		OOMKillDisable: spec.OOMKill != nil && !*spec.OOMKill,
		Privileged:     spec.Privileged,
		CapAdd:         spec.CapAdds,
		CapDrop:        spec.CapDrops,
		User:           spec.User,
		Workdir:        spec.Workdir,
		GroupAdd:       spec.Groups,
	}

	if hc := spec.Healthcheck; hc != nil && len(hc.Commands) > 0 {
		opts.Healthcheck = &domain.Healthcheck{
			Test:        healthTest(hc.Commands),
			Interval:    hc.Interval,
			Timeout:     hc.Timeout,
			StartPeriod: hc.Period,
			Retries:     hc.Retries,
		}
	}

	for _, v := range spec.Volumes {
		mode := "rw"
		if v.ReadOnly {
			mode = "ro"
		}
		opts.Binds = append(opts.Binds, VolumePath(v.HostPath, lookup, env.DataDir)+":"+v.ContainerPath+":"+mode)
	}
	return opts
}

// VolumePath resolves placeholders in a volume host path. Paths written as
// @/name, or relative paths, are placed under <dataDir>/volumes.
func VolumePath(hpath string, lookup placeholder.Lookup, dataDir string) string {
	p := placeholder.Resolve(hpath, lookup)
	p = strings.TrimPrefix(p, "@/")
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(dataDir, "volumes", p)
}

// healthTest passes engine-style tests (CMD, CMD-SHELL, NONE) through and
// runs anything else as an exec command.
func healthTest(commands []string) []string {
	switch commands[0] {
	case "CMD", "CMD-SHELL", "NONE":
		return commands
	}
	return append([]string{"CMD"}, commands...)
}
