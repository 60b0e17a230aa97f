package proxy

import (
	"strconv"
	"strings"

	"github.com/melih/lighthouse/internal/core/domain"
)

// Default routing values applied when the service leaves them unset.
const (
	DefaultPort   = 80
	DefaultScheme = "http"
)

// LabelOptions carries the host-wide values routing labels depend on.
type LabelOptions struct {
	CertResolver string // certificate resolver for TLS routers
	Network      string // network the proxy reaches services through
}

// RouterName is the router and service name of one deployment.
func RouterName(service, deploymentID string) string {
	return service + "-" + deploymentID
}

// Labels turns a service's routing declaration into Traefik provider labels.
// It is pure: the same input always yields the same map. A service without
// rule, domain or ports gets an empty map.
func Labels(spec *domain.ServiceSpec, deploymentID string, opts LabelOptions) map[string]string {
	labels := map[string]string{}
	name := RouterName(spec.Name, deploymentID)

	if rule := routeRule(spec); rule != "" {
		httpLabels(labels, name, rule, spec, opts)
	}
	for _, p := range spec.Ports {
		portLabels(labels, name, p)
	}

	if len(labels) > 0 {
		labels["traefik.enable"] = "true"
		if opts.Network != "" {
			labels["traefik.docker.network"] = opts.Network
		}
	}
	return labels
}

func routeRule(spec *domain.ServiceSpec) string {
	if spec.Rule != "" {
		return spec.Rule
	}
	hosts := make([]string, 0, len(spec.Domain))
	for _, d := range spec.Domain {
		hosts = append(hosts, "Host(`"+d+"`)")
	}
	return strings.Join(hosts, " || ")
}

func httpLabels(labels map[string]string, name, rule string, spec *domain.ServiceSpec, opts LabelOptions) {
	port := spec.Port
	if port == 0 {
		port = DefaultPort
	}
	scheme := spec.Scheme
	if scheme == "" {
		scheme = DefaultScheme
	}

	router := "traefik.http.routers." + name
	labels[router+".service"] = name
	labels["traefik.http.services."+name+".loadbalancer.server.scheme"] = scheme
	labels["traefik.http.services."+name+".loadbalancer.server.port"] = strconv.Itoa(port)
	labels[router+".rule"] = rule

	if spec.TLS {
		labels[router+".entrypoints"] = "https"
		labels[router+".tls.certresolver"] = opts.CertResolver

		redirect := router + "-http"
		labels[redirect+".rule"] = rule
		labels[redirect+".entrypoints"] = "http"
		labels[redirect+".service"] = name
		labels[redirect+".middlewares"] = name + "-https"
		labels["traefik.http.middlewares."+name+"-https.redirectscheme.scheme"] = "https"
	} else {
		labels[router+".entrypoints"] = "http"
	}

	var chain []string
	seen := map[string]struct{}{}
	bare := map[string]string{}
	for _, mw := range spec.Middlewares {
		mwName := name + "-" + mw.Name
		prefix := "traefik.http.middlewares." + mwName + "." + mw.Type
		for k, v := range mw.Options {
			labels[prefix+"."+k] = v
		}
		if len(mw.Options) == 0 {
			if _, ok := bare[mwName]; !ok {
				bare[mwName] = prefix
			}
		} else {
			bare[mwName] = ""
		}
		if _, ok := seen[mwName]; ok {
			continue
		}
		seen[mwName] = struct{}{}
		chain = append(chain, mwName)
	}
	// every chained middleware needs a definition; option-less ones are
	// declared by enabling their type
	for _, prefix := range bare {
		if prefix != "" {
			labels[prefix] = "true"
		}
	}
	if len(chain) > 0 {
		labels[router+".middlewares"] = strings.Join(chain, ",")
	}
}

func portLabels(labels map[string]string, name string, p domain.PortMapping) {
	proto := p.Protocol()
	cport := strconv.Itoa(p.ContainerPort)
	hport := strconv.Itoa(p.HostPort)

	svc := name + "-" + proto + "-" + cport
	router := "traefik." + proto + ".routers." + svc
	if proto == "tcp" {
		labels[router+".rule"] = "HostSNI(`*`)"
	}
	labels[router+".entrypoints"] = proto + hport
	labels[router+".service"] = svc
	labels["traefik."+proto+".services."+svc+".loadbalancer.server.port"] = cport
}
