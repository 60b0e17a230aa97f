package domain

// Settings is the persisted configuration document: secrets and proxy state.
type Settings struct {
	Secrets  map[string]string          `yaml:"secrets,omitempty"`
	Services map[string]ServiceSettings `yaml:"services,omitempty"`
	Proxy    ProxySettings              `yaml:"proxy"`
}

// ServiceSettings holds values scoped to a single service.
type ServiceSettings struct {
	Secrets map[string]string `yaml:"secrets,omitempty"`
}

// ProxySettings is the reverse proxy's persisted state.
type ProxySettings struct {
	Ports  []int             `yaml:"ports"`
	Args   []string          `yaml:"args,omitempty"`
	Envs   map[string]string `yaml:"envs,omitempty"`
	Labels map[string]string `yaml:"labels,omitempty"`
}

// NewSettings returns an empty document with every map allocated.
func NewSettings() *Settings {
	s := &Settings{}
	s.Normalize()
	return s
}

// Normalize allocates nil maps and slices so callers can write without checks.
func (s *Settings) Normalize() {
	if s.Secrets == nil {
		s.Secrets = map[string]string{}
	}
	if s.Services == nil {
		s.Services = map[string]ServiceSettings{}
	}
	if s.Proxy.Ports == nil {
		s.Proxy.Ports = []int{}
	}
	if s.Proxy.Envs == nil {
		s.Proxy.Envs = map[string]string{}
	}
	if s.Proxy.Labels == nil {
		s.Proxy.Labels = map[string]string{}
	}
}

// ServiceSecrets returns the secrets of service, never nil.
func (s *Settings) ServiceSecrets(service string) map[string]string {
	if sv, ok := s.Services[service]; ok && sv.Secrets != nil {
		return sv.Secrets
	}
	return map[string]string{}
}

// SetServiceSecret stores a secret scoped to one service.
func (s *Settings) SetServiceSecret(service, key, value string) {
	sv := s.Services[service]
	if sv.Secrets == nil {
		sv.Secrets = map[string]string{}
	}
	sv.Secrets[key] = value
	s.Services[service] = sv
}

// DeleteServiceSecret removes a service scoped secret.
func (s *Settings) DeleteServiceSecret(service, key string) {
	sv, ok := s.Services[service]
	if !ok {
		return
	}
	delete(sv.Secrets, key)
	if len(sv.Secrets) == 0 {
		delete(s.Services, service)
		return
	}
	s.Services[service] = sv
}
