package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		spec    ServiceSpec
		wantErr bool
	}{
		{name: "minimal", spec: ServiceSpec{Name: "demo"}},
		{name: "missing name", spec: ServiceSpec{}, wantErr: true},
		{name: "uppercase name", spec: ServiceSpec{Name: "Demo_App"}, wantErr: true},
		{name: "leading digit", spec: ServiceSpec{Name: "1demo"}, wantErr: true},
		{name: "bad proto", spec: ServiceSpec{Name: "db", Ports: []PortMapping{{HostPort: 1, ContainerPort: 1, Proto: "sctp"}}}, wantErr: true},
		{name: "port range", spec: ServiceSpec{Name: "db", Ports: []PortMapping{{HostPort: 70000, ContainerPort: 1}}}, wantErr: true},
		{name: "duplicate host port", spec: ServiceSpec{Name: "db", Ports: []PortMapping{
			{HostPort: 5432, ContainerPort: 5432}, {HostPort: 5432, ContainerPort: 5433, Proto: "tcp"},
		}}, wantErr: true},
		{name: "same port both protos", spec: ServiceSpec{Name: "dns", Ports: []PortMapping{
			{HostPort: 53, ContainerPort: 53}, {HostPort: 53, ContainerPort: 53, Proto: "udp"},
		}}},
		{name: "bad restart", spec: ServiceSpec{Name: "demo", Restart: "sometimes"}, wantErr: true},
		{name: "middleware without type", spec: ServiceSpec{Name: "demo", Middlewares: []Middleware{{Name: "auth"}}}, wantErr: true},
		{name: "reserved middleware", spec: ServiceSpec{Name: "demo", Middlewares: []Middleware{{Name: "https", Type: "headers"}}}, wantErr: true},
		{name: "volume without cpath", spec: ServiceSpec{Name: "demo", Volumes: []Volume{{HostPath: "/a"}}}, wantErr: true},
		{name: "bad dns", spec: ServiceSpec{Name: "demo", DNS: []string{"resolver"}}, wantErr: true},
		{name: "full", spec: ServiceSpec{
			Name:        "web",
			Domain:      []string{"web.example.com"},
			TLS:         true,
			Port:        3000,
			Scheme:      "http",
			Restart:     "unless-stopped",
			CPU:         "0.5",
			Middlewares: []Middleware{{Name: "gzip", Type: "compress"}},
			Healthcheck: &HealthcheckDef{Commands: []string{"CMD", "true"}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSpec)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestPortProtocolDefault(t *testing.T) {
	assert.Equal(t, "tcp", PortMapping{}.Protocol())
	assert.Equal(t, "udp", PortMapping{Proto: "UDP"}.Protocol())
}

func TestSettingsServiceSecrets(t *testing.T) {
	s := NewSettings()
	assert.Empty(t, s.ServiceSecrets("demo"))

	s.SetServiceSecret("demo", "a", "1")
	s.SetServiceSecret("demo", "b", "2")
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, s.ServiceSecrets("demo"))

	s.DeleteServiceSecret("demo", "a")
	s.DeleteServiceSecret("demo", "b")
	assert.NotContains(t, s.Services, "demo")
}

func TestContainerActive(t *testing.T) {
	assert.True(t, Container{Status: StatusRunning}.Active())
	assert.True(t, Container{Status: StatusRunning, Health: HealthHealthy}.Active())
	assert.False(t, Container{Status: StatusRunning, Health: HealthStarting}.Active())
	assert.False(t, Container{Status: StatusExited}.Active())
}
