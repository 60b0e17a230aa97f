package buildpack

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/melih/lighthouse/internal/core/domain"
	"github.com/melih/lighthouse/internal/deploy"
)

const (
	DefaultStaticImage = "nginx:alpine"
	staticConf         = ".lighthouse/nginx.conf"
)

var (
	staticDockerfile = template.Must(template.New("Dockerfile").Parse(`FROM {{ .Image }}
COPY {{ .Conf }} /etc/nginx/conf.d/default.conf
COPY {{ .Root }} /usr/share/nginx/html
`))

	staticNginx = template.Must(template.New("nginx.conf").Parse(`server {
    listen 80;
    root /usr/share/nginx/html;
    index index.html;

    location / {
        try_files $uri $uri/ {{ if .SPA }}/index.html{{ else }}=404{{ end }};
    }
}
`))
)

// Static serves a directory of files with nginx.
type Static struct {
	Root  string `mapstructure:"root"`
	Image string `mapstructure:"image"`
	SPA   bool   `mapstructure:"spa"` // unknown paths fall back to index.html
}

func NewStatic(options map[string]any) (deploy.Buildpack, error) {
	p := &Static{Root: ".", Image: DefaultStaticImage}
	if err := decodeOptions(options, p); err != nil {
		return nil, err
	}
	root := filepath.ToSlash(filepath.Clean(p.Root))
	if filepath.IsAbs(p.Root) || root == ".." || strings.HasPrefix(root, "../") {
		return nil, fmt.Errorf("option root %q must stay inside the source: %w", p.Root, domain.ErrInvalidSpec)
	}
	p.Root = root
	return p, nil
}

func (p *Static) Name() string { return "static" }

func (p *Static) Init(_ context.Context, d *deploy.Deployment) error {
	if !d.Exists(p.Root) {
		return fmt.Errorf("static root %s not found: %w", p.Root, domain.ErrInvalidSpec)
	}
	data := struct {
		Image, Conf, Root string
		SPA               bool
	}{Image: d.Resolve(p.Image), Conf: staticConf, Root: p.Root, SPA: p.SPA}

	var conf, dockerfile bytes.Buffer
	if err := staticNginx.Execute(&conf, data); err != nil {
		return err
	}
	if err := staticDockerfile.Execute(&dockerfile, data); err != nil {
		return err
	}
	if err := d.WriteFile(staticConf, conf.Bytes()); err != nil {
		return err
	}
	return d.WriteDockerfile(dockerfile.String())
}

func (p *Static) Build(ctx context.Context, d *deploy.Deployment) error {
	return d.Deploy(ctx)
}
