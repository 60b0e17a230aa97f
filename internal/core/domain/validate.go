package domain

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks the spec before any resource is touched. Errors wrap
// ErrInvalidSpec.
func (s *ServiceSpec) Validate() error {
	if err := validatorInstance().Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w %q: %s", ErrInvalidSpec, s.Name, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w %q: %v", ErrInvalidSpec, s.Name, err)
	}

	seen := map[string]struct{}{}
	for _, p := range s.Ports {
		key := fmt.Sprintf("%d/%s", p.HostPort, p.Protocol())
		if _, ok := seen[key]; ok {
			return fmt.Errorf("%w %q: host port %s declared twice", ErrInvalidSpec, s.Name, key)
		}
		seen[key] = struct{}{}
	}
	for _, m := range s.Middlewares {
		if m.Name == "https" {
			return fmt.Errorf("%w %q: middleware name %q is reserved", ErrInvalidSpec, s.Name, m.Name)
		}
	}
	return nil
}
