package deploy

import "fmt"

// Error marks the failure of one service's deployment.
type Error struct {
	Service string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("deploy service %s failure: %v", e.Service, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
