// Package besteffort runs cleanup steps whose failure must not change the
// outcome of the operation they belong to.
package besteffort

import (
	"github.com/melih/lighthouse/internal/logger"
)

// Do runs fn and logs a failure as a warning. The error is returned for
// callers that branch on it but is never meant to be propagated.
func Do(log logger.Logger, what string, fn func() error) error {
	err := fn()
	if err != nil {
		log.Warn("best-effort step failed", logger.String("step", what), logger.Error(err))
	}
	return err
}
