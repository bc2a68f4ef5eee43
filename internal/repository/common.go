package repository

import (
	"strings"

	"watcherd/internal/domain"
)

// classifyWriteError promotes a unique-constraint violation into the given
// duplicate domain code; everything else is wrapped INTERNAL. Repositories
// never try/catch a specific driver error type directly (sqlite3.Error is
// an implementation detail of mattn/go-sqlite3); string sniffing mirrors
// how the teacher's own storage layer classifies errors ad hoc from
// driver-provided messages.
func classifyWriteError(err error, duplicateCode domain.ErrorCode) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "unique constraint") {
		return domain.Wrap(duplicateCode, "uniqueness constraint violated", err)
	}
	return domain.Wrap(domain.CodeInternal, "write failed", err)
}
