package apiproto

import (
	"fmt"

	"github.com/brennanwright/syncd/internal/apierr"
)

// Application error codes with protocol-fixed meaning (spec.md §6's
// exit/error table).
const (
	ErrReloginRequired = 2000
	ErrQuotaExceeded    = 2008
)

// permanentCodes is the set of server error codes that abort the operation
// outright rather than triggering backoff+retry.
var permanentCodes = map[int]bool{
	2003: true,
	2009: true,
	2005: true,
	2029: true,
	2067: true,
	5002: true,
}

// Classify maps a response's result code to a tagged apierr.Error for the
// named operation. Code 0 returns nil (success). ErrReloginRequired is
// classified Permanent (with its own message) and ErrQuotaExceeded is
// classified DiskFull, so neither is retried with backoff.
func Classify(op string, code int) error {
	switch {
	case code == 0:
		return nil
	case code == ErrReloginRequired:
		return apierr.WithCode(apierr.ClassPermanent, op, code,
			fmt.Errorf("application error %d: re-login required", code))
	case code == ErrQuotaExceeded:
		return apierr.WithCode(apierr.ClassDiskFull, op, code,
			fmt.Errorf("application error %d: quota exceeded", code))
	case permanentCodes[code]:
		return apierr.WithCode(apierr.ClassPermanent, op, code,
			fmt.Errorf("application error %d", code))
	default:
		return apierr.WithCode(apierr.ClassTemporary, op, code,
			fmt.Errorf("application error %d", code))
	}
}
