package execution

import (
	"errors"
	"fmt"
)

var (
	ErrMarketEntryUnsupported = errors.New("broker does not support market entry")
	ErrNoProtectiveExit       = errors.New("no broker protective exits and no recognized watchdog")
	ErrMissingCredential      = errors.New("no valid stored credential")
	ErrNotArmed               = errors.New("account is not armed for live execution")
)

// BlockedError reports that pre-flight refused an account. Nothing was
// sent to the broker.
type BlockedError struct {
	AccountID string
	Err       error
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("execution blocked for account %s: %v", e.AccountID, e.Err)
}

func (e *BlockedError) Unwrap() error { return e.Err }

func blocked(accountID string, err error) error {
	return &BlockedError{AccountID: accountID, Err: err}
}
