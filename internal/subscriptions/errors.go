package subscriptions

import (
	"fmt"
	"strings"
)

// DataIntegrityError means the ledger holds data it should never hold, like
// an active member without a subscription type. It is a data problem, not a
// transient one.
type DataIntegrityError struct {
	AccountIDs []string
	Message    string
}

func (e DataIntegrityError) Error() string {
	if len(e.AccountIDs) == 0 {
		return fmt.Sprintf("subscriptions: data integrity: %s", e.Message)
	}
	return fmt.Sprintf(
		"subscriptions: data integrity: %s (accounts: %s)",
		e.Message, strings.Join(e.AccountIDs, ", "),
	)
}
