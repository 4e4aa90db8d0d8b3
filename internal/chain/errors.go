package chain

import "github.com/pkg/errors"

// Error kinds raised by the Connector (spec.md §7). Callers classify with
// errors.Is/errors.As against these sentinels rather than string matching.
var (
	// ErrTransientRPC covers any I/O failure talking to the RPC endpoint.
	// It is never returned for chain-state reasons (e.g. tx not mined).
	ErrTransientRPC = errors.New("transient rpc error")

	// ErrConfirmTimeout is returned by WaitTx when the transaction is not
	// mined within the caller-supplied timeout.
	ErrConfirmTimeout = errors.New("confirmation timeout")

	// ErrRangeTooLarge names the RangeTooLarge error kind. GetLogs does
	// not return it: it treats any FilterLogs failure as a range limit and
	// subdivides, and a failure at minChunkSize surfaces as ErrTransientRPC.
	ErrRangeTooLarge = errors.New("log range too large")
)
