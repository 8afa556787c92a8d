package provision

import "fmt"

// Stage is a point in the bootstrap flow.
type Stage string

const (
	StageStart                      Stage = "start"
	StageAccountsCreated            Stage = "accounts_created"
	StageRipplingEnabled            Stage = "rippling_enabled"
	StageFoundationTrustLineEnsured Stage = "foundation_trust_line_ensured"
	StageTokensMinted               Stage = "tokens_minted"
	StageDone                       Stage = "done"
)

// StageError records the transition a bootstrap run failed in. The operator
// can re-run the individual steps from From onwards.
type StageError struct {
	From Stage
	To   Stage
	Err  error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("bootstrap %s -> %s: %v", e.From, e.To, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
