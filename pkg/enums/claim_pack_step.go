package enums

import "fmt"

// ClaimPackStep is the durable cursor of a claim-pack job.
type ClaimPackStep string

const (
	ClaimPackStepEnsureAccountMinBalance ClaimPackStep = "ensure_account_min_balance"
	ClaimPackStepMintCollectibles        ClaimPackStep = "mint_collectibles"
	ClaimPackStepTransferPack            ClaimPackStep = "transfer_pack"
	ClaimPackStepNotifyPackOwner         ClaimPackStep = "notify_pack_owner"
)

// claimPackSteps is ordered; the pipeline walks it front to back.
var claimPackSteps = []ClaimPackStep{
	ClaimPackStepEnsureAccountMinBalance,
	ClaimPackStepMintCollectibles,
	ClaimPackStepTransferPack,
	ClaimPackStepNotifyPackOwner,
}

// ClaimPackSteps returns the steps in execution order.
func ClaimPackSteps() []ClaimPackStep {
	steps := make([]ClaimPackStep, len(claimPackSteps))
	copy(steps, claimPackSteps)
	return steps
}

// FirstClaimPackStep is used when a payload carries no step.
func FirstClaimPackStep() ClaimPackStep {
	return claimPackSteps[0]
}

// IsValid reports whether the value matches a known step.
func (s ClaimPackStep) IsValid() bool {
	return s.Index() >= 0
}

// Index returns the position of the step in execution order, or -1.
func (s ClaimPackStep) Index() int {
	for i, candidate := range claimPackSteps {
		if candidate == s {
			return i
		}
	}
	return -1
}

// Next returns the following step and false when s is the last one.
func (s ClaimPackStep) Next() (ClaimPackStep, bool) {
	idx := s.Index()
	if idx < 0 || idx+1 >= len(claimPackSteps) {
		return "", false
	}
	return claimPackSteps[idx+1], true
}

// ParseClaimPackStep converts raw input into ClaimPackStep. Empty input maps to
// the first step.
func ParseClaimPackStep(value string) (ClaimPackStep, error) {
	if value == "" {
		return FirstClaimPackStep(), nil
	}
	for _, candidate := range claimPackSteps {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid claim pack step %q", value)
}
