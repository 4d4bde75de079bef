// Package resilience groups the reliability patterns the pipeline is
// built on: error classification into closed kinds, ledger-tracked retry
// scheduling, circuit breakers for external collaborators, and fallback
// dispatch for exhausted records.
//
// The subpackages compose in one direction: classify knows nothing about
// retry, retry consumes classify verdicts, and fallback consumes retry
// records. Circuit breakers sit inside the infra adapters and guard
// individual collaborators independently of the ledger lifecycle.
package resilience
