// Package policy implements the declarative policy evaluator: a
// ticker-driven sweep over every resident header that enqueues
// migration jobs when a rule's trigger fires.
//
// The evaluator never moves bytes itself; it only derives jobs and
// hands them to the migration engine, so a slow or backlogged engine
// never blocks the next sweep. Evaluation order per key is: a
// pin_fixed_tier match short-circuits everything else, then
// retain_tags exempts a key from demotion-shaped rules (it still
// promotes normally), then the configured rules are tried in order
// and the first match wins. A separate pass independently checks each
// tier's watermark and enqueues eviction_demand jobs against whichever
// key its replacement index currently names as the victim.
package policy
