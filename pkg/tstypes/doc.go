// Package tstypes defines the core data structures shared across the
// tier store: keys, record headers, tiers, and migration jobs.
//
// All other packages — placement, accountant, replacement, migration,
// policy, coordinator — build on these types rather than defining their
// own copies, so a header read from the placement table means the same
// thing everywhere it is passed.
package tstypes
