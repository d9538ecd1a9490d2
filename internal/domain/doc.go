// Package domain holds the value types shared by the outreach engine: the
// activity ledger row, step definitions, lead enrollments, campaigns, and
// rate-limit admissions.
//
// Nothing here touches storage or transport. Derived state (what a lead's
// steps look like) is computed by package derive from ledger rows; this
// package only names the states and reasons.
package domain
