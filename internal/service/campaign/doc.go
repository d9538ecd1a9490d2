// Package campaign implements the outreach campaign control plane.
//
// The service validates sequence definitions before anything is planned
// against them, applies the pause/resume/stop lifecycle, enrolls leads and
// turns explicit retry requests into RETRY ledger rows. Lead progress is
// never stored here; it is derived from the activity ledger on request.
//
// Repository implementations live in repository/postgres/ and repository/memory/.
package campaign
