// Package expiry holds the domain model shared by the alert engine:
// tracked items as read from the tracker store, urgency tiers, and the
// calendar-day arithmetic every cycle depends on.
//
// Items are read-only snapshots. The engine never writes them back.
package expiry
