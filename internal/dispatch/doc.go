// Package dispatch fans alerts out to channels and runs dispatch cycles.
//
// A Router owns the channel targets. For each alert it consults the
// ledger, attempts every channel that has not yet succeeded for the
// alert's key, waits for all of them and appends the outcomes. There is
// no in-process retry; a later cycle retries what failed.
//
// A Runner drives one cycle over the tracker: classify, compose, route,
// and report.
package dispatch
