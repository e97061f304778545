// Package pipeline orchestrates the compress loop: scanning the recorder
// share for new footage, ordering the queue round-robin across camera
// folders, encoding each file to local scratch, and relocating verified
// outputs to the destination tree.
//
// A [Scanner] keeps a [ScanState] current through cheap incremental scans
// (today's and yesterday's date folders) punctuated by periodic full walks.
// [OrganizeRoundRobin] interleaves the queue so a camera with a deep backlog
// cannot starve the others. The [Runner] ties it together and owns all
// terminal outcomes: done, skipped, corrupt, failed.
//
// [Analyze] is the read-only counterpart: probe everything, print the
// classification table, touch nothing.
package pipeline
