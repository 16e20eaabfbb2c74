// Package snapshot encodes a solved energy system as a self-contained,
// content-addressed document.
//
// A Snapshot carries the topology of the system (node labels, kinds and
// edges), the optional model definition it was loaded from, and every
// result entry keyed by node labels instead of pointers. Encode produces
// canonical JSON (sorted keys, NFC-normalized strings, shortest number
// form), so the same system solved to the same values always hashes to
// the same ID.
//
// Restore maps the label keys back onto the nodes of a live system.
package snapshot
