// Package crdt implements the Last-Write-Wins map used to reconcile
// execution history across independent nodes.
//
// Each entry carries a logical Clock (tick plus owning node). Clocks are
// totally ordered: higher tick wins, node identifier breaks ties
// lexicographically. Merge keeps, per key, the entry with the greatest
// clock observed anywhere; the operation is commutative, associative,
// and idempotent, so replicas converge regardless of delivery order.
//
// Tick counters are kept per key, not as one node-global counter: the
// map behaves as N independent LWW registers under one namespace.
// Collapsing the counters into a single monotonic clock changes which
// writer wins under concurrency and must not be done.
//
// Entries are never deleted and there are no tombstones; a key once
// written exists on every replica forever.
package crdt
