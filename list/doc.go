// Package list maps the generic dot store payload onto
// the collaborative list model: a root map of items keyed
// by their creation dot, each item a nested map with
// multi-valued text and done fields, and a distinguished
// order array of item references giving display order.
//
// Operations are transaction builders: they buffer their
// effects on a crdt.Transaction and take effect atomically
// at commit, as one delta. Reads project the store into
// plain values that expose every concurrent version, they
// never collapse conflicts on behalf of the caller.
package list
