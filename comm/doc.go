/*
Package comm implements the broadcast boundary of dotlist: the version-tagged
wire envelope for sync messages, the UDP broadcast socket shared by all
replicas on one domain, and the background sender and receiver routines.

The transport is deliberately contract-free: datagrams may arrive duplicated,
reordered or not at all, and comm makes no attempt to fix that. All
correctness under loss and reordering lives in package crdt's join algebra
plus the periodic anti-entropy exchange of package node.
*/
package comm
