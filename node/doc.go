/*
Package node implements the replication service owning a replica's
authoritative causal dot store. Exactly one goroutine, the service's owner
loop, ever touches the store: local transactions, inbound deltas, inbound
anti-entropy contexts and the periodic anti-entropy broadcast are all
serialized through it. Convergence across replicas is resolved structurally
by the store's join algebra, never by coordination, so the loop holds no
locks and performs no blocking RPC.
*/
package node
