// Package transport defines the submission boundary between the
// execution engine and the chain: a binary-RPC client and an
// HTTP-JSON-RPC client, chosen between at submission time by a
// startup-configured flag. Both are external collaborators, specified
// only by the methods the core calls.
package transport

import "context"

// Executed is the outcome of submitting a signed transaction, as
// reported by whichever client served the call.
type Executed struct {
	Digest             string
	EffectsTimeMs      float64
	HasCheckpoint      bool
	CheckpointSequence uint64
}

// Submitter executes a signed transaction against the chain and waits
// for its effects. A binary-RPC client and an HTTP-JSON-RPC client both
// implement this the same way from the execution engine's perspective.
type Submitter interface {
	SubmitTransaction(ctx context.Context, txBCS []byte, signatures [][]byte) (Executed, error)
}

// BinaryRPCClient is the binary-RPC (e.g. gRPC) submission path.
type BinaryRPCClient interface {
	Submitter
}

// JSONRPCClient is the HTTP-JSON-RPC submission path.
type JSONRPCClient interface {
	Submitter
}

// GraphQLClient is a read-side external collaborator (indexer queries);
// the execution engine does not submit through it, but the router's
// quote path may use it to enrich venue data. Specified only by the
// methods a concrete implementation would need.
type GraphQLClient interface {
	Query(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error
}
