// Package web3 fabricates chain-shaped artefacts for the demo pipeline:
// transaction hashes, account addresses and ERC-4337 style user operations.
// Nothing here talks to a node; values only need to look like the real thing
// and be reproducible when the entropy source is seeded.
package web3
