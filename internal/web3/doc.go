// Package web3 holds Solana connectivity helpers: cluster definitions loaded
// from configs/chains.yaml, the Client contract used by the swap agent and the
// provider registry that instantiates one client per configured cluster.
package web3
