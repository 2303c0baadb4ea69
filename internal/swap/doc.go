// Package swap executes token swaps on Solana through the Jupiter aggregator:
// quote, build, sign with the agent key and submit over the cluster RPC.
package swap
