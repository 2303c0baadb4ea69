package web3

import "context"

// NativeMint 是 wrapped SOL 的 mint 地址。
const NativeMint = "So11111111111111111111111111111111111111112"

// NativeDecimals 是 SOL 的精度。
const NativeDecimals = 9

// Client defines what the swap agent needs from a cluster.
type Client interface {
	// Name returns the cluster name from the registry.
	Name() string
	// TokenDecimals returns the decimals of an SPL token mint.
	TokenDecimals(ctx context.Context, mint string) (uint8, error)
	// SendTransaction submits a signed, serialized transaction and returns its signature.
	SendTransaction(ctx context.Context, raw []byte) (string, error)
	Close()
}
