package service

import (
	"fmt"

	"signal_exec/internal/models"
)

var endpoints = map[models.Network]map[models.StreamKind]string{
	models.NetworkMain: {
		models.StreamPublicSpot:    "wss://stream.bybit.com/v5/public/spot",
		models.StreamPublicLinear:  "wss://stream.bybit.com/v5/public/linear",
		models.StreamPublicInverse: "wss://stream.bybit.com/v5/public/inverse",
		models.StreamPublicOption:  "wss://stream.bybit.com/v5/public/option",
		models.StreamPrivate:       "wss://stream.bybit.com/v5/private",
		models.StreamTrade:         "wss://stream.bybit.com/v5/trade",
	},
	models.NetworkTest: {
		models.StreamPublicSpot:    "wss://stream-testnet.bybit.com/v5/public/spot",
		models.StreamPublicLinear:  "wss://stream-testnet.bybit.com/v5/public/linear",
		models.StreamPublicInverse: "wss://stream-testnet.bybit.com/v5/public/inverse",
		models.StreamPublicOption:  "wss://stream-testnet.bybit.com/v5/public/option",
		models.StreamPrivate:       "wss://stream-testnet.bybit.com/v5/private",
		models.StreamTrade:         "wss://stream-testnet.bybit.com/v5/trade",
	},
}

// Endpoint возвращает адрес для пары (network, kind); overrides имеют приоритет.
func Endpoint(network models.Network, kind models.StreamKind, overrides map[models.StreamKind]string) (string, error) {
	if u, ok := overrides[kind]; ok && u != "" {
		return u, nil
	}
	byKind, ok := endpoints[network]
	if !ok {
		return "", fmt.Errorf("unknown network %q", network)
	}
	u, ok := byKind[kind]
	if !ok {
		return "", fmt.Errorf("unknown stream kind %q", kind)
	}
	return u, nil
}
