package models

import (
	"fmt"
	"strings"
)

// AssetKind is the cryptocurrency a balance or transaction pertains to.
type AssetKind string

const (
	AssetBTC  AssetKind = "btc"
	AssetUSDT AssetKind = "usdt"
	AssetETH  AssetKind = "eth"
)

var Assets = []AssetKind{AssetBTC, AssetUSDT, AssetETH}

func ParseAssetKind(s string) (AssetKind, error) {
	kind := AssetKind(strings.ToLower(strings.TrimSpace(s)))
	if !kind.Valid() {
		return "", fmt.Errorf("unknown asset %q", s)
	}
	return kind, nil
}

func (a AssetKind) Valid() bool {
	switch a {
	case AssetBTC, AssetUSDT, AssetETH:
		return true
	}
	return false
}
