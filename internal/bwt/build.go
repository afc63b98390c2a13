package bwt

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/bwt-sh/bwt-go/internal/config"
	"github.com/bwt-sh/bwt-go/pkg/descriptor"
)

// ChainParams maps a configured Network to its btcsuite parameters.
func ChainParams(network config.Network) *chaincfg.Params {
	switch network {
	case config.NetworkTestnet:
		return &chaincfg.TestNet3Params
	case config.NetworkRegtest:
		return &chaincfg.RegressionNetParams
	case config.NetworkSignet:
		return &chaincfg.SigNetParams
	default:
		return &chaincfg.MainNetParams
	}
}

func rescanFromEntry(e config.RescanEntry) RescanSince {
	if e.Now {
		return RescanNow()
	}
	return RescanAt(e.Since)
}

// WalletsFromConfig expands cfg's three wallet input lists into their
// Wallet set: each descriptor becomes one wallet; each xpub expands into
// external (/0/*) and internal (/1/*) chain wallets; each bare_xpub
// expands into a single (/*) wallet (spec.md §3).
func WalletsFromConfig(cfg *config.Config) ([]*Wallet, error) {
	params := ChainParams(cfg.Network)
	var wallets []*Wallet

	for _, d := range cfg.Descriptors {
		raw, _, _ := descriptor.SplitChecksum(d.Descriptor)
		parsed, err := descriptor.Parse(raw, params)
		if err != nil {
			return nil, fmt.Errorf("bwt: config descriptor %q: %w", d.Descriptor, err)
		}
		w, err := NewWallet(parsed, rescanFromEntry(d.Rescan), cfg.GapLimit, cfg.InitialImportSize)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}

	for _, x := range cfg.Xpubs {
		xyz, err := descriptor.ParseXyzPub(x.Xpub)
		if err != nil {
			return nil, fmt.Errorf("bwt: config xpub %q: %w", x.Xpub, err)
		}
		for _, chainIdx := range []uint32{0, 1} {
			raw := xyz.AsDescriptor([]uint32{chainIdx})
			parsed, err := descriptor.Parse(raw, params)
			if err != nil {
				return nil, fmt.Errorf("bwt: expanding xpub %q chain %d: %w", x.Xpub, chainIdx, err)
			}
			w, err := NewWallet(parsed, rescanFromEntry(x.Rescan), cfg.GapLimit, cfg.InitialImportSize)
			if err != nil {
				return nil, err
			}
			wallets = append(wallets, w)
		}
	}

	for _, x := range cfg.BareXpubs {
		xyz, err := descriptor.ParseXyzPub(x.Xpub)
		if err != nil {
			return nil, fmt.Errorf("bwt: config bare_xpub %q: %w", x.Xpub, err)
		}
		raw := xyz.AsDescriptor(nil)
		parsed, err := descriptor.Parse(raw, params)
		if err != nil {
			return nil, fmt.Errorf("bwt: expanding bare_xpub %q: %w", x.Xpub, err)
		}
		w, err := NewWallet(parsed, rescanFromEntry(x.Rescan), cfg.GapLimit, cfg.InitialImportSize)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}

	return wallets, nil
}
