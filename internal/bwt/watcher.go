package bwt

import (
	"context"
	"fmt"

	"github.com/bwt-sh/bwt-go/internal/nodeapi"
	"github.com/bwt-sh/bwt-go/pkg/descriptor"
	"github.com/bwt-sh/bwt-go/pkg/logging"
)

// WalletWatcher owns the Checksum -> Wallet mapping. Mutated only by the
// single thread that owns the Indexer write-side (the SyncCoordinator).
type WalletWatcher struct {
	wallets map[descriptor.Checksum]*Wallet
	order   []descriptor.Checksum
	log     *logging.Logger
}

// NewWalletWatcher builds a watcher over wallets. Duplicate checksums are
// a configuration error (collision), as is an empty wallet list.
func NewWalletWatcher(wallets []*Wallet) (*WalletWatcher, error) {
	if len(wallets) == 0 {
		return nil, fmt.Errorf("bwt: no wallets configured (descriptors/xpubs/bare_xpubs all empty)")
	}
	w := &WalletWatcher{
		wallets: make(map[descriptor.Checksum]*Wallet, len(wallets)),
		log:     logging.GetDefault().Component("watcher"),
	}
	for _, wallet := range wallets {
		if _, dup := w.wallets[wallet.checksum]; dup {
			return nil, fmt.Errorf("bwt: duplicate wallet checksum %s (descriptor %q)", wallet.checksum, wallet.Descriptor())
		}
		w.wallets[wallet.checksum] = wallet
		w.order = append(w.order, wallet.checksum)
	}
	return w, nil
}

// Wallets returns the watched wallets in configuration order.
func (w *WalletWatcher) Wallets() []*Wallet {
	out := make([]*Wallet, len(w.order))
	for i, cs := range w.order {
		out[i] = w.wallets[cs]
	}
	return out
}

// Wallet looks up a wallet by checksum.
func (w *WalletWatcher) Wallet(checksum descriptor.Checksum) (*Wallet, bool) {
	wallet, ok := w.wallets[checksum]
	return wallet, ok
}

// MarkFunded advances the owning wallet's max-funded (and transitively
// max-imported) index for a Descriptor origin. Standalone origins and
// origins of unknown wallets are ignored.
func (w *WalletWatcher) MarkFunded(origin KeyOrigin) {
	if origin.Kind != KindDescriptor {
		return
	}
	wallet, ok := w.wallets[origin.Checksum]
	if !ok {
		return
	}
	wallet.markFunded(origin.Index)
}

// CheckImports queries the node's label set and, for each label
// belonging to a known wallet, tracks the maximum previously-imported
// index per wallet. done_initial_import is set true for a wallet iff at
// least one of its addresses was previously imported (spec.md §4.3).
//
// An RPC error code -32601 means the node is too old to support
// listlabels; this is surfaced as a fatal, friendly upgrade warning.
func (w *WalletWatcher) CheckImports(ctx context.Context, client *nodeapi.Client) error {
	labels, err := client.ListLabels(ctx)
	if err != nil {
		if nodeapi.IsRPCError(err, nodeapi.ErrCodeMethodNotFound) {
			w.log.Error("bitcoind is too old to support listlabels; upgrade to Bitcoin Core 0.17+")
			return fmt.Errorf("bwt: node does not support listlabels (upgrade required): %w", err)
		}
		return fmt.Errorf("bwt: listlabels: %w", err)
	}

	maxByChecksum := make(map[descriptor.Checksum]uint32)
	for _, label := range labels {
		origin, ok := ParseLabel(label)
		if !ok || origin.Kind != KindDescriptor {
			continue
		}
		if _, known := w.wallets[origin.Checksum]; !known {
			continue
		}
		if cur, seen := maxByChecksum[origin.Checksum]; !seen || origin.Index > cur {
			maxByChecksum[origin.Checksum] = origin.Index
		}
	}

	for checksum, max := range maxByChecksum {
		wallet := w.wallets[checksum]
		wallet.markImported(max)
		wallet.doneInitial = true
	}
	return nil
}

// DoImports computes each wallet's outstanding import range and batches
// all pending entries into a single importmulti call. Returns true iff
// anything was imported. Any importmulti entry reporting success=false
// is fatal: the invariant "addresses believed imported are actually
// imported" must hold.
func (w *WalletWatcher) DoImports(ctx context.Context, client *nodeapi.Client, rescan bool) (bool, error) {
	type pending struct {
		wallet *Wallet
		ceil   uint32
		n      int
	}
	var entries []nodeapi.ImportEntry
	var plans []pending

	for _, checksum := range w.order {
		wallet := w.wallets[checksum]
		watch := wallet.WatchIndex()

		var start uint32
		need := false
		if wallet.maxImportedIdx == nil {
			start, need = 0, true
		} else if watch > *wallet.maxImportedIdx {
			start, need = *wallet.maxImportedIdx+1, true
		}

		if !need {
			if !wallet.doneInitial {
				wallet.doneInitial = true
			}
			continue
		}

		imports, err := wallet.MakeImports(start, watch, rescan)
		if err != nil {
			return false, err
		}
		for _, imp := range imports {
			entries = append(entries, nodeapi.ImportEntry{
				ScriptPubKey: nodeapi.ImportScriptPubKey{Address: imp.Address},
				Label:        imp.Label,
				TimestampNow: imp.Rescan.IsNow(),
				Timestamp:    imp.Rescan.Timestamp(),
				WatchOnly:    true,
			})
		}
		plans = append(plans, pending{wallet: wallet, ceil: watch, n: len(imports)})
	}

	if len(entries) == 0 {
		return false, nil
	}

	results, err := client.ImportMulti(ctx, entries)
	if err != nil {
		return false, fmt.Errorf("bwt: importmulti: %w", err)
	}
	if len(results) != len(entries) {
		return false, fmt.Errorf("bwt: importmulti returned %d results for %d entries", len(results), len(entries))
	}

	offset := 0
	for _, plan := range plans {
		for i := 0; i < plan.n; i++ {
			r := results[offset+i]
			for _, warn := range r.Warnings {
				w.log.Warn("importmulti warning", "wallet", plan.wallet.checksum, "warning", warn)
			}
			if !r.Success {
				return false, fmt.Errorf("bwt: importmulti entry %d for wallet %s failed: %v", offset+i, plan.wallet.checksum, r.Error)
			}
		}
		offset += plan.n
		plan.wallet.markImported(plan.ceil)
	}

	return true, nil
}
