package bwt

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"

	"github.com/bwt-sh/bwt-go/pkg/descriptor"
)

// hardenedBit marks a BIP-32 child index as hardened; bwt only ever
// derives unhardened children, so any index with this bit set is a
// programmer error.
const hardenedBit = 0x80000000

// HistoryChecker is the subset of the in-memory store Wallet.FindGap
// needs: whether an address has ever appeared in a transaction.
type HistoryChecker interface {
	HasHistory(address string) bool
}

// Import is one entry produced by Wallet.MakeImports: an address to
// import at a given label, with its own rescan policy.
type Import struct {
	Index   uint32
	Address string
	Label   string
	Rescan  RescanSince
}

// Wallet is one ranged (or non-ranged) output descriptor, tracking the
// highest derivation index observed funded and the highest ever
// announced to the node.
type Wallet struct {
	descriptor *descriptor.Descriptor

	checksum       descriptor.Checksum
	isRanged       bool
	rescanPolicy   RescanSince
	gapLimit       uint32
	initialImport  uint32
	maxFundedIdx   *uint32
	maxImportedIdx *uint32
	doneInitial    bool
}

// NewWallet constructs a Wallet from a parsed descriptor. initialImport
// is silently raised to gapLimit when configured smaller, per spec.md
// §8 Boundary behaviors.
func NewWallet(desc *descriptor.Descriptor, rescan RescanSince, gapLimit, initialImport uint32) (*Wallet, error) {
	if !desc.HasAddressRepresentation() {
		return nil, fmt.Errorf("bwt: descriptor %q has no single-address representation", desc.Raw)
	}
	checksum, err := descriptor.ComputeChecksum(desc.Raw)
	if err != nil {
		return nil, fmt.Errorf("bwt: computing checksum for %q: %w", desc.Raw, err)
	}
	if initialImport < gapLimit {
		initialImport = gapLimit
	}
	return &Wallet{
		descriptor:    desc,
		checksum:      checksum,
		isRanged:      desc.Key.IsRange,
		rescanPolicy:  rescan,
		gapLimit:      gapLimit,
		initialImport: initialImport,
	}, nil
}

// Checksum returns the wallet's identity.
func (w *Wallet) Checksum() descriptor.Checksum { return w.checksum }

// IsRanged reports whether the descriptor's key uses the ranged "*"
// wildcard.
func (w *Wallet) IsRanged() bool { return w.isRanged }

// Descriptor returns the canonical descriptor string (no checksum
// suffix; append "#"+Checksum() for the full canonical form).
func (w *Wallet) Descriptor() string { return w.descriptor.Raw }

// CanonicalDescriptor returns the descriptor string with its checksum
// suffix appended, e.g. "wpkh(xpub.../*)#abcd1234".
func (w *Wallet) CanonicalDescriptor() string {
	return fmt.Sprintf("%s#%s", w.descriptor.Raw, w.checksum)
}

// RescanPolicy returns the wallet's configured rescan marker.
func (w *Wallet) RescanPolicy() RescanSince { return w.rescanPolicy }

// GapLimit returns the steady-state lookahead window.
func (w *Wallet) GapLimit() uint32 { return w.gapLimit }

// InitialImportSize returns the first-run lookahead window.
func (w *Wallet) InitialImportSize() uint32 { return w.initialImport }

// DoneInitialImport reports whether the cold-import phase has finished.
func (w *Wallet) DoneInitialImport() bool { return w.doneInitial }

// MaxFundedIndex returns the largest derivation index with observed
// transaction history, or nil if none.
func (w *Wallet) MaxFundedIndex() *uint32 { return w.maxFundedIdx }

// MaxImportedIndex returns the largest derivation index ever announced
// to the node, or nil if none.
func (w *Wallet) MaxImportedIndex() *uint32 { return w.maxImportedIdx }

// IsValidIndex reports whether index is a legal derivation index for
// this wallet: 0 only for non-ranged wallets, any unhardened index for
// ranged ones.
func (w *Wallet) IsValidIndex(index uint32) bool {
	if !w.isRanged {
		return index == 0
	}
	return index&hardenedBit == 0
}

// DeriveAddress derives the output address at index. Panics if index is
// hardened or invalid for a non-ranged wallet, matching spec.md §7.5's
// "programmer error: panic" policy.
func (w *Wallet) DeriveAddress(index uint32) (btcutil.Address, error) {
	if index&hardenedBit != 0 {
		panic("bwt: cannot derive a hardened child index")
	}
	if !w.isRanged && index != 0 {
		panic("bwt: non-ranged wallet derive called with non-zero index")
	}
	return w.descriptor.Address(index)
}

// WatchIndex returns the maximum index currently required to be
// imported, per spec.md §4.2.
func (w *Wallet) WatchIndex() uint32 {
	if !w.isRanged {
		return 0
	}
	lookahead := w.gapLimit
	if !w.doneInitial {
		lookahead = w.initialImport
	}
	if w.maxFundedIdx == nil {
		return lookahead - 1
	}
	return *w.maxFundedIdx + lookahead
}

// MakeImports enumerates index in [start, end] inclusive, producing an
// address, label, and per-entry rescan marker. When rescan is false, the
// "now" sentinel is used regardless of the wallet's own rescan policy,
// since growth imports follow an earlier rescan and need none.
func (w *Wallet) MakeImports(start, end uint32, rescan bool) ([]Import, error) {
	if end < start {
		return nil, nil
	}
	count := end - start + 1
	entries := make([]Import, 0, count)
	for n := uint32(0); n < count; n++ {
		i := start + n
		addr, err := w.DeriveAddress(i)
		if err != nil {
			return nil, fmt.Errorf("bwt: deriving index %d of %s: %w", i, w.checksum, err)
		}
		policy := w.rescanPolicy
		if !rescan {
			policy = RescanNow()
		}
		entries = append(entries, Import{
			Index:   i,
			Address: addr.String(),
			Label:   DescriptorOrigin(w.checksum, i).Label(),
			Rescan:  policy,
		})
	}
	return entries, nil
}

// FindGap walks 0..=maxFundedIdx for a ranged, funded wallet and returns
// the longest run of consecutive history-less indices, used only for
// diagnostics and tuning. Returns nil if the wallet has no funding
// history. Non-ranged wallets always report a gap of 0.
func (w *Wallet) FindGap(store HistoryChecker) (*int, error) {
	if !w.isRanged {
		zero := 0
		return &zero, nil
	}
	if w.maxFundedIdx == nil {
		return nil, nil
	}
	longest, run := 0, 0
	for i := uint32(0); i <= *w.maxFundedIdx; i++ {
		addr, err := w.DeriveAddress(i)
		if err != nil {
			return nil, err
		}
		if store.HasHistory(addr.String()) {
			run = 0
			continue
		}
		run++
		if run > longest {
			longest = run
		}
	}
	return &longest, nil
}

// Bip32Origins returns the BIP-32 origin(s) of the keys backing this
// wallet at the given index: extended by index for ranged keys, as-is
// otherwise. bwt's descriptors are always single-key, so this is always
// a single-element slice.
func (w *Wallet) Bip32Origins(index uint32) []descriptor.Bip32Origin {
	origin := w.descriptor.Key.BIP32Origin()
	if w.isRanged {
		origin = origin.Child(index)
	}
	return []descriptor.Bip32Origin{origin}
}

// SatisfactionWeight reports the descriptor's approximate max spend
// weight, used only for the Wallet JSON serialization's field of the
// same name.
func (w *Wallet) SatisfactionWeight() int { return w.descriptor.SatisfactionWeight() }

// markFunded advances maxFundedIdx (and, transitively, maxImportedIdx)
// to index if larger than their current values. Called only by
// WalletWatcher.MarkFunded, which routes origins to the right wallet.
func (w *Wallet) markFunded(index uint32) {
	w.maxFundedIdx = maxPtr(w.maxFundedIdx, index)
	w.maxImportedIdx = maxPtr(w.maxImportedIdx, index)
}

// markImported advances maxImportedIdx to index if larger.
func (w *Wallet) markImported(index uint32) {
	w.maxImportedIdx = maxPtr(w.maxImportedIdx, index)
}

func maxPtr(cur *uint32, v uint32) *uint32 {
	if cur == nil || v > *cur {
		nv := v
		return &nv
	}
	return cur
}
