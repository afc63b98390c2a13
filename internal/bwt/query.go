// Query is the read-only surface external servers (Electrum, HTTP,
// webhook — out of this package's scope per spec.md §1) are specified
// against. Its only write to the Indexer is ScriptHash recording the
// scripthash -> address mapping under the Indexer's write lock; callers
// on server goroutines may call it concurrently with the
// SyncCoordinator's write-side loop.
package bwt

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"

	"github.com/bwt-sh/bwt-go/internal/nodeapi"
)

// Query is the external read facade over a running Indexer.
type Query struct {
	client  *nodeapi.Client
	indexer *Indexer
	params  *chaincfg.Params
}

// NewQuery builds a Query against indexer's store and client's node.
func NewQuery(client *nodeapi.Client, indexer *Indexer, params *chaincfg.Params) *Query {
	return &Query{client: client, indexer: indexer, params: params}
}

// GetHeader returns the hex-encoded serialized block header at height.
func (q *Query) GetHeader(ctx context.Context, height uint32) (string, error) {
	raw, err := q.client.GetBlockHeader(ctx, int64(height))
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

// GetHeaders returns hex-encoded headers for heights, same length and
// order as the input.
func (q *Query) GetHeaders(ctx context.Context, heights []uint32) ([]string, error) {
	out := make([]string, len(heights))
	for i, h := range heights {
		hdr, err := q.GetHeader(ctx, h)
		if err != nil {
			return nil, fmt.Errorf("bwt: header at height %d: %w", h, err)
		}
		out[i] = hdr
	}
	return out, nil
}

// EstimateFee returns a sat/vB fee estimate for confirmation within
// targetBlocks, or nil when the node has no estimate for that target.
func (q *Query) EstimateFee(ctx context.Context, targetBlocks int) (*float64, error) {
	satPerVByte, ok, err := q.client.EstimateSmartFee(ctx, targetBlocks)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &satPerVByte, nil
}

// RelayFee reads the node's minimum relay fee and reports it honestly in
// sat/vB, resolving spec.md §9's open question about the original's
// hardcoded relay fee stub.
func (q *Query) RelayFee(ctx context.Context) (float64, error) {
	info, err := q.client.GetNetworkInfo(ctx)
	if err != nil {
		return 0, err
	}
	return info.RelayFeeBTCKb * 1e8 / 1000, nil
}

// MempoolEntry returns fee-bump diagnostics for an unconfirmed
// transaction, per the original implementation's bitcoincore_ext
// extension (SPEC_FULL.md Supplemented Features #2).
func (q *Query) MempoolEntry(ctx context.Context, txid string) (*nodeapi.MempoolEntry, error) {
	return q.client.GetMempoolEntry(ctx, txid)
}

// GetHistory returns the transaction history for the address backing
// scripthash, confirmed ascending by height then txid, unconfirmed last.
// scripthash is the hex-encoded, byte-reversed SHA-256 of the output
// script, as used by the Electrum protocol.
func (q *Query) GetHistory(scripthash string) ([]HistoryEntry, error) {
	entries, _ := q.indexer.History(scripthash)
	return entries, nil
}

// ScriptHash computes the Electrum-protocol scripthash for address:
// SHA-256 of its output script, with the digest byte-reversed and
// hex-encoded.
func (q *Query) ScriptHash(address string) (string, error) {
	addr, err := btcutil.DecodeAddress(address, q.params)
	if err != nil {
		return "", fmt.Errorf("bwt: decoding address %q: %w", address, err)
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return "", fmt.Errorf("bwt: building script for %q: %w", address, err)
	}
	sum := chainhash.HashB(script)
	reversed := make([]byte, len(sum))
	for i, b := range sum {
		reversed[len(sum)-1-i] = b
	}
	hashHex := hex.EncodeToString(reversed)
	q.indexer.RegisterScripthash(hashHex, address)
	return hashHex, nil
}

// WalletView is the Wallet serialization shape for the read API, per
// SPEC_FULL.md / spec.md §9 Design notes.
type WalletView struct {
	Descriptor          string  `json:"descriptor"`
	Network             string  `json:"network"`
	IsRanged            bool    `json:"is_ranged"`
	Bip32Origins        []string `json:"bip32_origins"`
	RescanNow           bool    `json:"rescan_now"`
	RescanTimestamp     int64   `json:"rescan_timestamp,omitempty"`
	DoneInitialImport   bool    `json:"done_initial_import"`
	MaxFundedIndex      *uint32 `json:"max_funded_index,omitempty"`
	MaxImportedIndex    *uint32 `json:"max_imported_index,omitempty"`
	SatisfactionWeight  int     `json:"satisfaction_weight"`
	GapLimit            *uint32 `json:"gap_limit,omitempty"`
	InitialImportSize   *uint32 `json:"initial_import_size,omitempty"`
}

// Wallets returns a read-only view of every watched wallet, taken under
// the Indexer's read lock.
func (q *Query) Wallets(network string) []WalletView {
	return q.indexer.WalletViews(network)
}

// buildWalletViews renders wallets into their read-API serialization.
// Must be called with the owning Indexer's lock already held.
func buildWalletViews(wallets []*Wallet, network string) []WalletView {
	out := make([]WalletView, len(wallets))
	for i, w := range wallets {
		index := uint32(0)
		if w.MaxFundedIndex() != nil {
			index = *w.MaxFundedIndex()
		}
		origins := w.Bip32Origins(index)
		originStrs := make([]string, len(origins))
		for j, o := range origins {
			originStrs[j] = o.String()
		}
		view := WalletView{
			Descriptor:         w.CanonicalDescriptor(),
			Network:            network,
			IsRanged:           w.IsRanged(),
			Bip32Origins:       originStrs,
			RescanNow:          w.RescanPolicy().IsNow(),
			RescanTimestamp:    w.RescanPolicy().Timestamp(),
			DoneInitialImport:  w.DoneInitialImport(),
			MaxFundedIndex:     w.MaxFundedIndex(),
			MaxImportedIndex:   w.MaxImportedIndex(),
			SatisfactionWeight: w.SatisfactionWeight(),
		}
		if w.IsRanged() {
			gap, initial := w.GapLimit(), w.InitialImportSize()
			view.GapLimit, view.InitialImportSize = &gap, &initial
		}
		out[i] = view
	}
	return out
}
