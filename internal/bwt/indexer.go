package bwt

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bwt-sh/bwt-go/internal/nodeapi"
	"github.com/bwt-sh/bwt-go/pkg/logging"
)

// fullHistoryCount is the listtransactions count used during initial
// sync, large enough to pull a personal wallet's complete history in one
// call; spec.md leaves the exact RPC page size unspecified.
const fullHistoryCount = 100_000

// Indexer owns the WalletWatcher and the in-memory transaction store. It
// performs the initial sync (reconcile + cold import + harvest to fixed
// point) and the incremental sync that produces IndexUpdate events.
//
// mu enforces spec.md §5's single-writer/many-readers discipline:
// InitialSync and Sync (called exclusively by the SyncCoordinator) take
// the write lock, as does RegisterScripthash for the scripthash mapping
// Query.ScriptHash records; Query's read-only methods take the read
// lock, so a server goroutine always observes a consistent snapshot
// between writes.
type Indexer struct {
	client  *nodeapi.Client
	watcher *WalletWatcher
	store   *MemoryStore
	log     *logging.Logger

	mu            sync.RWMutex
	lastBlockHash string
}

// NewIndexer creates an Indexer with an empty in-memory store.
func NewIndexer(client *nodeapi.Client, watcher *WalletWatcher) *Indexer {
	return &Indexer{
		client:  client,
		watcher: watcher,
		store:   NewMemoryStore(),
		log:     logging.GetDefault().Component("indexer"),
	}
}

// Watcher exposes the underlying WalletWatcher. Callers other than the
// coordinator must treat it as read-only.
func (ix *Indexer) Watcher() *WalletWatcher { return ix.watcher }

// History returns scripthash's resolved address history under the read
// lock, reporting whether the scripthash is known.
func (ix *Indexer) History(scripthash string) ([]HistoryEntry, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	address, ok := ix.store.addressByScripthash[scripthash]
	if !ok {
		return nil, false
	}
	return ix.store.History(address), true
}

// RegisterScripthash records a scripthash -> address mapping computed by
// Query.ScriptHash, under the write lock since it mutates the store.
func (ix *Indexer) RegisterScripthash(scripthash, address string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.store.registerScripthash(scripthash, address)
}

// WalletViews returns a read-locked snapshot of every watched wallet.
func (ix *Indexer) WalletViews(network string) []WalletView {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return buildWalletViews(ix.watcher.Wallets(), network)
}

// InitialSync reconciles prior node state, cold-imports gap-limit
// ranges with the configured rescan window, then harvests transactions
// and repeats the import round until a fixed point is reached: funding
// no longer pushes any wallet past its watch index (spec.md §4.4).
func (ix *Indexer) InitialSync(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if err := ix.watcher.CheckImports(ctx, ix.client); err != nil {
		return err
	}
	if _, err := ix.watcher.DoImports(ctx, ix.client, true); err != nil {
		return err
	}

	for {
		if _, _, err := ix.harvest(ctx); err != nil {
			return err
		}
		more, err := ix.watcher.DoImports(ctx, ix.client, true)
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return nil
}

// Sync performs an incremental sync round: pull transactions newer than
// the last cursor, mark funded wallets, grow imports with no rescan
// (the node is caught up), and return ordered IndexUpdate events.
func (ix *Indexer) Sync(ctx context.Context) ([]IndexUpdate, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	updates, tipChanged, err := ix.harvestSinceLast(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := ix.watcher.DoImports(ctx, ix.client, false); err != nil {
		return nil, err
	}

	sortUpdates(updates)
	if tipChanged {
		height := ix.store.TipHeight()
		updates = append(updates, IndexUpdate{Kind: UpdateNewBlock, Height: &height})
	}
	return updates, nil
}

// harvest pulls the wallet's full transaction history via
// listtransactions and marks funded wallets. Used by InitialSync, which
// does not need update events, only the funded/imported fixed point.
func (ix *Indexer) harvest(ctx context.Context) (marked bool, updates []IndexUpdate, err error) {
	txs, err := ix.client.ListTransactions(ctx, "*", fullHistoryCount)
	if err != nil {
		return false, nil, fmt.Errorf("bwt: listtransactions: %w", err)
	}
	for _, tx := range txs {
		u, didMark := ix.applyTransaction(tx)
		if didMark {
			marked = true
		}
		if u != nil {
			updates = append(updates, *u)
		}
	}
	return marked, updates, nil
}

// harvestSinceLast pulls transactions since the last synced block via
// listsinceblock, updates the cursor, and reports whether the chain tip
// moved.
func (ix *Indexer) harvestSinceLast(ctx context.Context) ([]IndexUpdate, bool, error) {
	result, err := ix.client.ListSinceBlock(ctx, ix.lastBlockHash)
	if err != nil {
		return nil, false, fmt.Errorf("bwt: listsinceblock: %w", err)
	}

	var updates []IndexUpdate
	for _, tx := range result.Transactions {
		u, _ := ix.applyTransaction(tx)
		if u != nil {
			updates = append(updates, *u)
		}
	}

	tipChanged := result.LastBlock != "" && result.LastBlock != ix.lastBlockHash
	ix.lastBlockHash = result.LastBlock
	if tipChanged {
		info, err := ix.client.GetBlockchainInfo(ctx)
		if err == nil {
			ix.store.SetTip(info.Blocks)
		}
	}
	return updates, tipChanged, nil
}

// applyTransaction records one wallet transaction entry into the store
// and marks its originating wallet funded, returning an IndexUpdate
// describing the change (nil if the label is unknown, or nothing about
// the stored history actually changed).
func (ix *Indexer) applyTransaction(tx nodeapi.WalletTransaction) (*IndexUpdate, bool) {
	origin, ok := ParseLabel(tx.Label)
	if !ok {
		return nil, false
	}

	marked := false
	if origin.Kind == KindDescriptor {
		ix.watcher.MarkFunded(origin)
		marked = true
	}

	var height *int64
	if tx.Confirmations > 0 && tx.BlockHeight > 0 {
		h := tx.BlockHeight
		height = &h
	}

	if tx.Confirmations < 0 {
		if ix.store.Remove(tx.Address, tx.TxID) {
			return &IndexUpdate{Kind: UpdateRemovedTransaction, TxID: tx.TxID, Origins: []KeyOrigin{origin}}, marked
		}
		return nil, marked
	}

	if !ix.store.Record(tx.Address, tx.TxID, origin, height) {
		return nil, marked
	}
	return &IndexUpdate{Kind: UpdateNewTransaction, TxID: tx.TxID, Origins: []KeyOrigin{origin}, Height: height}, marked
}

// sortUpdates orders transaction updates by (height, txid) per
// spec.md §4.4, unconfirmed (nil height) last. Tip updates are appended
// by the caller after sorting, so they always come last.
func sortUpdates(updates []IndexUpdate) {
	sort.SliceStable(updates, func(i, j int) bool {
		hi, hj := updates[i].Height, updates[j].Height
		if hi == nil && hj == nil {
			return updates[i].TxID < updates[j].TxID
		}
		if hi == nil {
			return false
		}
		if hj == nil {
			return true
		}
		if *hi != *hj {
			return *hi < *hj
		}
		return updates[i].TxID < updates[j].TxID
	})
}
