package bwt

import (
	"context"
	"testing"

	"github.com/bwt-sh/bwt-go/internal/nodeapi"
)

func newTestIndexer(t *testing.T, node *fakeNode, gapLimit, initial uint32) (*Indexer, *nodeapi.Client, *Wallet) {
	t.Helper()
	server := node.server()
	t.Cleanup(server.Close)
	client := newFakeClient(server.URL)

	w := mustWallet(t, "wpkh("+testXpub+"/0/*)", gapLimit, initial)
	watcher, err := NewWalletWatcher([]*Wallet{w})
	if err != nil {
		t.Fatal(err)
	}
	return NewIndexer(client, watcher), client, w
}

func TestInitialSyncColdImportsFreshWallet(t *testing.T) {
	node := newFakeNode()
	ix, _, w := newTestIndexer(t, node, 5, 10)
	ctx := context.Background()

	if err := ix.InitialSync(ctx); err != nil {
		t.Fatalf("InitialSync: %v", err)
	}
	if w.MaxImportedIndex() == nil || *w.MaxImportedIndex() != 9 {
		t.Fatalf("MaxImportedIndex() = %v, want 9", w.MaxImportedIndex())
	}
	if !w.DoneInitialImport() {
		t.Error("InitialSync should reach the fixed point with done_initial_import true")
	}
	if node.importCalls != 1 {
		t.Errorf("importCalls = %d, want 1 (single batched importmulti)", node.importCalls)
	}
}

func TestSyncRecordsFundingAndGrowsImports(t *testing.T) {
	node := newFakeNode()
	ix, _, w := newTestIndexer(t, node, 5, 10)
	ctx := context.Background()

	if err := ix.InitialSync(ctx); err != nil {
		t.Fatalf("InitialSync: %v", err)
	}

	addr3, err := w.DeriveAddress(3)
	if err != nil {
		t.Fatal(err)
	}
	node.setLastBlock("block1")
	node.fund(addr3.String(), "tx3", DescriptorOrigin(w.checksum, 3).Label(), 101)

	updates, err := ix.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}

	var sawTx, sawBlock bool
	for _, u := range updates {
		switch u.Kind {
		case UpdateNewTransaction:
			sawTx = true
			if u.TxID != "tx3" {
				t.Errorf("update txid = %q, want tx3", u.TxID)
			}
			if u.Height == nil || *u.Height != 101 {
				t.Errorf("update height = %v, want 101", u.Height)
			}
		case UpdateNewBlock:
			sawBlock = true
			if updates[len(updates)-1].Kind != UpdateNewBlock {
				t.Error("new_block update should be sorted last")
			}
		}
	}
	if !sawTx {
		t.Error("expected a new_transaction update")
	}
	if !sawBlock {
		t.Error("expected a new_block update since the cursor advanced")
	}
	if w.MaxFundedIndex() == nil || *w.MaxFundedIndex() != 3 {
		t.Fatalf("MaxFundedIndex() = %v, want 3", w.MaxFundedIndex())
	}
	if *w.MaxImportedIndex() != 9 {
		t.Fatalf("funding at index 3 (watch=8) should not grow past the existing import ceiling of 9, got %d", *w.MaxImportedIndex())
	}

	entries, known := ix.History(mustScripthash(t, ix, addr3.String()))
	if !known {
		t.Fatal("expected the registered scripthash to resolve")
	}
	if len(entries) != 1 || entries[0].TxID != "tx3" {
		t.Fatalf("History() = %+v, want a single tx3 entry", entries)
	}

	// Funding at index 9 (the edge of the current window) pushes
	// watch_index to 14 and must trigger a growth import.
	importsBefore := node.importCalls
	addr9, err := w.DeriveAddress(9)
	if err != nil {
		t.Fatal(err)
	}
	node.setLastBlock("block2")
	node.fund(addr9.String(), "tx9", DescriptorOrigin(w.checksum, 9).Label(), 102)

	if _, err := ix.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if *w.MaxImportedIndex() != 14 {
		t.Fatalf("MaxImportedIndex() = %d, want 14 after growth", *w.MaxImportedIndex())
	}
	if node.importCalls <= importsBefore {
		t.Error("expected an additional importmulti call to grow the window")
	}
}

func TestApplyTransactionIgnoresUnknownLabels(t *testing.T) {
	node := newFakeNode()
	ix, _, _ := newTestIndexer(t, node, 5, 10)
	ctx := context.Background()
	if err := ix.InitialSync(ctx); err != nil {
		t.Fatalf("InitialSync: %v", err)
	}

	node.fund("bc1qsomeoneelse", "tx-foreign", "other-app", 50)
	updates, err := ix.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	for _, u := range updates {
		if u.TxID == "tx-foreign" {
			t.Error("a transaction under a foreign label should not produce an update")
		}
	}
}

// mustScripthash mirrors Query.ScriptHash's registration side effect
// without pulling in the full Query/nodeapi RPC surface.
func mustScripthash(t *testing.T, ix *Indexer, address string) string {
	t.Helper()
	hash := "sh:" + address
	ix.RegisterScripthash(hash, address)
	return hash
}
