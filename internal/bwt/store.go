package bwt

import "sort"

// UpdateKind identifies the kind of change an IndexUpdate reports.
type UpdateKind int

const (
	UpdateNewTransaction UpdateKind = iota
	UpdateRemovedTransaction
	UpdateNewBlock
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateNewTransaction:
		return "new_transaction"
	case UpdateRemovedTransaction:
		return "removed_transaction"
	case UpdateNewBlock:
		return "new_block"
	default:
		return "unknown"
	}
}

// IndexUpdate is the message emitted by a sync round to subscribers. It
// is opaque to the watcher but carries a change kind, the affected
// KeyOrigins, and the confirmation height if known.
type IndexUpdate struct {
	Kind    UpdateKind
	TxID    string
	Origins []KeyOrigin
	Height  *int64
}

// txEntry is one observed appearance of an address in a transaction.
type txEntry struct {
	txid   string
	height *int64 // nil means unconfirmed
}

// MemoryStore is the in-memory transaction history index: per
// spec.md §1 Non-goals there is no persistent on-disk index, so this is
// rebuilt from the node's history every process run.
type MemoryStore struct {
	byAddress           map[string][]txEntry
	byTxID              map[string]KeyOrigin
	addressByScripthash map[string]string
	tipHeight           int64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byAddress:           make(map[string][]txEntry),
		byTxID:              make(map[string]KeyOrigin),
		addressByScripthash: make(map[string]string),
	}
}

// registerScripthash records the Electrum scripthash -> address mapping
// the first time Query.ScriptHash computes it, so GetHistory(scripthash)
// can resolve back to the address the store actually indexes by.
func (s *MemoryStore) registerScripthash(scripthash, address string) {
	s.addressByScripthash[scripthash] = address
}

// HasHistory reports whether address has ever appeared in a transaction.
func (s *MemoryStore) HasHistory(address string) bool {
	entries, ok := s.byAddress[address]
	return ok && len(entries) > 0
}

// Record stores txid's appearance at address with the given origin and
// height (nil for unconfirmed), returning true if this is new
// information (a new tx, or a height change on a known one).
func (s *MemoryStore) Record(address, txid string, origin KeyOrigin, height *int64) bool {
	changed := false
	entries := s.byAddress[address]
	found := false
	for i, e := range entries {
		if e.txid == txid {
			found = true
			if !sameHeight(e.height, height) {
				entries[i].height = height
				changed = true
			}
			break
		}
	}
	if !found {
		entries = append(entries, txEntry{txid: txid, height: height})
		changed = true
	}
	s.byAddress[address] = entries
	s.byTxID[txid] = origin
	return changed
}

// Remove drops txid from address's history (a reorg dropped it),
// reporting whether it had been present.
func (s *MemoryStore) Remove(address, txid string) bool {
	entries := s.byAddress[address]
	for i, e := range entries {
		if e.txid == txid {
			s.byAddress[address] = append(entries[:i], entries[i+1:]...)
			delete(s.byTxID, txid)
			return true
		}
	}
	return false
}

// History returns address's known transactions, confirmed ascending by
// height then txid, unconfirmed last, matching spec.md §4.7's ordering.
func (s *MemoryStore) History(address string) []HistoryEntry {
	entries := s.byAddress[address]
	out := make([]HistoryEntry, len(entries))
	for i, e := range entries {
		out[i] = HistoryEntry{TxID: e.txid, Height: e.height}
	}
	sort.Slice(out, func(i, j int) bool {
		hi, hj := out[i].Height, out[j].Height
		if hi == nil && hj == nil {
			return out[i].TxID < out[j].TxID
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
		return out[i].TxID < out[j].TxID
	})
	return out
}

// HistoryEntry is one transaction appearance, returned by History and
// exposed through the Query facade.
type HistoryEntry struct {
	TxID   string
	Height *int64
}

func sameHeight(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// SetTip records the chain tip height observed by the most recent sync.
func (s *MemoryStore) SetTip(height int64) bool {
	if height == s.tipHeight {
		return false
	}
	s.tipHeight = height
	return true
}

// TipHeight returns the last observed chain tip height.
func (s *MemoryStore) TipHeight() int64 { return s.tipHeight }
