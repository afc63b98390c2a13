package nodeapi

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// NetworkInfo mirrors the fields of getnetworkinfo this package consumes.
type NetworkInfo struct {
	Version         int64   `json:"version"`
	Subversion      string  `json:"subversion"`
	RelayFeeBTCKb   float64 `json:"relayfee"`
	Connections     int64   `json:"connections"`
}

// GetNetworkInfo calls getnetworkinfo.
func (c *Client) GetNetworkInfo(ctx context.Context) (*NetworkInfo, error) {
	var info NetworkInfo
	if err := c.chainCall(ctx, "getnetworkinfo", nil, &info); err != nil {
		return nil, fmt.Errorf("nodeapi: getnetworkinfo: %w", err)
	}
	return &info, nil
}

// BlockchainInfo mirrors the fields of getblockchaininfo this package
// consumes, used both for the boot banner and the NodeWaiter's IBD poll.
type BlockchainInfo struct {
	Chain                string `json:"chain"`
	Blocks               int64  `json:"blocks"`
	Headers              int64  `json:"headers"`
	BestBlockHash        string `json:"bestblockhash"`
	InitialBlockDownload bool   `json:"initialblockdownload"`
}

// GetBlockchainInfo calls getblockchaininfo.
func (c *Client) GetBlockchainInfo(ctx context.Context) (*BlockchainInfo, error) {
	var info BlockchainInfo
	if err := c.chainCall(ctx, "getblockchaininfo", nil, &info); err != nil {
		return nil, fmt.Errorf("nodeapi: getblockchaininfo: %w", err)
	}
	return &info, nil
}

// ScanProgress is the object form of getwalletinfo.scanning: a rescan is
// in progress at the given fraction and elapsed duration.
type ScanProgress struct {
	Progress float64 `json:"progress"`
	Duration float64 `json:"duration"`
}

// WalletInfo mirrors the fields of getwalletinfo this package consumes.
// Scanning is decoded through ScanningStatus because bitcoind represents
// it as either the boolean false or an object; old nodes omit the field
// entirely, which leaves Scanning nil.
type WalletInfo struct {
	WalletName string          `json:"walletname"`
	Scanning   *ScanningStatus `json:"scanning,omitempty"`
}

// ScanningStatus decodes getwalletinfo's polymorphic "scanning" field:
// either the JSON literal false, or an object with progress/duration.
type ScanningStatus struct {
	Active   bool
	Progress float64
	Duration float64
}

// UnmarshalJSON implements the false|object decoding for ScanningStatus.
func (s *ScanningStatus) UnmarshalJSON(data []byte) error {
	if string(data) == "false" {
		s.Active = false
		return nil
	}
	var obj ScanProgress
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	s.Active = true
	s.Progress = obj.Progress
	s.Duration = obj.Duration
	return nil
}

// GetWalletInfo calls getwalletinfo against the configured wallet.
func (c *Client) GetWalletInfo(ctx context.Context) (*WalletInfo, error) {
	var info WalletInfo
	if err := c.walletCall(ctx, "getwalletinfo", nil, &info); err != nil {
		return nil, fmt.Errorf("nodeapi: getwalletinfo: %w", err)
	}
	return &info, nil
}

// LoadWallet calls loadwallet for the configured wallet name. An RPC
// error code -4 ("already loaded") is swallowed and reported as success,
// matching spec.md's boot semantics.
func (c *Client) LoadWallet(ctx context.Context) error {
	err := c.chainCall(ctx, "loadwallet", []interface{}{c.walletName}, nil)
	if err == nil {
		return nil
	}
	if IsRPCError(err, ErrCodeWalletAlreadyLoaded) {
		return nil
	}
	return fmt.Errorf("nodeapi: loadwallet: %w", err)
}

// ListLabels calls listlabels. An RPC error code -32601 ("method not
// found") means the node is too old to support it; callers should treat
// this as fatal with an upgrade recommendation, per spec.md §7.3.
func (c *Client) ListLabels(ctx context.Context) ([]string, error) {
	var labels []string
	if err := c.walletCall(ctx, "listlabels", nil, &labels); err != nil {
		return nil, err
	}
	return labels, nil
}

// ImportEntry is one entry of an importmulti batch.
type ImportEntry struct {
	ScriptPubKey ImportScriptPubKey
	Label        string
	// TimestampNow selects the "now" sentinel (no rescan); otherwise
	// Timestamp is a unix second to rescan from.
	TimestampNow bool
	Timestamp    int64
	WatchOnly    bool
}

// ImportScriptPubKey identifies the script by address, the only form
// bwt's single-key descriptors need.
type ImportScriptPubKey struct {
	Address string
}

// ImportResult is one entry of importmulti's response array.
type ImportResult struct {
	Success bool     `json:"success"`
	Warnings []string `json:"warnings,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

// ImportMulti batches all pending imports into a single importmulti
// call, as required by spec.md §4.4 (node atomicity, one rescan pass).
func (c *Client) ImportMulti(ctx context.Context, entries []ImportEntry) ([]ImportResult, error) {
	requests := make([]map[string]interface{}, len(entries))
	for i, e := range entries {
		var timestamp interface{}
		if e.TimestampNow {
			timestamp = "now"
		} else {
			timestamp = e.Timestamp
		}
		requests[i] = map[string]interface{}{
			"scriptPubKey": map[string]interface{}{"address": e.ScriptPubKey.Address},
			"label":        e.Label,
			"timestamp":    timestamp,
			"watchonly":    e.WatchOnly,
		}
	}

	var results []ImportResult
	if err := c.walletCall(ctx, "importmulti", []interface{}{requests}, &results); err != nil {
		return nil, fmt.Errorf("nodeapi: importmulti: %w", err)
	}
	return results, nil
}

// EstimateSmartFee calls estimatesmartfee for the given confirmation
// target and converts the result from BTC/kB to sat/vB. ok is false when
// the node has no estimate for the requested target.
func (c *Client) EstimateSmartFee(ctx context.Context, targetBlocks int) (satPerVByte float64, ok bool, err error) {
	var result struct {
		FeeRate float64  `json:"feerate"`
		Errors  []string `json:"errors,omitempty"`
	}
	if cerr := c.chainCall(ctx, "estimatesmartfee", []interface{}{targetBlocks}, &result); cerr != nil {
		return 0, false, fmt.Errorf("nodeapi: estimatesmartfee: %w", cerr)
	}
	if result.FeeRate <= 0 {
		return 0, false, nil
	}
	return result.FeeRate * 1e8 / 1000, true, nil
}

// MempoolEntry mirrors getmempoolentry's response, grounded on the
// original implementation's bitcoincore_ext field shape.
type MempoolEntry struct {
	VSize            int64            `json:"vsize"`
	Weight           int64            `json:"weight"`
	Fees             MempoolEntryFees `json:"fees"`
	DescendantCount  int64            `json:"descendantcount"`
	AncestorCount    int64            `json:"ancestorcount"`
	BIP125Replaceable bool            `json:"bip125-replaceable"`
}

// MempoolEntryFees is the "fees" sub-object of getmempoolentry.
type MempoolEntryFees struct {
	Base       float64 `json:"base"`
	Modified   float64 `json:"modified"`
	Ancestor   float64 `json:"ancestor"`
	Descendant float64 `json:"descendant"`
}

// GetMempoolEntry calls getmempoolentry for the given txid.
func (c *Client) GetMempoolEntry(ctx context.Context, txid string) (*MempoolEntry, error) {
	var entry MempoolEntry
	if err := c.chainCall(ctx, "getmempoolentry", []interface{}{txid}, &entry); err != nil {
		return nil, fmt.Errorf("nodeapi: getmempoolentry: %w", err)
	}
	return &entry, nil
}

// GetBlockHash calls getblockhash for the given height.
func (c *Client) GetBlockHash(ctx context.Context, height int64) (string, error) {
	var hash string
	if err := c.chainCall(ctx, "getblockhash", []interface{}{height}, &hash); err != nil {
		return "", fmt.Errorf("nodeapi: getblockhash: %w", err)
	}
	return hash, nil
}

// GetBlockHeader returns the raw serialized header bytes for the block
// at the given height, the form Query.GetHeader hands back as hex.
func (c *Client) GetBlockHeader(ctx context.Context, height int64) ([]byte, error) {
	hash, err := c.GetBlockHash(ctx, height)
	if err != nil {
		return nil, err
	}
	var headerHex string
	if err := c.chainCall(ctx, "getblockheader", []interface{}{hash, false}, &headerHex); err != nil {
		return nil, fmt.Errorf("nodeapi: getblockheader: %w", err)
	}
	return hex.DecodeString(headerHex)
}

// WalletTransaction is one entry of listtransactions/listsinceblock.
type WalletTransaction struct {
	Address       string  `json:"address"`
	Category      string  `json:"category"`
	Amount        float64 `json:"amount"`
	Label         string  `json:"label"`
	TxID          string  `json:"txid"`
	Confirmations int64   `json:"confirmations"`
	BlockHeight   int64   `json:"blockheight,omitempty"`
	Time          int64   `json:"time"`
}

// ListTransactions calls listtransactions with the given label filter
// ("*" for all) and count, newest last as bitcoind returns them.
func (c *Client) ListTransactions(ctx context.Context, label string, count int) ([]WalletTransaction, error) {
	var txs []WalletTransaction
	if err := c.walletCall(ctx, "listtransactions", []interface{}{label, count}, &txs); err != nil {
		return nil, fmt.Errorf("nodeapi: listtransactions: %w", err)
	}
	return txs, nil
}

// ListSinceBlockResult is listsinceblock's response shape.
type ListSinceBlockResult struct {
	Transactions []WalletTransaction `json:"transactions"`
	LastBlock    string              `json:"lastblock"`
}

// ListSinceBlock calls listsinceblock, used by the indexer to harvest
// all transactions affecting imported addresses since the last sync.
func (c *Client) ListSinceBlock(ctx context.Context, blockHash string) (*ListSinceBlockResult, error) {
	var result ListSinceBlockResult
	params := []interface{}{}
	if blockHash != "" {
		params = append(params, blockHash)
	}
	if err := c.walletCall(ctx, "listsinceblock", params, &result); err != nil {
		return nil, fmt.Errorf("nodeapi: listsinceblock: %w", err)
	}
	return &result, nil
}
