package bwt

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/bwt-sh/bwt-go/internal/nodeapi"
)

// fakeNode is a minimal in-memory bitcoind JSON-RPC stand-in used to
// exercise WalletWatcher and Indexer against *nodeapi.Client without a
// real node.
type fakeNode struct {
	mu sync.Mutex

	labels         map[string]bool
	importFail     bool
	txs            []nodeapi.WalletTransaction
	lastBlock      string
	blockchainInfo nodeapi.BlockchainInfo
	networkInfo    nodeapi.NetworkInfo
	walletInfo     nodeapi.WalletInfo

	importCalls int
}

func newFakeNode() *fakeNode {
	return &fakeNode{
		labels:         make(map[string]bool),
		lastBlock:      "block0",
		blockchainInfo: nodeapi.BlockchainInfo{Chain: "regtest", Blocks: 100, Headers: 100},
	}
}

func (f *fakeNode) server() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(f.handle))
}

func (f *fakeNode) handle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     uint64            `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var result interface{}
	var rpcErr *nodeapi.RPCError

	switch req.Method {
	case "listlabels":
		out := make([]string, 0, len(f.labels))
		for l := range f.labels {
			out = append(out, l)
		}
		result = out

	case "importmulti":
		f.importCalls++
		var entries []struct {
			Label     string `json:"label"`
			Timestamp interface{} `json:"timestamp"`
		}
		_ = json.Unmarshal(req.Params[0], &entries)
		results := make([]nodeapi.ImportResult, len(entries))
		for i, e := range entries {
			if f.importFail {
				results[i] = nodeapi.ImportResult{Success: false, Error: &nodeapi.RPCError{Code: -1, Message: "fake failure"}}
				continue
			}
			f.labels[e.Label] = true
			results[i] = nodeapi.ImportResult{Success: true}
		}
		result = results

	case "getblockchaininfo":
		result = f.blockchainInfo

	case "getnetworkinfo":
		result = f.networkInfo

	case "getwalletinfo":
		result = f.walletInfo

	case "loadwallet":
		result = map[string]string{"name": "bwt"}

	case "listtransactions":
		result = f.txs

	case "listsinceblock":
		result = nodeapi.ListSinceBlockResult{Transactions: f.txs, LastBlock: f.lastBlock}

	case "estimatesmartfee":
		result = map[string]interface{}{"feerate": 0.0001}

	case "getmempoolentry":
		result = nodeapi.MempoolEntry{VSize: 200}

	case "getblockhash":
		result = "hash-at-height"

	case "getblockheader":
		result = "deadbeef"

	default:
		rpcErr = &nodeapi.RPCError{Code: -32601, Message: fmt.Sprintf("unknown method %s", req.Method)}
	}

	resp := struct {
		JSONRPC string             `json:"jsonrpc"`
		ID      uint64             `json:"id"`
		Result  interface{}        `json:"result,omitempty"`
		Error   *nodeapi.RPCError  `json:"error,omitempty"`
	}{JSONRPC: "1.0", ID: req.ID, Result: result, Error: rpcErr}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func newFakeClient(url string) *nodeapi.Client {
	return nodeapi.NewClient(url, "bwt", "", "", "", 0)
}

// fund appends a confirmed wallet transaction the fake node will surface
// through both listtransactions and listsinceblock.
func (f *fakeNode) fund(address, txid, label string, height int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs = append(f.txs, nodeapi.WalletTransaction{
		Address:       address,
		Category:      "receive",
		Label:         label,
		TxID:          txid,
		Confirmations: 1,
		BlockHeight:   height,
	})
}

// setLastBlock advances the cursor listsinceblock reports, simulating a
// new tip between sync rounds.
func (f *fakeNode) setLastBlock(hash string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastBlock = hash
	f.blockchainInfo.Blocks++
}
