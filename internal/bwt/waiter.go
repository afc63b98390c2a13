package bwt

import (
	"context"
	"time"

	"github.com/bwt-sh/bwt-go/internal/nodeapi"
	"github.com/bwt-sh/bwt-go/pkg/logging"
)

// waiterPollInterval is the fixed poll cadence for both the IBD wait and
// the rescan-progress wait, per spec.md §4.6.
const waiterPollInterval = 15 * time.Second

// NodeWaiter is the pre-flight boot check: wait for the node's chain
// sync and any in-progress rescan to complete before the sync
// coordinator starts.
type NodeWaiter struct {
	client *nodeapi.Client
	log    *logging.Logger
}

// NewNodeWaiter builds a NodeWaiter for client.
func NewNodeWaiter(client *nodeapi.Client) *NodeWaiter {
	return &NodeWaiter{client: client, log: logging.GetDefault().Component("waiter")}
}

// Wait blocks until the node reports it is caught up to the chain tip
// and has finished any in-progress wallet rescan.
func (w *NodeWaiter) Wait(ctx context.Context) error {
	if err := w.logBanner(ctx); err != nil {
		return err
	}
	if err := w.waitForChainSync(ctx); err != nil {
		return err
	}
	return w.waitForRescan(ctx)
}

func (w *NodeWaiter) logBanner(ctx context.Context) error {
	netInfo, err := w.client.GetNetworkInfo(ctx)
	if err != nil {
		return err
	}
	chainInfo, err := w.client.GetBlockchainInfo(ctx)
	if err != nil {
		return err
	}
	w.log.Info("connected to bitcoind",
		"version", netInfo.Version,
		"subversion", netInfo.Subversion,
		"chain", chainInfo.Chain,
		"blocks", chainInfo.Blocks,
		"headers", chainInfo.Headers,
	)
	return nil
}

// waitForChainSync polls getblockchaininfo until IBD has finished (or
// the chain is regtest, which reports initialblockdownload=true forever
// when idle, so it's exempted from that check) and blocks have caught
// up to headers.
func (w *NodeWaiter) waitForChainSync(ctx context.Context) error {
	for {
		info, err := w.client.GetBlockchainInfo(ctx)
		if err != nil {
			return err
		}
		caughtUp := (info.Chain == "regtest" || !info.InitialBlockDownload) && info.Blocks >= info.Headers
		if caughtUp {
			return nil
		}
		w.log.Info("waiting for node to finish initial block download", "blocks", info.Blocks, "headers", info.Headers)
		if err := sleepOrDone(ctx, waiterPollInterval); err != nil {
			return err
		}
	}
}

// waitForRescan polls getwalletinfo.scanning until it reports no active
// rescan. A missing field (old node) logs an upgrade recommendation and
// proceeds rather than blocking forever.
func (w *NodeWaiter) waitForRescan(ctx context.Context) error {
	for {
		info, err := w.client.GetWalletInfo(ctx)
		if err != nil {
			return err
		}
		if info.Scanning == nil {
			w.log.Warn("bitcoind does not report wallet scan progress; upgrade to Bitcoin Core 0.19+ for rescan visibility")
			return nil
		}
		if !info.Scanning.Active {
			return nil
		}
		w.log.Info("wallet rescan in progress", "progress", info.Scanning.Progress, "duration_secs", info.Scanning.Duration)
		if err := sleepOrDone(ctx, waiterPollInterval); err != nil {
			return err
		}
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
