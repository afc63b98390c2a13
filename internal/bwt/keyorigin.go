// Package bwt implements the wallet/address watcher and sync coordinator
// core: descriptor-backed wallets, gap-limit address discovery reconciled
// against a bitcoind watch-only wallet, and the debounced sync loop that
// drives re-imports and fans transaction updates out to subscribers.
package bwt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bwt-sh/bwt-go/pkg/descriptor"
)

// KeyOriginKind distinguishes a one-off standalone import from an
// address derived at a specific index of a known ranged wallet.
type KeyOriginKind int

const (
	KindStandalone KeyOriginKind = iota
	KindDescriptor
)

// KeyOrigin is a tagged value identifying where an imported address came
// from: either a one-off standalone import, or a specific (wallet,
// index) pair. It round-trips losslessly through Label/ParseLabel over
// its valid subset.
type KeyOrigin struct {
	Kind     KeyOriginKind
	Checksum descriptor.Checksum
	Index    uint32
}

// Standalone returns the KeyOrigin for a one-off imported script.
func Standalone() KeyOrigin {
	return KeyOrigin{Kind: KindStandalone}
}

// DescriptorOrigin returns the KeyOrigin for index of the wallet
// identified by checksum.
func DescriptorOrigin(checksum descriptor.Checksum, index uint32) KeyOrigin {
	return KeyOrigin{Kind: KindDescriptor, Checksum: checksum, Index: index}
}

// Label renders the origin to its persisted node-wallet label text:
// "bwt" for Standalone, "bwt/<checksum>/<index>" for Descriptor.
func (o KeyOrigin) Label() string {
	if o.Kind == KindStandalone {
		return "bwt"
	}
	return fmt.Sprintf("bwt/%s/%d", o.Checksum, o.Index)
}

// ParseLabel is the exact inverse of Label. Any shape other than exactly
// "bwt" or "bwt/<checksum>/<index>" (with a valid uint32 index) returns
// ok=false so that foreign labels left by unrelated tooling are ignored.
func ParseLabel(label string) (origin KeyOrigin, ok bool) {
	parts := strings.Split(label, "/")
	switch len(parts) {
	case 1:
		if parts[0] == "bwt" {
			return Standalone(), true
		}
	case 3:
		if parts[0] != "bwt" || parts[1] == "" {
			return KeyOrigin{}, false
		}
		index, err := strconv.ParseUint(parts[2], 10, 32)
		if err != nil {
			return KeyOrigin{}, false
		}
		return DescriptorOrigin(descriptor.Checksum(parts[1]), uint32(index)), true
	}
	return KeyOrigin{}, false
}

// RescanSince is a rescan-from-time marker passed to the node's import
// API: either an explicit unix-second timestamp, or Now, meaning "do not
// rescan; treat as discovered at this moment".
type RescanSince struct {
	now       bool
	timestamp int64
}

// RescanNow returns the "discovered now, no rescan" marker.
func RescanNow() RescanSince { return RescanSince{now: true} }

// RescanAt returns a marker requesting a rescan from the given unix
// second timestamp.
func RescanAt(unixSeconds int64) RescanSince { return RescanSince{timestamp: unixSeconds} }

// IsNow reports whether this marker is the "now" sentinel.
func (r RescanSince) IsNow() bool { return r.now }

// Timestamp returns the unix-second rescan start. Only meaningful when
// IsNow() is false.
func (r RescanSince) Timestamp() int64 { return r.timestamp }
