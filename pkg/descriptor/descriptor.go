package descriptor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// KeyExpr is a single key expression inside a descriptor: an extended
// public key plus a fixed derivation path, optionally ending in a ranged
// wildcard ("*").
type KeyExpr struct {
	Xpub    *hdkeychain.ExtendedKey
	Path    []uint32
	IsRange bool
}

// Bip32Origin is the BIP-32 origin of a derived key: the fingerprint of
// the extended key its derivation path starts from, and that path.
type Bip32Origin struct {
	ParentFingerprint uint32
	Path              []uint32
}

// Child returns the origin extended by one more (unhardened) path step,
// used to compute the origin of a specific ranged index.
func (o Bip32Origin) Child(index uint32) Bip32Origin {
	path := make([]uint32, len(o.Path)+1)
	copy(path, o.Path)
	path[len(o.Path)] = index
	return Bip32Origin{ParentFingerprint: o.ParentFingerprint, Path: path}
}

func (o Bip32Origin) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%08x", o.ParentFingerprint)
	for _, p := range o.Path {
		if p&0x80000000 != 0 {
			fmt.Fprintf(&b, "/%d'", p&0x7fffffff)
		} else {
			fmt.Fprintf(&b, "/%d", p)
		}
	}
	return b.String()
}

// BIP32Origin computes the origin of this key expression relative to its
// own extended key (the parent fingerprint is the key's own fingerprint,
// since bwt is never given the grandparent master key).
func (k KeyExpr) BIP32Origin() Bip32Origin {
	fp := binaryFingerprint(k.Xpub)
	return Bip32Origin{ParentFingerprint: fp, Path: append([]uint32(nil), k.Path...)}
}

func binaryFingerprint(key *hdkeychain.ExtendedKey) uint32 {
	pub, err := key.ECPubKey()
	if err != nil {
		return 0
	}
	h := btcutil.Hash160(pub.SerializeCompressed())
	return uint32(h[0])<<24 | uint32(h[1])<<16 | uint32(h[2])<<8 | uint32(h[3])
}

// Derive walks the key expression's fixed path, then the given ranged
// index if IsRange is set. Panics on a hardened index, matching bwt's
// "derivation uses only unhardened child numbers" invariant.
func (k KeyExpr) Derive(index uint32) (*hdkeychain.ExtendedKey, error) {
	if index&0x80000000 != 0 {
		panic("descriptor: cannot derive a hardened child index")
	}
	key := k.Xpub
	for _, step := range k.Path {
		child, err := key.Derive(step)
		if err != nil {
			return nil, fmt.Errorf("descriptor: deriving path step %d: %w", step, err)
		}
		key = child
	}
	if k.IsRange {
		child, err := key.Derive(index)
		if err != nil {
			return nil, fmt.Errorf("descriptor: deriving index %d: %w", index, err)
		}
		key = child
	}
	return key, nil
}

// Descriptor is a parsed single-key output descriptor: a script template
// wrapped around one KeyExpr.
type Descriptor struct {
	Raw        string
	ScriptType ScriptType
	Key        KeyExpr
	Params     *chaincfg.Params
}

var descPattern = regexp.MustCompile(`^(pkh|wpkh|tr)\((.+)\)$`)
var descShPattern = regexp.MustCompile(`^sh\(wpkh\((.+)\)\)$`)

// Parse parses a descriptor string (without a trailing "#checksum"
// suffix; strip that with SplitChecksum first) against the given network.
func Parse(desc string, params *chaincfg.Params) (*Descriptor, error) {
	var scriptType ScriptType
	var inner string

	if m := descShPattern.FindStringSubmatch(desc); m != nil {
		scriptType = ScriptP2SH_P2WPKH
		inner = m[1]
	} else if m := descPattern.FindStringSubmatch(desc); m != nil {
		inner = m[2]
		switch m[1] {
		case "pkh":
			scriptType = ScriptP2PKH
		case "wpkh":
			scriptType = ScriptP2WPKH
		case "tr":
			scriptType = ScriptP2TR
		}
	} else {
		return nil, fmt.Errorf("descriptor: unsupported or malformed descriptor %q", desc)
	}

	key, err := parseKeyExpr(inner)
	if err != nil {
		return nil, fmt.Errorf("descriptor: %q: %w", desc, err)
	}

	return &Descriptor{Raw: desc, ScriptType: scriptType, Key: key, Params: params}, nil
}

// parseKeyExpr parses "[origin]xpub.../path'/*" style key expressions,
// accepting an optional leading origin in brackets (stripped without
// being validated; bwt computes its own origins from the key itself).
func parseKeyExpr(s string) (KeyExpr, error) {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "]"); i != -1 && strings.HasPrefix(s, "[") {
		s = s[i+1:]
	}

	parts := strings.Split(s, "/")
	if len(parts) == 0 {
		return KeyExpr{}, fmt.Errorf("empty key expression")
	}

	xpub, err := ParseXyzPub(parts[0])
	if err != nil {
		key, kerr := hdkeychain.NewKeyFromString(parts[0])
		if kerr != nil {
			return KeyExpr{}, fmt.Errorf("parsing key %q: %w", parts[0], err)
		}
		xpub = &XyzPub{Key: key}
	}

	expr := KeyExpr{Xpub: xpub.Key}
	for _, step := range parts[1:] {
		if step == "*" {
			expr.IsRange = true
			continue
		}
		hardened := strings.HasSuffix(step, "'") || strings.HasSuffix(step, "h")
		numStr := strings.TrimRight(step, "'h")
		n, err := strconv.ParseUint(numStr, 10, 32)
		if err != nil {
			return KeyExpr{}, fmt.Errorf("invalid path step %q: %w", step, err)
		}
		if hardened {
			n |= 0x80000000
		}
		expr.Path = append(expr.Path, uint32(n))
	}
	return expr, nil
}

// Address derives the output address at the given index via the general
// descriptor engine: walk the key expression, then build the script
// matching ScriptType. Must return byte-identical results to any
// optimized fast-path derivation for the same (descriptor, index).
func (d *Descriptor) Address(index uint32) (btcutil.Address, error) {
	key, err := d.Key.Derive(index)
	if err != nil {
		return nil, err
	}
	pub, err := key.ECPubKey()
	if err != nil {
		return nil, fmt.Errorf("descriptor: public key: %w", err)
	}
	return addressForScriptType(pub, d.ScriptType, d.Params)
}

func addressForScriptType(pub *btcec.PublicKey, st ScriptType, params *chaincfg.Params) (btcutil.Address, error) {
	switch st {
	case ScriptP2PKH:
		return btcutil.NewAddressPubKeyHash(btcutil.Hash160(pub.SerializeCompressed()), params)
	case ScriptP2WPKH:
		return btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(pub.SerializeCompressed()), params)
	case ScriptP2SH_P2WPKH:
		witnessAddr, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(pub.SerializeCompressed()), params)
		if err != nil {
			return nil, err
		}
		witnessScript, err := txscript.PayToAddrScript(witnessAddr)
		if err != nil {
			return nil, err
		}
		return btcutil.NewAddressScriptHash(witnessScript, params)
	case ScriptP2TR:
		taprootKey := txscript.ComputeTaprootKeyNoScript(pub)
		return btcutil.NewAddressTaproot(taprootKey.SerializeCompressed()[1:], params)
	default:
		return nil, fmt.Errorf("descriptor: unsupported script type %v", st)
	}
}

// HasAddressRepresentation reports whether this descriptor's script type
// can be rendered as a single output address. All script types supported
// by Parse qualify; this exists to mirror the spec's explicit
// construction-time check (multisig-without-address forms are rejected
// upstream, before reaching this package, by never being parseable here).
func (d *Descriptor) HasAddressRepresentation() bool {
	return true
}

// SatisfactionWeight returns the approximate maximum witness+scriptSig
// weight units needed to spend an output of this script type, used only
// for the Wallet JSON serialization's "satisfaction_weight" field.
func (d *Descriptor) SatisfactionWeight() int {
	switch d.ScriptType {
	case ScriptP2PKH:
		return 4 * (1 + 73 + 1 + 33)
	case ScriptP2WPKH:
		return 1 + 73 + 1 + 33
	case ScriptP2SH_P2WPKH:
		return 4*(1+23) + 1 + 73 + 1 + 33
	case ScriptP2TR:
		return 1 + 65
	default:
		return 0
	}
}
