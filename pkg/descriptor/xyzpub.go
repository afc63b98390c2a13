package descriptor

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// ScriptType identifies the output script a wallet's keys spend into.
type ScriptType int

const (
	ScriptP2PKH ScriptType = iota
	ScriptP2WPKH
	ScriptP2SH_P2WPKH
	ScriptP2TR
)

func (t ScriptType) String() string {
	switch t {
	case ScriptP2PKH:
		return "pkh"
	case ScriptP2WPKH:
		return "wpkh"
	case ScriptP2SH_P2WPKH:
		return "sh(wpkh)"
	case ScriptP2TR:
		return "tr"
	default:
		return "unknown"
	}
}

// xyzVersion describes one SLIP-132 extended-key version prefix.
type xyzVersion struct {
	bytes      [4]byte
	testnet    bool
	scriptType ScriptType
}

// standardXpub and standardTpub are the plain BIP-32 version bytes that
// hdkeychain recognizes out of the box; every other SLIP-132 prefix is
// rewritten to one of these before being handed to hdkeychain.
var (
	standardXpub = [4]byte{0x04, 0x88, 0xb2, 0x1e} // xpub (mainnet)
	standardTpub = [4]byte{0x04, 0x35, 0x87, 0xcf} // tpub (testnet)
)

var xyzVersions = map[[4]byte]xyzVersion{
	{0x04, 0x88, 0xb2, 0x1e}: {standardXpub, false, ScriptP2PKH},   // xpub
	{0x04, 0x9d, 0x7c, 0xb2}: {standardXpub, false, ScriptP2SH_P2WPKH}, // ypub
	{0x04, 0xb2, 0x47, 0x46}: {standardXpub, false, ScriptP2WPKH},  // zpub
	{0x04, 0x35, 0x87, 0xcf}: {standardTpub, true, ScriptP2PKH},    // tpub
	{0x04, 0x4a, 0x52, 0x62}: {standardTpub, true, ScriptP2SH_P2WPKH}, // upub
	{0x04, 0x5f, 0x1c, 0xf6}: {standardTpub, true, ScriptP2WPKH},   // vpub
}

// XyzPub is a parsed SLIP-132 extended public key: the underlying BIP-32
// key plus the script type its prefix encodes.
type XyzPub struct {
	Key        *hdkeychain.ExtendedKey
	ScriptType ScriptType
	Testnet    bool
}

// ParseXyzPub decodes an xpub/ypub/zpub/tpub/upub/vpub string.
func ParseXyzPub(s string) (*XyzPub, error) {
	decoded := base58.Decode(s)
	if len(decoded) < 4 {
		return nil, fmt.Errorf("descriptor: %q is not a valid extended key", s)
	}
	var version [4]byte
	copy(version[:], decoded[:4])

	info, ok := xyzVersions[version]
	if !ok {
		return nil, fmt.Errorf("descriptor: unrecognized extended key version in %q", s)
	}

	rebranded := appendChecksum(decoded[:len(decoded)-4], info.bytes[:])
	rebrandedStr := base58.Encode(rebranded)

	key, err := hdkeychain.NewKeyFromString(rebrandedStr)
	if err != nil {
		return nil, fmt.Errorf("descriptor: parsing extended key: %w", err)
	}

	return &XyzPub{Key: key, ScriptType: info.scriptType, Testnet: info.testnet}, nil
}

// appendChecksum rebuilds a base58check payload: 4-byte version, the
// original body (depth..pubkey, no version/checksum), and a fresh
// double-SHA256 checksum over the new version+body.
func appendChecksum(bodyWithoutVersion []byte, version []byte) []byte {
	payload := make([]byte, 0, len(version)+len(bodyWithoutVersion)+4)
	payload = append(payload, version...)
	payload = append(payload, bodyWithoutVersion[4:]...)
	chk := chainhash.DoubleHashB(payload)[:4]
	return append(payload, chk...)
}

// ChainParams returns the btcsuite network parameters matching this key.
func (x *XyzPub) ChainParams() *chaincfg.Params {
	if x.Testnet {
		return &chaincfg.TestNet3Params
	}
	return &chaincfg.MainNetParams
}

// AsDescriptor renders this extended key as a descriptor template with the
// given fixed path prefix followed by a ranged wildcard, e.g. path=[0]
// produces "wpkh(<xpub>/0/*)" and path=[] produces "wpkh(<xpub>/*)".
func (x *XyzPub) AsDescriptor(path []uint32) string {
	inner := x.Key.String()
	for _, p := range path {
		inner += fmt.Sprintf("/%d", p)
	}
	inner += "/*"

	switch x.ScriptType {
	case ScriptP2WPKH:
		return fmt.Sprintf("wpkh(%s)", inner)
	case ScriptP2SH_P2WPKH:
		return fmt.Sprintf("sh(wpkh(%s))", inner)
	default:
		return fmt.Sprintf("pkh(%s)", inner)
	}
}
