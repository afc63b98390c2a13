// Package descriptor parses Bitcoin output descriptors and SLIP-132
// extended public keys, and computes the BIP-380 descriptor checksum.
package descriptor

import (
	"fmt"
	"strings"
)

// inputCharset is the 64-character alphabet descriptor text is drawn from,
// ordered exactly as specified by BIP-380 so that character group (0/1/2)
// and position within the group can be recovered from a single lookup.
const inputCharset = "0123456789()[],'/*abcdefgh@:$%{}" +
	"IJKLMNOPQRSTUVWXYZ&+-.;<=>?!^_|~" +
	"ijklmnopqrstuvwxyzABCDEFGH`#\"\\ "

const checksumCharset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

// Checksum is the descriptor's own 8-character base-32 fingerprint.
// Two Wallets with equal Checksum are semantically identical.
type Checksum string

func (c Checksum) String() string { return string(c) }

func polymod(c uint64, val int) uint64 {
	c0 := c >> 35
	c = ((c & 0x7ffffffff) << 5) ^ uint64(val)
	if c0&1 != 0 {
		c ^= 0xf5dee51989
	}
	if c0&2 != 0 {
		c ^= 0xa9fdca3312
	}
	if c0&4 != 0 {
		c ^= 0x1bab10e32d
	}
	if c0&8 != 0 {
		c ^= 0x3706b1677a
	}
	if c0&16 != 0 {
		c ^= 0x644d626ffd
	}
	return c
}

// ComputeChecksum returns the BIP-380 checksum for a descriptor string
// (without any existing "#checksum" suffix).
func ComputeChecksum(desc string) (Checksum, error) {
	var c uint64 = 1
	cls := 0
	clscount := 0

	for _, ch := range desc {
		pos := strings.IndexRune(inputCharset, ch)
		if pos == -1 {
			return "", fmt.Errorf("descriptor: invalid character %q in %q", ch, desc)
		}
		c = polymod(c, pos&31)
		cls = cls*3 + (pos >> 5)
		clscount++
		if clscount == 3 {
			c = polymod(c, cls)
			cls = 0
			clscount = 0
		}
	}
	if clscount > 0 {
		c = polymod(c, cls)
	}
	for i := 0; i < 8; i++ {
		c = polymod(c, 0)
	}
	c ^= 1

	ret := make([]byte, 8)
	for i := 0; i < 8; i++ {
		ret[i] = checksumCharset[(c>>(5*uint(7-i)))&31]
	}
	return Checksum(ret), nil
}

// SplitChecksum splits a "desc#checksum" string into its parts. If no
// checksum suffix is present, ok is false and desc is returned unchanged.
func SplitChecksum(s string) (desc string, checksum Checksum, ok bool) {
	i := strings.IndexByte(s, '#')
	if i == -1 {
		return s, "", false
	}
	return s[:i], Checksum(s[i+1:]), true
}

// VerifyChecksum checks that desc's computed checksum matches checksum.
func VerifyChecksum(desc string, checksum Checksum) error {
	want, err := ComputeChecksum(desc)
	if err != nil {
		return err
	}
	if want != checksum {
		return fmt.Errorf("descriptor: checksum mismatch, expected %s got %s", want, checksum)
	}
	return nil
}
