package core

import (
	"sort"

	"ContractLedger/internal/ledger"
	"ContractLedger/internal/register"
)

// computeStateDigest builds the canonical byte image of the balance ledger
// and the position registers. Ledger entries come first: every nonzero
// account in sorted path order, each as a length-prefixed path followed by
// the balance in 8 bytes little-endian. Register entries follow: addresses
// sorted, then contract ids ascending, every record field in declaration
// order and every outstanding lot oldest-first. Equal state always produces
// equal digests, so two replicas that diverge anywhere in either structure
// diverge in the hash chain on the next output.
func computeStateDigest(l *ledger.Ledger, registers map[string]*register.Register) []byte {
	keys := l.SortedKeys()
	digest := make([]byte, 0, len(keys)*32)

	for _, key := range keys {
		balance := l.GetBalance(key.Address, key.PropertyID, key.Category)

		path := key.AccountPath()
		digest = append(digest, byte(len(path)))
		digest = append(digest, []byte(path)...)
		digest = appendInt64LE(digest, balance)
	}

	addrs := make([]string, 0, len(registers))
	for addr := range registers {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	types := register.AllRecordTypes()
	for _, addr := range addrs {
		reg := registers[addr]
		digest = append(digest, byte(len(addr)))
		digest = append(digest, []byte(addr)...)

		for _, cid := range reg.ContractIDs() {
			digest = appendUint32LE(digest, cid)
			for _, ttype := range types {
				digest = appendInt64LE(digest, reg.GetRecord(cid, ttype))
			}
			lots := reg.Lots(cid)
			digest = appendUint32LE(digest, uint32(len(lots)))
			for _, lot := range lots {
				digest = appendInt64LE(digest, lot.Amount)
				digest = appendInt64LE(digest, lot.Price)
			}
		}
	}

	return digest
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

func appendUint32LE(buf []byte, v uint32) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
	)
}
