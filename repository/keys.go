package repository

import "encoding/binary"

const (
	// kGlobal holds the single GlobalLedgerState record.
	kGlobal byte = 0x01
	// kAccountState holds one AccountState per account id.
	kAccountState byte = 0x02
	// kAccountPowerPage holds fixed-capacity pages of account checkpoints, keyed account|page.
	kAccountPowerPage byte = 0x03
	// kTotalPowerPage holds fixed-capacity pages of total checkpoints, keyed by page.
	kTotalPowerPage byte = 0x04
	// kSlopeChange holds the slope delta scheduled for a week boundary.
	kSlopeChange byte = 0x05
	// kBondAccount tallies bonds per payer. It is bookkeeping and carries no bond itself.
	kBondAccount byte = 0x06
)

// Integers are big-endian so that leveldb iterates slope changes in time order.

func globalKey() []byte {
	return []byte{kGlobal}
}

func accountStateKey(account string) []byte {
	buf := make([]byte, 0, 1+len(account))
	buf = append(buf, kAccountState)
	return append(buf, account...)
}

// accountPowerPageKey puts the page index after the account so that one account's pages sit together.
func accountPowerPageKey(account string, page uint64) []byte {
	buf := make([]byte, 0, 1+len(account)+8)
	buf = append(buf, kAccountPowerPage)
	buf = append(buf, account...)
	return binary.BigEndian.AppendUint64(buf, page)
}

func totalPowerPageKey(page uint64) []byte {
	buf := make([]byte, 0, 9)
	buf = append(buf, kTotalPowerPage)
	return binary.BigEndian.AppendUint64(buf, page)
}

func slopeChangeKey(week uint64) []byte {
	buf := make([]byte, 0, 9)
	buf = append(buf, kSlopeChange)
	return binary.BigEndian.AppendUint64(buf, week)
}

func bondAccountKey(payer string) []byte {
	buf := make([]byte, 0, 1+len(payer))
	buf = append(buf, kBondAccount)
	return append(buf, payer...)
}
