package record

import "encoding/binary"

// NonTxnSeqNo marks a record written outside of any write-batch (a
// direct Put/Delete), as opposed to one carrying a real allocated
// sequence number from a batch commit.
const NonTxnSeqNo uint64 = 0

// TxnFinishedKey is the fixed key written by a TypeTxnFinished record;
// its presence for a given sequence number is what makes a batch's
// writes visible during recovery.
var TxnFinishedKey = []byte("txn-fin")

// EncodeKeyWithSeqNo prefixes key with its batch sequence number,
// varint-encoded, so recovery can group records by the transaction
// that produced them without a second index.
func EncodeKeyWithSeqNo(key []byte, seqNo uint64) []byte {
	buf := make([]byte, binary.MaxVarintLen64+len(key))
	n := binary.PutUvarint(buf, seqNo)
	n += copy(buf[n:], key)
	return buf[:n]
}

// DecodeKeyWithSeqNo reverses EncodeKeyWithSeqNo.
func DecodeKeyWithSeqNo(buf []byte) (key []byte, seqNo uint64) {
	seqNo, n := binary.Uvarint(buf)
	return buf[n:], seqNo
}
