package contract

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// CanonicalJSON serializes v with every object's keys sorted
// lexicographically by Unicode code point and no insignificant
// whitespace. encoding/json does not sort struct fields, so the value is
// marshaled once, decoded into a dynamic tree (numbers kept verbatim via
// json.Number), and re-marshaled; map keys sort on the second pass.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical json: marshal: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("canonical json: decode: %w", err)
	}
	out, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("canonical json: re-marshal: %w", err)
	}
	return out, nil
}

// SHA256Hex returns the lowercase hex SHA-256 of b.
func SHA256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// ReceiptHash computes the content hash of a receipt: the SHA-256 of its
// canonical JSON with the receipt_sha256 slot cleared. Structurally equal
// receipts hash identically on any compliant implementation.
func ReceiptHash(r Receipt) (string, error) {
	r.ReceiptSHA256 = ""
	canon, err := CanonicalJSON(r)
	if err != nil {
		return "", err
	}
	return SHA256Hex(canon), nil
}

// WithHash returns a copy of the receipt with ReceiptSHA256 filled in.
// Idempotent: the hash input always excludes the slot itself.
func (r Receipt) WithHash() (Receipt, error) {
	h, err := ReceiptHash(r)
	if err != nil {
		return r, err
	}
	r.ReceiptSHA256 = h
	return r, nil
}

// VerifyHash recomputes the receipt hash and compares it to the stored
// value. A receipt without a stored hash does not verify.
func (r Receipt) VerifyHash() (bool, error) {
	if r.ReceiptSHA256 == "" {
		return false, nil
	}
	h, err := ReceiptHash(r)
	if err != nil {
		return false, err
	}
	return h == r.ReceiptSHA256, nil
}
