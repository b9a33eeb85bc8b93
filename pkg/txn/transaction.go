package txn

// Transaction is the unit a caller submits: a message plus one signature per
// required signer, ordered to match the signer prefix of account_keys.
type Transaction struct {
	Signatures []Signature `json:"signatures"`
	Message    Message     `json:"message"`
}

// NewTransaction pairs a message with its signatures.
func NewTransaction(msg Message, sigs []Signature) *Transaction {
	return &Transaction{Signatures: sigs, Message: msg}
}

// FeePayer returns the message's account_keys[0].
func (t *Transaction) FeePayer() (Identifier, bool) {
	return t.Message.FeePayer()
}

// IsSigned reports whether every required signature slot is filled. It does
// not verify the signatures.
func (t *Transaction) IsSigned() bool {
	return len(t.Signatures) == int(t.Message.Header.RequiredSignatures)
}

// SignatureBytes concatenates the raw signature bytes in order.
func (t *Transaction) SignatureBytes() []byte {
	out := make([]byte, 0, SignatureSize*len(t.Signatures))
	for _, sig := range t.Signatures {
		out = append(out, sig[:]...)
	}
	return out
}
