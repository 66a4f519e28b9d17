package message

import (
	"errors"
	"fmt"

	"github.com/fortiblox/X1-Clicker/internal/types"
)

// MaxTransactionSize is the largest serialized transaction accepted.
const MaxTransactionSize = 1232

// Transaction errors.
var (
	ErrSignatureCount            = errors.New("signature count does not match header")
	ErrSignatureVerificationFail = errors.New("signature verification failed")
	ErrMissingSigner             = errors.New("missing signer for required signature")
	ErrTransactionTooLarge       = errors.New("transaction too large")
)

// Signer produces Ed25519 signatures for a public key.
type Signer interface {
	PublicKey() types.Pubkey
	Sign(message []byte) types.Signature
}

// Transaction is a message plus one signature per required signer, in
// account-key order.
type Transaction struct {
	Signatures []types.Signature
	Message    Message
}

// NewTransaction signs msg with the given signers. Every required signer must
// be present; extra signers are ignored.
func NewTransaction(msg *Message, signers ...Signer) (*Transaction, error) {
	bySigner := make(map[types.Pubkey]Signer, len(signers))
	for _, s := range signers {
		bySigner[s.PublicKey()] = s
	}

	payload := msg.Serialize()
	tx := &Transaction{Message: *msg}
	for _, key := range msg.Signers() {
		s, ok := bySigner[key]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingSigner, key)
		}
		tx.Signatures = append(tx.Signatures, s.Sign(payload))
	}
	return tx, nil
}

// Signature returns the first signature, which identifies the transaction.
func (tx *Transaction) Signature() types.Signature {
	if len(tx.Signatures) == 0 {
		return types.Signature{}
	}
	return tx.Signatures[0]
}

// Verify checks message structure and every signature.
func (tx *Transaction) Verify() error {
	if err := tx.Message.Validate(); err != nil {
		return err
	}
	signers := tx.Message.Signers()
	if len(tx.Signatures) != len(signers) {
		return ErrSignatureCount
	}
	payload := tx.Message.Serialize()
	for i, key := range signers {
		if !tx.Signatures[i].Verify(key, payload) {
			return fmt.Errorf("%w: signer %s", ErrSignatureVerificationFail, key)
		}
	}
	return nil
}

// Serialize encodes the transaction: compact-u16 signature count, the
// signatures, then the message.
func (tx *Transaction) Serialize() []byte {
	buf := appendShortVec(nil, len(tx.Signatures))
	for _, sig := range tx.Signatures {
		buf = append(buf, sig[:]...)
	}
	return append(buf, tx.Message.Serialize()...)
}

// DeserializeTransaction decodes a wire transaction.
func DeserializeTransaction(data []byte) (*Transaction, error) {
	if len(data) > MaxTransactionSize {
		return nil, ErrTransactionTooLarge
	}
	r := &reader{data: data}
	n, err := r.shortVec()
	if err != nil {
		return nil, err
	}
	tx := &Transaction{Signatures: make([]types.Signature, n)}
	for i := range tx.Signatures {
		b, err := r.next(types.SignatureSize)
		if err != nil {
			return nil, err
		}
		copy(tx.Signatures[i][:], b)
	}
	msg, err := r.readMessage()
	if err != nil {
		return nil, err
	}
	if r.off != len(data) {
		return nil, ErrTrailingBytes
	}
	tx.Message = *msg
	return tx, nil
}
