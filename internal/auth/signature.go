package auth

import (
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Request headers carrying an operator signature.
const (
	HeaderAddress   = "X-Operator-Address"
	HeaderMessage   = "X-Signed-Request"
	HeaderSignature = "X-Operator-Signature"
)

var errSignatureLength = errors.New("invalid signature length")

// personalHash is keccak256("\x19Ethereum Signed Message:\n" + len(msg) + msg).
func personalHash(msg []byte) []byte {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(msg))
	return crypto.Keccak256([]byte(prefix), msg)
}

// recoverSigner returns the address that produced the hex signature over msg.
// V may be 0/1 or 27/28.
func recoverSigner(msg []byte, sigHex string) (common.Address, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, errSignatureLength
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(personalHash(msg), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("ecrecover: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// BodyHash is the 0x-prefixed keccak256 of a request body.
func BodyHash(body []byte) string {
	return crypto.Keccak256Hash(body).Hex()
}

// SignHeaders binds body to req, signs it with key and returns the three auth
// headers an operator client must send.
func SignHeaders(key *ecdsa.PrivateKey, req SignedRequest, body []byte) (map[string]string, error) {
	req.BodyHash = BodyHash(body)
	msg, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(personalHash(msg), key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return map[string]string{
		HeaderAddress:   crypto.PubkeyToAddress(key.PublicKey).Hex(),
		HeaderMessage:   base64.StdEncoding.EncodeToString(msg),
		HeaderSignature: "0x" + hex.EncodeToString(sig),
	}, nil
}
