package masumi

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// PaymentType is the only payment type the service accepts.
const PaymentType = "Web3CardanoV1"

// Amount is one (quantity, unit) entry of a payment or purchase.
type Amount struct {
	Amount string `json:"amount"`
	Unit   string `json:"unit"`
}

// Timestamp tolerates both JSON strings and numbers; the service has
// returned deadlines in either shape.
type Timestamp string

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*t = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Timestamp(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	*t = Timestamp(n.String())
	return nil
}

func (t Timestamp) String() string { return string(t) }

// NextAction is the service's view of what should happen to a payment next.
type NextAction struct {
	RequestedAction string  `json:"requestedAction"`
	ResultHash      *string `json:"resultHash,omitempty"`
	ErrorType       *string `json:"errorType,omitempty"`
	ErrorNote       *string `json:"errorNote,omitempty"`
}

// ── Create payment ────────────────────────────────────────────────────────────

type CreatePaymentRequest struct {
	AgentIdentifier         string   `json:"agentIdentifier"`
	Network                 string   `json:"network"`
	PaymentContractAddress  string   `json:"paymentContractAddress"`
	Amounts                 []Amount `json:"amounts"`
	PaymentType             string   `json:"paymentType"`
	SubmitResultTime        string   `json:"submitResultTime"`
	IdentifierFromPurchaser string   `json:"identifierFromPurchaser"`
}

type PaymentData struct {
	ID                        string     `json:"id,omitempty"`
	BlockchainIdentifier      string     `json:"blockchainIdentifier"`
	SubmitResultTime          Timestamp  `json:"submitResultTime,omitempty"`
	UnlockTime                Timestamp  `json:"unlockTime,omitempty"`
	ExternalDisputeUnlockTime Timestamp  `json:"externalDisputeUnlockTime,omitempty"`
	OnChainState              string     `json:"onChainState,omitempty"`
	NextAction                NextAction `json:"NextAction"`
	Amounts                   []Amount   `json:"amounts,omitempty"`
}

type PaymentResponse struct {
	Status string      `json:"status,omitempty"`
	Data   PaymentData `json:"data"`
	// SubmitResultTime is the deadline computed locally when the payment was
	// requested. It is not part of the service's reply.
	SubmitResultTime string `json:"submitResultTime,omitempty"`
}

// ── List payments ─────────────────────────────────────────────────────────────

type ListPaymentsQuery struct {
	Network                string
	PaymentContractAddress string
	Limit                  int
}

type Payment struct {
	ID                   string     `json:"id,omitempty"`
	BlockchainIdentifier string     `json:"blockchainIdentifier"`
	OnChainState         string     `json:"onChainState,omitempty"`
	NextAction           NextAction `json:"NextAction"`
	SubmitResultTime     Timestamp  `json:"submitResultTime,omitempty"`
	UnlockTime           Timestamp  `json:"unlockTime,omitempty"`
	Amounts              []Amount   `json:"amounts,omitempty"`
}

type StatusResponse struct {
	Status string `json:"status,omitempty"`
	Data   struct {
		Payments []Payment `json:"payments"`
	} `json:"data"`
}

// ── Complete payment ──────────────────────────────────────────────────────────

type CompletePaymentRequest struct {
	Network                string `json:"network"`
	PaymentContractAddress string `json:"paymentContractAddress"`
	Hash                   string `json:"hash"`
	Identifier             string `json:"identifier"`
}

type CompletionResponse struct {
	Status string `json:"status,omitempty"`
	Data   struct {
		Status string `json:"status"`
	} `json:"data"`
}

// ── Create purchase ───────────────────────────────────────────────────────────

type CreatePurchaseRequest struct {
	IdentifierFromPurchaser   string   `json:"identifierFromPurchaser"`
	BlockchainIdentifier      string   `json:"blockchainIdentifier"`
	Network                   string   `json:"network"`
	SellerVkey                string   `json:"sellerVkey"`
	SmartContractAddress      string   `json:"smartContractAddress"`
	Amounts                   []Amount `json:"amounts"`
	PaymentType               string   `json:"paymentType"`
	SubmitResultTime          string   `json:"submitResultTime"`
	UnlockTime                string   `json:"unlockTime"`
	ExternalDisputeUnlockTime string   `json:"externalDisputeUnlockTime"`
	AgentIdentifier           string   `json:"agentIdentifier"`
}

type PurchaseResponse struct {
	Status string `json:"status,omitempty"`
	Data   struct {
		ID         string     `json:"id"`
		NextAction NextAction `json:"NextAction"`
	} `json:"data"`
}
