// cmd/purchase submits a single purchase for a payment request that a seller
// agent has already created.
//
// Usage:
//
//	PAYMENT_SERVICE_URL=https://payment.example/api/v1 \
//	PAYMENT_API_KEY=<key> \
//	go run ./cmd/purchase/ \
//	  --blockchain-id <id> \
//	  --seller-vkey   <vkey> \
//	  --agent         <agentIdentifier> \
//	  --amounts       10000000:lovelace \
//	  --submit-result 1700000000 --unlock 1700003600 --dispute-unlock 1700007200
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/masumi-network/masumi-payments-go/internal/config"
	"github.com/masumi-network/masumi-payments-go/internal/masumi"
	"github.com/masumi-network/masumi-payments-go/internal/payment"
	"github.com/masumi-network/masumi-payments-go/internal/purchase"
)

func main() {
	blockchainID := flag.String("blockchain-id", "", "Blockchain identifier of the payment request")
	sellerVkey := flag.String("seller-vkey", "", "Seller verification key")
	agentID := flag.String("agent", "", "Agent identifier")
	amounts := flag.String("amounts", "10000000:lovelace", "Comma separated <quantity>[:<unit>] list")
	purchaserID := flag.String("purchaser", purchase.DefaultPurchaserIdentifier, "Purchaser identifier")
	networkName := flag.String("network", "Preprod", "Cardano network (Preprod or Mainnet)")
	submitResult := flag.Int64("submit-result", 0, "Submit-result deadline (unix seconds)")
	unlock := flag.Int64("unlock", 0, "Unlock time (unix seconds)")
	disputeUnlock := flag.Int64("dispute-unlock", 0, "External dispute unlock time (unix seconds)")
	timeout := flag.Duration("timeout", 30*time.Second, "Request timeout")
	flag.Parse()

	log, err := zap.NewDevelopment()
	if err != nil {
		fatalf("logger: %v", err)
	}
	defer log.Sync() //nolint:errcheck

	cfg, err := config.New(os.Getenv("PAYMENT_SERVICE_URL"), os.Getenv("PAYMENT_API_KEY"),
		config.WithPreprodAddress(os.Getenv("PREPROD_CONTRACT_ADDRESS")),
		config.WithMainnetAddress(os.Getenv("MAINNET_CONTRACT_ADDRESS")),
		config.WithRequestTimeout(*timeout),
	)
	if err != nil {
		fatalf("config: %v", err)
	}
	network, err := payment.ParseNetwork(*networkName)
	if err != nil {
		fatalf("%v", err)
	}
	parsed, err := payment.ParseAmounts(*amounts)
	if err != nil {
		fatalf("amounts: %v", err)
	}

	p, err := purchase.New(cfg, masumi.NewFromConfig(cfg, masumi.WithLogger(log)), purchase.Request{
		BlockchainIdentifier:      *blockchainID,
		SellerVkey:                *sellerVkey,
		AgentIdentifier:           *agentID,
		Amounts:                   parsed,
		PurchaserIdentifier:       *purchaserID,
		SubmitResultTime:          *submitResult,
		UnlockTime:                *unlock,
		ExternalDisputeUnlockTime: *disputeUnlock,
		Network:                   network,
	}, purchase.WithLogger(log))
	if err != nil {
		fatalf("%v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	resp, err := p.Create(ctx)
	if err != nil {
		fatalf("create purchase: %v", err)
	}
	out, _ := json.MarshalIndent(resp, "", "  ")
	fmt.Println(string(out))
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
