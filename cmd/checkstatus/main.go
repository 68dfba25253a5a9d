// cmd/checkstatus queries the payment service once and prints the status of
// the given payments, or of every recent payment when no IDs are passed.
//
// Usage:
//
//	PAYMENT_SERVICE_URL=https://payment.example/api/v1 \
//	PAYMENT_API_KEY=<key> \
//	go run ./cmd/checkstatus/ --network Preprod --limit 20 <blockchainIdentifier>...
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/masumi-network/masumi-payments-go/internal/config"
	"github.com/masumi-network/masumi-payments-go/internal/masumi"
	"github.com/masumi-network/masumi-payments-go/internal/payment"
)

func main() {
	networkName := flag.String("network", "Preprod", "Cardano network (Preprod or Mainnet)")
	limit := flag.Int("limit", payment.DefaultStatusLimit, "Number of recent payments to fetch")
	timeout := flag.Duration("timeout", 30*time.Second, "Request timeout")
	flag.Parse()

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

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	resp, err := masumi.NewFromConfig(cfg).ListPayments(ctx, masumi.ListPaymentsQuery{
		Network:                network.String(),
		PaymentContractAddress: cfg.ContractAddress(network.String()),
		Limit:                  *limit,
	})
	if err != nil {
		fatalf("list payments: %v", err)
	}

	want := make(map[string]bool, flag.NArg())
	for _, id := range flag.Args() {
		want[id] = true
	}
	seen := 0
	for _, p := range resp.Data.Payments {
		if len(want) > 0 && !want[p.BlockchainIdentifier] {
			continue
		}
		seen++
		state := "pending"
		if payment.IsConfirmed(p) {
			state = "confirmed"
		}
		fmt.Printf("%-10s %-28s %s\n", state, p.NextAction.RequestedAction, p.BlockchainIdentifier)
	}
	if seen == 0 {
		fmt.Println("no matching payments in the last", *limit)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
