package masumi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/masumi-network/masumi-payments-go/internal/config"
)

// ── Unit tests (httptest, no external deps) ───────────────────────────────────

func mockServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

// ── Headers ───────────────────────────────────────────────────────────────────

func TestClient_SetsHeaders(t *testing.T) {
	var gotToken, gotCT string
	srv := mockServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("token")
		gotCT = r.Header.Get("Content-Type")
		w.Write([]byte(`{"data":{"payments":[]}}`))
	})

	c := NewClient(srv.URL, "super-secret")
	c.ListPayments(context.Background(), ListPaymentsQuery{Network: "Preprod", Limit: 10}) //nolint:errcheck

	if gotToken != "super-secret" {
		t.Errorf("token: got %q want %q", gotToken, "super-secret")
	}
	if gotCT != "application/json" {
		t.Errorf("Content-Type: got %q want %q", gotCT, "application/json")
	}
}

// ── CreatePayment ─────────────────────────────────────────────────────────────

func TestCreatePayment_OK(t *testing.T) {
	var got CreatePaymentRequest
	var gotMethod, gotPath string
	srv := mockServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"success","data":{"blockchainIdentifier":"bc-1","submitResultTime":"1700000000000","unlockTime":1700000100000}}`))
	})

	c := NewClient(srv.URL+"/", "k")
	resp, err := c.CreatePayment(context.Background(), CreatePaymentRequest{
		AgentIdentifier:         "agent-1",
		Network:                 "Preprod",
		PaymentContractAddress:  "addr_test",
		Amounts:                 []Amount{{Amount: "10000000", Unit: "lovelace"}},
		PaymentType:             PaymentType,
		SubmitResultTime:        "2026-01-01T00:00:00.000Z",
		IdentifierFromPurchaser: "pur_1",
	})
	if err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}
	if gotMethod != http.MethodPost || gotPath != "/payment/" {
		t.Errorf("request: got %s %s want POST /payment/", gotMethod, gotPath)
	}
	if got.AgentIdentifier != "agent-1" || got.PaymentType != "Web3CardanoV1" || got.IdentifierFromPurchaser != "pur_1" {
		t.Errorf("payload: got %+v", got)
	}
	if len(got.Amounts) != 1 || got.Amounts[0].Amount != "10000000" {
		t.Errorf("amounts: got %+v", got.Amounts)
	}
	if resp.Data.BlockchainIdentifier != "bc-1" {
		t.Errorf("blockchainIdentifier: got %q", resp.Data.BlockchainIdentifier)
	}
	if resp.Data.UnlockTime != "1700000100000" {
		t.Errorf("numeric unlockTime: got %q", resp.Data.UnlockTime)
	}
	if resp.Data.SubmitResultTime != "1700000000000" {
		t.Errorf("string submitResultTime: got %q", resp.Data.SubmitResultTime)
	}
}

func TestCreatePayment_StatusMapping(t *testing.T) {
	cases := []struct {
		code int
		want error
	}{
		{http.StatusBadRequest, ErrInvalidRequest},
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusInternalServerError, ErrServiceError},
		{http.StatusNotFound, ErrServiceError},
		{http.StatusCreated, ErrServiceError},
	}
	for _, tc := range cases {
		srv := mockServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.code)
			w.Write([]byte(`{"error":"nope"}`))
		})
		c := NewClient(srv.URL, "k")
		_, err := c.CreatePayment(context.Background(), CreatePaymentRequest{})
		if !errors.Is(err, tc.want) {
			t.Errorf("status %d: got %v want %v", tc.code, err, tc.want)
		}
		var merr *Error
		if !errors.As(err, &merr) || merr.StatusCode != tc.code {
			t.Errorf("status %d: expected *Error with status code, got %v", tc.code, err)
		}
		if merr != nil && !strings.Contains(merr.Body, "nope") {
			t.Errorf("status %d: body not carried: %q", tc.code, merr.Body)
		}
	}
}

func TestCreatePayment_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(url, "k")
	_, err := c.CreatePayment(context.Background(), CreatePaymentRequest{})
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
}

func TestCreatePayment_Timeout(t *testing.T) {
	srv := mockServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	c := NewClient(srv.URL, "k", WithTimeout(50*time.Millisecond))
	_, err := c.CreatePayment(context.Background(), CreatePaymentRequest{})
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork on timeout, got %v", err)
	}
}

func TestCreatePayment_ContextCanceled(t *testing.T) {
	srv := mockServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient(srv.URL, "k")
	_, err := c.CreatePayment(ctx, CreatePaymentRequest{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled in chain, got %v", err)
	}
	if !errors.Is(err, ErrNetwork) {
		t.Errorf("expected ErrNetwork, got %v", err)
	}
}

// ── ListPayments ──────────────────────────────────────────────────────────────

func TestListPayments_Query(t *testing.T) {
	var gotMethod string
	var gotQuery map[string]string
	srv := mockServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		q := r.URL.Query()
		gotQuery = map[string]string{
			"network":                q.Get("network"),
			"limit":                  q.Get("limit"),
			"paymentContractAddress": q.Get("paymentContractAddress"),
		}
		w.Write([]byte(`{"data":{"payments":[
			{"blockchainIdentifier":"abc","NextAction":{"requestedAction":"CONFIRMED"},"onChainState":"FundsLocked"},
			{"blockchainIdentifier":"def","nextAction":{"requestedAction":"WaitingForExternalAction"}}
		]}}`))
	})

	c := NewClient(srv.URL, "k")
	resp, err := c.ListPayments(context.Background(), ListPaymentsQuery{
		Network:                "Mainnet",
		PaymentContractAddress: "addr1",
		Limit:                  25,
	})
	if err != nil {
		t.Fatalf("ListPayments: %v", err)
	}
	if gotMethod != http.MethodGet {
		t.Errorf("method: got %s", gotMethod)
	}
	want := map[string]string{"network": "Mainnet", "limit": "25", "paymentContractAddress": "addr1"}
	for k, v := range want {
		if gotQuery[k] != v {
			t.Errorf("query %s: got %q want %q", k, gotQuery[k], v)
		}
	}
	if len(resp.Data.Payments) != 2 {
		t.Fatalf("payments: got %d want 2", len(resp.Data.Payments))
	}
	if resp.Data.Payments[0].NextAction.RequestedAction != "CONFIRMED" {
		t.Errorf("payments[0] requestedAction: got %q", resp.Data.Payments[0].NextAction.RequestedAction)
	}
	if resp.Data.Payments[1].NextAction.RequestedAction != "WaitingForExternalAction" {
		t.Errorf("payments[1] requestedAction (lower-case key): got %q", resp.Data.Payments[1].NextAction.RequestedAction)
	}
}

func TestListPayments_MalformedBody(t *testing.T) {
	srv := mockServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	})

	c := NewClient(srv.URL, "k")
	if _, err := c.ListPayments(context.Background(), ListPaymentsQuery{}); err == nil {
		t.Fatal("expected decode error, got nil")
	}
}

// ── CompletePayment ───────────────────────────────────────────────────────────

func TestCompletePayment_OK(t *testing.T) {
	var got CompletePaymentRequest
	var gotMethod string
	srv := mockServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"data":{"status":"PaymentDone"}}`))
	})

	c := NewClient(srv.URL, "k")
	resp, err := c.CompletePayment(context.Background(), CompletePaymentRequest{
		Network:                "Preprod",
		PaymentContractAddress: "addr_test",
		Hash:                   "deadbeef",
		Identifier:             "bc-1",
	})
	if err != nil {
		t.Fatalf("CompletePayment: %v", err)
	}
	if gotMethod != http.MethodPatch {
		t.Errorf("method: got %s want PATCH", gotMethod)
	}
	if got.Hash != "deadbeef" || got.Identifier != "bc-1" {
		t.Errorf("payload: got %+v", got)
	}
	if resp.Data.Status != "PaymentDone" {
		t.Errorf("status: got %q", resp.Data.Status)
	}
}

// ── CreatePurchase ────────────────────────────────────────────────────────────

func TestCreatePurchase_OK(t *testing.T) {
	var raw map[string]any
	var gotPath string
	srv := mockServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		json.Unmarshal(b, &raw)
		w.Write([]byte(`{"status":"success","data":{"id":"pur-1","NextAction":{"requestedAction":"FundsLockingRequested"}}}`))
	})

	c := NewClient(srv.URL, "k")
	resp, err := c.CreatePurchase(context.Background(), CreatePurchaseRequest{
		BlockchainIdentifier: "bc-1",
		Network:              "Preprod",
		SubmitResultTime:     "1700000000",
		UnlockTime:           "1700000100",
		PaymentType:          PaymentType,
	})
	if err != nil {
		t.Fatalf("CreatePurchase: %v", err)
	}
	if gotPath != "/purchase/" {
		t.Errorf("path: got %q", gotPath)
	}
	if raw["submitResultTime"] != "1700000000" {
		t.Errorf("submitResultTime must be sent as a string, got %#v", raw["submitResultTime"])
	}
	for _, k := range []string{"identifierFromPurchaser", "sellerVkey", "smartContractAddress", "externalDisputeUnlockTime", "agentIdentifier"} {
		if _, ok := raw[k]; !ok {
			t.Errorf("payload missing %q", k)
		}
	}
	if resp.Data.ID != "pur-1" || resp.Data.NextAction.RequestedAction != "FundsLockingRequested" {
		t.Errorf("response: got %+v", resp.Data)
	}
}

// ── Config ────────────────────────────────────────────────────────────────────

func TestNewFromConfig(t *testing.T) {
	cfg, err := config.New("https://payments.example/api/v1/", "key", config.WithRequestTimeout(7*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	c := NewFromConfig(cfg)
	if c.BaseURL() != "https://payments.example/api/v1" {
		t.Errorf("BaseURL: got %q", c.BaseURL())
	}
	if c.http.Timeout != 7*time.Second {
		t.Errorf("timeout: got %v", c.http.Timeout)
	}
}
