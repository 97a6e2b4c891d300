package x402

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPFacilitator_Verify(t *testing.T) {
	var gotPath string
	var gotBody facilitatorRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(VerifyResponse{IsValid: true, Payer: "0xpayer"})
	}))
	defer srv.Close()

	client, err := NewHTTPFacilitator(FacilitatorConfig{URL: srv.URL})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	payload := &PaymentPayload{
		X402Version: Version,
		Scheme:      "exact",
		Network:     "base-sepolia",
		Payload:     json.RawMessage(`{}`),
	}
	req := PaymentRequirements{Scheme: "exact", Network: "base-sepolia", MaxAmountRequired: "50000"}

	resp, err := client.Verify(context.Background(), payload, req)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}

	if gotPath != "/verify" {
		t.Errorf("path = %q, want /verify", gotPath)
	}
	if gotBody.X402Version != Version {
		t.Errorf("x402Version = %d, want %d", gotBody.X402Version, Version)
	}
	if gotBody.PaymentRequirements.MaxAmountRequired != "50000" {
		t.Errorf("requirements not forwarded: %+v", gotBody.PaymentRequirements)
	}
	if !resp.IsValid || resp.Payer != "0xpayer" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestHTTPFacilitator_Settle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/settle" {
			t.Errorf("path = %q, want /settle", r.URL.Path)
		}
		json.NewEncoder(w).Encode(SettleResponse{Success: true, Transaction: "0xabc"})
	}))
	defer srv.Close()

	client, _ := NewHTTPFacilitator(FacilitatorConfig{URL: srv.URL})

	resp, err := client.Settle(context.Background(), &PaymentPayload{
		Scheme: "exact", Network: "base-sepolia", Payload: json.RawMessage(`{}`),
	}, PaymentRequirements{})
	if err != nil {
		t.Fatalf("settle failed: %v", err)
	}
	if !resp.Success || resp.Transaction != "0xabc" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestHTTPFacilitator_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, _ := NewHTTPFacilitator(FacilitatorConfig{URL: srv.URL})

	_, err := client.Verify(context.Background(), &PaymentPayload{
		Scheme: "exact", Network: "base-sepolia", Payload: json.RawMessage(`{}`),
	}, PaymentRequirements{})
	if err == nil {
		t.Error("expected error for 500 response")
	}
}

func TestNewHTTPFacilitator_RequiresURL(t *testing.T) {
	if _, err := NewHTTPFacilitator(FacilitatorConfig{}); err == nil {
		t.Error("expected error for missing URL")
	}
}
