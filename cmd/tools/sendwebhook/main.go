package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/aymanhalloween/smartcard/internal/signature"
)

// Sends signed authorization events to a running router, one per scenario,
// and prints the decisions. Useful for poking a local stack by hand.

type scenario struct {
	Name     string
	MCC      string
	Merchant string
	Amount   int64
	Expected string
}

var scenarios = []scenario{
	{"Starbucks Coffee Purchase", "5812", "Starbucks #1234", 525, "chase_sapphire"},
	{"United Airlines Flight", "3000", "United Airlines", 45000, "amex_platinum"},
	{"Shell Gas Station", "5541", "Shell #5678", 4500, "amex_gold"},
	{"Whole Foods Groceries", "5411", "Whole Foods Market", 8750, "amex_gold"},
	{"Amazon Online Purchase", "5732", "Amazon.com", 2999, "chase_freedom"},
	{"Netflix Subscription", "4899", "Netflix", 1599, "chase_freedom"},
	{"Unknown Merchant", "9999", "Random Store", 1000, "default_card"},
}

func main() {
	url := flag.String("url", "http://localhost:3001/api/webhook", "Webhook URL")
	secret := flag.String("secret", os.Getenv("WEBHOOK_SECRET"), "Webhook secret")
	flag.Parse()

	if *secret == "" {
		fmt.Fprintln(os.Stderr, "Error: secret not provided and WEBHOOK_SECRET not set")
		os.Exit(1)
	}

	failures := 0
	for _, s := range scenarios {
		if err := send(*url, []byte(*secret), s); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", s.Name, err)
			failures++
		}
	}
	if failures > 0 {
		os.Exit(1)
	}
}

func send(url string, secret []byte, s scenario) error {
	body, err := json.Marshal(map[string]any{
		"id":      "evt_" + uuid.NewString(),
		"type":    "issuing_authorization.created",
		"created": time.Now().Unix(),
		"data": map[string]any{
			"object": map[string]any{
				"id":       "iauth_" + uuid.NewString(),
				"amount":   s.Amount,
				"currency": "usd",
				"merchant_data": map[string]any{
					"mcc":  s.MCC,
					"name": s.Merchant,
				},
				"status": "pending",
			},
		},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Smartcard-Signature", signature.Sign(secret, body, time.Now()))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, respBody)
	}

	var decoded struct {
		RoutedTo string `json:"routed_to"`
		Status   string `json:"status"`
	}
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return err
	}

	mark := "ok"
	if decoded.RoutedTo != s.Expected {
		mark = fmt.Sprintf("UNEXPECTED (want %s)", s.Expected)
	}
	fmt.Printf("%-28s mcc=%s routed_to=%-15s status=%-8s %s\n",
		s.Name, s.MCC, decoded.RoutedTo, decoded.Status, mark)
	return nil
}
