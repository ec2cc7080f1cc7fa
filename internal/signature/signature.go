// Package signature authenticates webhook payloads with HMAC-SHA256.
//
// The signed input is "<timestamp>.<raw body>", carried in a header of the
// form "t=<unix>,v1=<hex>". Verification always runs over the exact raw
// bytes received; re-serializing the body would change the signature input.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidSignature = fmt.Errorf("invalid signature")

// Sign computes the signature header value for payload at ts.
func Sign(secret, payload []byte, ts time.Time) string {
	mac := compute(secret, payload, ts.Unix())
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac))
}

// Verify checks header against the raw payload bytes. tolerance bounds how
// far the signed timestamp may drift from now; zero disables the age check.
// Any failure is reported as ErrInvalidSignature without detail.
func Verify(secret, payload []byte, header string, tolerance time.Duration, now time.Time) error {
	ts, candidates, err := parseHeader(header)
	if err != nil {
		return ErrInvalidSignature
	}
	if tolerance > 0 {
		age := now.Sub(time.Unix(ts, 0))
		if age < 0 {
			age = -age
		}
		if age > tolerance {
			return ErrInvalidSignature
		}
	}
	want := compute(secret, payload, ts)
	for _, candidate := range candidates {
		raw, err := hex.DecodeString(candidate)
		if err != nil {
			continue
		}
		if hmac.Equal(raw, want) {
			return nil
		}
	}
	return ErrInvalidSignature
}

func compute(secret, payload []byte, ts int64) []byte {
	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	return mac.Sum(nil)
}

// parseHeader extracts the timestamp and v1 signatures. Multiple v1 entries
// are allowed so secrets can be rotated without dropping events.
func parseHeader(header string) (int64, []string, error) {
	var (
		ts   int64 = -1
		sigs []string
	)
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("bad timestamp: %w", err)
			}
			ts = parsed
		case "v1":
			sigs = append(sigs, v)
		}
	}
	if ts < 0 || len(sigs) == 0 {
		return 0, nil, fmt.Errorf("malformed signature header")
	}
	return ts, sigs, nil
}
