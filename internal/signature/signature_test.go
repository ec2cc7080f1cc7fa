package signature

import (
	"errors"
	"testing"
	"time"
)

func TestSignAndVerify(t *testing.T) {
	secret := []byte("whsec_test_secret")
	payload := []byte(`{"id":"evt_1","type":"issuing_authorization.created"}`)
	now := time.Now()

	header := Sign(secret, payload, now)
	if err := Verify(secret, payload, header, 5*time.Minute, now); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerify_TamperedPayload(t *testing.T) {
	secret := []byte("whsec_test_secret")
	payload := []byte(`{"id":"evt_1","amount":525}`)
	now := time.Now()
	header := Sign(secret, payload, now)

	// Flipping any single byte must invalidate the signature.
	tampered := append([]byte(nil), payload...)
	tampered[len(tampered)/2] ^= 0x01

	err := Verify(secret, tampered, header, 5*time.Minute, now)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()
	header := Sign([]byte("secret_a"), payload, now)

	err := Verify([]byte("secret_b"), payload, header, 0, now)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerify_StaleTimestamp(t *testing.T) {
	secret := []byte("whsec_test_secret")
	payload := []byte(`{"id":"evt_1"}`)
	signedAt := time.Now().Add(-time.Hour)
	header := Sign(secret, payload, signedAt)

	if err := Verify(secret, payload, header, 5*time.Minute, time.Now()); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected stale signature to fail, got %v", err)
	}
	// Zero tolerance disables the age check.
	if err := Verify(secret, payload, header, 0, time.Now()); err != nil {
		t.Fatalf("expected zero tolerance to skip age check, got %v", err)
	}
}

func TestVerify_MalformedHeader(t *testing.T) {
	secret := []byte("whsec_test_secret")
	payload := []byte(`{}`)

	for _, header := range []string{"", "garbage", "t=notanumber,v1=aa", "v1=aa", "t=123"} {
		err := Verify(secret, payload, header, 0, time.Now())
		if !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("header %q: expected ErrInvalidSignature, got %v", header, err)
		}
	}
}

func TestVerify_SecondSignatureAccepted(t *testing.T) {
	secret := []byte("whsec_new")
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()

	good := Sign(secret, payload, now)
	// Rotation: header carries an old-secret signature plus a valid one.
	header := good + ",v1=deadbeef"
	if err := Verify(secret, payload, header, 0, now); err != nil {
		t.Fatalf("Verify with extra candidate: %v", err)
	}
}
