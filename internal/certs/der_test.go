package certs

import (
	"bytes"
	"math/big"
	"testing"
)

func TestDERLengthForms(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		n    int
		want []byte
	}{
		{"zero", 0, []byte{0x00}},
		{"short max", 0x7F, []byte{0x7F}},
		{"long one byte", 0x80, []byte{0x81, 0x80}},
		{"long one byte max", 0xFF, []byte{0x81, 0xFF}},
		{"long two bytes", 0x0100, []byte{0x82, 0x01, 0x00}},
		{"long two bytes large", 0x1234, []byte{0x82, 0x12, 0x34}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := derLength(tc.n); !bytes.Equal(got, tc.want) {
				t.Fatalf("derLength(%d) = %x, want %x", tc.n, got, tc.want)
			}
		})
	}
}

func TestDEROID(t *testing.T) {
	t.Parallel()

	// rsaEncryption, 1.2.840.113549.1.1.1.
	got, err := derOID(oidRSAEncryption)
	if err != nil {
		t.Fatalf("derOID: %v", err)
	}
	want := []byte{0x06, 0x09, 0x2A, 0x86, 0x48, 0x86, 0xF7, 0x0D, 0x01, 0x01, 0x01}
	if !bytes.Equal(got, want) {
		t.Fatalf("rsaEncryption oid = %x, want %x", got, want)
	}

	if _, err := derOID([]int{1}); err == nil {
		t.Fatal("expected error for single-arc oid")
	}
	if _, err := derOID([]int{1, 40}); err == nil {
		t.Fatal("expected error for second arc out of range")
	}
}

func TestDERInteger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value int64
		want  []byte
	}{
		{"zero", 0, []byte{0x02, 0x01, 0x00}},
		{"small", 65537, []byte{0x02, 0x03, 0x01, 0x00, 0x01}},
		{"high bit padded", 0x80, []byte{0x02, 0x02, 0x00, 0x80}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := derInteger(big.NewInt(tc.value)); !bytes.Equal(got, tc.want) {
				t.Fatalf("derInteger(%d) = %x, want %x", tc.value, got, tc.want)
			}
		})
	}
}

func TestDERBitString(t *testing.T) {
	t.Parallel()

	got := derBitString([]byte{0xAB, 0xCD})
	want := []byte{0x03, 0x03, 0x00, 0xAB, 0xCD}
	if !bytes.Equal(got, want) {
		t.Fatalf("derBitString = %x, want %x", got, want)
	}
}
