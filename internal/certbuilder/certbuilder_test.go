// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package certbuilder

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
	"testing"
)

func TestDERLengthEncoding(t *testing.T) {
	cases := []int{0, 1, 127, 128, 200, 255, 256, 1000, 65535}
	for _, n := range cases {
		buf := appendLength(nil, n)
		// Parse it back by hand: short-form, 0x81, or 0x82.
		var got int
		switch {
		case buf[0] < 0x80:
			got = int(buf[0])
			if len(buf) != 1 {
				t.Errorf("length %d: short form should be 1 byte, got %d", n, len(buf))
			}
		case buf[0] == 0x81:
			got = int(buf[1])
			if len(buf) != 2 {
				t.Errorf("length %d: long form 0x81 should be 2 bytes, got %d", n, len(buf))
			}
		case buf[0] == 0x82:
			got = int(buf[1])<<8 | int(buf[2])
			if len(buf) != 3 {
				t.Errorf("length %d: long form 0x82 should be 3 bytes, got %d", n, len(buf))
			}
		default:
			t.Fatalf("unexpected length form for %d: %x", n, buf)
		}
		if got != n {
			t.Errorf("appendLength(%d) decoded back to %d", n, got)
		}
	}
}

func TestIntegerSignBitPadding(t *testing.T) {
	// A magnitude with the top bit set must get a leading 0x00.
	der := Integer([]byte{0xFF})
	want := []byte{tagInteger, 0x02, 0x00, 0xFF}
	if !bytes.Equal(der, want) {
		t.Errorf("Integer([0xFF]) = %x, want %x", der, want)
	}
	// A magnitude with the top bit clear is unchanged.
	der = Integer([]byte{0x7F})
	want = []byte{tagInteger, 0x01, 0x7F}
	if !bytes.Equal(der, want) {
		t.Errorf("Integer([0x7F]) = %x, want %x", der, want)
	}
}

func TestOIDRoundTripsThroughStdlib(t *testing.T) {
	der := OID("1.2.840.113549.1.1.11")
	var oid asn1.ObjectIdentifier
	rest, err := asn1.Unmarshal(der, &oid)
	if err != nil {
		t.Fatalf("asn1.Unmarshal: %v", err)
	}
	if len(rest) != 0 {
		t.Fatalf("unexpected trailing bytes: %x", rest)
	}
	if oid.String() != "1.2.840.113549.1.1.11" {
		t.Fatalf("OID round trip = %s", oid.String())
	}
}

func genKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey: %v", err)
	}
	return key
}

func TestBuildSelfSignedParsesAndVerifies(t *testing.T) {
	key := genKey(t)
	der, err := BuildSelfSigned(key)
	if err != nil {
		t.Fatalf("BuildSelfSigned: %v", err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("independent x509 parse failed: %v", err)
	}

	if cert.Version != 3 {
		t.Errorf("Version = %d, want 3", cert.Version)
	}
	if cert.SignatureAlgorithm != x509.SHA256WithRSA {
		t.Errorf("SignatureAlgorithm = %v, want SHA256WithRSA", cert.SignatureAlgorithm)
	}
	if !cert.SerialNumber.IsInt64() || cert.SerialNumber.Sign() <= 0 {
		t.Errorf("SerialNumber = %v, want a positive integer", cert.SerialNumber)
	}

	foundBC := false
	for _, ext := range cert.Extensions {
		if ext.Id.String() == oidBasicConstraints {
			foundBC = true
			if !ext.Critical {
				t.Errorf("Basic Constraints extension is not marked critical")
			}
		}
	}
	if !foundBC {
		t.Fatalf("Basic Constraints extension not found")
	}
	if !cert.IsCA || !cert.BasicConstraintsValid {
		t.Errorf("IsCA=%v BasicConstraintsValid=%v, want true/true", cert.IsCA, cert.BasicConstraintsValid)
	}

	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		t.Fatalf("PublicKey is %T, want *rsa.PublicKey", cert.PublicKey)
	}
	if pub.N.Cmp(key.PublicKey.N) != 0 || pub.E != key.PublicKey.E {
		t.Errorf("embedded public key does not match signing key")
	}

	hash := sha256.Sum256(cert.RawTBSCertificate)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, hash[:], cert.Signature); err != nil {
		t.Errorf("self-signature does not verify: %v", err)
	}
}

func TestBuildSelfSignedUniqueSerials(t *testing.T) {
	key := genKey(t)
	der1, err := BuildSelfSigned(key)
	if err != nil {
		t.Fatalf("BuildSelfSigned: %v", err)
	}
	der2, err := BuildSelfSigned(key)
	if err != nil {
		t.Fatalf("BuildSelfSigned: %v", err)
	}
	c1, _ := x509.ParseCertificate(der1)
	c2, _ := x509.ParseCertificate(der2)
	if c1.SerialNumber.Cmp(c2.SerialNumber) == 0 {
		t.Errorf("expected distinct random serials across calls")
	}
}
