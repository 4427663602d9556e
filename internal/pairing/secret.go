// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package pairing

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"fmt"
	"strings"

	"github.com/atvremote/atvremote-go/internal/atverr"
	"github.com/atvremote/atvremote-go/internal/rsakey"
)

// normalizePIN upper-cases and strips ASCII spaces, then validates the
// result is an even-length hex string of at least two characters
// (spec.md §4.5 step 1).
func normalizePIN(pin string) (string, error) {
	pin = strings.ToUpper(strings.ReplaceAll(pin, " ", ""))
	if len(pin) < 2 || len(pin)%2 != 0 {
		return "", fmt.Errorf("pairing: %w: PIN must have an even length of at least 2", atverr.ErrInvalidResponse)
	}
	for i := 0; i < len(pin); i++ {
		c := pin[i]
		if !((c >= '0' && c <= '9') || (c >= 'A' && c <= 'F')) {
			return "", fmt.Errorf("pairing: %w: PIN must be hexadecimal", atverr.ErrInvalidResponse)
		}
	}
	return pin, nil
}

// pinToBytes parses a normalized hex PIN into code_bytes (spec.md
// §4.5 step 2).
func pinToBytes(pin string) ([]byte, error) {
	out := make([]byte, len(pin)/2)
	for i := range out {
		hi, err := hexNibble(pin[2*i])
		if err != nil {
			return nil, err
		}
		lo, err := hexNibble(pin[2*i+1])
		if err != nil {
			return nil, err
		}
		out[i] = hi<<4 | lo
	}
	return out, nil
}

func hexNibble(c byte) (byte, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, nil
	default:
		return 0, fmt.Errorf("pairing: %w: invalid hex digit %q", atverr.ErrInvalidResponse, c)
	}
}

// rsaComponents extracts (modulus, exponent) from an X.509
// certificate's PKCS#1 public key, per spec.md §4.5 step 3.
func rsaComponents(certDER []byte) (modulus, exponent []byte, err error) {
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, nil, fmt.Errorf("pairing: %w: parsing certificate: %v", atverr.ErrInvalidResponse, err)
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, nil, fmt.Errorf("pairing: %w: certificate has a non-RSA public key", atverr.ErrInvalidResponse)
	}
	return rsakey.ParsePublicKey(x509.MarshalPKCS1PublicKey(pub))
}

// computeSecret implements spec.md §4.5 steps 4-6: the pairing secret
// derivation and its check-byte preflight. The wrong PIN never hits
// the wire.
func computeSecret(clientMod, clientExp, serverMod, serverExp, codeBytes []byte) ([]byte, error) {
	h := sha256.New()
	h.Write(clientMod)
	h.Write(clientExp)
	h.Write(serverMod)
	h.Write(serverExp)
	h.Write(codeBytes)
	secret := h.Sum(nil)

	if codeBytes[0] != secret[0] {
		return nil, atverr.ErrSecretMismatch
	}
	return secret, nil
}
