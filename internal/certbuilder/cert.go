// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package certbuilder

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
	"time"
)

const (
	oidSHA256WithRSA = "1.2.840.113549.1.1.11"
	oidRSAEncryption = "1.2.840.113549.1.1.1"
	oidBasicConstraints = "2.5.29.19"

	commonName = "atvremote"
	validityYears = 10
)

// sigAlgorithm is the repeated AlgorithmIdentifier SEQUENCE { OID,
// NULL } used for both the TBS signature field and the outer
// signatureAlgorithm field — both are sha256WithRSAEncryption.
func sigAlgorithm() []byte {
	return Sequence(OID(oidSHA256WithRSA), Null())
}

func name(cn string) []byte {
	// RDNSequence ::= SEQUENCE OF RelativeDistinguishedName
	// RelativeDistinguishedName ::= SET OF AttributeTypeAndValue
	// AttributeTypeAndValue ::= SEQUENCE { type OID, value ANY }
	const oidCommonName = "2.5.4.3"
	atv := Sequence(OID(oidCommonName), UTF8String(cn))
	return Sequence(Set(atv))
}

func validity(notBefore, notAfter time.Time) []byte {
	nb := notBefore.UTC()
	na := notAfter.UTC()
	return Sequence(
		UTCTime(nb.Year(), int(nb.Month()), nb.Day(), nb.Hour(), nb.Minute(), nb.Second()),
		UTCTime(na.Year(), int(na.Month()), na.Day(), na.Hour(), na.Minute(), na.Second()),
	)
}

// rsaPublicKeyInfo builds the subjectPublicKeyInfo SEQUENCE wrapping a
// PKCS#1 RSAPublicKey for the given key.
func rsaPublicKeyInfo(pub *rsa.PublicKey) []byte {
	algID := Sequence(OID(oidRSAEncryption), Null())
	pkcs1 := Sequence(
		Integer(pub.N.Bytes()),
		Integer(big64(pub.E)),
	)
	return Sequence(algID, BitString(pkcs1))
}

func big64(e int) []byte {
	// Encode the public exponent (almost always 65537) as a minimal
	// big-endian magnitude.
	if e == 0 {
		return []byte{0x00}
	}
	var b []byte
	for e > 0 {
		b = append([]byte{byte(e & 0xff)}, b...)
		e >>= 8
	}
	return b
}

// basicConstraintsExtension builds the critical Basic Constraints
// extension with cA=TRUE: Extension ::= SEQUENCE { extnID OID,
// critical BOOLEAN, extnValue OCTET STRING }.
func basicConstraintsExtension() []byte {
	const tagBoolean = 0x01
	const tagOctetString = 0x04
	boolTrue := []byte{tagBoolean, 0x01, 0xFF}
	extnValue := Sequence(boolTrue)
	octetWrapped := tlv(nil, tagOctetString, extnValue)
	critical := []byte{tagBoolean, 0x01, 0xFF}
	return Sequence(OID(oidBasicConstraints), critical, octetWrapped)
}

// randomSerial returns an 8-byte positive serial number: random bytes
// with the top bit cleared.
func randomSerial() ([]byte, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("certbuilder: generating serial: %w", err)
	}
	buf[0] &^= 0x80
	return buf, nil
}

// BuildSelfSigned assembles and signs a v3 self-signed certificate for
// key, per spec.md §4.2: issuer == subject == CN=atvremote, 10-year
// validity starting now, sha256WithRSAEncryption signature, and a
// single critical Basic Constraints (cA=TRUE) extension.
func BuildSelfSigned(key *rsa.PrivateKey) ([]byte, error) {
	serial, err := randomSerial()
	if err != nil {
		return nil, err
	}

	notBefore := time.Now()
	notAfter := notBefore.AddDate(validityYears, 0, 0)

	version := ContextTag(0, Integer([]byte{0x02})) // v3
	extensions := ContextTag(3, Sequence(basicConstraintsExtension()))

	tbs := Sequence(
		version,
		Integer(serial),
		sigAlgorithm(),
		name(commonName),
		validity(notBefore, notAfter),
		name(commonName),
		rsaPublicKeyInfo(&key.PublicKey),
		extensions,
	)

	hash := sha256.Sum256(tbs)
	signature, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, hash[:])
	if err != nil {
		return nil, fmt.Errorf("certbuilder: signing certificate: %w", err)
	}

	cert := Sequence(tbs, sigAlgorithm(), BitString(signature))
	return cert, nil
}
