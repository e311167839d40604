package certs

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/pem"
	"fmt"

	vault "github.com/hostweaveapp/hostweave/internal/crypto"
)

// Subject identifies the entity requesting the certificate.
type Subject struct {
	CommonName   string
	Organization string
	Locality     string
	Province     string
	Country      string
	Email        string
}

// Result carries the PEM-encoded request and the private key as a vault
// ciphertext. The cleartext key never leaves this package.
type Result struct {
	CSRPEM              string
	EncryptedPrivateKey string
}

const defaultKeyBits = 2048

// Generator produces RSA keys and signing requests. Generated private keys
// are encrypted before they are handed back.
type Generator struct {
	encryptor vault.Encryptor
	keyBits   int
}

func NewGenerator(encryptor vault.Encryptor) (*Generator, error) {
	if encryptor == nil {
		return nil, fmt.Errorf("an encryptor is required")
	}
	return &Generator{encryptor: encryptor, keyBits: defaultKeyBits}, nil
}

// Generate creates a key pair and a PKCS#10 request for the subject.
func (g *Generator) Generate(subject Subject) (*Result, error) {
	if subject.CommonName == "" {
		return nil, fmt.Errorf("subject common name is required")
	}

	key, err := rsa.GenerateKey(rand.Reader, g.keyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate rsa key: %w", err)
	}

	csrDER, err := buildCSR(subject, key)
	if err != nil {
		return nil, err
	}

	csrPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: csrDER})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: marshalPKCS1PrivateKey(key)})

	encryptedKey, err := g.encryptor.Encrypt(string(keyPEM))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt private key: %w", err)
	}

	return &Result{
		CSRPEM:              string(csrPEM),
		EncryptedPrivateKey: encryptedKey,
	}, nil
}

var (
	oidCommonName    = []int{2, 5, 4, 3}
	oidCountry       = []int{2, 5, 4, 6}
	oidLocality      = []int{2, 5, 4, 7}
	oidProvince      = []int{2, 5, 4, 8}
	oidOrganization  = []int{2, 5, 4, 10}
	oidEmailAddress  = []int{1, 2, 840, 113549, 1, 9, 1}
	oidRSAEncryption = []int{1, 2, 840, 113549, 1, 1, 1}
	oidSHA256WithRSA = []int{1, 2, 840, 113549, 1, 1, 11}
)

// buildCSR assembles the CertificationRequest: the to-be-signed info block,
// the signature algorithm identifier, and a SHA256-RSA signature over the
// info block's DER bytes.
func buildCSR(subject Subject, key *rsa.PrivateKey) ([]byte, error) {
	name, err := buildName(subject)
	if err != nil {
		return nil, err
	}

	spki, err := buildSubjectPublicKeyInfo(&key.PublicKey)
	if err != nil {
		return nil, err
	}

	// CertificationRequestInfo: version 0, subject, key info, and an empty
	// [0]-tagged attribute set (required by the grammar even when empty).
	info := derSequence(
		derSmallInt(0),
		name,
		spki,
		derTag(tagContext0, nil),
	)

	digest := sha256.Sum256(info)
	signature, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("failed to sign request: %w", err)
	}

	sigAlg, err := algorithmIdentifier(oidSHA256WithRSA)
	if err != nil {
		return nil, err
	}

	return derSequence(info, sigAlg, derBitString(signature)), nil
}

// buildName emits the subject as a SEQUENCE of single-attribute RDN sets in
// the conventional C, ST, L, O, CN, emailAddress order. Empty fields are
// skipped; country is a PrintableString, email an IA5String, the rest UTF8.
func buildName(subject Subject) ([]byte, error) {
	type attribute struct {
		oid    []int
		value  string
		encode func(string) []byte
	}
	attributes := []attribute{
		{oidCountry, subject.Country, derPrintableString},
		{oidProvince, subject.Province, derUTF8String},
		{oidLocality, subject.Locality, derUTF8String},
		{oidOrganization, subject.Organization, derUTF8String},
		{oidCommonName, subject.CommonName, derUTF8String},
		{oidEmailAddress, subject.Email, derIA5String},
	}

	var rdns [][]byte
	for _, attr := range attributes {
		if attr.value == "" {
			continue
		}
		oid, err := derOID(attr.oid)
		if err != nil {
			return nil, err
		}
		rdns = append(rdns, derSet(derSequence(oid, attr.encode(attr.value))))
	}
	return derSequence(rdns...), nil
}

func buildSubjectPublicKeyInfo(pub *rsa.PublicKey) ([]byte, error) {
	alg, err := algorithmIdentifier(oidRSAEncryption)
	if err != nil {
		return nil, err
	}

	publicKey := derSequence(
		derInteger(pub.N),
		derSmallInt(pub.E),
	)
	return derSequence(alg, derBitString(publicKey)), nil
}

func algorithmIdentifier(oid []int) ([]byte, error) {
	encoded, err := derOID(oid)
	if err != nil {
		return nil, err
	}
	return derSequence(encoded, derNull()), nil
}

// marshalPKCS1PrivateKey emits the RSAPrivateKey structure with the same DER
// helpers used for the request itself.
func marshalPKCS1PrivateKey(key *rsa.PrivateKey) []byte {
	key.Precompute()
	return derSequence(
		derSmallInt(0),
		derInteger(key.N),
		derSmallInt(key.E),
		derInteger(key.D),
		derInteger(key.Primes[0]),
		derInteger(key.Primes[1]),
		derInteger(key.Precomputed.Dp),
		derInteger(key.Precomputed.Dq),
		derInteger(key.Precomputed.Qinv),
	)
}
