// Copyright 2024 The vboot-android authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cryptolib implements the RSA/SHA primitives used by the verified
// boot containers: algorithm tables, processed public key parsing, and
// PKCS#1 v1.5 signature verification.
package cryptolib

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
)

// Algorithm identifies an RSA key size and hash combination. Values match
// the algorithm field carried in container key descriptors.
type Algorithm uint64

const (
	RSA1024SHA1 Algorithm = iota
	RSA1024SHA256
	RSA1024SHA512
	RSA2048SHA1
	RSA2048SHA256
	RSA2048SHA512
	RSA4096SHA1
	RSA4096SHA256
	RSA4096SHA512
	RSA8192SHA1
	RSA8192SHA256
	RSA8192SHA512

	// NumAlgorithms is the number of defined algorithms.
	NumAlgorithms = 12
)

// SHA512DigestSize is the size of the SHA-512 digest used as the key block
// checksum.
const SHA512DigestSize = sha512.Size

var algName = [NumAlgorithms]string{
	"RSA1024 SHA1",
	"RSA1024 SHA256",
	"RSA1024 SHA512",
	"RSA2048 SHA1",
	"RSA2048 SHA256",
	"RSA2048 SHA512",
	"RSA4096 SHA1",
	"RSA4096 SHA256",
	"RSA4096 SHA512",
	"RSA8192 SHA1",
	"RSA8192 SHA256",
	"RSA8192 SHA512",
}

// modulusLen holds the RSA modulus size in bytes for each algorithm. A
// signature is exactly one modulus long.
var modulusLen = [NumAlgorithms]uint64{
	128, 128, 128,
	256, 256, 256,
	512, 512, 512,
	1024, 1024, 1024,
}

var digestLen = [NumAlgorithms]uint64{
	sha1.Size, sha256.Size, sha512.Size,
	sha1.Size, sha256.Size, sha512.Size,
	sha1.Size, sha256.Size, sha512.Size,
	sha1.Size, sha256.Size, sha512.Size,
}

var newHash = [NumAlgorithms]func() hash.Hash{
	sha1.New, sha256.New, sha512.New,
	sha1.New, sha256.New, sha512.New,
	sha1.New, sha256.New, sha512.New,
	sha1.New, sha256.New, sha512.New,
}

// ASN.1 DER DigestInfo prefixes, prepended to the raw digest to form the
// PKCS#1 v1.5 encoded message.
var (
	sha1DigestInfo = []byte{
		0x30, 0x21, 0x30, 0x09, 0x06, 0x05, 0x2b, 0x0e,
		0x03, 0x02, 0x1a, 0x05, 0x00, 0x04, 0x14,
	}
	sha256DigestInfo = []byte{
		0x30, 0x31, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86,
		0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x01, 0x05,
		0x00, 0x04, 0x20,
	}
	sha512DigestInfo = []byte{
		0x30, 0x51, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86,
		0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x03, 0x05,
		0x00, 0x04, 0x40,
	}
)

var digestInfo = [NumAlgorithms][]byte{
	sha1DigestInfo, sha256DigestInfo, sha512DigestInfo,
	sha1DigestInfo, sha256DigestInfo, sha512DigestInfo,
	sha1DigestInfo, sha256DigestInfo, sha512DigestInfo,
	sha1DigestInfo, sha256DigestInfo, sha512DigestInfo,
}

// Valid reports whether a is a defined algorithm.
func (a Algorithm) Valid() bool {
	return a < NumAlgorithms
}

func (a Algorithm) String() string {
	if !a.Valid() {
		return fmt.Sprintf("invalid algorithm %d", uint64(a))
	}
	return algName[a]
}

// SignatureSize returns the expected signature length in bytes, equal to
// the RSA modulus size.
func (a Algorithm) SignatureSize() uint64 {
	return modulusLen[a]
}

// KeyMaterialSize returns the expected length of the packed processed key
// material for this algorithm.
func (a Algorithm) KeyMaterialSize() uint64 {
	// arrayLen words | n0inv | n | rr, all 32-bit, see NewPublicKey.
	return 2*modulusLen[a] + 8
}

// DigestSize returns the hash output length in bytes.
func (a Algorithm) DigestSize() uint64 {
	return digestLen[a]
}

// NewHash returns a new instance of the algorithm's hash function.
func (a Algorithm) NewHash() hash.Hash {
	return newHash[a]()
}

// DigestBuf returns the algorithm's digest of buf.
func DigestBuf(a Algorithm, buf []byte) ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("invalid algorithm %d", uint64(a))
	}
	h := newHash[a]()
	h.Write(buf)
	return h.Sum(nil), nil
}

// SHA512Digest returns the SHA-512 digest of buf. Key block checksums use
// this digest regardless of the container's signing algorithm.
func SHA512Digest(buf []byte) []byte {
	sum := sha512.Sum512(buf)
	return sum[:]
}
