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

package cryptolib

import (
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
)

// rsaExponent is the fixed public exponent for all container keys.
const rsaExponent = 65537

// PublicKey is a parsed processed public key, ready for verification.
type PublicKey struct {
	alg Algorithm
	n   *big.Int
}

// NewPublicKey parses packed processed key material for the given
// algorithm. The layout is:
//
//	arrayLen  uint32  modulus length in 32-bit words
//	n0inv     uint32  -1 / n[0] mod 2^32
//	n[arrayLen]  uint32 little-endian words, least significant first
//	rr[arrayLen] uint32 R^2 mod n, same word order
//
// The precomputed n0inv and rr fields are checked for consistency with the
// modulus before the key is accepted.
func NewPublicKey(alg Algorithm, material []byte) (*PublicKey, error) {
	if !alg.Valid() {
		return nil, fmt.Errorf("invalid algorithm %d", uint64(alg))
	}
	if got, want := uint64(len(material)), alg.KeyMaterialSize(); got != want {
		return nil, fmt.Errorf("key material is %d bytes, want %d", got, want)
	}
	arrayLen := binary.LittleEndian.Uint32(material[0:4])
	if uint64(arrayLen)*4 != modulusLen[alg] {
		return nil, fmt.Errorf("key has %d words, want %d", arrayLen, modulusLen[alg]/4)
	}
	n0inv := binary.LittleEndian.Uint32(material[4:8])

	n := wordsToInt(material[8:8+4*arrayLen], arrayLen)
	if n.Bit(0) == 0 {
		return nil, errors.New("modulus is even")
	}
	if uint64(n.BitLen()) != modulusLen[alg]*8 {
		return nil, fmt.Errorf("modulus is %d bits, want %d", n.BitLen(), modulusLen[alg]*8)
	}

	// n0inv must satisfy n[0]*n0inv == -1 mod 2^32.
	n0 := binary.LittleEndian.Uint32(material[8:12])
	if n0*n0inv != 0xffffffff {
		return nil, errors.New("n0inv does not match modulus")
	}

	// rr must equal R^2 mod n for R = 2^(8*modulusLen).
	rr := wordsToInt(material[8+4*arrayLen:], arrayLen)
	wantRR := new(big.Int).Lsh(big.NewInt(1), uint(modulusLen[alg])*8*2)
	wantRR.Mod(wantRR, n)
	if rr.Cmp(wantRR) != 0 {
		return nil, errors.New("rr does not match modulus")
	}

	return &PublicKey{alg: alg, n: n}, nil
}

// wordsToInt assembles a big.Int from little-endian 32-bit words, least
// significant word first.
func wordsToInt(b []byte, words uint32) *big.Int {
	be := make([]byte, 4*words)
	for i := uint32(0); i < words; i++ {
		w := binary.LittleEndian.Uint32(b[4*i:])
		binary.BigEndian.PutUint32(be[len(be)-int(4*i)-4:], w)
	}
	return new(big.Int).SetBytes(be)
}

// Algorithm returns the key's algorithm.
func (k *PublicKey) Algorithm() Algorithm {
	return k.alg
}

// Verify hashes data with the key's algorithm and checks sig against the
// digest.
func (k *PublicKey) Verify(data, sig []byte) error {
	h := k.alg.NewHash()
	h.Write(data)
	return k.VerifyDigest(h.Sum(nil), sig)
}

// VerifyDigest checks that sig is a valid PKCS#1 v1.5 signature over the
// given digest. The signature is decrypted with the public exponent and
// compared in constant time against the reconstructed encoded message.
func (k *PublicKey) VerifyDigest(digest, sig []byte) error {
	modLen := modulusLen[k.alg]
	if uint64(len(sig)) != modLen {
		return fmt.Errorf("signature is %d bytes, want %d", len(sig), modLen)
	}
	if uint64(len(digest)) != digestLen[k.alg] {
		return fmt.Errorf("digest is %d bytes, want %d", len(digest), digestLen[k.alg])
	}

	s := new(big.Int).SetBytes(sig)
	if s.Cmp(k.n) >= 0 {
		return errors.New("signature out of range")
	}
	m := new(big.Int).Exp(s, big.NewInt(rsaExponent), k.n)
	em := make([]byte, modLen)
	m.FillBytes(em)

	want := encodedMessage(k.alg, digest, modLen)
	if subtle.ConstantTimeCompare(em, want) != 1 {
		return errors.New("signature mismatch")
	}
	return nil
}

// encodedMessage builds the expected PKCS#1 v1.5 encoding
// 00 01 FF..FF 00 || DigestInfo || digest of length modLen.
func encodedMessage(alg Algorithm, digest []byte, modLen uint64) []byte {
	info := digestInfo[alg]
	em := make([]byte, modLen)
	em[1] = 0x01
	padEnd := int(modLen) - len(info) - len(digest) - 1
	for i := 2; i < padEnd; i++ {
		em[i] = 0xff
	}
	copy(em[padEnd+1:], info)
	copy(em[padEnd+1+len(info):], digest)
	return em
}
