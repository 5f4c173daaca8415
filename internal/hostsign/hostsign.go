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

// Package hostsign builds and signs the containers that package vboot
// verifies. It runs on the host side only and is free to use stdlib RSA
// private key operations.
package hostsign

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/binary"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"

	"github.com/SynaptekResearch/vboot-android/cryptolib"
	"github.com/SynaptekResearch/vboot-android/vboot"
)

var cryptoHash = [cryptolib.NumAlgorithms]crypto.Hash{
	crypto.SHA1, crypto.SHA256, crypto.SHA512,
	crypto.SHA1, crypto.SHA256, crypto.SHA512,
	crypto.SHA1, crypto.SHA256, crypto.SHA512,
	crypto.SHA1, crypto.SHA256, crypto.SHA512,
}

// PackKeyMaterial converts an RSA public key into the packed processed
// form accepted by cryptolib.NewPublicKey, precomputing n0inv and R^2 mod
// n. The key's modulus size must match the algorithm and its exponent
// must be 65537.
func PackKeyMaterial(alg cryptolib.Algorithm, pub *rsa.PublicKey) ([]byte, error) {
	if !alg.Valid() {
		return nil, fmt.Errorf("invalid algorithm %d", uint64(alg))
	}
	modLen := alg.SignatureSize()
	if uint64(pub.N.BitLen()) != modLen*8 {
		return nil, fmt.Errorf("modulus is %d bits, algorithm wants %d", pub.N.BitLen(), modLen*8)
	}
	if pub.E != 65537 {
		return nil, fmt.Errorf("unsupported public exponent %d", pub.E)
	}

	arrayLen := uint32(modLen / 4)
	out := make([]byte, alg.KeyMaterialSize())
	binary.LittleEndian.PutUint32(out[0:4], arrayLen)

	// n0inv = -1 / n[0] mod 2^32.
	mod32 := new(big.Int).Lsh(big.NewInt(1), 32)
	inv := new(big.Int).ModInverse(pub.N, mod32)
	if inv == nil {
		return nil, errors.New("modulus is even")
	}
	n0inv := uint32(mod32.Sub(mod32, inv).Uint64())
	binary.LittleEndian.PutUint32(out[4:8], n0inv)

	putWords(out[8:8+modLen], pub.N, modLen)

	rr := new(big.Int).Lsh(big.NewInt(1), uint(modLen)*8*2)
	rr.Mod(rr, pub.N)
	putWords(out[8+modLen:], rr, modLen)

	return out, nil
}

// putWords writes v as 32-bit little-endian words, least significant word
// first, into the modLen-byte buffer b.
func putWords(b []byte, v *big.Int, modLen uint64) {
	be := make([]byte, modLen)
	v.FillBytes(be)
	for i := uint64(0); i < modLen/4; i++ {
		w := binary.BigEndian.Uint32(be[modLen-4*(i+1):])
		binary.LittleEndian.PutUint32(b[4*i:], w)
	}
}

// PackPublicKey returns the on-disk form of a public key: descriptor
// followed by packed key material.
func PackPublicKey(alg cryptolib.Algorithm, version uint64, pub *rsa.PublicKey) ([]byte, error) {
	material, err := PackKeyMaterial(alg, pub)
	if err != nil {
		return nil, err
	}
	out := make([]byte, vboot.PublicKeyLen+len(material))
	binary.LittleEndian.PutUint64(out[0:8], vboot.PublicKeyLen)
	binary.LittleEndian.PutUint64(out[8:16], uint64(len(material)))
	binary.LittleEndian.PutUint64(out[16:24], uint64(alg))
	binary.LittleEndian.PutUint64(out[24:32], version)
	copy(out[vboot.PublicKeyLen:], material)
	return out, nil
}

// SignData returns the PKCS#1 v1.5 signature over data using the
// algorithm's hash.
func SignData(priv *rsa.PrivateKey, alg cryptolib.Algorithm, data []byte) ([]byte, error) {
	if !alg.Valid() {
		return nil, fmt.Errorf("invalid algorithm %d", uint64(alg))
	}
	h := cryptoHash[alg]
	hh := h.New()
	hh.Write(data)
	return rsa.SignPKCS1v15(rand.Reader, priv, h, hh.Sum(nil))
}

// putSignatureDesc writes a signature descriptor at descOff of blob.
// sigOff is relative to the descriptor.
func putSignatureDesc(blob []byte, descOff, sigOff, sigSize, dataSize uint64) {
	binary.LittleEndian.PutUint64(blob[descOff:], sigOff)
	binary.LittleEndian.PutUint64(blob[descOff+8:], sigSize)
	binary.LittleEndian.PutUint64(blob[descOff+16:], dataSize)
}

// putPublicKeyDesc writes a public key descriptor at descOff of blob.
// keyOff is relative to the descriptor.
func putPublicKeyDesc(blob []byte, descOff, keyOff uint64, key *vboot.PublicKey) {
	binary.LittleEndian.PutUint64(blob[descOff:], keyOff)
	binary.LittleEndian.PutUint64(blob[descOff+8:], uint64(len(key.Data)))
	binary.LittleEndian.PutUint64(blob[descOff+16:], key.Algorithm)
	binary.LittleEndian.PutUint64(blob[descOff+24:], key.KeyVersion)
}

// NewKeyBlock builds a key block carrying dataKey, signed with priv using
// alg. The signed prefix is the header plus the data key material; the
// SHA-512 checksum and the root signature both cover that prefix.
func NewKeyBlock(dataKey *vboot.PublicKey, priv *rsa.PrivateKey, alg cryptolib.Algorithm) ([]byte, error) {
	if !alg.Valid() {
		return nil, fmt.Errorf("invalid algorithm %d", uint64(alg))
	}
	sigLen := alg.SignatureSize()
	signedLen := uint64(vboot.KeyBlockHeaderLen) + uint64(len(dataKey.Data))
	total := signedLen + cryptolib.SHA512DigestSize + sigLen

	block := make([]byte, total)
	copy(block[0:8], vboot.KeyBlockMagic)
	binary.LittleEndian.PutUint32(block[8:12], vboot.KeyBlockVersionMajor)
	binary.LittleEndian.PutUint32(block[12:16], 1)
	binary.LittleEndian.PutUint64(block[16:24], total)
	putSignatureDesc(block, vboot.KeyBlockSignatureOffset,
		signedLen+cryptolib.SHA512DigestSize-vboot.KeyBlockSignatureOffset, sigLen, signedLen)
	putSignatureDesc(block, vboot.KeyBlockChecksumOffset,
		signedLen-vboot.KeyBlockChecksumOffset, cryptolib.SHA512DigestSize, signedLen)
	putPublicKeyDesc(block, vboot.KeyBlockDataKeyOffset,
		vboot.KeyBlockHeaderLen-vboot.KeyBlockDataKeyOffset, dataKey)
	copy(block[vboot.KeyBlockHeaderLen:], dataKey.Data)

	copy(block[signedLen:], cryptolib.SHA512Digest(block[:signedLen]))
	sig, err := SignData(priv, alg, block[:signedLen])
	if err != nil {
		return nil, err
	}
	copy(block[signedLen+cryptolib.SHA512DigestSize:], sig)
	return block, nil
}

// NewFirmwarePreamble builds a firmware preamble carrying the kernel
// subkey and body signature, signed with priv using alg. The signed
// prefix is everything up to the preamble signature.
func NewFirmwarePreamble(fwVersion uint64, kernelSubkey *vboot.PublicKey, bodySig *vboot.Signature, priv *rsa.PrivateKey, alg cryptolib.Algorithm) ([]byte, error) {
	if !alg.Valid() {
		return nil, fmt.Errorf("invalid algorithm %d", uint64(alg))
	}
	sigLen := alg.SignatureSize()
	subOff := uint64(vboot.FirmwarePreambleHeaderLen)
	bodySigOff := subOff + uint64(len(kernelSubkey.Data))
	signedLen := bodySigOff + uint64(len(bodySig.Data))
	total := signedLen + sigLen

	p := make([]byte, total)
	binary.LittleEndian.PutUint32(p[0:4], vboot.FirmwarePreambleVersionMajor)
	binary.LittleEndian.PutUint32(p[4:8], 1)
	binary.LittleEndian.PutUint64(p[8:16], total)
	putSignatureDesc(p, vboot.FirmwarePreambleSignatureOffset,
		signedLen-vboot.FirmwarePreambleSignatureOffset, sigLen, signedLen)
	binary.LittleEndian.PutUint64(p[40:48], fwVersion)
	putPublicKeyDesc(p, vboot.FirmwarePreambleSubkeyOffset,
		subOff-vboot.FirmwarePreambleSubkeyOffset, kernelSubkey)
	putSignatureDesc(p, vboot.FirmwarePreambleBodySigOffset,
		bodySigOff-vboot.FirmwarePreambleBodySigOffset, uint64(len(bodySig.Data)), bodySig.DataSize)
	copy(p[subOff:], kernelSubkey.Data)
	copy(p[bodySigOff:], bodySig.Data)

	sig, err := SignData(priv, alg, p[:signedLen])
	if err != nil {
		return nil, err
	}
	copy(p[signedLen:], sig)
	return p, nil
}

// NewKernelPreamble builds a kernel preamble carrying the body signature
// and load parameters, signed with priv using alg.
func NewKernelPreamble(kernelVersion, loadAddr, bodySize uint64, bodySig *vboot.Signature, priv *rsa.PrivateKey, alg cryptolib.Algorithm) ([]byte, error) {
	if !alg.Valid() {
		return nil, fmt.Errorf("invalid algorithm %d", uint64(alg))
	}
	sigLen := alg.SignatureSize()
	bodySigOff := uint64(vboot.KernelPreambleHeaderLen)
	signedLen := bodySigOff + uint64(len(bodySig.Data))
	total := signedLen + sigLen

	p := make([]byte, total)
	binary.LittleEndian.PutUint32(p[0:4], vboot.KernelPreambleVersionMajor)
	binary.LittleEndian.PutUint32(p[4:8], 1)
	binary.LittleEndian.PutUint64(p[8:16], total)
	putSignatureDesc(p, vboot.KernelPreambleSignatureOffset,
		signedLen-vboot.KernelPreambleSignatureOffset, sigLen, signedLen)
	binary.LittleEndian.PutUint64(p[40:48], kernelVersion)
	binary.LittleEndian.PutUint64(p[48:56], loadAddr)
	binary.LittleEndian.PutUint64(p[56:64], bodySize)
	putSignatureDesc(p, vboot.KernelPreambleBodySigOffset,
		bodySigOff-vboot.KernelPreambleBodySigOffset, uint64(len(bodySig.Data)), bodySig.DataSize)
	copy(p[bodySigOff:], bodySig.Data)

	sig, err := SignData(priv, alg, p[:signedLen])
	if err != nil {
		return nil, err
	}
	copy(p[signedLen:], sig)
	return p, nil
}

// RechecksumKeyBlock recomputes the SHA-512 checksum of a key block in
// place, using the offsets and coverage its checksum descriptor declares.
func RechecksumKeyBlock(block []byte) error {
	d := block[vboot.KeyBlockChecksumOffset:]
	sigOff := binary.LittleEndian.Uint64(d[0:8])
	dataSize := binary.LittleEndian.Uint64(d[16:24])
	if dataSize > uint64(len(block)) {
		return errors.New("checksum coverage exceeds block")
	}
	at := vboot.KeyBlockChecksumOffset + sigOff
	if at+cryptolib.SHA512DigestSize > uint64(len(block)) {
		return errors.New("checksum offset exceeds block")
	}
	copy(block[at:], cryptolib.SHA512Digest(block[:dataSize]))
	return nil
}

// resign recomputes the signature whose descriptor sits at descOff,
// signing the data_size prefix it declares.
func resign(blob []byte, descOff uint64, priv *rsa.PrivateKey, alg cryptolib.Algorithm) error {
	d := blob[descOff:]
	sigOff := binary.LittleEndian.Uint64(d[0:8])
	dataSize := binary.LittleEndian.Uint64(d[16:24])
	if dataSize > uint64(len(blob)) {
		return errors.New("signature coverage exceeds blob")
	}
	sig, err := SignData(priv, alg, blob[:dataSize])
	if err != nil {
		return err
	}
	at := descOff + sigOff
	if at+uint64(len(sig)) > uint64(len(blob)) {
		return errors.New("signature offset exceeds blob")
	}
	copy(blob[at:], sig)
	return nil
}

// ResignKeyBlock recomputes a key block's root signature in place.
func ResignKeyBlock(block []byte, priv *rsa.PrivateKey, alg cryptolib.Algorithm) error {
	return resign(block, vboot.KeyBlockSignatureOffset, priv, alg)
}

// ResignFirmwarePreamble recomputes a firmware preamble's signature in place.
func ResignFirmwarePreamble(p []byte, priv *rsa.PrivateKey, alg cryptolib.Algorithm) error {
	return resign(p, vboot.FirmwarePreambleSignatureOffset, priv, alg)
}

// ResignKernelPreamble recomputes a kernel preamble's signature in place.
func ResignKernelPreamble(p []byte, priv *rsa.PrivateKey, alg cryptolib.Algorithm) error {
	return resign(p, vboot.KernelPreambleSignatureOffset, priv, alg)
}

// ParsePrivateKey loads an RSA private key from PEM, accepting PKCS#1 and
// PKCS#8 encodings.
func ParsePrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("PEM block does not contain an RSA key")
		}
		return rsaKey, nil
	default:
		return nil, fmt.Errorf("unsupported PEM block type %q", block.Type)
	}
}
