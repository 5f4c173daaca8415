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

// Package vboot verifies the signed containers of the verified boot chain:
// key blocks, firmware preambles and kernel preambles. All container fields
// are packed little-endian and untrusted until checked; every declared
// (offset, size) pair passes the bounds predicate before its data is
// touched.
package vboot

import (
	"encoding/binary"

	"github.com/SynaptekResearch/vboot-android/cryptolib"
)

// Container layout constants. All offsets are byte offsets from the start
// of the enclosing header, all multi-byte fields little-endian.
const (
	// PublicKeyLen is the size of a packed public key descriptor.
	PublicKeyLen = 32
	// SignatureLen is the size of a packed signature descriptor.
	SignatureLen = 24

	// KeyBlockHeaderLen is the fixed key block header size: magic,
	// version, block size, signature and checksum descriptors, data key
	// descriptor.
	KeyBlockHeaderLen       = 104
	KeyBlockSignatureOffset = 24
	KeyBlockChecksumOffset  = 48
	KeyBlockDataKeyOffset   = 72

	// FirmwarePreambleHeaderLen is the fixed firmware preamble header
	// size: version, preamble size, preamble signature descriptor,
	// firmware version, kernel subkey descriptor, body signature
	// descriptor.
	FirmwarePreambleHeaderLen       = 104
	FirmwarePreambleSignatureOffset = 16
	FirmwarePreambleSubkeyOffset    = 48
	FirmwarePreambleBodySigOffset   = 80

	// KernelPreambleHeaderLen is the fixed kernel preamble header size:
	// version, preamble size, preamble signature descriptor, kernel
	// version, body load address, body size, body signature descriptor.
	KernelPreambleHeaderLen       = 88
	KernelPreambleSignatureOffset = 16
	KernelPreambleBodySigOffset   = 64

	// KeyBlockMagic opens every key block.
	KeyBlockMagic = "CHROMEOS"

	// Supported container major versions. Minor versions are ignored.
	KeyBlockVersionMajor         = 2
	FirmwarePreambleVersionMajor = 2
	KernelPreambleVersionMajor   = 2
)

// PublicKey is a read-only view of packed public key material and its
// descriptor fields. Data aliases the containing blob.
type PublicKey struct {
	Algorithm  uint64
	KeyVersion uint64
	Data       []byte
}

// Signature is a read-only view of a packed signature. DataSize is the
// number of bytes the signature claims to cover; Data aliases the
// containing blob.
type Signature struct {
	DataSize uint64
	Data     []byte
}

// memberInside reports whether a member header at hdrOff of length hdrLen,
// together with the data region it declares at dataOff (relative to the
// member header) of length dataLen, lies entirely within a parent of
// parentSize bytes. All comparisons are in subtraction form so that no sum
// can wrap.
func memberInside(parentSize, hdrOff, hdrLen, dataOff, dataLen uint64) bool {
	if hdrOff > parentSize {
		return false
	}
	if hdrLen > parentSize-hdrOff {
		return false
	}
	if dataOff > parentSize-hdrOff {
		return false
	}
	if dataLen > parentSize-hdrOff-dataOff {
		return false
	}
	return true
}

// publicKeyInside checks the public key descriptor at descOff of parent
// against parentSize and, if in bounds, returns its view.
func publicKeyInside(parent []byte, parentSize, descOff uint64) (*PublicKey, bool) {
	d := parent[descOff : descOff+PublicKeyLen]
	keyOff := binary.LittleEndian.Uint64(d[0:8])
	keySize := binary.LittleEndian.Uint64(d[8:16])
	if !memberInside(parentSize, descOff, PublicKeyLen, keyOff, keySize) {
		return nil, false
	}
	return &PublicKey{
		Algorithm:  binary.LittleEndian.Uint64(d[16:24]),
		KeyVersion: binary.LittleEndian.Uint64(d[24:32]),
		Data:       parent[descOff+keyOff : descOff+keyOff+keySize],
	}, true
}

// signatureInside checks the signature descriptor at descOff of parent
// against parentSize and, if in bounds, returns its view.
func signatureInside(parent []byte, parentSize, descOff uint64) (*Signature, bool) {
	d := parent[descOff : descOff+SignatureLen]
	sigOff := binary.LittleEndian.Uint64(d[0:8])
	sigSize := binary.LittleEndian.Uint64(d[8:16])
	if !memberInside(parentSize, descOff, SignatureLen, sigOff, sigSize) {
		return nil, false
	}
	return &Signature{
		DataSize: binary.LittleEndian.Uint64(d[16:24]),
		Data:     parent[descOff+sigOff : descOff+sigOff+sigSize],
	}, true
}

// ParsePublicKey parses a standalone packed public key, a descriptor
// followed by key material, as stored on disk for root keys. The blob may
// be longer than the key it contains.
func ParsePublicKey(blob []byte) (*PublicKey, error) {
	if uint64(len(blob)) < PublicKeyLen {
		return nil, ErrPublicKeyInvalid
	}
	key, ok := publicKeyInside(blob, uint64(len(blob)), 0)
	if !ok {
		return nil, ErrPublicKeyInvalid
	}
	return key, nil
}

// RSA unpacks the key material into a verification key. The descriptor's
// algorithm must be defined and the material length must match it exactly.
func (k *PublicKey) RSA() (*cryptolib.PublicKey, error) {
	alg := cryptolib.Algorithm(k.Algorithm)
	if !alg.Valid() {
		return nil, ErrPublicKeyInvalid
	}
	if uint64(len(k.Data)) != alg.KeyMaterialSize() {
		return nil, ErrPublicKeyInvalid
	}
	key, err := cryptolib.NewPublicKey(alg, k.Data)
	if err != nil {
		return nil, ErrPublicKeyInvalid
	}
	return key, nil
}
