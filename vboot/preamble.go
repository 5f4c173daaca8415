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

package vboot

import (
	"encoding/binary"

	"github.com/SynaptekResearch/vboot-android/cryptolib"
)

// FirmwarePreamble is the verified result of VerifyFirmwarePreamble.
type FirmwarePreamble struct {
	Size            uint64
	FirmwareVersion uint64
	KernelSubkey    *PublicKey
	BodySignature   *Signature
}

// KernelPreamble is the verified result of VerifyKernelPreamble.
type KernelPreamble struct {
	Size            uint64
	KernelVersion   uint64
	BodyLoadAddress uint64
	BodySize        uint64
	BodySignature   *Signature
}

// VerifyFirmwarePreamble checks the firmware preamble at the start of blob
// against key, the data key handed off by the key block. On success the
// preamble's kernel subkey and body signature both lie within the signed
// prefix and are safe to use.
//
// blob may be longer than the preamble's declared size.
func VerifyFirmwarePreamble(blob []byte, key *cryptolib.PublicKey) (*FirmwarePreamble, error) {
	size := uint64(len(blob))
	if size < FirmwarePreambleHeaderLen {
		return nil, reject(ErrPreambleInvalid, "firmware preamble: %d bytes, shorter than header", size)
	}
	if major := binary.LittleEndian.Uint32(blob[0:4]); major != FirmwarePreambleVersionMajor {
		return nil, reject(ErrPreambleInvalid, "firmware preamble: unsupported header version %d", major)
	}
	preambleSize := binary.LittleEndian.Uint64(blob[8:16])
	if preambleSize < FirmwarePreambleHeaderLen {
		return nil, reject(ErrPreambleInvalid, "firmware preamble: declared size %d shorter than header", preambleSize)
	}
	if size < preambleSize {
		return nil, reject(ErrPreambleInvalid, "firmware preamble: %d bytes, declared size %d", size, preambleSize)
	}

	sig, ok := signatureInside(blob, preambleSize, FirmwarePreambleSignatureOffset)
	if !ok {
		return nil, reject(ErrPreambleInvalid, "firmware preamble: signature out of bounds")
	}
	if sig.DataSize > preambleSize {
		return nil, reject(ErrPreambleInvalid, "firmware preamble: signature covers %d bytes, preamble is %d", sig.DataSize, preambleSize)
	}
	if err := VerifyData(blob, sig, key); err != nil {
		return nil, reject(ErrPreambleSignature, "firmware preamble: %v", err)
	}
	if sig.DataSize < FirmwarePreambleHeaderLen {
		return nil, reject(ErrPreambleInvalid, "firmware preamble: only %d bytes signed, header is %d", sig.DataSize, FirmwarePreambleHeaderLen)
	}

	bodySig, ok := signatureInside(blob, sig.DataSize, FirmwarePreambleBodySigOffset)
	if !ok {
		return nil, reject(ErrPreambleInvalid, "firmware preamble: body signature outside signed data")
	}
	subkey, ok := publicKeyInside(blob, sig.DataSize, FirmwarePreambleSubkeyOffset)
	if !ok {
		return nil, reject(ErrPreambleInvalid, "firmware preamble: kernel subkey outside signed data")
	}

	return &FirmwarePreamble{
		Size:            preambleSize,
		FirmwareVersion: binary.LittleEndian.Uint64(blob[40:48]),
		KernelSubkey:    subkey,
		BodySignature:   bodySig,
	}, nil
}

// VerifyKernelPreamble checks the kernel preamble at the start of blob
// against key, the kernel subkey handed off by the firmware preamble.
//
// blob may be longer than the preamble's declared size.
func VerifyKernelPreamble(blob []byte, key *cryptolib.PublicKey) (*KernelPreamble, error) {
	size := uint64(len(blob))
	if size < KernelPreambleHeaderLen {
		return nil, reject(ErrPreambleInvalid, "kernel preamble: %d bytes, shorter than header", size)
	}
	if major := binary.LittleEndian.Uint32(blob[0:4]); major != KernelPreambleVersionMajor {
		return nil, reject(ErrPreambleInvalid, "kernel preamble: unsupported header version %d", major)
	}
	preambleSize := binary.LittleEndian.Uint64(blob[8:16])
	if preambleSize < KernelPreambleHeaderLen {
		return nil, reject(ErrPreambleInvalid, "kernel preamble: declared size %d shorter than header", preambleSize)
	}
	if size < preambleSize {
		return nil, reject(ErrPreambleInvalid, "kernel preamble: %d bytes, declared size %d", size, preambleSize)
	}

	sig, ok := signatureInside(blob, preambleSize, KernelPreambleSignatureOffset)
	if !ok {
		return nil, reject(ErrPreambleInvalid, "kernel preamble: signature out of bounds")
	}
	if sig.DataSize > preambleSize {
		return nil, reject(ErrPreambleInvalid, "kernel preamble: signature covers %d bytes, preamble is %d", sig.DataSize, preambleSize)
	}
	if err := VerifyData(blob, sig, key); err != nil {
		return nil, reject(ErrPreambleSignature, "kernel preamble: %v", err)
	}
	if sig.DataSize < KernelPreambleHeaderLen {
		return nil, reject(ErrPreambleInvalid, "kernel preamble: only %d bytes signed, header is %d", sig.DataSize, KernelPreambleHeaderLen)
	}

	bodySig, ok := signatureInside(blob, sig.DataSize, KernelPreambleBodySigOffset)
	if !ok {
		return nil, reject(ErrPreambleInvalid, "kernel preamble: body signature outside signed data")
	}

	return &KernelPreamble{
		Size:            preambleSize,
		KernelVersion:   binary.LittleEndian.Uint64(blob[40:48]),
		BodyLoadAddress: binary.LittleEndian.Uint64(blob[48:56]),
		BodySize:        binary.LittleEndian.Uint64(blob[56:64]),
		BodySignature:   bodySig,
	}, nil
}
