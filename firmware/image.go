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

// Package firmware drives the verified boot chain over flat firmware
// images: key block, preamble and body laid out back to back. Splitting an
// image trusts nothing beyond the container size fields; all trust
// decisions happen in package vboot.
package firmware

import (
	"encoding/binary"
	"fmt"

	"k8s.io/klog/v2"

	"github.com/SynaptekResearch/vboot-android/vboot"
)

// Image is a flat firmware image split into its three regions. Each slice
// aliases the original blob.
type Image struct {
	KeyBlock []byte
	Preamble []byte
	Body     []byte
}

// ParseImage splits a flat image along its declared container sizes. The
// split is purely structural; nothing about the regions is verified.
func ParseImage(blob []byte) (*Image, error) {
	size := uint64(len(blob))
	if size < vboot.KeyBlockHeaderLen {
		return nil, fmt.Errorf("image is %d bytes, too short for a key block", size)
	}
	kbSize := binary.LittleEndian.Uint64(blob[16:24])
	if kbSize < vboot.KeyBlockHeaderLen || kbSize > size {
		return nil, fmt.Errorf("key block declares %d bytes, image is %d", kbSize, size)
	}
	rest := blob[kbSize:]
	if uint64(len(rest)) < vboot.FirmwarePreambleHeaderLen {
		return nil, fmt.Errorf("%d bytes after key block, too short for a preamble", len(rest))
	}
	pSize := binary.LittleEndian.Uint64(rest[8:16])
	if pSize < vboot.FirmwarePreambleHeaderLen || pSize > uint64(len(rest)) {
		return nil, fmt.Errorf("preamble declares %d bytes, %d remain", pSize, len(rest))
	}
	return &Image{
		KeyBlock: blob[:kbSize],
		Preamble: rest[:pSize],
		Body:     rest[pSize:],
	}, nil
}

// Report summarizes a successfully verified image. Versions are reported
// for the caller's rollback policy, never compared here.
type Report struct {
	DataKeyVersion  uint64
	FirmwareVersion uint64
	BodySize        uint64
	KernelSubkey    *vboot.PublicKey
}

// Verifier runs the two-stage verification chain over firmware images.
type Verifier struct {
	// Root anchors the chain: it verifies the key block, whose data key
	// verifies the preamble, whose body signature covers the body.
	Root *vboot.PublicKey
}

// Verify checks img's full chain and returns a report on success.
func (v *Verifier) Verify(img *Image) (*Report, error) {
	kb, err := vboot.VerifyKeyBlock(img.KeyBlock, v.Root)
	if err != nil {
		return nil, fmt.Errorf("key block: %v", err)
	}
	dataKey, err := kb.DataKey.RSA()
	if err != nil {
		return nil, fmt.Errorf("data key: %v", err)
	}
	pre, err := vboot.VerifyFirmwarePreamble(img.Preamble, dataKey)
	if err != nil {
		return nil, fmt.Errorf("preamble: %v", err)
	}

	bodySig := pre.BodySignature
	if bodySig.DataSize > uint64(len(img.Body)) {
		return nil, fmt.Errorf("body signature covers %d bytes, body is %d", bodySig.DataSize, len(img.Body))
	}
	h := dataKey.Algorithm().NewHash()
	h.Write(img.Body[:bodySig.DataSize])
	if err := vboot.VerifyDigest(h.Sum(nil), bodySig, dataKey); err != nil {
		return nil, fmt.Errorf("body: %v", err)
	}

	klog.V(1).Infof("firmware image verified: data key version %d, firmware version %d, body %d bytes",
		kb.DataKey.KeyVersion, pre.FirmwareVersion, bodySig.DataSize)

	return &Report{
		DataKeyVersion:  kb.DataKey.KeyVersion,
		FirmwareVersion: pre.FirmwareVersion,
		BodySize:        bodySig.DataSize,
		KernelSubkey:    pre.KernelSubkey,
	}, nil
}
