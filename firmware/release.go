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

package firmware

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"golang.org/x/mod/sumdb/note"
)

// ReleaseSchema is the current release manifest schema version.
const ReleaseSchema = 1

// Release is the metadata distributed alongside a firmware image. It is
// signed as a note and checked by update tooling before an image is
// flashed; it is not part of the boot-time trust chain.
type Release struct {
	Schema          int    `json:"schema"`
	FirmwareVersion uint64 `json:"firmware_version"`
	ImageSHA256     []byte `json:"image_sha256"`
	BodySize        uint64 `json:"body_size"`
	Algorithm       uint64 `json:"algorithm"`
}

// NewRelease builds a manifest for the given flat image.
func NewRelease(image []byte, fwVersion, bodySize, algorithm uint64) *Release {
	sum := sha256.Sum256(image)
	return &Release{
		Schema:          ReleaseSchema,
		FirmwareVersion: fwVersion,
		ImageSHA256:     sum[:],
		BodySize:        bodySize,
		Algorithm:       algorithm,
	}
}

// CheckImage reports whether image matches the manifest's digest.
func (r *Release) CheckImage(image []byte) error {
	sum := sha256.Sum256(image)
	if string(sum[:]) != string(r.ImageSHA256) {
		return fmt.Errorf("image digest mismatch")
	}
	return nil
}

// SignRelease encodes r and signs it as a note.
func SignRelease(r *Release, s note.Signer) ([]byte, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return note.Sign(&note.Note{Text: string(body) + "\n"}, s)
}

// OpenRelease verifies a signed manifest and decodes it.
func OpenRelease(msg []byte, v note.Verifier) (*Release, error) {
	n, err := note.Open(msg, note.VerifierList(v))
	if err != nil {
		return nil, fmt.Errorf("verifying release: %v", err)
	}
	r := &Release{}
	if err := json.Unmarshal([]byte(n.Text), r); err != nil {
		return nil, fmt.Errorf("decoding release: %v", err)
	}
	if r.Schema != ReleaseSchema {
		return nil, fmt.Errorf("unsupported release schema %d", r.Schema)
	}
	return r, nil
}
