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

package vboot_test

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/binary"
	"sync"
	"testing"

	"github.com/SynaptekResearch/vboot-android/cryptolib"
	"github.com/SynaptekResearch/vboot-android/internal/hostsign"
	"github.com/SynaptekResearch/vboot-android/vboot"
)

const (
	rootAlg = cryptolib.RSA2048SHA256
	dataAlg = cryptolib.RSA1024SHA256
)

var (
	keyOnce  sync.Once
	rootPriv *rsa.PrivateKey
	dataPriv *rsa.PrivateKey
)

func testKeys(t *testing.T) (root, data *rsa.PrivateKey) {
	t.Helper()
	keyOnce.Do(func() {
		var err error
		if rootPriv, err = rsa.GenerateKey(rand.Reader, 2048); err != nil {
			panic(err)
		}
		if dataPriv, err = rsa.GenerateKey(rand.Reader, 1024); err != nil {
			panic(err)
		}
	})
	return rootPriv, dataPriv
}

// packedKey wraps an RSA public key as the view embedded in containers.
func packedKey(t *testing.T, alg cryptolib.Algorithm, version uint64, pub *rsa.PublicKey) *vboot.PublicKey {
	t.Helper()
	material, err := hostsign.PackKeyMaterial(alg, pub)
	if err != nil {
		t.Fatalf("PackKeyMaterial: %v", err)
	}
	return &vboot.PublicKey{Algorithm: uint64(alg), KeyVersion: version, Data: material}
}

// rootKey returns the root verification key as parsed from its on-disk form.
func rootKey(t *testing.T) *vboot.PublicKey {
	t.Helper()
	root, _ := testKeys(t)
	blob, err := hostsign.PackPublicKey(rootAlg, 1, &root.PublicKey)
	if err != nil {
		t.Fatalf("PackPublicKey: %v", err)
	}
	key, err := vboot.ParsePublicKey(blob)
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}
	return key
}

func makeKeyBlock(t *testing.T) []byte {
	t.Helper()
	root, data := testKeys(t)
	block, err := hostsign.NewKeyBlock(packedKey(t, dataAlg, 3, &data.PublicKey), root, rootAlg)
	if err != nil {
		t.Fatalf("NewKeyBlock: %v", err)
	}
	return block
}

// refixKeyBlock recomputes a mutated key block's checksum and signature.
func refixKeyBlock(t *testing.T, block []byte) {
	t.Helper()
	root, _ := testKeys(t)
	if err := hostsign.RechecksumKeyBlock(block); err != nil {
		t.Fatalf("RechecksumKeyBlock: %v", err)
	}
	if err := hostsign.ResignKeyBlock(block, root, rootAlg); err != nil {
		t.Fatalf("ResignKeyBlock: %v", err)
	}
}

func putU32(b []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(b[off:], v)
}

func putU64(b []byte, off int, v uint64) {
	binary.LittleEndian.PutUint64(b[off:], v)
}

func getU64(b []byte, off int) uint64 {
	return binary.LittleEndian.Uint64(b[off:])
}
