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

package hostsign

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"sync"
	"testing"

	"github.com/SynaptekResearch/vboot-android/cryptolib"
	"github.com/SynaptekResearch/vboot-android/vboot"
)

var (
	keyOnce sync.Once
	priv    *rsa.PrivateKey
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		var err error
		if priv, err = rsa.GenerateKey(rand.Reader, 1024); err != nil {
			panic(err)
		}
	})
	return priv
}

func TestPackKeyMaterial(t *testing.T) {
	k := testKey(t)
	alg := cryptolib.RSA1024SHA256

	material, err := PackKeyMaterial(alg, &k.PublicKey)
	if err != nil {
		t.Fatalf("PackKeyMaterial: %v", err)
	}
	if got, want := uint64(len(material)), alg.KeyMaterialSize(); got != want {
		t.Errorf("material is %d bytes, want %d", got, want)
	}

	// The packed form must be accepted by the verification side, and
	// signatures must round trip through it.
	key, err := cryptolib.NewPublicKey(alg, material)
	if err != nil {
		t.Fatalf("NewPublicKey rejected packed material: %v", err)
	}
	data := []byte("signed payload")
	sig, err := SignData(k, alg, data)
	if err != nil {
		t.Fatalf("SignData: %v", err)
	}
	if err := key.Verify(data, sig); err != nil {
		t.Errorf("Verify: %v", err)
	}

	// Modulus size and algorithm must agree.
	if _, err := PackKeyMaterial(cryptolib.RSA2048SHA256, &k.PublicKey); err == nil {
		t.Error("PackKeyMaterial accepted a 1024-bit key for RSA2048")
	}
	if _, err := PackKeyMaterial(cryptolib.NumAlgorithms, &k.PublicKey); err == nil {
		t.Error("PackKeyMaterial accepted an invalid algorithm")
	}
	bad := rsa.PublicKey{N: k.N, E: 3}
	if _, err := PackKeyMaterial(alg, &bad); err == nil {
		t.Error("PackKeyMaterial accepted exponent 3")
	}
}

func TestPackPublicKey(t *testing.T) {
	k := testKey(t)
	alg := cryptolib.RSA1024SHA512

	blob, err := PackPublicKey(alg, 5, &k.PublicKey)
	if err != nil {
		t.Fatalf("PackPublicKey: %v", err)
	}
	key, err := vboot.ParsePublicKey(blob)
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}
	if got, want := key.Algorithm, uint64(alg); got != want {
		t.Errorf("Algorithm = %d, want %d", got, want)
	}
	if got, want := key.KeyVersion, uint64(5); got != want {
		t.Errorf("KeyVersion = %d, want %d", got, want)
	}
	if _, err := key.RSA(); err != nil {
		t.Errorf("RSA: %v", err)
	}
}

func TestMutationHelpers(t *testing.T) {
	k := testKey(t)
	alg := cryptolib.RSA1024SHA256
	material, err := PackKeyMaterial(alg, &k.PublicKey)
	if err != nil {
		t.Fatalf("PackKeyMaterial: %v", err)
	}
	dk := &vboot.PublicKey{Algorithm: uint64(alg), KeyVersion: 1, Data: material}

	block, err := NewKeyBlock(dk, k, alg)
	if err != nil {
		t.Fatalf("NewKeyBlock: %v", err)
	}
	root := &vboot.PublicKey{Algorithm: uint64(alg), KeyVersion: 1, Data: material}

	// Flip a signed byte: the block must fail, then pass again after
	// the checksum and signature are recomputed.
	block[vboot.KeyBlockHeaderLen] ^= 0x01
	if _, err := vboot.VerifyKeyBlock(block, root); err == nil {
		t.Fatal("VerifyKeyBlock accepted a mutated block")
	}
	if err := RechecksumKeyBlock(block); err != nil {
		t.Fatalf("RechecksumKeyBlock: %v", err)
	}
	if err := ResignKeyBlock(block, k, alg); err != nil {
		t.Fatalf("ResignKeyBlock: %v", err)
	}
	if _, err := vboot.VerifyKeyBlock(block, root); err != nil {
		t.Errorf("VerifyKeyBlock after refix: %v", err)
	}

	bodySig, err := SignData(k, alg, []byte("body"))
	if err != nil {
		t.Fatalf("SignData: %v", err)
	}
	sig := &vboot.Signature{DataSize: 4, Data: bodySig}

	p, err := NewFirmwarePreamble(1, dk, sig, k, alg)
	if err != nil {
		t.Fatalf("NewFirmwarePreamble: %v", err)
	}
	key, err := root.RSA()
	if err != nil {
		t.Fatalf("RSA: %v", err)
	}
	p[vboot.FirmwarePreambleHeaderLen] ^= 0x01
	if _, err := vboot.VerifyFirmwarePreamble(p, key); err == nil {
		t.Fatal("VerifyFirmwarePreamble accepted a mutated preamble")
	}
	if err := ResignFirmwarePreamble(p, k, alg); err != nil {
		t.Fatalf("ResignFirmwarePreamble: %v", err)
	}
	if _, err := vboot.VerifyFirmwarePreamble(p, key); err != nil {
		t.Errorf("VerifyFirmwarePreamble after resign: %v", err)
	}

	kp, err := NewKernelPreamble(1, 0x2000, 4, sig, k, alg)
	if err != nil {
		t.Fatalf("NewKernelPreamble: %v", err)
	}
	kp[vboot.KernelPreambleHeaderLen] ^= 0x01
	if _, err := vboot.VerifyKernelPreamble(kp, key); err == nil {
		t.Fatal("VerifyKernelPreamble accepted a mutated preamble")
	}
	if err := ResignKernelPreamble(kp, k, alg); err != nil {
		t.Fatalf("ResignKernelPreamble: %v", err)
	}
	if _, err := vboot.VerifyKernelPreamble(kp, key); err != nil {
		t.Errorf("VerifyKernelPreamble after resign: %v", err)
	}
}

func TestParsePrivateKey(t *testing.T) {
	k := testKey(t)

	pkcs1 := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(k),
	})
	got, err := ParsePrivateKey(pkcs1)
	if err != nil {
		t.Fatalf("ParsePrivateKey(PKCS1): %v", err)
	}
	if got.N.Cmp(k.N) != 0 {
		t.Error("PKCS1 round trip returned a different key")
	}

	der, err := x509.MarshalPKCS8PrivateKey(k)
	if err != nil {
		t.Fatalf("MarshalPKCS8PrivateKey: %v", err)
	}
	pkcs8 := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	got, err = ParsePrivateKey(pkcs8)
	if err != nil {
		t.Fatalf("ParsePrivateKey(PKCS8): %v", err)
	}
	if got.N.Cmp(k.N) != 0 {
		t.Error("PKCS8 round trip returned a different key")
	}

	if _, err := ParsePrivateKey([]byte("not pem")); err == nil {
		t.Error("ParsePrivateKey accepted junk")
	}
	cert := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte{0x30}})
	if _, err := ParsePrivateKey(cert); err == nil {
		t.Error("ParsePrivateKey accepted an unsupported block type")
	}
}
