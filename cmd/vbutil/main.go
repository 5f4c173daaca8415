// Copyright 2024 The vboot-android authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// The vbutil tool builds the signed containers consumed by the verified
// boot chain: packed public keys, key blocks, firmware and kernel
// preambles, flat images and signed release manifests.
package main

import (
	"crypto/rsa"
	"flag"
	"os"

	"golang.org/x/mod/sumdb/note"
	"k8s.io/klog"

	"github.com/SynaptekResearch/vboot-android/cryptolib"
	"github.com/SynaptekResearch/vboot-android/firmware"
	"github.com/SynaptekResearch/vboot-android/internal/hostsign"
	"github.com/SynaptekResearch/vboot-android/vboot"
)

var (
	doPackKey        = flag.Bool("pack_key", false, "Pack a PEM RSA key into the processed public key format.")
	doKeyBlock       = flag.Bool("keyblock", false, "Create and sign a key block.")
	doFwPreamble     = flag.Bool("fw_preamble", false, "Create and sign a firmware preamble.")
	doKernelPreamble = flag.Bool("kernel_preamble", false, "Create and sign a kernel preamble.")
	doImage          = flag.Bool("image", false, "Assemble a flat image from key block, preamble and body.")
	doRelease        = flag.Bool("release", false, "Create a signed release manifest for a flat image.")

	outputFile  = flag.String("output_file", "", "File to write the result to.")
	privKeyFile = flag.String("signing_key", "", "PEM file holding the RSA signing key.")
	algorithm   = flag.Uint64("algorithm", 0, "Signing algorithm identifier.")
	keyVersion  = flag.Uint64("key_version", 1, "Key version to embed in packed keys.")

	dataKeyFile  = flag.String("datakey_file", "", "Packed public key to embed as a key block's data key.")
	subkeyFile   = flag.String("subkey_file", "", "Packed public key to embed as a preamble's kernel subkey.")
	bodyFile     = flag.String("body_file", "", "Firmware or kernel body to sign.")
	fwVersion    = flag.Uint64("fw_version", 1, "Firmware version for preambles and manifests.")
	kernVersion  = flag.Uint64("kernel_version", 1, "Kernel version for kernel preambles.")
	loadAddr     = flag.Uint64("load_address", 0, "Kernel body load address.")
	keyBlockFile = flag.String("keyblock_file", "", "Key block file for image assembly.")
	preambleFile = flag.String("preamble_file", "", "Preamble file for image assembly.")
	imageFile    = flag.String("image_file", "", "Flat image file for release manifests.")
	noteKeyFile  = flag.String("note_key", "", "File holding a note signer key for release manifests.")
)

func main() {
	flag.Parse()

	switch {
	case *doPackKey:
		packKey()
	case *doKeyBlock:
		keyBlock()
	case *doFwPreamble:
		fwPreamble()
	case *doKernelPreamble:
		kernelPreamble()
	case *doImage:
		image()
	case *doRelease:
		release()
	default:
		flag.PrintDefaults()
	}
}

func packKey() {
	priv := privKeyOrDie()
	blob, err := hostsign.PackPublicKey(cryptolib.Algorithm(*algorithm), *keyVersion, &priv.PublicKey)
	if err != nil {
		klog.Exitf("Failed to pack key: %v", err)
	}
	writeOrDie(blob)
}

func keyBlock() {
	dataKey := packedKeyOrDie(*dataKeyFile, "datakey_file")
	priv := privKeyOrDie()
	block, err := hostsign.NewKeyBlock(dataKey, priv, cryptolib.Algorithm(*algorithm))
	if err != nil {
		klog.Exitf("Failed to build key block: %v", err)
	}
	writeOrDie(block)
}

func fwPreamble() {
	subkey := packedKeyOrDie(*subkeyFile, "subkey_file")
	priv := privKeyOrDie()
	alg := cryptolib.Algorithm(*algorithm)
	bodySig := bodySigOrDie(priv, alg)
	p, err := hostsign.NewFirmwarePreamble(*fwVersion, subkey, bodySig, priv, alg)
	if err != nil {
		klog.Exitf("Failed to build firmware preamble: %v", err)
	}
	writeOrDie(p)
}

func kernelPreamble() {
	priv := privKeyOrDie()
	alg := cryptolib.Algorithm(*algorithm)
	bodySig := bodySigOrDie(priv, alg)
	p, err := hostsign.NewKernelPreamble(*kernVersion, *loadAddr, bodySig.DataSize, bodySig, priv, alg)
	if err != nil {
		klog.Exitf("Failed to build kernel preamble: %v", err)
	}
	writeOrDie(p)
}

func image() {
	kb := readOrDie(*keyBlockFile, "keyblock_file")
	p := readOrDie(*preambleFile, "preamble_file")
	body := readOrDie(*bodyFile, "body_file")
	img := make([]byte, 0, len(kb)+len(p)+len(body))
	img = append(img, kb...)
	img = append(img, p...)
	img = append(img, body...)
	if _, err := firmware.ParseImage(img); err != nil {
		klog.Exitf("Assembled image does not split cleanly: %v", err)
	}
	writeOrDie(img)
}

func release() {
	img := readOrDie(*imageFile, "image_file")
	split, err := firmware.ParseImage(img)
	if err != nil {
		klog.Exitf("Failed to parse image %q: %v", *imageFile, err)
	}
	sk := readOrDie(*noteKeyFile, "note_key")
	signer, err := note.NewSigner(string(sk))
	if err != nil {
		klog.Exitf("Invalid note signer key: %v", err)
	}
	r := firmware.NewRelease(img, *fwVersion, uint64(len(split.Body)), *algorithm)
	msg, err := firmware.SignRelease(r, signer)
	if err != nil {
		klog.Exitf("Failed to sign release: %v", err)
	}
	writeOrDie(msg)
}

// bodySigOrDie signs the body file and wraps the signature for embedding.
func bodySigOrDie(priv *rsa.PrivateKey, alg cryptolib.Algorithm) *vboot.Signature {
	body := readOrDie(*bodyFile, "body_file")
	sig, err := hostsign.SignData(priv, alg, body)
	if err != nil {
		klog.Exitf("Failed to sign body: %v", err)
	}
	return &vboot.Signature{DataSize: uint64(len(body)), Data: sig}
}

func packedKeyOrDie(p, what string) *vboot.PublicKey {
	key, err := vboot.ParsePublicKey(readOrDie(p, what))
	if err != nil {
		klog.Exitf("Invalid packed key %q: %v", p, err)
	}
	return key
}

func readOrDie(p, what string) []byte {
	if p == "" {
		klog.Exitf("Missing required flag --%s", what)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		klog.Exitf("Failed to read %q: %v", p, err)
	}
	return b
}

func writeOrDie(b []byte) {
	if *outputFile == "" {
		klog.Exit("Missing required flag --output_file")
	}
	if err := os.WriteFile(*outputFile, b, 0o644); err != nil {
		klog.Exitf("WriteFile: %v", err)
	}
	klog.Infof("Wrote %d bytes to %q", len(b), *outputFile)
}

func privKeyOrDie() *rsa.PrivateKey {
	priv, err := hostsign.ParsePrivateKey(readOrDie(*privKeyFile, "signing_key"))
	if err != nil {
		klog.Exitf("Invalid signing key %q: %v", *privKeyFile, err)
	}
	return priv
}
