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
// The vbverify tool checks the containers built by vbutil: key blocks,
// flat firmware images and signed release manifests, and dumps container
// structure for inspection.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/cheggaaa/pb/v3"
	"golang.org/x/mod/sumdb/note"
	"k8s.io/klog"

	"github.com/SynaptekResearch/vboot-android/cryptolib"
	"github.com/SynaptekResearch/vboot-android/firmware"
	"github.com/SynaptekResearch/vboot-android/vboot"
)

var (
	keyBlockFile = flag.String("keyblock", "", "Key block file to verify.")
	imageFile    = flag.String("image", "", "Flat firmware image to verify.")
	releaseFile  = flag.String("release", "", "Signed release manifest to verify.")
	dumpFile     = flag.String("dump", "", "Container file to dump without signature verification.")

	rootKeyFile    = flag.String("root_key", "", "Packed root public key. Without it, key blocks get a checksum-only check.")
	notePubKeyFile = flag.String("note_pubkey", "", "File holding the note verifier for release manifests.")
)

func main() {
	flag.Parse()

	switch {
	case *keyBlockFile != "":
		verifyKeyBlock()
	case *imageFile != "":
		verifyImage()
	case *releaseFile != "":
		verifyRelease()
	case *dumpFile != "":
		dump()
	default:
		flag.PrintDefaults()
	}
}

func verifyKeyBlock() {
	blob := readOrDie(*keyBlockFile)
	root := rootKeyOrNil()
	kb, err := vboot.VerifyKeyBlock(blob, root)
	if err != nil {
		klog.Exitf("Key block verification failed: %v", err)
	}
	if root == nil {
		fmt.Println("Key block checksum OK (inspection only, not a trust decision).")
	} else {
		fmt.Println("Key block signature OK.")
	}
	printKey("Data key", kb.DataKey)
}

func verifyImage() {
	root := rootKeyOrNil()
	if root == nil {
		klog.Exit("Missing required flag --root_key")
	}

	f, err := os.Open(*imageFile)
	if err != nil {
		klog.Exitf("Failed to open image %q: %v", *imageFile, err)
	}
	defer func() { _ = f.Close() }()
	fi, err := f.Stat()
	if err != nil {
		klog.Exitf("Stat %q: %v", *imageFile, err)
	}

	bar := pb.Full.Start64(fi.Size())
	buf := &bytes.Buffer{}
	if _, err := io.Copy(buf, bar.NewProxyReader(f)); err != nil {
		klog.Exitf("Failed to read image %q: %v", *imageFile, err)
	}
	bar.Finish()

	img, err := firmware.ParseImage(buf.Bytes())
	if err != nil {
		klog.Exitf("Failed to parse image: %v", err)
	}
	v := firmware.Verifier{Root: root}
	report, err := v.Verify(img)
	if err != nil {
		klog.Exitf("Image verification failed: %v", err)
	}
	fmt.Println("Image OK.")
	fmt.Printf("  Data key version:  %d\n", report.DataKeyVersion)
	fmt.Printf("  Firmware version:  %d\n", report.FirmwareVersion)
	fmt.Printf("  Body size:         %d bytes\n", report.BodySize)
	printKey("  Kernel subkey", report.KernelSubkey)
}

func verifyRelease() {
	msg := readOrDie(*releaseFile)
	if *notePubKeyFile == "" {
		klog.Exit("Missing required flag --note_pubkey")
	}
	vs := readOrDie(*notePubKeyFile)
	verifier, err := note.NewVerifier(string(vs))
	if err != nil {
		klog.Exitf("Invalid note verifier: %v", err)
	}
	r, err := firmware.OpenRelease(msg, verifier)
	if err != nil {
		klog.Exitf("Release verification failed: %v", err)
	}
	if *imageFile != "" {
		if err := r.CheckImage(readOrDie(*imageFile)); err != nil {
			klog.Exitf("Image does not match release: %v", err)
		}
	}
	fmt.Println("Release OK.")
	fmt.Printf("  Firmware version: %d\n", r.FirmwareVersion)
	fmt.Printf("  Body size:        %d bytes\n", r.BodySize)
	fmt.Printf("  Algorithm:        %s\n", cryptolib.Algorithm(r.Algorithm))
	fmt.Printf("  Image SHA-256:    %x\n", r.ImageSHA256)
}

// dump prints container structure without signature verification. A
// standalone key block goes through the checksum-only check and is
// rejected if its checksum does not match.
func dump() {
	blob := readOrDie(*dumpFile)
	if len(blob) >= 8 && string(blob[:8]) == vboot.KeyBlockMagic {
		if img, err := firmware.ParseImage(blob); err == nil {
			fmt.Printf("Flat image: key block %d bytes, preamble %d bytes, body %d bytes\n",
				len(img.KeyBlock), len(img.Preamble), len(img.Body))
			return
		}
		kb, err := vboot.VerifyKeyBlock(blob, nil)
		if err != nil {
			klog.Exitf("Unparseable key block: %v", err)
		}
		fmt.Printf("Key block: %d bytes declared\n", kb.Size)
		printKey("  Data key", kb.DataKey)
		return
	}
	key, err := vboot.ParsePublicKey(blob)
	if err != nil {
		klog.Exitf("Unrecognized container %q: %v", *dumpFile, err)
	}
	printKey("Packed public key", key)
}

func printKey(label string, k *vboot.PublicKey) {
	fmt.Printf("%s: algorithm %s, key version %d, %d bytes of material\n",
		label, cryptolib.Algorithm(k.Algorithm), k.KeyVersion, len(k.Data))
}

func rootKeyOrNil() *vboot.PublicKey {
	if *rootKeyFile == "" {
		return nil
	}
	key, err := vboot.ParsePublicKey(readOrDie(*rootKeyFile))
	if err != nil {
		klog.Exitf("Invalid root key %q: %v", *rootKeyFile, err)
	}
	return key
}

func readOrDie(p string) []byte {
	b, err := os.ReadFile(p)
	if err != nil {
		klog.Exitf("Failed to read %q: %v", p, err)
	}
	return b
}
