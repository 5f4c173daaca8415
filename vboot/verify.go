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
	"fmt"

	"k8s.io/klog/v2"

	"github.com/SynaptekResearch/vboot-android/cryptolib"
)

// VerifyData checks sig against the first sig.DataSize bytes of data. The
// signature descriptor must carry exactly one signature of the key's
// algorithm, and may not claim to cover more data than was supplied.
func VerifyData(data []byte, sig *Signature, key *cryptolib.PublicKey) error {
	if sigLen := key.Algorithm().SignatureSize(); uint64(len(sig.Data)) != sigLen {
		return fmt.Errorf("signature is %d bytes, want %d", len(sig.Data), sigLen)
	}
	if sig.DataSize > uint64(len(data)) {
		return fmt.Errorf("signature covers %d bytes but only %d supplied", sig.DataSize, len(data))
	}
	return key.Verify(data[:sig.DataSize], sig.Data)
}

// VerifyDigest checks sig against an already computed digest.
func VerifyDigest(digest []byte, sig *Signature, key *cryptolib.PublicKey) error {
	if sigLen := key.Algorithm().SignatureSize(); uint64(len(sig.Data)) != sigLen {
		return fmt.Errorf("signature is %d bytes, want %d", len(sig.Data), sigLen)
	}
	return key.VerifyDigest(digest, sig.Data)
}

func reject(e Error, format string, args ...interface{}) error {
	klog.V(2).Infof("vboot: "+format, args...)
	return e
}
