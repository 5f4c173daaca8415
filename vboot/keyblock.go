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
	"bytes"
	"crypto/subtle"
	"encoding/binary"

	"github.com/SynaptekResearch/vboot-android/cryptolib"
)

// KeyBlock is the verified result of VerifyKeyBlock: the declared block
// size and the data key the block hands off to the next stage.
type KeyBlock struct {
	Size    uint64
	DataKey *PublicKey
}

// VerifyKeyBlock checks the key block at the start of blob and returns its
// data key. With a non-nil rootKey the block's signature is verified with
// it. With a nil rootKey only the SHA-512 checksum is checked: that mode
// confirms integrity for inspection purposes and conveys no trust in the
// block's origin.
//
// blob may be longer than the block's declared size; all checks are
// against the declared size.
func VerifyKeyBlock(blob []byte, rootKey *PublicKey) (*KeyBlock, error) {
	size := uint64(len(blob))
	if size < KeyBlockHeaderLen {
		return nil, reject(ErrKeyBlockInvalid, "key block: %d bytes, shorter than header", size)
	}
	if !bytes.Equal(blob[0:8], []byte(KeyBlockMagic)) {
		return nil, reject(ErrKeyBlockInvalid, "key block: bad magic")
	}
	if major := binary.LittleEndian.Uint32(blob[8:12]); major != KeyBlockVersionMajor {
		return nil, reject(ErrKeyBlockInvalid, "key block: unsupported header version %d", major)
	}
	blockSize := binary.LittleEndian.Uint64(blob[16:24])
	if blockSize < KeyBlockHeaderLen {
		return nil, reject(ErrKeyBlockInvalid, "key block: declared size %d shorter than header", blockSize)
	}
	if size < blockSize {
		return nil, reject(ErrKeyBlockInvalid, "key block: %d bytes, declared size %d", size, blockSize)
	}

	var sig *Signature
	if rootKey != nil {
		var ok bool
		if sig, ok = signatureInside(blob, blockSize, KeyBlockSignatureOffset); !ok {
			return nil, reject(ErrKeyBlockInvalid, "key block: signature out of bounds")
		}
		key, err := rootKey.RSA()
		if err != nil {
			return nil, reject(ErrPublicKeyInvalid, "key block: bad root key: %v", err)
		}
		if err := VerifyData(blob, sig, key); err != nil {
			return nil, reject(ErrKeyBlockSignature, "key block: %v", err)
		}
	} else {
		var ok bool
		if sig, ok = signatureInside(blob, blockSize, KeyBlockChecksumOffset); !ok {
			return nil, reject(ErrKeyBlockInvalid, "key block: checksum out of bounds")
		}
		if uint64(len(sig.Data)) != cryptolib.SHA512DigestSize {
			return nil, reject(ErrKeyBlockInvalid, "key block: checksum is %d bytes, want %d", len(sig.Data), cryptolib.SHA512DigestSize)
		}
		if sig.DataSize > blockSize {
			return nil, reject(ErrKeyBlockInvalid, "key block: checksum covers %d bytes, block is %d", sig.DataSize, blockSize)
		}
		digest := cryptolib.SHA512Digest(blob[:sig.DataSize])
		if subtle.ConstantTimeCompare(digest, sig.Data) != 1 {
			return nil, reject(ErrKeyBlockHash, "key block: checksum mismatch")
		}
	}

	if sig.DataSize > blockSize {
		return nil, reject(ErrKeyBlockInvalid, "key block: signature covers %d bytes, block is %d", sig.DataSize, blockSize)
	}
	if sig.DataSize < KeyBlockHeaderLen {
		return nil, reject(ErrKeyBlockInvalid, "key block: only %d bytes signed, header is %d", sig.DataSize, KeyBlockHeaderLen)
	}

	// The data key must lie within the declared block and within the
	// signed prefix.
	if _, ok := publicKeyInside(blob, blockSize, KeyBlockDataKeyOffset); !ok {
		return nil, reject(ErrKeyBlockInvalid, "key block: data key out of bounds")
	}
	dataKey, ok := publicKeyInside(blob, sig.DataSize, KeyBlockDataKeyOffset)
	if !ok {
		return nil, reject(ErrKeyBlockInvalid, "key block: data key outside signed data")
	}

	return &KeyBlock{
		Size:    blockSize,
		DataKey: dataKey,
	}, nil
}
