package vkng

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// bytesToBytecode reinterprets a little-endian SPIR-V blob as words.
func bytesToBytecode(b []byte) ([]uint32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, errors.Errorf("shader bytecode length %d is not a positive multiple of 4", len(b))
	}

	byteCode := make([]uint32, len(b)/4)
	for i := range byteCode {
		byteCode[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return byteCode, nil
}
