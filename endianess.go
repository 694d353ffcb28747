package main

import "encoding/binary"

// The probe writes records in the byte order of the host it runs on.
func systemEndianess() binary.ByteOrder {
	return binary.NativeEndian
}
