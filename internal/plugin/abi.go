package plugin

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
)

// pack combines a guest memory pointer and a byte length into the
// single uint64 plugin exports return, high 32 bits the pointer and
// low 32 bits the size.
func pack(ptr, size uint32) uint64 {
	return uint64(ptr)<<32 | uint64(size)
}

// unpack splits a packed pointer/length uint64 back into its parts.
func unpack(packed uint64) (ptr, size uint32) {
	return uint32(packed >> 32), uint32(packed & 0xFFFFFFFF)
}

// readAndFree reads exactly size bytes from the module's memory at
// ptr, then calls the module's deallocate export to free them. Guest
// exports are expected to allocate their return buffers with
// allocate, handing ownership to the host.
func readAndFree(ctx context.Context, instance api.Module, ptr, size uint32) ([]byte, error) {
	defer free(ctx, instance, ptr, size)

	if ptr == 0 || size == 0 {
		return nil, nil
	}

	data, ok := instance.Memory().Read(ptr, size)
	if !ok {
		return nil, fmt.Errorf("read guest memory at offset %d, size %d", ptr, size)
	}

	result := make([]byte, size)
	copy(result, data)
	return result, nil
}

// writeToGuest allocates size(data) bytes in the module via its
// allocate export, writes data into it, and returns the pointer. The
// caller is responsible for arranging the guest's deallocation of
// this buffer (typically the guest frees its own argument buffers).
func writeToGuest(ctx context.Context, instance api.Module, data []byte) (uint32, error) {
	allocate := instance.ExportedFunction("allocate")
	if allocate == nil {
		return 0, fmt.Errorf("module does not export allocate")
	}

	results, err := allocate.Call(ctx, uint64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("call allocate: %w", err)
	}
	if len(results) == 0 {
		return 0, fmt.Errorf("allocate returned no results")
	}

	ptr := uint32(results[0])
	if ptr == 0 && len(data) > 0 {
		return 0, fmt.Errorf("allocate returned a null pointer")
	}

	if len(data) > 0 && !instance.Memory().Write(ptr, data) {
		return 0, fmt.Errorf("write guest memory at offset %d", ptr)
	}

	return ptr, nil
}

func free(ctx context.Context, instance api.Module, ptr, size uint32) {
	if ptr == 0 {
		return
	}
	deallocate := instance.ExportedFunction("deallocate")
	if deallocate == nil {
		return
	}
	_, _ = deallocate.Call(ctx, uint64(ptr), uint64(size))
}
