package shader

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"io"
	"math"
)

// Hash is the 128-bit content hash of compiled bytecode.
type Hash [16]byte

func (h Hash) String() string { return fmt.Sprintf("%x", h[:]) }

// HashBytecode returns the FNV-128a hash of code.
func HashBytecode(code []byte) Hash {
	f := fnv.New128a()
	f.Write(code)
	var h Hash
	copy(h[:], f.Sum(nil))
	return h
}

// Output is a compiled shader with its dependencies.
type Output struct {
	Bytecode []byte
	Hash     Hash

	// Includes lists the absolute paths of every included file.
	Includes []string
}

// MarshalBinary encodes o as a cache file: the hash, a u32 include count
// followed by length-prefixed paths, then a u64 length and the bytecode.
// All integers are little endian.
func (o *Output) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(o.Hash[:])
	le := binary.LittleEndian
	buf.Write(le.AppendUint32(nil, uint32(len(o.Includes))))
	for _, inc := range o.Includes {
		if len(inc) > math.MaxUint32 {
			return nil, fmt.Errorf("%w: include path too long", ErrCacheFormat)
		}
		buf.Write(le.AppendUint32(nil, uint32(len(inc))))
		buf.WriteString(inc)
	}
	buf.Write(le.AppendUint64(nil, uint64(len(o.Bytecode))))
	buf.Write(o.Bytecode)
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a cache file written by MarshalBinary.
func (o *Output) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	fail := func(err error) error {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return fmt.Errorf("%w: truncated", ErrCacheFormat)
		}
		return err
	}
	var out Output
	if _, err := io.ReadFull(r, out.Hash[:]); err != nil {
		return fail(err)
	}
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return fail(err)
	}
	if int64(count)*4 > int64(r.Len()) {
		return fmt.Errorf("%w: %d includes", ErrCacheFormat, count)
	}
	for range count {
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return fail(err)
		}
		if int64(n) > int64(r.Len()) {
			return fmt.Errorf("%w: truncated", ErrCacheFormat)
		}
		s := make([]byte, n)
		if _, err := io.ReadFull(r, s); err != nil {
			return fail(err)
		}
		out.Includes = append(out.Includes, string(s))
	}
	var size uint64
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return fail(err)
	}
	if size != uint64(r.Len()) {
		return fmt.Errorf("%w: bytecode length %d, have %d bytes", ErrCacheFormat, size, r.Len())
	}
	out.Bytecode = make([]byte, size)
	if _, err := io.ReadFull(r, out.Bytecode); err != nil {
		return fail(err)
	}
	if HashBytecode(out.Bytecode) != out.Hash {
		return fmt.Errorf("%w: hash mismatch", ErrCacheFormat)
	}
	*o = out
	return nil
}
