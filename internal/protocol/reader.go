package protocol

import "fmt"

// Reader consumes the payload of an inbound game packet. A read past the end
// of the payload returns zero values and records ErrBufferUnderflow, which is
// reported by Err; callers check once after decoding instead of per field.
type Reader struct {
	buf      []byte
	pos      int
	mode     accessMode
	bitIndex int
	err      error
}

// NewReader creates a reader positioned at the start of payload.
func NewReader(payload []byte) *Reader {
	return &Reader{buf: payload}
}

// Unsigned reads an integer field and returns it zero-extended.
func (r *Reader) Unsigned(t DataType, o DataOrder, tr DataTransformation) uint64 {
	r.checkByteAccess()
	f := Field{Type: t, Order: o, Transform: tr}
	n := t.Bytes()
	if !r.ensure(n) {
		return 0
	}
	v := Read(r.buf[r.pos:], f)
	r.pos += n
	return v
}

// Signed reads an integer field and sign-extends it from its width.
func (r *Reader) Signed(t DataType, o DataOrder, tr DataTransformation) int64 {
	return signExtend(r.Unsigned(t, o, tr), t)
}

// UnsignedByte reads a plain unsigned byte.
func (r *Reader) UnsignedByte() int {
	return int(r.Unsigned(Byte, Big, None))
}

// UnsignedShort reads a plain big-endian unsigned short.
func (r *Reader) UnsignedShort() int {
	return int(r.Unsigned(Short, Big, None))
}

// String reads up to StringTerminator or the end of the payload.
func (r *Reader) String() string {
	r.checkByteAccess()
	start := r.pos
	for r.pos < len(r.buf) {
		if r.buf[r.pos] == StringTerminator {
			s := string(r.buf[start:r.pos])
			r.pos++
			return s
		}
		r.pos++
	}
	return string(r.buf[start:])
}

// Bytes reads n raw bytes.
func (r *Reader) Bytes(n int) []byte {
	r.checkByteAccess()
	if !r.ensure(n) {
		return nil
	}
	out := make([]byte, n)
	copy(out, r.buf[r.pos:])
	r.pos += n
	return out
}

// Skip discards n bytes.
func (r *Reader) Skip(n int) {
	r.checkByteAccess()
	if r.ensure(n) {
		r.pos += n
	}
}

// SwitchToBitAccess starts reading bits at the current byte.
func (r *Reader) SwitchToBitAccess() {
	if r.mode == bitAccess {
		panic("protocol: already in bit access mode")
	}
	r.mode = bitAccess
	r.bitIndex = r.pos * 8
}

// SwitchToByteAccess resumes byte reads at the byte after the last bit read.
func (r *Reader) SwitchToByteAccess() {
	if r.mode == byteAccess {
		panic("protocol: already in byte access mode")
	}
	r.mode = byteAccess
	r.pos = (r.bitIndex + 7) / 8
}

// Bits reads count bits, most significant first.
func (r *Reader) Bits(count int) int {
	if r.mode != bitAccess {
		panic("protocol: Bits outside bit access mode")
	}
	if count < 1 || count > 32 {
		panic(fmt.Sprintf("protocol: bit count %d out of range", count))
	}
	if r.bitIndex+count > len(r.buf)*8 {
		r.fail(count)
		return 0
	}
	value := 0
	for i := 0; i < count; i++ {
		bit := (r.buf[r.bitIndex>>3] >> (7 - r.bitIndex&7)) & 1
		value = value<<1 | int(bit)
		r.bitIndex++
	}
	return value
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	pos := r.pos
	if r.mode == bitAccess {
		pos = (r.bitIndex + 7) / 8
	}
	if pos > len(r.buf) {
		return 0
	}
	return len(r.buf) - pos
}

// Err returns the first underflow encountered, if any.
func (r *Reader) Err() error {
	return r.err
}

func (r *Reader) ensure(n int) bool {
	if r.pos+n > len(r.buf) {
		r.fail(n)
		return false
	}
	return true
}

func (r *Reader) fail(n int) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: need %d at offset %d of %d", ErrBufferUnderflow, n, r.pos, len(r.buf))
	}
	r.pos = len(r.buf)
}

func (r *Reader) checkByteAccess() {
	if r.mode != byteAccess {
		panic("protocol: byte read in bit access mode")
	}
}
