package multisend

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// boundsError reports a read past the end of the buffer
type boundsError struct {
	Offset int
	Want   int
	Have   int
}

func (e *boundsError) Error() string {
	return fmt.Sprintf("need %d bytes at offset %d, only %d remain", e.Want, e.Offset, e.Have)
}

// reader is a bounds-checked cursor over an immutable buffer. Every read is
// validated before the buffer is sliced, so no input can make it panic.
type reader struct {
	buf []byte
	pos int
}

func newReader(buf []byte) *reader {
	return &reader{buf: buf}
}

// Len returns the number of unread bytes
func (r *reader) Len() int {
	return len(r.buf) - r.pos
}

// Offset returns the cursor position
func (r *reader) Offset() int {
	return r.pos
}

// Seek moves the cursor to an absolute offset
func (r *reader) Seek(offset int) error {
	if offset < 0 || offset > len(r.buf) {
		return &boundsError{Offset: offset, Want: 0, Have: 0}
	}
	r.pos = offset
	return nil
}

// Read returns the next n bytes without copying
func (r *reader) Read(n int) ([]byte, error) {
	if n < 0 || n > r.Len() {
		return nil, &boundsError{Offset: r.pos, Want: n, Have: r.Len()}
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadByte returns the next byte
func (r *reader) ReadByte() (byte, error) {
	b, err := r.Read(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadAddress reads 20 unpadded address bytes
func (r *reader) ReadAddress() (common.Address, error) {
	b, err := r.Read(AddressSize)
	if err != nil {
		return common.Address{}, err
	}
	return common.BytesToAddress(b), nil
}

// ReadWord reads one 32-byte big-endian word
func (r *reader) ReadWord() (*uint256.Int, error) {
	b, err := r.Read(WordSize)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).SetBytes32(b), nil
}

// ReadLength reads a 32-byte length and checks that that many bytes remain
func (r *reader) ReadLength() (int, error) {
	start := r.pos
	w, err := r.ReadWord()
	if err != nil {
		return 0, err
	}
	n, ok := wordToInt(w, r.Len())
	if !ok {
		return 0, fmt.Errorf("length %s at offset %d exceeds the %d remaining bytes", w.Dec(), start, r.Len())
	}
	return n, nil
}

// wordToInt converts w to an int no larger than limit
func wordToInt(w *uint256.Int, limit int) (int, bool) {
	if !w.IsUint64() || w.Uint64() > uint64(limit) {
		return 0, false
	}
	return int(w.Uint64()), true
}

// fieldError is a parameter-block read failure at the slot or tail word
// that caused it
type fieldError struct {
	Offset int
	Err    error
}

func (e *fieldError) Error() string {
	return e.Err.Error()
}

func (e *fieldError) Unwrap() error {
	return e.Err
}

// errorOffset returns the offset carried by a fieldError in err, or fallback
func errorOffset(err error, fallback int) int {
	var fe *fieldError
	if errors.As(err, &fe) {
		return fe.Offset
	}
	return fallback
}

// abiReader reads head slots and dynamic tails of an ABI parameter block.
// Offsets of dynamic values, and of returned errors, are relative to the
// start of the block.
type abiReader struct {
	r *reader
}

func newABIReader(params []byte) *abiReader {
	return &abiReader{r: newReader(params)}
}

func slotError(index int, err error) error {
	return &fieldError{Offset: index * WordSize, Err: fmt.Errorf("head slot %d: %w", index, err)}
}

// word returns the head slot at index
func (a *abiReader) word(index int) (*uint256.Int, error) {
	if err := a.r.Seek(index * WordSize); err != nil {
		return nil, slotError(index, err)
	}
	w, err := a.r.ReadWord()
	if err != nil {
		return nil, slotError(index, err)
	}
	return w, nil
}

// address reads a left-padded address slot, rejecting dirty padding
func (a *abiReader) address(index int) (common.Address, error) {
	w, err := a.word(index)
	if err != nil {
		return common.Address{}, err
	}
	b := w.Bytes32()
	for _, c := range b[:WordSize-AddressSize] {
		if c != 0 {
			return common.Address{}, slotError(index, errors.New("address has non-zero padding"))
		}
	}
	return common.BytesToAddress(b[WordSize-AddressSize:]), nil
}

// uint8 reads a uint8 slot, rejecting values above 255
func (a *abiReader) uint8(index int) (uint8, error) {
	w, err := a.word(index)
	if err != nil {
		return 0, err
	}
	if !w.IsUint64() || w.Uint64() > 0xff {
		return 0, slotError(index, fmt.Errorf("value %s overflows uint8", w.Dec()))
	}
	return uint8(w.Uint64()), nil
}

// bytes follows the offset in a head slot and reads the length-prefixed
// tail. It also returns where the tail's content starts in the block.
func (a *abiReader) bytes(index int) ([]byte, int, error) {
	w, err := a.word(index)
	if err != nil {
		return nil, 0, err
	}
	offset, ok := wordToInt(w, len(a.r.buf))
	if !ok {
		return nil, 0, slotError(index, fmt.Errorf("offset %s is beyond the %d-byte parameter block", w.Dec(), len(a.r.buf)))
	}
	if err := a.r.Seek(offset); err != nil {
		return nil, 0, slotError(index, err)
	}
	n, err := a.r.ReadLength()
	if err != nil {
		return nil, 0, &fieldError{Offset: offset, Err: fmt.Errorf("head slot %d: %w", index, err)}
	}
	start := a.r.Offset()
	b, err := a.r.Read(n)
	if err != nil {
		return nil, 0, &fieldError{Offset: start, Err: fmt.Errorf("head slot %d: %w", index, err)}
	}
	return common.CopyBytes(b), start, nil
}
