package fifo

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/efficientgo/core/errors"
	"golang.org/x/sys/unix"

	"github.com/ardnew/softcdc/pkg"
)

// Message types.
const (
	msgControl    = 0x01 // Class request from host
	msgData       = 0x02 // Bulk packet
	msgResponse   = 0x03 // Control response
	msgConnect    = 0x10 // Device present
	msgDisconnect = 0x11 // Device gone
)

// headerSize is the frame header: type (1) + length (2).
const headerSize = 3

// controlHeader is the control payload prefix: request, value, length.
const controlHeader = 5

// Pipe names.
const (
	pipeConnection      = "connection"
	pipeControl         = "control"
	pipeControlResponse = "control_response"
	pipeOut             = "ep_out"
	pipeIn              = "ep_in"
)

var pipeNames = []string{
	pipeConnection,
	pipeControl,
	pipeControlResponse,
	pipeOut,
	pipeIn,
}

// pollTimeout bounds each blocking read so cancellation is observed.
const pollTimeout = 100 * time.Millisecond

// createPipes makes dir and every named pipe in it, replacing stale files.
func createPipes(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create %s", dir)
	}
	for _, name := range pipeNames {
		path := filepath.Join(dir, name)
		os.Remove(path)
		if err := unix.Mkfifo(path, 0o666); err != nil {
			return errors.Wrapf(err, "mkfifo %s", name)
		}
	}
	return nil
}

// openPipe opens a pipe read-write and non-blocking so that neither side
// waits for the other to open it, and reads can carry deadlines.
func openPipe(dir, name string) (*os.File, error) {
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_RDWR|syscall.O_NONBLOCK, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", name)
	}
	return f, nil
}

// readFull reads exactly len(buf) bytes, giving up when ctx or done ends.
func readFull(ctx context.Context, done <-chan struct{}, f *os.File, buf []byte) error {
	total := 0
	for total < len(buf) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			return pkg.ErrClosed
		default:
		}

		f.SetReadDeadline(time.Now().Add(pollTimeout))
		n, err := f.Read(buf[total:])
		total += n
		if err != nil && !os.IsTimeout(err) {
			select {
			case <-done:
				return pkg.ErrClosed
			default:
				return err
			}
		}
	}
	return nil
}

// readFrame reads one frame into buf and returns its type and payload.
// A payload larger than buf is consumed and reported as
// pkg.ErrBufferTooSmall so the stream stays aligned.
func readFrame(ctx context.Context, done <-chan struct{}, f *os.File, buf []byte) (byte, []byte, error) {
	var hdr [headerSize]byte
	if err := readFull(ctx, done, f, hdr[:]); err != nil {
		return 0, nil, err
	}
	typ := hdr[0]
	n := int(binary.LittleEndian.Uint16(hdr[1:]))

	if n > len(buf) {
		for n > 0 {
			chunk := min(n, len(buf))
			if err := readFull(ctx, done, f, buf[:chunk]); err != nil {
				return 0, nil, err
			}
			n -= chunk
		}
		return typ, nil, pkg.ErrBufferTooSmall
	}
	if err := readFull(ctx, done, f, buf[:n]); err != nil {
		return 0, nil, err
	}
	return typ, buf[:n], nil
}

// writeFrame writes one frame with a single write so that frames from
// concurrent writers never interleave.
func writeFrame(f *os.File, typ byte, payload []byte) error {
	if len(payload) > 0xFFFF {
		return pkg.ErrInvalidParameter
	}
	frame := make([]byte, headerSize+len(payload))
	frame[0] = typ
	binary.LittleEndian.PutUint16(frame[1:], uint16(len(payload)))
	copy(frame[headerSize:], payload)
	_, err := f.Write(frame)
	return err
}
