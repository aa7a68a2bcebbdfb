// Package gitproto implements the framing primitives of the git
// packet-line protocol (spec.md §6.5): a four-hex-digit length prefix
// (including the four length bytes themselves) ahead of every frame, and a
// literal "0000" flush marker. This is intentionally partial — only the
// frame encode/decode helpers and the content-type constants are
// implemented; no `git-upload-pack`/`git-receive-pack` subprocess is
// wired up, since no seeded test scenario exercises one (see DESIGN.md).
package gitproto

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/agentkit-run/agentkit/internal/core"
)

// Service names the two git smart-HTTP services the transport can front.
type Service string

const (
	ServiceUploadPack  Service = "git-upload-pack"
	ServiceReceivePack Service = "git-receive-pack"
)

func (s Service) Valid() bool {
	return s == ServiceUploadPack || s == ServiceReceivePack
}

// AdvertisementContentType is the Content-Type for a ref-advertisement
// response for the given service.
func AdvertisementContentType(svc Service) string {
	return fmt.Sprintf("application/x-%s-advertisement", svc)
}

// ResultContentType is the Content-Type for a result response (the body
// returned after a client pushes or fetches) for the given service.
func ResultContentType(svc Service) string {
	return fmt.Sprintf("application/x-%s-result", svc)
}

// flushPkt is the literal 4-byte flush marker: a length-prefix of "0000"
// with no payload.
const flushPkt = "0000"

// maxPktLen is the largest length the four hex digits can encode (0xFFFF);
// minus the 4-byte length prefix, that gives a 65531-byte maximum payload.
const maxPktLen = 0xFFFF

// EncodeLine frames one payload as a single pkt-line: a four-hex-digit
// length (counting the four length bytes) followed by the payload verbatim.
// Callers are responsible for appending a trailing newline to payload if
// the git wire format expects one for that line kind; EncodeLine never
// adds one itself.
func EncodeLine(payload []byte) ([]byte, error) {
	total := len(payload) + 4
	if total > maxPktLen {
		return nil, core.ErrValidation(core.CodeInvalidArguments, fmt.Sprintf("pkt-line payload too large: %d bytes", len(payload)))
	}
	out := make([]byte, 0, total)
	out = append(out, []byte(fmt.Sprintf("%04x", total))...)
	out = append(out, payload...)
	return out, nil
}

// FlushLine returns the literal flush-packet bytes.
func FlushLine() []byte { return []byte(flushPkt) }

// DecodeLine reads exactly one pkt-line from r: its four-hex-digit length
// prefix and the payload that follows. A flush packet ("0000") decodes to
// (nil, true, nil) — a nil payload with isFlush set, not an error.
func DecodeLine(r *bufio.Reader) (payload []byte, isFlush bool, err error) {
	var lenHex [4]byte
	if _, err := io.ReadFull(r, lenHex[:]); err != nil {
		return nil, false, err
	}
	length, err := hex.DecodeString(string(lenHex[:]))
	if err != nil {
		return nil, false, core.ErrValidation(core.CodeInvalidArguments, "malformed pkt-line length prefix: "+string(lenHex[:]))
	}
	n := int(length[0])<<8 | int(length[1])
	if n == 0 {
		return nil, true, nil
	}
	if n < 4 {
		return nil, false, core.ErrValidation(core.CodeInvalidArguments, fmt.Sprintf("pkt-line length %d is shorter than the 4-byte prefix", n))
	}
	body := make([]byte, n-4)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, false, err
	}
	return body, false, nil
}

// DecodeLines reads pkt-lines from r until a flush packet or EOF,
// returning every non-flush payload in order.
func DecodeLines(r io.Reader) ([][]byte, error) {
	br := bufio.NewReader(r)
	var lines [][]byte
	for {
		payload, isFlush, err := DecodeLine(br)
		if err == io.EOF {
			return lines, nil
		}
		if err != nil {
			return lines, err
		}
		if isFlush {
			return lines, nil
		}
		lines = append(lines, payload)
	}
}
