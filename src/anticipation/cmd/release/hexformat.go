package main

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// maximum payload of one data line we emit, needs to be all 1s on right
const hexDataLineSize = 0x7f

// We implement the hex line types that make sense for a flat image. Type 3
// is some ancient X86 thing involving memory segments.
type HexLineType int

const (
	DataLine                  HexLineType = 0
	EndOfFile                 HexLineType = 1
	ExtendedSegmentAddress    HexLineType = 2
	ExtendedLinearAddress     HexLineType = 4
	StartLinearAddress        HexLineType = 5
	ExtensionBigLinearAddress HexLineType = 0x81
)

func (hlt HexLineType) String() string {
	switch hlt {
	case DataLine:
		return "DataLine"
	case EndOfFile:
		return "EndOfFile"
	case ExtendedSegmentAddress:
		return "ExtendedSegmentAddress"
	case ExtendedLinearAddress:
		return "ExtendedLinearAddress"
	case StartLinearAddress:
		return "StartLinearAddress"
	case ExtensionBigLinearAddress:
		return "ExtensionBigLinear"
	}
	return fmt.Sprintf("HexLineType(%#x)", int(hlt))
}

type EncodeDecodeError struct {
	line int
	s    string
}

func (d *EncodeDecodeError) Error() string {
	return fmt.Sprintf("line %d: %s", d.line, d.s)
}

// decodeLine converts one ":LLAAAATT...CC" line and checks its length and
// checksum.  The result is the raw record: length, address (2), type, data.
func decodeLine(s string) ([]byte, error) {
	if len(s) < 11 || s[0] != ':' {
		return nil, fmt.Errorf("bad framing, need at least 11 characters starting with ':'")
	}
	if (len(s)-1)%2 == 1 {
		return nil, fmt.Errorf("expected even number of hex characters but got %d", len(s)-1)
	}
	converted, err := hex.DecodeString(s[1:])
	if err != nil {
		return nil, err
	}
	if want := 5 + int(converted[0]); len(converted) != want {
		return nil, fmt.Errorf("expected %d bytes based on declared length, got %d", want, len(converted))
	}
	sum := uint8(0)
	for _, b := range converted {
		sum += b
	}
	if sum != 0 {
		return nil, fmt.Errorf("bad checksum, sum of record is %#02x", sum)
	}
	return converted[:len(converted)-1], nil
}

// decodeHex builds the flat image described by a hex file.  Addresses are
// relative to the job's address zero; gaps are left zero.  Data past limit
// is an error.
func decodeHex(r io.Reader, limit uint64) ([]byte, error) {
	var out []byte
	base := uint64(0)
	scanner := bufio.NewScanner(r)
	n := 0
	for scanner.Scan() {
		n++
		l := strings.TrimSpace(scanner.Text())
		if l == "" {
			continue
		}
		rec, err := decodeLine(l)
		if err != nil {
			return nil, &EncodeDecodeError{n, err.Error()}
		}
		size := int(rec[0])
		offset := uint64(rec[1])<<8 | uint64(rec[2])
		payload := rec[4:]
		switch t := HexLineType(rec[3]); t {
		case DataLine:
			end := base + offset + uint64(size)
			if end > limit {
				return nil, &EncodeDecodeError{n, (&imageTooBig{end, limit}).Error()}
			}
			if end > uint64(len(out)) {
				out = append(out, make([]byte, end-uint64(len(out)))...)
			}
			copy(out[base+offset:], payload)
		case EndOfFile:
			return out, nil
		case ExtendedSegmentAddress: //16 bit, multiple of 16
			if size != 2 {
				return nil, &EncodeDecodeError{n, "ESA value has wrong length"}
			}
			base = (uint64(payload[0])<<8 | uint64(payload[1])) << 4
		case ExtendedLinearAddress: //top 16 of 32
			if size != 2 {
				return nil, &EncodeDecodeError{n, "ELA value has wrong length"}
			}
			base = base&^0xffff_ffff | (uint64(payload[0])<<8|uint64(payload[1]))<<16
		case ExtensionBigLinearAddress: //high 32 of 64
			if size != 4 {
				return nil, &EncodeDecodeError{n, "big linear address has wrong length"}
			}
			hi := uint64(payload[0])<<24 | uint64(payload[1])<<16 | uint64(payload[2])<<8 | uint64(payload[3])
			if hi != 0 {
				return nil, &EncodeDecodeError{n, "jobs are linked at address zero, no big linear addresses"}
			}
		case StartLinearAddress:
			if size != 4 {
				return nil, &EncodeDecodeError{n, "SLA value has wrong length"}
			}
			if payload[0]|payload[1]|payload[2]|payload[3] != 0 {
				return nil, &EncodeDecodeError{n, "jobs start executing at address zero"}
			}
		default:
			return nil, &EncodeDecodeError{n, fmt.Sprintf("unimplemented line type %v", t)}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return nil, &EncodeDecodeError{n, "no end of file record"}
}

// tricky: offset only used by the data record since everything else has 0 offset
func createChecksum(raw []byte, offset uint16, hlt HexLineType) uint8 {
	sum := len(raw)
	sum += int(offset & 0xff)
	sum += int(offset>>8) & 0xff
	sum += int(hlt)
	for _, v := range raw {
		sum += int(v)
	}
	return uint8(-sum)
}

func encodeRecord(buf *bytes.Buffer, t HexLineType, offset uint16, raw []byte) {
	fmt.Fprintf(buf, ":%02X%04X%02X%X%02X\n", len(raw), offset, int(t), raw, createChecksum(raw, offset, t))
}

// encodeHex is the inverse of decodeHex, using extended linear address
// records every 64K.
func encodeHex(data []byte) string {
	buf := bytes.Buffer{}
	page := -1
	for off, end := 0, 0; off < len(data); off = end {
		if off>>16 != page {
			page = off >> 16
			encodeRecord(&buf, ExtendedLinearAddress, 0, []byte{byte(page >> 8), byte(page)})
		}
		end = off + hexDataLineSize
		if end > len(data) {
			end = len(data)
		}
		// a line can't straddle a 64K boundary
		if lim := (off | 0xffff) + 1; end > lim {
			end = lim
		}
		encodeRecord(&buf, DataLine, uint16(off), data[off:end])
	}
	encodeRecord(&buf, EndOfFile, 0, nil)
	return buf.String()
}
