package rdb

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"time"
)

// maxStringLen guards against a corrupt length field turning into a
// multi-gigabyte allocation; Redis strings this large don't occur in
// practice inside an RDB.
const maxStringLen = 512 * 1024 * 1024

// Parser decodes an RDB stream, calling back into a Handler as it goes.
type Parser struct {
	br       *bufio.Reader
	handler  Handler
	strategy VersionStrategy
	errs     int
}

// NewParser wraps r in a streaming RDB decoder that reports to handler.
func NewParser(r io.Reader, handler Handler) *Parser {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Parser{br: br, handler: handler}
}

// Parse consumes the RDB stream up to and including its EOF opcode and
// 8-byte checksum, then calls Handler.OnEnd. It does not consume anything
// beyond the checksum — a disk-less sync's 40-byte trailing delimiter is
// the caller's responsibility, not the decoder's.
func (p *Parser) Parse() error {
	header := make([]byte, 9)
	if _, err := io.ReadFull(p.br, header); err != nil {
		return fmt.Errorf("rdb: read header: %w", err)
	}
	if string(header[:5]) != "REDIS" {
		return fmt.Errorf("rdb: bad magic %q", header[:5])
	}
	version, err := strconv.Atoi(string(header[5:]))
	if err != nil {
		return fmt.Errorf("rdb: bad version %q", header[5:])
	}
	p.strategy = strategyFor(version)

	var expiry *time.Time
	for {
		opcode, err := p.br.ReadByte()
		if err != nil {
			return fmt.Errorf("rdb: read opcode: %w", err)
		}

		switch opcode {
		case opEOF:
			var checksum [8]byte
			if _, err := io.ReadFull(p.br, checksum[:]); err != nil && err != io.EOF {
				return fmt.Errorf("rdb: read checksum: %w", err)
			}
			return p.handler.OnEnd()

		case opSelectDB:
			db, err := p.readLength()
			if err != nil {
				if p.canSkip() {
					continue
				}
				return fmt.Errorf("rdb: read db index: %w", err)
			}
			if err := p.handler.OnDatabase(int(db)); err != nil {
				return err
			}

		case opExpiryS:
			var secs uint32
			if err := binary.Read(p.br, binary.LittleEndian, &secs); err != nil {
				if p.canSkip() {
					expiry = nil
					continue
				}
				return fmt.Errorf("rdb: read expiry seconds: %w", err)
			}
			t := time.Unix(int64(secs), 0)
			expiry = &t

		case opExpiryMs:
			var ms uint64
			if err := binary.Read(p.br, binary.LittleEndian, &ms); err != nil {
				if p.canSkip() {
					expiry = nil
					continue
				}
				return fmt.Errorf("rdb: read expiry milliseconds: %w", err)
			}
			t := time.UnixMilli(int64(ms))
			expiry = &t

		case opResizeDB:
			if _, err := p.readLength(); err != nil && !p.canSkip() {
				return fmt.Errorf("rdb: read resize-db hash size: %w", err)
			}
			if _, err := p.readLength(); err != nil && !p.canSkip() {
				return fmt.Errorf("rdb: read resize-db expire size: %w", err)
			}

		case opAux:
			if err := p.readAux(); err != nil && !p.canSkip() {
				return fmt.Errorf("rdb: read aux field: %w", err)
			}

		default:
			if err := p.readKeyValue(opcode, expiry); err != nil && !p.canSkip() {
				return err
			}
			expiry = nil
		}
	}
}

func (p *Parser) canSkip() bool {
	p.errs++
	return p.errs <= p.strategy.MaxSkippableErrors
}

func (p *Parser) readAux() error {
	key, err := p.readString()
	if err != nil {
		return fmt.Errorf("aux key: %w", err)
	}
	value, err := p.readString()
	if err != nil {
		return fmt.Errorf("aux value for %s: %w", key, err)
	}
	return p.handler.OnAux(key, value)
}

func (p *Parser) readKeyValue(valueType byte, expiry *time.Time) error {
	key, err := p.readString()
	if err != nil {
		return fmt.Errorf("rdb: read key: %w", err)
	}
	value, err := p.readTypedValue(valueType)
	if err != nil {
		return fmt.Errorf("rdb: read value for key %s: %w", key, err)
	}
	return p.handler.OnKey(key, value, expiry)
}

func (p *Parser) readLength() (uint64, error) {
	b, err := p.br.ReadByte()
	if err != nil {
		return 0, err
	}
	switch (b & 0xC0) >> 6 {
	case 0:
		return uint64(b & 0x3F), nil
	case 1:
		b2, err := p.br.ReadByte()
		if err != nil {
			return 0, err
		}
		return uint64(b&0x3F)<<8 | uint64(b2), nil
	case 2:
		var length uint32
		if err := binary.Read(p.br, binary.BigEndian, &length); err != nil {
			return 0, err
		}
		return uint64(length), nil
	default: // 3: special encoding, only valid via readString's caller
		switch b & 0x3F {
		case 0:
			v, err := p.br.ReadByte()
			return uint64(v), err
		case 1:
			var v uint16
			err := binary.Read(p.br, binary.LittleEndian, &v)
			return uint64(v), err
		case 2:
			var v uint32
			err := binary.Read(p.br, binary.LittleEndian, &v)
			return uint64(v), err
		default:
			return 0, fmt.Errorf("rdb: invalid special length encoding %d", b&0x3F)
		}
	}
}

// readString decodes a length- or integer- or LZF-encoded string.
func (p *Parser) readString() ([]byte, error) {
	b, err := p.br.ReadByte()
	if err != nil {
		return nil, err
	}

	switch (b & 0xC0) >> 6 {
	case 0:
		return p.readStringBytes(uint64(b & 0x3F))
	case 1:
		b2, err := p.br.ReadByte()
		if err != nil {
			return nil, err
		}
		return p.readStringBytes(uint64(b&0x3F)<<8 | uint64(b2))
	case 2:
		var length uint32
		if err := binary.Read(p.br, binary.BigEndian, &length); err != nil {
			return nil, err
		}
		return p.readStringBytes(uint64(length))
	}

	switch b & 0x3F {
	case 0:
		v, err := p.br.ReadByte()
		if err != nil {
			return nil, err
		}
		return []byte(strconv.FormatInt(int64(int8(v)), 10)), nil
	case 1:
		var v int16
		if err := binary.Read(p.br, binary.LittleEndian, &v); err != nil {
			return nil, err
		}
		return []byte(strconv.FormatInt(int64(v), 10)), nil
	case 2:
		var v int32
		if err := binary.Read(p.br, binary.LittleEndian, &v); err != nil {
			return nil, err
		}
		return []byte(strconv.FormatInt(int64(v), 10)), nil
	case 3:
		return p.readCompressedString()
	case 33:
		var v int64
		if err := binary.Read(p.br, binary.LittleEndian, &v); err != nil {
			return nil, err
		}
		return []byte(strconv.FormatInt(v, 10)), nil
	default:
		return nil, fmt.Errorf("rdb: invalid special string encoding %d", b&0x3F)
	}
}

func (p *Parser) readStringBytes(length uint64) ([]byte, error) {
	if length == 0 {
		return []byte{}, nil
	}
	if length > maxStringLen {
		return nil, fmt.Errorf("rdb: string length %d exceeds limit", length)
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(p.br, data); err != nil {
		return nil, fmt.Errorf("rdb: read string data: %w", err)
	}
	return data, nil
}

func (p *Parser) readCompressedString() ([]byte, error) {
	compressedLen, err := p.readLength()
	if err != nil {
		return nil, fmt.Errorf("rdb: read lzf compressed length: %w", err)
	}
	uncompressedLen, err := p.readLength()
	if err != nil {
		return nil, fmt.Errorf("rdb: read lzf uncompressed length: %w", err)
	}
	compressed := make([]byte, compressedLen)
	if _, err := io.ReadFull(p.br, compressed); err != nil {
		return nil, fmt.Errorf("rdb: read lzf payload: %w", err)
	}
	return decompressLZF(compressed, int(uncompressedLen))
}

func (p *Parser) readTypedValue(valueType byte) (interface{}, error) {
	switch valueType {
	case TypeString:
		s, err := p.readString()
		if err != nil {
			return nil, err
		}
		return String(s), nil

	case TypeList:
		length, err := p.readLength()
		if err != nil {
			return nil, err
		}
		list := make(List, length)
		for i := range list {
			el, err := p.readString()
			if err != nil {
				return nil, err
			}
			list[i] = el
		}
		return list, nil

	case TypeSet:
		length, err := p.readLength()
		if err != nil {
			return nil, err
		}
		set := make(Set, length)
		for i := uint64(0); i < length; i++ {
			member, err := p.readString()
			if err != nil {
				return nil, err
			}
			set[string(member)] = struct{}{}
		}
		return set, nil

	case TypeHash:
		length, err := p.readLength()
		if err != nil {
			return nil, err
		}
		hash := make(Hash, length)
		for i := uint64(0); i < length; i++ {
			field, err := p.readString()
			if err != nil {
				return nil, err
			}
			value, err := p.readString()
			if err != nil {
				return nil, err
			}
			hash[string(field)] = value
		}
		return hash, nil

	case TypeListQuicklist:
		return p.readQuicklist()

	case TypeStreamListpacks, TypeStreamListpacks2, TypeStreamListpacks3:
		return nil, p.skipCounted()

	default:
		return nil, p.skipUnsupported(valueType)
	}
}

// readQuicklist returns a quicklist as a List with one entry per node;
// each node is stored on the wire as an opaque ziplist blob, which this
// decoder surfaces as-is rather than unpacking into elements.
func (p *Parser) readQuicklist() (interface{}, error) {
	length, err := p.readLength()
	if err != nil {
		return nil, err
	}
	list := make(List, 0, length)
	for i := uint64(0); i < length; i++ {
		node, err := p.readString()
		if err != nil {
			if p.canSkip() {
				continue
			}
			return nil, err
		}
		list = append(list, node)
	}
	return list, nil
}

// skipCounted reads and discards a length-prefixed sequence of strings,
// for value types this decoder recognizes but does not materialize.
func (p *Parser) skipCounted() error {
	length, err := p.readLength()
	if err != nil {
		return err
	}
	for i := uint64(0); i < length; i++ {
		if _, err := p.readString(); err != nil {
			if p.canSkip() {
				continue
			}
			return err
		}
	}
	return nil
}

func (p *Parser) skipUnsupported(valueType byte) error {
	if p.canSkip() {
		// Best-effort: try to read it as a string so the stream stays
		// aligned for the next key.
		_, _ = p.readString()
		return nil
	}
	return fmt.Errorf("rdb: unsupported value type %d", valueType)
}
