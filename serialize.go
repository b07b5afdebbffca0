package vjson

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
)

const serializedVersion = 1

// maxBlockSize bounds the decompressed size a block header may claim.
const maxBlockSize = 1 << 31

const (
	blockTypeUncompressed = iota
	blockTypeS2
	blockTypeZstd
)

// Serializer converts a parsed document to a compact binary representation
// and reads it back. The format splits the DOM into three streams - tags,
// numeric values and string bytes - and compresses each independently, since
// they have very different entropy.
// A Serializer can be reused, but not used concurrently.
type Serializer struct {
	tagsBuf    []byte
	valuesBuf  []byte
	stringsBuf []byte
	compBuf    []byte

	compValues, compTags uint8
	compStrings          uint8
	fasterComp           bool
}

// NewSerializer will create and initialize a Serializer.
func NewSerializer() *Serializer {
	initSerializerOnce.Do(initSerializer)
	var s Serializer
	s.CompressMode(CompressDefault)
	return &s
}

type CompressMode uint8

const (
	// CompressNone no compression whatsoever.
	CompressNone CompressMode = iota

	// CompressFast will apply light compression.
	CompressFast

	// CompressDefault applies light compression with the better s2 profile.
	CompressDefault

	// CompressBest uses zstd on every stream.
	CompressBest
)

// CompressMode sets the compression applied to each stream.
func (s *Serializer) CompressMode(c CompressMode) {
	switch c {
	case CompressNone:
		s.compValues = blockTypeUncompressed
		s.compTags = blockTypeUncompressed
		s.compStrings = blockTypeUncompressed
	case CompressFast:
		s.compValues = blockTypeS2
		s.compTags = blockTypeS2
		s.compStrings = blockTypeS2
		s.fasterComp = true
	case CompressDefault:
		s.compValues = blockTypeS2
		s.compTags = blockTypeS2
		s.compStrings = blockTypeS2
		s.fasterComp = false
	case CompressBest:
		s.compValues = blockTypeZstd
		s.compTags = blockTypeZstd
		s.compStrings = blockTypeZstd
	default:
		panic("unknown compression mode")
	}
}

var (
	initSerializerOnce sync.Once
	zEnc               *zstd.Encoder
	zDec               *zstd.Decoder
)

func initSerializer() {
	zEnc, _ = zstd.NewWriter(nil, zstd.WithEncoderConcurrency(2), zstd.WithEncoderLevel(zstd.SpeedDefault))
	zDec, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(2))
}

// Serialize appends the binary representation of v to dst and returns the
// result.
func (s *Serializer) Serialize(dst []byte, v Value) []byte {
	s.tagsBuf = s.tagsBuf[:0]
	s.valuesBuf = s.valuesBuf[:0]
	s.stringsBuf = s.stringsBuf[:0]
	s.encodeValue(v)

	dst = append(dst, serializedVersion)
	dst = s.appendBlock(dst, s.compTags, s.tagsBuf)
	dst = s.appendBlock(dst, s.compValues, s.valuesBuf)
	dst = s.appendBlock(dst, s.compStrings, s.stringsBuf)
	return dst
}

func (s *Serializer) encodeValue(v Value) {
	s.tagsBuf = append(s.tagsBuf, byte(v.tag))
	switch v.tag {
	case TagInteger:
		s.valuesBuf = binary.AppendUvarint(s.valuesBuf, v.num)
	case TagFloat:
		s.valuesBuf = binary.LittleEndian.AppendUint64(s.valuesBuf, v.num)
	case TagString:
		s.valuesBuf = binary.AppendUvarint(s.valuesBuf, uint64(len(v.str)))
		s.stringsBuf = append(s.stringsBuf, v.str...)
	case TagArray:
		s.valuesBuf = binary.AppendUvarint(s.valuesBuf, uint64(len(v.arr)))
		for i := range v.arr {
			s.encodeValue(v.arr[i])
		}
	case TagObject:
		s.valuesBuf = binary.AppendUvarint(s.valuesBuf, uint64(v.obj.Len()))
		for i := range v.obj.fields {
			f := &v.obj.fields[i]
			s.valuesBuf = binary.AppendUvarint(s.valuesBuf, uint64(len(f.Key)))
			s.stringsBuf = append(s.stringsBuf, f.Key...)
			s.encodeValue(f.Value)
		}
	}
}

// appendBlock compresses payload according to the block type and appends
// [type][raw size][compressed size][data] to dst.
func (s *Serializer) appendBlock(dst []byte, blockType uint8, payload []byte) []byte {
	comp := payload
	switch blockType {
	case blockTypeUncompressed:
	case blockTypeS2:
		s.compBuf = s.compBuf[:cap(s.compBuf)]
		if s.fasterComp {
			s.compBuf = s2.Encode(s.compBuf, payload)
		} else {
			s.compBuf = s2.EncodeBetter(s.compBuf, payload)
		}
		comp = s.compBuf
	case blockTypeZstd:
		s.compBuf = zEnc.EncodeAll(payload, s.compBuf[:0])
		comp = s.compBuf
	}
	// fall back when compression does not pay
	if len(comp) >= len(payload) && blockType != blockTypeUncompressed {
		blockType = blockTypeUncompressed
		comp = payload
	}
	dst = append(dst, blockType)
	dst = binary.AppendUvarint(dst, uint64(len(payload)))
	dst = binary.AppendUvarint(dst, uint64(len(comp)))
	return append(dst, comp...)
}

// Deserialize reads a document serialized with Serialize. The returned Value
// owns its strings.
func (s *Serializer) Deserialize(src []byte) (Value, error) {
	initSerializerOnce.Do(initSerializer)
	if len(src) < 1 {
		return Value{}, errors.New("empty input")
	}
	if src[0] != serializedVersion {
		return Value{}, fmt.Errorf("unknown serialized version %d", src[0])
	}
	src = src[1:]

	var d deserializer
	var err error
	if d.tags, src, err = readBlock(src); err != nil {
		return Value{}, fmt.Errorf("tags block: %w", err)
	}
	if d.values, src, err = readBlock(src); err != nil {
		return Value{}, fmt.Errorf("values block: %w", err)
	}
	if d.strings, src, err = readBlock(src); err != nil {
		return Value{}, fmt.Errorf("strings block: %w", err)
	}
	if len(src) != 0 {
		return Value{}, fmt.Errorf("%d trailing bytes after blocks", len(src))
	}
	v, err := d.decodeValue()
	if err != nil {
		return Value{}, err
	}
	if len(d.tags) != 0 {
		return Value{}, fmt.Errorf("%d unconsumed tags", len(d.tags))
	}
	return v, nil
}

// readBlock decodes one [type][raw size][compressed size][data] block and
// returns the decompressed payload plus the remaining input.
func readBlock(src []byte) (payload, rest []byte, err error) {
	if len(src) < 1 {
		return nil, nil, errors.New("truncated block header")
	}
	blockType := src[0]
	src = src[1:]
	rawSize, n := binary.Uvarint(src)
	if n <= 0 || rawSize > maxBlockSize {
		return nil, nil, errors.New("invalid raw size")
	}
	src = src[n:]
	compSize, n := binary.Uvarint(src)
	if n <= 0 {
		return nil, nil, errors.New("invalid compressed size")
	}
	src = src[n:]
	if uint64(len(src)) < compSize {
		return nil, nil, errors.New("truncated block payload")
	}
	comp := src[:compSize]
	rest = src[compSize:]

	switch blockType {
	case blockTypeUncompressed:
		// copied so the decoded document never aliases src
		payload = append(make([]byte, 0, rawSize), comp...)
	case blockTypeS2:
		payload, err = s2.Decode(make([]byte, 0, rawSize), comp)
	case blockTypeZstd:
		payload, err = zDec.DecodeAll(comp, make([]byte, 0, rawSize))
	default:
		return nil, nil, fmt.Errorf("unknown block type %d", blockType)
	}
	if err != nil {
		return nil, nil, err
	}
	if uint64(len(payload)) != rawSize {
		return nil, nil, fmt.Errorf("block size mismatch, got %d want %d", len(payload), rawSize)
	}
	return payload, rest, nil
}

type deserializer struct {
	tags    []byte
	values  []byte
	strings []byte
}

func (d *deserializer) uvarint() (uint64, error) {
	v, n := binary.Uvarint(d.values)
	if n <= 0 {
		return 0, errors.New("corrupt values stream")
	}
	d.values = d.values[n:]
	return v, nil
}

func (d *deserializer) stringBytes() ([]byte, error) {
	l, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	if uint64(len(d.strings)) < l {
		return nil, errors.New("corrupt strings stream")
	}
	b := d.strings[:l:l]
	d.strings = d.strings[l:]
	return b, nil
}

func (d *deserializer) decodeValue() (Value, error) {
	if len(d.tags) == 0 {
		return Value{}, errors.New("unexpected end of tags stream")
	}
	tag := Tag(d.tags[0])
	d.tags = d.tags[1:]

	switch tag {
	case TagNull, TagBoolTrue, TagBoolFalse:
		return Value{tag: tag}, nil
	case TagInteger:
		num, err := d.uvarint()
		if err != nil {
			return Value{}, err
		}
		return Value{tag: tag, num: num}, nil
	case TagFloat:
		if len(d.values) < 8 {
			return Value{}, errors.New("corrupt values stream")
		}
		num := binary.LittleEndian.Uint64(d.values)
		d.values = d.values[8:]
		return Value{tag: tag, num: num}, nil
	case TagString:
		b, err := d.stringBytes()
		if err != nil {
			return Value{}, err
		}
		return Value{tag: tag, str: b}, nil
	case TagArray:
		n, err := d.uvarint()
		if err != nil {
			return Value{}, err
		}
		if n > uint64(len(d.tags)) {
			return Value{}, fmt.Errorf("array claims %d elements, %d tags left", n, len(d.tags))
		}
		arr := make([]Value, n)
		for i := range arr {
			if arr[i], err = d.decodeValue(); err != nil {
				return Value{}, err
			}
		}
		return Value{tag: tag, arr: arr}, nil
	case TagObject:
		n, err := d.uvarint()
		if err != nil {
			return Value{}, err
		}
		if n > uint64(len(d.tags)) {
			return Value{}, fmt.Errorf("object claims %d fields, %d tags left", n, len(d.tags))
		}
		fields := make([]Field, n)
		for i := range fields {
			if fields[i].Key, err = d.stringBytes(); err != nil {
				return Value{}, err
			}
			if fields[i].Value, err = d.decodeValue(); err != nil {
				return Value{}, err
			}
		}
		return Value{tag: tag, obj: &Object{fields: fields}}, nil
	}
	return Value{}, fmt.Errorf("unknown tag %q", byte(tag))
}
