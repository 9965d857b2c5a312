// Package objstream implements a small tagged object stream.
//
// A stream starts with a 4 byte magic ("WGOS") and a version byte, followed by
// gob encoded records. Each record is either a null, a string, or an object
// carrying a class name, a serial version and a gob encoded body. Decoding
// consults a Filter before any object is constructed and only builds classes
// present in a Registry.
package objstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"io"

	"deserlab/internal/clock"
)

var magic = [4]byte{'W', 'G', 'O', 'S'}

// StreamVersion is the only stream version this package reads and writes.
const StreamVersion byte = 1

// Tag identifies the variant a record carries.
type Tag uint8

const (
	TagNull Tag = iota + 1
	TagString
	TagObject
)

func (t Tag) String() string {
	switch t {
	case TagNull:
		return "null"
	case TagString:
		return "string"
	case TagObject:
		return "object"
	default:
		return fmt.Sprintf("tag(%d)", uint8(t))
	}
}

type record struct {
	Tag           Tag
	Class         string
	Array         bool
	SerialVersion int64
	Text          string
	Body          []byte
}

// Raw is written as an object record verbatim. It lets callers produce records
// for classes, versions or array shapes the local code does not define.
type Raw struct {
	Class         string
	SerialVersion int64
	Array         bool
	Value         any
}

// Resolver is implemented by decoded objects that need to run logic once their
// fields are populated. A resolver error aborts decoding and is returned as is.
type Resolver interface {
	ResolveObject(ctx context.Context, clk clock.Clock) error
}

// Encoder writes records to a stream.
type Encoder struct {
	w          io.Writer
	enc        *gob.Encoder
	headerDone bool
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w, enc: gob.NewEncoder(w)}
}

// WriteObject writes v as a single record. v may be nil, a string, a Raw or a
// Serializable.
func (e *Encoder) WriteObject(v any) error {
	rec, err := toRecord(v)
	if err != nil {
		return err
	}
	if !e.headerDone {
		if _, err := e.w.Write(append(magic[:], StreamVersion)); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		e.headerDone = true
	}
	if err := e.enc.Encode(rec); err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return nil
}

// Marshal returns the stream holding v as its only record.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := NewEncoder(&buf).WriteObject(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func toRecord(v any) (record, error) {
	switch val := v.(type) {
	case nil:
		return record{Tag: TagNull}, nil
	case string:
		return record{Tag: TagString, Text: val}, nil
	case Raw:
		body, err := encodeBody(val.Value)
		if err != nil {
			return record{}, err
		}
		return record{
			Tag:           TagObject,
			Class:         val.Class,
			Array:         val.Array,
			SerialVersion: val.SerialVersion,
			Body:          body,
		}, nil
	case Serializable:
		name, version := val.StreamClass()
		body, err := encodeBody(val)
		if err != nil {
			return record{}, err
		}
		return record{Tag: TagObject, Class: name, SerialVersion: version, Body: body}, nil
	default:
		return record{}, fmt.Errorf("objstream: cannot write %T", v)
	}
}

func encodeBody(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	return buf.Bytes(), nil
}

// Decoder reads records from a stream.
type Decoder struct {
	r          *countingReader
	dec        *gob.Decoder
	registry   *Registry
	filter     Filter
	clock      clock.Clock
	headerDone bool
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithFilter installs the filter consulted before each record is materialized.
func WithFilter(f Filter) Option {
	return func(d *Decoder) { d.filter = f }
}

// WithClock sets the clock handed to resolvers. Defaults to the wall clock.
func WithClock(c clock.Clock) Option {
	return func(d *Decoder) { d.clock = c }
}

func NewDecoder(r io.Reader, reg *Registry, opts ...Option) *Decoder {
	br, ok := r.(byteReader)
	if !ok {
		br = bufio.NewReader(r)
	}
	cr := &countingReader{r: br}
	d := &Decoder{r: cr, dec: gob.NewDecoder(cr), registry: reg, clock: clock.Real()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ReadObject decodes the next record. Nulls come back as nil, strings as
// string, objects as the pointer returned by their registered constructor.
func (d *Decoder) ReadObject(ctx context.Context) (any, error) {
	if err := d.readHeader(); err != nil {
		return nil, err
	}

	var rec record
	if err := d.dec.Decode(&rec); err != nil {
		return nil, corrupted("read record: %v", err)
	}

	if d.filter != nil {
		info := FilterInfo{Class: rec.Class, Array: rec.Array, Depth: 1, StreamBytes: d.r.n}
		if st := d.filter.CheckInput(info); st == Rejected {
			return nil, &InvalidClassError{Class: rec.Class, Reason: "filter status: " + st.String()}
		}
	}

	switch rec.Tag {
	case TagNull:
		return nil, nil
	case TagString:
		return rec.Text, nil
	case TagObject:
		return d.readObject(ctx, rec)
	default:
		return nil, corrupted("unknown record %s", rec.Tag)
	}
}

func (d *Decoder) readHeader() error {
	if d.headerDone {
		return nil
	}
	var hdr [5]byte
	if _, err := io.ReadFull(d.r, hdr[:]); err != nil {
		return corrupted("read header: %v", err)
	}
	if !bytes.Equal(hdr[:4], magic[:]) {
		return corrupted("invalid stream header: %x", hdr[:4])
	}
	if hdr[4] != StreamVersion {
		return corrupted("unsupported stream version %d", hdr[4])
	}
	d.headerDone = true
	return nil
}

func (d *Decoder) readObject(ctx context.Context, rec record) (any, error) {
	if rec.Class == "" {
		return nil, corrupted("object record without class")
	}
	if d.registry == nil {
		return nil, &InvalidClassError{Class: rec.Class, Reason: "class not found"}
	}
	cls, ok := d.registry.Lookup(rec.Class)
	if !ok {
		return nil, &InvalidClassError{Class: rec.Class, Reason: "class not found"}
	}
	if rec.SerialVersion != cls.SerialVersion {
		return nil, &InvalidClassError{
			Class: rec.Class,
			Reason: fmt.Sprintf("local class incompatible: stream serial version = %d, local class serial version = %d",
				rec.SerialVersion, cls.SerialVersion),
		}
	}
	if rec.Array {
		return nil, &InvalidClassError{Class: rec.Class, Reason: "array records are not supported"}
	}

	obj := cls.New()
	if err := gob.NewDecoder(bytes.NewReader(rec.Body)).Decode(obj); err != nil {
		return nil, corrupted("decode %s body: %v", rec.Class, err)
	}

	if res, ok := obj.(Resolver); ok {
		if err := res.ResolveObject(ctx, d.clock); err != nil {
			return nil, err
		}
	}
	return obj, nil
}

// RecordInfo is a description of a record read without a filter or registry.
type RecordInfo struct {
	Tag           Tag
	Class         string
	Array         bool
	SerialVersion int64
	Text          string
	BodyLen       int
}

// Inspect reads the header and the first record of data and describes it
// without constructing any value.
func Inspect(data []byte) (RecordInfo, error) {
	d := NewDecoder(bytes.NewReader(data), nil)
	if err := d.readHeader(); err != nil {
		return RecordInfo{}, err
	}
	var rec record
	if err := d.dec.Decode(&rec); err != nil {
		return RecordInfo{}, corrupted("read record: %v", err)
	}
	return RecordInfo{
		Tag:           rec.Tag,
		Class:         rec.Class,
		Array:         rec.Array,
		SerialVersion: rec.SerialVersion,
		Text:          rec.Text,
		BodyLen:       len(rec.Body),
	}, nil
}

type byteReader interface {
	io.Reader
	io.ByteReader
}

// countingReader counts the bytes the decoder consumed. It is an io.ByteReader
// so gob reads from it directly instead of buffering ahead.
type countingReader struct {
	r byteReader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func (c *countingReader) ReadByte() (byte, error) {
	b, err := c.r.ReadByte()
	if err == nil {
		c.n++
	}
	return b, err
}
