// Package apiproto implements the binary RPC frame used to talk to the
// remote storage API: a command verb plus an ordered list of typed named
// parameters, and the {result:int, ...} response envelope. It also owns the
// block-checksum binary stream format used by upload_blockchecksums and
// getchecksumlink.
package apiproto

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// ParamType tags the wire representation of one named parameter.
type ParamType uint8

// Parameter wire types. Order is part of the frame encoding, not just
// documentation — do not renumber.
const (
	ParamString ParamType = iota
	ParamUint64
	ParamBool
	ParamBytes
)

// Param is one named, typed request parameter.
type Param struct {
	Name string
	Type ParamType

	Str   string
	Num   uint64
	Bool  bool
	Bytes []byte
}

// StringParam builds a string-typed Param.
func StringParam(name, value string) Param { return Param{Name: name, Type: ParamString, Str: value} }

// Uint64Param builds a uint64-typed Param.
func Uint64Param(name string, value uint64) Param {
	return Param{Name: name, Type: ParamUint64, Num: value}
}

// BoolParam builds a bool-typed Param.
func BoolParam(name string, value bool) Param { return Param{Name: name, Type: ParamBool, Bool: value} }

// BytesParam builds a byte-blob-typed Param.
func BytesParam(name string, value []byte) Param {
	return Param{Name: name, Type: ParamBytes, Bytes: value}
}

// Request is one command invocation: a verb, its named parameters, and an
// optional raw body streamed after the frame (e.g. uploadfile's file bytes,
// whose length is carried by the "filesize" parameter rather than the frame
// itself).
type Request struct {
	Verb   string
	Params []Param
	Body   io.Reader // nil if the verb carries no body
}

// Get returns the named parameter and true if present.
func (r *Request) Get(name string) (Param, bool) {
	for _, p := range r.Params {
		if p.Name == name {
			return p, true
		}
	}

	return Param{}, false
}

// WriteTo encodes the request frame (verb + param count + params) to w. The
// body, if any, is the caller's responsibility to stream separately after
// the frame — this mirrors the server's expectation of frame-then-body
// rather than interleaving them in one write.
func (r *Request) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)

	var written int64

	n, err := writeString(bw, r.Verb)
	written += n

	if err != nil {
		return written, fmt.Errorf("writing verb: %w", err)
	}

	if err := binary.Write(bw, binary.BigEndian, uint32(len(r.Params))); err != nil {
		return written, fmt.Errorf("writing param count: %w", err)
	}

	written += 4

	for i := range r.Params {
		n, err := writeParam(bw, &r.Params[i])
		written += n

		if err != nil {
			return written, fmt.Errorf("writing param %q: %w", r.Params[i].Name, err)
		}
	}

	if err := bw.Flush(); err != nil {
		return written, fmt.Errorf("flushing request frame: %w", err)
	}

	return written, nil
}

func writeParam(w io.Writer, p *Param) (int64, error) {
	var written int64

	n, err := writeString(w, p.Name)
	written += n

	if err != nil {
		return written, err
	}

	if err := binary.Write(w, binary.BigEndian, p.Type); err != nil {
		return written, err
	}

	written++

	switch p.Type {
	case ParamString:
		n, err := writeString(w, p.Str)
		written += n

		return written, err
	case ParamUint64:
		if err := binary.Write(w, binary.BigEndian, p.Num); err != nil {
			return written, err
		}

		return written + 8, nil
	case ParamBool:
		var b byte
		if p.Bool {
			b = 1
		}

		if err := binary.Write(w, binary.BigEndian, b); err != nil {
			return written, err
		}

		return written + 1, nil
	case ParamBytes:
		n, err := writeBytes(w, p.Bytes)
		written += n

		return written, err
	default:
		return written, fmt.Errorf("unknown param type %d", p.Type)
	}
}

func writeString(w io.Writer, s string) (int64, error) {
	return writeBytes(w, []byte(s))
}

func writeBytes(w io.Writer, b []byte) (int64, error) {
	if err := binary.Write(w, binary.BigEndian, uint32(len(b))); err != nil {
		return 0, err
	}

	n, err := w.Write(b)

	return int64(n) + 4, err
}

// ReadRequest decodes a request frame from r (used by test doubles and by
// any future server-side harness; the client only ever writes requests).
func ReadRequest(r io.Reader) (*Request, error) {
	br := bufio.NewReader(r)

	verb, err := readString(br)
	if err != nil {
		return nil, fmt.Errorf("reading verb: %w", err)
	}

	var count uint32
	if err := binary.Read(br, binary.BigEndian, &count); err != nil {
		return nil, fmt.Errorf("reading param count: %w", err)
	}

	params := make([]Param, count)

	for i := range params {
		p, err := readParam(br)
		if err != nil {
			return nil, fmt.Errorf("reading param %d: %w", i, err)
		}

		params[i] = p
	}

	return &Request{Verb: verb, Params: params}, nil
}

func readParam(r io.Reader) (Param, error) {
	name, err := readString(r)
	if err != nil {
		return Param{}, err
	}

	var typ ParamType
	if err := binary.Read(r, binary.BigEndian, &typ); err != nil {
		return Param{}, err
	}

	p := Param{Name: name, Type: typ}

	switch typ {
	case ParamString:
		p.Str, err = readString(r)
	case ParamUint64:
		err = binary.Read(r, binary.BigEndian, &p.Num)
	case ParamBool:
		var b byte
		if err = binary.Read(r, binary.BigEndian, &b); err == nil {
			p.Bool = b != 0
		}
	case ParamBytes:
		p.Bytes, err = readBytes(r)
	default:
		err = fmt.Errorf("unknown param type %d", typ)
	}

	return p, err
}

func readString(r io.Reader) (string, error) {
	b, err := readBytes(r)

	return string(b), err
}

func readBytes(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	return buf, nil
}
