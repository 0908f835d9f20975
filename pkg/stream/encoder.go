package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/nova-lang/nova/pkg/evaluator"
)

const (
	FormatText = "text"
	FormatJSON = "json"
	FormatCBOR = "cbor"
)

// Encoder writes results in one output format.
type Encoder interface {
	Encode(evaluator.Result) error
}

// Record is the serialised form of a result.
type Record struct {
	Seq   uint64 `json:"seq" cbor:"1,keyasint"`
	Value int32  `json:"value" cbor:"2,keyasint"`
	Error string `json:"error,omitempty" cbor:"3,keyasint,omitempty"`
}

func NewRecord(r evaluator.Result) Record {
	rec := Record{Seq: r.Seq, Value: r.Value}
	if r.Err != nil {
		rec.Error = r.Err.Error()
	}
	return rec
}

func NewEncoder(format string, w io.Writer) (Encoder, error) {
	switch strings.ToLower(format) {
	case "", FormatText:
		return &textEncoder{w: w}, nil
	case FormatJSON:
		return &jsonEncoder{enc: json.NewEncoder(w)}, nil
	case FormatCBOR:
		return &cborEncoder{enc: cbor.NewEncoder(w)}, nil
	}
	return nil, fmt.Errorf("unknown output format %q", format)
}

type textEncoder struct {
	w io.Writer
}

func (e *textEncoder) Encode(r evaluator.Result) error {
	var err error
	if r.Err != nil {
		_, err = fmt.Fprintf(e.w, "error: %v\n", r.Err)
	} else {
		_, err = fmt.Fprintf(e.w, "%d\n", r.Value)
	}
	return err
}

type jsonEncoder struct {
	enc *json.Encoder
}

func (e *jsonEncoder) Encode(r evaluator.Result) error {
	return e.enc.Encode(NewRecord(r))
}

type cborEncoder struct {
	enc *cbor.Encoder
}

func (e *cborEncoder) Encode(r evaluator.Result) error {
	return e.enc.Encode(NewRecord(r))
}

// MarshalRecord encodes a single result as CBOR.
func MarshalRecord(r evaluator.Result) ([]byte, error) {
	return cbor.Marshal(NewRecord(r))
}

func UnmarshalRecord(data []byte) (Record, error) {
	var rec Record
	err := cbor.Unmarshal(data, &rec)
	return rec, err
}
