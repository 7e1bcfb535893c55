// Copyright 2024 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/dataio/jobstore/jobstore/model"
	cerror "github.com/dataio/jobstore/pkg/errors"
)

// FieldKind is the wire kind of a compact field.
type FieldKind byte

// Field kinds.
const (
	FieldKindInt8  FieldKind = 1
	FieldKindInt32 FieldKind = 2
)

func (k FieldKind) size() int {
	switch k {
	case FieldKindInt8:
		return 1
	case FieldKindInt32:
		return 4
	}
	return 0
}

// Field is a named field of a compact schema.
type Field struct {
	Name string
	Kind FieldKind
}

// Schema describes the fixed layout of a compact type. Fields are written in
// order, big-endian, without tags.
type Schema struct {
	TypeName string
	Fields   []Field
}

// Size returns the encoded size of a value.
func (s *Schema) Size() int {
	n := 0
	for _, f := range s.Fields {
		n += f.Kind.size()
	}
	return n
}

// StatusChangeEventSchema is the compact schema of StatusChangeEvent.
var StatusChangeEventSchema = &Schema{
	TypeName: "StatusChangeEvent",
	Fields: []Field{
		{Name: "id", Kind: FieldKindInt32},
		{Name: "os", Kind: FieldKindInt8},
		{Name: "ns", Kind: FieldKindInt8},
	},
}

// CompactWriter writes the fields of a schema in order. The first error is
// kept and returned by Bytes.
type CompactWriter struct {
	schema *Schema
	buf    []byte
	next   int
	err    error
}

// NewCompactWriter creates a writer for schema.
func NewCompactWriter(schema *Schema) *CompactWriter {
	return &CompactWriter{schema: schema, buf: make([]byte, 0, schema.Size())}
}

func (w *CompactWriter) field(name string, kind FieldKind) bool {
	if w.err != nil {
		return false
	}
	if w.next >= len(w.schema.Fields) {
		w.err = cerror.ErrEncodeFailed.GenWithStackByArgs(
			fmt.Sprintf("%s has no field %s", w.schema.TypeName, name))
		return false
	}
	f := w.schema.Fields[w.next]
	if f.Name != name || f.Kind != kind {
		w.err = cerror.ErrEncodeFailed.GenWithStackByArgs(
			fmt.Sprintf("%s expects field %s at %d, got %s", w.schema.TypeName, f.Name, w.next, name))
		return false
	}
	w.next++
	return true
}

// WriteInt8 writes an int8 field.
func (w *CompactWriter) WriteInt8(name string, v int8) {
	if w.field(name, FieldKindInt8) {
		w.buf = append(w.buf, byte(v))
	}
}

// WriteInt32 writes an int32 field.
func (w *CompactWriter) WriteInt32(name string, v int32) {
	if w.field(name, FieldKindInt32) {
		w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(v))
	}
}

// Bytes returns the encoded value.
func (w *CompactWriter) Bytes() ([]byte, error) {
	if w.err == nil && w.next != len(w.schema.Fields) {
		w.err = cerror.ErrEncodeFailed.GenWithStackByArgs(
			fmt.Sprintf("%s: %d of %d fields written", w.schema.TypeName, w.next, len(w.schema.Fields)))
	}
	if w.err != nil {
		return nil, w.err
	}
	return w.buf, nil
}

// CompactReader reads the fields of a schema in order.
type CompactReader struct {
	schema *Schema
	data   []byte
	next   int
	err    error
}

// NewCompactReader creates a reader of data laid out by schema.
func NewCompactReader(schema *Schema, data []byte) *CompactReader {
	r := &CompactReader{schema: schema, data: data}
	if len(data) != schema.Size() {
		r.err = cerror.ErrDecodeFailed.GenWithStackByArgs(
			fmt.Sprintf("%s needs %d bytes, got %d", schema.TypeName, schema.Size(), len(data)))
	}
	return r
}

func (r *CompactReader) field(name string, kind FieldKind) []byte {
	if r.err != nil {
		return nil
	}
	if r.next >= len(r.schema.Fields) || r.schema.Fields[r.next].Name != name ||
		r.schema.Fields[r.next].Kind != kind {
		r.err = cerror.ErrDecodeFailed.GenWithStackByArgs(
			fmt.Sprintf("%s has no field %s at %d", r.schema.TypeName, name, r.next))
		return nil
	}
	r.next++
	b := r.data[:kind.size()]
	r.data = r.data[kind.size():]
	return b
}

// ReadInt8 reads an int8 field.
func (r *CompactReader) ReadInt8(name string) int8 {
	b := r.field(name, FieldKindInt8)
	if b == nil {
		return 0
	}
	return int8(b[0])
}

// ReadInt32 reads an int32 field.
func (r *CompactReader) ReadInt32(name string) int32 {
	b := r.field(name, FieldKindInt32)
	if b == nil {
		return 0
	}
	return int32(binary.BigEndian.Uint32(b))
}

// Err returns the first error met while reading.
func (r *CompactReader) Err() error {
	return r.err
}

// MarshalStatusChangeEvent encodes e with StatusChangeEventSchema.
func MarshalStatusChangeEvent(e *model.StatusChangeEvent) ([]byte, error) {
	w := NewCompactWriter(StatusChangeEventSchema)
	w.WriteInt32("id", e.SinkID)
	w.WriteInt8("os", e.OldStatus.Byte())
	w.WriteInt8("ns", e.NewStatus.Byte())
	return w.Bytes()
}

// UnmarshalStatusChangeEvent decodes a value written by
// MarshalStatusChangeEvent. Status codes unknown to this build fail with
// ErrUnknownSchedulingStatus.
func UnmarshalStatusChangeEvent(data []byte) (*model.StatusChangeEvent, error) {
	r := NewCompactReader(StatusChangeEventSchema, data)
	sinkID := r.ReadInt32("id")
	oldCode := r.ReadInt8("os")
	newCode := r.ReadInt8("ns")
	if err := r.Err(); err != nil {
		return nil, err
	}
	oldStatus, err := statusFromCode(oldCode)
	if err != nil {
		return nil, err
	}
	newStatus, err := model.StatusFromByte(newCode)
	if err != nil {
		return nil, err
	}
	return model.NewStatusChangeEvent(sinkID, oldStatus, newStatus), nil
}

// statusFromCode accepts the absent status, which is the old status of a
// newly registered chunk.
func statusFromCode(code int8) (model.ChunkSchedulingStatus, error) {
	if code == model.StatusAbsent.Byte() {
		return model.StatusAbsent, nil
	}
	return model.StatusFromByte(code)
}
