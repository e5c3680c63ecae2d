// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package storage

import (
	"fmt"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/lectern/core"
)

// PointMUS is the binary codec for IndexedPoint used by the embedded stores.
//
// Layout: id | text | filename | page | chunk | page header | dim | dim x float32.
var PointMUS = pointMUS{}

type pointMUS struct{}

func (pointMUS) Marshal(p core.IndexedPoint, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(p.ID), bs)
	n += PayloadMUS.Marshal(p.Payload, bs[n:])
	n += varint.Int.Marshal(len(p.Vector), bs[n:])
	for _, v := range p.Vector {
		n += raw.Float32.Marshal(v, bs[n:])
	}
	return
}

func (pointMUS) Unmarshal(bs []byte) (p core.IndexedPoint, n int, err error) {
	id, n, err := varint.Uint64.Unmarshal(bs)
	if err != nil {
		return
	}
	p.ID = core.PointID(id)

	var m int
	p.Payload, m, err = PayloadMUS.Unmarshal(bs[n:])
	n += m
	if err != nil {
		return
	}

	var dim int
	dim, m, err = varint.Int.Unmarshal(bs[n:])
	n += m
	if err != nil {
		return
	}
	if dim < 0 || dim > len(bs)-n {
		err = fmt.Errorf("%w: vector length %d", ErrSerializationFailed, dim)
		return
	}
	p.Vector = make([]float32, dim)
	for i := range p.Vector {
		p.Vector[i], m, err = raw.Float32.Unmarshal(bs[n:])
		n += m
		if err != nil {
			return
		}
	}
	return
}

func (pointMUS) Size(p core.IndexedPoint) (size int) {
	size = varint.Uint64.Size(uint64(p.ID))
	size += PayloadMUS.Size(p.Payload)
	size += varint.Int.Size(len(p.Vector))
	for _, v := range p.Vector {
		size += raw.Float32.Size(v)
	}
	return
}

func (s pointMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

// PayloadMUS is the binary codec for a point payload.
var PayloadMUS = payloadMUS{}

type payloadMUS struct{}

func (payloadMUS) Marshal(p core.Payload, bs []byte) (n int) {
	n = ord.String.Marshal(p.Text, bs)
	n += ord.String.Marshal(p.Filename, bs[n:])
	n += varint.Int.Marshal(p.PageNumber, bs[n:])
	n += varint.Int.Marshal(p.ChunkNumber, bs[n:])
	n += ord.String.Marshal(p.PageHeader, bs[n:])
	return
}

func (payloadMUS) Unmarshal(bs []byte) (p core.Payload, n int, err error) {
	p.Text, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	var m int
	p.Filename, m, err = ord.String.Unmarshal(bs[n:])
	n += m
	if err != nil {
		return
	}
	p.PageNumber, m, err = varint.Int.Unmarshal(bs[n:])
	n += m
	if err != nil {
		return
	}
	p.ChunkNumber, m, err = varint.Int.Unmarshal(bs[n:])
	n += m
	if err != nil {
		return
	}
	p.PageHeader, m, err = ord.String.Unmarshal(bs[n:])
	n += m
	return
}

func (payloadMUS) Size(p core.Payload) (size int) {
	size = ord.String.Size(p.Text)
	size += ord.String.Size(p.Filename)
	size += varint.Int.Size(p.PageNumber)
	size += varint.Int.Size(p.ChunkNumber)
	size += ord.String.Size(p.PageHeader)
	return
}

func (s payloadMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

// MarshalPoint serializes an IndexedPoint to bytes.
func MarshalPoint(point *core.IndexedPoint) []byte {
	buf := make([]byte, PointMUS.Size(*point))
	PointMUS.Marshal(*point, buf)
	return buf
}

// UnmarshalPoint deserializes an IndexedPoint from bytes.
func UnmarshalPoint(data []byte) (*core.IndexedPoint, error) {
	point, _, err := PointMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &point, nil
}

// MarshalCollectionInfo serializes a collection's dimension and metric.
// The point count is not persisted.
func MarshalCollectionInfo(info *CollectionInfo) []byte {
	size := varint.Int.Size(info.Dimension) + ord.String.Size(string(info.Metric))
	buf := make([]byte, size)
	n := varint.Int.Marshal(info.Dimension, buf)
	ord.String.Marshal(string(info.Metric), buf[n:])
	return buf
}

// UnmarshalCollectionInfo deserializes what MarshalCollectionInfo wrote.
func UnmarshalCollectionInfo(name string, data []byte) (*CollectionInfo, error) {
	dim, n, err := varint.Int.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	metric, _, err := ord.String.Unmarshal(data[n:])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &CollectionInfo{Name: name, Dimension: dim, Metric: Metric(metric)}, nil
}
