package index

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/cloo-solutions/docqa/internal/domain"
)

// Encoded layout:
//
//	magic   [8]byte  "DOCQAIDX"
//	version uint16
//	flags   uint16   (reserved, zero)
//	length  uint64   payload length
//	sum     [32]byte sha256 of payload
//	payload []byte   JSON document
const (
	FormatVersion uint16 = 1

	magic      = "DOCQAIDX"
	headerSize = len(magic) + 2 + 2 + 8 + sha256.Size
)

type payload struct {
	Metadata   Metadata       `json:"metadata"`
	Dimensions int            `json:"dimensions"`
	Entries    []payloadEntry `json:"entries"`
}

type payloadEntry struct {
	Position int       `json:"position"`
	Text     string    `json:"text"`
	Page     int       `json:"page"`
	Vector   []float32 `json:"vector"`
}

// Encode serializes idx. The same index always encodes to the same bytes.
func Encode(idx *Index) ([]byte, error) {
	p := payload{
		Metadata:   idx.meta,
		Dimensions: idx.dimensions,
		Entries:    make([]payloadEntry, len(idx.entries)),
	}
	for n, e := range idx.entries {
		p.Entries[n] = payloadEntry{
			Position: e.chunk.Position,
			Text:     e.chunk.Text,
			Page:     e.chunk.Page,
			Vector:   e.vector,
		}
	}

	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal index: %w", err)
	}

	sum := sha256.Sum256(body)
	var buf bytes.Buffer
	buf.Grow(headerSize + len(body))
	buf.WriteString(magic)
	_ = binary.Write(&buf, binary.BigEndian, FormatVersion)
	_ = binary.Write(&buf, binary.BigEndian, uint16(0))
	_ = binary.Write(&buf, binary.BigEndian, uint64(len(body)))
	buf.Write(sum[:])
	buf.Write(body)
	return buf.Bytes(), nil
}

// Decode parses and validates an encoded index. Every failure is IndexCorrupt.
func Decode(data []byte) (*Index, error) {
	if len(data) < headerSize {
		return nil, corrupt("truncated header", nil)
	}
	if string(data[:len(magic)]) != magic {
		return nil, corrupt("bad magic", nil)
	}
	off := len(magic)
	version := binary.BigEndian.Uint16(data[off:])
	if version != FormatVersion {
		return nil, corrupt(fmt.Sprintf("unsupported format version %d", version), nil)
	}
	off += 4
	length := binary.BigEndian.Uint64(data[off:])
	off += 8
	var want [sha256.Size]byte
	copy(want[:], data[off:off+sha256.Size])
	off += sha256.Size

	body := data[off:]
	if uint64(len(body)) != length {
		return nil, corrupt(fmt.Sprintf("payload is %d bytes, header says %d", len(body), length), nil)
	}
	if sha256.Sum256(body) != want {
		return nil, corrupt("checksum mismatch", nil)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	var p payload
	if err := dec.Decode(&p); err != nil {
		return nil, corrupt("invalid payload", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, corrupt("trailing data after payload", nil)
	}

	if p.Dimensions <= 0 {
		return nil, corrupt("missing dimensions", nil)
	}
	chunks := make([]domain.Chunk, len(p.Entries))
	vectors := make([][]float32, len(p.Entries))
	for n, e := range p.Entries {
		if len(e.Vector) != p.Dimensions {
			return nil, corrupt(fmt.Sprintf("entry %d has %d dimensions, expected %d", n, len(e.Vector), p.Dimensions), nil)
		}
		chunks[n] = domain.Chunk{Position: e.Position, Text: e.Text, Page: e.Page}
		vectors[n] = e.Vector
	}

	idx, err := Build(chunks, vectors, WithMetadata(p.Metadata))
	if err != nil {
		return nil, corrupt("invalid entries", err)
	}
	return idx, nil
}

// Checksum returns the hex sha256 of the encoded index.
func Checksum(encoded []byte) string {
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}

func corrupt(msg string, err error) error {
	return domain.NewDomainErrorWithCause(domain.ErrCodeIndexCorrupt, "index is corrupt: "+msg, err)
}
