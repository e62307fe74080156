package message

import (
	"unicode/utf8"

	"golang.org/x/crypto/cryptobyte"
)

// Wire layout of an encoded message (all integers big-endian):
//
//	u8  kind (0 = request, 1 = response)
//	u32 len | id
//	u32 len | request id   (responses only)
//	u32 len | UTF-8 data
//
// Nothing may follow the data field.

// Marshal encodes m. The encoding is canonical: equal messages always
// produce identical bytes.
func Marshal(m Message) ([]byte, error) {
	b := cryptobyte.NewBuilder(nil)

	switch msg := m.(type) {
	case *Request:
		if msg == nil {
			return nil, serializationFailed(m, "nil request")
		}
		if !utf8.ValidString(msg.Data) {
			return nil, serializationFailed(m, "data is not valid UTF-8")
		}
		b.AddUint8(uint8(KindRequest))
		addField(b, msg.ID)
		addField(b, []byte(msg.Data))
	case *Response:
		if msg == nil {
			return nil, serializationFailed(m, "nil response")
		}
		if !utf8.ValidString(msg.Data) {
			return nil, serializationFailed(m, "data is not valid UTF-8")
		}
		b.AddUint8(uint8(KindResponse))
		addField(b, msg.ID)
		addField(b, msg.RequestID)
		addField(b, []byte(msg.Data))
	default:
		return nil, serializationFailed(m, "unknown message variant")
	}

	out, err := b.Bytes()
	if err != nil {
		return nil, serializationFailed(m, err.Error())
	}
	return out, nil
}

// Unmarshal decodes a message produced by Marshal. Truncated, oversized or
// otherwise malformed input yields a *SerializationError holding a copy of data.
func Unmarshal(data []byte) (Message, error) {
	s := cryptobyte.String(data)

	var kind uint8
	if !s.ReadUint8(&kind) {
		return nil, deserializationFailed(data, "missing message kind")
	}

	switch Kind(kind) {
	case KindRequest:
		var id, payload cryptobyte.String
		if !readField(&s, &id) || !readField(&s, &payload) {
			return nil, deserializationFailed(data, "truncated request")
		}
		if !s.Empty() {
			return nil, deserializationFailed(data, "trailing bytes after request")
		}
		if !utf8.Valid(payload) {
			return nil, deserializationFailed(data, "request data is not valid UTF-8")
		}
		return &Request{
			ID:   cloneBytes(id),
			Data: string(payload),
		}, nil

	case KindResponse:
		var id, requestID, payload cryptobyte.String
		if !readField(&s, &id) ||
			!readField(&s, &requestID) ||
			!readField(&s, &payload) {
			return nil, deserializationFailed(data, "truncated response")
		}
		if !s.Empty() {
			return nil, deserializationFailed(data, "trailing bytes after response")
		}
		if !utf8.Valid(payload) {
			return nil, deserializationFailed(data, "response data is not valid UTF-8")
		}
		return &Response{
			ID:        cloneBytes(id),
			RequestID: cloneBytes(requestID),
			Data:      string(payload),
		}, nil

	default:
		return nil, deserializationFailed(data, "unknown message kind")
	}
}

func addField(b *cryptobyte.Builder, v []byte) {
	b.AddUint32LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(v)
	})
}

// readField reads a u32 length-prefixed field. cryptobyte only offers
// length-prefixed reads up to 24 bits.
func readField(s *cryptobyte.String, out *cryptobyte.String) bool {
	var n uint32
	if !s.ReadUint32(&n) || uint64(n) > uint64(len(*s)) {
		return false
	}
	return s.ReadBytes((*[]byte)(out), int(n))
}
