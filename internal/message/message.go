package message

import "bytes"

// Kind is the wire discriminant of a Message.
type Kind uint8

const (
	KindRequest  Kind = 0
	KindResponse Kind = 1
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	default:
		return "unknown"
	}
}

// Message is one of the two variants exchanged between client and server:
// *Request or *Response. Use a type switch to get at the variant.
type Message interface {
	Kind() Kind
	// MessageID is the content-derived identifier of the message.
	MessageID() []byte
	// Payload is the UTF-8 data carried by the message.
	Payload() string

	isMessage()
}

// Request is sent by the client. ID is the hash of Data.
type Request struct {
	ID   []byte
	Data string
}

// Response answers a Request. RequestID is copied verbatim from the request
// being answered and is not checked against anything on receipt.
type Response struct {
	ID        []byte
	RequestID []byte
	Data      string
}

// constructor for Request
func NewRequest(data string) *Request {
	return &Request{
		ID:   GenerateID([]byte(data)),
		Data: data,
	}
}

// constructor for Response
func NewResponse(requestID []byte, data string) *Response {
	return &Response{
		ID:        GenerateID([]byte(data)),
		RequestID: cloneBytes(requestID),
		Data:      data,
	}
}

func (r *Request) Kind() Kind        { return KindRequest }
func (r *Request) MessageID() []byte { return r.ID }
func (r *Request) Payload() string   { return r.Data }
func (r *Request) isMessage()        {}

func (r *Response) Kind() Kind        { return KindResponse }
func (r *Response) MessageID() []byte { return r.ID }
func (r *Response) Payload() string   { return r.Data }
func (r *Response) isMessage()        {}

// Correlates reports whether r answers req.
func (r *Response) Correlates(req *Request) bool {
	return req != nil && bytes.Equal(r.RequestID, req.ID)
}

// Equal reports whether a and b are the same variant with identical fields.
func Equal(a, b Message) bool {
	switch x := a.(type) {
	case *Request:
		y, ok := b.(*Request)
		return ok && bytes.Equal(x.ID, y.ID) && x.Data == y.Data
	case *Response:
		y, ok := b.(*Response)
		return ok && bytes.Equal(x.ID, y.ID) && bytes.Equal(x.RequestID, y.RequestID) && x.Data == y.Data
	default:
		return false
	}
}

// empty fields are normalized to nil so decoded messages compare equal to
// freshly constructed ones
func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return append([]byte(nil), b...)
}
