package message

import (
	"bytes"
	"errors"
	"testing"
	"testing/quick"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/cryptobyte"
)

// SHA-256("Ping!")
var pingDigest = []byte{
	112, 120, 96, 80, 200, 192, 175, 162, 219, 199, 236, 67, 228, 162, 39, 80,
	11, 85, 93, 87, 250, 130, 196, 232, 191, 100, 195, 97, 47, 201, 85, 57,
}

func encodedPingRequest() []byte {
	var b bytes.Buffer
	b.Write([]byte{0, 0, 0, 0, 32})
	b.Write(pingDigest)
	b.Write([]byte{0, 0, 0, 5})
	b.WriteString("Ping!")
	return b.Bytes()
}

func TestHash_SameInputSameOutput(t *testing.T) {
	data := []byte("original data")

	assert.Equal(t, Hash(data), Hash(data))
	assert.Len(t, Hash(data), IDSize)
	assert.Equal(t, pingDigest, Hash([]byte("Ping!")))
}

func TestGenerateID_Deterministic(t *testing.T) {
	data := []byte("The answer is - 42")

	assert.Equal(t, GenerateID(data), GenerateID(data))
	assert.NotEqual(t, GenerateID([]byte("Ping!")), GenerateID([]byte("Pong!")))
}

func TestHash_Property(t *testing.T) {
	deterministic := func(b []byte) bool {
		return bytes.Equal(Hash(b), Hash(append([]byte(nil), b...))) && len(Hash(b)) == IDSize
	}
	require.NoError(t, quick.Check(deterministic, nil))

	distinct := func(a, b []byte) bool {
		return bytes.Equal(a, b) || !bytes.Equal(Hash(a), Hash(b))
	}
	require.NoError(t, quick.Check(distinct, nil))
}

func TestNewRequest_IDProperty(t *testing.T) {
	sameID := func(s string) bool {
		return bytes.Equal(NewRequest(s).ID, NewRequest(s).ID)
	}
	require.NoError(t, quick.Check(sameID, nil))
}

func TestRoundTrip_Property(t *testing.T) {
	roundTrip := func(reqData, respData string) bool {
		if !utf8.ValidString(reqData) || !utf8.ValidString(respData) {
			return true
		}
		req := NewRequest(reqData)
		for _, m := range []Message{req, NewResponse(req.ID, respData)} {
			b, err := Marshal(m)
			if err != nil {
				return false
			}
			decoded, err := Unmarshal(b)
			if err != nil || !Equal(m, decoded) {
				return false
			}
		}
		return true
	}
	require.NoError(t, quick.Check(roundTrip, nil))
}

func TestReadField(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		field []byte
		rest  []byte
		ok    bool
	}{
		{"empty field", []byte{0, 0, 0, 0, 9}, []byte{}, []byte{9}, true},
		{"field and rest", []byte{0, 0, 0, 2, 'h', 'i', 7}, []byte("hi"), []byte{7}, true},
		{"short prefix", []byte{0, 0, 1}, nil, nil, false},
		{"length beyond input", []byte{0, 0, 0, 3, 'h', 'i'}, nil, nil, false},
		{"max length", []byte{0xff, 0xff, 0xff, 0xff}, nil, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := cryptobyte.String(tt.input)
			var field cryptobyte.String
			ok := readField(&s, &field)

			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.field, []byte(field))
				assert.Equal(t, tt.rest, []byte(s))
			}
		})
	}
}

func TestNewRequest(t *testing.T) {
	req := NewRequest("Ping!")

	assert.Equal(t, KindRequest, req.Kind())
	assert.Equal(t, "Ping!", req.Data)
	assert.Equal(t, GenerateID([]byte("Ping!")), req.ID)
	assert.Equal(t, NewRequest("Ping!").ID, req.ID, "identical payloads share an id")
}

func TestNewResponse(t *testing.T) {
	requestID := []byte{1, 2, 3, 4}

	resp := NewResponse(requestID, "Pong!")

	assert.Equal(t, KindResponse, resp.Kind())
	assert.Equal(t, requestID, resp.RequestID)
	assert.Equal(t, "Pong!", resp.Data)
	assert.Equal(t, GenerateID([]byte("Pong!")), resp.ID)

	// the caller's slice is copied, not aliased
	requestID[0] = 9
	assert.Equal(t, byte(1), resp.RequestID[0])
}

func TestResponse_Correlates(t *testing.T) {
	req := NewRequest("Ping!")

	assert.True(t, NewResponse(req.ID, "Pong!").Correlates(req))
	assert.False(t, NewResponse(NewRequest("other").ID, "Pong!").Correlates(req))
	assert.False(t, NewResponse(req.ID, "Pong!").Correlates(nil))
}

func TestMarshal_RequestLayout(t *testing.T) {
	out, err := Marshal(NewRequest("Ping!"))

	require.NoError(t, err)
	assert.Equal(t, encodedPingRequest(), out)
}

func TestMarshal_ResponseLayout(t *testing.T) {
	out, err := Marshal(NewResponse([]byte{7, 7}, "Pong!"))
	require.NoError(t, err)

	require.Equal(t, byte(KindResponse), out[0])
	assert.Equal(t, []byte{0, 0, 0, 32}, out[1:5])
	assert.Equal(t, []byte{0, 0, 0, 2, 7, 7}, out[37:43])
	assert.Equal(t, []byte{0, 0, 0, 5, 'P', 'o', 'n', 'g', '!'}, out[43:])
}

func TestMarshal_Canonical(t *testing.T) {
	a, err := Marshal(NewResponse([]byte("id"), "payload"))
	require.NoError(t, err)
	b, err := Marshal(NewResponse([]byte("id"), "payload"))
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestMarshal_RejectsUnencodable(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{"invalid utf8 request", &Request{ID: []byte{1}, Data: "\xff\xfe"}},
		{"invalid utf8 response", &Response{ID: []byte{1}, Data: "\xc3\x28"}},
		{"nil request", (*Request)(nil)},
		{"nil message", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Marshal(tt.msg)

			var serr *SerializationError
			require.ErrorAs(t, err, &serr)
			assert.Equal(t, SerializationFailed, serr.Kind)
		})
	}
}

func TestRoundTrip(t *testing.T) {
	messages := []Message{
		NewRequest("Ping!"),
		NewRequest(""),
		NewRequest("zero \x00 bytes and ünïcödé ✓"),
		NewResponse(NewRequest("Ping!").ID, "Pong!"),
		NewResponse(nil, ""),
		NewResponse([]byte{0, 0, 0, 0, 0, 0, 0, 8}, string(bytes.Repeat([]byte("x"), 70000))),
	}

	for _, m := range messages {
		out, err := Marshal(m)
		require.NoError(t, err)

		decoded, err := Unmarshal(out)
		require.NoError(t, err)

		assert.Equal(t, m, decoded)
		assert.True(t, Equal(m, decoded))
	}
}

func TestUnmarshal_Request(t *testing.T) {
	m, err := Unmarshal(encodedPingRequest())

	require.NoError(t, err)
	assert.Equal(t, NewRequest("Ping!"), m)
}

func TestUnmarshal_RejectsMalformed(t *testing.T) {
	valid := encodedPingRequest()

	tests := []struct {
		name  string
		input []byte
	}{
		{"empty", nil},
		{"kind only", []byte{0}},
		{"truncated id", []byte{0, 0, 0, 0, 32, 0, 0, 0, 0, 0}},
		{"truncated data", valid[:len(valid)-1]},
		{"trailing byte", append(append([]byte(nil), valid...), 0)},
		{"unknown kind", append([]byte{2}, valid[1:]...)},
		{"request bytes as response", append([]byte{1}, valid[1:]...)},
		{"invalid utf8 data", []byte{0, 0, 0, 0, 0, 0, 0, 0, 1, 0xff}},
		{"length overflows input", []byte{0, 0xff, 0xff, 0xff, 0xff}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Unmarshal(tt.input)

			assert.Nil(t, m)
			var serr *SerializationError
			require.True(t, errors.As(err, &serr))
			assert.Equal(t, DeserializationFailed, serr.Kind)
			assert.Equal(t, []byte(tt.input), nilIfEmpty(serr.Bytes))
		})
	}
}

func nilIfEmpty(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

func FuzzUnmarshal(f *testing.F) {
	f.Add(encodedPingRequest())
	f.Add([]byte{1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		m, err := Unmarshal(data)
		if err != nil {
			return
		}
		// anything accepted must re-encode to the same bytes
		out, err := Marshal(m)
		if err != nil {
			t.Fatalf("re-encode failed: %v", err)
		}
		if !bytes.Equal(out, data) {
			t.Fatalf("encoding is not canonical: %x != %x", out, data)
		}
	})
}
