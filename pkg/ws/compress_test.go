package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNegotiate(t *testing.T) {
	preferred := []string{EncodingGzip, EncodingDeflate}

	tests := []struct {
		name   string
		accept string
		want   string
	}{
		{name: "gzip only", accept: "gzip", want: EncodingGzip},
		{name: "deflate only", accept: "deflate", want: EncodingDeflate},
		{name: "server order wins", accept: "deflate, gzip", want: EncodingGzip},
		{name: "quality parameters ignored", accept: "deflate;q=1.0, gzip;q=0.5", want: EncodingGzip},
		{name: "case insensitive", accept: "GZIP", want: EncodingGzip},
		{name: "wildcard picks first preference", accept: "*", want: EncodingGzip},
		{name: "unsupported encoding", accept: "br", want: ""},
		{name: "empty header", accept: "", want: ""},
		{name: "surrounding whitespace", accept: "  gzip , br ", want: EncodingGzip},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codec := Negotiate(tt.accept, preferred)
			if tt.want == "" {
				assert.Nil(t, codec)
				return
			}
			require.NotNil(t, codec)
			assert.Equal(t, tt.want, codec.Name())
		})
	}
}

func TestNegotiateNoPreferences(t *testing.T) {
	assert.Nil(t, Negotiate("gzip", nil))
}

func TestNegotiateDeflatePreferred(t *testing.T) {
	codec := Negotiate("gzip, deflate", []string{EncodingDeflate})
	require.NotNil(t, codec)
	assert.Equal(t, EncodingDeflate, codec.Name())
}

func TestCodecRoundTrip(t *testing.T) {
	payload := []byte(`{"route":"user/42/profile","body":"0123456789012345678901234567890123456789"}`)

	for _, name := range DefaultEncodings() {
		t.Run(name, func(t *testing.T) {
			codec, ok := lookupCodec(name)
			require.True(t, ok)

			encoded, err := codec.Encode(payload)
			require.NoError(t, err)
			require.NotEmpty(t, encoded)
			assert.NotEqual(t, payload, encoded)

			decoded, err := codec.Decode(encoded)
			require.NoError(t, err)
			assert.Equal(t, payload, decoded)
		})
	}
}

func TestCodecDecodeGarbage(t *testing.T) {
	for _, name := range DefaultEncodings() {
		t.Run(name, func(t *testing.T) {
			codec, ok := lookupCodec(name)
			require.True(t, ok)

			_, err := codec.Decode([]byte("not a compressed stream"))
			assert.Error(t, err)
		})
	}
}

func TestValidateEncodings(t *testing.T) {
	assert.NoError(t, validateEncodings(nil))
	assert.NoError(t, validateEncodings([]string{EncodingGzip, EncodingDeflate}))

	err := validateEncodings([]string{EncodingGzip, "br"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownEncoding)
}
