package transport

import (
	"io"

	"github.com/pierrec/lz4/v4"
	"google.golang.org/grpc/encoding"
)

// CompressionThresholdBytes is the payload size above which callers should
// set the "lz4" grpc.CallOption compressor; the transport layer itself
// never decides this — it's a per-call choice left to the caller, per the
// framing design.
const CompressionThresholdBytes = 8 << 10

func init() {
	encoding.RegisterCompressor(&lz4Compressor{})
}

// lz4Compressor adapts pierrec/lz4/v4 to grpc's encoding.Compressor
// interface, registered under the name "lz4" so a call can opt in with
// grpc.UseCompressor("lz4").
type lz4Compressor struct{}

func (c *lz4Compressor) Name() string { return "lz4" }

func (c *lz4Compressor) Compress(w io.Writer) (io.WriteCloser, error) {
	zw := lz4.NewWriter(w)
	return zw, nil
}

func (c *lz4Compressor) Decompress(r io.Reader) (io.Reader, error) {
	return lz4.NewReader(r), nil
}
