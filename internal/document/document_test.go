package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDocKeyAndString(t *testing.T) {
	d := Doc{ID: "doc-1", Version: 2, SeqNo: 5, Deleted: false}
	assert.Equal(t, "doc-1", d.Key())
	assert.Contains(t, d.String(), "doc-1")
	assert.Contains(t, d.String(), "version=2")
	assert.Contains(t, d.String(), "seqno=5")
}

func TestWriteRequestHasVersionCheck(t *testing.T) {
	cases := []struct {
		name string
		req  WriteRequest
		want bool
	}{
		{"no check", WriteRequest{IfSeqNo: -1, IfPrimaryTerm: -1}, false},
		{"seqno only", WriteRequest{IfSeqNo: 4, IfPrimaryTerm: -1}, false},
		{"both set", WriteRequest{IfSeqNo: 4, IfPrimaryTerm: 1}, true},
		{"both zero", WriteRequest{IfSeqNo: 0, IfPrimaryTerm: 0}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, c.req.HasVersionCheck())
		})
	}
}
