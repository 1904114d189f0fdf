package boxmgr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCoreInfo(t *testing.T) {
	tests := []struct {
		name      string
		out       string
		want      CoreInfo
		wantFound bool
	}{
		{
			name: "full output",
			out: "sing-box version 1.9.3\n\nEnvironment: go1.22.4 linux/amd64\n" +
				"Tags: with_gvisor,with_quic, with_clash_api\nRevision: abc\nCGO: disabled\n",
			want:      CoreInfo{Version: "1.9.3", Tags: []string{"with_gvisor", "with_quic", "with_clash_api"}},
			wantFound: true,
		},
		{
			name:      "crlf and indentation",
			out:       "  sing-box version 1.10.0-beta.1\r\n",
			want:      CoreInfo{Version: "1.10.0-beta.1"},
			wantFound: true,
		},
		{
			name: "not a core",
			out:  "usage: foo [flags]\n",
		},
		{
			name: "empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := parseCoreInfo([]byte(tt.out))
			assert.Equal(t, tt.wantFound, found)
			assert.Equal(t, tt.want, got)
		})
	}
}
