package boxmgr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestNormalizeConfigControlPlane(t *testing.T) {
	tests := []struct {
		name       string
		doc        string
		wantListen string
		wantSecret string // "*" means generated
	}{
		{
			name:       "no experimental section",
			doc:        `{"inbounds":[]}`,
			wantListen: DefaultControlListen,
			wantSecret: "*",
		},
		{
			name:       "experimental without clash_api",
			doc:        `{"experimental":{"cache_file":{"enabled":true}}}`,
			wantListen: DefaultControlListen,
			wantSecret: "*",
		},
		{
			name:       "experimental not an object",
			doc:        `{"experimental":"nope"}`,
			wantListen: DefaultControlListen,
			wantSecret: "*",
		},
		{
			name:       "clash_api without secret stays open",
			doc:        `{"experimental":{"clash_api":{"external_controller":"127.0.0.1:9999"}}}`,
			wantListen: "127.0.0.1:9999",
			wantSecret: "",
		},
		{
			name:       "empty clash_api gets default listen only",
			doc:        `{"experimental":{"clash_api":{}}}`,
			wantListen: DefaultControlListen,
			wantSecret: "",
		},
		{
			name:       "user secret is kept",
			doc:        `{"experimental":{"clash_api":{"external_controller":"127.0.0.1:9091","secret":"s3cret"}}}`,
			wantListen: "127.0.0.1:9091",
			wantSecret: "s3cret",
		},
		{
			name:       "non string controller replaced",
			doc:        `{"experimental":{"clash_api":{"external_controller":9090}}}`,
			wantListen: DefaultControlListen,
			wantSecret: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, cp, err := normalizeConfig([]byte(tt.doc), DefaultControlListen)
			require.NoError(t, err)

			assert.Equal(t, tt.wantListen, cp.Listen)
			assert.Equal(t, tt.wantListen, gjson.GetBytes(out, pathExternalController).String())

			secret := gjson.GetBytes(out, pathSecret)
			switch tt.wantSecret {
			case "*":
				assert.Len(t, cp.Secret, 32)
				assert.NotContains(t, cp.Secret, "-")
				assert.Equal(t, cp.Secret, secret.String())
			case "":
				assert.Empty(t, cp.Secret)
				assert.False(t, secret.Exists())
			default:
				assert.Equal(t, tt.wantSecret, cp.Secret)
				assert.Equal(t, tt.wantSecret, secret.String())
			}
		})
	}
}

func TestNormalizeConfigLog(t *testing.T) {
	doc := `{"log":{"disabled":true,"level":"info","output":"box.log","timestamp":true}}`

	out, _, err := normalizeConfig([]byte(doc), DefaultControlListen)
	require.NoError(t, err)

	log := gjson.GetBytes(out, pathLog)
	assert.False(t, log.Get("disabled").Exists())
	assert.Equal(t, "stdout", log.Get("output").String())
	assert.Equal(t, gjson.False, log.Get("timestamp").Type)
	assert.Equal(t, "info", log.Get("level").String())
}

func TestNormalizeConfigLeavesInputAlone(t *testing.T) {
	doc := []byte(`{"log":{"disabled":true}}`)
	orig := string(doc)

	_, _, err := normalizeConfig(doc, DefaultControlListen)
	require.NoError(t, err)
	assert.Equal(t, orig, string(doc))

	out, _, err := normalizeConfig([]byte(`{}`), DefaultControlListen)
	require.NoError(t, err)
	assert.False(t, gjson.GetBytes(out, pathLog).Exists(), "absent log section is not created")
}

func TestNormalizeConfigInvalid(t *testing.T) {
	for _, doc := range []string{``, `[]`, `"x"`, `{"a":`, `{"experimental":{"clash_api":{"external_controller":"nohost"}}}`} {
		_, _, err := normalizeConfig([]byte(doc), DefaultControlListen)
		assert.ErrorIs(t, err, ErrInvalidConfig, doc)
	}
}

func TestResolveEndpoint(t *testing.T) {
	tests := []struct {
		listen string
		want   string
	}{
		{"127.0.0.1:9090", "127.0.0.1:9090"},
		{"0.0.0.0:9090", "127.0.0.1:9090"},
		{":9090", "127.0.0.1:9090"},
		{"[::]:9090", "[::1]:9090"},
		{"localhost:80", "localhost:80"},
	}
	for _, tt := range tests {
		got, err := resolveEndpoint(tt.listen)
		require.NoError(t, err, tt.listen)
		assert.Equal(t, tt.want, got)
	}

	_, err := resolveEndpoint("127.0.0.1:")
	assert.Error(t, err)
}
