package flags

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/tcbot-dev/tchelper/pkg/apis/config/v1"
)

func TestTeamCityFlagsGetClient(t *testing.T) {
	t.Setenv("PRIVATE_TC_TOKEN", "private-secret")
	cfg := &v1.HelperConfig{
		Servers: map[string]v1.ServerConfig{
			"public":  {URL: "https://ci.example.org/"},
			"private": {URL: "http://tc.internal:8111", TokenEnv: "PRIVATE_TC_TOKEN"},
		},
	}

	tests := []struct {
		name      string
		args      []string
		serverID  string
		expectURL string
		expectTok string
		expectErr bool
	}{
		{
			name:      "configured server",
			serverID:  "private",
			expectURL: "http://tc.internal:8111",
			expectTok: "private-secret",
		},
		{
			name:      "selected server from config",
			args:      []string{"--teamcity-token", "t"},
			expectURL: "https://ci.example.org",
			expectTok: "t",
		},
		{
			name:      "url flag wins for selected server",
			args:      []string{"--teamcity-url", "http://localhost:8111"},
			serverID:  "public",
			expectURL: "http://localhost:8111",
		},
		{
			name:      "unknown server",
			serverID:  "nope",
			expectErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEAMCITY_TOKEN", "")
			f := NewTeamCityFlags()
			fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
			f.BindFlags(fs)
			require.NoError(t, fs.Parse(tt.args))

			client, err := f.GetClient(tt.serverID, cfg, nil, NewCacheFlags())
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectURL, client.BaseURL)
			assert.Equal(t, tt.expectTok, client.Token)
		})
	}
}

func TestCacheFlagsWithoutRedis(t *testing.T) {
	f := &CacheFlags{}
	c, err := f.GetCacheClient()
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestGormLogLevel(t *testing.T) {
	var l logLevel
	require.NoError(t, l.Set(LogLevelSilent))
	assert.Equal(t, LogLevelSilent, l.String())
	assert.Error(t, l.Set("verbose"))
}
