//go:build e2e

package e2e

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/fsbroker/internal/protocol/fsbroker/types"
	"github.com/marmos91/fsbroker/pkg/client"
)

// runOnAllConfigs runs testFunc against every backend. S3 is included when
// Localstack answers.
func runOnAllConfigs(t *testing.T, testFunc func(t *testing.T, tc *TestContext)) {
	t.Helper()

	configs := AllConfigurations()

	if ls := connectLocalstack(t); ls != nil {
		for _, cfg := range S3Configurations() {
			ls.useBucket(t, cfg)
			configs = append(configs, cfg)
		}
	} else {
		t.Log("Localstack not available, skipping S3 configurations")
	}

	for _, config := range configs {
		t.Run(config.Name, func(t *testing.T) {
			tc := NewTestContext(t, config)
			defer tc.Cleanup()

			testFunc(t, tc)
		})
	}
}

// writeFile creates (or truncates) path and appends data in one request.
func writeFile(t testing.TB, tc *TestContext, path string, data []byte) {
	t.Helper()
	ctx := tc.Context()

	fd, err := tc.Client.Create(ctx, path, types.OpenFlagOverwrite)
	require.NoError(t, err, "create %s", path)
	if len(data) > 0 {
		_, err = tc.Client.Append(ctx, fd, data, true)
		require.NoError(t, err, "append %s", path)
	}
	require.NoError(t, tc.Client.CloseFile(ctx, fd), "close %s", path)
}

// readAll reads path to the end through c with sequential READs.
func readAll(t testing.TB, tc *TestContext, c *client.Client, path string) []byte {
	t.Helper()
	ctx := tc.Context()

	fd, err := c.Open(ctx, path, 0)
	require.NoError(t, err, "open %s", path)
	defer func() { _ = c.CloseFile(ctx, fd) }()

	var out []byte
	for {
		_, data, err := c.Read(ctx, fd, 256*1024)
		require.NoError(t, err, "read %s", path)
		if len(data) == 0 {
			return out
		}
		out = append(out, data...)
	}
}

func clientCode(err error) types.Code {
	return client.CodeOf(err)
}
