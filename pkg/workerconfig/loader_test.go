package workerconfig_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tieredcache/worker/pkg/workerconfig"
)

func TestReadConfigurationFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "worker.jsonnet")
	require.NoError(t, os.WriteFile(path, []byte(`{
  tiers: [
    { alias: 'memory', dirs: [{ path: '/tiers/memory/0', capacityBytes: 1073741824 }] },
    { alias: 'ssd', dirs: [{ path: '/tiers/ssd/0', capacityBytes: 10737418240 }] },
  ],
  metricsListenAddress: ':9100',
  maxScanConcurrency: 4,
}`), 0o644))

	c, err := workerconfig.ReadConfigurationFromFile(path)
	require.NoError(t, err)
	require.Len(t, c.Tiers, 2)
	require.Equal(t, "memory", c.Tiers[0].Alias)
	require.Equal(t, uint64(1073741824), c.Tiers[0].Dirs[0].CapacityBytes)
	require.Equal(t, ":9100", c.MetricsListenAddress)

	layouts := c.BuildTierLayouts()
	require.Len(t, layouts, 2)
	require.Equal(t, "ssd", layouts[1].Alias)
	require.Nil(t, c.S3)
}

func TestReadConfigurationFromFileWithS3Tier(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "worker.jsonnet")
	require.NoError(t, os.WriteFile(path, []byte(`{
  tiers: [
    { alias: 'ssd', dirs: [{ path: '/tiers/ssd/0', capacityBytes: 10737418240 }] },
    { alias: 'cold', dirs: [{ path: 's3://blocks', capacityBytes: 107374182400 }] },
  ],
  s3: {
    bucket: 'tiered-worker-blocks',
    region: 'us-east-1',
  },
}`), 0o644))

	c, err := workerconfig.ReadConfigurationFromFile(path)
	require.NoError(t, err)
	require.NotNil(t, c.S3)
	require.Equal(t, "tiered-worker-blocks", c.S3.Bucket)
	require.Equal(t, "us-east-1", c.S3.Region)

	layouts := c.BuildTierLayouts()
	require.Equal(t, "s3://blocks", layouts[1].Dirs[0].Path)
}
