// Package workerconfig loads the tier-layout configuration for a
// tiered_worker process.
//
// The host codebase this is adapted from evaluates Jsonnet
// configuration files and unmarshals the result into generated
// Protobuf messages via protojson. This module has no Protobuf
// descriptors of its own to decode into, so it keeps the Jsonnet
// evaluation step but decodes the resulting JSON with the standard
// library's encoding/json into plain Go structs instead.
package workerconfig

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/google/go-jsonnet"

	"github.com/tieredcache/worker/pkg/blockstore"
	"github.com/tieredcache/worker/pkg/util"
)

// DirConfiguration is the JSON/Jsonnet shape of one configured dir.
type DirConfiguration struct {
	Path          string `json:"path"`
	CapacityBytes uint64 `json:"capacityBytes"`
}

// TierConfiguration is the JSON/Jsonnet shape of one configured tier.
type TierConfiguration struct {
	Alias string             `json:"alias"`
	Dirs  []DirConfiguration `json:"dirs"`
}

// S3Configuration names the S3-compatible bucket and credentials used
// for any tier whose dir paths carry the "s3://" scheme prefix.
type S3Configuration struct {
	Bucket          string `json:"bucket"`
	Region          string `json:"region"`
	Endpoint        string `json:"endpoint"`
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
}

// Configuration is the top-level JSON/Jsonnet shape of a
// tiered_worker configuration file: an ordered list of tiers,
// fastest first, plus the metrics listen address.
type Configuration struct {
	Tiers                []TierConfiguration `json:"tiers"`
	MetricsListenAddress string              `json:"metricsListenAddress"`
	MaxScanConcurrency   int64               `json:"maxScanConcurrency"`
	S3                   *S3Configuration    `json:"s3"`
}

// ReadConfigurationFromFile reads a Jsonnet file (or stdin, if path is
// "-"), evaluates it with every environment variable of the current
// process exposed through std.extVar(), and decodes the resulting
// JSON into a Configuration.
func ReadConfigurationFromFile(path string) (*Configuration, error) {
	var jsonnetInput []byte
	var err error
	if path == "-" {
		jsonnetInput, err = io.ReadAll(os.Stdin)
	} else {
		jsonnetInput, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, util.StatusWrapf(err, "failed to read configuration file %q", path)
	}

	vm := jsonnet.MakeVM()
	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			vm.ExtVar(parts[0], parts[1])
		}
	}

	jsonnetOutput, err := vm.EvaluateSnippet(path, string(jsonnetInput))
	if err != nil {
		return nil, util.StatusWrapf(err, "failed to evaluate configuration %q", path)
	}

	var c Configuration
	if err := json.Unmarshal([]byte(jsonnetOutput), &c); err != nil {
		return nil, util.StatusWrapf(err, "failed to unmarshal configuration %q", path)
	}
	return &c, nil
}

// BuildTierLayouts converts the decoded configuration into the plain
// blockstore.TierLayout values BuildTiers consumes.
func (c *Configuration) BuildTierLayouts() []blockstore.TierLayout {
	layouts := make([]blockstore.TierLayout, 0, len(c.Tiers))
	for _, t := range c.Tiers {
		dirs := make([]blockstore.DirLayout, 0, len(t.Dirs))
		for _, d := range t.Dirs {
			dirs = append(dirs, blockstore.DirLayout{Path: d.Path, CapacityBytes: d.CapacityBytes})
		}
		layouts = append(layouts, blockstore.TierLayout{Alias: t.Alias, Dirs: dirs})
	}
	return layouts
}
