package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tieredcache/worker/pkg/blockstore"
	awsutil "github.com/tieredcache/worker/pkg/cloud/aws"
	"github.com/tieredcache/worker/pkg/fileops"
	"github.com/tieredcache/worker/pkg/program"
	"github.com/tieredcache/worker/pkg/util"
	"github.com/tieredcache/worker/pkg/workerconfig"
)

func main() {
	if len(os.Args) != 2 {
		log.Fatal("Usage: tiered_worker worker.jsonnet")
	}

	configuration, err := workerconfig.ReadConfigurationFromFile(os.Args[1])
	if err != nil {
		log.Fatalf("Failed to read configuration from %s: %s", os.Args[1], err)
	}

	tiers := blockstore.BuildTiers(configuration.BuildTierLayouts())
	metadata := blockstore.NewBlockMetadataManager(tiers)

	var s3FileOps *fileops.S3
	if sc := configuration.S3; sc != nil {
		awsConfig, err := awsutil.NewConfigFromConfiguration(context.Background(), &awsutil.SessionConfiguration{
			Region:          sc.Region,
			Endpoint:        sc.Endpoint,
			AccessKeyID:     sc.AccessKeyID,
			SecretAccessKey: sc.SecretAccessKey,
		})
		if err != nil {
			log.Fatal("Failed to construct AWS SDK configuration: ", err)
		}
		s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
			if sc.Endpoint != "" {
				o.BaseEndpoint = &sc.Endpoint
				o.UsePathStyle = true
			}
		})
		s3FileOps = fileops.NewS3(s3Client, sc.Bucket)
	}
	fileOps := fileops.NewMulti(fileops.NewLocal(), s3FileOps)

	maxScanConcurrency := configuration.MaxScanConcurrency
	if maxScanConcurrency < 1 {
		maxScanConcurrency = 4
	}
	discoveredBlockIDs, err := metadata.ScanStartup(context.Background(), fileOps, maxScanConcurrency, util.DefaultErrorLogger)
	if err != nil {
		log.Fatal("Failed to scan storage dirs on startup: ", err)
	}

	locks := blockstore.NewLockManager()
	evictor := blockstore.NewLRUEvictor("tiered_worker")
	store := blockstore.NewTieredBlockStore(metadata, locks, evictor, fileOps, discoveredBlockIDs, util.DefaultErrorLogger)

	program.Run(func(ctx context.Context, siblingsGroup, dependenciesGroup program.Group) error {
		if len(tiers) > 0 {
			siblingsGroup.Go(func(ctx context.Context, siblingsGroup, dependenciesGroup program.Group) error {
				if err := runDemoClient(ctx, store, tiers[0].Alias, uuid.NewRandom); err != nil {
					log.Print("Demo client failed: ", err)
				}
				return nil
			})
		}

		if configuration.MetricsListenAddress != "" {
			dependenciesGroup.Go(func(ctx context.Context, siblingsGroup, dependenciesGroup program.Group) error {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				mux.HandleFunc("/debug/block_store_meta", func(w http.ResponseWriter, r *http.Request) {
					w.Header().Set("Content-Type", "application/json")
					json.NewEncoder(w).Encode(store.GetBlockStoreMeta())
				})
				server := &http.Server{Addr: configuration.MetricsListenAddress, Handler: mux}
				go func() {
					<-ctx.Done()
					server.Close()
				}()
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					return err
				}
				return nil
			})
		}

		<-ctx.Done()
		return nil
	})
}
