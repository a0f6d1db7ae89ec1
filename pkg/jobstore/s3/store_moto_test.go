//go:build cloudintegration

package s3

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/3leaps/edison/pkg/jobs"
	"github.com/3leaps/edison/pkg/jobstore/storetest"
	"github.com/3leaps/edison/test/cloudtest"
)

func TestStore_Moto(t *testing.T) {
	cloudtest.SkipIfUnavailable(t)

	storetest.Run(t, func(t *testing.T) jobs.Repository {
		ctx := context.Background()
		set := cloudtest.Settings(cloudtest.CreateBucket(t, ctx), "edison/jobs")
		store, err := New(ctx, Config{
			Bucket:          set.Bucket,
			Prefix:          set.Prefix,
			Region:          set.Region,
			Endpoint:        set.Endpoint,
			AccessKeyID:     set.AccessKeyID,
			SecretAccessKey: set.SecretAccessKey,
			ForcePathStyle:  true,
		})
		require.NoError(t, err)
		return store
	})
}
