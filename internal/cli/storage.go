package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/storagecrypt/internal/common"
	"github.com/dmitrijs2005/storagecrypt/internal/config"
	"github.com/dmitrijs2005/storagecrypt/internal/models"
	"github.com/dmitrijs2005/storagecrypt/internal/remote"
	"github.com/dmitrijs2005/storagecrypt/internal/remote/folderstore"
	"github.com/dmitrijs2005/storagecrypt/internal/remote/s3store"
	"github.com/spf13/afero"
)

// NewStorage builds the backend of a configured account.
func NewStorage(ctx context.Context, ac config.AccountConfig) (remote.Storage, error) {
	switch ac.Type {
	case models.BackendS3:
		return s3store.New(ctx, s3store.Options{
			Bucket:    ac.Bucket,
			Region:    ac.Region,
			Endpoint:  ac.Endpoint,
			AccessKey: ac.AccessKey,
			SecretKey: ac.SecretKey,
			Prefix:    ac.Prefix,
			Quota:     ac.QuotaBytes,
		})
	case models.BackendFolder:
		return folderstore.New(afero.NewOsFs(), ac.Path, ac.QuotaBytes), nil
	}
	return nil, fmt.Errorf("%w: unknown backend %q", common.ErrInvalidConfiguration, ac.Type)
}
