package object

import (
	"context"
	"errors"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	pkgerrors "barcode-pipeline/pkg/errors"
)

// AzureBlobStore implements Store against a single Azure Blob Storage
// container, the production object store named in spec.md §6.
type AzureBlobStore struct {
	client    *azblob.Client
	container string
}

// NewAzureBlobStore connects using a connection string if provided, else
// the account URL plus the default Azure credential chain (managed
// identity, environment, workload identity — azidentity's standard
// fallback order).
func NewAzureBlobStore(ctx context.Context, connectionString, accountURL, containerName string) (*AzureBlobStore, error) {
	var client *azblob.Client
	var err error

	switch {
	case connectionString != "":
		client, err = azblob.NewClientFromConnectionString(connectionString, nil)
	case accountURL != "":
		cred, credErr := azidentity.NewDefaultAzureCredential(nil)
		if credErr != nil {
			return nil, pkgerrors.WithKind(pkgerrors.Wrap(credErr, "azure default credential"), pkgerrors.KindFatalConfig)
		}
		client, err = azblob.NewClient(accountURL, cred, nil)
	default:
		return nil, pkgerrors.WithKind(errors.New("azure storage connection string or account URL is required"), pkgerrors.KindFatalConfig)
	}
	if err != nil {
		return nil, pkgerrors.WithKind(pkgerrors.Wrap(err, "azure blob client"), pkgerrors.KindFatalConfig)
	}

	store := &AzureBlobStore{client: client, container: containerName}
	if _, err := client.CreateContainer(ctx, containerName, nil); err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return nil, pkgerrors.WithKind(pkgerrors.Wrap(err, "ensure container"), pkgerrors.KindFatalConfig)
	}
	return store, nil
}

func (s *AzureBlobStore) Put(ctx context.Context, path string, data io.Reader, size int64, metadata map[string]string) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return pkgerrors.WithKind(pkgerrors.Wrap(err, "read upload body"), pkgerrors.KindInputInvalid)
	}
	meta := toPtrMap(metadata)
	_, err = s.client.UploadBuffer(ctx, s.container, path, buf, &azblob.UploadBufferOptions{
		Metadata: meta,
	})
	if err != nil {
		return pkgerrors.WithKind(pkgerrors.Wrapf(err, "put blob %s", path), pkgerrors.KindTransient)
	}
	return nil
}

func (s *AzureBlobStore) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, path, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, pkgerrors.WithKind(pkgerrors.Wrapf(err, "blob %s not found", path), pkgerrors.KindInputInvalid)
		}
		return nil, pkgerrors.WithKind(pkgerrors.Wrapf(err, "get blob %s", path), pkgerrors.KindTransient)
	}
	return resp.Body, nil
}

func (s *AzureBlobStore) Delete(ctx context.Context, path string) error {
	_, err := s.client.DeleteBlob(ctx, s.container, path, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.BlobNotFound) {
		return pkgerrors.WithKind(pkgerrors.Wrapf(err, "delete blob %s", path), pkgerrors.KindTransient)
	}
	return nil
}

func (s *AzureBlobStore) List(ctx context.Context, prefix string) ([]*ObjectInfo, error) {
	var results []*ObjectInfo
	pager := s.client.NewListBlobsFlatPager(s.container, &azblob.ListBlobsFlatOptions{
		Prefix: to.Ptr(prefix),
	})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, pkgerrors.WithKind(pkgerrors.Wrap(err, "list blobs"), pkgerrors.KindTransient)
		}
		for _, item := range page.Segment.BlobItems {
			info := &ObjectInfo{Path: *item.Name}
			if item.Properties != nil {
				if item.Properties.ContentLength != nil {
					info.Size = *item.Properties.ContentLength
				}
				if item.Properties.CreationTime != nil {
					info.CreatedAt = item.Properties.CreationTime.Unix()
				}
			}
			info.Metadata = fromPtrMap(item.Metadata)
			results = append(results, info)
		}
	}
	return results, nil
}

func (s *AzureBlobStore) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.client.ServiceClient().NewContainerClient(s.container).NewBlobClient(path).GetProperties(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return false, nil
		}
		return false, pkgerrors.WithKind(pkgerrors.Wrapf(err, "stat blob %s", path), pkgerrors.KindTransient)
	}
	return true, nil
}

func (s *AzureBlobStore) GetMetadata(ctx context.Context, path string) (map[string]string, error) {
	props, err := s.client.ServiceClient().NewContainerClient(s.container).NewBlobClient(path).GetProperties(ctx, nil)
	if err != nil {
		return nil, pkgerrors.WithKind(pkgerrors.Wrapf(err, "stat blob %s", path), pkgerrors.KindTransient)
	}
	return fromPtrMap(props.Metadata), nil
}

// Move copies src to dst server-side then deletes src. Tolerates being
// called again after a crash: if src is already gone and dst already
// exists, it reports success instead of erroring (spec.md §9).
func (s *AzureBlobStore) Move(ctx context.Context, src, dst string) (bool, error) {
	containerClient := s.client.ServiceClient().NewContainerClient(s.container)
	srcURL := containerClient.NewBlobClient(src).URL()
	dstClient := containerClient.NewBlobClient(dst)

	_, err := dstClient.CopyFromURL(ctx, srcURL, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			if exists, existsErr := s.Exists(ctx, dst); existsErr == nil && exists {
				return false, nil
			}
		}
		return false, pkgerrors.WithKind(pkgerrors.Wrapf(err, "copy %s to %s", src, dst), pkgerrors.KindTransient)
	}

	deleted, err := true, s.Delete(ctx, src)
	if err != nil {
		deleted = false
	}
	return deleted, nil
}

func (s *AzureBlobStore) Close() error {
	return nil
}

func toPtrMap(m map[string]string) map[string]*string {
	if m == nil {
		return nil
	}
	out := make(map[string]*string, len(m))
	for k, v := range m {
		out[k] = to.Ptr(v)
	}
	return out
}

func fromPtrMap(m map[string]*string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if v != nil {
			out[k] = *v
		}
	}
	return out
}
