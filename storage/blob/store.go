// Copyright 2025 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package blob

import (
	"context"
	"io"
	"net/url"
	"strings"

	"github.com/gorse-io/frame/common/log"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// Store keeps named blobs such as model checkpoints.
type Store interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Create returns a writer whose Close blocks until the blob is persisted.
	Create(ctx context.Context, name string) (io.WriteCloser, error)
	List(ctx context.Context) ([]string, error)
	Remove(ctx context.Context, name string) error
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

type GCSConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
}

type AzureBlobConfig struct {
	ConnectionString string `mapstructure:"connection_string"`
	AccountName      string `mapstructure:"account_name"`
	AccountKey       string `mapstructure:"account_key"`
	Endpoint         string `mapstructure:"endpoint"`
}

// Config holds the credentials of every backend. The backend itself is chosen
// by the scheme of the location.
type Config struct {
	S3    S3Config        `mapstructure:"s3"`
	GCS   GCSConfig       `mapstructure:"gcs"`
	Azure AzureBlobConfig `mapstructure:"azure"`
}

// Open creates a store for a location. Supported locations are local paths,
// file://dir, s3://bucket/prefix, gs://bucket/prefix and azblob://container/prefix.
func Open(location string, cfg Config) (Store, error) {
	if !strings.Contains(location, "://") {
		return NewPOSIX(location), nil
	}
	u, err := url.Parse(location)
	if err != nil {
		return nil, errors.Trace(err)
	}
	prefix := strings.TrimPrefix(u.Path, "/")
	log.Logger().Debug("open blob store", zap.String("location", log.RedactURL(location)))
	switch u.Scheme {
	case "file":
		return NewPOSIX(u.Host + u.Path), nil
	case "s3":
		return NewS3(cfg.S3, u.Host, prefix)
	case "gs":
		return NewGCS(cfg.GCS, u.Host, prefix)
	case "azblob":
		return NewAzureBlob(cfg.Azure, u.Host, prefix)
	default:
		return nil, errors.NotSupportedf("blob store %q", u.Scheme)
	}
}

// Upload writes a blob with the given function.
func Upload(ctx context.Context, store Store, name string, write func(w io.Writer) error) error {
	w, err := store.Create(ctx, name)
	if err != nil {
		return errors.Trace(err)
	}
	if err = write(w); err != nil {
		if a, ok := w.(aborter); ok {
			a.Abort(err)
		} else {
			_ = w.Close()
		}
		return errors.Trace(err)
	}
	return errors.Trace(w.Close())
}

// Download reads a blob with the given function.
func Download(ctx context.Context, store Store, name string, read func(r io.Reader) error) error {
	r, err := store.Open(ctx, name)
	if err != nil {
		return errors.Trace(err)
	}
	defer func() {
		if err := r.Close(); err != nil {
			log.Logger().Error("failed to close blob", zap.String("name", name), zap.Error(err))
		}
	}()
	return errors.Trace(read(r))
}

// aborter discards a blob that failed to be written.
type aborter interface {
	Abort(err error)
}

// pipeWriter streams writes to an upload running in the background.
type pipeWriter struct {
	*io.PipeWriter
	done chan struct{}
	err  error
}

func newPipeWriter(upload func(r io.Reader) error) *pipeWriter {
	pr, pw := io.Pipe()
	w := &pipeWriter{PipeWriter: pw, done: make(chan struct{})}
	go func() {
		defer close(w.done)
		w.err = upload(pr)
		// unblock writers if the upload stopped early
		_ = pr.CloseWithError(w.err)
	}()
	return w
}

func (w *pipeWriter) Close() error {
	if err := w.PipeWriter.Close(); err != nil {
		return errors.Trace(err)
	}
	<-w.done
	return w.err
}

func (w *pipeWriter) Abort(err error) {
	_ = w.PipeWriter.CloseWithError(err)
	<-w.done
}
