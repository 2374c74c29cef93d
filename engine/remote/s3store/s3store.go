/*
Copyright (C) 2026  kvsd contributors

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package s3store implements SPEC_FULL.md §4.11's S3-backed
// engine.GenerationStore, grounded on the teacher's own S3Storage
// (storage/persistence-s3.go): the same aws-sdk-go-v2 config/credentials
// chain, the same "S3 has no append, buffer and PutObject the whole
// object" strategy, the same ForcePathStyle escape hatch for MinIO.
package s3store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/launix-de/kvsd/engine"
)

// Config names the bucket/credentials/endpoint a Store talks to.
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Endpoint        string
	Bucket          string
	Prefix          string
	ForcePathStyle  bool
}

// Store implements engine.GenerationStore against an S3-compatible bucket.
// Every generation is a single object named "<prefix>/<gen>"; the marker is
// "<prefix>/engine".
type Store struct {
	cfg Config

	mu     sync.Mutex
	client *s3.Client
}

func New(cfg Config) *Store {
	return &Store{cfg: cfg}
}

func (s *Store) ensureClient(ctx context.Context) (*s3.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}

	var opts []func(*config.LoadOptions) error
	if s.cfg.Region != "" {
		opts = append(opts, config.WithRegion(s.cfg.Region))
	}
	if s.cfg.AccessKeyID != "" && s.cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.cfg.AccessKeyID, s.cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, engine.ErrIO("loading AWS config", err)
	}

	var s3Opts []func(*s3.Options)
	if s.cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(s.cfg.Endpoint) })
	}
	if s.cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}

	s.client = s3.NewFromConfig(awsCfg, s3Opts...)
	return s.client, nil
}

func (s *Store) key(name string) string {
	prefix := strings.TrimSuffix(s.cfg.Prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

func (s *Store) List(ctx context.Context) ([]uint64, error) {
	client, err := s.ensureClient(ctx)
	if err != nil {
		return nil, err
	}

	prefix := s.key("")
	var gens []uint64
	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.cfg.Bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, engine.ErrIO("listing S3 objects", err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			gen, err := strconv.ParseUint(name, 10, 64)
			if err != nil {
				continue
			}
			gens = append(gens, gen)
		}
	}
	sort.Slice(gens, func(i, j int) bool { return gens[i] < gens[j] })
	return gens, nil
}

func (s *Store) Create(ctx context.Context, gen uint64) (engine.PositionedWriter, error) {
	client, err := s.ensureClient(ctx)
	if err != nil {
		return nil, err
	}
	return &s3Writer{client: client, bucket: s.cfg.Bucket, key: s.key(strconv.FormatUint(gen, 10))}, nil
}

func (s *Store) Open(ctx context.Context, gen uint64) (engine.PositionedReader, error) {
	client, err := s.ensureClient(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(strconv.FormatUint(gen, 10))),
	})
	if err != nil {
		return nil, engine.ErrIO(fmt.Sprintf("fetching generation %d from S3", gen), err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, engine.ErrIO("reading S3 object body", err)
	}
	return &s3Reader{data: data}, nil
}

func (s *Store) Delete(ctx context.Context, gen uint64) error {
	client, err := s.ensureClient(ctx)
	if err != nil {
		return err
	}
	_, err = client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(strconv.FormatUint(gen, 10))),
	})
	if err != nil {
		return engine.ErrIO(fmt.Sprintf("deleting generation %d from S3", gen), err)
	}
	return nil
}

func (s *Store) WriteMarker(name string) error {
	ctx := context.Background()
	client, err := s.ensureClient(ctx)
	if err != nil {
		return err
	}
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key("engine")),
		Body:   strings.NewReader(name),
	})
	if err != nil {
		return engine.ErrIO("writing engine marker to S3", err)
	}
	return nil
}

func (s *Store) ReadMarker() (string, bool, error) {
	ctx := context.Background()
	client, err := s.ensureClient(ctx)
	if err != nil {
		return "", false, err
	}
	resp, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key("engine")),
	})
	if err != nil {
		return "", false, nil
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false, engine.ErrIO("reading engine marker from S3", err)
	}
	return string(data), true, nil
}

var _ engine.GenerationStore = (*Store)(nil)

// s3Writer buffers a whole generation in memory and re-uploads it on every
// Flush, mirroring the teacher's s3WriteCloser: S3 has no append, so each
// Flush is a full PutObject of everything written so far.
type s3Writer struct {
	client *s3.Client
	bucket string
	key    string
	buf    bytes.Buffer
}

func (w *s3Writer) Write(p []byte) (int, error) { return w.buf.Write(p) }
func (w *s3Writer) Pos() uint64                 { return uint64(w.buf.Len()) }

func (w *s3Writer) Flush() error {
	_, err := w.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(w.key),
		Body:   bytes.NewReader(w.buf.Bytes()),
	})
	if err != nil {
		return engine.ErrIO("uploading generation to S3", err)
	}
	return nil
}

func (w *s3Writer) Close() error { return w.Flush() }

// s3Reader serves reads/seeks out of a fully materialized in-memory copy of
// the object, since random-access GetObject-with-Range calls would cost one
// round trip per seek.
type s3Reader struct {
	data []byte
	pos  uint64
}

func (r *s3Reader) Read(p []byte) (int, error) {
	if r.pos >= uint64(len(r.data)) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += uint64(n)
	return n, nil
}

func (r *s3Reader) Seek(pos uint64) error {
	r.pos = pos
	return nil
}

func (r *s3Reader) Pos() uint64  { return r.pos }
func (r *s3Reader) Close() error { return nil }
