/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package archive stores settlement reports in an S3 bucket.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"

	"github.com/blnkfinance/hub/config"
)

var ErrNotConfigured = errors.New("archive bucket is not configured")

type S3Archive struct {
	bucket   string
	uploader s3manageriface.UploaderAPI
}

// New builds an archive from the configuration. Static credentials are used
// when both keys are set, the default AWS chain otherwise. A custom endpoint
// switches to path-style addressing for S3-compatible stores.
func New(conf config.ArchiveConfig) (*S3Archive, error) {
	if conf.S3Bucket == "" {
		return nil, ErrNotConfigured
	}

	awsConf := aws.NewConfig().WithRegion(conf.S3Region)
	if conf.AccessKeyId != "" && conf.SecretAccessKey != "" {
		awsConf = awsConf.WithCredentials(credentials.NewStaticCredentials(conf.AccessKeyId, conf.SecretAccessKey, ""))
	}
	if conf.S3Endpoint != "" {
		awsConf = awsConf.WithEndpoint(conf.S3Endpoint).WithS3ForcePathStyle(true)
	}

	sess, err := session.NewSession(awsConf)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return NewWithUploader(conf.S3Bucket, s3manager.NewUploader(sess)), nil
}

func NewWithUploader(bucket string, uploader s3manageriface.UploaderAPI) *S3Archive {
	return &S3Archive{bucket: bucket, uploader: uploader}
}

// Archive uploads body under key and returns the object's location.
func (a *S3Archive) Archive(ctx context.Context, key string, body []byte) (string, error) {
	out, err := a.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return out.Location, nil
}
