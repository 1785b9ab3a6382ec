package s3

import (
	"bytes"
	"context"
	"io/ioutil"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pkg/errors"
)

const listPageSize = 1000

// NewClient creates a Client for the bucket using the default AWS credential chain.
// Region may be empty in which case the SDK falls back to the environment.
func NewClient(bucket, region, prefix string) (Client, error) {
	awsConfig := aws.NewConfig()
	if region != "" {
		awsConfig.Region = aws.String(region)
	}
	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, errors.Wrap(err, "error creating AWS session")
	}
	return NewClientWithAPI(bucket, prefix, s3.New(sess)), nil
}

// NewClientWithAPI creates a Client that uses the supplied S3 API.
func NewClientWithAPI(bucket, prefix string, api s3iface.S3API) Client {
	return &basicClient{
		bucket: bucket,
		prefix: prefix,
		api:    api,
	}
}

type basicClient struct {
	bucket string
	prefix string
	api    s3iface.S3API
}

func (s *basicClient) List(ctx context.Context, prefix string) (keys []string, err error) {
	keys = make([]string, 0, listPageSize)
	lastKey := ""
	for {
		params := &s3.ListObjectsInput{
			Bucket:  aws.String(s.bucket),
			Marker:  aws.String(lastKey),
			MaxKeys: aws.Int64(listPageSize),
			Prefix:  aws.String(s.getKeyWithPrefix(prefix)),
		}
		resp, err := s.api.ListObjectsWithContext(ctx, params)
		if err != nil {
			return nil, errors.Wrapf(err, "error listing s3://%v/%v", s.bucket, s.getKeyWithPrefix(prefix))
		}
		for _, v := range resp.Contents {
			keys = append(keys, s.getKeyWithoutPrefix(aws.StringValue(v.Key)))
			lastKey = aws.StringValue(v.Key)
		}
		if !aws.BoolValue(resp.IsTruncated) || len(resp.Contents) == 0 { // if there are no more pages...
			break
		}
	}
	return
}

func (s *basicClient) Get(ctx context.Context, key string) ([]byte, error) {
	res, err := s.api.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.getKeyWithPrefix(key)),
	})
	if err != nil {
		if awsErr, ok := err.(awserr.Error); ok && awsErr.Code() == s3.ErrCodeNoSuchKey {
			return nil, ErrKeyNotFound
		}
		return nil, errors.Wrapf(err, "error fetching s3://%v/%v", s.bucket, s.getKeyWithPrefix(key))
	}
	defer res.Body.Close()
	return ioutil.ReadAll(res.Body)
}

func (s *basicClient) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.api.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.getKeyWithPrefix(key)),
		Body:   bytes.NewReader(data),
	})
	return errors.Wrapf(err, "error writing s3://%v/%v", s.bucket, s.getKeyWithPrefix(key))
}

func (s *basicClient) Delete(ctx context.Context, key string) error {
	_, err := s.api.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.getKeyWithPrefix(key)),
	})
	return errors.Wrapf(err, "error deleting s3://%v/%v", s.bucket, s.getKeyWithPrefix(key))
}

func (s *basicClient) DeletePrefix(ctx context.Context, prefix string) (n int, err error) {
	keys, err := s.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	for _, k := range keys {
		if err = s.Delete(ctx, k); err != nil {
			return n, err
		}
		n++
	}
	return
}

func (s *basicClient) getKeyWithPrefix(key string) string {
	if s.prefix != "" {
		return strings.TrimRight(s.prefix, "/") + "/" + key // ensure trailing slash after prefix.
	}
	return key
}

func (s *basicClient) getKeyWithoutPrefix(key string) string {
	if s.prefix != "" {
		return strings.TrimPrefix(key, strings.TrimRight(s.prefix, "/")+"/")
	}
	return key
}
