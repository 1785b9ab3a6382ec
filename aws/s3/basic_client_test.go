package s3

import (
	"bytes"
	"context"
	"io/ioutil"
	"sort"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	. "github.com/onsi/gomega"
)

// fakeS3 stores objects in a map and pages List results two at a time.
type fakeS3 struct {
	s3iface.S3API
	objects   map[string][]byte
	listCalls int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) sortedKeys() []string {
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (f *fakeS3) ListObjectsWithContext(_ aws.Context, in *s3.ListObjectsInput, _ ...request.Option) (*s3.ListObjectsOutput, error) {
	f.listCalls++
	out := &s3.ListObjectsOutput{IsTruncated: aws.Bool(false)}
	for _, k := range f.sortedKeys() {
		if !strings.HasPrefix(k, aws.StringValue(in.Prefix)) || k <= aws.StringValue(in.Marker) {
			continue
		}
		if len(out.Contents) == 2 {
			out.IsTruncated = aws.Bool(true)
			break
		}
		out.Contents = append(out.Contents, &s3.Object{Key: aws.String(k)})
	}
	return out, nil
}

func (f *fakeS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.StringValue(in.Key)]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "missing", nil)
	}
	return &s3.GetObjectOutput{Body: ioutil.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	data, err := ioutil.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.StringValue(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObjectWithContext(_ aws.Context, in *s3.DeleteObjectInput, _ ...request.Option) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.StringValue(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestListPagesThroughAllKeys(t *testing.T) {
	g := NewGomegaWithT(t)
	api := newFakeS3()
	for _, k := range []string{"in/a.csv", "in/b.csv", "in/c.csv", "in/d.csv", "in/e.csv", "other/x.csv"} {
		api.objects[k] = []byte("x")
	}
	c := NewClientWithAPI("bucket", "", api)
	keys, err := c.List(context.Background(), "in/")
	g.Expect(err).To(BeNil())
	g.Expect(keys).To(Equal([]string{"in/a.csv", "in/b.csv", "in/c.csv", "in/d.csv", "in/e.csv"}))
	g.Expect(api.listCalls).To(Equal(3))
}

func TestClientPrefixIsHiddenFromCallers(t *testing.T) {
	g := NewGomegaWithT(t)
	api := newFakeS3()
	c := NewClientWithAPI("bucket", "root/", api)
	ctx := context.Background()
	g.Expect(c.Put(ctx, "out/file.csv", []byte("hello"))).To(Succeed())
	g.Expect(api.objects).To(HaveKey("root/out/file.csv"))
	keys, err := c.List(ctx, "out/")
	g.Expect(err).To(BeNil())
	g.Expect(keys).To(Equal([]string{"out/file.csv"}))
	data, err := c.Get(ctx, "out/file.csv")
	g.Expect(err).To(BeNil())
	g.Expect(string(data)).To(Equal("hello"))
}

func TestGetMissingKeyReturnsErrKeyNotFound(t *testing.T) {
	c := NewClientWithAPI("bucket", "", newFakeS3())
	_, err := c.Get(context.Background(), "nope")
	if err != ErrKeyNotFound {
		t.Fatalf("expected ErrKeyNotFound; got %v", err)
	}
}

func TestDeletePrefix(t *testing.T) {
	g := NewGomegaWithT(t)
	api := newFakeS3()
	for _, k := range []string{"out/part-00000.csv", "out/old.csv", "out/old2.csv", "keep/x.csv"} {
		api.objects[k] = []byte("x")
	}
	c := NewClientWithAPI("bucket", "", api)
	n, err := c.DeletePrefix(context.Background(), "out/")
	g.Expect(err).To(BeNil())
	g.Expect(n).To(Equal(3))
	g.Expect(api.sortedKeys()).To(Equal([]string{"keep/x.csv"}))
}

func TestParseDSN(t *testing.T) {
	g := NewGomegaWithT(t)
	b, err := ParseDSN("s3://my-bucket/raw/cases/", "eu-west-1")
	g.Expect(err).To(BeNil())
	g.Expect(b.Name).To(Equal("my-bucket"))
	g.Expect(b.Prefix).To(Equal("raw/cases/"))
	g.Expect(b.Region).To(Equal("eu-west-1"))
	g.Expect(b.String()).To(Equal("s3://my-bucket/raw/cases/"))

	b, err = ParseDSN("my-bucket", "")
	g.Expect(err).To(BeNil())
	g.Expect(b.Name).To(Equal("my-bucket"))
	g.Expect(b.Prefix).To(Equal(""))

	_, err = ParseDSN("gs://my-bucket/x", "")
	g.Expect(err).NotTo(BeNil())
}
