package file

import (
	"fmt"
	"path"
	"strings"

	"github.com/relloyd/casepipe/aws/s3"
	c "github.com/relloyd/casepipe/constants"
)

// ObjectStore reads and writes whole objects by key.
// Both S3 buckets and the local filesystem implement it.
type ObjectStore interface {
	s3.Client
}

// Location is a parsed storage path.
// For S3 the Key is relative to the bucket; for local files it is the filesystem path.
type Location struct {
	Scheme string
	Bucket string
	Key    string
}

// ParseLocation accepts s3://bucket/key, file:///path or a plain filesystem path.
func ParseLocation(s string) (Location, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Location{}, fmt.Errorf("empty storage location")
	}
	switch {
	case strings.HasPrefix(s, c.ConnectionTypeS3+"://"):
		b, err := s3.ParseDSN(s, "")
		if err != nil {
			return Location{}, err
		}
		return Location{Scheme: c.ConnectionTypeS3, Bucket: b.Name, Key: b.Prefix}, nil
	case strings.HasPrefix(s, c.ConnectionTypeFile+"://"):
		p := strings.TrimPrefix(s, c.ConnectionTypeFile+"://")
		if p == "" {
			return Location{}, fmt.Errorf("missing path in %q", s)
		}
		return Location{Scheme: c.ConnectionTypeFile, Key: p}, nil
	case strings.Contains(s, "://"):
		return Location{}, fmt.Errorf("unsupported storage scheme in %q", s)
	default:
		return Location{Scheme: c.ConnectionTypeFile, Key: s}, nil
	}
}

// IsDir returns true if the location names a directory, i.e. it ends with a slash or is a bucket root.
func (l Location) IsDir() bool {
	return l.Key == "" || strings.HasSuffix(l.Key, "/")
}

// AsDir returns the location with a trailing slash on the key.
func (l Location) AsDir() Location {
	if !l.IsDir() {
		l.Key = l.Key + "/"
	}
	return l
}

// Join returns the key of name under the directory location.
func (l Location) Join(name string) string {
	if l.Key == "" {
		return name
	}
	return path.Join(l.Key, name)
}

// Contains returns true if o is l or, when l is a directory, o lies beneath it.
// Keys are compared after cleaning, so "out/" contains "./out/csv/".
func (l Location) Contains(o Location) bool {
	if l.Scheme != o.Scheme || l.Bucket != o.Bucket {
		return false
	}
	if l.Key == "" { // if l is a bucket root...
		return true
	}
	lk, ok := path.Clean(l.Key), path.Clean(o.Key)
	if lk == ok {
		return true
	}
	if !l.IsDir() {
		return false
	}
	if lk == "." { // if l is the working directory...
		return !path.IsAbs(ok)
	}
	return strings.HasPrefix(ok, strings.TrimSuffix(lk, "/")+"/")
}

func (l Location) String() string {
	if l.Scheme == c.ConnectionTypeS3 {
		return fmt.Sprintf("s3://%v/%v", l.Bucket, l.Key)
	}
	return l.Key
}

// OpenStore returns the ObjectStore that serves the location.
func OpenStore(l Location, region string) (ObjectStore, error) {
	switch l.Scheme {
	case c.ConnectionTypeS3:
		return s3.NewClient(l.Bucket, region, "")
	case c.ConnectionTypeFile:
		return NewLocalStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage scheme %q", l.Scheme)
	}
}
