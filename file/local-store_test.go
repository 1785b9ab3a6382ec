package file

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/relloyd/casepipe/aws/s3"
	. "github.com/onsi/gomega"
)

func TestLocalStore(t *testing.T) {
	g := NewGomegaWithT(t)
	ctx := context.Background()
	dir := filepath.ToSlash(t.TempDir())
	s := NewLocalStore()

	g.Expect(s.Put(ctx, dir+"/in/year=2024/month=01/day=02/a.csv", []byte("a"))).To(Succeed())
	g.Expect(s.Put(ctx, dir+"/in/year=2024/month=01/day=03/b.csv", []byte("b"))).To(Succeed())
	g.Expect(s.Put(ctx, dir+"/other/c.csv", []byte("c"))).To(Succeed())

	keys, err := s.List(ctx, dir+"/in/")
	g.Expect(err).To(BeNil())
	g.Expect(keys).To(Equal([]string{
		dir + "/in/year=2024/month=01/day=02/a.csv",
		dir + "/in/year=2024/month=01/day=03/b.csv",
	}))

	keys, err = s.List(ctx, dir+"/oth")
	g.Expect(err).To(BeNil())
	g.Expect(keys).To(Equal([]string{dir + "/other/c.csv"}))

	keys, err = s.List(ctx, dir+"/missing/")
	g.Expect(err).To(BeNil())
	g.Expect(keys).To(BeEmpty())

	data, err := s.Get(ctx, dir+"/other/c.csv")
	g.Expect(err).To(BeNil())
	g.Expect(string(data)).To(Equal("c"))

	_, err = s.Get(ctx, dir+"/nope.csv")
	g.Expect(err).To(Equal(s3.ErrKeyNotFound))

	n, err := s.DeletePrefix(ctx, dir+"/in/")
	g.Expect(err).To(BeNil())
	g.Expect(n).To(Equal(2))
	keys, _ = s.List(ctx, dir+"/in/")
	g.Expect(keys).To(BeEmpty())
}
