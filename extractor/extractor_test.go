// Copyright (c) 2026, the cpdeploy contributors
//
// SPDX-License-Identifier: Apache-2.0

package extractor_test

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/mock/gomock"

	"github.com/credprov/cpdeploy/extractor"
	iu "github.com/credprov/cpdeploy/internal/util"
	"github.com/credprov/cpdeploy/metrics"
	"github.com/credprov/cpdeploy/model"
	"github.com/credprov/cpdeploy/model/modelmocks"
)

func TestExtractor(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Extractor")
}

type testEntry struct {
	name  string
	data  []byte
	mtime time.Time
}

func makeZip(path string, entries []testEntry) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	for _, entry := range entries {
		hdr := &zip.FileHeader{
			Name:     entry.name,
			Method:   zip.Deflate,
			Modified: entry.mtime,
		}
		fw, err := w.CreateHeader(hdr)
		Expect(err).ToNot(HaveOccurred())
		_, err = fw.Write(entry.data)
		Expect(err).ToNot(HaveOccurred())
	}

	Expect(w.Close()).To(Succeed())
	Expect(os.WriteFile(path, buf.Bytes(), 0644)).To(Succeed())
}

var _ = Describe("Extractor", func() {
	var (
		mockctl *gomock.Controller
		logger  *modelmocks.MockLogger
		e       *extractor.Extractor
		tempDir string
		archive string
		destDir string
		mtime   time.Time
		err     error
	)

	BeforeEach(func() {
		mockctl = gomock.NewController(GinkgoT())
		logger = modelmocks.NewQuietLogger(mockctl)

		e, err = extractor.New(logger)
		Expect(err).ToNot(HaveOccurred())

		tempDir = GinkgoT().TempDir()
		archive = filepath.Join(tempDir, "CredentialProviderBundle.zip")
		destDir = filepath.Join(tempDir, "dest")
		mtime = time.Now().Add(-time.Hour).Truncate(time.Second)
	})

	AfterEach(func() {
		mockctl.Finish()
	})

	Describe("Extract", func() {
		It("Should only extract entries matching the filters", func() {
			makeZip(archive, []testEntry{
				{name: "a.dll", data: bytes.Repeat([]byte("a"), 100), mtime: mtime},
				{name: "b.txt", data: bytes.Repeat([]byte("b"), 50), mtime: mtime},
			})

			err = e.Extract(context.Background(), archive, destDir, []string{".dll"})
			Expect(err).ToNot(HaveOccurred())

			size, ok := iu.FileSize(filepath.Join(destDir, "a.dll"))
			Expect(ok).To(BeTrue())
			Expect(size).To(Equal(int64(100)))

			Expect(iu.FileExists(filepath.Join(destDir, "b.txt"))).To(BeFalse())
		})

		It("Should extract everything on the wildcard filter", func() {
			makeZip(archive, []testEntry{
				{name: "a.dll", data: []byte("library"), mtime: mtime},
				{name: "b.txt", data: []byte("readme"), mtime: mtime},
			})

			err = e.Extract(context.Background(), archive, destDir, []string{model.FilterAll})
			Expect(err).ToNot(HaveOccurred())

			Expect(iu.FileExists(filepath.Join(destDir, "a.dll"))).To(BeTrue())
			Expect(iu.FileExists(filepath.Join(destDir, "b.txt"))).To(BeTrue())
		})

		It("Should match filters case insensitively", func() {
			makeZip(archive, []testEntry{
				{name: "Provider.DLL", data: []byte("library"), mtime: mtime},
			})

			err = e.Extract(context.Background(), archive, destDir, []string{".dll"})
			Expect(err).ToNot(HaveOccurred())
			Expect(iu.FileExists(filepath.Join(destDir, "Provider.DLL"))).To(BeTrue())
		})

		It("Should preserve entry paths and create parent directories", func() {
			makeZip(archive, []testEntry{
				{name: "x64/provider.dll", data: []byte("library"), mtime: mtime},
			})

			err = e.Extract(context.Background(), archive, destDir, []string{".dll"})
			Expect(err).ToNot(HaveOccurred())
			Expect(iu.FileExists(filepath.Join(destDir, "x64", "provider.dll"))).To(BeTrue())
		})

		It("Should restore the entry modification time", func() {
			makeZip(archive, []testEntry{
				{name: "a.dll", data: []byte("library"), mtime: mtime},
			})

			err = e.Extract(context.Background(), archive, destDir, []string{".dll"})
			Expect(err).ToNot(HaveOccurred())

			stat, err := os.Stat(filepath.Join(destDir, "a.dll"))
			Expect(err).ToNot(HaveOccurred())
			Expect(stat.ModTime()).To(BeTemporally("~", mtime, time.Second))
		})

		It("Should skip entries whose destination is current by length", func() {
			data := []byte("new library bytes")
			makeZip(archive, []testEntry{
				{name: "a.dll", data: data, mtime: mtime},
			})

			// same length, different content, must be left alone
			existing := bytes.Repeat([]byte("x"), len(data))
			Expect(os.MkdirAll(destDir, 0755)).To(Succeed())
			Expect(os.WriteFile(filepath.Join(destDir, "a.dll"), existing, 0644)).To(Succeed())

			err = e.Extract(context.Background(), archive, destDir, []string{".dll"})
			Expect(err).ToNot(HaveOccurred())

			after, err := os.ReadFile(filepath.Join(destDir, "a.dll"))
			Expect(err).ToNot(HaveOccurred())
			Expect(after).To(Equal(existing))
		})

		It("Should overwrite a destination with a differing length", func() {
			data := []byte("new library bytes")
			makeZip(archive, []testEntry{
				{name: "a.dll", data: data, mtime: mtime},
			})

			Expect(os.MkdirAll(destDir, 0755)).To(Succeed())
			Expect(os.WriteFile(filepath.Join(destDir, "a.dll"), []byte("old"), 0644)).To(Succeed())

			err = e.Extract(context.Background(), archive, destDir, []string{".dll"})
			Expect(err).ToNot(HaveOccurred())

			after, err := os.ReadFile(filepath.Join(destDir, "a.dll"))
			Expect(err).ToNot(HaveOccurred())
			Expect(after).To(Equal(data))
		})

		It("Should be a pure skip on the second run", func() {
			makeZip(archive, []testEntry{
				{name: "a.dll", data: []byte("library"), mtime: mtime},
				{name: "b.config", data: []byte("<config/>"), mtime: mtime},
			})

			err = e.Extract(context.Background(), archive, destDir, []string{".dll", ".config"})
			Expect(err).ToNot(HaveOccurred())

			before := testutil.ToFloat64(metrics.FilesSkippedCount.WithLabelValues())

			err = e.Extract(context.Background(), archive, destDir, []string{".dll", ".config"})
			Expect(err).ToNot(HaveOccurred())

			after := testutil.ToFloat64(metrics.FilesSkippedCount.WithLabelValues())
			Expect(after - before).To(Equal(2.0))
		})

		It("Should reject entries escaping the destination", func() {
			makeZip(archive, []testEntry{
				{name: "../evil.dll", data: []byte("nope"), mtime: mtime},
			})

			err = e.Extract(context.Background(), archive, destDir, []string{model.FilterAll})
			Expect(err).To(MatchError(model.ErrUnsafePath))
			Expect(iu.FileExists(filepath.Join(tempDir, "evil.dll"))).To(BeFalse())
		})

		It("Should roll back files written during a failed run", func() {
			makeZip(archive, []testEntry{
				{name: "a.dll", data: []byte("library"), mtime: mtime},
				{name: "b.dll", data: []byte("other"), mtime: mtime},
			})

			// a directory in the way makes writing b.dll fail
			Expect(os.MkdirAll(filepath.Join(destDir, "b.dll"), 0755)).To(Succeed())
			Expect(os.WriteFile(filepath.Join(destDir, "keep.txt"), []byte("previous run"), 0644)).To(Succeed())

			err = e.Extract(context.Background(), archive, destDir, []string{".dll"})
			Expect(err).To(HaveOccurred())

			Expect(iu.FileExists(filepath.Join(destDir, "a.dll"))).To(BeFalse())
			Expect(iu.FileExists(filepath.Join(destDir, "keep.txt"))).To(BeTrue())
		})

		It("Should leave skipped entries untouched by rollback", func() {
			data := []byte("library")
			makeZip(archive, []testEntry{
				{name: "a.dll", data: data, mtime: mtime},
				{name: "b.dll", data: []byte("other"), mtime: mtime},
			})

			existing := bytes.Repeat([]byte("x"), len(data))
			Expect(os.MkdirAll(filepath.Join(destDir, "b.dll"), 0755)).To(Succeed())
			Expect(os.WriteFile(filepath.Join(destDir, "a.dll"), existing, 0644)).To(Succeed())

			err = e.Extract(context.Background(), archive, destDir, []string{".dll"})
			Expect(err).To(HaveOccurred())

			after, err := os.ReadFile(filepath.Join(destDir, "a.dll"))
			Expect(err).ToNot(HaveOccurred())
			Expect(after).To(Equal(existing))
		})

		It("Should stop on cancellation without rolling back", func() {
			makeZip(archive, []testEntry{
				{name: "a.dll", data: []byte("library"), mtime: mtime},
			})

			err = e.Extract(context.Background(), archive, destDir, []string{".dll"})
			Expect(err).ToNot(HaveOccurred())

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			err = e.Extract(ctx, archive, destDir, []string{".dll"})
			Expect(err).To(Equal(context.Canceled))
			Expect(iu.FileExists(filepath.Join(destDir, "a.dll"))).To(BeTrue())
		})

		It("Should error on a missing archive", func() {
			err = e.Extract(context.Background(), filepath.Join(tempDir, "missing.zip"), destDir, []string{".dll"})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("New", func() {
		It("Should require a logger", func() {
			_, err := extractor.New(nil)
			Expect(err).To(MatchError("logger is required"))
		})
	})
})
