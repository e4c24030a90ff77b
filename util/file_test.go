package util_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/netbirdio/appupdate/util"
)

var _ = Describe("Client", func() {

	var (
		tmpDir string
	)

	type TestConfig struct {
		SomeMap   map[string]string
		SomeArray []string
		SomeField int
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "appupdate_util_test_tmp_*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		err := os.RemoveAll(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Config", func() {
		Context("in JSON format", func() {
			It("should be written and read successfully", func() {
				written := &TestConfig{
					SomeMap:   map[string]string{"key1": "value1", "key2": "value2"},
					SomeArray: []string{"value1", "value2"},
					SomeField: 99,
				}

				file := filepath.Join(tmpDir, "nested", "testconfig.json")
				err := util.WriteJson(context.Background(), file, written)
				Expect(err).NotTo(HaveOccurred())

				read, err := util.ReadJson(file, &TestConfig{})
				Expect(err).NotTo(HaveOccurred())
				Expect(read).NotTo(BeNil())
				Expect(read.(*TestConfig).SomeMap["key1"]).To(BeEquivalentTo(written.SomeMap["key1"]))
				Expect(read.(*TestConfig).SomeArray[1]).To(BeEquivalentTo(written.SomeArray[1]))
				Expect(read.(*TestConfig).SomeField).To(BeEquivalentTo(written.SomeField))
			})

			It("should leave no temp files behind", func() {
				file := filepath.Join(tmpDir, "state.json")
				Expect(util.WriteJson(context.Background(), file, &TestConfig{SomeField: 1})).To(Succeed())
				Expect(util.WriteJson(context.Background(), file, &TestConfig{SomeField: 2})).To(Succeed())

				entries, err := os.ReadDir(tmpDir)
				Expect(err).NotTo(HaveOccurred())
				Expect(entries).To(HaveLen(1))
			})

			It("should not write when the context is cancelled", func() {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()

				file := filepath.Join(tmpDir, "cancelled.json")
				err := util.WriteJson(ctx, file, &TestConfig{})
				Expect(err).To(HaveOccurred())
				Expect(file).NotTo(BeAnExistingFile())
			})
		})

		It("should remove a JSON file and tolerate a missing one", func() {
			file := filepath.Join(tmpDir, "remove.json")
			Expect(util.WriteJson(context.Background(), file, &TestConfig{})).To(Succeed())
			Expect(util.RemoveJson(file)).To(Succeed())
			Expect(file).NotTo(BeAnExistingFile())
			Expect(util.RemoveJson(file)).To(Succeed())
		})
	})
})
