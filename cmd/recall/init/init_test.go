package initcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	initcmder "github.com/papercomputeco/recall/cmd/recall/init"
	"github.com/papercomputeco/recall/pkg/config"
)

var _ = Describe("Init command", func() {
	var (
		tmpDir  string
		origDir string
		out     *bytes.Buffer
	)

	execute := func(args ...string) error {
		cmd := initcmder.NewInitCmd()
		cmd.SetOut(out)
		cmd.SetArgs(args)
		return cmd.Execute()
	}

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		out = &bytes.Buffer{}

		var err error
		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(tmpDir)).To(Succeed())
	})

	AfterEach(func() {
		Expect(os.Chdir(origDir)).To(Succeed())
	})

	It("creates a local .recall directory", func() {
		Expect(execute()).To(Succeed())
		info, err := os.Stat(filepath.Join(tmpDir, ".recall"))
		Expect(err).NotTo(HaveOccurred())
		Expect(info.IsDir()).To(BeTrue())
	})

	It("is idempotent", func() {
		Expect(execute()).To(Succeed())
		Expect(execute()).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Already initialized"))
	})

	It("writes the keyword preset", func() {
		Expect(execute("--preset", "keyword")).To(Succeed())

		data, err := os.ReadFile(filepath.Join(tmpDir, ".recall", "config.toml"))
		Expect(err).NotTo(HaveOccurred())
		cfg, err := config.ParseConfigTOML(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Vector.Enabled).To(BeFalse())
	})

	It("refuses to overwrite without --force", func() {
		Expect(execute("--preset", "onnx")).To(Succeed())
		Expect(execute("--preset", "ollama")).To(MatchError(ContainSubstring("--force")))
		Expect(execute("--preset", "ollama", "--force")).To(Succeed())
	})

	It("rejects unknown presets", func() {
		Expect(execute("--preset", "openai")).To(MatchError(ContainSubstring("unknown preset")))
	})
})
