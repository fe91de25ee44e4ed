package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Nontawatt/OpenMediaTrust/pkg/assertions"
	"github.com/Nontawatt/OpenMediaTrust/pkg/manifest"
)

var (
	createOut     string
	createHashAlg string
	createReq     assertions.CreateRequest
	createClass   string
)

var createCmd = &cobra.Command{
	Use:   "create FILE",
	Short: "Create an unsigned manifest for a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runCreate,
}

func init() {
	f := createCmd.Flags()
	f.StringVarP(&createOut, "out", "o", "", "write the manifest here (default stdout)")
	f.StringVar(&createHashAlg, "hash", string(assertions.SHA256), "content hash algorithm")
	f.StringVar(&createReq.Creator, "creator", "", "creator id or email")
	f.StringVar(&createReq.CreatorName, "creator-name", "", "creator display name")
	f.StringVar(&createReq.Title, "title", "", "asset title (default file name)")
	f.StringVar(&createReq.Format, "format", "", "asset MIME type (default from extension)")
	f.StringVar(&createReq.Department, "department", "", "owning department")
	f.StringVar(&createReq.Project, "project", "", "owning project")
	f.StringVar(&createClass, "classification", "", "public, internal, confidential, secret or top_secret")
	f.StringVar(&createReq.SoftwareAgent, "software-agent", "", "software agent recorded on the action")
	_ = createCmd.MarkFlagRequired("creator")
	rootCmd.AddCommand(createCmd)
}

func runCreate(cmd *cobra.Command, args []string) error {
	class := manifest.Classification(createClass)
	if class != "" && !class.Valid() {
		return fmt.Errorf("unknown classification %q", createClass)
	}
	alg := assertions.HashAlgorithm(createHashAlg)
	if alg.Size() == 0 {
		return fmt.Errorf("%w: %q", assertions.ErrUnsupportedHashAlg, createHashAlg)
	}

	creator := assertions.NewCreator(cfg.Generator, cfg.Organization, cfg.TenantID, assertions.WithHashAlgorithm(alg))
	req := createReq
	req.Path = args[0]
	req.Classification = class

	c, err := creator.Create(req)
	if err != nil {
		return err
	}
	return writeClaim(createOut, c)
}
