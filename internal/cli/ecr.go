package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/cheynewallace/tabby"
	"github.com/me/omicsx/internal/awsclient"
	"github.com/me/omicsx/internal/nextflow"
	"github.com/me/omicsx/internal/registry"
	"github.com/spf13/cobra"
)

// DefaultManifestFile is where create-ecr-repos writes the image list.
const DefaultManifestFile = "container_image_manifest.json"

type manifestDocument struct {
	Manifest []string `json:"manifest"`
}

func newCreateECRReposCmd() *cobra.Command {
	var (
		dir           string
		manifestFile  string
		configFile    string
		substitutions string
		createECR     bool
		push          bool
		concurrency   int
	)

	cmd := &cobra.Command{
		Use:   "create-ecr-repos",
		Short: "Write the image manifest and omics.config for a workflow and mirror its images into ECR",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			wf, err := nextflow.Scan(dir)
			if err != nil {
				return err
			}
			var subs map[string]string
			if substitutions != "" {
				if subs, err = nextflow.LoadSubstitutions(substitutions); err != nil {
					return err
				}
			}

			images := wf.Manifest(subs)
			if err := writeManifest(manifestFile, images); err != nil {
				return err
			}
			logger.Info("manifest written", "path", manifestFile, "images", len(images))

			c, err := awsClients(ctx)
			if err != nil {
				return err
			}
			account, err := awsclient.AccountID(ctx, c.STS)
			if err != nil {
				return err
			}

			omicsConfig, err := wf.OmicsConfig(account, cfg.Region, cfg.Namespaces, subs)
			if err != nil {
				return err
			}
			if configFile == "" {
				configFile = filepath.Join(dir, "omics.config")
			}
			if err := os.WriteFile(configFile, []byte(omicsConfig), 0o644); err != nil {
				return fmt.Errorf("write omics config: %w", err)
			}
			logger.Info("omics config written", "path", configFile, "processes", len(wf.Processes))

			if createECR {
				var docker registry.ImageClient
				if push {
					if docker, err = c.Docker(); err != nil {
						return err
					}
				}
				results, err := registry.NewMirror(c.ECR, docker, logger).Run(ctx, images, registry.Options{
					Account:     account,
					Region:      cfg.Region,
					Namespaces:  cfg.Namespaces,
					Push:        push,
					Concurrency: concurrency,
				})
				printMirror(cmd, results)
				if err != nil {
					return err
				}
			}

			added, err := nextflow.AppendOmicsInclude(dir)
			if err != nil {
				return err
			}
			if added {
				logger.Info("omics include appended", "path", filepath.Join(dir, "nextflow.config"))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "nf-workflow", "", "Nextflow workflow directory (required)")
	cmd.Flags().StringVar(&manifestFile, "output-manifest-file", DefaultManifestFile, "Where to write the image manifest")
	cmd.Flags().StringVar(&configFile, "output-config-file", "", "Where to write omics.config (default <nf-workflow>/omics.config)")
	cmd.Flags().StringVar(&substitutions, "substitutions", "", "YAML or JSON map of image URI replacements")
	cmd.Flags().BoolVar(&createECR, "create-ecr", true, "Create a private repository for every image")
	cmd.Flags().BoolVar(&push, "push", false, "Pull, tag and push each image with the local docker daemon")
	cmd.Flags().IntVar(&concurrency, "concurrency", registry.DefaultConcurrency, "Parallel repository setup calls")
	cmd.MarkFlagRequired("nf-workflow")

	return cmd
}

func writeManifest(path string, images []string) error {
	if images == nil {
		images = []string{}
	}
	data, err := json.MarshalIndent(manifestDocument{Manifest: images}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

func printMirror(cmd *cobra.Command, results []registry.Result) {
	if len(results) == 0 {
		return
	}
	t := tabby.NewCustom(tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0))
	t.AddHeader("SOURCE", "REPOSITORY", "CREATED", "PUSHED", "ERROR")
	for _, r := range results {
		t.AddLine(r.Source, r.Repository, r.Created, r.Pushed, r.Error)
	}
	t.Print()
}
