package cmd

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/markb/pagelift/internal/contents"
	"github.com/markb/pagelift/internal/deploy"
)

var deployCmd = &cobra.Command{
	Use:   "deploy [files...]",
	Short: "Publish files to a repository's GitHub Pages site",
	Long: `Uploads the given files (or a whole directory with --dir) to the target
repository and enables GitHub Pages, printing the site URL.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")
		repo, _ := cmd.Flags().GetString("repo")
		dir, _ := cmd.Flags().GetString("dir")
		message, _ := cmd.Flags().GetString("message")

		if repo == "" {
			return fmt.Errorf("--repo is required")
		}
		if len(args) == 0 && dir == "" {
			return fmt.Errorf("nothing to deploy: pass files or --dir")
		}

		files, err := collectFiles(args, dir, message)
		if err != nil {
			return err
		}

		svc, err := buildService(cmd)
		if err != nil {
			return err
		}
		if err := svc.Initialize(cmd.Context()); err != nil {
			return err
		}

		if owner == "" {
			session, ok := svc.CurrentSession()
			if !ok {
				return deploy.ErrNotAuthenticated
			}
			owner = session.User.Login
		}

		url, err := svc.Deploy(cmd.Context(), owner, repo, files)
		if err != nil {
			return err
		}

		fmt.Printf("Deployed %d file(s).\n", len(files))
		fmt.Printf("Site: %s\n", url)
		return nil
	},
}

func init() {
	deployCmd.Flags().String("owner", "", "repository owner (defaults to the signed-in user)")
	deployCmd.Flags().String("repo", os.Getenv("PAGELIFT_REPO"), "target repository name")
	deployCmd.Flags().String("dir", "", "deploy every file under this directory")
	deployCmd.Flags().String("message", "", "commit message for all uploads")
	rootCmd.AddCommand(deployCmd)
}

// collectFiles turns CLI arguments into file records. Paths inside the
// repository mirror the local layout: bare files land at the root, --dir
// contents keep their relative paths.
func collectFiles(args []string, dir, message string) ([]contents.FileRecord, error) {
	var files []contents.FileRecord

	for _, arg := range args {
		data, err := os.ReadFile(arg)
		if err != nil {
			return nil, err
		}
		files = append(files, contents.FileRecord{
			Path:    filepath.Base(arg),
			Content: string(data),
			Message: message,
		})
	}

	if dir != "" {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			files = append(files, contents.FileRecord{
				Path:    filepath.ToSlash(rel),
				Content: string(data),
				Message: message,
			})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	seen := make(map[string]bool, len(files))
	for _, f := range files {
		if err := f.Validate(); err != nil {
			return nil, err
		}
		// Bare file arguments land at the repository root, so two local
		// files with the same basename would silently overwrite each other.
		if seen[f.Path] {
			return nil, fmt.Errorf("duplicate repository path %q", f.Path)
		}
		seen[f.Path] = true
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no files found")
	}

	// Deterministic upload order keeps deploy logs comparable.
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}
