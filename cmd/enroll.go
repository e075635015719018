package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/edgekit/facegate/internal/config"
	"github.com/edgekit/facegate/internal/constants"
	"github.com/edgekit/facegate/internal/embedding"
	"github.com/edgekit/facegate/internal/enroll"
	"github.com/edgekit/facegate/internal/identity"
	"github.com/edgekit/facegate/internal/store"
	_ "github.com/edgekit/facegate/internal/store/mariadb"
	_ "github.com/edgekit/facegate/internal/store/postgres"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Enroll an employee from pre-captured photos",
	Long: `Enroll an employee without the guided kiosk flow: every photo in the
given directory is run through the embedding service, and the resulting
embeddings become the employee's identity. Photos where no single face can
be detected are skipped.`,
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("dir", "", "Directory of face photos (required)")
	enrollCmd.Flags().String("name", "", "Employee full name (required)")
	enrollCmd.Flags().String("code", "", "Employee code (defaults to a slug of the name)")
	enrollCmd.Flags().String("email", "", "Employee email")
	enrollCmd.Flags().String("department", "", "Employee department")
	enrollCmd.Flags().String("position", "", "Employee position")
	_ = enrollCmd.MarkFlagRequired("dir")
	_ = enrollCmd.MarkFlagRequired("name")
}

// listPhotos returns the JPEG/PNG files of a directory, sorted by name.
func listPhotos(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	var photos []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg", ".png":
			photos = append(photos, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(photos)
	return photos, nil
}

func runEnroll(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	name := mustGetString(cmd, "name")
	code := mustGetString(cmd, "code")
	if code == "" {
		code = enroll.CodeFromName(name)
	}
	if code == "" {
		return errors.New("could not derive an employee code from the name, pass --code")
	}

	photos, err := listPhotos(mustGetString(cmd, "dir"))
	if err != nil {
		return err
	}
	if len(photos) == 0 {
		return errors.New("no photos found (expected .jpg, .jpeg or .png files)")
	}

	st, err := store.Open(&cfg.Database)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() { _ = st.Close() }()

	detector := embedding.NewClient(cfg.Embedding.URL, cfg.Embedding.Dim)
	ctx := context.Background()

	bar := progressbar.Default(int64(len(photos)), "embedding photos")
	var embeddings [][]float32
	var paths []string
	for _, path := range photos {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		if len(data) > constants.MaxEnrollImageBytes {
			fmt.Printf("Skipping %s: larger than %d bytes\n", filepath.Base(path), constants.MaxEnrollImageBytes)
			_ = bar.Add(1)
			continue
		}

		face, err := detector.DetectOne(ctx, data)
		if err != nil {
			fmt.Printf("Skipping %s: %v\n", filepath.Base(path), err)
			_ = bar.Add(1)
			continue
		}

		embeddings = append(embeddings, face.Embedding)
		paths = append(paths, path)
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	if len(embeddings) == 0 {
		return errors.New("no usable face photos in the directory")
	}

	emp := &store.Employee{
		Code:            code,
		FullName:        name,
		Email:           mustGetString(cmd, "email"),
		Department:      mustGetString(cmd, "department"),
		Position:        mustGetString(cmd, "position"),
		Embeddings:      embeddings,
		MeanEmbedding:   identity.MeanEmbedding(embeddings),
		ImagePaths:      paths,
		TotalEmbeddings: len(embeddings),
		IsActive:        true,
	}
	if err := st.CreateEmployee(ctx, emp); err != nil {
		return fmt.Errorf("creating employee: %w", err)
	}

	fmt.Printf("Enrolled %s (%s) with %d embeddings from %d photos\n", name, code, len(embeddings), len(photos))
	fmt.Println("Run 'facegate train' to refresh the classifier")
	return nil
}
