package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/edgekit/facegate/internal/config"
	"github.com/edgekit/facegate/internal/identity"
	"github.com/edgekit/facegate/internal/store"
	_ "github.com/edgekit/facegate/internal/store/mariadb"
	_ "github.com/edgekit/facegate/internal/store/postgres"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the face classifier from enrolled employees",
	Long: `Train the face classifier on every active employee's stored embeddings
and persist the model. A running kiosk picks the model up on its next start,
or immediately via POST /api/v1/train.`,
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)

	trainCmd.Flags().String("output", "", "Model output path (defaults to CLASSIFIER_MODEL_PATH)")
}

func runTrain(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	st, err := store.Open(&cfg.Database)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() { _ = st.Close() }()

	employees, err := st.ListEmployees(context.Background(), false)
	if err != nil {
		return fmt.Errorf("listing employees: %w", err)
	}
	if len(employees) == 0 {
		return errors.New("no active employees to train on")
	}

	bar := progressbar.Default(int64(len(employees)), "collecting embeddings")
	var embeddings [][]float32
	var labels []string
	for _, emp := range employees {
		for _, emb := range emp.Embeddings {
			embeddings = append(embeddings, emb)
			labels = append(labels, emp.Code)
		}
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	if len(embeddings) == 0 {
		return errors.New("employees have no stored embeddings, enroll them first")
	}

	model, err := identity.Train(embeddings, labels)
	if err != nil {
		return fmt.Errorf("training classifier: %w", err)
	}

	output := mustGetString(cmd, "output")
	if output == "" {
		output = cfg.Storage.ClassifierPath
	}
	if err := model.SaveFile(output); err != nil {
		return fmt.Errorf("saving model: %w", err)
	}

	fmt.Printf("Trained on %d embeddings across %d employees\n", len(embeddings), len(model.Labels()))
	fmt.Printf("Model saved to %s\n", output)
	return nil
}
