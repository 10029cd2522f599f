package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/vigil-cam/vigil/internal/config"
	"github.com/vigil-cam/vigil/internal/models"
	"github.com/vigil-cam/vigil/internal/store"
	"github.com/vigil-cam/vigil/internal/surveil"
	"github.com/vigil-cam/vigil/internal/telegram"
	"github.com/vigil-cam/vigil/internal/vision"
)

func newSnapshotCmd() *cobra.Command {
	var (
		configFile string
		outputDir  string
		provider   string
		model      string
		prompt     string
	)

	cmd := &cobra.Command{
		Use:   "snapshot <image>",
		Short: "Analyze a single image instead of the live stream",
		Long: `Feeds one pre-existing image through the same analyze, persist and
notify pipeline the continuous mode uses, then exits.`,
		Example: `  # Analyze one captured frame
  vigil snapshot frame.jpg

  # Use a different provider
  vigil snapshot frame.jpg --provider ollama`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("output-dir") {
				cfg.OutputDir = outputDir
			}
			if flags.Changed("provider") {
				cfg.Provider = provider
			}
			if flags.Changed("model") {
				cfg.Model = model
			}
			if flags.Changed("prompt") {
				cfg.Prompt = prompt
			}
			cfg.Resolve()
			if err := cfg.Validate(false); err != nil {
				return err
			}

			imagePath := args[0]
			jpeg, err := os.ReadFile(imagePath)
			if err != nil {
				return fmt.Errorf("failed to read image: %w", err)
			}
			frame := models.Frame{
				JPEG:       jpeg,
				CapturedAt: time.Now(),
				Source:     "file:" + filepath.Base(imagePath),
			}

			visionProvider, err := vision.NewProvider(cfg.Provider)
			if err != nil {
				return err
			}
			analyzer := vision.New(visionProvider, vision.Options{
				Model:       cfg.Model,
				Temperature: cfg.Temperature,
				Prompt:      cfg.Prompt,
			})

			artifacts, err := store.New(cfg.OutputDir)
			if err != nil {
				return err
			}

			notifier, err := telegram.New(cfg.BotToken, cfg.ChatID)
			if err != nil {
				return err
			}

			loop := surveil.New(nil, analyzer, artifacts, notifier, nil, surveil.Config{})
			res := loop.RunOnce(cmd.Context(), frame)
			if res.StoredKey != "" {
				slog.Info("Snapshot processed", "key", res.StoredKey)
			}
			if res.Outcome != surveil.OutcomeProcessed {
				return fmt.Errorf("snapshot ended %s at %s: %s", res.Outcome, res.FailedStage, res.Reason)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to YAML config file")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "surveillance", "Directory for captured frames and analysis results")
	cmd.Flags().StringVarP(&provider, "provider", "p", "gemini", "Vision provider (gemini, openai, ollama)")
	cmd.Flags().StringVarP(&model, "model", "m", "", "Model name (defaults per provider)")
	cmd.Flags().StringVar(&prompt, "prompt", "", "Override the analysis prompt")

	return cmd
}
