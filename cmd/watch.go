package cmd

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/vigil-cam/vigil/internal/camera"
	"github.com/vigil-cam/vigil/internal/config"
	"github.com/vigil-cam/vigil/internal/journal"
	"github.com/vigil-cam/vigil/internal/store"
	"github.com/vigil-cam/vigil/internal/surveil"
	"github.com/vigil-cam/vigil/internal/telegram"
	"github.com/vigil-cam/vigil/internal/vision"
)

func newWatchCmd() *cobra.Command {
	var (
		configFile string
		cameraIP   string
		username   string
		password   string
		port       int
		channel    int
		interval   time.Duration
		duration   time.Duration
		outputDir  string
		journalPth string
		provider   string
		model      string
		prompt     string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run continuous camera surveillance",
		Long: `Captures a frame from the camera on a fixed interval, analyzes it,
stores the frame and analysis locally, and sends both to Telegram.

A cycle failure never stops the loop: capture failures back off and
reconnect, analysis and delivery failures are reported and the next
cycle proceeds.`,
		Example: `  # Capture and analyze a frame every 60 seconds
  vigil watch --camera-ip 192.168.1.130

  # Custom interval with a bounded run and a cycle journal
  vigil watch --camera-ip 192.168.1.130 --interval 30s --duration 2h --journal cycles.parquet`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("camera-ip") {
				cfg.Camera.IP = cameraIP
			}
			if flags.Changed("username") {
				cfg.Camera.Username = username
			}
			if flags.Changed("password") {
				cfg.Camera.Password = password
			}
			if flags.Changed("port") {
				cfg.Camera.Port = port
			}
			if flags.Changed("channel") {
				cfg.Camera.Channel = channel
			}
			if flags.Changed("interval") {
				cfg.Interval = config.Duration(interval)
			}
			if flags.Changed("duration") {
				cfg.Duration = config.Duration(duration)
			}
			if flags.Changed("output-dir") {
				cfg.OutputDir = outputDir
			}
			if flags.Changed("journal") {
				cfg.JournalPath = journalPth
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
			if err := cfg.Validate(true); err != nil {
				return err
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

			src := camera.New(camera.Endpoint{
				IP:       cfg.Camera.IP,
				Username: cfg.Camera.Username,
				Password: cfg.Camera.Password,
				Port:     cfg.Camera.Port,
				Channel:  cfg.Camera.Channel,
			}, camera.Options{})

			var cycleJournal surveil.Journal
			if cfg.JournalPath != "" {
				jw, err := journal.Open(cfg.JournalPath)
				if err != nil {
					return err
				}
				defer func() {
					if err := jw.Close(); err != nil {
						slog.Error("Failed to close cycle journal", "err", err)
					}
				}()
				cycleJournal = jw
			}

			loop := surveil.New(src, analyzer, artifacts, notifier, cycleJournal, surveil.Config{
				Interval: cfg.Interval.Std(),
				Duration: cfg.Duration.Std(),
			})

			slog.Info("Starting surveillance",
				"camera", cfg.Camera.IP,
				"provider", cfg.Provider,
				"model", cfg.Model,
				"interval", cfg.Interval.Std(),
			)
			return loop.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to YAML config file")
	cmd.Flags().StringVar(&cameraIP, "camera-ip", "", "Camera IP address")
	cmd.Flags().StringVar(&username, "username", "", "Camera username")
	cmd.Flags().StringVar(&password, "password", "", "Camera password")
	cmd.Flags().IntVar(&port, "port", 554, "Camera RTSP port")
	cmd.Flags().IntVar(&channel, "channel", 1, "Camera channel number")
	cmd.Flags().DurationVarP(&interval, "interval", "i", 60*time.Second, "Time between captures")
	cmd.Flags().DurationVar(&duration, "duration", 0, "Total surveillance duration (0 = run until interrupted)")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "surveillance", "Directory for captured frames and analysis results")
	cmd.Flags().StringVar(&journalPth, "journal", "", "Path to a parquet journal of cycle outcomes")
	cmd.Flags().StringVarP(&provider, "provider", "p", "gemini", "Vision provider (gemini, openai, ollama)")
	cmd.Flags().StringVarP(&model, "model", "m", "", "Model name (defaults per provider)")
	cmd.Flags().StringVar(&prompt, "prompt", "", "Override the analysis prompt")

	return cmd
}
