package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yourusername/shortforge-go/internal/app"
	"github.com/yourusername/shortforge-go/internal/domain"
	"github.com/yourusername/shortforge-go/pkg/logger"
)

// loadLocal loads config and builds the services used by local commands
func loadLocal() (*domain.Config, *app.Services, *zap.Logger) {
	config, err := app.LoadConfig(configPath)
	exitOnError(err)

	log, err := logger.New(logger.Config{
		Level:      config.Logging.Level,
		Format:     config.Logging.Format,
		OutputPath: config.Logging.OutputPath,
	})
	exitOnError(err)

	services, err := app.NewServices(config, log)
	exitOnError(err)
	return config, services, log
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

var generateCmd = &cobra.Command{
	Use:   "generate [topic]",
	Short: "Generate a video locally",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		aspect, _ := cmd.Flags().GetString("aspect")
		tempDir, _ := cmd.Flags().GetString("temp-dir")
		keepAssets, _ := cmd.Flags().GetBool("keep-assets")

		config, services, log := loadLocal()
		defer log.Sync()
		defer services.Close()
		if tempDir != "" {
			config.Download.TempDir = tempDir
		}

		exitOnError(services.FFmpeg.CheckBinaries())

		pipeline, err := services.NewPipeline(domain.AspectRatio(aspect))
		exitOnError(err)

		ctx, cancel := signalContext()
		defer cancel()

		result, err := pipeline.Run(ctx, args[0])
		exitOnError(err)

		if !keepAssets {
			if err := app.CleanupAssets(result.Assets); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
			}
		}

		fmt.Printf("Video generated successfully!\n")
		fmt.Printf("  Title:  %s\n", result.Title)
		fmt.Printf("  Aspect: %s\n", result.AspectRatio)
		fmt.Printf("  Status: %s\n", result.Status)
		fmt.Printf("  Output: %s\n", result.OutputPath)
		if result.PublishedKey != "" {
			fmt.Printf("  Key:    %s\n", result.PublishedKey)
		}
	},
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search stock footage candidates",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		orientation, _ := cmd.Flags().GetString("orientation")
		maxResults, _ := cmd.Flags().GetInt("max")

		config, services, log := loadLocal()
		defer log.Sync()
		if config.Search.APIKey == "" {
			exitOnError(fmt.Errorf("search.api_key is not set (SHORTFORGE_SEARCH_API_KEY)"))
		}
		if !domain.ValidateOrientation(domain.Orientation(orientation)) {
			exitOnError(fmt.Errorf("invalid orientation: %s", orientation))
		}

		ctx, cancel := signalContext()
		defer cancel()

		provider, err := services.NewProvider()
		exitOnError(err)

		candidates, err := provider.Search(ctx, args[0], app.SearchOptions{
			Orientation: domain.Orientation(orientation),
			MaxResults:  maxResults,
		})
		exitOnError(err)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tDURATION\tSIZE\tSCORE\tATTRIBUTION")
		for _, c := range candidates {
			fmt.Fprintf(w, "%d\t%.0fs\t%dx%d\t%.0f\t%s\n",
				c.ID,
				c.Duration,
				c.Width, c.Height,
				domain.QualityScore(c, config.Search.DurationWeight),
				truncate(c.Attribution, 30))
		}
		w.Flush()
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe [file]",
	Short: "Show media information for a file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		_, services, log := loadLocal()
		defer log.Sync()

		info, err := services.FFmpeg.Probe(context.Background(), args[0])
		exitOnError(err)

		fmt.Printf("Media Info:\n")
		fmt.Printf("  Duration: %s\n", info.Duration)
		fmt.Printf("  Size:     %dx%d\n", info.Width, info.Height)
		fmt.Printf("  Codec:    %s\n", info.VideoCodec)
		fmt.Printf("  Audio:    %t\n", info.HasAudio)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a config file with default values",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(args[0]); err == nil && !force {
			exitOnError(fmt.Errorf("%s already exists, use --force to overwrite", args[0]))
		}

		exitOnError(app.SaveConfig(domain.DefaultConfig(), args[0]))
		fmt.Printf("Config written to %s\n", args[0])
	},
}

func init() {
	generateCmd.Flags().StringP("aspect", "a", "", "Aspect ratio (9:16, 16:9, 1:1)")
	generateCmd.Flags().String("temp-dir", "", "Directory for run assets")
	generateCmd.Flags().Bool("keep-assets", false, "Keep downloaded clips and narration")
	searchCmd.Flags().StringP("orientation", "o", string(domain.OrientationPortrait), "Orientation (portrait, landscape, square)")
	searchCmd.Flags().IntP("max", "n", 0, "Maximum results (0 uses search.max_results)")
	configInitCmd.Flags().BoolP("force", "f", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
}
