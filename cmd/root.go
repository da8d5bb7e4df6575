package cmd

import (
	"context"
	"fmt"
	u "net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vidra-dl/vidra/internal/bus"
	"github.com/vidra-dl/vidra/internal/catalog"
	"github.com/vidra-dl/vidra/internal/config"
	"github.com/vidra-dl/vidra/internal/engine"
	"github.com/vidra-dl/vidra/internal/engine/httpget"
	"github.com/vidra-dl/vidra/internal/engine/s3"
	"github.com/vidra-dl/vidra/internal/engine/ytdlp"
	"github.com/vidra-dl/vidra/internal/manager"
	"github.com/vidra-dl/vidra/internal/output"
	"github.com/vidra-dl/vidra/internal/utils"
)

var (
	outputDir     string
	configPath    string
	workers       int
	audioLang     string
	subLang       string
	videoID       string
	audioID       string
	proxyURL      string
	proxyUsername string
	proxyPassword string
	userAgent     string
	keepPartial   bool
	debug         bool
)

var VidraVersion = "dev"

var rootCmd = &cobra.Command{
	Use:     "vidra [URL...]",
	Short:   "Vidra is a concurrent media download manager",
	Version: VidraVersion,
	Args:    cobra.ArbitraryArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			output.PrintError("No URL provided")
			os.Exit(1)
		}
		for _, arg := range args {
			if _, err := u.Parse(arg); err != nil {
				output.PrintError(fmt.Sprintf("Invalid URL: %s", arg))
				os.Exit(1)
			}
		}
		cfg := loadConfig(cmd)
		var sel *catalog.Selection
		if videoID != "" || audioID != "" {
			sel = &catalog.Selection{VideoID: videoID, AudioID: audioID}
		}
		selections := make([]*catalog.Selection, len(args))
		for i := range selections {
			selections[i] = sel
		}
		if err := runBatch(cfg, args, selections); err != nil {
			fmt.Println()
			output.PrintError("Encountered failed operation(s)")
			os.Exit(1)
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output-dir", "o", "", "Directory for downloaded files")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	rootCmd.PersistentFlags().IntVarP(&workers, "workers", "w", 0, "Number of concurrent downloads")
	rootCmd.PersistentFlags().StringVar(&audioLang, "audio-lang", "", "Preferred audio track language")
	rootCmd.PersistentFlags().StringVar(&subLang, "sub-lang", "", "Subtitle language to fetch (omit for none)")
	rootCmd.PersistentFlags().StringVarP(&proxyURL, "proxy", "p", "", "HTTP/HTTPS proxy URL (e.g., proxy.example.com:8080)")
	rootCmd.PersistentFlags().StringVar(&proxyUsername, "proxy-username", "", "Proxy username (if not provided in proxy URL)")
	rootCmd.PersistentFlags().StringVar(&proxyPassword, "proxy-password", "", "Proxy password (if not provided in proxy URL)")
	rootCmd.PersistentFlags().StringVarP(&userAgent, "user-agent", "a", utils.ToolUserAgent, "User agent for direct HTTP downloads")
	rootCmd.PersistentFlags().BoolVar(&keepPartial, "keep-partial", false, "Keep partial files when a download is cancelled")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.Flags().StringVar(&videoID, "video", "", "Explicit video rendition ID (skips auto-selection)")
	rootCmd.Flags().StringVar(&audioID, "audio", "", "Explicit audio rendition ID (skips auto-selection)")

	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newRenditionsCmd())
}

func loadConfig(cmd *cobra.Command) config.Config {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			output.PrintError(fmt.Sprintf("Error loading config: %v", err))
			os.Exit(1)
		}
		cfg = loaded
	}
	if workers > 0 {
		cfg.Workers = workers
	}
	if outputDir != "" {
		cfg.OutputDir = outputDir
	}
	if cmd.Flags().Changed("audio-lang") {
		cfg.AudioLanguage = audioLang
	}
	if cmd.Flags().Changed("sub-lang") {
		cfg.SubtitleLanguage = subLang
	}
	if keepPartial {
		cfg.KeepPartial = true
	}
	utils.InitLogger(debug)
	cfg.Normalize()
	return cfg
}

// buildEngine assembles the engine router. Sources that cannot initialize
// (missing yt-dlp binary, no AWS config) are skipped so the rest keep working.
func buildEngine(ctx context.Context) *engine.Mux {
	log := utils.GetLogger("engine")
	mux := engine.NewMux()

	parsedProxy, err := u.Parse(proxyURL)
	if err == nil && parsedProxy.User != nil && proxyUsername == "" {
		proxyUsername = parsedProxy.User.Username()
		if password, set := parsedProxy.User.Password(); set {
			proxyPassword = password
		}
		parsedProxy.User = nil
		proxyURL = parsedProxy.String()
	}
	httpCfg := utils.HTTPClientConfig{
		ProxyURL:      proxyURL,
		ProxyUsername: proxyUsername,
		ProxyPassword: proxyPassword,
		UserAgent:     userAgent,
	}

	if s3Engine, err := s3.New(ctx); err != nil {
		log.Debug().Err(err).Msg("S3 source unavailable")
	} else {
		mux.Register(func(url string) bool { return utils.DetectSource(url) == "s3" }, s3Engine)
	}
	mux.Register(func(url string) bool { return utils.DetectSource(url) == "http" }, httpget.New(httpCfg))
	if mediaEngine, err := ytdlp.New(); err != nil {
		log.Debug().Err(err).Msg("Media extractor unavailable")
	} else {
		mux.Register(func(url string) bool { return utils.DetectSource(url) == "media" }, mediaEngine)
	}
	return mux
}

// runBatch submits every URL, renders live progress off the event bus, and
// blocks until all jobs settle. Ctrl-C cancels in-flight jobs; part files
// are removed unless --keep-partial is set.
func runBatch(cfg config.Config, urls []string, selections []*catalog.Selection) error {
	ctx := context.Background()
	mgr := manager.New(cfg, buildEngine(ctx))
	sub := mgr.Subscribe()
	display := output.NewDisplay(cfg.ProgressInterval)

	ids := make(map[string]bool, len(urls))
	for i, url := range urls {
		id, err := mgr.Submit(url, selections[i])
		if err != nil {
			output.PrintError(fmt.Sprintf("Error submitting %s: %v", url, err))
			continue
		}
		ids[id] = true
		if sum, err := mgr.Job(id); err == nil {
			display.Track(sum)
		}
	}
	if len(ids) == 0 {
		return fmt.Errorf("no jobs submitted")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	display.Run()
	failed := false
	remaining := len(ids)
	for remaining > 0 {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				remaining = 0
				break
			}
			display.Observe(ev)
			if !ids[ev.JobID] {
				continue
			}
			switch ev.Kind {
			case bus.EventFailed:
				failed = true
				remaining--
			case bus.EventCompleted, bus.EventCancelled:
				remaining--
			}
		case <-sigCh:
			for id := range ids {
				_ = mgr.Cancel(id)
			}
		}
	}
	display.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := mgr.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if failed {
		return fmt.Errorf("one or more downloads failed")
	}
	return nil
}
