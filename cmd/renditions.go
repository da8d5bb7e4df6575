package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vidra-dl/vidra/internal/catalog"
	"github.com/vidra-dl/vidra/internal/engine"
	"github.com/vidra-dl/vidra/internal/output"
	"github.com/vidra-dl/vidra/internal/utils"
)

func newRenditionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "renditions [URL]",
		Short: "List available renditions for a URL without downloading",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			resolver := catalog.NewResolver(buildEngine(ctx))
			renditions, err := resolver.Resolve(ctx, args[0])
			if err != nil {
				output.PrintError(fmt.Sprintf("Error resolving %s: %v", args[0], err))
				os.Exit(1)
			}
			printCatalog(args[0], renditions, cfg.AudioLanguage, cfg.SubtitleLanguage, cfg.CodecPreference)
		},
	}
	return cmd
}

func printCatalog(url string, renditions []engine.Rendition, audioLang, subLang string, codecPref []string) {
	output.PrintHeader(fmt.Sprintf("Renditions for %s", url))
	selected := map[string]bool{}
	if sel, err := catalog.AutoSelect(renditions, catalog.SelectPolicy{
		AudioLanguage:    audioLang,
		SubtitleLanguage: subLang,
		CodecPreference:  codecPref,
	}); err == nil {
		for _, id := range sel.IDs() {
			selected[id] = true
		}
	}
	for _, r := range renditions {
		marker := " "
		if selected[r.ID] {
			marker = output.StyleSymbols["arrow"]
		}
		detail := ""
		switch r.Kind {
		case engine.KindVideo:
			detail = fmt.Sprintf("%dp %s", r.Height, r.Codec)
		case engine.KindAudio:
			detail = fmt.Sprintf("%dkbps %s", r.Bitrate, r.Language)
		case engine.KindSubtitle:
			detail = r.Language
		}
		size := "unknown size"
		if r.Size != engine.SizeUnknown {
			size = utils.FormatBytes(uint64(r.Size))
		}
		fmt.Printf("  %s %s %s %s %s %s\n",
			marker,
			output.FDetail(fmt.Sprintf("%-12s", r.ID)),
			output.FInfo(string(r.Kind)),
			detail,
			output.FDebug(r.Container),
			output.FDebug(size))
	}
}
