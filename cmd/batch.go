package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vidra-dl/vidra/internal/catalog"
	"github.com/vidra-dl/vidra/internal/output"
)

type BatchEntry struct {
	Link       string `yaml:"link"`
	OutputPath string `yaml:"op,omitempty"`
	Video      string `yaml:"video,omitempty"`
	Audio      string `yaml:"audio,omitempty"`
	Subs       string `yaml:"subs,omitempty"`
	Container  string `yaml:"container,omitempty"`
}

type BatchFile struct {
	Downloads []BatchEntry `yaml:"downloads"`
}

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch [YAML_FILE]",
		Short: "Process multiple downloads from a YAML file",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			data, err := os.ReadFile(args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error reading YAML file: %v\n", err)
				os.Exit(1)
			}
			var batchFile BatchFile
			if err := yaml.Unmarshal(data, &batchFile); err != nil {
				fmt.Fprintf(os.Stderr, "Error parsing YAML file: %v\n", err)
				os.Exit(1)
			}
			urls, selections := buildBatch(batchFile)
			if len(urls) == 0 {
				fmt.Fprintf(os.Stderr, "No valid entries found in the batch file\n")
				os.Exit(1)
			}
			cfg := loadConfig(cmd)
			if err := runBatch(cfg, urls, selections); err != nil {
				fmt.Println()
				output.PrintError("Encountered failed operation(s)")
				os.Exit(1)
			}
		},
	}
	return cmd
}

// buildBatch validates entries and pairs each URL with its selection. An
// entry with no rendition overrides gets a nil selection, meaning automatic
// selection at resolve time.
func buildBatch(batchFile BatchFile) ([]string, []*catalog.Selection) {
	var urls []string
	var selections []*catalog.Selection
	for i, entry := range batchFile.Downloads {
		if entry.Link == "" {
			fmt.Fprintf(os.Stderr, "Warning: Empty link in entry %d, skipping...\n", i+1)
			continue
		}
		urls = append(urls, entry.Link)
		if entry.Video == "" && entry.Audio == "" && entry.Subs == "" &&
			entry.OutputPath == "" && entry.Container == "" {
			selections = append(selections, nil)
			continue
		}
		sel := &catalog.Selection{
			VideoID:    entry.Video,
			AudioID:    entry.Audio,
			Container:  entry.Container,
			OutputPath: entry.OutputPath,
		}
		if entry.Subs != "" {
			sel.SubtitleIDs = []string{"sub-" + entry.Subs}
		}
		selections = append(selections, sel)
	}
	return urls, selections
}
