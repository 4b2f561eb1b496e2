package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/echoshield/echoshield/detect"
	"github.com/echoshield/echoshield/detect/config"
	"github.com/echoshield/echoshield/logging"
	"github.com/echoshield/echoshield/transcode"
)

var (
	configPath string
	methodName string
	verbose    bool
)

func main() {
	root := &cobra.Command{
		Use:   "echoshield",
		Short: "Acoustic drone detection pipeline",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				logging.SetLevel(logging.DebugLevel)
			} else {
				logging.SetLevel(logging.WarnLevel)
			}
		},
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	analyze := &cobra.Command{
		Use:   "analyze <audio-file>",
		Short: "Run drone detection over an audio clip and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnalyze,
	}
	analyze.Flags().StringVarP(&configPath, "config", "c", "", "detection config file (YAML/JSON/TOML)")
	analyze.Flags().StringVarP(&methodName, "method", "m", "", "override detection method")
	root.AddCommand(analyze)

	root.AddCommand(&cobra.Command{
		Use:   "presets",
		Short: "Print the built-in detection configurations as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(config.Presets())
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadFile(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	if methodName != "" {
		cfg.Method = config.Method(methodName)
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	decoder := transcode.NewDecoder(nil)
	audio, err := decoder.DecodeFile(args[0])
	if err != nil {
		return err
	}

	processor, err := detect.NewProcessor(cfg, nil)
	if err != nil {
		return err
	}

	result, err := processor.ProcessAudio(audio)
	if err != nil {
		return err
	}

	return printJSON(result)
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
