package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kasflow/payment-batch/pkg/logger"
)

var downloadDir string

var downloadCmd = &cobra.Command{
	Use:   "download [batch-id] [file-name]",
	Short: "Download a bank file",
	Long:  `Download the generated bank file for a batch and save it locally.`,
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runDownload(args[0], args[1])
	},
}

func init() {
	downloadCmd.Flags().StringVar(&downloadDir, "dir", "", "destination directory (defaults to config)")
}

func runDownload(batchID, fileName string) {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer deps.Service.Close()

	dir := downloadDir
	if dir == "" {
		dir = deps.Config.Download.Dir
	}

	path, err := deps.Service.SaveFile(context.Background(), batchID, fileName, dir)
	if err != nil {
		logger.L().Error("download failed", "error", err, "batch_id", batchID, "file_name", fileName)
		os.Exit(1)
	}

	fmt.Printf("saved %s\n", path)
}
