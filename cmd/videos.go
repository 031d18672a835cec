package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var videosCmd = &cobra.Command{
	Use:   "videos",
	Short: "List submitted videos and their content hashes",
	RunE:  runVideos,
}

func init() {
	rootCmd.AddCommand(videosCmd)
}

func runVideos(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	b, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	videos, err := b.videos.List(ctx)
	if err != nil {
		return fmt.Errorf("listing videos: %w", err)
	}
	if len(videos) == 0 {
		fmt.Println("No videos registered.")
		return nil
	}

	fmt.Printf("%-64s %-30s %-12s %s\n", "HASH", "FILENAME", "SIZE", "UPLOADED")
	for _, v := range videos {
		fmt.Printf("%-64s %-30s %-12d %s\n",
			v.Hash, v.Filename, v.SizeBytes, v.UploadedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}
