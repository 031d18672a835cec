package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/reid/internal/detect"
	"github.com/kozaktomas/reid/internal/embed"
	"github.com/kozaktomas/reid/internal/session"
	"github.com/kozaktomas/reid/internal/storage"
	"github.com/kozaktomas/reid/internal/video"
)

var processCmd = &cobra.Command{
	Use:   "process [frames-dir]",
	Short: "Process one video session and print the person roster",
	Long: `Process runs the full pipeline over a directory of extracted frames:
person detection, frame-to-frame tracking, face embedding, and matching
against the identity catalogue. When it finishes it prints who was seen
and in how many sessions each person has appeared so far.`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().String("video", "", "Original video file, used for content-hash duplicate detection")
	processCmd.Flags().Bool("allow-duplicate", false, "Process the video even if its content hash was seen before")
	processCmd.Flags().Bool("no-faces", false, "Skip saving face crops to disk")
	processCmd.Flags().String("mode", "detect_identify", "Workflow mode: detect, detect_identify, or detect_identify_payment")
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	b, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	source, err := detect.NewDirSource(args[0])
	if err != nil {
		return err
	}

	var hash string
	if videoPath := mustGetString(cmd, "video"); videoPath != "" {
		hash, err = video.ContentHashFile(videoPath)
		if err != nil {
			return err
		}
		info, err := os.Stat(videoPath)
		if err != nil {
			return fmt.Errorf("stat video: %w", err)
		}
		duplicate, err := b.videos.Register(ctx, &video.OriginalVideo{
			Hash:      hash,
			Filename:  info.Name(),
			SizeBytes: info.Size(),
		})
		if err != nil {
			return err
		}
		if duplicate {
			if !mustGetBool(cmd, "allow-duplicate") {
				return fmt.Errorf("video already processed (hash %s), use --allow-duplicate to force", hash)
			}
			fmt.Printf("Warning: video hash %s was seen before, processing anyway\n", hash)
		}
	}

	var blobs session.BlobStore
	if !mustGetBool(cmd, "no-faces") {
		blobs = storage.NewFileBlobStore(b.cfg.Blob.Dir)
	}

	mode, err := session.ParseMode(mustGetString(cmd, "mode"))
	if err != nil {
		return err
	}

	runner := session.NewRunner(*b.cfg,
		detect.NewClient(b.cfg.Detector.URL),
		embed.NewClient(b.cfg.Embedding.URL),
		b.catalogue, b.store, blobs)
	runner.SetMode(mode)
	if record := b.recordFaces(ctx); record != nil {
		runner.OnFaceSaved(record)
	}

	bar := progressbar.NewOptions(source.Len(),
		progressbar.OptionSetDescription("Processing frames"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("frames"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
	runner.OnProgress(func(int) {
		_ = bar.Add(1)
	})

	result, err := runner.Run(ctx, source, hash)
	fmt.Println()
	if err != nil {
		return err
	}

	printRoster(result)
	return nil
}

func printRoster(result *session.Result) {
	fmt.Printf("Session %s completed (%d frames)\n\n", result.Session.ID, result.Session.FramesProcessed)

	if len(result.Roster) == 0 {
		fmt.Println("Nobody was seen in this session.")
		return
	}

	fmt.Printf("%-40s %-12s %-9s %-6s %s\n", "PERSON", "TYPE", "SESSIONS", "NEW", "SEEN (FRAMES)")
	for _, e := range result.Roster {
		newMark := ""
		if e.NewThisSession {
			newMark = "yes"
		}
		fmt.Printf("%-40s %-12s %-9d %-6s %d-%d\n",
			e.PersonID, e.Type, e.SessionAppearances, newMark, e.FirstSeenFrame, e.LastSeenFrame)
	}

	fmt.Printf("\nUnique persons: %d (%d identified, %d detected only)\n",
		result.Summary.TotalUniquePersons,
		result.Summary.IdentifiedCount,
		result.Summary.DetectedCount)
}
