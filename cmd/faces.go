package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var facesCmd = &cobra.Command{
	Use:   "faces [session-id] [person-id]",
	Short: "List the stored face crops of a person in a session",
	Args:  cobra.ExactArgs(2),
	RunE:  runFaces,
}

func init() {
	rootCmd.AddCommand(facesCmd)
}

func runFaces(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	b, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	if b.faces == nil {
		return errors.New("face crop metadata requires DATABASE_URL")
	}

	images, err := b.faces.ListForPerson(ctx, args[0], args[1])
	if err != nil {
		return fmt.Errorf("listing face images: %w", err)
	}
	if len(images) == 0 {
		fmt.Println("No face crops stored for this person.")
		return nil
	}

	fmt.Printf("%-24s %-8s %s\n", "FILE", "FRAME", "SAVED")
	for _, img := range images {
		fmt.Printf("%-24s %-8d %s\n",
			img.Filename, img.FrameIndex, img.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}
