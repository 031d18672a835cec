package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var identitiesCmd = &cobra.Command{
	Use:   "identities",
	Short: "List the identity catalogue",
	Long: `Lists every identity in the persistent catalogue together with the number
of distinct sessions it was confirmed in.`,
	RunE: runIdentities,
}

func init() {
	rootCmd.AddCommand(identitiesCmd)
}

func runIdentities(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	b, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	identities, err := b.catalogue.List(ctx)
	if err != nil {
		return fmt.Errorf("listing identities: %w", err)
	}
	if len(identities) == 0 {
		fmt.Println("The catalogue is empty.")
		return nil
	}

	fmt.Printf("%-40s %-9s %-20s %s\n", "IDENTITY", "SESSIONS", "FIRST SEEN", "LAST SEEN")
	for _, id := range identities {
		fmt.Printf("%-40s %-9d %-20s %s\n",
			id.ID, id.SessionCount(),
			id.CreatedAt.Format("2006-01-02 15:04:05"),
			id.LastSeenAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}
