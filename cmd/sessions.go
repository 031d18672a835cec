package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/reid/internal/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List processing sessions",
	RunE:  runSessions,
}

var rosterCmd = &cobra.Command{
	Use:   "roster [session-id]",
	Short: "Show the person roster of a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runRoster,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(rosterCmd)
}

func runSessions(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	b, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	sessions, err := b.store.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions found.")
		return nil
	}

	fmt.Printf("%-38s %-12s %-8s %s\n", "SESSION", "STATUS", "FRAMES", "STARTED")
	for _, s := range sessions {
		status := string(s.Status)
		if s.Status == session.StatusFailed {
			status = fmt.Sprintf("%s@%d", s.Status, s.FailedAtFrame)
		}
		fmt.Printf("%-38s %-12s %-8d %s\n",
			s.ID, status, s.FramesProcessed, s.StartedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runRoster(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	b, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	sess, err := b.store.GetSession(ctx, args[0])
	if err != nil {
		return err
	}
	roster, err := b.store.Roster(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("loading roster: %w", err)
	}
	if len(roster) == 0 {
		fmt.Println("Nobody was seen in this session.")
		return nil
	}

	fmt.Printf("%-40s %-12s %-9s %-6s %s\n", "PERSON", "TYPE", "SESSIONS", "NEW", "SEEN (FRAMES)")
	for _, e := range roster {
		newMark := ""
		if e.NewThisSession {
			newMark = "yes"
		}
		fmt.Printf("%-40s %-12s %-9d %-6s %d-%d\n",
			e.PersonID, e.Type, e.SessionAppearances, newMark, e.FirstSeenFrame, e.LastSeenFrame)
	}
	return nil
}
