package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"moltbot/internal/config"
	"moltbot/internal/ratelimit"
	"moltbot/internal/suggestions"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show rate limit state and pending suggestions from the data dir",
	RunE:  showStatus,
}

func init() {
	statusCmd.Flags().String("data-dir", "", "state directory")
	_ = viper.BindPFlag("data.dir", statusCmd.Flags().Lookup("data-dir"))

	rootCmd.AddCommand(statusCmd)
}

func showStatus(cmd *cobra.Command, args []string) error {
	// Status reads local files only, so a missing API key is fine here.
	cfg := &config.Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return err
	}

	tracker := ratelimit.NewTracker(cfg.RateLimitPath())
	st := tracker.Status()

	fmt.Printf("Rate limits (reset %s)\n", st.ResetDate)
	fmt.Printf("  Comments: %d/%d used, %d remaining\n", st.Comments.Used, st.Comments.Limit, st.Comments.Remaining)
	if !st.Comments.CanComment {
		fmt.Printf("  Next comment: %s\n", st.Comments.NextAvailable)
	}
	if st.Posts.CanPost {
		fmt.Println("  Posts: available now")
	} else {
		fmt.Printf("  Posts: cooldown, next at %s\n", st.Posts.NextAvailable)
	}
	fmt.Printf("  Last post: %s\n", st.Posts.LastPost)

	store, err := suggestions.NewStore(cfg.SuggestionsPath())
	if err != nil {
		return err
	}
	pending := store.Pending()
	fmt.Printf("\nPending suggestions: %d\n", len(pending))
	for _, s := range pending {
		fmt.Printf("  - %s\n", s.Text)
	}
	return nil
}
