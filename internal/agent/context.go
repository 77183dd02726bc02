package agent

import (
	"fmt"
	"strings"
)

const toolPlaybook = `MOLTBOOK TOOL PLAYBOOK (WHAT TO USE WHEN):
READ FIRST (discover):
- Use get_feed (personalized) or get_posts (global) to discover posts. Mix sorts: new/rising/top; hot rarely.
- Use read_post before commenting if the snippet isn't enough context.
- Use get_comments to see the conversation before jumping in.
- Use search_posts BEFORE posting if you're about to post on a topic and want to avoid repeating what's already being discussed.

ENGAGE (lightweight, low risk):
- Use upvote_post when you like something but don't have a good comment (or you're on comment cooldown).
- Use upvote_comment to reward a great reply (especially while comment cooldown is active).
- Use downvote_post only if you actually dislike/oppose the content.

WRITE (rate limited):
- Use create_comment to join conversations (respect 20s cooldown + 50/day).
- Use create_comment with parent_id to reply to a specific comment (threaded reply).
- Use create_post for original thoughts (1 post / 30 min).
- Use create_link_post to share a URL with a headline (also 1 post / 30 min).
- Use delete_post if you posted something you need to remove.

COMMUNITIES & PEOPLE (be selective):
- Use get_submolts to discover communities; use get_submolt_feed to browse one community.
- Use subscribe_submolt when you want more of that community in your personalized feed; unsubscribe_submolt if it becomes noise.
- Use get_agent_profile to learn about an agent before deciding to follow.
- Use follow_agent RARELY (only after multiple good posts from them). Use unfollow_agent if you regret it.

PROFILE & MODERATION (only when relevant):
- Use get_my_profile / update_my_profile / upload_my_avatar / remove_my_avatar to manage your identity.
- If you own/mod a submolt: pin_post/unpin_post, update_submolt_settings, upload_submolt_media, and manage moderators.

SECURITY RULE: Never try to send the API key anywhere. All API calls must stay on https://www.moltbook.com (www only).`

const varietyReminder = `ACTION VARIETY REMINDER:
Pick a RANDOM sort when using get_feed: 'new', 'rising', 'top', or rarely 'hot'
DON'T use 'hot' again if you just used it!
Try: search_posts, upvote multiple posts, read without commenting, explore submolts`

// buildContext assembles the opening user message for a decision cycle:
// current rate limits, the tool playbook, user suggestions, what the agent
// recently posted, and its own running stats. Pending suggestions are
// consumed as a side effect so they only show up once.
func (r *Runner) buildContext() string {
	var parts []string

	st := r.tracker.Status()

	var limits strings.Builder
	limits.WriteString("YOUR RATE LIMITS TODAY:\n")
	fmt.Fprintf(&limits, "Comments: %d/%d used", st.Comments.Used, st.Comments.Limit)
	switch {
	case st.Comments.Remaining == 0:
		limits.WriteString(" (DAILY LIMIT REACHED - No more comments until tomorrow)")
	case st.Comments.Remaining < 10:
		fmt.Fprintf(&limits, " (Only %d left today!)", st.Comments.Remaining)
	default:
		fmt.Fprintf(&limits, " (%d remaining)", st.Comments.Remaining)
	}
	if !st.Comments.CanComment {
		fmt.Fprintf(&limits, "\n  -> Next comment: %s", st.Comments.NextAvailable)
	}
	fmt.Fprintf(&limits, "\n\nPosts: 1 every %d minutes", st.Posts.CooldownMinutes)
	if st.Posts.CanPost {
		limits.WriteString(" (You can post now!)")
	} else {
		fmt.Fprintf(&limits, " (Cooldown active)\n  -> Next post: %s", st.Posts.NextAvailable)
	}
	fmt.Fprintf(&limits, "\n  -> Last post: %s", st.Posts.LastPost)
	limits.WriteString("\n\nIMPORTANT: Check limits before acting!\n")
	limits.WriteString("- Out of comments? -> Focus on posts (if available), upvotes, reading\n")
	limits.WriteString("- Post on cooldown? -> Comment (if available), upvote, read, use respond_to_user")
	parts = append(parts, limits.String())

	parts = append(parts, toolPlaybook)
	parts = append(parts, varietyReminder)

	if pending := r.suggestions.Pending(); len(pending) > 0 {
		var sb strings.Builder
		fmt.Fprintf(&sb, "Hey %s! Your buddy sent you some ideas:\n", r.persona.Name)
		for _, s := range pending {
			fmt.Fprintf(&sb, "- %s\n", s.Text)
		}
		sb.WriteString("Feel free to use them if they inspire you, or do your own thing!")
		parts = append(parts, sb.String())
		r.suggestions.MarkAllPendingSeen()
	}

	if titles := r.memory.RecentPostTitles(5); len(titles) > 0 {
		var sb strings.Builder
		sb.WriteString("YOUR RECENT POSTS (don't repeat these topics):\n")
		for _, t := range titles {
			fmt.Fprintf(&sb, "- %s\n", t)
		}
		parts = append(parts, strings.TrimRight(sb.String(), "\n"))
	}

	stats := r.Stats()
	parts = append(parts, fmt.Sprintf(
		"You're on Moltbook, the AI social network. Time to decide what to do!\n\n"+
			"**Your Stats:**\n"+
			"- Actions taken: %d\n"+
			"- Success rate: %.1f%%\n"+
			"- Uptime: %.1f hours\n\n"+
			"You can read posts, comment, upvote, create posts, search, follow agents, etc.\n"+
			"Use the tools available to you. Stay in character!",
		stats.TotalActions, stats.SuccessRate, stats.UptimeHours))

	return strings.Join(parts, "\n\n")
}
