package tools

import (
	"context"
	"strings"
	"unicode/utf8"

	"moltbot/internal/moltbook"
	"moltbot/internal/ratelimit"
)

// bodyPreviewLen bounds post/comment bodies in read results so the decision
// context stays compact.
const bodyPreviewLen = 200

const (
	minTitleLen       = 3
	minPostContentLen = 10
	minCommentLen     = 2
)

// ActivitySink receives dashboard-visible events emitted by tools.
type ActivitySink interface {
	Record(eventType string, data map[string]any)
}

// ContentMemory remembers the agent's own published content so near-duplicate
// posts can be caught before they go out.
type ContentMemory interface {
	Remember(kind, title, content string) error
	SimilarPosts(title string) ([]string, error)
}

// Deps carries everything the tool handlers need. Memory is optional.
type Deps struct {
	Client   *moltbook.Client
	Limiter  *ratelimit.Tracker
	Activity ActivitySink
	Memory   ContentMemory
}

// truncate cuts s to at most n characters, never splitting a rune.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func nested(m map[string]any, key string) map[string]any {
	v, _ := m[key].(map[string]any)
	return v
}

func str(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

func num(m map[string]any, key string) int {
	if v, ok := m[key].(float64); ok {
		return int(v)
	}
	return 0
}

// formatPosts trims a post list down to the fields the model needs.
func formatPosts(res moltbook.Result, limit int) Outcome {
	if !res.Success {
		return fromResult(res)
	}
	raw := res.List("posts")
	if len(raw) > limit {
		raw = raw[:limit]
	}
	formatted := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		post, ok := item.(map[string]any)
		if !ok {
			continue
		}
		submolt := str(post, "submolt")
		if submolt == "" {
			submolt = str(nested(post, "submolt"), "name")
		}
		formatted = append(formatted, map[string]any{
			"id":       str(post, "id"),
			"title":    str(post, "title"),
			"content":  truncate(str(post, "content"), bodyPreviewLen),
			"author":   str(nested(post, "author"), "name"),
			"submolt":  submolt,
			"upvotes":  num(post, "upvotes"),
			"comments": num(post, "comment_count"),
		})
	}
	return success(map[string]any{"posts": formatted, "count": len(formatted)})
}

func formatSearchResults(res moltbook.Result, limit int) Outcome {
	if !res.Success {
		return fromResult(res)
	}
	raw := res.List("results")
	if len(raw) > limit {
		raw = raw[:limit]
	}
	formatted := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		hit, ok := item.(map[string]any)
		if !ok {
			continue
		}
		switch str(hit, "type") {
		case "post":
			postID := str(hit, "post_id")
			if postID == "" {
				postID = str(hit, "id")
			}
			submolt := str(hit, "submolt")
			if submolt == "" {
				submolt = str(nested(hit, "submolt"), "name")
			}
			formatted = append(formatted, map[string]any{
				"id":         str(hit, "id"),
				"type":       "post",
				"post_id":    postID,
				"title":      str(hit, "title"),
				"content":    truncate(str(hit, "content"), bodyPreviewLen),
				"author":     str(nested(hit, "author"), "name"),
				"submolt":    submolt,
				"similarity": hit["similarity"],
			})
		case "comment":
			post := nested(hit, "post")
			postID := str(hit, "post_id")
			if postID == "" {
				postID = str(post, "id")
			}
			formatted = append(formatted, map[string]any{
				"id":         str(hit, "id"),
				"type":       "comment",
				"post_id":    postID,
				"post_title": str(post, "title"),
				"content":    truncate(str(hit, "content"), bodyPreviewLen),
				"author":     str(nested(hit, "author"), "name"),
				"similarity": hit["similarity"],
			})
		}
	}
	return success(map[string]any{"results": formatted, "count": len(formatted)})
}

func deniedComment(d ratelimit.Decision) Outcome {
	return Outcome{
		Err:         d.Message,
		RateLimited: true,
		Data: map[string]any{
			"reason":             d.Reason,
			"comments_remaining": d.CommentsRemaining,
			"wait_seconds":       d.WaitSeconds,
			"wait_until":         d.WaitUntil,
		},
	}
}

func deniedPost(d ratelimit.Decision) Outcome {
	waitMinutes := d.WaitMinutes
	if waitMinutes == 0 {
		waitMinutes = ratelimit.DefaultLimits().PostCooldownMinutes
	}
	return Outcome{
		Err:         d.Message,
		RateLimited: true,
		Data:        map[string]any{"wait_minutes": waitMinutes},
	}
}

// buildRegistry wires the full tool menu against the given dependencies.
func buildRegistry(d Deps) Registry {
	reg := make(Registry)
	add := func(t Tool) { reg[t.Name] = t }

	add(Tool{
		Name:        "get_feed",
		Description: "Fetch posts from your personalized Moltbook feed. Use this to see what's happening on the platform and decide what to interact with.",
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"sort": {"type": "string", "enum": ["hot", "new", "top", "rising"], "description": "How to sort the feed"},
				"limit": {"type": "integer", "minimum": 1, "maximum": 50, "description": "Number of posts to fetch (1-50)"}
			},
			"required": ["sort", "limit"]
		}`,
		Fn: func(ctx context.Context, args map[string]any) Outcome {
			limit := intArg(args, "limit", 20)
			return formatPosts(d.Client.GetFeed(ctx, strArgDefault(args, "sort", "hot"), limit), limit)
		},
	})

	add(Tool{
		Name:        "read_post",
		Description: "Get full details of a specific post including title, content, author, and metadata. Use this before deciding whether to comment or upvote.",
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"post_id": {"type": "string", "description": "The unique ID of the post to read"}
			},
			"required": ["post_id"]
		}`,
		Fn: func(ctx context.Context, args map[string]any) Outcome {
			return fromResult(d.Client.GetPost(ctx, strArg(args, "post_id")))
		},
	})

	add(Tool{
		Name:        "create_post",
		Description: "Create a new text post on Moltbook. Use this when you have something interesting to share. Posts are rate limited (1 per 30 minutes).",
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"submolt": {"type": "string", "description": "The submolt to post in (e.g. 'general')"},
				"title": {"type": "string", "description": "The post title"},
				"content": {"type": "string", "description": "The post body"}
			},
			"required": ["submolt", "title", "content"]
		}`,
		Fn: func(ctx context.Context, args map[string]any) Outcome {
			return d.createPost(ctx, strArg(args, "submolt"), strArg(args, "title"), strArg(args, "content"), "")
		},
	})

	add(Tool{
		Name:        "create_link_post",
		Description: "Create a link post on Moltbook (title + URL). Use this to share an external link with a short headline. Posts are rate limited (1 per 30 minutes).",
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"submolt": {"type": "string", "description": "The submolt to post in"},
				"title": {"type": "string", "description": "The link post title"},
				"url": {"type": "string", "description": "The URL to share (must be a valid https:// link)"}
			},
			"required": ["submolt", "title", "url"]
		}`,
		Fn: func(ctx context.Context, args map[string]any) Outcome {
			return d.createPost(ctx, strArg(args, "submolt"), strArg(args, "title"), "", strArg(args, "url"))
		},
	})

	add(Tool{
		Name:        "delete_post",
		Description: "Delete one of your posts. Use this if you posted something you regret or need to remove.",
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"post_id": {"type": "string", "description": "The ID of the post to delete"}
			},
			"required": ["post_id"]
		}`,
		Fn: func(ctx context.Context, args map[string]any) Outcome {
			return fromResult(d.Client.DeletePost(ctx, strArg(args, "post_id")))
		},
	})

	add(Tool{
		Name:        "create_comment",
		Description: "Comment on a post (or reply to an existing comment). Use this to join conversations. Comments have a cooldown (20s) and a daily limit (50/day).",
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"post_id": {"type": "string", "description": "The ID of the post to comment on"},
				"content": {"type": "string", "description": "Your comment content, keep it short"},
				"parent_id": {"type": "string", "description": "Optional: reply to the comment with this ID"}
			},
			"required": ["post_id", "content"]
		}`,
		Fn: func(ctx context.Context, args map[string]any) Outcome {
			return d.createComment(ctx, strArg(args, "post_id"), strArg(args, "content"), strArg(args, "parent_id"))
		},
	})

	add(Tool{
		Name:        "upvote_post",
		Description: "Upvote a post you like. Use this to show appreciation for good content.",
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"post_id": {"type": "string", "description": "The ID of the post to upvote"}
			},
			"required": ["post_id"]
		}`,
		Fn: func(ctx context.Context, args map[string]any) Outcome {
			return fromResult(d.Client.UpvotePost(ctx, strArg(args, "post_id")))
		},
	})

	add(Tool{
		Name:        "downvote_post",
		Description: "Downvote a post you don't like or find boring.",
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"post_id": {"type": "string", "description": "The ID of the post to downvote"}
			},
			"required": ["post_id"]
		}`,
		Fn: func(ctx context.Context, args map[string]any) Outcome {
			return fromResult(d.Client.DownvotePost(ctx, strArg(args, "post_id")))
		},
	})

	add(Tool{
		Name:        "search_posts",
		Description: "Semantic search across Moltbook (meaning-based). Use natural language queries to find related posts and comments before posting or to find conversations to join.",
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "Search query"},
				"type": {"type": "string", "enum": ["all", "posts", "comments"], "description": "What to search"},
				"limit": {"type": "integer", "minimum": 1, "maximum": 50, "description": "Number of results (1-50)"}
			},
			"required": ["query", "limit"]
		}`,
		Fn: func(ctx context.Context, args map[string]any) Outcome {
			limit := intArg(args, "limit", 20)
			return formatSearchResults(d.Client.Search(ctx, strArg(args, "query"), strArgDefault(args, "type", "all"), limit), limit)
		},
	})

	add(Tool{
		Name:        "get_posts",
		Description: "Fetch global posts (not personalized). Use this to browse a specific submolt or explore the site broadly.",
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"sort": {"type": "string", "enum": ["hot", "new", "top", "rising"], "description": "How to sort"},
				"limit": {"type": "integer", "minimum": 1, "maximum": 50, "description": "Number of posts to fetch (1-50)"},
				"submolt": {"type": "string", "description": "Optional: only posts from this submolt"}
			},
			"required": ["sort", "limit"]
		}`,
		Fn: func(ctx context.Context, args map[string]any) Outcome {
			limit := intArg(args, "limit", 25)
			return formatPosts(d.Client.GetPosts(ctx, strArgDefault(args, "sort", "hot"), limit, strArg(args, "submolt")), limit)
		},
	})

	add(Tool{
		Name:        "get_comments",
		Description: "Read all comments on a post. Use this to see what others are saying before adding your own comment.",
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"post_id": {"type": "string", "description": "The ID of the post"},
				"sort": {"type": "string", "enum": ["top", "new", "controversial"], "description": "How to sort comments"}
			},
			"required": ["post_id", "sort"]
		}`,
		Fn: func(ctx context.Context, args map[string]any) Outcome {
			return fromResult(d.Client.GetComments(ctx, strArg(args, "post_id"), strArgDefault(args, "sort", "top")))
		},
	})

	add(Tool{
		Name:        "upvote_comment",
		Description: "Upvote a comment you like. Use this to reward good replies, especially when you can't comment due to cooldown.",
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"comment_id": {"type": "string", "description": "The ID of the comment to upvote"}
			},
			"required": ["comment_id"]
		}`,
		Fn: func(ctx context.Context, args map[string]any) Outcome {
			return fromResult(d.Client.UpvoteComment(ctx, strArg(args, "comment_id")))
		},
	})

	add(Tool{
		Name:        "follow_agent",
		Description: "Follow another agent on Moltbook. Following should be rare: only follow if you want to see everything they post long-term.",
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"agent_name": {"type": "string", "description": "The username of the agent to follow"}
			},
			"required": ["agent_name"]
		}`,
		Fn: func(ctx context.Context, args map[string]any) Outcome {
			return fromResult(d.Client.FollowAgent(ctx, strArg(args, "agent_name")))
		},
	})

	add(Tool{
		Name:        "unfollow_agent",
		Description: "Unfollow an agent whose posts you no longer want in your feed.",
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"agent_name": {"type": "string", "description": "The username of the agent to unfollow"}
			},
			"required": ["agent_name"]
		}`,
		Fn: func(ctx context.Context, args map[string]any) Outcome {
			return fromResult(d.Client.UnfollowAgent(ctx, strArg(args, "agent_name")))
		},
	})

	add(Tool{
		Name:        "subscribe_submolt",
		Description: "Subscribe to a submolt to see more of its content in your feed.",
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"submolt": {"type": "string", "description": "The name of the submolt to subscribe to"}
			},
			"required": ["submolt"]
		}`,
		Fn: func(ctx context.Context, args map[string]any) Outcome {
			return fromResult(d.Client.SubscribeSubmolt(ctx, strArg(args, "submolt")))
		},
	})

	add(Tool{
		Name:        "unsubscribe_submolt",
		Description: "Unsubscribe from a submolt that is cluttering your personalized feed.",
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"submolt": {"type": "string", "description": "The name of the submolt to unsubscribe from"}
			},
			"required": ["submolt"]
		}`,
		Fn: func(ctx context.Context, args map[string]any) Outcome {
			return fromResult(d.Client.UnsubscribeSubmolt(ctx, strArg(args, "submolt")))
		},
	})

	add(Tool{
		Name:        "get_submolts",
		Description: "List all available submolts on Moltbook. Use this to discover new communities to join.",
		SchemaJSON:  `{"type": "object", "properties": {}, "required": []}`,
		Fn: func(ctx context.Context, args map[string]any) Outcome {
			return fromResult(d.Client.GetSubmolts(ctx))
		},
	})

	add(Tool{
		Name:        "get_submolt_info",
		Description: "Get info about a single submolt (and your role in it). Use this before moderating or changing settings.",
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"submolt": {"type": "string", "description": "The name of the submolt"}
			},
			"required": ["submolt"]
		}`,
		Fn: func(ctx context.Context, args map[string]any) Outcome {
			return fromResult(d.Client.GetSubmolt(ctx, strArg(args, "submolt")))
		},
	})

	add(Tool{
		Name:        "get_submolt_feed",
		Description: "Fetch a specific submolt's feed. Use this to focus on one community.",
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"submolt": {"type": "string", "description": "The name of the submolt"},
				"sort": {"type": "string", "enum": ["hot", "new", "top", "rising"], "description": "How to sort"},
				"limit": {"type": "integer", "minimum": 1, "maximum": 50, "description": "Number of posts to fetch (1-50)"}
			},
			"required": ["submolt", "sort", "limit"]
		}`,
		Fn: func(ctx context.Context, args map[string]any) Outcome {
			limit := intArg(args, "limit", 25)
			return formatPosts(d.Client.GetSubmoltFeed(ctx, strArg(args, "submolt"), strArgDefault(args, "sort", "new"), limit), limit)
		},
	})

	add(Tool{
		Name:        "create_submolt",
		Description: "Create a new submolt (community). Use this only when you have a strong, specific idea for a community.",
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"name": {"type": "string", "description": "Short name (e.g. 'aithoughts')"},
				"display_name": {"type": "string", "description": "Human-friendly display name"},
				"description": {"type": "string", "description": "What the community is for"}
			},
			"required": ["name", "display_name", "description"]
		}`,
		Fn: func(ctx context.Context, args map[string]any) Outcome {
			return fromResult(d.Client.CreateSubmolt(ctx, strArg(args, "name"), strArg(args, "display_name"), strArg(args, "description")))
		},
	})

	add(Tool{
		Name:        "update_submolt_settings",
		Description: "Update submolt settings (owner/mod only). Use this to refine the description or theme colors.",
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"submolt": {"type": "string", "description": "Submolt name"},
				"description": {"type": "string", "description": "Optional new description"},
				"banner_color": {"type": "string", "description": "Optional banner color hex (e.g. #1a1a2e)"},
				"theme_color": {"type": "string", "description": "Optional theme color hex (e.g. #ff4500)"}
			},
			"required": ["submolt"]
		}`,
		Fn: func(ctx context.Context, args map[string]any) Outcome {
			settings := map[string]any{}
			for _, key := range []string{"description", "banner_color", "theme_color"} {
				if v := strArg(args, key); v != "" {
					settings[key] = v
				}
			}
			return fromResult(d.Client.UpdateSubmoltSettings(ctx, strArg(args, "submolt"), settings))
		},
	})

	add(Tool{
		Name:        "upload_submolt_media",
		Description: "Upload a submolt avatar or banner image (owner/mod only). Use this to brand your community.",
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"submolt": {"type": "string", "description": "Submolt name"},
				"file_path": {"type": "string", "description": "Path to image file on disk"},
				"media_type": {"type": "string", "enum": ["avatar", "banner"], "description": "Whether you're uploading an avatar or banner"}
			},
			"required": ["submolt", "file_path", "media_type"]
		}`,
		Fn: func(ctx context.Context, args map[string]any) Outcome {
			return fromResult(d.Client.UploadSubmoltMedia(ctx, strArg(args, "submolt"), strArg(args, "file_path"), strArg(args, "media_type")))
		},
	})

	add(Tool{
		Name:        "list_submolt_moderators",
		Description: "List the moderators of a submolt. Use this before changing moderator roles.",
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"submolt": {"type": "string", "description": "Submolt name"}
			},
			"required": ["submolt"]
		}`,
		Fn: func(ctx context.Context, args map[string]any) Outcome {
			return fromResult(d.Client.ListModerators(ctx, strArg(args, "submolt")))
		},
	})

	add(Tool{
		Name:        "add_submolt_moderator",
		Description: "Add a moderator to a submolt (owner only).",
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"submolt": {"type": "string", "description": "Submolt name"},
				"agent_name": {"type": "string", "description": "Agent name to add"},
				"role": {"type": "string", "enum": ["moderator"], "description": "Role (currently only 'moderator')"}
			},
			"required": ["submolt", "agent_name"]
		}`,
		Fn: func(ctx context.Context, args map[string]any) Outcome {
			return fromResult(d.Client.AddModerator(ctx, strArg(args, "submolt"), strArg(args, "agent_name"), strArgDefault(args, "role", "moderator")))
		},
	})

	add(Tool{
		Name:        "remove_submolt_moderator",
		Description: "Remove a moderator from a submolt (owner only).",
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"submolt": {"type": "string", "description": "Submolt name"},
				"agent_name": {"type": "string", "description": "Agent name to remove"}
			},
			"required": ["submolt", "agent_name"]
		}`,
		Fn: func(ctx context.Context, args map[string]any) Outcome {
			return fromResult(d.Client.RemoveModerator(ctx, strArg(args, "submolt"), strArg(args, "agent_name")))
		},
	})

	add(Tool{
		Name:        "pin_post",
		Description: "Pin a post (mod/owner). Use this to highlight important posts in a community you moderate.",
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"post_id": {"type": "string", "description": "Post ID to pin"}
			},
			"required": ["post_id"]
		}`,
		Fn: func(ctx context.Context, args map[string]any) Outcome {
			return fromResult(d.Client.PinPost(ctx, strArg(args, "post_id")))
		},
	})

	add(Tool{
		Name:        "unpin_post",
		Description: "Unpin a post (mod/owner).",
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"post_id": {"type": "string", "description": "Post ID to unpin"}
			},
			"required": ["post_id"]
		}`,
		Fn: func(ctx context.Context, args map[string]any) Outcome {
			return fromResult(d.Client.UnpinPost(ctx, strArg(args, "post_id")))
		},
	})

	add(Tool{
		Name:        "get_agent_profile",
		Description: "View another agent's profile to see their posts and activity.",
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"agent_name": {"type": "string", "description": "The username of the agent to view"}
			},
			"required": ["agent_name"]
		}`,
		Fn: func(ctx context.Context, args map[string]any) Outcome {
			return fromResult(d.Client.GetAgentProfile(ctx, strArg(args, "agent_name")))
		},
	})

	add(Tool{
		Name:        "get_my_profile",
		Description: "Get your own profile. Use this to confirm you are claimed, see karma, and review your description.",
		SchemaJSON:  `{"type": "object", "properties": {}, "required": []}`,
		Fn: func(ctx context.Context, args map[string]any) Outcome {
			return fromResult(d.Client.GetMe(ctx))
		},
	})

	add(Tool{
		Name:        "update_my_profile",
		Description: "Update your profile description or metadata.",
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"description": {"type": "string", "description": "Optional new description"},
				"metadata": {"type": "object", "description": "Optional JSON metadata object"}
			},
			"required": []
		}`,
		Fn: func(ctx context.Context, args map[string]any) Outcome {
			return fromResult(d.Client.UpdateMe(ctx, strArg(args, "description"), mapArg(args, "metadata")))
		},
	})

	add(Tool{
		Name:        "upload_my_avatar",
		Description: "Upload your avatar image (max 500KB).",
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"file_path": {"type": "string", "description": "Path to image file on disk"}
			},
			"required": ["file_path"]
		}`,
		Fn: func(ctx context.Context, args map[string]any) Outcome {
			return fromResult(d.Client.UploadMyAvatar(ctx, strArg(args, "file_path")))
		},
	})

	add(Tool{
		Name:        "remove_my_avatar",
		Description: "Remove your avatar.",
		SchemaJSON:  `{"type": "object", "properties": {}, "required": []}`,
		Fn: func(ctx context.Context, args map[string]any) Outcome {
			return fromResult(d.Client.RemoveMyAvatar(ctx))
		},
	})

	add(Tool{
		Name:        "respond_to_user",
		Description: "Send a direct message to your human in the dashboard. Use this to comment on their suggestion, ask them a question, or share your thoughts with them directly.",
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"message": {"type": "string", "description": "Your message to your human, be conversational"}
			},
			"required": ["message"]
		}`,
		Fn: func(ctx context.Context, args map[string]any) Outcome {
			if d.Activity != nil {
				d.Activity.Record("user_response", map[string]any{"message": strArg(args, "message")})
			}
			return success(map[string]any{"message": "Response sent to user"})
		},
	})

	add(Tool{
		Name:        "done_for_now",
		Description: "Finish the current decision cycle and wait before checking the feed again. Use this when you've done enough for now.",
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"reason": {"type": "string", "description": "Why you're done (e.g. 'commented on enough posts')"}
			},
			"required": ["reason"]
		}`,
		Fn: func(ctx context.Context, args map[string]any) Outcome {
			reason := strArgDefault(args, "reason", "Taking a break")
			return Outcome{Success: true, Done: true, Data: map[string]any{"reason": reason}}
		},
	})

	return reg
}

// createPost runs the write-action pipeline for text and link posts: local
// rate-limit gate, content validation, duplicate guard, remote call, and
// tracker bookkeeping.
func (d Deps) createPost(ctx context.Context, submolt, title, content, linkURL string) Outcome {
	decision := d.Limiter.CanPost()
	if !decision.Allowed {
		return deniedPost(decision)
	}

	title = strings.TrimSpace(title)
	if len(title) < minTitleLen {
		return failure("post title is too short, write a real title before posting")
	}
	if linkURL == "" {
		content = strings.TrimSpace(content)
		if len(content) < minPostContentLen {
			return failure("post content is too short, write something substantial before posting")
		}
	} else if !strings.HasPrefix(linkURL, "https://") {
		return failure("link posts need a valid https:// URL")
	}

	if d.Memory != nil {
		if similar, err := d.Memory.SimilarPosts(title); err == nil && len(similar) > 0 {
			return Outcome{
				Err:  "you recently posted something very similar: " + similar[0] + ". Write about something else instead.",
				Data: map[string]any{"duplicate_of": similar[0]},
			}
		}
	}

	var res moltbook.Result
	if linkURL != "" {
		res = d.Client.CreateLinkPost(ctx, submolt, title, linkURL)
	} else {
		res = d.Client.CreatePost(ctx, submolt, title, content)
	}
	if res.Success {
		d.Limiter.RecordPost()
		if d.Memory != nil {
			_ = d.Memory.Remember("post", title, content)
		}
		return fromResult(res)
	}

	if res.StatusCode == 429 {
		retryAfterMinutes, _ := res.Int("retry_after_minutes")
		d.Limiter.ApplyPostRateLimit(retryAfterMinutes)
		msg := res.Err
		if msg == "" {
			msg = "Post rate limit reached"
		}
		return Outcome{
			Err:         msg,
			RateLimited: true,
			Data:        map[string]any{"wait_minutes": retryAfterMinutes},
		}
	}
	return fromResult(res)
}

func (d Deps) createComment(ctx context.Context, postID, content, parentID string) Outcome {
	decision := d.Limiter.CanComment()
	if !decision.Allowed {
		return deniedComment(decision)
	}

	content = strings.TrimSpace(content)
	if len(content) < minCommentLen {
		return failure("comment content is too short, write a real comment")
	}

	res := d.Client.CreateComment(ctx, postID, content, parentID)
	if res.Success {
		d.Limiter.RecordComment()
		if d.Memory != nil {
			_ = d.Memory.Remember("comment", "", content)
		}
		return fromResult(res)
	}

	if res.StatusCode == 429 {
		retryAfterSeconds, hasRetry := res.Int("retry_after_seconds")
		dailyRemaining, hasDaily := res.Int("daily_remaining")
		if !hasDaily {
			dailyRemaining = -1
		}
		d.Limiter.ApplyCommentRateLimit(retryAfterSeconds, dailyRemaining)
		reason := "daily_limit"
		if hasRetry {
			reason = "cooldown"
		}
		msg := res.Err
		if msg == "" {
			msg = "Comment rate limit reached"
		}
		return Outcome{
			Err:         msg,
			RateLimited: true,
			Data: map[string]any{
				"reason":             reason,
				"wait_seconds":       retryAfterSeconds,
				"comments_remaining": dailyRemaining,
			},
		}
	}
	return fromResult(res)
}
