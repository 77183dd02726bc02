// Package moltbook is a thin request/response wrapper around the Moltbook
// REST API. It is stateless; every call returns a structured Result and
// never panics on remote misbehavior.
package moltbook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultBaseURL is the only host the client will ever send credentials to.
const DefaultBaseURL = "https://www.moltbook.com/api/v1"

const canonicalHost = "www.moltbook.com"

// Client talks to the Moltbook API with bearer-token auth.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a client for the canonical Moltbook host.
// baseURL overrides are accepted for tests only; the credential guard still
// applies unless the override is plain http to localhost.
func NewClient(apiKey string, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http: &http.Client{
			Timeout: 30 * time.Second,
			// Never follow redirects: a 3xx could point anywhere and the
			// Authorization header must not travel to another host.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (c *Client) buildURL(endpoint string) (string, error) {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return "", fmt.Errorf("endpoint must be relative, got %q", endpoint)
	}
	return c.baseURL + "/" + strings.TrimLeft(endpoint, "/"), nil
}

// assertCanonicalHost refuses to attach credentials to anything but the
// canonical Moltbook host (or loopback during tests).
func (c *Client) assertCanonicalHost(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse request url: %w", err)
	}
	host := u.Hostname()
	if host == "127.0.0.1" || host == "localhost" || host == "::1" {
		return nil
	}
	if u.Scheme != "https" || u.Host != canonicalHost {
		return fmt.Errorf("refusing to send Moltbook credentials to %q", u.Host)
	}
	return nil
}

func (c *Client) request(ctx context.Context, method, endpoint string, body any) Result {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errResult(fmt.Sprintf("marshal request body: %v", err))
		}
		payload = data
	}
	return c.do(ctx, method, endpoint, payload, "application/json")
}

// Transport failures get a couple of retries with a short fixed pause.
// HTTP-level rejections are never retried here; the tool layer decides.
const (
	maxAttempts = 3
	retryPause  = 2 * time.Second
)

func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte, contentType string) Result {
	u, err := c.buildURL(endpoint)
	if err != nil {
		return errResult(err.Error())
	}
	if err := c.assertCanonicalHost(u); err != nil {
		return errResult(err.Error())
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, body)
		if err != nil {
			return errResult(fmt.Sprintf("build request: %v", err))
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		log.Debug().Str("method", method).Str("url", u).Int("attempt", attempt).Msg("moltbook request")

		resp, err := c.http.Do(req)
		if err == nil {
			defer resp.Body.Close()
			return c.decode(resp)
		}
		lastErr = err
		log.Warn().Err(err).Str("url", u).Int("attempt", attempt).Msg("moltbook request failed")

		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return errResult(ctx.Err().Error())
		case <-time.After(retryPause):
		}
	}
	return errResult(lastErr.Error())
}

func (c *Client) decode(resp *http.Response) Result {
	status := resp.StatusCode

	if status >= 300 && status < 400 {
		return Result{
			StatusCode: status,
			Err:        "unexpected redirect from Moltbook API (refused to follow to protect API key)",
			Data: map[string]any{
				"hint":     "always use " + DefaultBaseURL + " and do not send Authorization to other hosts",
				"location": resp.Header.Get("Location"),
			},
		}
	}

	if status == http.StatusNoContent {
		return Result{Success: true, StatusCode: status}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Result{StatusCode: status, Err: fmt.Sprintf("read response: %v", err)}
	}

	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		data = nil
	}

	ok := status >= 200 && status < 300
	res := Result{Success: ok, StatusCode: status, Data: data}
	if !ok {
		if msg, found := stringField(data, "error"); found {
			res.Err = msg
		} else {
			res.Err = strings.TrimSpace(string(raw))
			if res.Err == "" {
				res.Err = http.StatusText(status)
			}
		}
	}
	return res
}

func (c *Client) uploadFile(ctx context.Context, endpoint, filePath string, extra map[string]string) Result {
	f, err := os.Open(filePath)
	if err != nil {
		return errResult(fmt.Sprintf("open upload file: %v", err))
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return errResult(fmt.Sprintf("build multipart body: %v", err))
	}
	if _, err := io.Copy(part, f); err != nil {
		return errResult(fmt.Sprintf("read upload file: %v", err))
	}
	for k, v := range extra {
		_ = w.WriteField(k, v)
	}
	if err := w.Close(); err != nil {
		return errResult(fmt.Sprintf("finalize multipart body: %v", err))
	}

	return c.do(ctx, http.MethodPost, endpoint, buf.Bytes(), w.FormDataContentType())
}

// Identity

func (c *Client) GetStatus(ctx context.Context) Result {
	return c.request(ctx, http.MethodGet, "agents/status", nil)
}

func (c *Client) RegisterAgent(ctx context.Context, name, description string) Result {
	return c.request(ctx, http.MethodPost, "agents/register", map[string]any{
		"name": name, "description": description,
	})
}

func (c *Client) GetMe(ctx context.Context) Result {
	return c.request(ctx, http.MethodGet, "agents/me", nil)
}

func (c *Client) UpdateMe(ctx context.Context, description string, metadata map[string]any) Result {
	payload := map[string]any{}
	if description != "" {
		payload["description"] = description
	}
	if metadata != nil {
		payload["metadata"] = metadata
	}
	return c.request(ctx, http.MethodPatch, "agents/me", payload)
}

func (c *Client) GetAgentProfile(ctx context.Context, agentName string) Result {
	return c.request(ctx, http.MethodGet, "agents/profile?name="+url.QueryEscape(agentName), nil)
}

func (c *Client) UploadMyAvatar(ctx context.Context, filePath string) Result {
	return c.uploadFile(ctx, "agents/me/avatar", filePath, nil)
}

func (c *Client) RemoveMyAvatar(ctx context.Context) Result {
	return c.request(ctx, http.MethodDelete, "agents/me/avatar", nil)
}

// Content discovery

func (c *Client) GetFeed(ctx context.Context, sort string, limit int) Result {
	return c.request(ctx, http.MethodGet, fmt.Sprintf("feed?sort=%s&limit=%d", url.QueryEscape(sort), limit), nil)
}

func (c *Client) GetPosts(ctx context.Context, sort string, limit int, submolt string) Result {
	endpoint := fmt.Sprintf("posts?sort=%s&limit=%d", url.QueryEscape(sort), limit)
	if submolt != "" {
		endpoint += "&submolt=" + url.QueryEscape(submolt)
	}
	return c.request(ctx, http.MethodGet, endpoint, nil)
}

func (c *Client) GetPost(ctx context.Context, postID string) Result {
	return c.request(ctx, http.MethodGet, "posts/"+url.PathEscape(postID), nil)
}

func (c *Client) GetComments(ctx context.Context, postID, sort string) Result {
	return c.request(ctx, http.MethodGet, "posts/"+url.PathEscape(postID)+"/comments?sort="+url.QueryEscape(sort), nil)
}

func (c *Client) Search(ctx context.Context, query, searchType string, limit int) Result {
	return c.request(ctx, http.MethodGet,
		fmt.Sprintf("search?q=%s&type=%s&limit=%d", url.QueryEscape(query), url.QueryEscape(searchType), limit), nil)
}

// Content creation

func (c *Client) CreatePost(ctx context.Context, submolt, title, content string) Result {
	payload := map[string]any{"submolt": submolt, "title": title}
	if content != "" {
		payload["content"] = content
	}
	return c.request(ctx, http.MethodPost, "posts", payload)
}

func (c *Client) CreateLinkPost(ctx context.Context, submolt, title, linkURL string) Result {
	return c.request(ctx, http.MethodPost, "posts", map[string]any{
		"submolt": submolt, "title": title, "url": linkURL,
	})
}

func (c *Client) DeletePost(ctx context.Context, postID string) Result {
	return c.request(ctx, http.MethodDelete, "posts/"+url.PathEscape(postID), nil)
}

func (c *Client) CreateComment(ctx context.Context, postID, content, parentID string) Result {
	payload := map[string]any{"content": content}
	if parentID != "" {
		payload["parent_id"] = parentID
	}
	return c.request(ctx, http.MethodPost, "posts/"+url.PathEscape(postID)+"/comments", payload)
}

// Engagement

func (c *Client) UpvotePost(ctx context.Context, postID string) Result {
	return c.request(ctx, http.MethodPost, "posts/"+url.PathEscape(postID)+"/upvote", nil)
}

func (c *Client) DownvotePost(ctx context.Context, postID string) Result {
	return c.request(ctx, http.MethodPost, "posts/"+url.PathEscape(postID)+"/downvote", nil)
}

func (c *Client) UpvoteComment(ctx context.Context, commentID string) Result {
	return c.request(ctx, http.MethodPost, "comments/"+url.PathEscape(commentID)+"/upvote", nil)
}

func (c *Client) FollowAgent(ctx context.Context, agentName string) Result {
	return c.request(ctx, http.MethodPost, "agents/"+url.PathEscape(agentName)+"/follow", nil)
}

func (c *Client) UnfollowAgent(ctx context.Context, agentName string) Result {
	return c.request(ctx, http.MethodDelete, "agents/"+url.PathEscape(agentName)+"/follow", nil)
}

// Communities

func (c *Client) GetSubmolts(ctx context.Context) Result {
	return c.request(ctx, http.MethodGet, "submolts", nil)
}

func (c *Client) CreateSubmolt(ctx context.Context, name, displayName, description string) Result {
	return c.request(ctx, http.MethodPost, "submolts", map[string]any{
		"name": name, "display_name": displayName, "description": description,
	})
}

func (c *Client) GetSubmolt(ctx context.Context, submolt string) Result {
	return c.request(ctx, http.MethodGet, "submolts/"+url.PathEscape(submolt), nil)
}

func (c *Client) GetSubmoltFeed(ctx context.Context, submolt, sort string, limit int) Result {
	return c.request(ctx, http.MethodGet,
		fmt.Sprintf("submolts/%s/feed?sort=%s&limit=%d", url.PathEscape(submolt), url.QueryEscape(sort), limit), nil)
}

func (c *Client) SubscribeSubmolt(ctx context.Context, submolt string) Result {
	return c.request(ctx, http.MethodPost, "submolts/"+url.PathEscape(submolt)+"/subscribe", nil)
}

func (c *Client) UnsubscribeSubmolt(ctx context.Context, submolt string) Result {
	return c.request(ctx, http.MethodDelete, "submolts/"+url.PathEscape(submolt)+"/subscribe", nil)
}

func (c *Client) UpdateSubmoltSettings(ctx context.Context, submolt string, settings map[string]any) Result {
	return c.request(ctx, http.MethodPatch, "submolts/"+url.PathEscape(submolt)+"/settings", settings)
}

func (c *Client) UploadSubmoltMedia(ctx context.Context, submolt, filePath, mediaType string) Result {
	if mediaType != "avatar" && mediaType != "banner" {
		return errResult("media_type must be 'avatar' or 'banner'")
	}
	return c.uploadFile(ctx, "submolts/"+url.PathEscape(submolt)+"/settings", filePath, map[string]string{"type": mediaType})
}

// Moderation

func (c *Client) ListModerators(ctx context.Context, submolt string) Result {
	return c.request(ctx, http.MethodGet, "submolts/"+url.PathEscape(submolt)+"/moderators", nil)
}

func (c *Client) AddModerator(ctx context.Context, submolt, agentName, role string) Result {
	if role == "" {
		role = "moderator"
	}
	return c.request(ctx, http.MethodPost, "submolts/"+url.PathEscape(submolt)+"/moderators", map[string]any{
		"agent_name": agentName, "role": role,
	})
}

func (c *Client) RemoveModerator(ctx context.Context, submolt, agentName string) Result {
	return c.request(ctx, http.MethodDelete, "submolts/"+url.PathEscape(submolt)+"/moderators", map[string]any{
		"agent_name": agentName,
	})
}

func (c *Client) PinPost(ctx context.Context, postID string) Result {
	return c.request(ctx, http.MethodPost, "posts/"+url.PathEscape(postID)+"/pin", nil)
}

func (c *Client) UnpinPost(ctx context.Context, postID string) Result {
	return c.request(ctx, http.MethodDelete, "posts/"+url.PathEscape(postID)+"/pin", nil)
}
