package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// Client exposes the typed workspace operations on top of the dispatcher.
// It is safe for concurrent use.
type Client struct {
	d      *Dispatcher
	logger *slog.Logger
}

func NewClient(d *Dispatcher, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{d: d, logger: logger}
}

// Dispatcher exposes the underlying dispatcher for collaborators that need
// raw transfers (the upload orchestrator).
func (c *Client) Dispatcher() *Dispatcher { return c.d }

// AuthTest verifies the credential for the given capability and returns the
// authenticated identity.
func (c *Client) AuthTest(ctx context.Context, capability Capability) (*Identity, error) {
	raw, err := c.d.Execute(ctx, RequestSpec{Endpoint: "auth.test", Method: http.MethodGet, Capability: capability})
	if err != nil {
		return nil, err
	}
	var resp authTestResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode auth.test response: %w", err)
	}
	return &Identity{User: resp.User, UserID: resp.UserID, Team: resp.Team, TeamID: resp.TeamID, URL: resp.URL}, nil
}

// SendMessage posts text to a channel, optionally as a threaded reply.
func (c *Client) SendMessage(ctx context.Context, channel, text, threadTS string) (*MessageReceipt, error) {
	body := map[string]any{"channel": channel, "text": text}
	if threadTS != "" {
		body["thread_ts"] = threadTS
	}
	raw, err := c.d.Execute(ctx, RequestSpec{Endpoint: "chat.postMessage", Method: http.MethodPost, Body: body})
	if err != nil {
		return nil, err
	}
	var resp postMessageResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode chat.postMessage response: %w", err)
	}
	return &MessageReceipt{Channel: resp.Channel, TS: resp.TS}, nil
}

// ListChannelsOptions filters the channel list.
type ListChannelsOptions struct {
	IncludeArchived bool
	Types           string // comma-separated conversation types
	NameGlob        string // optional glob over channel names
}

// ListChannels pages through conversations.list until the cursor runs out.
func (c *Client) ListChannels(ctx context.Context, opts ListChannelsOptions) ([]Channel, error) {
	types := opts.Types
	if strings.TrimSpace(types) == "" {
		types = "public_channel,private_channel"
	}
	params := url.Values{}
	params.Set("types", types)
	params.Set("exclude_archived", strconv.FormatBool(!opts.IncludeArchived))
	params.Set("limit", "200")

	var out []Channel
	cursor := ""
	for {
		if cursor != "" {
			params.Set("cursor", cursor)
		}
		raw, err := c.d.Execute(ctx, RequestSpec{Endpoint: "conversations.list", Method: http.MethodGet, Params: params})
		if err != nil {
			return nil, err
		}
		var resp conversationsListResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("decode conversations.list response: %w", err)
		}
		for _, ch := range resp.Channels {
			name := ch.Name
			if name == "" {
				name = "channel_" + ch.ID
			}
			if opts.NameGlob != "" {
				if ok, _ := doublestar.Match(opts.NameGlob, name); !ok {
					continue
				}
			}
			out = append(out, Channel{
				ID:         ch.ID,
				Name:       name,
				IsPrivate:  ch.IsPrivate,
				IsMember:   ch.IsMember,
				IsArchived: ch.IsArchived,
				IsGeneral:  ch.IsGeneral,
				NumMembers: ch.NumMembers,
				Topic:      ch.Topic.Value,
				Purpose:    ch.Purpose.Value,
				Created:    ch.Created,
			})
		}
		cursor = resp.Metadata.NextCursor
		if cursor == "" {
			break
		}
		c.logger.Debug("loading next channel page", "loaded", len(out))
	}
	return out, nil
}

// HistoryOptions bounds a channel history query.
type HistoryOptions struct {
	Limit  int
	Oldest string // start of time range, message timestamp
	Latest string // end of time range, message timestamp
}

// ChannelHistory returns recent messages, newest first. The limit is clamped
// to [1, 1000] with a default of 10. Non-message entries are skipped.
func (c *Client) ChannelHistory(ctx context.Context, channel string, opts HistoryOptions) ([]Message, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	if limit > 1000 {
		limit = 1000
	}
	params := url.Values{}
	params.Set("channel", channel)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("inclusive", "true")
	if opts.Oldest != "" {
		params.Set("oldest", opts.Oldest)
	}
	if opts.Latest != "" {
		params.Set("latest", opts.Latest)
	}

	raw, err := c.d.Execute(ctx, RequestSpec{Endpoint: "conversations.history", Method: http.MethodGet, Params: params})
	if err != nil {
		return nil, err
	}
	var resp historyResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode conversations.history response: %w", err)
	}

	out := make([]Message, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		if m.Type != "message" || m.Text == nil {
			continue
		}
		out = append(out, Message{
			Text:       *m.Text,
			User:       m.User,
			Username:   m.Username,
			TS:         m.TS,
			ThreadTS:   m.ThreadTS,
			Subtype:    m.Subtype,
			ReplyCount: m.ReplyCount,
			Reactions:  m.Reactions,
			Edited:     m.Edited != nil,
			BotID:      m.BotID,
			Time:       parseTS(m.TS),
		})
	}
	return out, nil
}

// SendDirectMessage opens (or reuses) the direct channel for the user, then
// posts the message there. The receipt carries the direct channel id.
func (c *Client) SendDirectMessage(ctx context.Context, userID, text string) (*MessageReceipt, error) {
	raw, err := c.d.Execute(ctx, RequestSpec{
		Endpoint: "conversations.open",
		Method:   http.MethodPost,
		Body:     map[string]any{"users": userID},
	})
	if err != nil {
		return nil, err
	}
	var resp conversationsOpenResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode conversations.open response: %w", err)
	}
	if resp.Channel.ID == "" {
		return nil, &APIError{Kind: KindNotFound, Message: "conversations.open returned no channel", Hint: "Check the user ID."}
	}
	return c.SendMessage(ctx, resp.Channel.ID, text, "")
}

// ListUsersOptions filters the user list.
type ListUsersOptions struct {
	IncludeBots bool
	Limit       int    // clamped to [1, 200], default 50
	Filter      string // optional glob over username, real name and role
}

// ListUsers returns workspace members with role classification. Deleted users
// and the built-in slackbot are skipped.
func (c *Client) ListUsers(ctx context.Context, opts ListUsersOptions) ([]User, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))

	raw, err := c.d.Execute(ctx, RequestSpec{Endpoint: "users.list", Method: http.MethodGet, Params: params})
	if err != nil {
		return nil, err
	}
	var resp usersListResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode users.list response: %w", err)
	}

	out := make([]User, 0, len(resp.Members))
	for _, u := range resp.Members {
		if u.Deleted || u.ID == "USLACKBOT" {
			continue
		}
		if u.IsBot && !opts.IncludeBots {
			continue
		}
		role := classifyRole(u)
		if opts.Filter != "" && !matchesUserFilter(opts.Filter, u, role) {
			continue
		}
		out = append(out, User{
			ID:           u.ID,
			Name:         u.Name,
			RealName:     u.Profile.RealName,
			DisplayName:  u.Profile.DisplayName,
			Email:        u.Profile.Email,
			IsBot:        u.IsBot,
			IsAdmin:      u.IsAdmin,
			IsOwner:      u.IsOwner,
			Role:         role,
			StatusText:   u.Profile.StatusText,
			Timezone:     u.TZ,
			CanReceiveDM: role != RoleBot,
		})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// classifyRole orders checks so a bot owner still classifies as a bot, and
// restricted flags take precedence over plain membership.
func classifyRole(u wireUser) UserRole {
	switch {
	case u.IsBot:
		return RoleBot
	case u.IsOwner:
		return RoleOwner
	case u.IsAdmin:
		return RoleAdmin
	case u.IsUltraRestricted:
		return RoleSingleChannelGuest
	case u.IsRestricted:
		return RoleMultiChannelGuest
	default:
		return RoleMember
	}
}

func matchesUserFilter(pattern string, u wireUser, role UserRole) bool {
	for _, candidate := range []string{u.Name, u.Profile.RealName, u.Profile.DisplayName, string(role)} {
		if candidate == "" {
			continue
		}
		if ok, _ := doublestar.Match(pattern, candidate); ok {
			return true
		}
	}
	return false
}

// SearchOptions bounds a message search.
type SearchOptions struct {
	Sort    string // default "timestamp"
	SortDir string // default "desc"
	Count   int    // clamped to [1, 100], default 20
}

// SearchMessages runs a workspace-wide search. Requires the elevated
// credential; without it the call fails before any network activity.
func (c *Client) SearchMessages(ctx context.Context, query string, opts SearchOptions) (*SearchResults, error) {
	sort := opts.Sort
	if sort == "" {
		sort = "timestamp"
	}
	dir := opts.SortDir
	if dir == "" {
		dir = "desc"
	}
	count := opts.Count
	if count <= 0 {
		count = 20
	}
	if count > 100 {
		count = 100
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("sort", sort)
	params.Set("sort_dir", dir)
	params.Set("count", strconv.Itoa(count))

	raw, err := c.d.Execute(ctx, RequestSpec{
		Endpoint:   "search.messages",
		Method:     http.MethodGet,
		Params:     params,
		Capability: CapabilityElevated,
	})
	if err != nil {
		return nil, err
	}
	var resp searchResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode search.messages response: %w", err)
	}

	results := &SearchResults{Query: query, Total: resp.Messages.Total}
	for _, m := range resp.Messages.Matches {
		results.Matches = append(results.Matches, SearchMatch{
			Text:      m.Text,
			User:      m.User,
			Username:  m.Username,
			TS:        m.TS,
			Channel:   m.Channel.Name,
			Permalink: m.Permalink,
			Score:     m.Score,
			Time:      parseTS(m.TS),
		})
	}
	return results, nil
}

// AddReaction applies one emoji reaction to a message. Surrounding colons in
// the emoji name are tolerated and stripped.
func (c *Client) AddReaction(ctx context.Context, channel, messageTS, emoji string) error {
	name := strings.Trim(strings.TrimSpace(emoji), ":")
	if name == "" {
		return &APIError{Kind: KindInvalidArgument, Message: "empty emoji name", Hint: "Provide an emoji name like thumbsup."}
	}
	_, err := c.d.Execute(ctx, RequestSpec{
		Endpoint: "reactions.add",
		Method:   http.MethodPost,
		Body:     map[string]any{"channel": channel, "timestamp": messageTS, "name": name},
	})
	return err
}

// WorkspaceInfo aggregates the auth identity with channel and user stats and
// the feature availability implied by the configured credentials.
func (c *Client) WorkspaceInfo(ctx context.Context) (*WorkspaceInfo, error) {
	id, err := c.AuthTest(ctx, CapabilityNone)
	if err != nil {
		return nil, err
	}

	info := &WorkspaceInfo{
		Identity:  *id,
		UserStats: map[string]int{},
		Capabilities: map[string]bool{
			"send_messages":   true,
			"read_channels":   true,
			"search_messages": c.d.HasElevated(),
			"upload_files":    true,
			"large_uploads":   c.d.HasElevated(),
		},
	}

	channels, err := c.ListChannels(ctx, ListChannelsOptions{})
	if err != nil {
		c.logger.Warn("workspace info: channel list unavailable", "error", err)
	} else {
		info.ChannelStats.Total = len(channels)
		for _, ch := range channels {
			if ch.IsPrivate {
				info.ChannelStats.Private++
			} else {
				info.ChannelStats.Public++
			}
			if ch.IsMember {
				info.ChannelStats.Member++
			}
		}
	}

	users, err := c.ListUsers(ctx, ListUsersOptions{IncludeBots: true})
	if err != nil {
		c.logger.Warn("workspace info: user list unavailable", "error", err)
	} else {
		for _, u := range users {
			info.UserStats[string(u.Role)]++
		}
	}
	return info, nil
}

// parseTS converts an API message timestamp ("1234567890.123456") to time.
func parseTS(ts string) time.Time {
	f, err := strconv.ParseFloat(ts, 64)
	if err != nil || f <= 0 {
		return time.Time{}
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}
