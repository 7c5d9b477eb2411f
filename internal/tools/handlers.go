package tools

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/junhyuck/slackpomo/internal/slack"
	"github.com/junhyuck/slackpomo/internal/timer"
)

// Deps wires the collaborators the tool handlers call into.
type Deps struct {
	Client   *slack.Client
	Uploader *slack.Uploader
	Timers   *timer.Manager
	Logger   *slog.Logger
}

// BuildRegistry registers the full tool surface. Registration errors are
// programming mistakes (bad schema, duplicate name) and abort startup.
func BuildRegistry(deps Deps) (*Registry, error) {
	r := NewRegistry(deps.Logger)
	for _, h := range handlerTable(deps) {
		if err := r.Register(h); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func handlerTable(deps Deps) []Handler {
	return []Handler{
		{
			Definition: Definition{
				Name:        "send_message",
				Description: "Post a message to a channel, optionally as a threaded reply.",
				Parameters: objectSchema(map[string]any{
					"channel":   stringProp("Channel ID or name to post to"),
					"text":      stringProp("Message text"),
					"thread_ts": stringProp("Parent message timestamp for a threaded reply"),
				}, "channel", "text"),
			},
			Run: func(ctx context.Context, args map[string]any) (any, error) {
				return deps.Client.SendMessage(ctx, strArg(args, "channel"), strArg(args, "text"), strArg(args, "thread_ts"))
			},
		},
		{
			Definition: Definition{
				Name:        "list_channels",
				Description: "List workspace channels with membership and visibility flags.",
				Parameters: objectSchema(map[string]any{
					"include_archived": boolProp("Include archived channels"),
					"types":            stringProp("Comma-separated conversation types, default public and private channels"),
					"name_glob":        stringProp("Glob pattern over channel names, e.g. dev-*"),
				}),
			},
			Run: func(ctx context.Context, args map[string]any) (any, error) {
				return deps.Client.ListChannels(ctx, slack.ListChannelsOptions{
					IncludeArchived: boolArg(args, "include_archived"),
					Types:           strArg(args, "types"),
					NameGlob:        strArg(args, "name_glob"),
				})
			},
		},
		{
			Definition: Definition{
				Name:        "channel_history",
				Description: "Fetch recent messages from a channel, newest first.",
				Parameters: objectSchema(map[string]any{
					"channel": stringProp("Channel ID"),
					"limit":   intProp("Number of messages, 1-1000, default 10"),
					"oldest":  stringProp("Start of time range as a message timestamp"),
					"latest":  stringProp("End of time range as a message timestamp"),
				}, "channel"),
			},
			Run: func(ctx context.Context, args map[string]any) (any, error) {
				return deps.Client.ChannelHistory(ctx, strArg(args, "channel"), slack.HistoryOptions{
					Limit:  intArg(args, "limit"),
					Oldest: strArg(args, "oldest"),
					Latest: strArg(args, "latest"),
				})
			},
		},
		{
			Definition: Definition{
				Name:        "send_direct_message",
				Description: "Open a direct conversation with a user and send a message.",
				Parameters: objectSchema(map[string]any{
					"user_id": stringProp("Target user ID"),
					"text":    stringProp("Message text"),
				}, "user_id", "text"),
			},
			Run: func(ctx context.Context, args map[string]any) (any, error) {
				return deps.Client.SendDirectMessage(ctx, strArg(args, "user_id"), strArg(args, "text"))
			},
		},
		{
			Definition: Definition{
				Name:        "list_users",
				Description: "List workspace members with role classification.",
				Parameters: objectSchema(map[string]any{
					"include_bots": boolProp("Include bot users"),
					"limit":        intProp("Number of users, 1-200, default 50"),
					"filter":       stringProp("Glob pattern over username, real name, display name or role"),
				}),
			},
			Run: func(ctx context.Context, args map[string]any) (any, error) {
				return deps.Client.ListUsers(ctx, slack.ListUsersOptions{
					IncludeBots: boolArg(args, "include_bots"),
					Limit:       intArg(args, "limit"),
					Filter:      strArg(args, "filter"),
				})
			},
		},
		{
			Definition: Definition{
				Name:        "search_messages",
				Description: "Search messages across the workspace. Requires the user token.",
				Parameters: objectSchema(map[string]any{
					"query":    stringProp("Search query"),
					"sort":     stringProp("Sort field: score or timestamp, default timestamp"),
					"sort_dir": stringProp("Sort direction: asc or desc, default desc"),
					"count":    intProp("Number of results, 1-100, default 20"),
				}, "query"),
			},
			Run: func(ctx context.Context, args map[string]any) (any, error) {
				return deps.Client.SearchMessages(ctx, strArg(args, "query"), slack.SearchOptions{
					Sort:    strArg(args, "sort"),
					SortDir: strArg(args, "sort_dir"),
					Count:   intArg(args, "count"),
				})
			},
		},
		{
			Definition: Definition{
				Name:        "upload_file",
				Description: "Share a local file or inline content in a channel. The transfer method is chosen from the content size.",
				Parameters: objectSchema(map[string]any{
					"path":           stringProp("Local file path to upload; sensitive files are refused"),
					"filename":       stringProp("File name for inline content, used for type detection"),
					"content":        stringProp("File content as text, used when no path is given"),
					"content_base64": stringProp("File content as base64, for binary data"),
					"channel":        stringProp("Destination channel ID"),
					"title":          stringProp("Display title, defaults to the filename"),
					"comment":        stringProp("Comment posted with the file"),
				}, "channel"),
			},
			Run: func(ctx context.Context, args map[string]any) (any, error) {
				req, err := resolveUploadRequest(args)
				if err != nil {
					return nil, err
				}
				return deps.Uploader.Upload(ctx, req)
			},
		},
		{
			Definition: Definition{
				Name:        "get_file_preview",
				Description: "Preview the first lines of a local text file without uploading it.",
				Parameters: objectSchema(map[string]any{
					"path":      stringProp("Local file path"),
					"max_lines": intProp("Maximum lines to show, default 20"),
				}, "path"),
			},
			Run: func(ctx context.Context, args map[string]any) (any, error) {
				return slack.PreviewFile(strArg(args, "path"), intArg(args, "max_lines"))
			},
		},
		{
			Definition: Definition{
				Name:        "verify_or_create_file",
				Description: "Check that a local file exists, or create it from the given content.",
				Parameters: objectSchema(map[string]any{
					"path":    stringProp("Local file path"),
					"content": stringProp("Content to write when the file does not exist"),
				}, "path"),
			},
			Run: func(ctx context.Context, args map[string]any) (any, error) {
				return slack.VerifyOrCreateFile(strArg(args, "path"), strArg(args, "content"))
			},
		},
		{
			Definition: Definition{
				Name:        "add_reaction",
				Description: "Add an emoji reaction to a message.",
				Parameters: objectSchema(map[string]any{
					"channel":   stringProp("Channel ID containing the message"),
					"timestamp": stringProp("Message timestamp"),
					"emoji":     stringProp("Emoji name, with or without colons"),
				}, "channel", "timestamp", "emoji"),
			},
			Run: func(ctx context.Context, args map[string]any) (any, error) {
				err := deps.Client.AddReaction(ctx, strArg(args, "channel"), strArg(args, "timestamp"), strArg(args, "emoji"))
				if err != nil {
					return nil, err
				}
				return fmt.Sprintf("reaction %s added", strArg(args, "emoji")), nil
			},
		},
		{
			Definition: Definition{
				Name:        "workspace_info",
				Description: "Summarize the workspace: identity, channel and user stats, available capabilities.",
				Parameters:  objectSchema(nil),
			},
			Run: func(ctx context.Context, args map[string]any) (any, error) {
				return deps.Client.WorkspaceInfo(ctx)
			},
		},
		{
			Definition: Definition{
				Name:        "timer_start",
				Description: "Start a countdown timer. Completion is announced in the given channel.",
				Parameters: objectSchema(map[string]any{
					"category": stringProp("Timer category: study, work, break, meeting or custom"),
					"minutes":  intProp("Duration in minutes, defaults to the category default"),
					"channel":  stringProp("Channel for start and completion notifications"),
					"label":    stringProp("Free-form label shown in notifications"),
				}),
			},
			Run: func(ctx context.Context, args map[string]any) (any, error) {
				return deps.Timers.Start(ctx, timer.StartOptions{
					Category: timer.Category(strArg(args, "category")),
					Duration: time.Duration(intArg(args, "minutes")) * time.Minute,
					Channel:  strArg(args, "channel"),
					Label:    strArg(args, "label"),
				})
			},
		},
		{
			Definition: Definition{
				Name:        "timer_cancel",
				Description: "Cancel a running timer.",
				Parameters: objectSchema(map[string]any{
					"id": stringProp("Timer session ID"),
				}, "id"),
			},
			Run: func(ctx context.Context, args map[string]any) (any, error) {
				return deps.Timers.Cancel(ctx, strArg(args, "id"))
			},
		},
		{
			Definition: Definition{
				Name:        "timer_list",
				Description: "List running timers, soonest expiry first.",
				Parameters:  objectSchema(nil),
			},
			Run: func(ctx context.Context, args map[string]any) (any, error) {
				return deps.Timers.ListActive(), nil
			},
		},
		{
			Definition: Definition{
				Name:        "timer_status",
				Description: "Report the state and remaining time of one timer.",
				Parameters: objectSchema(map[string]any{
					"id": stringProp("Timer session ID"),
				}, "id"),
			},
			Run: func(ctx context.Context, args map[string]any) (any, error) {
				return deps.Timers.Status(strArg(args, "id"))
			},
		},
		{
			Definition: Definition{
				Name:        "timer_purge",
				Description: "Remove finished and cancelled timers from the registry.",
				Parameters:  objectSchema(nil),
			},
			Run: func(ctx context.Context, args map[string]any) (any, error) {
				removed := deps.Timers.Purge()
				return fmt.Sprintf("purged %d finished timers", removed), nil
			},
		},
	}
}

// resolveUploadRequest builds the upload from either a local path or inline
// content. A path wins when both are given; inline content needs a filename
// for type detection.
func resolveUploadRequest(args map[string]any) (slack.UploadRequest, error) {
	req := slack.UploadRequest{
		Filename: strArg(args, "filename"),
		Channel:  strArg(args, "channel"),
		Title:    strArg(args, "title"),
		Comment:  strArg(args, "comment"),
	}
	if path := strArg(args, "path"); path != "" {
		name, content, err := slack.ReadFileForUpload(path)
		if err != nil {
			return slack.UploadRequest{}, err
		}
		if req.Filename == "" {
			req.Filename = name
		}
		req.Content = content
		return req, nil
	}
	if req.Filename == "" {
		return slack.UploadRequest{}, fmt.Errorf("upload needs a path, or a filename with content")
	}
	if b64 := strArg(args, "content_base64"); b64 != "" {
		b, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return slack.UploadRequest{}, fmt.Errorf("decode content_base64: %w", err)
		}
		req.Content = b
		return req, nil
	}
	req.Content = []byte(strArg(args, "content"))
	return req, nil
}

// Schema builders. JSON schemas live as plain maps so the definitions stay
// readable next to the handlers.

func objectSchema(props map[string]any, required ...string) map[string]any {
	if props == nil {
		props = map[string]any{}
	}
	s := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func intProp(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc}
}

func boolProp(desc string) map[string]any {
	return map[string]any{"type": "boolean", "description": desc}
}

// Argument readers. Schema validation runs first, so these only normalize
// JSON's untyped decode (numbers arrive as float64).

func strArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func boolArg(args map[string]any, key string) bool {
	v, _ := args[key].(bool)
	return v
}
