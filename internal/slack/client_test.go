package slack

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, rt roundTripperFunc) *Client {
	t.Helper()
	return NewClient(newTestDispatcher(t, rt), nil)
}

func TestSendMessageThreaded(t *testing.T) {
	var gotBody map[string]any
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		return jsonResponse(200, `{"ok":true,"channel":"C1","ts":"2.3"}`, nil), nil
	})

	receipt, err := c.SendMessage(context.Background(), "C1", "hi", "1.0")
	if err != nil {
		t.Fatal(err)
	}
	if receipt.TS != "2.3" || receipt.Channel != "C1" {
		t.Fatalf("receipt %+v", receipt)
	}
	if gotBody["thread_ts"] != "1.0" {
		t.Fatalf("thread_ts not sent: %v", gotBody)
	}
}

func TestListChannelsPagination(t *testing.T) {
	pages := []string{
		`{"ok":true,"channels":[{"id":"C1","name":"general","is_member":true,"topic":{"value":"hq"},"purpose":{"value":""}}],"response_metadata":{"next_cursor":"page2"}}`,
		`{"ok":true,"channels":[{"id":"C2","name":"dev-backend","is_private":true}],"response_metadata":{"next_cursor":""}}`,
	}
	call := 0
	var cursors []string
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		cursors = append(cursors, r.URL.Query().Get("cursor"))
		body := pages[call]
		call++
		return jsonResponse(200, body, nil), nil
	})

	channels, err := c.ListChannels(context.Background(), ListChannelsOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(channels) != 2 {
		t.Fatalf("got %d channels", len(channels))
	}
	if cursors[0] != "" || cursors[1] != "page2" {
		t.Fatalf("cursor sequence %v", cursors)
	}
	if channels[0].Topic != "hq" {
		t.Fatalf("nested topic not flattened: %+v", channels[0])
	}
}

func TestListChannelsNameGlob(t *testing.T) {
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(200, `{"ok":true,"channels":[{"id":"C1","name":"dev-api"},{"id":"C2","name":"random"},{"id":"C3","name":""}]}`, nil), nil
	})

	channels, err := c.ListChannels(context.Background(), ListChannelsOptions{NameGlob: "dev-*"})
	if err != nil {
		t.Fatal(err)
	}
	if len(channels) != 1 || channels[0].Name != "dev-api" {
		t.Fatalf("glob filter failed: %+v", channels)
	}
}

func TestListChannelsNamelessFallback(t *testing.T) {
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(200, `{"ok":true,"channels":[{"id":"C9"}]}`, nil), nil
	})
	channels, err := c.ListChannels(context.Background(), ListChannelsOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if channels[0].Name != "channel_C9" {
		t.Fatalf("fallback name %q", channels[0].Name)
	}
}

func TestChannelHistoryClampAndSkip(t *testing.T) {
	var gotLimit string
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		gotLimit = r.URL.Query().Get("limit")
		return jsonResponse(200, `{"ok":true,"messages":[
			{"type":"message","text":"hello","user":"U1","ts":"1700000000.000100"},
			{"type":"channel_join","ts":"1700000000.000200"},
			{"type":"message","user":"U2","ts":"1700000000.000300"},
			{"type":"message","text":"edited one","user":"U3","ts":"1700000000.000400","edited":{}}
		]}`, nil), nil
	})

	msgs, err := c.ChannelHistory(context.Background(), "C1", HistoryOptions{Limit: 5000})
	if err != nil {
		t.Fatal(err)
	}
	if gotLimit != "1000" {
		t.Fatalf("limit not clamped: %q", gotLimit)
	}
	if len(msgs) != 2 {
		t.Fatalf("non-message and text-less entries should be skipped, got %d", len(msgs))
	}
	if !msgs[1].Edited {
		t.Fatal("edited marker lost")
	}
	if msgs[0].Time.IsZero() {
		t.Fatal("timestamp not parsed")
	}
}

func TestSendDirectMessage(t *testing.T) {
	var endpoints []string
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		endpoints = append(endpoints, r.URL.Path)
		if strings.Contains(r.URL.Path, "conversations.open") {
			return jsonResponse(200, `{"ok":true,"channel":{"id":"D42"}}`, nil), nil
		}
		return jsonResponse(200, `{"ok":true,"channel":"D42","ts":"3.4"}`, nil), nil
	})

	receipt, err := c.SendDirectMessage(context.Background(), "U1", "psst")
	if err != nil {
		t.Fatal(err)
	}
	if receipt.Channel != "D42" {
		t.Fatalf("receipt %+v", receipt)
	}
	if len(endpoints) != 2 || !strings.Contains(endpoints[0], "conversations.open") {
		t.Fatalf("call order %v", endpoints)
	}
}

func TestListUsersFiltering(t *testing.T) {
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(200, `{"ok":true,"members":[
			{"id":"U1","name":"alice","is_owner":true,"profile":{"real_name":"Alice A"}},
			{"id":"U2","name":"bob","is_admin":true},
			{"id":"U3","name":"deleted-guy","deleted":true},
			{"id":"USLACKBOT","name":"slackbot"},
			{"id":"U4","name":"helper","is_bot":true},
			{"id":"U5","name":"carol","is_restricted":true},
			{"id":"U6","name":"dave","is_ultra_restricted":true,"is_restricted":true}
		]}`, nil), nil
	})

	users, err := c.ListUsers(context.Background(), ListUsersOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 4 {
		t.Fatalf("deleted, slackbot and bots should be skipped, got %d", len(users))
	}

	roles := map[string]UserRole{}
	for _, u := range users {
		roles[u.Name] = u.Role
	}
	want := map[string]UserRole{
		"alice": RoleOwner,
		"bob":   RoleAdmin,
		"carol": RoleMultiChannelGuest,
		"dave":  RoleSingleChannelGuest,
	}
	for name, role := range want {
		if roles[name] != role {
			t.Fatalf("%s: got role %s, want %s", name, roles[name], role)
		}
	}
}

func TestListUsersIncludeBots(t *testing.T) {
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(200, `{"ok":true,"members":[{"id":"U4","name":"helper","is_bot":true,"is_owner":true}]}`, nil), nil
	})
	users, err := c.ListUsers(context.Background(), ListUsersOptions{IncludeBots: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 1 || users[0].Role != RoleBot {
		t.Fatalf("bot flag must win over owner: %+v", users)
	}
	if users[0].CanReceiveDM {
		t.Fatal("bots cannot receive direct messages")
	}
}

func TestListUsersGlobFilter(t *testing.T) {
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(200, `{"ok":true,"members":[
			{"id":"U1","name":"alice","profile":{"real_name":"Alice Smith"}},
			{"id":"U2","name":"bob"}
		]}`, nil), nil
	})
	users, err := c.ListUsers(context.Background(), ListUsersOptions{Filter: "*Smith*"})
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 1 || users[0].Name != "alice" {
		t.Fatalf("filter failed: %+v", users)
	}
}

func TestSearchMessagesRequiresElevated(t *testing.T) {
	creds, err := NewCredentialStore("xoxb-test", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	calls := 0
	d := NewDispatcher(creds, DispatcherOptions{
		Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
			calls++
			return jsonResponse(200, `{"ok":true}`, nil), nil
		}),
		Sleep: noSleep,
	})
	c := NewClient(d, nil)

	_, err = c.SearchMessages(context.Background(), "deploy", SearchOptions{})
	if KindOf(err) != KindMissingCredential {
		t.Fatalf("expected missing credential, got %v", err)
	}
	if calls != 0 {
		t.Fatal("search must fail before any network activity")
	}
}

func TestSearchMessagesDefaults(t *testing.T) {
	var q map[string][]string
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		q = r.URL.Query()
		return jsonResponse(200, `{"ok":true,"messages":{"total":1,"matches":[
			{"text":"deploy done","user":"U1","ts":"1700000000.000100","channel":{"id":"C1","name":"dev"},"permalink":"https://x/p1"}
		]}}`, nil), nil
	})

	res, err := c.SearchMessages(context.Background(), "deploy", SearchOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if got := q["sort"][0]; got != "timestamp" {
		t.Fatalf("default sort %q", got)
	}
	if got := q["sort_dir"][0]; got != "desc" {
		t.Fatalf("default sort_dir %q", got)
	}
	if got := q["count"][0]; got != "20" {
		t.Fatalf("default count %q", got)
	}
	if res.Total != 1 || res.Matches[0].Channel != "dev" {
		t.Fatalf("results %+v", res)
	}
}

func TestAddReactionTrimsColons(t *testing.T) {
	var gotBody map[string]any
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		return jsonResponse(200, `{"ok":true}`, nil), nil
	})

	if err := c.AddReaction(context.Background(), "C1", "1.0", ":thumbsup:"); err != nil {
		t.Fatal(err)
	}
	if gotBody["name"] != "thumbsup" {
		t.Fatalf("colons not stripped: %v", gotBody["name"])
	}

	err := c.AddReaction(context.Background(), "C1", "1.0", "::")
	if KindOf(err) != KindInvalidArgument {
		t.Fatalf("empty emoji should be rejected, got %v", err)
	}
}

func TestWorkspaceInfoDegradesGracefully(t *testing.T) {
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		switch {
		case strings.Contains(r.URL.Path, "auth.test"):
			return jsonResponse(200, `{"ok":true,"user":"bot","team":"acme"}`, nil), nil
		case strings.Contains(r.URL.Path, "conversations.list"):
			return jsonResponse(200, `{"ok":false,"error":"missing_scope"}`, nil), nil
		case strings.Contains(r.URL.Path, "users.list"):
			return jsonResponse(200, `{"ok":true,"members":[{"id":"U1","name":"alice","is_owner":true}]}`, nil), nil
		default:
			return jsonResponse(404, "not found", nil), nil
		}
	})

	info, err := c.WorkspaceInfo(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if info.Identity.Team != "acme" {
		t.Fatalf("identity %+v", info.Identity)
	}
	if info.ChannelStats.Total != 0 {
		t.Fatal("channel failure should leave stats empty, not fail the call")
	}
	if info.UserStats["owner"] != 1 {
		t.Fatalf("user stats %v", info.UserStats)
	}
	if !info.Capabilities["search_messages"] {
		t.Fatal("elevated credential is configured in this harness")
	}
}

func TestParseTS(t *testing.T) {
	ts := parseTS("1700000000.500000")
	if ts.Unix() != 1700000000 {
		t.Fatalf("seconds wrong: %v", ts)
	}
	if parseTS("").IsZero() == false || parseTS("abc").IsZero() == false {
		t.Fatal("bad input should give zero time")
	}
}
