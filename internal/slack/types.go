package slack

import "time"

// Identity is the result of an auth self-test.
type Identity struct {
	User   string `json:"user"`
	UserID string `json:"user_id"`
	Team   string `json:"team"`
	TeamID string `json:"team_id"`
	URL    string `json:"url"`
}

// Channel is a workspace conversation with membership and visibility flags.
type Channel struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IsPrivate  bool   `json:"is_private"`
	IsMember   bool   `json:"is_member"`
	IsArchived bool   `json:"is_archived"`
	IsGeneral  bool   `json:"is_general"`
	NumMembers int    `json:"num_members"`
	Topic      string `json:"topic"`
	Purpose    string `json:"purpose"`
	Created    int64  `json:"created"`
}

// Reaction is one emoji reaction on a message.
type Reaction struct {
	Name  string   `json:"name"`
	Count int      `json:"count"`
	Users []string `json:"users,omitempty"`
}

// Message is one channel history or search entry.
type Message struct {
	Text       string     `json:"text"`
	User       string     `json:"user"`
	Username   string     `json:"username,omitempty"`
	TS         string     `json:"ts"`
	ThreadTS   string     `json:"thread_ts,omitempty"`
	Subtype    string     `json:"subtype,omitempty"`
	ReplyCount int        `json:"reply_count,omitempty"`
	Reactions  []Reaction `json:"reactions,omitempty"`
	Edited     bool       `json:"is_edited"`
	BotID      string     `json:"bot_id,omitempty"`
	Time       time.Time  `json:"time"`
}

// MessageReceipt identifies a successfully posted message.
type MessageReceipt struct {
	Channel string `json:"channel"`
	TS      string `json:"ts"`
}

// UserRole classifies a workspace member.
type UserRole string

const (
	RoleOwner              UserRole = "owner"
	RoleAdmin              UserRole = "admin"
	RoleMember             UserRole = "member"
	RoleBot                UserRole = "bot"
	RoleSingleChannelGuest UserRole = "single_channel_guest"
	RoleMultiChannelGuest  UserRole = "multi_channel_guest"
)

// User is one workspace member with its role classification.
type User struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	RealName     string   `json:"real_name,omitempty"`
	DisplayName  string   `json:"display_name,omitempty"`
	Email        string   `json:"email,omitempty"`
	IsBot        bool     `json:"is_bot"`
	IsAdmin      bool     `json:"is_admin"`
	IsOwner      bool     `json:"is_owner"`
	Role         UserRole `json:"role"`
	StatusText   string   `json:"status_text,omitempty"`
	Timezone     string   `json:"timezone,omitempty"`
	CanReceiveDM bool     `json:"can_receive_dm"`
}

// SearchMatch is one search result.
type SearchMatch struct {
	Text      string    `json:"text"`
	User      string    `json:"user"`
	Username  string    `json:"username,omitempty"`
	TS        string    `json:"ts"`
	Channel   string    `json:"channel"`
	Permalink string    `json:"permalink,omitempty"`
	Score     float64   `json:"score,omitempty"`
	Time      time.Time `json:"time"`
}

// SearchResults is the outcome of a workspace-wide message search.
type SearchResults struct {
	Query   string        `json:"query"`
	Total   int           `json:"total"`
	Matches []SearchMatch `json:"matches"`
}

// WorkspaceInfo aggregates identity, channel and user statistics, and the
// capability flags derived from the configured credentials.
type WorkspaceInfo struct {
	Identity     Identity        `json:"identity"`
	ChannelStats ChannelStats    `json:"channel_stats"`
	UserStats    map[string]int  `json:"user_stats"`
	Capabilities map[string]bool `json:"capabilities"`
}

// ChannelStats summarizes the channel list.
type ChannelStats struct {
	Total   int `json:"total"`
	Public  int `json:"public"`
	Private int `json:"private"`
	Member  int `json:"member"`
}

// Wire-level response shapes. Only the fields we consume are declared.

type authTestResponse struct {
	User   string `json:"user"`
	UserID string `json:"user_id"`
	Team   string `json:"team"`
	TeamID string `json:"team_id"`
	URL    string `json:"url"`
}

type postMessageResponse struct {
	Channel string `json:"channel"`
	TS      string `json:"ts"`
}

type conversationsListResponse struct {
	Channels []wireChannel `json:"channels"`
	Metadata struct {
		NextCursor string `json:"next_cursor"`
	} `json:"response_metadata"`
}

type wireChannel struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IsPrivate  bool   `json:"is_private"`
	IsMember   bool   `json:"is_member"`
	IsArchived bool   `json:"is_archived"`
	IsGeneral  bool   `json:"is_general"`
	NumMembers int    `json:"num_members"`
	Created    int64  `json:"created"`
	Topic      struct {
		Value string `json:"value"`
	} `json:"topic"`
	Purpose struct {
		Value string `json:"value"`
	} `json:"purpose"`
}

type historyResponse struct {
	Messages []wireMessage `json:"messages"`
}

type wireMessage struct {
	Type       string     `json:"type"`
	Subtype    string     `json:"subtype"`
	Text       *string    `json:"text"`
	User       string     `json:"user"`
	Username   string     `json:"username"`
	TS         string     `json:"ts"`
	ThreadTS   string     `json:"thread_ts"`
	ReplyCount int        `json:"reply_count"`
	Reactions  []Reaction `json:"reactions"`
	Edited     *struct{}  `json:"edited"`
	BotID      string     `json:"bot_id"`
}

type usersListResponse struct {
	Members []wireUser `json:"members"`
}

type wireUser struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Deleted           bool   `json:"deleted"`
	IsBot             bool   `json:"is_bot"`
	IsAdmin           bool   `json:"is_admin"`
	IsOwner           bool   `json:"is_owner"`
	IsRestricted      bool   `json:"is_restricted"`
	IsUltraRestricted bool   `json:"is_ultra_restricted"`
	TZ                string `json:"tz"`
	Profile           struct {
		RealName    string `json:"real_name"`
		DisplayName string `json:"display_name"`
		Email       string `json:"email"`
		StatusText  string `json:"status_text"`
	} `json:"profile"`
}

type conversationsOpenResponse struct {
	Channel struct {
		ID string `json:"id"`
	} `json:"channel"`
}

type searchResponse struct {
	Messages struct {
		Total   int `json:"total"`
		Matches []struct {
			Text     string `json:"text"`
			User     string `json:"user"`
			Username string `json:"username"`
			TS       string `json:"ts"`
			Channel  struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"channel"`
			Permalink string  `json:"permalink"`
			Score     float64 `json:"score"`
		} `json:"matches"`
	} `json:"messages"`
}

type getUploadURLResponse struct {
	UploadURL string `json:"upload_url"`
	FileID    string `json:"file_id"`
}

type completeUploadResponse struct {
	Files []struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		Title      string `json:"title"`
		Size       int64  `json:"size"`
		Filetype   string `json:"filetype"`
		Mimetype   string `json:"mimetype"`
		URLPrivate string `json:"url_private"`
	} `json:"files"`
}
