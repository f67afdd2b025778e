package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Kind is the scraper discriminant of a source.
type Kind string

const (
	KindHTML      Kind = "html"
	KindWordPress Kind = "wordpress"
	KindGraphQL   Kind = "graphql"
	KindYouTube   Kind = "youtube"
	KindEmail     Kind = "email"
)

// Valid reports whether k names a known scraper kind.
func (k Kind) Valid() bool {
	switch k {
	case KindHTML, KindWordPress, KindGraphQL, KindYouTube, KindEmail:
		return true
	}
	return false
}

// SourceConfig describes one monitored source. Exactly one of the option blocks
// matching Kind is used; Extra holds one-off parameters that have no field.
type SourceConfig struct {
	Name        string        `yaml:"name"         json:"name"`
	BaseURL     string        `yaml:"base_url"     json:"base_url"`
	Kind        Kind          `yaml:"kind"         json:"kind"`
	Category    string        `yaml:"category"     json:"category"`
	Interval    time.Duration `yaml:"interval"     json:"interval"`
	Active      bool          `yaml:"active"       json:"active"`
	AutoApprove bool          `yaml:"auto_approve" json:"auto_approve"`
	AIRewrite   bool          `yaml:"ai_rewrite"   json:"ai_rewrite"`
	AIPrompt    string        `yaml:"ai_prompt"    json:"ai_prompt,omitempty"`

	HTML      *HTMLOptions      `yaml:"html,omitempty"      json:"html,omitempty"`
	WordPress *WordPressOptions `yaml:"wordpress,omitempty" json:"wordpress,omitempty"`
	GraphQL   *GraphQLOptions   `yaml:"graphql,omitempty"   json:"graphql,omitempty"`
	YouTube   *YouTubeOptions   `yaml:"youtube,omitempty"   json:"youtube,omitempty"`
	Email     *EmailOptions     `yaml:"email,omitempty"     json:"email,omitempty"`

	Extra map[string]string `yaml:"extra,omitempty" json:"extra,omitempty"`

	// LastRun is maintained by the source store.
	LastRun time.Time `yaml:"-" json:"-"`
}

// HTMLOptions configures page scraping with optional RSS discovery.
type HTMLOptions struct {
	NewsURL           string   `yaml:"news_url"            json:"news_url,omitempty"`
	AdditionalURLs    []string `yaml:"additional_urls"     json:"additional_urls,omitempty"`
	RSSURL            string   `yaml:"rss_url"             json:"rss_url,omitempty"`
	DisableRSS        bool     `yaml:"disable_rss"         json:"disable_rss,omitempty"`
	Selectors         []string `yaml:"selectors"           json:"selectors,omitempty"`
	ContentSelectors  []string `yaml:"content_selectors"   json:"content_selectors,omitempty"`
	ImageSelectors    []string `yaml:"image_selectors"     json:"image_selectors,omitempty"`
	FilterKeywords    []string `yaml:"content_filter_keywords" json:"content_filter_keywords,omitempty"`
	URLFilterKeywords []string `yaml:"url_filter_keywords" json:"url_filter_keywords,omitempty"`
	Render            string   `yaml:"render"              json:"render,omitempty"` // http, browser
	MinImageWidth     int      `yaml:"min_image_width"     json:"min_image_width,omitempty"`
	MinImageHeight    int      `yaml:"min_image_height"    json:"min_image_height,omitempty"`
}

// WordPressOptions configures the WordPress REST listing.
type WordPressOptions struct {
	APIURL           string   `yaml:"api_url"            json:"api_url,omitempty"`
	PerPage          int      `yaml:"per_page"           json:"per_page,omitempty"`
	CustomEndpoint   bool     `yaml:"custom_endpoint"    json:"custom_endpoint,omitempty"`
	ExcludeTitles    []string `yaml:"exclude_titles"     json:"exclude_titles,omitempty"`
	AllowedYears     []int    `yaml:"allowed_years"      json:"allowed_years,omitempty"`
	MinContentLength int      `yaml:"min_content_length" json:"min_content_length,omitempty"`
}

// GraphQLOptions configures a GraphQL source and its WordPress fallback.
type GraphQLOptions struct {
	Endpoint            string            `yaml:"endpoint"              json:"endpoint"`
	Headers             map[string]string `yaml:"headers"               json:"headers,omitempty"`
	Query               string            `yaml:"query"                 json:"query,omitempty"`
	OperationName       string            `yaml:"operation_name"        json:"operation_name,omitempty"`
	Variables           map[string]any    `yaml:"variables"             json:"variables,omitempty"`
	Locale              string            `yaml:"locale"                json:"locale,omitempty"`
	CDNHosts            []string          `yaml:"cdn_hosts"             json:"cdn_hosts,omitempty"`
	FallbackToWordPress *bool             `yaml:"fallback_to_wordpress" json:"fallback_to_wordpress,omitempty"`
	WordPress           *WordPressOptions `yaml:"wordpress"             json:"wordpress,omitempty"`
}

// FallsBackToWordPress reports whether the WordPress fallback is enabled (default true).
func (o *GraphQLOptions) FallsBackToWordPress() bool {
	return o.FallbackToWordPress == nil || *o.FallbackToWordPress
}

// YouTubeOptions configures playlist polling and transcript fetching.
type YouTubeOptions struct {
	APIKey           string        `yaml:"api_key"            json:"api_key,omitempty"`
	PlaylistID       string        `yaml:"playlist_id"        json:"playlist_id,omitempty"`
	MaxResults       int           `yaml:"max_results"        json:"max_results,omitempty"`
	FallbackVideoIDs []string      `yaml:"fallback_video_ids" json:"fallback_video_ids,omitempty"`
	TranscriptDelay  time.Duration `yaml:"transcript_delay"   json:"transcript_delay,omitempty"`
	LiveRetryDelay   time.Duration `yaml:"live_retry_delay"   json:"live_retry_delay,omitempty"`
	Language         string        `yaml:"language"           json:"language,omitempty"`
	APIURL           string        `yaml:"api_url"            json:"api_url,omitempty"`
}

// dummyKeyPrefix marks placeholder API keys shipped in sample configs.
const dummyKeyPrefix = "AIzaSyDummy"

// HasAPI reports whether a usable API key and playlist are configured.
func (o *YouTubeOptions) HasAPI() bool {
	return o.APIKey != "" && !strings.HasPrefix(o.APIKey, dummyKeyPrefix) && o.PlaylistID != ""
}

// EmailOptions configures the IMAP mailbox.
type EmailOptions struct {
	IMAPServer     string   `yaml:"imap_server"     json:"imap_server"`
	IMAPPort       int      `yaml:"imap_port"       json:"imap_port,omitempty"`
	Username       string   `yaml:"username"        json:"username"`
	Password       string   `yaml:"password"        json:"password,omitempty"`
	Mailbox        string   `yaml:"mailbox"         json:"mailbox,omitempty"`
	SenderFilter   []string `yaml:"sender_filter"   json:"sender_filter,omitempty"`
	SubjectFilter  []string `yaml:"subject_filter"  json:"subject_filter,omitempty"`
	MaxMessages    int      `yaml:"max_messages"    json:"max_messages,omitempty"`
	SocialPrompt   string   `yaml:"social_prompt"   json:"social_prompt,omitempty"`
	SocialKeywords []string `yaml:"social_keywords" json:"social_keywords,omitempty"`
}

// Default selector lists for HTML sources.
var (
	DefaultSelectors = []string{
		".news-item", ".article-preview", ".post", "article",
		".news-card", ".content-item", `div[class*="news"]`,
	}
	DefaultContentSelectors = []string{
		".article-content", ".post-content", ".content", ".entry-content",
		"main", "article", ".news-body",
	}
	DefaultAllowedYears = []int{2023, 2024, 2025}
)

// Key returns the normalized identifier used for lock files and manager entries.
func (s *SourceConfig) Key() string {
	return SourceKey(s.Name)
}

// SourceKey normalizes a source name.
func SourceKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

// ApplyDefaults fills unset fields. defaultInterval is used when Interval is zero.
func (s *SourceConfig) ApplyDefaults(defaultInterval time.Duration) {
	if s.Interval <= 0 {
		s.Interval = defaultInterval
	}
	if s.Category == "" {
		s.Category = "Generale"
	}

	switch s.Kind {
	case KindHTML:
		if s.HTML == nil {
			s.HTML = &HTMLOptions{}
		}
		o := s.HTML
		if o.NewsURL == "" {
			o.NewsURL = s.BaseURL
		}
		if o.RSSURL == "" && s.BaseURL != "" {
			o.RSSURL = strings.TrimRight(s.BaseURL, "/") + "/feed/"
		}
		if len(o.Selectors) == 0 {
			o.Selectors = DefaultSelectors
		}
		if len(o.ContentSelectors) == 0 {
			o.ContentSelectors = DefaultContentSelectors
		}
		if o.Render == "" {
			o.Render = "http"
		}
		if o.MinImageWidth == 0 {
			o.MinImageWidth = 80
		}
		if o.MinImageHeight == 0 {
			o.MinImageHeight = 60
		}
	case KindWordPress:
		if s.WordPress == nil {
			s.WordPress = &WordPressOptions{}
		}
		s.WordPress.applyDefaults(s.BaseURL)
	case KindGraphQL:
		if s.GraphQL == nil {
			s.GraphQL = &GraphQLOptions{}
		}
		if s.GraphQL.Locale == "" {
			s.GraphQL.Locale = "it"
		}
		if s.GraphQL.WordPress != nil {
			s.GraphQL.WordPress.applyDefaults(s.BaseURL)
		} else if s.GraphQL.FallsBackToWordPress() && s.BaseURL != "" {
			s.GraphQL.WordPress = &WordPressOptions{}
			s.GraphQL.WordPress.applyDefaults(s.BaseURL)
		}
	case KindYouTube:
		if s.YouTube == nil {
			s.YouTube = &YouTubeOptions{}
		}
		o := s.YouTube
		if o.MaxResults <= 0 {
			o.MaxResults = 10
		}
		if o.TranscriptDelay == 0 {
			o.TranscriptDelay = 60 * time.Second
		}
		if o.LiveRetryDelay == 0 {
			o.LiveRetryDelay = time.Hour
		}
		if o.Language == "" {
			o.Language = "it"
		}
		if o.APIURL == "" {
			o.APIURL = "https://www.googleapis.com/youtube/v3/playlistItems"
		}
	case KindEmail:
		if s.Email == nil {
			s.Email = &EmailOptions{}
		}
		o := s.Email
		if o.IMAPPort == 0 {
			o.IMAPPort = 993
		}
		if o.Mailbox == "" {
			o.Mailbox = "INBOX"
		}
		if o.MaxMessages <= 0 {
			o.MaxMessages = 10
		}
	}
}

func (o *WordPressOptions) applyDefaults(baseURL string) {
	if o.APIURL == "" && baseURL != "" {
		o.APIURL = strings.TrimRight(baseURL, "/") + "/wp-json/wp/v2/posts"
	}
	if o.PerPage <= 0 {
		o.PerPage = 10
	}
	if o.CustomEndpoint {
		if len(o.AllowedYears) == 0 {
			o.AllowedYears = DefaultAllowedYears
		}
		if o.MinContentLength == 0 {
			o.MinContentLength = 20
		}
	}
}

// ExpandSecrets replaces ${VAR} references in credential fields with environment values.
func (s *SourceConfig) ExpandSecrets() {
	if s.Email != nil {
		s.Email.Password = os.ExpandEnv(s.Email.Password)
		s.Email.Username = os.ExpandEnv(s.Email.Username)
	}
	if s.YouTube != nil {
		s.YouTube.APIKey = os.ExpandEnv(s.YouTube.APIKey)
	}
	if s.GraphQL != nil {
		for k, v := range s.GraphQL.Headers {
			s.GraphQL.Headers[k] = os.ExpandEnv(v)
		}
	}
}

// Validate checks that the source is internally consistent.
func (s *SourceConfig) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("source name must not be empty")
	}
	if !s.Kind.Valid() {
		return fmt.Errorf("source %q: unknown kind %q", s.Name, s.Kind)
	}
	if s.Interval <= 0 {
		return fmt.Errorf("source %q: interval must be > 0", s.Name)
	}
	if s.AIRewrite && s.AIPrompt == "" {
		return fmt.Errorf("source %q: ai_prompt is required when ai_rewrite is set", s.Name)
	}

	blocks := 0
	for _, set := range []bool{s.HTML != nil, s.WordPress != nil, s.GraphQL != nil, s.YouTube != nil, s.Email != nil} {
		if set {
			blocks++
		}
	}
	if blocks > 1 {
		return fmt.Errorf("source %q: only the %s option block may be set", s.Name, s.Kind)
	}

	switch s.Kind {
	case KindHTML:
		if s.HTML == nil {
			return fmt.Errorf("source %q: html options missing", s.Name)
		}
		if err := ValidateURL(s.HTML.NewsURL); err != nil {
			return fmt.Errorf("source %q: news_url: %w", s.Name, err)
		}
		if s.HTML.Render != "http" && s.HTML.Render != "browser" {
			return fmt.Errorf("source %q: render must be 'http' or 'browser', got %q", s.Name, s.HTML.Render)
		}
	case KindWordPress:
		if s.WordPress == nil {
			return fmt.Errorf("source %q: wordpress options missing", s.Name)
		}
		if err := ValidateURL(s.WordPress.APIURL); err != nil {
			return fmt.Errorf("source %q: api_url: %w", s.Name, err)
		}
	case KindGraphQL:
		if s.GraphQL == nil {
			return fmt.Errorf("source %q: graphql options missing", s.Name)
		}
		if err := ValidateURL(s.GraphQL.Endpoint); err != nil {
			return fmt.Errorf("source %q: endpoint: %w", s.Name, err)
		}
		if err := ValidateURL(s.BaseURL); err != nil {
			return fmt.Errorf("source %q: base_url: %w", s.Name, err)
		}
	case KindYouTube:
		if s.YouTube == nil {
			return fmt.Errorf("source %q: youtube options missing", s.Name)
		}
		if !s.YouTube.HasAPI() && len(s.YouTube.FallbackVideoIDs) == 0 {
			return fmt.Errorf("source %q: needs api_key+playlist_id or fallback_video_ids", s.Name)
		}
	case KindEmail:
		if s.Email == nil {
			return fmt.Errorf("source %q: email options missing", s.Name)
		}
		if s.Email.IMAPServer == "" || s.Email.Username == "" {
			return fmt.Errorf("source %q: imap_server and username are required", s.Name)
		}
		if s.Email.IMAPPort < 1 || s.Email.IMAPPort > 65535 {
			return fmt.Errorf("source %q: imap_port must be 1-65535, got %d", s.Name, s.Email.IMAPPort)
		}
	}

	return nil
}

// Masked returns a copy with credentials hidden, for display.
func (s *SourceConfig) Masked() SourceConfig {
	c := *s
	if c.Email != nil {
		e := *c.Email
		if e.Password != "" {
			e.Password = "********"
		}
		c.Email = &e
	}
	if c.YouTube != nil {
		y := *c.YouTube
		y.APIKey = maskSecret(y.APIKey)
		c.YouTube = &y
	}
	if c.GraphQL != nil {
		g := *c.GraphQL
		g.Headers = make(map[string]string, len(c.GraphQL.Headers))
		for k, v := range c.GraphQL.Headers {
			if strings.Contains(strings.ToLower(k), "key") || strings.EqualFold(k, "Authorization") {
				v = maskSecret(v)
			}
			g.Headers[k] = v
		}
		c.GraphQL = &g
	}
	return c
}

func maskSecret(v string) string {
	if len(v) <= 4 {
		return strings.Repeat("*", len(v))
	}
	return v[:4] + strings.Repeat("*", len(v)-4)
}
