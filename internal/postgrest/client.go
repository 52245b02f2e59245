// Package postgrest connects larder to a hosted Supabase project: rows
// through PostgREST, the signed-in user through GoTrue, and images through
// Supabase Storage.
package postgrest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/supabase-community/supabase-go"
)

// Config describes the Supabase project.
type Config struct {
	URL string
	Key string

	// AccessToken, when set, is sent instead of the anon key so row-level
	// security applies to the signed-in user.
	AccessToken string
}

// ErrConfig is returned when the URL or key is missing.
var ErrConfig = errors.New("supabase url and key are required")

// Client wraps a supabase-go client.
type Client struct {
	sb  *supabase.Client
	cfg Config
	log zerolog.Logger
}

// NewClient creates a Supabase client.
func NewClient(cfg Config, log zerolog.Logger) (*Client, error) {
	if cfg.URL == "" || cfg.Key == "" {
		return nil, ErrConfig
	}
	cfg.URL = strings.TrimSuffix(cfg.URL, "/")

	var opts *supabase.ClientOptions
	if cfg.AccessToken != "" {
		opts = &supabase.ClientOptions{
			Headers: map[string]string{"Authorization": "Bearer " + cfg.AccessToken},
		}
	}
	sb, err := supabase.NewClient(cfg.URL, cfg.Key, opts)
	if err != nil {
		return nil, fmt.Errorf("creating supabase client: %w", err)
	}
	return &Client{sb: sb, cfg: cfg, log: log}, nil
}

// URL returns the project URL without a trailing slash.
func (c *Client) URL() string { return c.cfg.URL }

// Key returns the project API key.
func (c *Client) Key() string { return c.cfg.Key }
