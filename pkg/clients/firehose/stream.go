package firehose

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// StreamParams selects the fields and expansions requested on the
// filtered stream.
type StreamParams struct {
	PostFields  []string
	Expansions  []string
	MediaFields []string
	PlaceFields []string
}

// DefaultStreamParams returns the fixed field set the service subscribes
// with: full post fields plus author, mention, place and media expansions.
func DefaultStreamParams() StreamParams {
	return StreamParams{
		PostFields: []string{
			"id", "text", "attachments", "author_id", "context_annotations",
			"conversation_id", "created_at", "entities", "geo",
			"in_reply_to_user_id", "lang", "possibly_sensitive",
			"public_metrics", "referenced_tweets", "reply_settings",
			"source", "withheld",
		},
		Expansions: []string{
			"entities.mentions.username", "geo.place_id", "author_id",
			"attachments.media_keys",
		},
		MediaFields: []string{"url", "preview_image_url"},
		PlaceFields: []string{
			"contained_within", "country", "country_code", "full_name",
			"name", "place_type",
		},
	}
}

// Stream is a live filtered-stream connection. Next blocks until the next
// event arrives; Close tears the connection down without waiting for the
// provider to acknowledge.
type Stream struct {
	resp   *http.Response
	reader *bufio.Reader
}

// OpenStream connects to the filtered stream. The returned Stream stays
// open until Close is called, the context is cancelled, or the provider
// drops the connection.
func (c *Client) OpenStream(ctx context.Context, params StreamParams) (*Stream, error) {
	query := url.Values{}
	if len(params.PostFields) > 0 {
		query.Set("tweet.fields", strings.Join(params.PostFields, ","))
	}
	if len(params.Expansions) > 0 {
		query.Set("expansions", strings.Join(params.Expansions, ","))
	}
	if len(params.MediaFields) > 0 {
		query.Set("media.fields", strings.Join(params.MediaFields, ","))
	}
	if len(params.PlaceFields) > 0 {
		query.Set("place.fields", strings.Join(params.PlaceFields, ","))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+streamPath+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.bearerToken)

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect stream: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeProviderError(resp)
	}

	return &Stream{
		resp:   resp,
		reader: bufio.NewReader(resp.Body),
	}, nil
}

// Next reads the next event from the stream. Keep-alive lines are skipped.
// Returns io.EOF when the provider closes the connection.
func (s *Stream) Next() (*PostEvent, error) {
	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			return nil, err
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			// keep-alive
			continue
		}

		var event PostEvent
		if err := json.Unmarshal(line, &event); err != nil {
			return nil, fmt.Errorf("failed to decode stream event: %w", err)
		}

		return &event, nil
	}
}

// Close disconnects the stream. Fire-and-forget: the provider is not
// asked to confirm.
func (s *Stream) Close() error {
	return s.resp.Body.Close()
}
