package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/foxai-labs/oceep/internal/logging"
	"github.com/foxai-labs/oceep/internal/types"
)

// CloudStore syncs conversations to a Supabase-style REST backend.
// It mirrors the local store's narrow contract: upsert conversation
// meta, upsert messages, fetch a user's sessions, delete by id.
type CloudStore struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
}

// NewCloudStore creates a cloud store. An empty baseURL yields a
// disabled store whose methods must not be called; check Enabled.
func NewCloudStore(baseURL, anonKey string) *CloudStore {
	return &CloudStore{
		baseURL:    strings.TrimRight(baseURL, "/"),
		anonKey:    anonKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxRetries: 3,
		retryDelay: 500 * time.Millisecond,
	}
}

// Enabled reports whether a backend is configured.
func (c *CloudStore) Enabled() bool {
	return c != nil && c.baseURL != ""
}

// conversationRow is the wire shape of the conversations table.
type conversationRow struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Title     string `json:"title"`
	BotID     string `json:"bot_id"`
	CreatedAt string `json:"created_at"`
}

// messageRow is the wire shape of the messages table.
type messageRow struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	UserID         string          `json:"user_id"`
	Role           string          `json:"role"`
	Content        string          `json:"content"`
	CreatedAt      string          `json:"created_at"`
	Metadata       json.RawMessage `json:"metadata"`
}

func toTimestamp(millis int64) string {
	return time.UnixMilli(millis).UTC().Format(time.RFC3339Nano)
}

func fromTimestamp(ts string) int64 {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}

// SaveConversationMeta upserts the conversation row (not its messages).
func (c *CloudStore) SaveConversationMeta(ctx context.Context, sess types.Session, userID string) error {
	row := conversationRow{
		ID:        sess.ID,
		UserID:    userID,
		Title:     sess.Title,
		BotID:     sess.PersonaID,
		CreatedAt: toTimestamp(sess.CreatedAt),
	}
	return c.upsert(ctx, "conversations", row)
}

// SaveMessage upserts one message row.
func (c *CloudStore) SaveMessage(ctx context.Context, sessionID string, msg types.Message, userID string) error {
	meta, err := json.Marshal(messageMeta{
		Attachments:      msg.Attachments,
		Tier:             msg.Tier,
		ThinkingDuration: msg.ThinkingDuration,
		Citations:        msg.Citations,
		SpeechAudio:      msg.SpeechAudio,
		Error:            msg.Error,
	})
	if err != nil {
		return fmt.Errorf("failed to encode message metadata: %w", err)
	}

	row := messageRow{
		ID:             msg.ID,
		ConversationID: sessionID,
		UserID:         userID,
		Role:           string(msg.Role),
		Content:        msg.Content,
		CreatedAt:      toTimestamp(msg.CreatedAt),
		Metadata:       meta,
	}
	return c.upsert(ctx, "messages", row)
}

// FetchSessions loads a user's conversations newest first, each with
// its messages in chronological order.
func (c *CloudStore) FetchSessions(ctx context.Context, userID string) ([]types.Session, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("user_id", "eq."+userID)
	q.Set("order", "created_at.desc")

	var convRows []conversationRow
	if err := c.get(ctx, "conversations", q, &convRows); err != nil {
		return nil, err
	}
	if len(convRows) == 0 {
		return nil, nil
	}

	ids := make([]string, len(convRows))
	for i, r := range convRows {
		ids[i] = r.ID
	}

	mq := url.Values{}
	mq.Set("select", "*")
	mq.Set("conversation_id", "in.("+strings.Join(ids, ",")+")")
	mq.Set("order", "created_at.asc")

	var msgRows []messageRow
	if err := c.get(ctx, "messages", mq, &msgRows); err != nil {
		return nil, err
	}

	byConv := make(map[string][]types.Message, len(convRows))
	for _, r := range msgRows {
		m := types.Message{
			ID:        r.ID,
			Role:      types.Role(r.Role),
			Content:   r.Content,
			CreatedAt: fromTimestamp(r.CreatedAt),
		}
		if len(r.Metadata) > 0 {
			applyMeta(&m, string(r.Metadata))
		}
		byConv[r.ConversationID] = append(byConv[r.ConversationID], m)
	}

	sessions := make([]types.Session, len(convRows))
	for i, r := range convRows {
		sessions[i] = types.Session{
			ID:        r.ID,
			Title:     r.Title,
			PersonaID: r.BotID,
			CreatedAt: fromTimestamp(r.CreatedAt),
			Messages:  byConv[r.ID],
		}
		if sessions[i].Messages == nil {
			sessions[i].Messages = []types.Message{}
		}
	}

	logging.Cloud("fetched %d sessions for user %s", len(sessions), userID)
	return sessions, nil
}

// DeleteSession removes a conversation and its messages.
func (c *CloudStore) DeleteSession(ctx context.Context, id string) error {
	// Messages first: the backend may lack a cascade rule.
	if err := c.delete(ctx, "messages", url.Values{"conversation_id": {"eq." + id}}); err != nil {
		return err
	}
	return c.delete(ctx, "conversations", url.Values{"id": {"eq." + id}})
}

// =============================================================================
// REST PLUMBING
// =============================================================================

func (c *CloudStore) upsert(ctx context.Context, table string, row any) error {
	body, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to encode %s row: %w", table, err)
	}
	return c.withRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rest/v1/"+table, bytes.NewReader(body))
		if err != nil {
			return err
		}
		c.setHeaders(req)
		req.Header.Set("Prefer", "resolution=merge-duplicates")
		return c.do(req)
	})
}

func (c *CloudStore) get(ctx context.Context, table string, q url.Values, out any) error {
	return c.withRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/rest/v1/"+table+"?"+q.Encode(), nil)
		if err != nil {
			return err
		}
		c.setHeaders(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &netError{err}
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return &netError{err}
		}
		if resp.StatusCode >= 300 {
			return fmt.Errorf("%s query failed: status %d: %s", table, resp.StatusCode, truncateBody(data))
		}
		return json.Unmarshal(data, out)
	})
}

func (c *CloudStore) delete(ctx context.Context, table string, q url.Values) error {
	return c.withRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/rest/v1/"+table+"?"+q.Encode(), nil)
		if err != nil {
			return err
		}
		c.setHeaders(req)
		return c.do(req)
	})
}

func (c *CloudStore) setHeaders(req *http.Request) {
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+c.anonKey)
	req.Header.Set("Content-Type", "application/json")
}

func (c *CloudStore) do(req *http.Request) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &netError{err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s failed: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, truncateBody(data))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// netError marks transport failures, the only kind worth retrying.
// An HTTP error status is a fact about the request, not the network.
type netError struct{ err error }

func (e *netError) Error() string { return e.err.Error() }
func (e *netError) Unwrap() error { return e.err }

func (c *CloudStore) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	delay := c.retryDelay
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			logging.CloudWarn("retrying after network error: %v", lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
		}
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if _, ok := err.(*netError); !ok {
			return err
		}
	}
	return lastErr
}

func truncateBody(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
