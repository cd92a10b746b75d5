package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"calagent/app/core/speech"
	"calagent/app/pkg/logger"
	"calagent/app/pkg/types"
)

const defaultAPIRoot = "https://api.telegram.org"

type Config struct {
	BotToken       string
	PollInterval   time.Duration
	TimeoutSeconds int
	APIRoot        string
}

// Channel long-polls the Telegram Bot API and forwards each text or voice
// message to the gateway handler. Voice notes are transcribed before dispatch.
type Channel struct {
	cfg         Config
	id          string
	transcriber speech.Transcriber

	counter uint64
	offset  int64

	mu      sync.RWMutex
	handler func(types.Message)
}

func NewChannel(cfg Config, transcriber speech.Transcriber) *Channel {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 20
	}
	if strings.TrimSpace(cfg.APIRoot) == "" {
		cfg.APIRoot = defaultAPIRoot
	}
	return &Channel{cfg: cfg, id: "telegram", transcriber: transcriber}
}

func (c *Channel) ID() string {
	return c.id
}

func (c *Channel) Start(ctx context.Context, handler func(types.Message)) error {
	c.mu.Lock()
	c.handler = handler
	c.mu.Unlock()

	if strings.TrimSpace(c.cfg.BotToken) == "" {
		return fmt.Errorf("telegram bot token is required")
	}

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := c.pollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error("[Telegram] poll error: %v", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (c *Channel) Send(ctx context.Context, msg types.Message) error {
	chatID := c.resolveChatID(msg)
	if chatID == "" {
		return fmt.Errorf("telegram chat id is required")
	}

	payload := map[string]interface{}{
		"chat_id": chatID,
		"text":    msg.Content,
	}
	return c.call(ctx, "sendMessage", payload, nil)
}

func (c *Channel) pollOnce(ctx context.Context) error {
	result := getUpdatesResponse{}
	offset := atomic.LoadInt64(&c.offset)
	payload := map[string]interface{}{
		"timeout": c.cfg.TimeoutSeconds,
	}
	if offset > 0 {
		payload["offset"] = offset
	}
	if err := c.call(ctx, "getUpdates", payload, &result); err != nil {
		return err
	}

	c.mu.RLock()
	handler := c.handler
	c.mu.RUnlock()
	if handler == nil {
		return nil
	}

	for _, upd := range result.Result {
		if upd.UpdateID >= atomic.LoadInt64(&c.offset) {
			atomic.StoreInt64(&c.offset, upd.UpdateID+1)
		}
		if upd.Message.MessageID == 0 {
			continue
		}

		text := strings.TrimSpace(upd.Message.Text)
		if text == "" && upd.Message.Voice.FileID != "" {
			text = c.transcribeVoice(ctx, upd.Message.Voice.FileID)
		}
		if text == "" {
			continue
		}

		handler(c.toMessage(upd, text))
	}
	return nil
}

func (c *Channel) toMessage(upd update, text string) types.Message {
	msgID := c.newID("telegram")
	peerID := strconv.FormatInt(upd.Message.Chat.ID, 10)
	userID := "tg-" + strconv.FormatInt(upd.Message.From.ID, 10)

	return types.Message{
		ID:        msgID,
		Content:   text,
		Role:      types.MessageRoleUser,
		ChannelID: c.id,
		UserID:    userID,
		RequestID: c.newID("req"),
		Meta: map[string]interface{}{
			"peer_id": peerID,
		},
	}
}

// transcribeVoice fetches a voice note through getFile and runs it through the
// transcriber. Failures degrade to an empty string and the update is skipped.
func (c *Channel) transcribeVoice(ctx context.Context, fileID string) string {
	if c.transcriber == nil {
		return ""
	}

	var fileResp getFileResponse
	if err := c.call(ctx, "getFile", map[string]interface{}{"file_id": fileID}, &fileResp); err != nil {
		logger.Error("[Telegram] getFile failed: %v", err)
		return ""
	}
	if strings.TrimSpace(fileResp.Result.FilePath) == "" {
		return ""
	}

	url := strings.TrimRight(c.cfg.APIRoot, "/") + "/file/bot" + c.cfg.BotToken + "/" + fileResp.Result.FilePath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ""
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		logger.Error("[Telegram] voice download failed: %v", err)
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return ""
	}

	return c.transcriber.Transcribe(ctx, resp.Body, "voice.ogg")
}

func (c *Channel) call(ctx context.Context, method string, payload interface{}, out interface{}) error {
	url := strings.TrimRight(c.cfg.APIRoot, "/") + "/bot" + c.cfg.BotToken + "/" + method
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("telegram api status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var base apiResponse
	if err := json.Unmarshal(respBody, &base); err != nil {
		return err
	}
	if !base.OK {
		return fmt.Errorf("telegram api error: %s", base.Description)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return err
		}
	}
	return nil
}

func (c *Channel) resolveChatID(msg types.Message) string {
	if msg.Meta != nil {
		if peer, ok := msg.Meta["peer_id"].(string); ok && strings.TrimSpace(peer) != "" {
			return strings.TrimSpace(peer)
		}
	}
	return strings.TrimSpace(strings.TrimPrefix(msg.UserID, "tg-"))
}

func (c *Channel) newID(prefix string) string {
	seq := atomic.AddUint64(&c.counter, 1)
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), seq)
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

type getUpdatesResponse struct {
	apiResponse
	Result []update `json:"result"`
}

type getFileResponse struct {
	apiResponse
	Result struct {
		FilePath string `json:"file_path"`
	} `json:"result"`
}

type update struct {
	UpdateID int64           `json:"update_id"`
	Message  telegramMessage `json:"message"`
}

type telegramMessage struct {
	MessageID int64 `json:"message_id"`
	From      struct {
		ID int64 `json:"id"`
	} `json:"from"`
	Chat struct {
		ID int64 `json:"id"`
	} `json:"chat"`
	Text  string `json:"text"`
	Voice struct {
		FileID string `json:"file_id"`
	} `json:"voice"`
}
