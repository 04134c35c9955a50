// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Donghh0221/afk/internal/afklog"
	"github.com/Donghh0221/afk/internal/facade"
)

// telegramMaxMessageLength is the Bot API's hard cap on one message's
// text, per original_source/afk/messenger/telegram/adapter.py.
const telegramMaxMessageLength = 4096

// TelegramControlPlane is a chat control plane backed by Telegram forum
// topics: each session channel is one topic thread in a single
// supergroup, identified by its message_thread_id. Grounded on
// original_source/afk/messenger/telegram/adapter.py, translated from the
// python-telegram-bot SDK's Application/Bot wrappers to raw Bot API HTTP
// calls — this repo's STT capability makes the same "HTTP not SDK"
// choice, and no example repo in the corpus carries a Telegram SDK
// dependency to ground an alternative on.
type TelegramControlPlane struct {
	baseURL string
	token   string
	groupID string
	facade  *facade.Facade
	http    *http.Client
	log     *afklog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewTelegramControlPlane creates a chat control plane. f is used to
// dispatch incoming commands once Start is called; it may be nil if the
// caller only needs to send notifications (never receive commands).
func NewTelegramControlPlane(token, groupID string, f *facade.Facade) *TelegramControlPlane {
	return &TelegramControlPlane{
		baseURL: "https://api.telegram.org",
		token:   token,
		groupID: groupID,
		facade:  f,
		http:    &http.Client{Timeout: 60 * time.Second},
		log:     afklog.New("telegram"),
	}
}

func (t *TelegramControlPlane) apiURL(method string) string {
	return t.baseURL + "/bot" + t.token + "/" + method
}

func (t *TelegramControlPlane) call(ctx context.Context, method string, params map[string]interface{}, out interface{}) error {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode %s params: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.apiURL(method), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	var envelope struct {
		OK          bool            `json:"ok"`
		Description string          `json:"description"`
		Result      json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode telegram %s response: %w", method, err)
	}
	if !envelope.OK {
		return fmt.Errorf("telegram %s: %s", method, envelope.Description)
	}
	if out != nil {
		return json.Unmarshal(envelope.Result, out)
	}
	return nil
}

func splitTelegramMessage(text string) []string {
	if len(text) <= telegramMaxMessageLength {
		return []string{text}
	}
	var chunks []string
	for len(text) > 0 {
		if len(text) <= telegramMaxMessageLength {
			chunks = append(chunks, text)
			break
		}
		splitAt := strings.LastIndex(text[:telegramMaxMessageLength], "\n")
		if splitAt <= 0 {
			splitAt = telegramMaxMessageLength
		}
		chunks = append(chunks, text[:splitAt])
		text = strings.TrimLeft(text[splitAt:], "\n")
	}
	return chunks
}

func threadID(channelID string) (int64, bool) {
	if channelID == "" || channelID == "general" {
		return 0, false
	}
	id, err := strconv.ParseInt(channelID, 10, 64)
	return id, err == nil
}

// SendMessage posts text to channelID's topic thread, splitting it at
// Telegram's 4096-character limit. Returns the last chunk's message id.
func (t *TelegramControlPlane) SendMessage(ctx context.Context, channelID, text string, silent bool) (string, error) {
	params := map[string]interface{}{
		"chat_id":              t.groupID,
		"disable_notification": silent,
	}
	if id, ok := threadID(channelID); ok {
		params["message_thread_id"] = id
	}

	var messageID string
	for _, chunk := range splitTelegramMessage(text) {
		params["text"] = chunk
		var result struct {
			MessageID int64 `json:"message_id"`
		}
		if err := t.call(ctx, "sendMessage", params, &result); err != nil {
			return "", err
		}
		messageID = strconv.FormatInt(result.MessageID, 10)
	}
	return messageID, nil
}

// EditMessage rewrites a previously sent message's text in place.
func (t *TelegramControlPlane) EditMessage(ctx context.Context, channelID, messageID, text string) error {
	id, err := strconv.ParseInt(messageID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid message id %q: %w", messageID, err)
	}
	if len(text) > telegramMaxMessageLength {
		text = text[:telegramMaxMessageLength]
	}
	return t.call(ctx, "editMessageText", map[string]interface{}{
		"chat_id":    t.groupID,
		"message_id": id,
		"text":       text,
	}, nil)
}

// SendPermissionRequest posts an approve/deny prompt with inline buttons
// whose callback_data Start's polling loop recognizes.
func (t *TelegramControlPlane) SendPermissionRequest(ctx context.Context, channelID, toolName, toolArgs, requestID string) error {
	summary := toolArgs
	if len(summary) > 500 {
		summary = summary[:500] + "..."
	}
	params := map[string]interface{}{
		"chat_id": t.groupID,
		"text":    fmt.Sprintf("Tool execution request\n%s: %s", toolName, summary),
		"reply_markup": map[string]interface{}{
			"inline_keyboard": [][]map[string]string{
				{
					{"text": "Allow", "callback_data": "perm:" + requestID + ":allow"},
					{"text": "Deny", "callback_data": "perm:" + requestID + ":deny"},
				},
			},
		},
	}
	if id, ok := threadID(channelID); ok {
		params["message_thread_id"] = id
	}
	return t.call(ctx, "sendMessage", params, nil)
}

// CreateChannel creates a forum topic and returns its thread id as the
// channel id. Satisfies session.Manager's narrow ControlPlane interface.
func (t *TelegramControlPlane) CreateChannel(ctx context.Context, name string) (string, error) {
	var result struct {
		MessageThreadID int64 `json:"message_thread_id"`
	}
	if err := t.call(ctx, "createForumTopic", map[string]interface{}{
		"chat_id": t.groupID,
		"name":    name,
	}, &result); err != nil {
		return "", err
	}
	return strconv.FormatInt(result.MessageThreadID, 10), nil
}

// CloseChannel closes the forum topic backing channelID.
func (t *TelegramControlPlane) CloseChannel(ctx context.Context, channelID string) error {
	id, ok := threadID(channelID)
	if !ok {
		return nil
	}
	return t.call(ctx, "closeForumTopic", map[string]interface{}{
		"chat_id":           t.groupID,
		"message_thread_id": id,
	}, nil)
}

// CreateSessionChannel and CloseSessionChannel satisfy the fuller Port
// interface by delegating to the same forum-topic operations.
func (t *TelegramControlPlane) CreateSessionChannel(ctx context.Context, name string) (string, error) {
	return t.CreateChannel(ctx, name)
}

func (t *TelegramControlPlane) CloseSessionChannel(ctx context.Context, channelID string) error {
	return t.CloseChannel(ctx, channelID)
}

// GetChannelLink returns a best-effort deep link into the group's forum
// topic. Telegram's t.me/c/ links need the group's numeric id without
// its -100 supergroup prefix, which is stripped here if present.
func (t *TelegramControlPlane) GetChannelLink(channelID string) (string, bool) {
	id, ok := threadID(channelID)
	if !ok || t.groupID == "" {
		return "", false
	}
	return fmt.Sprintf("https://t.me/c/%s/%d", strings.TrimPrefix(t.groupID, "-100"), id), true
}

// SendPhoto uploads a photo to channelID's topic.
func (t *TelegramControlPlane) SendPhoto(ctx context.Context, channelID, path, caption string) (string, error) {
	return t.sendFile(ctx, channelID, "sendPhoto", "photo", path, caption)
}

// SendDocument uploads an arbitrary file to channelID's topic.
func (t *TelegramControlPlane) SendDocument(ctx context.Context, channelID, path, caption string) (string, error) {
	return t.sendFile(ctx, channelID, "sendDocument", "document", path, caption)
}

func (t *TelegramControlPlane) sendFile(ctx context.Context, channelID, method, field, path, caption string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	writer.WriteField("chat_id", t.groupID)
	if caption != "" {
		writer.WriteField("caption", caption)
	}
	if id, ok := threadID(channelID); ok {
		writer.WriteField("message_thread_id", strconv.FormatInt(id, 10))
	}
	part, err := writer.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.apiURL(method), &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := t.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	var envelope struct {
		OK     bool `json:"ok"`
		Result struct {
			MessageID int64 `json:"message_id"`
		} `json:"result"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", err
	}
	if !envelope.OK {
		return "", fmt.Errorf("telegram %s: %s", method, envelope.Description)
	}
	return strconv.FormatInt(envelope.Result.MessageID, 10), nil
}

// DownloadVoice resolves a file id to a temporary local path, following
// the Bot API's two-step getFile-then-fetch dance.
func (t *TelegramControlPlane) DownloadVoice(ctx context.Context, fileID string) (string, error) {
	var meta struct {
		FilePath string `json:"file_path"`
	}
	if err := t.call(ctx, "getFile", map[string]interface{}{"file_id": fileID}, &meta); err != nil {
		return "", err
	}

	fileURL := fmt.Sprintf("%s/file/bot%s/%s", t.baseURL, t.token, meta.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := t.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download voice file: status %d", resp.StatusCode)
	}

	dst, err := os.CreateTemp("", "afk-voice-*"+filepath.Ext(meta.FilePath))
	if err != nil {
		return "", err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, resp.Body); err != nil {
		return "", err
	}
	return dst.Name(), nil
}

// SetFacade attaches the facade used to dispatch incoming commands. It
// exists because the control plane must be constructed before the
// facade (the facade's session manager needs a control plane to send
// to), so the facade is wired in once it's ready, before Start is
// called.
func (t *TelegramControlPlane) SetFacade(f *facade.Facade) {
	t.facade = f
}

// Start begins long-polling getUpdates and dispatching commands/text/
// permission-button callbacks to the facade until Stop is called.
func (t *TelegramControlPlane) Start(ctx context.Context) error {
	if t.facade == nil {
		return fmt.Errorf("telegram control plane started without a facade to dispatch to")
	}
	pollCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})

	go t.pollLoop(pollCtx)
	return nil
}

// Stop cancels the polling loop and waits for it to exit.
func (t *TelegramControlPlane) Stop(ctx context.Context) error {
	if t.cancel == nil {
		return nil
	}
	t.cancel()
	select {
	case <-t.done:
	case <-ctx.Done():
	}
	return nil
}

type telegramUpdate struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		MessageThreadID int64  `json:"message_thread_id"`
		Text            string `json:"text"`
		From            *struct {
			IsBot bool `json:"is_bot"`
		} `json:"from"`
	} `json:"message"`
	CallbackQuery *struct {
		ID      string `json:"id"`
		Data    string `json:"data"`
		Message *struct {
			MessageThreadID int64 `json:"message_thread_id"`
		} `json:"message"`
	} `json:"callback_query"`
}

func (t *TelegramControlPlane) pollLoop(ctx context.Context) {
	defer close(t.done)
	var offset int64

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var updates []telegramUpdate
		err := t.call(ctx, "getUpdates", map[string]interface{}{
			"offset":  offset,
			"timeout": 30,
		}, &updates)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.log.Warnf("getUpdates: %v", err)
			time.Sleep(time.Second)
			continue
		}

		for _, upd := range updates {
			offset = upd.UpdateID + 1
			t.handleUpdate(ctx, upd)
		}
	}
}

func (t *TelegramControlPlane) handleUpdate(ctx context.Context, upd telegramUpdate) {
	switch {
	case upd.CallbackQuery != nil:
		t.handleCallback(ctx, upd.CallbackQuery.Data, channelIDFromThread(upd.CallbackQuery.Message))
	case upd.Message != nil:
		if upd.Message.From != nil && upd.Message.From.IsBot {
			return
		}
		channelID := "general"
		if upd.Message.MessageThreadID != 0 {
			channelID = strconv.FormatInt(upd.Message.MessageThreadID, 10)
		}
		t.handleText(ctx, channelID, upd.Message.Text)
	}
}

func channelIDFromThread(msg *struct {
	MessageThreadID int64 `json:"message_thread_id"`
}) string {
	if msg == nil || msg.MessageThreadID == 0 {
		return "general"
	}
	return strconv.FormatInt(msg.MessageThreadID, 10)
}

func (t *TelegramControlPlane) handleCallback(ctx context.Context, data, channelID string) {
	if !strings.HasPrefix(data, "perm:") {
		return
	}
	parts := strings.SplitN(data, ":", 3)
	if len(parts) != 3 {
		return
	}
	requestID, choice := parts[1], parts[2]
	t.facade.PermissionResponse(ctx, channelID, requestID, choice == "allow")
}

// handleText implements the `/project`, `/new`, `/sessions`, `/stop`,
// `/complete`, `/status`, `/tunnel`, `/template` command surface; any
// non-command text is forwarded as a message to the channel's session.
func (t *TelegramControlPlane) handleText(ctx context.Context, channelID, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if !strings.HasPrefix(text, "/") {
		t.facade.SendMessage(ctx, channelID, text)
		return
	}

	fields := strings.Fields(text)
	cmd := strings.TrimPrefix(fields[0], "/")
	args := fields[1:]

	var reply string
	switch cmd {
	case "project":
		reply = t.dispatchProject(ctx, args)
	case "new":
		reply = t.dispatchNew(ctx, channelID, args)
	case "sessions":
		reply = t.dispatchSessions()
	case "stop":
		ok := t.facade.StopSession(ctx, channelID)
		reply = fmt.Sprintf("stopped: %v", ok)
	case "complete":
		ok, detail := t.facade.CompleteSession(ctx, channelID)
		reply = fmt.Sprintf("complete: %v (%s)", ok, detail)
	case "status":
		reply = t.dispatchStatus(channelID)
	case "tunnel":
		reply = t.dispatchTunnel(ctx, channelID, args)
	case "template":
		reply = strings.Join(t.facade.ListTemplates(), "\n")
	default:
		reply = fmt.Sprintf("unknown command /%s", cmd)
	}

	if reply != "" {
		t.SendMessage(ctx, channelID, reply, false)
	}
}

func (t *TelegramControlPlane) dispatchProject(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return "usage: /project add|list|remove|init"
	}
	switch args[0] {
	case "list":
		var names []string
		for name := range t.facade.ListProjects() {
			names = append(names, name)
		}
		return strings.Join(names, "\n")
	case "add":
		if len(args) != 3 {
			return "usage: /project add <name> <path>"
		}
		_, msg := t.facade.AddProject(args[1], args[2])
		return msg
	case "remove":
		if len(args) != 2 {
			return "usage: /project remove <name>"
		}
		_, msg := t.facade.RemoveProject(args[1])
		return msg
	case "init":
		if len(args) != 2 {
			return "usage: /project init <name>"
		}
		_, msg := t.facade.InitProject(ctx, args[1])
		return msg
	default:
		return "usage: /project add|list|remove|init"
	}
}

func (t *TelegramControlPlane) dispatchNew(ctx context.Context, _ string, args []string) string {
	if len(args) == 0 {
		return "usage: /new <project> [-v] [--agent X] [--template Y]"
	}
	project := args[0]
	var agentName, template string
	verbose := false
	for i := 1; i < len(args); i++ {
		switch args[i] {
		case "-v":
			verbose = true
		case "--agent":
			i++
			if i < len(args) {
				agentName = args[i]
			}
		case "--template":
			i++
			if i < len(args) {
				template = args[i]
			}
		}
	}

	newChannelID, err := t.CreateSessionChannel(ctx, project+"-"+strconv.FormatInt(time.Now().Unix(), 10))
	if err != nil {
		return fmt.Sprintf("failed to create topic: %v", err)
	}
	sess, err := t.facade.NewSession(ctx, project, verbose, newChannelID, agentName, template)
	if err != nil {
		return fmt.Sprintf("failed to start session: %v", err)
	}
	return fmt.Sprintf("session started in topic %s (%s)", newChannelID, sess.Name())
}

func (t *TelegramControlPlane) dispatchSessions() string {
	var lines []string
	for _, s := range t.facade.ListSessions() {
		lines = append(lines, fmt.Sprintf("%s  %s/%s  %s", s.ChannelID, s.ProjectName, s.AgentName, s.State))
	}
	if len(lines) == 0 {
		return "no active sessions"
	}
	return strings.Join(lines, "\n")
}

func (t *TelegramControlPlane) dispatchStatus(channelID string) string {
	status, ok := t.facade.GetStatus(channelID)
	if !ok {
		return "no session on this topic"
	}
	return fmt.Sprintf("state=%s workspace=%s branch=%s", status.State, status.WorkspacePath, status.Branch)
}

func (t *TelegramControlPlane) dispatchTunnel(ctx context.Context, channelID string, args []string) string {
	if len(args) == 1 && args[0] == "stop" {
		ok := t.facade.StopTunnel(channelID)
		return fmt.Sprintf("tunnel stopped: %v", ok)
	}
	upstream := "http://localhost:8080"
	if len(args) == 1 {
		upstream = args[0]
	}
	info, err := t.facade.StartTunnel(ctx, channelID, upstream)
	if err != nil {
		return fmt.Sprintf("failed to start tunnel: %v", err)
	}
	return info.URL
}
