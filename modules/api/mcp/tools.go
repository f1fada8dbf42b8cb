package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/telegate/telegate/internal/account"
	"github.com/telegate/telegate/internal/channel"
	"github.com/telegate/telegate/internal/security"
	"github.com/telegate/telegate/pkg/message"
)

// Tool names as agent tooling sees them.
const (
	toolSendMessage = "telegram_send_message"
	toolListLinks   = "telegram_list_links"
)

// registerTools declares the bridge's tool surface on the MCP server.
func (m *MCP) registerTools() {
	m.server.AddTool(mcp.NewTool(toolSendMessage,
		mcp.WithDescription("Send a markdown message to a linked Telegram chat. Target either a chat_id or an account_id; with an account_id the most recently linked chat receives the message."),
		mcp.WithString("account_id", mcp.Description("Web application account whose linked chat receives the message.")),
		mcp.WithString("chat_id", mcp.Description("Exact Telegram chat ID to send to.")),
		mcp.WithString("text", mcp.Required(), mcp.Description("Message text; markdown is rendered for Telegram.")),
		mcp.WithString("channel", mcp.Description("Channel name, only needed when several channels are registered.")),
	), m.handleSendMessage)

	m.server.AddTool(mcp.NewTool(toolListLinks,
		mcp.WithDescription("List account-to-chat links, most recently linked first."),
	), m.handleListLinks)
}

// handleSendMessage implements telegram_send_message. The message carries
// no rendering hints, so the channel formats the markdown exactly like an
// agent reply.
func (m *MCP) handleSendMessage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil || strings.TrimSpace(text) == "" {
		return mcp.NewToolResultError("text is required"), nil
	}
	if m.links == nil || m.channels == nil {
		return mcp.NewToolResultError("bridge is not fully started: link store or channel dispatcher unavailable"), nil
	}

	link, err := m.resolveLink(ctx, req.GetString("account_id", ""), req.GetString("chat_id", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	name, err := m.resolveChannel(req.GetString("channel", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	msg := message.OutboundMessage{
		Channel: name,
		Chat:    message.Chat{ID: link.ChatID, Type: message.ChatDM},
		Blocks:  []message.ContentBlock{message.NewTextBlock(text)},
	}
	if err := m.channels.Send(ctx, msg); err != nil {
		if errors.Is(err, channel.ErrNoChannel) {
			return mcp.NewToolResultError("channel not registered: " + name), nil
		}
		return mcp.NewToolResultError("send failed: " + err.Error()), nil
	}

	if m.audit != nil {
		m.audit.Log(security.AuditEvent{
			Type:      security.EventNotify,
			Channel:   name,
			ChatID:    link.ChatID,
			AccountID: link.AccountID,
			Detail:    "mcp telegram_send_message",
		})
	}

	return mcp.NewToolResultText("sent to chat " + link.ChatID), nil
}

// resolveLink finds the destination link. chat_id wins when both are given.
func (m *MCP) resolveLink(ctx context.Context, accountID, chatID string) (account.Link, error) {
	switch {
	case chatID != "":
		link, err := m.links.Lookup(ctx, chatID)
		if err != nil {
			if errors.Is(err, account.ErrLinkNotFound) {
				return account.Link{}, fmt.Errorf("chat %s is not linked", chatID)
			}
			return account.Link{}, fmt.Errorf("link lookup failed: %w", err)
		}
		return link, nil
	case accountID != "":
		links, err := m.links.LookupByAccount(ctx, accountID)
		if err != nil {
			return account.Link{}, fmt.Errorf("link lookup failed: %w", err)
		}
		if len(links) == 0 {
			return account.Link{}, fmt.Errorf("account %s has no linked chat", accountID)
		}
		return links[0], nil
	default:
		return account.Link{}, errors.New("either account_id or chat_id is required")
	}
}

// resolveChannel applies the sole-channel default.
func (m *MCP) resolveChannel(name string) (string, error) {
	if name != "" {
		return name, nil
	}
	names := m.channels.Channels()
	if len(names) == 1 {
		return names[0], nil
	}
	return "", errors.New("channel is required when several are registered")
}

// handleListLinks implements telegram_list_links.
func (m *MCP) handleListLinks(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if m.links == nil {
		return mcp.NewToolResultError("bridge is not fully started: link store unavailable"), nil
	}

	links, err := m.links.List(ctx)
	if err != nil {
		return mcp.NewToolResultError("list links failed: " + err.Error()), nil
	}
	if links == nil {
		links = []account.Link{}
	}

	out, err := json.MarshalIndent(links, "", "  ")
	if err != nil {
		return mcp.NewToolResultError("encode links failed: " + err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
