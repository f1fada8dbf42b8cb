package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/telegate/telegate/internal/account"
	"github.com/telegate/telegate/internal/agent"
	"github.com/telegate/telegate/internal/security"
	"github.com/telegate/telegate/pkg/message"
)

// Command reply texts. Raw markdown; the channel renders them.
const (
	helpText = "Here's what I understand:\n\n" +
		"- `/start <code>` to link this chat to your account\n" +
		"- `/status` to show link and connection state\n" +
		"- `/reset` to start a new conversation\n" +
		"- `/unlink` to disconnect this chat\n" +
		"- `/help` to show this message\n\n" +
		"Anything else you send goes straight to your assistant."

	noticeWelcome = "Hi! I connect this chat to your assistant in the web app.\n\n" +
		"To get started, open **Settings → Telegram** in the web app, copy your " +
		"link code, and send it here:\n\n`/start <code>`"

	noticeBadToken = "That link code wasn't accepted. Codes are single-use and " +
		"expire after a few minutes. Get a fresh one from **Settings → Telegram** " +
		"and try again."

	noticeNotLinked = "This chat isn't linked to an account."

	noticeReset = "Conversation cleared. Your next message starts a fresh one."

	noticeUnlinked = "This chat is no longer linked. Send `/start <code>` to " +
		"connect it again."

	noticeUnknownCommand = "I don't know that command. Send `/help` to see what I understand."
)

// handleCommand routes slash commands. Commands work without an agent turn;
// they manage the link between the chat and the web-app account.
func (p *Pipeline) handleCommand(ctx context.Context, env envelope, logger *slog.Logger) PipelineResult {
	msg := env.Update
	switch commandName(msg) {
	case "start":
		return p.cmdStart(ctx, msg, logger)
	case "help":
		p.sendNotice(ctx, msg, helpText)
		return PipelineResult{}
	case "status":
		return p.cmdStatus(ctx, msg)
	case "reset":
		return p.cmdReset(ctx, env, logger)
	case "unlink":
		return p.cmdUnlink(ctx, env, logger)
	default:
		logger.Debug("dispatch: unknown command", "command", msg.Command)
		p.sendNotice(ctx, msg, noticeUnknownCommand)
		return PipelineResult{Skipped: true}
	}
}

// commandName canonicalizes a command: lowercased, no leading slash, no
// @BotName suffix from group chats.
func commandName(msg message.InboundMessage) string {
	name := strings.ToLower(strings.TrimSpace(msg.Command))
	name = strings.TrimPrefix(name, "/")
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	return name
}

// cmdStart links the chat to the account a link token belongs to. A bare
// /start greets the user and explains how to link.
func (p *Pipeline) cmdStart(ctx context.Context, msg message.InboundMessage, logger *slog.Logger) PipelineResult {
	token := strings.TrimSpace(msg.Args)
	if token == "" {
		if link, err := p.cfg.Links.Lookup(ctx, msg.Chat.ID); err == nil {
			p.sendNotice(ctx, msg, fmt.Sprintf(
				"This chat is already linked to **%s**. Just send me a message.",
				linkName(link)))
			return PipelineResult{}
		}
		p.sendNotice(ctx, msg, noticeWelcome)
		return PipelineResult{}
	}

	acct, err := p.cfg.Invoker.ResolveLinkToken(ctx, token)
	if err != nil {
		// The token itself never goes to logs or the audit trail.
		p.audit(security.AuditEvent{
			Type:     security.EventAuthFailure,
			Channel:  msg.Channel,
			ChatID:   msg.Chat.ID,
			SenderID: msg.Sender.ID,
			Detail:   "link token rejected",
		})
		if errors.Is(err, agent.ErrInvalidLinkToken) {
			logger.Info("dispatch: link token rejected",
				"chat_id", msg.Chat.ID,
				"sender", msg.Sender.ID,
			)
			p.sendNotice(ctx, msg, noticeBadToken)
			return PipelineResult{Skipped: true}
		}
		logger.Error("dispatch: link token verification failed", "error", err)
		p.sendNotice(ctx, msg, noticeUnreachable)
		return PipelineResult{Error: err}
	}

	link := account.Link{
		AccountID:   acct.ID,
		ChatID:      msg.Chat.ID,
		Username:    msg.Sender.Username,
		DisplayName: msg.Sender.DisplayName,
		LinkedAt:    p.now(),
	}
	if err := p.cfg.Links.Save(ctx, link); err != nil {
		logger.Error("dispatch: link save failed", "error", err, "chat_id", msg.Chat.ID)
		p.sendNotice(ctx, msg, noticeTurnFailed)
		return PipelineResult{Error: err}
	}

	// Relinking must not continue a previous account's conversation.
	if err := p.cfg.Links.DeleteConversation(ctx, msg.Chat.ID); err != nil {
		logger.Warn("dispatch: conversation clear on link failed", "error", err, "chat_id", msg.Chat.ID)
	}

	p.audit(security.AuditEvent{
		Type:      security.EventLink,
		Channel:   msg.Channel,
		ChatID:    msg.Chat.ID,
		SenderID:  msg.Sender.ID,
		AccountID: acct.ID,
	})
	logger.Info("dispatch: chat linked",
		"chat_id", msg.Chat.ID,
		"account_id", acct.ID,
	)

	name := acct.DisplayName
	if name == "" {
		name = acct.ID
	}
	p.sendNotice(ctx, msg, fmt.Sprintf(
		"Linked to **%s**. Send me a message and I'll pass it to your assistant.", name))
	return PipelineResult{}
}

// cmdStatus reports the chat's link, conversation, and backend state.
func (p *Pipeline) cmdStatus(ctx context.Context, msg message.InboundMessage) PipelineResult {
	var b strings.Builder

	link, err := p.cfg.Links.Lookup(ctx, msg.Chat.ID)
	switch {
	case err == nil:
		fmt.Fprintf(&b, "Linked to **%s** since %s.\n", linkName(link),
			link.LinkedAt.Format("2006-01-02"))
	case errors.Is(err, account.ErrLinkNotFound):
		b.WriteString(noticeNotLinked + "\n")
	default:
		return PipelineResult{Error: err}
	}

	if convID, err := p.cfg.Links.Conversation(ctx, msg.Chat.ID); err == nil && convID != "" {
		b.WriteString("A conversation is in progress; `/reset` starts a new one.\n")
	}

	if sess := p.cfg.Store.Get(ChatKeyFromMessage(msg)); sess != nil && sess.Turns > 0 {
		fmt.Fprintf(&b, "Turns this session: %d.\n", sess.Turns)
	}

	if err := p.cfg.Invoker.HealthCheck(ctx); err != nil {
		b.WriteString("Assistant backend: **unreachable**.")
	} else {
		b.WriteString("Assistant backend: reachable.")
	}

	p.sendNotice(ctx, msg, strings.TrimRight(b.String(), "\n"))
	return PipelineResult{}
}

// cmdReset forgets the chat's conversation and withdraws its pending
// confirmations. The link survives.
func (p *Pipeline) cmdReset(ctx context.Context, env envelope, logger *slog.Logger) PipelineResult {
	msg := env.Update
	if _, err := p.cfg.Links.Lookup(ctx, msg.Chat.ID); err != nil {
		if errors.Is(err, account.ErrLinkNotFound) {
			p.sendNotice(ctx, msg, noticeLinkRequired)
			return PipelineResult{Skipped: true}
		}
		return PipelineResult{Error: err}
	}

	if err := p.cfg.Links.DeleteConversation(ctx, msg.Chat.ID); err != nil {
		logger.Error("dispatch: conversation clear failed", "error", err, "chat_id", msg.Chat.ID)
		p.sendNotice(ctx, msg, noticeTurnFailed)
		return PipelineResult{Error: err}
	}
	if dropped := p.cfg.Pending.RemoveChat(env.Key); dropped > 0 {
		logger.Info("dispatch: pending actions withdrawn on reset",
			"chat_id", msg.Chat.ID,
			"count", dropped,
		)
	}

	p.sendNotice(ctx, msg, noticeReset)
	return PipelineResult{}
}

// cmdUnlink disconnects the chat from its account and forgets its
// conversation and pending confirmations.
func (p *Pipeline) cmdUnlink(ctx context.Context, env envelope, logger *slog.Logger) PipelineResult {
	msg := env.Update
	link, err := p.cfg.Links.Lookup(ctx, msg.Chat.ID)
	if err != nil {
		if errors.Is(err, account.ErrLinkNotFound) {
			p.sendNotice(ctx, msg, noticeNotLinked)
			return PipelineResult{Skipped: true}
		}
		return PipelineResult{Error: err}
	}

	if err := p.cfg.Links.Delete(ctx, msg.Chat.ID); err != nil && !errors.Is(err, account.ErrLinkNotFound) {
		logger.Error("dispatch: unlink failed", "error", err, "chat_id", msg.Chat.ID)
		p.sendNotice(ctx, msg, noticeTurnFailed)
		return PipelineResult{Error: err}
	}
	if err := p.cfg.Links.DeleteConversation(ctx, msg.Chat.ID); err != nil {
		logger.Warn("dispatch: conversation clear on unlink failed", "error", err, "chat_id", msg.Chat.ID)
	}
	p.cfg.Pending.RemoveChat(env.Key)

	p.audit(security.AuditEvent{
		Type:      security.EventUnlink,
		Channel:   msg.Channel,
		ChatID:    msg.Chat.ID,
		SenderID:  msg.Sender.ID,
		AccountID: link.AccountID,
	})
	logger.Info("dispatch: chat unlinked",
		"chat_id", msg.Chat.ID,
		"account_id", link.AccountID,
	)

	p.sendNotice(ctx, msg, noticeUnlinked)
	return PipelineResult{}
}

// audit records an event when an audit logger is configured.
func (p *Pipeline) audit(event security.AuditEvent) {
	if p.cfg.AuditLogger != nil {
		p.cfg.AuditLogger.Log(event)
	}
}

// linkName picks the friendliest identifier a link carries.
func linkName(link account.Link) string {
	if link.DisplayName != "" {
		return link.DisplayName
	}
	if link.Username != "" {
		return link.Username
	}
	return link.AccountID
}
