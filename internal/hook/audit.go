package hook

import (
	"context"
	"math"
	"strconv"

	"github.com/telegate/telegate/internal/security"
)

// AuditHook records every completed exchange on the security audit trail.
// It runs at AfterSend with the lowest priority (runs last).
type AuditHook struct {
	log *security.AuditLogger
}

// NewAuditHook creates an audit hook that writes through the given logger.
// Redaction is the logger's concern; the hook only shapes the event.
func NewAuditHook(log *security.AuditLogger) *AuditHook {
	return &AuditHook{log: log}
}

// Compile-time interface check.
var _ Hook = (*AuditHook)(nil)

// Position returns AfterSend; the audit hook records completed exchanges.
func (a *AuditHook) Position() Position { return AfterSend }

// Priority returns math.MaxInt so the audit hook runs last among AfterSend hooks.
func (a *AuditHook) Priority() int { return math.MaxInt }

// Execute writes one audit event capturing the exchange details.
func (a *AuditHook) Execute(_ context.Context, hctx *Context) (Action, error) {
	event := security.AuditEvent{
		Type:     security.EventAgentTurn,
		Channel:  hctx.Inbound.Channel,
		ChatID:   hctx.Inbound.Chat.ID,
		SenderID: hctx.Inbound.Sender.ID,
		Detail:   hctx.Inbound.TextContent(),
	}

	if hctx.Account != nil {
		event.AccountID = hctx.Account.AccountID
	}

	meta := make(map[string]string)
	if hctx.ConversationID != "" {
		meta["conversation_id"] = hctx.ConversationID
	}
	if hctx.Outbound != nil {
		meta["reply_chars"] = strconv.Itoa(len([]rune(hctx.Outbound.TextContent())))
	}
	if len(meta) > 0 {
		event.Metadata = meta
	}

	a.log.Log(event)
	return ActionContinue, nil
}
