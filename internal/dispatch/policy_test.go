package dispatch

import (
	"testing"

	"github.com/telegate/telegate/pkg/message"
)

func groupUpdate(senderID string, mentioned bool) message.InboundMessage {
	msg := message.InboundMessage{
		ID:      "msg-1",
		Channel: "telegram",
		Sender:  message.Sender{ID: senderID},
		Chat:    message.Chat{ID: "G1", Type: message.ChatGroup},
		Blocks:  []message.ContentBlock{message.NewTextBlock("hello")},
	}
	if mentioned {
		msg.Mentions = &message.Mentions{IsMentioned: true}
	}
	return msg
}

func TestGroupPolicy_ShouldProcess(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		policy GroupPolicy
		msg    message.InboundMessage
		want   bool
	}{
		{
			name:   "direct messages always pass",
			policy: GroupPolicy{Mode: GroupPolicyRequireMention},
			msg:    dmUpdate("100", "hello"),
			want:   true,
		},
		{
			name:   "keyboard presses always pass",
			policy: GroupPolicy{Mode: GroupPolicyRequireMention},
			msg: func() message.InboundMessage {
				m := groupUpdate("u1", false)
				m.Blocks = nil
				m.Callback = &message.Callback{ID: "cb", Data: "confirm:x"}
				return m
			}(),
			want: true,
		},
		{
			name:   "require_mention without mention",
			policy: GroupPolicy{Mode: GroupPolicyRequireMention},
			msg:    groupUpdate("u1", false),
			want:   false,
		},
		{
			name:   "require_mention with mention",
			policy: GroupPolicy{Mode: GroupPolicyRequireMention},
			msg:    groupUpdate("u1", true),
			want:   true,
		},
		{
			name:   "allowlisted sender needs no mention",
			policy: GroupPolicy{Mode: GroupPolicyRequireMention, Allowlist: []string{"u1"}},
			msg:    groupUpdate("u1", false),
			want:   true,
		},
		{
			name:   "allow_all",
			policy: GroupPolicy{Mode: GroupPolicyAllowAll},
			msg:    groupUpdate("u1", false),
			want:   true,
		},
		{
			name:   "denylist beats allow_all",
			policy: GroupPolicy{Mode: GroupPolicyAllowAll, Denylist: []string{"u1"}},
			msg:    groupUpdate("u1", false),
			want:   false,
		},
		{
			name:   "denylist beats mention",
			policy: GroupPolicy{Mode: GroupPolicyRequireMention, Denylist: []string{"u1"}},
			msg:    groupUpdate("u1", true),
			want:   false,
		},
		{
			name:   "unknown mode denies",
			policy: GroupPolicy{Mode: "bogus"},
			msg:    groupUpdate("u1", true),
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.policy.ShouldProcess(tt.msg); got != tt.want {
				t.Errorf("ShouldProcess() = %v, want %v", got, tt.want)
			}
		})
	}
}
