package main

// DefaultModules lists the import paths of all first-party telegate modules.
// xtelegate includes these by default unless --only restricts the selection.
var DefaultModules = []string{
	"github.com/telegate/telegate/internal/gateway",
	"github.com/telegate/telegate/modules/agent/backend",
	"github.com/telegate/telegate/modules/api/mcp",
	"github.com/telegate/telegate/modules/channel/telegram",
	"github.com/telegate/telegate/modules/observe/tracing",
	"github.com/telegate/telegate/modules/store/sqlite",
}
