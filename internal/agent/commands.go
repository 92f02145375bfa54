package agent

import (
	"fmt"
	"strings"
	"time"

	"WalletChat/internal/storage/mysql"
	"WalletChat/pkg/logger"
)

// 面向用户的回复文本。
const (
	MsgWelcome              = "Welcome! I'm your AI powered crypto assistant bot. Here's how you can interact with me :)"
	MsgWelcomeLogin         = "/login if not already done, once you are logged in you can interact with the wallet in natural language"
	MsgAlreadyAuthenticated = "You're already logged in. Start interacting with the wallet, e.g. \"show me my portfolio data\" :)"
	MsgLoginToStart         = "Login to start interacting with the AI powered wallet"
	MsgLoginHint            = "Please use /login to connect your wallet before sending requests."
	MsgUnknownCommand       = "Unknown command. Use /help to see what I can do."
	MsgEmptyMessage         = "Please send a text message describing what you want to do."
	MsgNotUnderstood        = "I couldn't understand your request. Please try rephrasing it."
	MsgNeedMoreInfo         = "I need some additional information: "
	MsgGenericError         = "Something went wrong while processing your request. Please try again."
	MsgNoHistory            = "You have no transfers yet."
)

// Command 描述一个聊天命令，供聊天通道注册命令菜单。
type Command struct {
	Name        string `json:"command"`
	Description string `json:"description"`
}

var commands = []Command{
	{Name: "start", Description: "Start the assistant"},
	{Name: "help", Description: "List of commands"},
	{Name: "login", Description: "Login to your account"},
	{Name: "logout", Description: "Logout from your account"},
	{Name: "transfer", Description: "Transfer tokens to another address"},
	{Name: "cancel", Description: "Cancel the current login or transfer"},
	{Name: "history", Description: "Show your recent transfers"},
}

// Commands 返回支持的命令列表。
func Commands() []Command {
	return append([]Command(nil), commands...)
}

func helpText() string {
	var b strings.Builder
	b.WriteString("Here's what I can do:")
	for _, c := range commands {
		fmt.Fprintf(&b, "\n/%s - %s", c.Name, c.Description)
	}
	b.WriteString("\nOnce logged in, just tell me what you need, e.g. \"show me my portfolio\".")
	return b.String()
}

func formatHistory(records []mysql.TransferRecord) string {
	if len(records) == 0 {
		return MsgNoHistory
	}
	var b strings.Builder
	b.WriteString("Your recent transfers:")
	for idx, r := range records {
		token := r.TokenAddress
		if token == "" {
			token = "native"
		} else {
			token = logger.MaskAddress(token)
		}
		fmt.Fprintf(&b, "\n%d. %s %s %s (%s) to %s: %s",
			idx+1,
			time.Unix(r.CreatedAt, 0).UTC().Format("2006-01-02 15:04 UTC"),
			r.Quantity,
			r.NetworkName,
			token,
			logger.MaskAddress(r.RecipientAddress),
			r.Status)
		if r.OrderID != "" {
			fmt.Fprintf(&b, ", order %s", r.OrderID)
		}
	}
	return b.String()
}
