package conversation

import "strings"

type Command string

const (
	CmdStart     Command = "start"
	CmdMenu      Command = "menu"
	CmdGetNumber Command = "number"
	CmdCheck     Command = "check"
	CmdSend      Command = "send"
	CmdVerify    Command = "verify"
	CmdAccount   Command = "account"
	CmdUsage     Command = "usage"
	CmdHelp      Command = "help"
	CmdCancel    Command = "cancel"
)

// Input is one user action: a command, or free text when Command is empty.
type Input struct {
	Command Command
	Text    string
}

type Keyboard int

const (
	KeyboardRemove Keyboard = iota
	KeyboardMenu
	KeyboardKeep
)

// Reply is rendered by the chat front-end. Text is Telegram HTML.
type Reply struct {
	Text        string
	Keyboard    Keyboard
	CheckButton bool
}

const (
	MenuGetNumber = "Get Virtual Number"
	MenuCheck     = "Check Messages"
	MenuSend      = "Send SMS"
	MenuVerify    = "Verify Number"
)

// MenuRows returns the main menu layout.
func MenuRows(trial bool) [][]string {
	rows := [][]string{{MenuGetNumber, MenuCheck, MenuSend}}
	if trial {
		rows = append(rows, []string{MenuVerify})
	}
	return rows
}

func MenuCommand(text string) (Command, bool) {
	switch text {
	case MenuGetNumber:
		return CmdGetNumber, true
	case MenuCheck:
		return CmdCheck, true
	case MenuSend:
		return CmdSend, true
	case MenuVerify:
		return CmdVerify, true
	}
	return "", false
}

// ParseCommand recognises "/name" and "/name@bot" with optional arguments.
func ParseCommand(text string) (Command, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	name := strings.Fields(text[1:])
	if len(name) == 0 {
		return "", false
	}
	cmd, _, _ := strings.Cut(strings.ToLower(name[0]), "@")
	switch c := Command(cmd); c {
	case CmdStart, CmdMenu, CmdGetNumber, CmdCheck, CmdSend, CmdVerify,
		CmdAccount, CmdUsage, CmdHelp, CmdCancel:
		return c, true
	}
	return "", false
}

const trialNotice = "\n\n⚠️ <b>Trial Account Notice</b>\n" +
	"• You can only message verified numbers\n" +
	"• All messages will show 'Sent from Twilio trial account'\n" +
	"• Use /verify to add numbers to your allowed list"

func welcomeText(trial bool) string {
	var b strings.Builder
	b.WriteString("🔢 Twilio Virtual Number Bot\n\n")
	b.WriteString("I can help you with:\n")
	b.WriteString("• Getting a temporary virtual number\n")
	b.WriteString("• Receiving SMS/OTP messages\n")
	b.WriteString("• Sending SMS messages")
	if trial {
		b.WriteString(trialNotice)
	}
	b.WriteString("\n\nPlease choose an option:")
	return b.String()
}

func helpText(trial bool) string {
	var b strings.Builder
	b.WriteString("🤖 Twilio Virtual Number Bot Help\n\n")
	b.WriteString("Available commands:\n")
	b.WriteString("/start - Start the bot and show the menu\n")
	b.WriteString("/number - Get a virtual number\n")
	b.WriteString("/check - Check for received messages\n")
	b.WriteString("/send - Send an SMS message\n")
	b.WriteString("/verify - Verify a phone number (trial accounts)\n")
	b.WriteString("/account - Show account information\n")
	b.WriteString("/usage - Show your spending\n")
	b.WriteString("/help - Show this help message\n")
	b.WriteString("/cancel - Cancel the current operation\n\n")
	if trial {
		b.WriteString("⚠️ <b>Trial Account Notice</b>\n")
		b.WriteString("You're using a Twilio trial account with some limitations:\n")
		b.WriteString("• Must verify numbers before messaging\n")
		b.WriteString("• Messages include trial account notice\n")
		b.WriteString("• Some features may be restricted\n\n")
	}
	b.WriteString("This bot uses Twilio's API to provide real virtual phone numbers and SMS capabilities.")
	return b.String()
}
