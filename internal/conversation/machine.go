package conversation

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/LORD-SANTINO/Number-bot/internal/domain"
	"github.com/LORD-SANTINO/Number-bot/internal/provider"
	"github.com/LORD-SANTINO/Number-bot/internal/repo"
)

type Sessions interface {
	Replace(ctx context.Context, userID int64, number, requestID string) (domain.Session, error)
	ActiveFor(ctx context.Context, userID int64) (domain.Session, error)
}

type Registry interface {
	Add(ctx context.Context, userID int64, number string) (bool, error)
	IsVerified(ctx context.Context, userID int64, number string) (bool, error)
	ListFor(ctx context.Context, userID int64) ([]string, error)
}

type Ledger interface {
	Append(ctx context.Context, userID int64, action domain.ActionType, cost float64) error
	TotalFor(ctx context.Context, userID int64) (float64, error)
}

type MessageLog interface {
	Save(ctx context.Context, m domain.SmsMessage) (int64, error)
	Recent(ctx context.Context, userID int64, limit int) ([]domain.SmsMessage, error)
}

type Publisher interface {
	Publish(ctx context.Context, msg string) bool
}

// Metrics is notified of billable actions.
type Metrics interface {
	ObserveUsage(action string, cost float64)
	ObserveSMSSent()
}

type nopMetrics struct{}

func (nopMetrics) ObserveUsage(string, float64) {}
func (nopMetrics) ObserveSMSSent()              {}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string) bool { return true }

type Deps struct {
	Sessions Sessions
	Verified Registry
	Usage    Ledger
	Messages MessageLog
	Gateway  provider.Gateway
	Audit    Publisher
	Metrics  Metrics
}

type Settings struct {
	Trial        bool
	MonthlyLimit float64
	SMSCost      float64
	NumberCost   float64
	Region       string
	SenderNumber string
}

const (
	searchLimit = 5
	inboxLimit  = 10
	recentLimit = 5

	trialDisclaimer = "\n\nSent from a Twilio trial account"
)

// Machine drives the bot dialogs. It holds no per-user state: the caller
// loads the Dialog, passes it to Step and stores the one returned.
type Machine struct {
	deps     Deps
	settings Settings
	log      *zap.Logger

	now    func() time.Time
	suffix func() string
}

func NewMachine(deps Deps, settings Settings, log *zap.Logger) *Machine {
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	if deps.Audit == nil {
		deps.Audit = nopPublisher{}
	}
	return &Machine{
		deps:     deps,
		settings: settings,
		log:      log.Named("conversation"),
		now:      time.Now,
		suffix:   randomSuffix,
	}
}

func (m *Machine) Trial() bool { return m.settings.Trial }

// Step applies one user input to d and returns the next dialog and the reply.
func (m *Machine) Step(ctx context.Context, userID int64, d Dialog, in Input) (Dialog, Reply) {
	if in.Command != "" {
		if in.Command != CmdCancel && !d.IsIdle() {
			m.log.Info("dialog abandoned", zap.Int64("user_id", userID), zap.String("state", string(d.State)))
		}
		return m.run(ctx, userID, in.Command)
	}

	text := strings.TrimSpace(in.Text)
	switch d.State {
	case AwaitingRecipient:
		return m.acceptRecipient(ctx, userID, text)
	case AwaitingMessageBody:
		return m.acceptBody(ctx, userID, d.Recipient, text)
	case AwaitingVerificationNumber:
		return m.acceptVerification(ctx, userID, text)
	}

	if cmd, ok := MenuCommand(text); ok {
		return m.run(ctx, userID, cmd)
	}
	return idle(), Reply{Text: "Please select a valid option from the menu.", Keyboard: KeyboardMenu}
}

func (m *Machine) run(ctx context.Context, userID int64, cmd Command) (Dialog, Reply) {
	switch cmd {
	case CmdStart, CmdMenu:
		return idle(), m.start(ctx, userID)
	case CmdGetNumber:
		return idle(), m.getNumber(ctx, userID)
	case CmdCheck:
		return idle(), m.Check(ctx, userID)
	case CmdSend:
		return m.sendPrompt(ctx, userID)
	case CmdVerify:
		return m.verifyPrompt()
	case CmdAccount:
		return idle(), m.account(ctx)
	case CmdUsage:
		return idle(), m.usage(ctx, userID)
	case CmdHelp:
		return idle(), Reply{Text: helpText(m.settings.Trial), Keyboard: KeyboardKeep}
	case CmdCancel:
		return idle(), Reply{Text: "Operation cancelled. Use /start to begin again."}
	default:
		return idle(), Reply{Text: "Unknown command. Use /help to see what I can do.", Keyboard: KeyboardKeep}
	}
}

func (m *Machine) start(ctx context.Context, userID int64) Reply {
	if err := m.charge(ctx, userID, domain.ActionStart, 0); err != nil {
		m.log.Error("record start", zap.Int64("user_id", userID), zap.Error(err))
		return genericFailure()
	}
	return Reply{Text: welcomeText(m.settings.Trial), Keyboard: KeyboardMenu}
}

func (m *Machine) getNumber(ctx context.Context, userID int64) Reply {
	log := m.log.With(zap.Int64("user_id", userID))

	candidates, err := m.deps.Gateway.SearchAvailableNumbers(ctx, m.settings.Region, searchLimit)
	if err != nil {
		log.Error("search numbers", zap.Error(err))
		return m.providerFailure("Sorry, there was an error getting a virtual number.", err)
	}
	if len(candidates) == 0 {
		return Reply{Text: "Sorry, no numbers available at the moment. Please try again later."}
	}

	number, err := m.deps.Gateway.PurchaseNumber(ctx, candidates[0].PhoneNumber)
	if err != nil {
		log.Error("purchase number", zap.Error(err))
		return m.providerFailure("Sorry, there was an error getting a virtual number.", err)
	}

	requestID := m.requestID()
	log = log.With(zap.String("request_id", requestID), zap.String("number", number))

	if _, err := m.deps.Sessions.Replace(ctx, userID, number, requestID); err != nil {
		log.Error("store session", zap.Error(err))
		return genericFailure()
	}
	if err := m.charge(ctx, userID, domain.ActionGetVirtualNumber, m.settings.NumberCost); err != nil {
		log.Error("record usage", zap.Error(err))
		return genericFailure()
	}
	log.Info("number acquired")

	m.deps.Audit.Publish(ctx, fmt.Sprintf("📱 New virtual number\nUser: %d\nNumber: %s\nRequest: %s", userID, number, requestID))

	var b strings.Builder
	fmt.Fprintf(&b, "✅ Your virtual number: %s\nRequest ID: <code>%s</code>\n\n", number, requestID)
	b.WriteString("You can use this number for verification.\n\n")
	if m.settings.Trial {
		b.WriteString("⚠️ <b>Trial Account:</b> You need to verify numbers before messaging them.\n")
		b.WriteString("Use /verify to add numbers to your allowed list.\n\n")
	}
	b.WriteString("Use /check to check for messages or /menu to return to the main menu.")
	return Reply{Text: b.String(), CheckButton: true}
}

// Check lists messages received by the user's active number.
func (m *Machine) Check(ctx context.Context, userID int64) Reply {
	log := m.log.With(zap.Int64("user_id", userID))

	sess, err := m.deps.Sessions.ActiveFor(ctx, userID)
	if errors.Is(err, repo.ErrNoActiveSession) {
		return Reply{Text: "You don't have an active virtual number. Use /start to get one first."}
	}
	if err != nil {
		log.Error("load session", zap.Error(err))
		return genericFailure()
	}

	msgs, err := m.deps.Gateway.ListInboundMessages(ctx, sess.VirtualNumber, inboxLimit)
	if err != nil {
		log.Error("list messages", zap.Error(err))
		return m.providerFailure("Sorry, there was an error retrieving messages. Please try again later.", err)
	}
	if err := m.charge(ctx, userID, domain.ActionCheckMessages, m.settings.SMSCost*float64(len(msgs))); err != nil {
		log.Error("record usage", zap.Error(err))
		return genericFailure()
	}

	if len(msgs) == 0 {
		return Reply{Text: "No messages found for your virtual number."}
	}

	var b strings.Builder
	b.WriteString("📨 Messages received:\n\n")
	for _, msg := range msgs {
		fmt.Fprintf(&b, "From: %s\nMessage: %s\n", html.EscapeString(msg.From), html.EscapeString(msg.Body))
		if !msg.SentAt.IsZero() {
			fmt.Fprintf(&b, "Date: %s\n", msg.SentAt.UTC().Format("2006-01-02 15:04 MST"))
		}
		b.WriteString("\n")
	}
	return Reply{Text: strings.TrimRight(b.String(), "\n")}
}

func (m *Machine) sendPrompt(ctx context.Context, userID int64) (Dialog, Reply) {
	if !m.settings.Trial {
		return Dialog{State: AwaitingRecipient},
			Reply{Text: "Please enter the recipient's phone number (with country code, e.g., +1234567890):"}
	}

	numbers, err := m.deps.Verified.ListFor(ctx, userID)
	if err != nil {
		m.log.Error("list verified", zap.Int64("user_id", userID), zap.Error(err))
		return idle(), genericFailure()
	}
	if len(numbers) == 0 {
		return idle(), m.policyReply(&PolicyError{Policy: PolicyTrialUnverified, Msg: "no verified numbers"})
	}

	var b strings.Builder
	b.WriteString("📋 Your verified numbers:\n")
	for _, n := range numbers {
		b.WriteString("• " + html.EscapeString(n) + "\n")
	}
	b.WriteString("\nPlease enter the recipient's phone number (must be verified for trial accounts):")
	return Dialog{State: AwaitingRecipient}, Reply{Text: b.String()}
}

func (m *Machine) acceptRecipient(ctx context.Context, userID int64, recipient string) (Dialog, Reply) {
	log := m.log.With(zap.Int64("user_id", userID))
	stay := Dialog{State: AwaitingRecipient}

	if err := ValidatePhone(recipient); err != nil {
		return stay, Reply{Text: "Invalid phone number format. Please use format +1234567890"}
	}

	if m.settings.Trial {
		ok, err := m.deps.Verified.IsVerified(ctx, userID, recipient)
		if err != nil {
			log.Error("check verified", zap.Error(err))
			return idle(), genericFailure()
		}
		if !ok {
			return stay, Reply{Text: fmt.Sprintf(
				"❌ %s is not verified.\n\nTrial accounts can only send messages to verified numbers.\nUse /verify to add this number to your allowed list.",
				html.EscapeString(recipient))}
		}
	}

	total, err := m.deps.Usage.TotalFor(ctx, userID)
	if err != nil {
		log.Error("load usage", zap.Error(err))
		return idle(), genericFailure()
	}
	if err := CheckBudget(total, m.settings.SMSCost, m.settings.MonthlyLimit); err != nil {
		log.Info("budget exceeded", zap.Float64("total", total))
		return idle(), m.policyReply(err)
	}

	return Dialog{State: AwaitingMessageBody, Recipient: recipient},
		Reply{Text: "Now please enter the message you want to send:"}
}

func (m *Machine) acceptBody(ctx context.Context, userID int64, recipient, body string) (Dialog, Reply) {
	log := m.log.With(zap.Int64("user_id", userID))

	if body == "" {
		return Dialog{State: AwaitingMessageBody, Recipient: recipient},
			Reply{Text: "The message is empty. Please enter the message you want to send:"}
	}

	outbound := body
	if m.settings.Trial {
		outbound += trialDisclaimer
	}

	sent, err := m.deps.Gateway.SendMessage(ctx, outbound, m.settings.SenderNumber, recipient)
	if err != nil {
		log.Error("send sms", zap.Error(err))
		return idle(), m.providerFailure("❌ Failed to send message.", err)
	}
	log = log.With(zap.String("provider_sid", sent.ProviderID))
	m.deps.Metrics.ObserveSMSSent()

	if err := m.charge(ctx, userID, domain.ActionSendSMS, m.settings.SMSCost); err != nil {
		log.Error("record usage", zap.Error(err))
		return idle(), genericFailure()
	}
	if _, err := m.deps.Messages.Save(ctx, domain.SmsMessage{
		UserID:     userID,
		Recipient:  recipient,
		Body:       body,
		ProviderID: sent.ProviderID,
		Status:     domain.MessageStatusSent,
	}); err != nil {
		log.Error("record message", zap.Error(err))
		return idle(), genericFailure()
	}
	total, err := m.deps.Usage.TotalFor(ctx, userID)
	if err != nil {
		log.Error("load usage", zap.Error(err))
		return idle(), genericFailure()
	}
	log.Info("sms sent")

	m.deps.Audit.Publish(ctx, fmt.Sprintf("✉️ SMS sent\nUser: %d\nTo: %s\nSID: %s", userID, recipient, sent.ProviderID))

	text := fmt.Sprintf("✅ Message sent successfully to %s!\nMessage SID: %s\nMonthly usage: $%.3f of $%.2f",
		recipient, sent.ProviderID, total, m.settings.MonthlyLimit)
	if m.settings.Trial {
		text += "\n\n📝 <b>Note:</b> Trial account message delivered with disclaimer."
	}
	return idle(), Reply{Text: text}
}

func (m *Machine) verifyPrompt() (Dialog, Reply) {
	if !m.settings.Trial {
		return idle(), m.policyReply(&PolicyError{Policy: PolicyNotTrial, Msg: "account is not a trial account"})
	}
	return Dialog{State: AwaitingVerificationNumber},
		Reply{Text: "Please enter the phone number you want to verify (with country code, e.g., +1234567890):"}
}

func (m *Machine) acceptVerification(ctx context.Context, userID int64, number string) (Dialog, Reply) {
	log := m.log.With(zap.Int64("user_id", userID))

	if err := ValidatePhone(number); err != nil {
		return Dialog{State: AwaitingVerificationNumber},
			Reply{Text: "Invalid phone number format. Please use format +1234567890"}
	}

	v, err := m.deps.Gateway.RequestNumberValidation(ctx, number, fmt.Sprintf("User %d", userID))
	if err != nil {
		log.Error("request validation", zap.Error(err))
		return idle(), m.providerFailure("Sorry, there was an error verifying the number. Please try again.", err)
	}
	if _, err := m.deps.Verified.Add(ctx, userID, number); err != nil {
		log.Error("add verified", zap.Error(err))
		return idle(), genericFailure()
	}
	if err := m.charge(ctx, userID, domain.ActionVerifyNumber, 0); err != nil {
		log.Error("record usage", zap.Error(err))
		return idle(), genericFailure()
	}
	log.Info("number verified", zap.String("number", number))

	m.deps.Audit.Publish(ctx, fmt.Sprintf("✅ Number verified\nUser: %d\nNumber: %s", userID, number))

	text := fmt.Sprintf("✅ Number %s has been added to your verified list.\n\n", number)
	if v.Code != "" {
		text += fmt.Sprintf("You will receive a verification call. Enter code <code>%s</code> when asked.\n\n", v.Code)
	}
	text += "You can now send messages to this number from your trial account."
	return idle(), Reply{Text: text}
}

func (m *Machine) account(ctx context.Context) Reply {
	info, err := m.deps.Gateway.FetchAccountInfo(ctx)
	if err != nil {
		m.log.Error("fetch account", zap.Error(err))
		return Reply{Text: "Could not retrieve account information.", Keyboard: KeyboardKeep}
	}

	kind := "Full"
	if m.settings.Trial {
		kind = "Trial"
	}
	text := fmt.Sprintf("🔐 <b>Account Information</b>\n\nType: %s\nStatus: %s\n", kind, html.EscapeString(info.Status))
	if m.settings.Trial {
		text += "\n⚠️ <b>Trial Account Limitations</b>\n" +
			"• Can only message verified numbers\n" +
			"• Messages include trial account notice\n" +
			"• Some features may be restricted\n\n" +
			"Use /verify to add numbers to your allowed list."
	}
	return Reply{Text: text, Keyboard: KeyboardKeep}
}

func (m *Machine) usage(ctx context.Context, userID int64) Reply {
	log := m.log.With(zap.Int64("user_id", userID))

	total, err := m.deps.Usage.TotalFor(ctx, userID)
	if err != nil {
		log.Error("load usage", zap.Error(err))
		return genericFailure()
	}
	recent, err := m.deps.Messages.Recent(ctx, userID, recentLimit)
	if err != nil {
		log.Error("load recent messages", zap.Error(err))
		return genericFailure()
	}

	remaining := m.settings.MonthlyLimit - total
	if remaining < 0 {
		remaining = 0
	}

	var b strings.Builder
	fmt.Fprintf(&b, "💰 <b>Usage</b>\n\nSpent: $%.3f\nLimit: $%.2f\nRemaining: $%.3f\n", total, m.settings.MonthlyLimit, remaining)
	if len(recent) > 0 {
		b.WriteString("\nRecent messages:\n")
		for _, msg := range recent {
			fmt.Fprintf(&b, "• %s to %s: %s\n", msg.SentAt.UTC().Format("2006-01-02 15:04"),
				html.EscapeString(msg.Recipient), html.EscapeString(truncate(msg.Body, 40)))
		}
	}
	return Reply{Text: strings.TrimRight(b.String(), "\n"), Keyboard: KeyboardKeep}
}

func (m *Machine) charge(ctx context.Context, userID int64, action domain.ActionType, cost float64) error {
	if err := m.deps.Usage.Append(ctx, userID, action, cost); err != nil {
		return err
	}
	m.deps.Metrics.ObserveUsage(string(action), cost)
	return nil
}

func (m *Machine) policyReply(err error) Reply {
	var pe *PolicyError
	if !errors.As(err, &pe) {
		return genericFailure()
	}
	switch pe.Policy {
	case PolicyTrialUnverified:
		return Reply{Text: "⚠️ <b>Trial Account Restriction</b>\n\n" +
			"You need to verify numbers before sending messages.\n" +
			"Please use /verify to add a number to your allowed list first."}
	case PolicyBudget:
		return Reply{Text: fmt.Sprintf("💸 Monthly budget exceeded. Sending this message would go over the $%.2f limit.\nUse /usage to see your spending.", m.settings.MonthlyLimit)}
	case PolicyNotTrial:
		return Reply{Text: "Your account is not a trial account. Number verification is not required."}
	default:
		return genericFailure()
	}
}

func (m *Machine) providerFailure(prefix string, err error) Reply {
	if hint := guidance(err); hint != "" {
		return Reply{Text: prefix + "\n\n" + hint}
	}
	return Reply{Text: prefix}
}

func guidance(err error) string {
	var pe *provider.Error
	if !errors.As(err, &pe) {
		return ""
	}
	switch pe.Reason {
	case provider.ReasonUnverifiedRecipient:
		return "This number needs to be verified for trial accounts. Use /verify to add it."
	case provider.ReasonPermissionDenied:
		return "Your account may have restrictions. Check your Twilio console."
	case provider.ReasonTrialRestricted:
		return "You may need to upgrade your Twilio account."
	case provider.ReasonInsufficientFunds:
		return "The provider account is out of credit. Please contact the bot administrator."
	case provider.ReasonInvalidNumber:
		return "Please check the number and its country code."
	default:
		return ""
	}
}

func (m *Machine) requestID() string {
	return fmt.Sprintf("REQ-%s-%s", m.now().UTC().Format("200601021504"), m.suffix())
}

func randomSuffix() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
}

func idle() Dialog { return Dialog{State: Idle} }

func genericFailure() Reply {
	return Reply{Text: "Sorry, something went wrong. Please try again later."}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
