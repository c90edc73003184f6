package conversation

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/LORD-SANTINO/Number-bot/internal/domain"
	"github.com/LORD-SANTINO/Number-bot/internal/provider"
)

const userID int64 = 42

type harness struct {
	m        *Machine
	sessions *memSessions
	verified *memRegistry
	usage    *memLedger
	messages *memMessages
	sink     *recordingSink
	gw       *fakeGateway
}

func newHarness(trial bool) *harness {
	h := &harness{
		sessions: &memSessions{},
		verified: newMemRegistry(),
		usage:    &memLedger{},
		messages: &memMessages{},
		sink:     &recordingSink{},
		gw:       &fakeGateway{account: provider.AccountInfo{Type: "Trial", Status: "active"}},
	}
	h.m = NewMachine(Deps{
		Sessions: h.sessions,
		Verified: h.verified,
		Usage:    h.usage,
		Messages: h.messages,
		Gateway:  h.gw,
		Audit:    h.sink,
	}, Settings{
		Trial:        trial,
		MonthlyLimit: 5.0,
		SMSCost:      0.008,
		NumberCost:   1.0,
		Region:       "US",
		SenderNumber: "+15550000000",
	}, zap.NewNop())
	h.m.now = func() time.Time { return time.Date(2024, 1, 2, 15, 4, 0, 0, time.UTC) }
	h.m.suffix = func() string { return "ABC123" }
	return h
}

func (h *harness) step(d Dialog, in Input) (Dialog, Reply) {
	return h.m.Step(context.Background(), userID, d, in)
}

func cmd(c Command) Input { return Input{Command: c} }
func text(s string) Input { return Input{Text: s} }
func idleDialog() Dialog { return Dialog{State: Idle} }

func TestValidatePhone(t *testing.T) {
	assert.NoError(t, ValidatePhone("+14155552671"))
	assert.NoError(t, ValidatePhone("+123456789012345"))

	for _, bad := range []string{"4155552671", "+abc", "+1234567890123456", "+", "", "+1 415 555"} {
		assert.ErrorIs(t, ValidatePhone(bad), ErrInvalidPhone, bad)
	}
}

func TestCheckBudget(t *testing.T) {
	err := CheckBudget(4.995, 0.008, 5.0)
	var pe *PolicyError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, PolicyBudget, pe.Policy)

	assert.NoError(t, CheckBudget(0, 0.008, 5.0))
	assert.NoError(t, CheckBudget(4.992, 0.008, 5.0), "spending exactly up to the limit is allowed")
}

func TestTrialSendWithoutVerifiedNumbers(t *testing.T) {
	h := newHarness(true)

	d, r := h.step(idleDialog(), cmd(CmdSend))
	assert.Equal(t, Idle, d.State)
	assert.Contains(t, r.Text, "/verify")

	// the next free text is not treated as a recipient
	d, r = h.step(d, text("+19995550123"))
	assert.Equal(t, Idle, d.State)
	assert.Contains(t, r.Text, "select a valid option")
	assert.Equal(t, KeyboardMenu, r.Keyboard)
	assert.Empty(t, h.gw.sent)
}

func TestVerifyThenSend(t *testing.T) {
	h := newHarness(true)
	const number = "+19995550123"

	d, _ := h.step(idleDialog(), cmd(CmdVerify))
	require.Equal(t, AwaitingVerificationNumber, d.State)

	d, r := h.step(d, text(number))
	require.Equal(t, Idle, d.State)
	assert.Contains(t, r.Text, number)
	assert.Equal(t, []string{number}, h.gw.validated)
	assert.Len(t, h.usage.of(domain.ActionVerifyNumber), 1)

	d, r = h.step(d, cmd(CmdSend))
	require.Equal(t, AwaitingRecipient, d.State)
	assert.Contains(t, r.Text, number)

	d, _ = h.step(d, text(number))
	require.Equal(t, AwaitingMessageBody, d.State)
	assert.Equal(t, number, d.Recipient)

	d, r = h.step(d, text("hello"))
	assert.Equal(t, Idle, d.State)

	sends := h.usage.of(domain.ActionSendSMS)
	require.Len(t, sends, 1)
	assert.InDelta(t, 0.008, sends[0].Cost, 1e-9)

	require.Len(t, h.messages.rows, 1)
	assert.Equal(t, number, h.messages.rows[0].Recipient)
	assert.Equal(t, "hello", h.messages.rows[0].Body)
	assert.Equal(t, "SM0001", h.messages.rows[0].ProviderID)
	assert.Equal(t, domain.MessageStatusSent, h.messages.rows[0].Status)

	require.Len(t, h.gw.sent, 1)
	assert.Equal(t, "hello"+trialDisclaimer, h.gw.sent[0].body)
	assert.Equal(t, "+15550000000", h.gw.sent[0].from)

	assert.Contains(t, r.Text, "SM0001")
	assert.Contains(t, r.Text, "$0.008")
	assert.Len(t, h.sink.msgs, 2)
}

func TestRecipientNotVerifiedKeepsDialog(t *testing.T) {
	h := newHarness(true)
	_, _ = h.verified.Add(context.Background(), userID, "+19995550123")

	d, r := h.step(Dialog{State: AwaitingRecipient}, text("+19995550124"))
	assert.Equal(t, AwaitingRecipient, d.State)
	assert.Contains(t, r.Text, "is not verified")

	d, r = h.step(d, text("not a number"))
	assert.Equal(t, AwaitingRecipient, d.State)
	assert.Contains(t, r.Text, "Invalid phone number format")
}

func TestBudgetGate(t *testing.T) {
	h := newHarness(false)
	require.NoError(t, h.usage.Append(context.Background(), userID, domain.ActionGetVirtualNumber, 4.995))

	d, r := h.step(Dialog{State: AwaitingRecipient}, text("+19995550123"))
	assert.Equal(t, Idle, d.State)
	assert.Contains(t, r.Text, "budget exceeded")
	assert.Empty(t, h.gw.sent)
}

func TestNonTrialSendSkipsRegistry(t *testing.T) {
	h := newHarness(false)

	d, _ := h.step(idleDialog(), cmd(CmdSend))
	require.Equal(t, AwaitingRecipient, d.State)
	d, _ = h.step(d, text("+19995550123"))
	require.Equal(t, AwaitingMessageBody, d.State)
	d, r := h.step(d, text("hi"))
	assert.Equal(t, Idle, d.State)
	require.Len(t, h.gw.sent, 1)
	assert.Equal(t, "hi", h.gw.sent[0].body)
	assert.NotContains(t, r.Text, "Trial")
}

func TestNonTrialRecipientMustBePhoneFormat(t *testing.T) {
	h := newHarness(false)

	d, r := h.step(Dialog{State: AwaitingRecipient}, text("4155552671"))
	assert.Equal(t, AwaitingRecipient, d.State)
	assert.Contains(t, r.Text, "Invalid phone number format")
	assert.Empty(t, h.usage.records)
}

func TestVerifyRejectsBadFormat(t *testing.T) {
	h := newHarness(true)

	d, r := h.step(Dialog{State: AwaitingVerificationNumber}, text("4155552671"))
	assert.Equal(t, AwaitingVerificationNumber, d.State)
	assert.Contains(t, r.Text, "Invalid phone number format")
	assert.Empty(t, h.gw.validated)
}

func TestVerifyOnFullAccount(t *testing.T) {
	h := newHarness(false)

	d, r := h.step(idleDialog(), cmd(CmdVerify))
	assert.Equal(t, Idle, d.State)
	assert.Contains(t, r.Text, "not a trial account")
}

func TestCancelDiscardsDialog(t *testing.T) {
	h := newHarness(true)

	d, r := h.step(Dialog{State: AwaitingMessageBody, Recipient: "+19995550123"}, cmd(CmdCancel))
	assert.Equal(t, idleDialog(), d)
	assert.Contains(t, r.Text, "Operation cancelled")
	assert.Empty(t, h.gw.sent)
	assert.Empty(t, h.usage.records)
	assert.Empty(t, h.sink.msgs)
}

func TestCommandAbandonsDialog(t *testing.T) {
	h := newHarness(true)

	d, r := h.step(Dialog{State: AwaitingMessageBody, Recipient: "+19995550123"}, cmd(CmdHelp))
	assert.Equal(t, Idle, d.State)
	assert.Contains(t, r.Text, "/cancel")
	assert.Empty(t, h.gw.sent)
}

func TestGetNumber(t *testing.T) {
	h := newHarness(true)
	h.gw.candidates = []provider.Candidate{{PhoneNumber: "+15551234567"}, {PhoneNumber: "+15557654321"}}

	d, r := h.step(idleDialog(), text(MenuGetNumber))
	assert.Equal(t, Idle, d.State)
	assert.True(t, r.CheckButton)
	assert.Contains(t, r.Text, "+15551234567")
	assert.Contains(t, r.Text, "REQ-202401021504-ABC123")

	sess, err := h.sessions.ActiveFor(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, "+15551234567", sess.VirtualNumber)
	assert.Equal(t, "REQ-202401021504-ABC123", sess.RequestID)

	charged := h.usage.of(domain.ActionGetVirtualNumber)
	require.Len(t, charged, 1)
	assert.Equal(t, 1.0, charged[0].Cost)
	require.Len(t, h.sink.msgs, 1)
	assert.Contains(t, h.sink.msgs[0], "+15551234567")
}

func TestGetNumberReplacesSession(t *testing.T) {
	h := newHarness(false)
	h.gw.candidates = []provider.Candidate{{PhoneNumber: "+15551234567"}}
	_, _ = h.step(idleDialog(), cmd(CmdGetNumber))
	h.gw.candidates = []provider.Candidate{{PhoneNumber: "+15557654321"}}
	_, _ = h.step(idleDialog(), cmd(CmdGetNumber))

	active := 0
	for _, s := range h.sessions.rows {
		if s.IsActive {
			active++
			assert.Equal(t, "+15557654321", s.VirtualNumber)
		}
	}
	assert.Equal(t, 1, active)
	assert.Len(t, h.sessions.rows, 2)
}

func TestGetNumberNoneAvailable(t *testing.T) {
	h := newHarness(true)

	_, r := h.step(idleDialog(), cmd(CmdGetNumber))
	assert.Contains(t, r.Text, "no numbers available")
	assert.Empty(t, h.sessions.rows)
	assert.Empty(t, h.usage.records)
}

func TestGetNumberProviderFailure(t *testing.T) {
	h := newHarness(true)
	h.gw.searchErr = &provider.Error{Op: "search_numbers", Reason: provider.ReasonTrialRestricted, Message: "upgrade required"}

	d, r := h.step(idleDialog(), cmd(CmdGetNumber))
	assert.Equal(t, Idle, d.State)
	assert.Contains(t, r.Text, "upgrade your Twilio account")
}

func TestGetNumberDatabaseFailure(t *testing.T) {
	h := newHarness(true)
	h.gw.candidates = []provider.Candidate{{PhoneNumber: "+15551234567"}}
	h.sessions.err = errors.New("connection refused")

	_, r := h.step(idleDialog(), cmd(CmdGetNumber))
	assert.Contains(t, r.Text, "something went wrong")
	assert.False(t, r.CheckButton)
	assert.Empty(t, h.usage.records)
	assert.Empty(t, h.sink.msgs)
}

func TestCheckWithoutSession(t *testing.T) {
	h := newHarness(true)

	_, r := h.step(idleDialog(), cmd(CmdCheck))
	assert.Contains(t, r.Text, "don't have an active virtual number")
	assert.Empty(t, h.usage.records)
}

func TestCheckChargesPerMessage(t *testing.T) {
	h := newHarness(true)
	_, _ = h.sessions.Replace(context.Background(), userID, "+15551234567", "REQ-1")
	h.gw.inbox = []provider.InboundMessage{
		{From: "+15550001111", Body: "your code is <b>1234</b>", SentAt: time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)},
		{From: "+15550002222", Body: "hi"},
	}

	r := h.m.Check(context.Background(), userID)
	assert.Contains(t, r.Text, "+15550001111")
	assert.Contains(t, r.Text, "&lt;b&gt;1234&lt;/b&gt;")
	assert.NotContains(t, r.Text, "<b>1234</b>")
	assert.Contains(t, r.Text, "2024-01-02 10:00")

	charged := h.usage.of(domain.ActionCheckMessages)
	require.Len(t, charged, 1)
	assert.InDelta(t, 0.016, charged[0].Cost, 1e-9)
}

func TestCheckKeepsTagLikeText(t *testing.T) {
	h := newHarness(true)
	_, _ = h.sessions.Replace(context.Background(), userID, "+15551234567", "REQ-1")
	h.gw.inbox = []provider.InboundMessage{{From: "+15550001111", Body: "Reply <STOP> to opt out. Code <1234> & more"}}

	r := h.m.Check(context.Background(), userID)
	assert.Contains(t, r.Text, "Message: Reply &lt;STOP&gt; to opt out. Code &lt;1234&gt; &amp; more")
}

func TestUsageEscapesSentBodies(t *testing.T) {
	h := newHarness(false)
	_, _ = h.messages.Save(context.Background(), domain.SmsMessage{UserID: userID, Recipient: "+19995550123", Body: "<STOP> now"})

	_, r := h.step(idleDialog(), cmd(CmdUsage))
	assert.Contains(t, r.Text, "&lt;STOP&gt; now")
}

func TestCheckEmptyInbox(t *testing.T) {
	h := newHarness(true)
	_, _ = h.sessions.Replace(context.Background(), userID, "+15551234567", "REQ-1")

	r := h.m.Check(context.Background(), userID)
	assert.Contains(t, r.Text, "No messages found")
	charged := h.usage.of(domain.ActionCheckMessages)
	require.Len(t, charged, 1)
	assert.Zero(t, charged[0].Cost)
}

func TestSendFailureGuidance(t *testing.T) {
	h := newHarness(true)
	h.gw.sendErr = &provider.Error{Op: "send_message", Reason: provider.ReasonUnverifiedRecipient, Code: 21608}

	d, r := h.step(Dialog{State: AwaitingMessageBody, Recipient: "+19995550123"}, text("hello"))
	assert.Equal(t, Idle, d.State)
	assert.Contains(t, r.Text, "Failed to send message")
	assert.Contains(t, r.Text, "Use /verify to add it")
	assert.Empty(t, h.usage.records)
	assert.Empty(t, h.messages.rows)
}

func TestEmptyBodyKeepsDialog(t *testing.T) {
	h := newHarness(false)

	d, _ := h.step(Dialog{State: AwaitingMessageBody, Recipient: "+19995550123"}, text("   "))
	assert.Equal(t, AwaitingMessageBody, d.State)
	assert.Equal(t, "+19995550123", d.Recipient)
	assert.Empty(t, h.gw.sent)
}

func TestStartShowsMenu(t *testing.T) {
	h := newHarness(true)

	d, r := h.step(idleDialog(), cmd(CmdStart))
	assert.Equal(t, Idle, d.State)
	assert.Equal(t, KeyboardMenu, r.Keyboard)
	assert.Contains(t, r.Text, "Trial Account Notice")
	charged := h.usage.of(domain.ActionStart)
	require.Len(t, charged, 1)
	assert.Zero(t, charged[0].Cost)
}

func TestAccountAndUsage(t *testing.T) {
	h := newHarness(true)
	ctx := context.Background()
	require.NoError(t, h.usage.Append(ctx, userID, domain.ActionGetVirtualNumber, 1.0))
	_, _ = h.messages.Save(ctx, domain.SmsMessage{UserID: userID, Recipient: "+19995550123", Body: "hello"})

	_, r := h.step(idleDialog(), cmd(CmdAccount))
	assert.Contains(t, r.Text, "Type: Trial")
	assert.Contains(t, r.Text, "Status: active")

	_, r = h.step(idleDialog(), cmd(CmdUsage))
	assert.Contains(t, r.Text, "Spent: $1.000")
	assert.Contains(t, r.Text, "Remaining: $4.000")
	assert.Contains(t, r.Text, "+19995550123")

	h.gw.accountErr = errors.New("timeout")
	_, r = h.step(idleDialog(), cmd(CmdAccount))
	assert.Equal(t, "Could not retrieve account information.", r.Text)
}

func TestDefaultRequestID(t *testing.T) {
	m := NewMachine(Deps{}, Settings{}, zap.NewNop())
	assert.Regexp(t, regexp.MustCompile(`^REQ-\d{12}-[0-9A-F]{6}$`), m.requestID())
}

func TestParseCommand(t *testing.T) {
	tests := map[string]Command{
		"/start":              CmdStart,
		"/check@number_bot":   CmdCheck,
		"/SEND":               CmdSend,
		"/verify +1234567890": CmdVerify,
	}
	for in, want := range tests {
		got, ok := ParseCommand(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"start", "/", "/unknown", "Send SMS"} {
		_, ok := ParseCommand(in)
		assert.False(t, ok, in)
	}
}

func TestMenuRows(t *testing.T) {
	assert.Len(t, MenuRows(false), 1)
	rows := MenuRows(true)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{MenuVerify}, rows[1])
}
