package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/whalespump/live-support/pkg/orchestrator"
)

const (
	CheckEligibility     = "check_eligibility"
	CalculateProfitShare = "calculate_profit_share"
	ProvideAdminContact  = "provide_admin_contact"
)

var errBadArgument = errors.New("invalid tool argument")

// Config holds the business terms the handlers apply.
type Config struct {
	MinShareCapital  float64
	FeeRatio         float64
	VIPStartingPrice float64
	AdminContact     string
}

func DefaultConfig() Config {
	return Config{
		MinShareCapital:  5000,
		FeeRatio:         0.5,
		VIPStartingPrice: 300,
		AdminContact:     "@Binance_Share_Trading",
	}
}

// TranscriptWriter is the chat history the contact card is posted to.
type TranscriptWriter interface {
	Add(sender orchestrator.Sender, text string) orchestrator.Message
}

// Handler runs one tool. A returned error becomes an {"error": ...} result.
type Handler func(ctx context.Context, args map[string]any) (orchestrator.ToolResult, error)

type tool struct {
	decl    orchestrator.ToolDeclaration
	handler Handler
}

// Dispatcher maps tool names to handlers. It implements orchestrator.ToolDispatcher.
type Dispatcher struct {
	config     Config
	transcript TranscriptWriter

	mu    sync.RWMutex
	order []string
	tools map[string]tool
}

// New builds a dispatcher with the three support tools registered.
// transcript may be nil, in which case the contact card is not posted.
func New(config Config, transcript TranscriptWriter) *Dispatcher {
	d := &Dispatcher{
		config:     config,
		transcript: transcript,
		tools:      make(map[string]tool),
	}
	d.Register(eligibilityDeclaration(), d.checkEligibility)
	d.Register(profitShareDeclaration(), d.calculateProfitShare)
	d.Register(contactDeclaration(), d.provideAdminContact)
	return d
}

// Register adds or replaces a tool.
func (d *Dispatcher) Register(decl orchestrator.ToolDeclaration, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.tools[decl.Name]; !exists {
		d.order = append(d.order, decl.Name)
	}
	d.tools[decl.Name] = tool{decl: decl, handler: handler}
}

func (d *Dispatcher) Declarations() []orchestrator.ToolDeclaration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]orchestrator.ToolDeclaration, 0, len(d.order))
	for _, name := range d.order {
		out = append(out, d.tools[name].decl)
	}
	return out
}

// Dispatch runs the named tool. It never fails; unknown tools and bad
// arguments come back as structured error results.
func (d *Dispatcher) Dispatch(ctx context.Context, call orchestrator.ToolCall) orchestrator.ToolResult {
	d.mu.RLock()
	t, ok := d.tools[call.Name]
	d.mu.RUnlock()
	if !ok {
		return orchestrator.ToolResult{"error": "Unknown tool"}
	}

	result, err := t.handler(ctx, call.Args)
	if err != nil {
		return orchestrator.ToolResult{"error": err.Error()}
	}
	return result
}

func (d *Dispatcher) checkEligibility(ctx context.Context, args map[string]any) (orchestrator.ToolResult, error) {
	capital, err := numberArg(args, "capital")
	if err != nil {
		return nil, err
	}

	if capital >= d.config.MinShareCapital {
		return orchestrator.ToolResult{
			"result": "Eligible for Share Trading.",
			"recommendation": fmt.Sprintf(
				"With over $%s, you are eligible for our Share Trading (%s split). Please upload a screenshot of your balance for verification.",
				formatThousands(d.config.MinShareCapital), d.splitLabel()),
		}, nil
	}
	return orchestrator.ToolResult{
		"result": "NOT Eligible for Share Trading.",
		"recommendation": fmt.Sprintf(
			"Your capital ($%s) is below the $%s requirement for Share Trading. Please join our VIP Membership starting at $%s.",
			formatAmount(capital), formatThousands(d.config.MinShareCapital), formatAmount(d.config.VIPStartingPrice)),
	}, nil
}

func (d *Dispatcher) calculateProfitShare(ctx context.Context, args map[string]any) (orchestrator.ToolResult, error) {
	profit, err := numberArg(args, "profit")
	if err != nil {
		return nil, err
	}

	fee := profit * d.config.FeeRatio
	keeps := profit - fee
	return orchestrator.ToolResult{
		"totalProfit": profit,
		"ourFee":      fee,
		"userKeeps":   keeps,
		"message": fmt.Sprintf("For a profit of $%s, you will keep $%s and pay us $%s as service fee.",
			formatAmount(profit), formatAmount(keeps), formatAmount(fee)),
	}, nil
}

// provideAdminContact posts the contact card before returning, so it is on
// screen by the time the result reaches the agent.
func (d *Dispatcher) provideAdminContact(ctx context.Context, args map[string]any) (orchestrator.ToolResult, error) {
	if d.transcript != nil {
		d.transcript.Add(orchestrator.SenderAgent, ContactCard(d.config.AdminContact))
	}
	return orchestrator.ToolResult{"result": "Contact card successfully displayed on user screen."}, nil
}

func (d *Dispatcher) splitLabel() string {
	ours := d.config.FeeRatio * 100
	return formatAmount(100-ours) + "/" + formatAmount(ours)
}

// ContactCard is the message shown to verified users.
func ContactCard(contact string) string {
	return "🎉 **Congratulations! You are eligible.**\n\n☎️ **DM US For Full Access** 🌐\n✉️ " + contact + " ❤️"
}

func numberArg(args map[string]any, name string) (float64, error) {
	v, ok := args[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s is required", errBadArgument, name)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s must be a number", errBadArgument, name)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: %s must be a number", errBadArgument, name)
	}
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// formatThousands renders whole amounts with a thousands separator.
func formatThousands(v float64) string {
	if v != float64(int64(v)) {
		return formatAmount(v)
	}
	s := strconv.FormatInt(int64(v), 10)
	neg := ""
	if s[0] == '-' {
		neg, s = "-", s[1:]
	}
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	return neg + s
}
