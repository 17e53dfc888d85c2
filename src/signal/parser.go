package signal

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Action is the closed set of things a signal can ask for.
type Action string

const (
	ActionOpenLong  Action = "open-long"
	ActionOpenShort Action = "open-short"
	ActionClose     Action = "close"
)

// Side qualifier on a close instruction. Empty means "close whichever side is
// open"; the tracker rejects that as ambiguous when both sides are open.
type Side string

const (
	SideNone  Side = ""
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Instruction is the structured form of a parsed alert. Immutable once built.
type Instruction struct {
	Action    Action
	Symbol    string
	Quantity  decimal.Decimal
	CloseSide Side
	Raw       string
}

// ParseError names the token that broke the grammar. Malformed input is a
// value, never a panic.
type ParseError struct {
	Token  string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("parse error: %s", e.Reason)
	}
	return fmt.Sprintf("parse error at %q: %s", e.Token, e.Reason)
}

// symbolPattern matches venue-tradable pairs after uppercasing: alphanumeric,
// starting with a letter, e.g. BTCUSDT, XRPUSDC, 1000PEPEUSDT is accepted via
// the digit rule below.
var symbolPattern = regexp.MustCompile(`^[A-Z0-9]{5,20}$`)

// quoteAssets are the quote suffixes the venue trades against.
var quoteAssets = []string{"USDT", "USDC", "BUSD"}

// Parse turns raw alert text into an Instruction. Grammar, case-insensitive,
// whitespace-delimited:
//
//	buy   <symbol> <quantity>
//	sell  <symbol> <quantity>
//	close <symbol> [<quantity>] [long|short]
//
// buy/sell open a long/short position and require a positive quantity. close
// ignores any quantity (the tracker always closes the full tracked size) and
// takes an optional side qualifier for the case where both sides are open.
// Parse is pure: same text in, same result out, no I/O.
func Parse(text string) (*Instruction, error) {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return nil, &ParseError{Reason: "empty signal"}
	}

	var action Action
	switch strings.ToLower(tokens[0]) {
	case "buy":
		action = ActionOpenLong
	case "sell":
		action = ActionOpenShort
	case "close":
		action = ActionClose
	default:
		return nil, &ParseError{Token: tokens[0], Reason: "unknown action, want buy, sell or close"}
	}

	if len(tokens) < 2 {
		return nil, &ParseError{Reason: "missing symbol"}
	}

	symbol := strings.ToUpper(tokens[1])
	if !validSymbol(symbol) {
		return nil, &ParseError{Token: tokens[1], Reason: "not a tradable pair"}
	}

	inst := &Instruction{
		Action: action,
		Symbol: symbol,
		Raw:    text,
	}

	if action == ActionClose {
		return parseCloseTail(inst, tokens[2:])
	}

	if len(tokens) < 3 {
		return nil, &ParseError{Reason: "missing quantity"}
	}
	if len(tokens) > 3 {
		return nil, &ParseError{Token: tokens[3], Reason: "unexpected trailing token"}
	}

	qty, err := decimal.NewFromString(tokens[2])
	if err != nil {
		return nil, &ParseError{Token: tokens[2], Reason: "quantity is not a number"}
	}
	if qty.LessThanOrEqual(decimal.Zero) {
		return nil, &ParseError{Token: tokens[2], Reason: "quantity must be positive"}
	}

	inst.Quantity = qty
	return inst, nil
}

// parseCloseTail consumes the optional [<quantity>] [long|short] tail of a
// close instruction. The quantity, when present, is validated and discarded:
// a close always closes the full tracked size.
func parseCloseTail(inst *Instruction, tail []string) (*Instruction, error) {
	sawQuantity := false

	for _, tok := range tail {
		switch strings.ToLower(tok) {
		case "long":
			if inst.CloseSide != SideNone {
				return nil, &ParseError{Token: tok, Reason: "side already given"}
			}
			inst.CloseSide = SideLong
			continue
		case "short":
			if inst.CloseSide != SideNone {
				return nil, &ParseError{Token: tok, Reason: "side already given"}
			}
			inst.CloseSide = SideShort
			continue
		}

		qty, err := decimal.NewFromString(tok)
		if err != nil {
			return nil, &ParseError{Token: tok, Reason: "expected quantity or long/short"}
		}
		if sawQuantity {
			return nil, &ParseError{Token: tok, Reason: "quantity already given"}
		}
		if qty.IsNegative() {
			return nil, &ParseError{Token: tok, Reason: "quantity must not be negative"}
		}
		sawQuantity = true
	}

	inst.Quantity = decimal.Zero
	return inst, nil
}

// Render produces the canonical text for an instruction. Parse(Render(i))
// reproduces i, which is what makes parsing idempotent end to end.
func (i *Instruction) Render() string {
	switch i.Action {
	case ActionClose:
		if i.CloseSide != SideNone {
			return fmt.Sprintf("close %s %s", i.Symbol, i.CloseSide)
		}
		return fmt.Sprintf("close %s", i.Symbol)
	case ActionOpenShort:
		return fmt.Sprintf("sell %s %s", i.Symbol, i.Quantity.String())
	default:
		return fmt.Sprintf("buy %s %s", i.Symbol, i.Quantity.String())
	}
}

// PositionSide maps the instruction to the side of the position it opens.
func (i *Instruction) PositionSide() string {
	if i.Action == ActionOpenShort {
		return "short"
	}
	return "long"
}

func validSymbol(symbol string) bool {
	if !symbolPattern.MatchString(symbol) {
		return false
	}
	for _, quote := range quoteAssets {
		if strings.HasSuffix(symbol, quote) && len(symbol) > len(quote) {
			return true
		}
	}
	return false
}
