package notify

import (
	"fmt"
	"html"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/eddiefleurent/straddle_signal/internal/models"
	"github.com/eddiefleurent/straddle_signal/internal/storage"
)

const (
	divider = "━━━━━━━━━━━━━━━━━━━━━━━━"

	// maxErrorRunes keeps failure messages under Telegram's 4096 character limit.
	maxErrorRunes = 3500
)

// Formatter renders operator messages in Telegram HTML. Times are shown in
// the configured display zone.
type Formatter struct {
	loc     *time.Location
	printer *message.Printer
	venue   string
}

// NewFormatter creates a Formatter. A nil loc means UTC.
func NewFormatter(loc *time.Location) *Formatter {
	if loc == nil {
		loc = time.UTC
	}
	return &Formatter{
		loc:     loc,
		printer: message.NewPrinter(language.English),
		venue:   "Deribit",
	}
}

// usd renders a whole-dollar amount with thousands separators.
func (f *Formatter) usd(v float64) string {
	return "$" + f.printer.Sprintf("%d", int64(math.Round(v)))
}

// signedUSD renders +$1,234 or -$1,234.
func (f *Formatter) signedUSD(v float64) string {
	r := math.Round(v)
	if r < 0 {
		return "-" + f.usd(-r)
	}
	return "+" + f.usd(r)
}

func (f *Formatter) stamp(t time.Time) string {
	return "⏰ " + t.In(f.loc).Format("02 Jan 2006, 03:04 PM MST")
}

func actionLine(p models.Position) string {
	switch p {
	case models.PositionShort:
		return "🔴 SELL ATM STRADDLE (collect premium)"
	case models.PositionLong:
		return "🟢 BUY ATM STRADDLE (pay premium)"
	default:
		return "⚪ NO TRADE this week"
	}
}

// Entry renders the weekly signal.
func (f *Formatter) Entry(d *models.SignalDecision, expiry, now time.Time) string {
	var b strings.Builder
	b.WriteString("<b>🤖 BTC WEEKLY OPTIONS SIGNAL</b>\n")
	b.WriteString(divider + "\n\n")
	fmt.Fprintf(&b, "<b>%s</b>\n\n", actionLine(d.Position))

	b.WriteString("📊 <b>Market Data:</b>\n")
	fmt.Fprintf(&b, "├ BTC: <b>%s</b>\n", f.usd(d.SpotPrice))
	fmt.Fprintf(&b, "├ DVOL (IV): <b>%.1f%%</b>\n", d.ImpliedVol)
	fmt.Fprintf(&b, "├ RV 7d: <b>%.1f%%</b>\n", d.RealizedVol)
	fmt.Fprintf(&b, "├ VRP: <b>%+.1f</b>\n", d.VRP)
	fmt.Fprintf(&b, "├ Z-Score: <b>%+.2f</b>\n", d.ZScore)
	fmt.Fprintf(&b, "└ Trend: <b>%+.1f%%</b> from SMA20\n\n", d.TrendPercent)

	b.WriteString("📋 <b>Trade:</b>\n")
	fmt.Fprintf(&b, "├ Score: <b>%+.2f</b>\n", d.Score)
	fmt.Fprintf(&b, "├ Size: <b>%.0f%%</b>\n", d.SizeFraction*100)
	fmt.Fprintf(&b, "├ Strike: <b>%s</b>\n", f.usd(d.Strike))
	fmt.Fprintf(&b, "├ Premium: <b>%s</b> (%.2f%%)\n", f.usd(d.Premium), d.PremiumPercent())
	fmt.Fprintf(&b, "└ Expiry: <b>%s</b>\n\n", expiry.In(f.loc).Format("02 Jan 2006 (Mon) 15:04 MST"))

	b.WriteString("🔍 <b>Reasons:</b>")
	for _, r := range d.Reasons {
		fmt.Fprintf(&b, "\n  • %s", html.EscapeString(r))
	}
	b.WriteString("\n\n")

	switch d.Position {
	case models.PositionShort:
		b.WriteString("💡 <b>How to trade:</b>\n")
		fmt.Fprintf(&b, "1. %s → BTC Options → Weekly Expiry\n", f.venue)
		fmt.Fprintf(&b, "2. Strike <b>%s</b>\n", f.usd(d.Strike))
		b.WriteString("3. SELL Call + SELL Put\n")
		fmt.Fprintf(&b, "4. Collect ~<b>%s</b> premium\n\n", f.usd(d.Premium))
		b.WriteString("⚠️ Stop-loss: 2x premium\n\n")
	case models.PositionLong:
		b.WriteString("💡 <b>How to trade:</b>\n")
		fmt.Fprintf(&b, "1. %s → BTC Options → Weekly Expiry\n", f.venue)
		fmt.Fprintf(&b, "2. Strike <b>%s</b>\n", f.usd(d.Strike))
		b.WriteString("3. BUY Call + BUY Put\n")
		fmt.Fprintf(&b, "4. Cost ~<b>%s</b>\n\n", f.usd(d.Premium))
		b.WriteString("ℹ️ Max loss = premium paid\n\n")
	default:
		b.WriteString("💡 Signal weak: no trade. New signal on Monday.\n\n")
	}

	b.WriteString(f.stamp(now))
	return b.String()
}

// Exit renders the expiry settlement with running statistics.
func (f *Formatter) Exit(r *models.SettlementResult, stats *storage.Statistics, now time.Time) string {
	headline := "❌ LOSS"
	if r.IsWin() {
		headline = "✅ PROFIT"
	}

	var b strings.Builder
	b.WriteString("<b>📊 WEEKLY EXPIRY RESULT</b>\n")
	b.WriteString(divider + "\n\n")
	fmt.Fprintf(&b, "<b>%s</b>\n\n", headline)

	b.WriteString("💰 <b>Summary:</b>\n")
	fmt.Fprintf(&b, "├ BTC entry (%s): <b>%s</b>\n", r.EntryDate, f.usd(r.SpotAtEntry))
	fmt.Fprintf(&b, "├ BTC expiry: <b>%s</b> (%+.1f%%)\n", f.usd(r.SpotAtExit), r.SpotMovePercent())
	fmt.Fprintf(&b, "├ Strike: <b>%s</b>\n", f.usd(r.Strike))
	fmt.Fprintf(&b, "├ Premium: <b>%s</b>\n", f.usd(r.Premium))
	fmt.Fprintf(&b, "├ Intrinsic: <b>%s</b>\n", f.usd(r.Intrinsic))
	fmt.Fprintf(&b, "├ Position: <b>%s</b> @ %.0f%%\n", r.Position, r.SizeFraction*100)
	fmt.Fprintf(&b, "├ PnL: <b>%s</b>\n", f.signedUSD(r.PnL))
	fmt.Fprintf(&b, "└ Return: <b>%+.2f%%</b>\n\n", r.ReturnPct)

	if stats != nil && stats.TotalTrades > 0 {
		b.WriteString("📈 <b>Track record:</b>\n")
		fmt.Fprintf(&b, "├ Trades: <b>%d</b> (%dW / %dL)\n", stats.TotalTrades, stats.WinningTrades, stats.LosingTrades)
		fmt.Fprintf(&b, "├ Win rate: <b>%.0f%%</b>\n", stats.WinRate)
		fmt.Fprintf(&b, "├ Total PnL: <b>%s</b>\n", f.signedUSD(stats.TotalPnL))
		fmt.Fprintf(&b, "└ Max drawdown: <b>%s</b>\n\n", f.usd(stats.MaxDrawdown))
	}

	b.WriteString("🔄 New signal on Monday!\n")
	b.WriteString(f.stamp(now))
	return b.String()
}

// FlatWeek is sent at expiry when the week's decision was FLAT.
func (f *Formatter) FlatWeek(now time.Time) string {
	return "⚪ No trade this week (FLAT).\n🔄 New signal on Monday!\n" + f.stamp(now)
}

// MissingDecision is sent at expiry when no entry decision was stored.
func (f *Formatter) MissingDecision(now time.Time) string {
	return "⚠️ No Monday signal found.\nPlease check manually.\n" + f.stamp(now)
}

// StaleDecision is sent at expiry when the stored decision is too old to settle.
func (f *Formatter) StaleDecision(d *models.SignalDecision, age time.Duration, now time.Time) string {
	days := int(age.Hours() / 24)
	return fmt.Sprintf("⚠️ Stored signal from %s is %d days old and was not settled.\nPlease check manually.\n%s",
		html.EscapeString(d.AsOfDate), days, f.stamp(now))
}

// Failure reports a run that stopped before producing a result.
func (f *Formatter) Failure(title string, err error, now time.Time) string {
	return fmt.Sprintf("❌ <b>%s</b>\n%s\n%s", html.EscapeString(title), escapeClipped(err.Error(), maxErrorRunes), f.stamp(now))
}

// escapeClipped HTML-escapes s, cutting it at a rune boundary so the escaped
// text holds at most limit runes including the trailing ellipsis.
func escapeClipped(s string, limit int) string {
	if escaped := html.EscapeString(s); utf8.RuneCountInString(escaped) <= limit {
		return escaped
	}
	var b strings.Builder
	n := 0
	for _, r := range s {
		e := html.EscapeString(string(r))
		w := utf8.RuneCountInString(e)
		if n+w > limit-1 {
			b.WriteString("…")
			return b.String()
		}
		b.WriteString(e)
		n += w
	}
	return b.String()
}

// Diagnostic prefixes body with the test-run banner.
func (f *Formatter) Diagnostic(now time.Time, body string) string {
	return fmt.Sprintf("🧪 <b>TEST RUN (%s)</b>\n%s", now.UTC().Weekday(), body)
}
