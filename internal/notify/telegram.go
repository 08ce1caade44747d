package notify

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	"github.com/shopspring/decimal"

	"github.com/jaehoon-lee/infinite-buying-bot/internal/models"
)

// Telegram sends trading notifications to a single chat. Delivery failures
// are logged and swallowed.
type Telegram struct {
	bot       *telego.Bot
	chatID    telego.ChatID
	numSplits int
	location  *time.Location
}

// NewTelegram creates a Telegram notifier
func NewTelegram(token string, chatID int64, numSplits int, location *time.Location) (*Telegram, error) {
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &Telegram{
		bot:       bot,
		chatID:    telego.ChatID{ID: chatID},
		numSplits: numSplits,
		location:  location,
	}, nil
}

func (t *Telegram) send(ctx context.Context, message string) {
	_, err := t.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID:    t.chatID,
		Text:      strings.TrimSpace(message),
		ParseMode: telego.ModeHTML,
	})
	if err != nil {
		log.Printf("telegram send failed (ignored): %v", err)
	}
}

func (t *Telegram) now() string {
	return time.Now().In(t.location).Format("2006-01-02 15:04")
}

func (t *Telegram) clock() string {
	return time.Now().In(t.location).Format("15:04")
}

// Startup announces the bot start and the current cycle state
func (t *Telegram) Startup(ctx context.Context, position *models.Position) {
	t.send(ctx, fmt.Sprintf(`🚀 <b>무한매수법 시작</b>

📊 종목: %s (%s)
💰 투자금: %s
📈 사이클: %d회차

⏰ %s`,
		position.SymbolName, position.Symbol,
		formatCurrency(position.CurrentInvestment),
		position.CycleNumber, t.now()))
}

// BuyOrder announces a submitted split buy order
func (t *Telegram) BuyOrder(ctx context.Context, order *models.Order) {
	t.send(ctx, fmt.Sprintf(`📥 <b>매수 주문</b>

종목: %s
수량: %d주
가격: %s
분할: %d/%d회

⏰ %s`,
		order.Symbol, order.Quantity, formatCurrency(order.Price),
		order.TrancheIndex, t.numSplits, t.clock()))
}

// SellOrder announces the daily target sell order
func (t *Telegram) SellOrder(ctx context.Context, order *models.Order) {
	t.send(ctx, fmt.Sprintf(`📤 <b>매도 주문 설정</b>

종목: %s
수량: %d주
목표가: %s

⏰ %s`,
		order.Symbol, order.Quantity, formatCurrency(order.Price), t.clock()))
}

// EmergencySell announces a quarter liquidation
func (t *Telegram) EmergencySell(ctx context.Context, order *models.Order) {
	t.send(ctx, fmt.Sprintf(`⚠️ <b>긴급 매도 (쿼터 손절)</b>

%d회 분할 소진으로 1/4 매도
수량: %d주
가격: %s

⏰ %s`,
		t.numSplits, order.Quantity, formatCurrency(order.Price), t.clock()))
}

// Execution announces a reconciled fill and the resulting position
func (t *Telegram) Execution(ctx context.Context, side string, quantity int64, price decimal.Decimal, position *models.Position) {
	emoji := "✅"
	if side == models.OrderSideSell {
		emoji = "💵"
	}
	avgPrice := decimal.Zero
	if position.AvgPrice != nil {
		avgPrice = *position.AvgPrice
	}
	t.send(ctx, fmt.Sprintf(`%s <b>%s 체결</b>

수량: %d주
가격: %s
평단가: %s
보유수량: %d주
분할: %d/%d회

⏰ %s`,
		emoji, sideLabel(side), quantity, formatCurrency(price),
		formatCurrency(avgPrice), position.Quantity,
		position.SplitsUsed, t.numSplits, t.clock()))
}

// CycleComplete announces a closed cycle and its P&L
func (t *Telegram) CycleComplete(ctx context.Context, history *models.CycleHistory) {
	emoji := "🎉"
	if history.Profit.IsNegative() {
		emoji = "😢"
	}
	t.send(ctx, fmt.Sprintf(`%s <b>사이클 %d 완료!</b>

시작 투자금: %s
종료 금액: %s
수익금: %s
수익률: %s
총 매수 횟수: %d회

⏰ %s`,
		emoji, history.CycleNumber,
		formatCurrency(history.StartInvestment),
		formatCurrency(history.EndProceeds),
		formatCurrency(history.Profit),
		formatPercent(history.ProfitRate),
		history.TotalTrades, t.now()))
}

// Error announces a trading failure
func (t *Telegram) Error(ctx context.Context, message string) {
	t.send(ctx, fmt.Sprintf(`🚨 <b>오류 발생</b>

%s

⏰ %s`, message, t.clock()))
}

func sideLabel(side string) string {
	if side == models.OrderSideSell {
		return "매도"
	}
	return "매수"
}

// formatCurrency renders a won amount with thousands separators
func formatCurrency(amount decimal.Decimal) string {
	s := amount.StringFixed(0)
	negative := strings.HasPrefix(s, "-")
	digits := strings.TrimPrefix(s, "-")

	var groups []string
	for len(digits) > 3 {
		groups = append([]string{digits[len(digits)-3:]}, groups...)
		digits = digits[:len(digits)-3]
	}
	groups = append([]string{digits}, groups...)

	out := strings.Join(groups, ",") + "원"
	if negative {
		return "-" + out
	}
	return out
}

func formatPercent(rate decimal.Decimal) string {
	return rate.Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"
}
